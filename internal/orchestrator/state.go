package orchestrator

import (
	"sync"

	"github.com/haasonsaas/assistant-core/pkg/models"
)

// runState tracks one Execute call's mutable subtask state across levels
// and goroutines. Every Subtask.Status mutation goes through it so the
// Orchestrator remains the sole mutator of that field even under
// concurrent level dispatch.
type runState struct {
	mu                sync.Mutex
	subtasks          map[string]models.Subtask
	order             []string
	levelSizes        []int
	rollbackTriggered bool
	failureReason     string
	completedOrder    []string // ids that reached Completed, in completion order
}

func newRunState(plan models.ExecutionPlan) *runState {
	s := &runState{subtasks: make(map[string]models.Subtask)}
	for _, level := range plan.Levels {
		s.levelSizes = append(s.levelSizes, len(level))
		for _, st := range level {
			s.subtasks[st.ID] = st
			s.order = append(s.order, st.ID)
		}
	}
	return s
}

func (s *runState) statusOf(id string) models.SubtaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subtasks[id].Status
}

// shouldSkip reports whether st should be skipped rather than dispatched:
// a rollback is already in flight, or any of its declared dependencies
// failed/cancelled.
func (s *runState) shouldSkip(st models.Subtask) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rollbackTriggered {
		return true
	}
	for _, dep := range st.Dependencies {
		depStatus := s.subtasks[dep].Status
		if depStatus == models.SubtaskFailed || depStatus == models.SubtaskCancelled {
			return true
		}
	}
	return false
}

func (s *runState) markCancelled(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.subtasks[id]
	st.Status = models.SubtaskCancelled
	s.subtasks[id] = st
}

func (s *runState) markFinished(id string, status models.SubtaskStatus, result *models.ToolResponse, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.subtasks[id]
	st.Status = status
	if result != nil {
		st.Result = result
	}
	if errMsg != "" {
		st.Error = errMsg
	}
	s.subtasks[id] = st
	if status == models.SubtaskCompleted {
		s.completedOrder = append(s.completedOrder, id)
	}
}

func (s *runState) triggerRollback(failedSubtaskID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rollbackTriggered {
		return
	}
	s.rollbackTriggered = true
	s.failureReason = "subtask " + failedSubtaskID + " failed: " + reason
}

// completedBeforeRollback returns, in completion order, the subtasks that
// reached Completed before rollback was triggered — the set compensation
// must run against.
func (s *runState) completedBeforeRollback() []models.Subtask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Subtask, 0, len(s.completedOrder))
	for _, id := range s.completedOrder {
		out = append(out, s.subtasks[id])
	}
	return out
}

// finalPlan rebuilds an ExecutionPlan with every subtask's final status,
// preserving the original level partition.
func (s *runState) finalPlan() models.ExecutionPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.ExecutionPlan{Levels: s.levelsLocked()}
}

// levelsLocked rebuilds levels from the stored subtask map using the
// original per-level grouping captured at construction time via levelSizes.
func (s *runState) levelsLocked() [][]models.Subtask {
	var levels [][]models.Subtask
	idx := 0
	for _, size := range s.levelSizes {
		row := make([]models.Subtask, size)
		for j := 0; j < size; j++ {
			row[j] = s.subtasks[s.order[idx]]
			idx++
		}
		levels = append(levels, row)
	}
	return levels
}
