// Package progress implements the ProgressTracker (spec.md §4.10): a
// small in-memory registry of execution-id -> subtask-status counters,
// notified by the Orchestrator on every Subtask.Status transition.
package progress

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/assistant-core/internal/observability"
	"github.com/haasonsaas/assistant-core/pkg/models"
)

// ErrNotFound is returned by Status/Update/Cancel for an unknown tracker id.
var ErrNotFound = errors.New("progress: tracker not found")

// Counts is the per-status tally invariant: Pending+InProgress+Completed+
// Failed+Cancelled always equals Total.
type Counts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// CompletionPercent is Completed/Total, 0 when Total is 0.
func (c Counts) CompletionPercent() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Completed) / float64(c.Total)
}

// IsDone reports whether every subtask has left pending/in_progress. An
// execution with zero subtasks (an informational intent dispatching
// nothing) is trivially done.
func (c Counts) IsDone() bool {
	return c.Pending == 0 && c.InProgress == 0
}

// Snapshot is a point-in-time view of one tracked execution.
type Snapshot struct {
	TrackerID   string                    `json:"tracker_id"`
	ExecutionID string                    `json:"execution_id"`
	Counts      Counts                    `json:"counts"`
	Subtasks    map[string]models.Subtask `json:"subtasks"`
	StartedAt   time.Time                 `json:"started_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

// Notification is published on every subtask transition and on completion.
type Notification struct {
	TrackerID   string               `json:"tracker_id"`
	ExecutionID string               `json:"execution_id"`
	SubtaskID   string               `json:"subtask_id,omitempty"`
	Status      models.SubtaskStatus `json:"status,omitempty"`
	Counts      Counts               `json:"counts"`
	Done        bool                 `json:"done"`
}

// Subscriber receives every Notification published across all tracked
// executions. Implementations must not block; Tracker delivers
// synchronously from within Update/Cancel.
type Subscriber func(Notification)

type execution struct {
	mu          sync.Mutex
	executionID string
	subtasks    map[string]models.Subtask
	startedAt   time.Time
	updatedAt   time.Time
}

// Tracker implements the start/update/status/cancel/cleanup contract of
// spec.md §4.10: an in-memory counter registry plus subscriber callbacks,
// each Update/Cancel call fanning out synchronously to every Subscriber.
type Tracker struct {
	mu          sync.RWMutex
	executions  map[string]*execution
	subscribers []Subscriber
	metrics     *observability.Metrics
}

// New creates a Tracker. metrics may be nil (no Prometheus export, used in
// tests).
func New(metrics *observability.Metrics) *Tracker {
	return &Tracker{
		executions: make(map[string]*execution),
		metrics:    metrics,
	}
}

// Subscribe registers fn to receive every future Notification. Returns an
// unsubscribe function.
func (t *Tracker) Subscribe(fn Subscriber) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := len(t.subscribers)
	t.subscribers = append(t.subscribers, fn)
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if idx < len(t.subscribers) {
			t.subscribers[idx] = nil
		}
	}
}

// Start registers a new execution's subtask set and returns its tracker id.
func (t *Tracker) Start(executionID string, subtasks []models.Subtask) string {
	trackerID := uuid.NewString()
	byID := make(map[string]models.Subtask, len(subtasks))
	for _, st := range subtasks {
		if st.Status == "" {
			st.Status = models.SubtaskPending
		}
		byID[st.ID] = st
	}
	now := time.Now()
	exec := &execution{
		executionID: executionID,
		subtasks:    byID,
		startedAt:   now,
		updatedAt:   now,
	}

	t.mu.Lock()
	t.executions[trackerID] = exec
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.ExecutionsActive.Inc()
	}
	t.publish(trackerID, exec, "", "")
	return trackerID
}

// Update records subtaskID's new status (and result, if any) for
// trackerID, then publishes a Notification to every subscriber.
func (t *Tracker) Update(trackerID, subtaskID string, status models.SubtaskStatus, result *models.ToolResponse, execErr string) error {
	exec, ok := t.lookup(trackerID)
	if !ok {
		return ErrNotFound
	}

	exec.mu.Lock()
	st, ok := exec.subtasks[subtaskID]
	if !ok {
		exec.mu.Unlock()
		return ErrNotFound
	}
	st.Status = status
	if result != nil {
		st.Result = result
	}
	if execErr != "" {
		st.Error = execErr
	}
	now := time.Now()
	switch status {
	case models.SubtaskExecuting:
		if st.StartedAt == nil {
			st.StartedAt = &now
		}
	case models.SubtaskCompleted, models.SubtaskFailed, models.SubtaskCancelled:
		st.CompletedAt = &now
	}
	exec.subtasks[subtaskID] = st
	exec.updatedAt = now
	exec.mu.Unlock()

	t.publish(trackerID, exec, subtaskID, status)
	return nil
}

// Status returns a snapshot of trackerID's current counts and subtasks.
func (t *Tracker) Status(trackerID string) (Snapshot, error) {
	exec, ok := t.lookup(trackerID)
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snapshotOf(trackerID, exec), nil
}

// Cancel marks every subtask still pending or in_progress as cancelled for
// trackerID (spec.md §4.9's "cancelling an execution... marks pending
// subtasks cancelled").
func (t *Tracker) Cancel(trackerID string) error {
	exec, ok := t.lookup(trackerID)
	if !ok {
		return ErrNotFound
	}

	exec.mu.Lock()
	now := time.Now()
	for id, st := range exec.subtasks {
		if st.Status == models.SubtaskPending || st.Status == models.SubtaskExecuting {
			st.Status = models.SubtaskCancelled
			st.CompletedAt = &now
			exec.subtasks[id] = st
		}
	}
	exec.updatedAt = now
	exec.mu.Unlock()

	t.publish(trackerID, exec, "", models.SubtaskCancelled)
	return nil
}

// Cleanup removes trackers whose executions finished (IsDone) more than
// olderThan ago, returning the number removed.
func (t *Tracker) Cleanup(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)
	var toRemove []string

	t.mu.RLock()
	for id, exec := range t.executions {
		exec.mu.Lock()
		done := countsOf(exec).IsDone()
		updated := exec.updatedAt
		exec.mu.Unlock()
		if done && updated.Before(cutoff) {
			toRemove = append(toRemove, id)
		}
	}
	t.mu.RUnlock()

	if len(toRemove) == 0 {
		return 0
	}

	t.mu.Lock()
	for _, id := range toRemove {
		delete(t.executions, id)
	}
	t.mu.Unlock()

	return len(toRemove)
}

func (t *Tracker) lookup(trackerID string) (*execution, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	exec, ok := t.executions[trackerID]
	return exec, ok
}

func (t *Tracker) publish(trackerID string, exec *execution, subtaskID string, status models.SubtaskStatus) {
	exec.mu.Lock()
	counts := countsOf(exec)
	exec.mu.Unlock()

	notification := Notification{
		TrackerID:   trackerID,
		ExecutionID: exec.executionID,
		SubtaskID:   subtaskID,
		Status:      status,
		Counts:      counts,
		Done:        counts.IsDone(),
	}

	t.mu.RLock()
	subs := make([]Subscriber, len(t.subscribers))
	copy(subs, t.subscribers)
	t.mu.RUnlock()

	for _, sub := range subs {
		if sub != nil {
			sub(notification)
		}
	}

	if t.metrics != nil && notification.Done {
		t.metrics.ExecutionsActive.Dec()
	}
}

func countsOf(exec *execution) Counts {
	var c Counts
	for _, st := range exec.subtasks {
		c.Total++
		switch st.Status {
		case models.SubtaskPending:
			c.Pending++
		case models.SubtaskExecuting:
			c.InProgress++
		case models.SubtaskCompleted:
			c.Completed++
		case models.SubtaskFailed:
			c.Failed++
		case models.SubtaskCancelled:
			c.Cancelled++
		}
	}
	return c
}

func snapshotOf(trackerID string, exec *execution) Snapshot {
	exec.mu.Lock()
	defer exec.mu.Unlock()
	subtasks := make(map[string]models.Subtask, len(exec.subtasks))
	for id, st := range exec.subtasks {
		subtasks[id] = st
	}
	return Snapshot{
		TrackerID:   trackerID,
		ExecutionID: exec.executionID,
		Counts:      countsOf(exec),
		Subtasks:    subtasks,
		StartedAt:   exec.startedAt,
		UpdatedAt:   exec.updatedAt,
	}
}
