package models

import "time"

// SubtaskStatus tracks a single Subtask's lifecycle within an execution.
type SubtaskStatus string

const (
	SubtaskPending   SubtaskStatus = "pending"
	SubtaskExecuting SubtaskStatus = "executing"
	SubtaskCompleted SubtaskStatus = "completed"
	SubtaskFailed    SubtaskStatus = "failed"
	SubtaskCancelled SubtaskStatus = "cancelled"
)

// Subtask is an atomic tool invocation produced by the decomposer and
// mutated only by the Orchestrator during execution.
type Subtask struct {
	ID           string         `json:"id"`
	Action       string         `json:"action"`
	Entities     map[string]any `json:"entities,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Priority     int            `json:"priority,omitempty"`
	Status       SubtaskStatus  `json:"status"`
	Retries      int            `json:"retries"`
	MaxRetries   int            `json:"max_retries"`
	Result       *ToolResponse  `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// Key identifies a subtask for merge/de-duplication purposes: action plus
// its entities, per spec.md §4.4 "de-duplicated by action + entities".
func (s Subtask) Key() string {
	return s.Action + "|" + canonicalizeEntities(s.Entities)
}

// ExecutionPlan partitions a subtask set into topologically ordered,
// independently-parallel levels: level k depends only on levels < k.
type ExecutionPlan struct {
	Levels [][]Subtask `json:"levels"`
}

// Subtasks flattens the plan back into a single slice, preserving level
// order (used for progress tracking and result assembly).
func (p ExecutionPlan) Subtasks() []Subtask {
	var out []Subtask
	for _, level := range p.Levels {
		out = append(out, level...)
	}
	return out
}
