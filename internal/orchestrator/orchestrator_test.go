package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/assistant-core/internal/progress"
	"github.com/haasonsaas/assistant-core/pkg/models"
)

type fakeDispatcher struct {
	mu       sync.Mutex
	calls    []string
	fail     map[string]error
	delay    map[string]time.Duration
	response models.ToolResponse
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, action string, input map[string]any) (models.ToolResponse, error) {
	d.mu.Lock()
	d.calls = append(d.calls, action)
	d.mu.Unlock()

	if delay, ok := d.delay[action]; ok {
		select {
		case <-ctx.Done():
			return models.ToolResponse{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err, ok := d.fail[action]; ok {
		return models.ToolResponse{}, err
	}
	return d.response, nil
}

type fakeResolver struct {
	compensation map[string]string
}

func (r *fakeResolver) Resolve(name string) (models.ToolAction, bool) {
	return models.ToolAction{Name: name, Compensation: r.compensation[name]}, true
}

func linearPlan() models.ExecutionPlan {
	return models.ExecutionPlan{Levels: [][]models.Subtask{
		{{ID: "t1", Action: "weather.query", Status: models.SubtaskPending}},
		{{ID: "t2", Action: "alarm.schedule", Dependencies: []string{"t1"}, Status: models.SubtaskPending}},
	}}
}

func TestPlan_PartitionsLevelsByDependency(t *testing.T) {
	subtasks := []models.Subtask{
		{ID: "t1", Action: "weather.query"},
		{ID: "t2", Action: "alarm.schedule", Dependencies: []string{"t1"}},
	}
	plan, err := Plan(subtasks)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Levels) != 2 || len(plan.Levels[0]) != 1 || plan.Levels[0][0].ID != "t1" {
		t.Fatalf("unexpected plan: %+v", plan)
	}
}

func TestPlan_CycleReturnsDependencyError(t *testing.T) {
	subtasks := []models.Subtask{
		{ID: "t1", Action: "a", Dependencies: []string{"t2"}},
		{ID: "t2", Action: "b", Dependencies: []string{"t1"}},
	}
	_, err := Plan(subtasks)
	if err == nil {
		t.Fatal("expected cycle error")
	}
}

func TestExecute_AllSubtasksCompleteInOrder(t *testing.T) {
	dispatcher := &fakeDispatcher{response: models.ToolResponse{Type: models.ResponseText}}
	tracker := progress.New(nil)
	o := New(dispatcher, &fakeResolver{}, tracker, nil, nil, nil, Config{MaxParallelTasks: 4})

	result := o.Execute(context.Background(), "exec-1", linearPlan())
	if result.Failed || result.Cancelled {
		t.Fatalf("unexpected failure: %+v", result)
	}
	for _, level := range result.Plan.Levels {
		for _, st := range level {
			if st.Status != models.SubtaskCompleted {
				t.Fatalf("expected %s completed, got %s", st.ID, st.Status)
			}
		}
	}
	if dispatcher.calls[0] != "weather.query" {
		t.Fatalf("expected level 1 dispatched first, got %v", dispatcher.calls)
	}
}

func TestExecute_DependentSkippedWhenDependencyFails(t *testing.T) {
	dispatcher := &fakeDispatcher{fail: map[string]error{"weather.query": errors.New("boom")}}
	tracker := progress.New(nil)
	o := New(dispatcher, &fakeResolver{}, tracker, nil, nil, nil, Config{MaxParallelTasks: 4, RollbackOnFailure: true})

	result := o.Execute(context.Background(), "exec-1", linearPlan())
	if !result.Failed {
		t.Fatal("expected execution to be marked failed")
	}
	byID := map[string]models.Subtask{}
	for _, level := range result.Plan.Levels {
		for _, st := range level {
			byID[st.ID] = st
		}
	}
	if byID["t1"].Status != models.SubtaskFailed {
		t.Fatalf("expected t1 failed, got %s", byID["t1"].Status)
	}
	if byID["t2"].Status != models.SubtaskCancelled {
		t.Fatalf("expected t2 cancelled due to rollback, got %s", byID["t2"].Status)
	}
}

func TestExecute_FailureWithoutRollbackStillAttemptsLaterLevels(t *testing.T) {
	dispatcher := &fakeDispatcher{fail: map[string]error{"weather.query": errors.New("boom")}}
	tracker := progress.New(nil)
	o := New(dispatcher, &fakeResolver{}, tracker, nil, nil, nil, Config{MaxParallelTasks: 4, RollbackOnFailure: false})

	result := o.Execute(context.Background(), "exec-1", linearPlan())
	if result.Failed {
		t.Fatal("expected execution not to be marked failed without rollback_on_failure")
	}
	byID := map[string]models.Subtask{}
	for _, level := range result.Plan.Levels {
		for _, st := range level {
			byID[st.ID] = st
		}
	}
	if byID["t2"].Status != models.SubtaskCompleted {
		t.Fatalf("expected t2 to still attempt, got %s", byID["t2"].Status)
	}
}

func TestExecute_InvokesCompensationForCompletedSubtasksOnRollback(t *testing.T) {
	dispatcher := &fakeDispatcher{fail: map[string]error{"alarm.schedule": errors.New("boom")}}
	resolver := &fakeResolver{compensation: map[string]string{"weather.query": "weather.undo"}}
	tracker := progress.New(nil)
	o := New(dispatcher, resolver, tracker, nil, nil, nil, Config{MaxParallelTasks: 4, RollbackOnFailure: true})

	plan := models.ExecutionPlan{Levels: [][]models.Subtask{
		{{ID: "t1", Action: "weather.query", Status: models.SubtaskPending}},
		{{ID: "t2", Action: "alarm.schedule", Dependencies: []string{"t1"}, Status: models.SubtaskPending}},
	}}
	o.Execute(context.Background(), "exec-1", plan)

	found := false
	for _, call := range dispatcher.calls {
		if call == "weather.undo" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected compensation action dispatched, calls=%v", dispatcher.calls)
	}
}

func TestExecute_PreCancelledContextMarksRemainingCancelled(t *testing.T) {
	dispatcher := &fakeDispatcher{response: models.ToolResponse{Type: models.ResponseText}}
	tracker := progress.New(nil)
	o := New(dispatcher, &fakeResolver{}, tracker, nil, nil, nil, Config{MaxParallelTasks: 4})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := o.Execute(ctx, "exec-1", linearPlan())
	if !result.Cancelled {
		t.Fatal("expected execution to report cancelled")
	}
}
