// Package orchestrator implements the Orchestrator (spec.md §4.9): given a
// subtask list, it builds a topologically ordered ExecutionPlan, dispatches
// each level's subtasks concurrently (bounded by max_parallel_tasks)
// through a ToolRouter, applies the configured failure/rollback policy, and
// publishes every status transition to a ProgressTracker.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/assistant-core/internal/assistanterrors"
	"github.com/haasonsaas/assistant-core/internal/graph"
	"github.com/haasonsaas/assistant-core/internal/observability"
	"github.com/haasonsaas/assistant-core/pkg/models"
)

// Dispatcher is the subset of toolrouter.Router an Orchestrator needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, action string, input map[string]any) (models.ToolResponse, error)
}

// Resolver looks up a ToolAction's declared compensation for rollback.
type Resolver interface {
	Resolve(qualifiedName string) (models.ToolAction, bool)
}

// Tracker is the subset of progress.Tracker an Orchestrator needs.
type Tracker interface {
	Start(executionID string, subtasks []models.Subtask) string
	Update(trackerID, subtaskID string, status models.SubtaskStatus, result *models.ToolResponse, execErr string) error
	Cancel(trackerID string) error
}

// Config tunes one Orchestrator instance (internal/config's
// OrchestratorConfig maps onto this directly).
type Config struct {
	MaxParallelTasks  int
	RollbackOnFailure bool
}

// Orchestrator is the sole mutator of Subtask.Status.
type Orchestrator struct {
	dispatch Dispatcher
	resolve  Resolver
	tracker  Tracker
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	logger   *observability.Logger
	config   Config
}

// New builds an Orchestrator. tracker, metrics and tracer may all be nil
// (progress/metrics/tracing are then not reported, used by callers that
// only want Plan/Execute's return value); logger may be nil too, in which
// case Execute/runOne skip logging entirely.
func New(dispatch Dispatcher, resolve Resolver, tracker Tracker, metrics *observability.Metrics, tracer *observability.Tracer, logger *observability.Logger, config Config) *Orchestrator {
	if config.MaxParallelTasks <= 0 {
		config.MaxParallelTasks = 8
	}
	return &Orchestrator{dispatch: dispatch, resolve: resolve, tracker: tracker, metrics: metrics, tracer: tracer, logger: logger, config: config}
}

// Plan runs a topological sort over subtasks, producing an ExecutionPlan
// whose levels contain only subtasks whose dependencies all live in
// earlier levels. A dependency cycle is a fatal validation error.
func Plan(subtasks []models.Subtask) (models.ExecutionPlan, error) {
	if len(subtasks) == 0 {
		return models.ExecutionPlan{}, nil
	}

	byID := make(map[string]models.Subtask, len(subtasks))
	nodes := make([]graph.Node, 0, len(subtasks))
	for _, st := range subtasks {
		byID[st.ID] = st
		nodes = append(nodes, graph.Node{ID: st.ID, DependsOn: st.Dependencies})
	}

	levels, err := graph.Sort(nodes)
	if err != nil {
		var cycleErr *graph.CycleError
		if errors.As(err, &cycleErr) {
			return models.ExecutionPlan{}, &assistanterrors.DependencyError{
				SubtaskID: cycleErr.Remaining[0],
				Reason:    "dependency cycle in subtask plan: " + err.Error(),
			}
		}
		return models.ExecutionPlan{}, &assistanterrors.ValidationError{Field: "subtasks", Message: err.Error()}
	}

	plan := models.ExecutionPlan{Levels: make([][]models.Subtask, len(levels))}
	for i, level := range levels {
		row := make([]models.Subtask, len(level))
		for j, id := range level {
			row[j] = byID[id]
		}
		plan.Levels[i] = row
	}
	return plan, nil
}

// Result is what Execute returns once every level has run (or the
// execution was aborted by rollback/cancellation).
type Result struct {
	TrackerID string
	Plan      models.ExecutionPlan
	Failed    bool
	Cancelled bool
	Reason    string
}

// Execute runs plan level by level: each level's subtasks dispatch
// concurrently, bounded by config.MaxParallelTasks; levels run strictly
// sequentially so a later level only starts once every earlier-level
// subtask has resolved.
func (o *Orchestrator) Execute(ctx context.Context, executionID string, plan models.ExecutionPlan) Result {
	if o.tracer != nil {
		var span trace.Span
		ctx, span = o.tracer.Start(ctx, "orchestrator.execute", observability.SpanOptions{
			Attributes: []attribute.KeyValue{attribute.Int("orchestrator.level_count", len(plan.Levels))},
		})
		defer span.End()
	}

	all := plan.Subtasks()
	var trackerID string
	if o.tracker != nil {
		trackerID = o.tracker.Start(executionID, all)
	}
	if o.logger != nil {
		o.logger.Info(ctx, "orchestrator: execution started", "execution_id", executionID, "levels", len(plan.Levels), "subtasks", len(all))
	}

	state := newRunState(plan)
	result := Result{TrackerID: trackerID, Plan: plan}

	for _, level := range plan.Levels {
		if ctx.Err() != nil {
			o.cancelRemaining(state, level)
			result.Cancelled = true
			result.Reason = ctx.Err().Error()
			break
		}

		o.runLevel(ctx, trackerID, state, level)

		if state.rollbackTriggered {
			result.Failed = true
			result.Reason = state.failureReason
			break
		}
	}

	result.Plan = state.finalPlan()
	if state.rollbackTriggered {
		o.compensate(ctx, state)
	}
	if ctx.Err() != nil && o.tracker != nil && trackerID != "" {
		_ = o.tracker.Cancel(trackerID)
	}
	if o.logger != nil {
		o.logger.Info(ctx, "orchestrator: execution finished", "execution_id", executionID, "failed", result.Failed, "cancelled", result.Cancelled, "reason", result.Reason)
	}
	return result
}

// runLevel dispatches level's subtasks with a bounded semaphore, grounded
// on internal/tasks/scheduler.go's chan-struct{} capacity-gated goroutine
// pattern.
func (o *Orchestrator) runLevel(ctx context.Context, trackerID string, state *runState, level []models.Subtask) {
	sem := make(chan struct{}, o.config.MaxParallelTasks)
	var wg sync.WaitGroup

	for _, st := range level {
		st := st
		if state.shouldSkip(st) {
			state.markCancelled(st.ID)
			if o.tracker != nil {
				_ = o.tracker.Update(trackerID, st.ID, models.SubtaskCancelled, nil, "skipped: dependency failed")
			}
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			o.runOne(ctx, trackerID, state, st)
		}()
	}

	wg.Wait()
}

func (o *Orchestrator) runOne(ctx context.Context, trackerID string, state *runState, st models.Subtask) {
	if o.tracker != nil {
		_ = o.tracker.Update(trackerID, st.ID, models.SubtaskExecuting, nil, "")
	}

	var span trace.Span
	if o.tracer != nil {
		ctx, span = o.tracer.Start(ctx, "orchestrator.tool_dispatch", observability.SpanOptions{
			Attributes: []attribute.KeyValue{
				attribute.String("subtask.id", st.ID),
				attribute.String("tool.action", st.Action),
			},
		})
		defer span.End()
	}

	start := time.Now()
	resp, err := o.dispatch.Dispatch(ctx, st.Action, st.Entities)
	duration := time.Since(start)
	if err != nil && o.tracer != nil {
		o.tracer.RecordError(span, err)
	}

	if err != nil {
		status := models.SubtaskFailed
		if errors.Is(ctx.Err(), context.Canceled) {
			status = models.SubtaskCancelled
		}
		state.markFinished(st.ID, status, nil, err.Error())
		if o.tracker != nil {
			_ = o.tracker.Update(trackerID, st.ID, status, nil, err.Error())
		}
		if o.metrics != nil {
			o.metrics.SubtaskCompleted(st.Action, string(status), duration)
		}
		if o.logger != nil {
			o.logger.Warn(ctx, "orchestrator: subtask dispatch failed", "subtask_id", st.ID, "action", st.Action, "status", string(status), "error", err.Error())
		}
		if status == models.SubtaskFailed && o.config.RollbackOnFailure {
			state.triggerRollback(st.ID, err.Error())
		}
		return
	}

	state.markFinished(st.ID, models.SubtaskCompleted, &resp, "")
	if o.tracker != nil {
		_ = o.tracker.Update(trackerID, st.ID, models.SubtaskCompleted, &resp, "")
	}
	if o.metrics != nil {
		o.metrics.SubtaskCompleted(st.Action, string(models.SubtaskCompleted), duration)
	}
	if o.logger != nil {
		o.logger.Debug(ctx, "orchestrator: subtask completed", "subtask_id", st.ID, "action", st.Action, "duration_ms", duration.Milliseconds())
	}
}

// cancelRemaining marks every subtask in level (and all not-yet-reached
// levels, via the caller's loop break) as cancelled.
func (o *Orchestrator) cancelRemaining(state *runState, level []models.Subtask) {
	for _, st := range level {
		if state.statusOf(st.ID) == models.SubtaskPending {
			state.markCancelled(st.ID)
		}
	}
}

// compensate invokes, best effort, the declared Compensation action for
// every subtask that completed before a rollback was triggered. Errors are
// swallowed: compensation is best-effort cleanup, not itself retried.
func (o *Orchestrator) compensate(ctx context.Context, state *runState) {
	if o.resolve == nil {
		return
	}
	for _, st := range state.completedBeforeRollback() {
		action, ok := o.resolve.Resolve(st.Action)
		if !ok || action.Compensation == "" {
			continue
		}
		if o.logger != nil {
			o.logger.Info(ctx, "orchestrator: compensating subtask", "subtask_id", st.ID, "compensation", action.Compensation)
		}
		_, _ = o.dispatch.Dispatch(ctx, action.Compensation, st.Entities)
	}
}
