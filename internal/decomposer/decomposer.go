// Package decomposer implements C8 SubtaskDecomposer: splitting a resolved
// intent's utterance into an ordered, dependency-annotated set of Subtasks
// an Orchestrator can schedule.
package decomposer

import (
	"context"

	"github.com/haasonsaas/assistant-core/internal/assistanterrors"
	"github.com/haasonsaas/assistant-core/internal/graph"
	"github.com/haasonsaas/assistant-core/internal/llm"
	"github.com/haasonsaas/assistant-core/internal/toolregistry"
	"github.com/haasonsaas/assistant-core/pkg/models"
)

// Resolver is the subset of toolregistry.Registry a Decomposer needs:
// confirming a subtask's action actually resolves to a registered tool.
type Resolver interface {
	Resolve(qualifiedName string) (models.ToolAction, bool)
}

var _ Resolver = (*toolregistry.Registry)(nil)

// Decomposer turns one utterance into a validated Subtask list per
// spec.md §4.8's contract: every action must resolve in the ToolRegistry,
// every dependency must name another subtask in the same list, and the
// resulting graph must be acyclic.
type Decomposer struct {
	client      llm.Client
	tools       Resolver
	maxSubtasks int
}

// New builds a Decomposer. client may be nil, in which case every
// utterance falls back to the single-subtask-from-intent shape.
func New(client llm.Client, tools Resolver, maxSubtasks int) *Decomposer {
	if maxSubtasks <= 0 {
		maxSubtasks = 10
	}
	return &Decomposer{client: client, tools: tools, maxSubtasks: maxSubtasks}
}

// Decompose produces the Subtask list for one resolved intent. It never
// returns an invalid plan: subtasks with unresolved actions or dependency
// problems are dropped rather than surfaced, falling back to the
// single-subtask shape if nothing usable survives.
func (d *Decomposer) Decompose(ctx context.Context, utterance string, intent models.IntentDefinition, entities map[string]any, sessionCtx models.SessionContext) ([]models.Subtask, error) {
	var fallback []models.Subtask
	if intent.ToolAction != "" {
		fallback = []models.Subtask{fallbackSubtask(intent, entities)}
	}

	if d.client == nil {
		return fallback, nil
	}

	resp, err := d.client.Complete(ctx, d.buildRequest(utterance, intent, entities, sessionCtx))
	if err != nil {
		return fallback, nil
	}

	raw, ok := parseSubtasks(resp.Text)
	if !ok || len(raw) == 0 {
		return fallback, nil
	}

	subtasks := toModelSubtasks(raw)
	if len(subtasks) > d.maxSubtasks {
		subtasks = subtasks[:d.maxSubtasks]
	}

	valid := d.validate(subtasks)
	if len(valid) == 0 {
		return fallback, nil
	}
	return valid, nil
}

// validate drops subtasks whose action doesn't resolve in the
// ToolRegistry, strips dangling dependency references left behind by a
// drop, then confirms the remainder is acyclic — dropping subtasks one at
// a time (by id, descending priority last) until graph.Sort succeeds,
// exactly as spec.md §4.8 allows ("drop the offending subtask... never
// return an invalid plan").
func (d *Decomposer) validate(subtasks []models.Subtask) []models.Subtask {
	kept := make([]models.Subtask, 0, len(subtasks))
	for _, st := range subtasks {
		if d.tools == nil {
			kept = append(kept, st)
			continue
		}
		if _, ok := d.tools.Resolve(st.Action); ok {
			kept = append(kept, st)
		}
	}

	kept = dropDanglingDependencies(kept)

	for {
		if len(kept) == 0 {
			return kept
		}
		if _, err := graph.Sort(toNodes(kept)); err == nil {
			return kept
		} else if cycleErr, ok := err.(*graph.CycleError); ok && len(cycleErr.Remaining) > 0 {
			kept = dropByID(kept, cycleErr.Remaining[0])
			kept = dropDanglingDependencies(kept)
			continue
		} else {
			return nil
		}
	}
}

func toNodes(subtasks []models.Subtask) []graph.Node {
	nodes := make([]graph.Node, len(subtasks))
	for i, st := range subtasks {
		nodes[i] = graph.Node{ID: st.ID, DependsOn: st.Dependencies}
	}
	return nodes
}

func dropByID(subtasks []models.Subtask, id string) []models.Subtask {
	out := make([]models.Subtask, 0, len(subtasks))
	for _, st := range subtasks {
		if st.ID != id {
			out = append(out, st)
		}
	}
	return out
}

// dropDanglingDependencies removes references to ids no longer present in
// the set, so a subtask that lost a dependency to validation isn't left
// pointing at a ghost.
func dropDanglingDependencies(subtasks []models.Subtask) []models.Subtask {
	present := make(map[string]bool, len(subtasks))
	for _, st := range subtasks {
		present[st.ID] = true
	}
	out := make([]models.Subtask, len(subtasks))
	for i, st := range subtasks {
		clone := st
		var deps []string
		for _, dep := range st.Dependencies {
			if present[dep] {
				deps = append(deps, dep)
			}
		}
		clone.Dependencies = deps
		out[i] = clone
	}
	return out
}

func fallbackSubtask(intent models.IntentDefinition, entities map[string]any) models.Subtask {
	return models.Subtask{
		ID:       "t1",
		Action:   intent.ToolAction,
		Entities: entities,
		Status:   models.SubtaskPending,
	}
}

// ErrNoSubtasks is surfaced only when a non-nil Decomposer is asked to
// decompose an intent with no tool_action and the model returns nothing
// usable — there is no fallback action to dispatch.
var ErrNoSubtasks = &assistanterrors.ValidationError{Field: "subtasks", Message: "decomposer produced no usable subtask and intent has no tool_action to fall back to"}
