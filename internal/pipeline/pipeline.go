// Package pipeline wires C1-C10 together into the single conversational
// turn spec.md §1's OVERVIEW describes: classify -> (vote) -> fill slots ->
// decompose -> orchestrate -> respond. It is the concrete caller every
// gateway/CLI entry point drives through for one message.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/assistant-core/internal/config"
	"github.com/haasonsaas/assistant-core/internal/decomposer"
	"github.com/haasonsaas/assistant-core/internal/intentcatalog"
	"github.com/haasonsaas/assistant-core/internal/observability"
	"github.com/haasonsaas/assistant-core/internal/orchestrator"
	"github.com/haasonsaas/assistant-core/internal/progress"
	"github.com/haasonsaas/assistant-core/internal/ragclassifier"
	"github.com/haasonsaas/assistant-core/internal/sessionstore"
	"github.com/haasonsaas/assistant-core/internal/slotfiller"
	"github.com/haasonsaas/assistant-core/internal/voting"
	"github.com/haasonsaas/assistant-core/pkg/models"
)

// Pipeline holds one already-constructed instance of every stage. All
// fields besides classifier/catalog/sessions/slots/orchestrate are
// optional: voting may be nil (single-model mode), decompose may be nil
// (decomposer.enabled=false routes tool_action straight to a single
// subtask), tracker may be nil (progress not reported).
type Pipeline struct {
	classifier  *ragclassifier.Classifier
	jury        *voting.Engine
	catalog     *intentcatalog.Catalog
	sessions    sessionstore.Store
	slots       *slotfiller.Filler
	decompose   *decomposer.Decomposer
	orchestrate *orchestrator.Orchestrator
	tracker     *progress.Tracker
	cfg         config.Config

	tracer         *observability.Tracer
	tracerShutdown func(context.Context) error
	logger         *observability.Logger
}

// New builds a Pipeline from its already-wired dependencies. tracer may be
// the no-op tracer observability.NewTracer returns when tracing is
// disabled in config; shutdown is whatever that same call returned and is
// invoked once by Close. logger may be nil, in which case HandleMessage and
// its helpers skip logging entirely.
func New(
	classifier *ragclassifier.Classifier,
	jury *voting.Engine,
	catalog *intentcatalog.Catalog,
	sessions sessionstore.Store,
	slots *slotfiller.Filler,
	decompose *decomposer.Decomposer,
	orchestrate *orchestrator.Orchestrator,
	tracker *progress.Tracker,
	cfg config.Config,
	tracer *observability.Tracer,
	shutdown func(context.Context) error,
	logger *observability.Logger,
) *Pipeline {
	return &Pipeline{
		classifier:     classifier,
		jury:           jury,
		catalog:        catalog,
		sessions:       sessions,
		slots:          slots,
		decompose:      decompose,
		orchestrate:    orchestrate,
		tracker:        tracker,
		cfg:            cfg,
		tracer:         tracer,
		tracerShutdown: shutdown,
		logger:         logger,
	}
}

// Close releases the pipeline's tracer exporter. Safe to call even when
// tracing was never enabled.
func (p *Pipeline) Close(ctx context.Context) error {
	if p.tracerShutdown == nil {
		return nil
	}
	return p.tracerShutdown(ctx)
}

// HandleMessage runs one full turn for req, returning the wire response
// spec.md §6 names (ConversationMessageResponse) and persisting the
// updated session.
func (p *Pipeline) HandleMessage(ctx context.Context, req models.ClassificationRequest) (models.ConversationMessageResponse, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.handle_message", observability.SpanOptions{
		Kind:       trace.SpanKindServer,
		Attributes: []attribute.KeyValue{attribute.String("session_id", req.SessionID)},
	})
	defer span.End()

	session, err := p.resolveSession(ctx, req)
	if err != nil {
		err = fmt.Errorf("pipeline: resolving session: %w", err)
		p.tracer.RecordError(span, err)
		if p.logger != nil {
			p.logger.Error(ctx, "pipeline: failed to resolve session", "error", err.Error())
		}
		return models.ConversationMessageResponse{}, err
	}
	p.tracer.SetAttributes(span, "session_id", session.ID)
	if p.logger != nil {
		p.logger.Debug(ctx, "pipeline: handling message", "session_id", session.ID, "session_state", string(session.State))
	}

	start := time.Now()
	var (
		responseText string
		nextQuestion string
		consensus    *models.Consensus
		execView     *models.ConversationExecutionView
	)

	if session.State == models.SessionWaitingSlots && session.CurrentIntent != "" {
		responseText, nextQuestion, execView, err = p.continueSlotFilling(ctx, session, req.Text)
	} else {
		responseText, nextQuestion, consensus, execView, err = p.classifyAndRoute(ctx, session, req)
	}

	if err != nil {
		p.tracer.RecordError(span, err)
		if p.logger != nil {
			p.logger.Error(ctx, "pipeline: turn failed", "session_id", session.ID, "error", err.Error())
		}
		_ = session.Transition(models.SessionError)
		p.recordTurn(session, req.Text, err.Error(), start)
		_ = p.sessions.Save(ctx, session)
		return models.ConversationMessageResponse{}, err
	}

	p.recordTurn(session, req.Text, responseText, start)
	if err := p.sessions.Save(ctx, session); err != nil {
		return models.ConversationMessageResponse{}, fmt.Errorf("pipeline: saving session: %w", err)
	}

	return models.ConversationMessageResponse{
		SessionID:    session.ID,
		State:        session.State,
		ResponseText: responseText,
		NextQuestion: nextQuestion,
		Consensus:    consensus,
		Execution:    execView,
	}, nil
}

func (p *Pipeline) resolveSession(ctx context.Context, req models.ClassificationRequest) (*models.Session, error) {
	if req.SessionID != "" {
		session, err := p.sessions.Get(ctx, req.SessionID)
		if err == nil && session != nil {
			return session, nil
		}
	}
	return p.sessions.Create(ctx, req.UserID)
}

// continueSlotFilling handles a message arriving while the session is
// waiting_slots: it is routed straight to the Filler for the intent
// already in progress, never re-classified (spec.md §4.6).
func (p *Pipeline) continueSlotFilling(ctx context.Context, session *models.Session, text string) (string, string, *models.ConversationExecutionView, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.continue_slot_filling")
	defer span.End()

	intent, ok := p.catalog.Lookup(session.CurrentIntent)
	if !ok {
		err := fmt.Errorf("pipeline: session references unknown intent %q", session.CurrentIntent)
		p.tracer.RecordError(span, err)
		return "", "", nil, err
	}

	result, err := p.slots.Fill(ctx, intent, text, session)
	if err != nil {
		p.tracer.RecordError(span, err)
		return "", "", nil, err
	}
	if !result.Complete {
		if p.logger != nil {
			p.logger.Info(ctx, "pipeline: still waiting on slot", "session_id", session.ID, "intent_id", intent.ID, "question", result.Question)
		}
		return "", result.Question, nil, nil
	}

	return p.dispatch(ctx, session, intent, text)
}

// classifyAndRoute handles a message arriving in any other state: classify,
// optionally put the result through the jury, then fall into the same
// slot-filling/dispatch path continueSlotFilling uses once an intent is
// decided.
func (p *Pipeline) classifyAndRoute(ctx context.Context, session *models.Session, req models.ClassificationRequest) (string, string, *models.Consensus, *models.ConversationExecutionView, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.classify_and_route")
	defer span.End()

	utterance := models.Utterance{Text: req.Text, ContextMetadata: req.ContextMetadata, Audio: req.AudioMetadata}

	result, err := p.classifier.Classify(ctx, utterance, session.Context, req)
	if err != nil {
		p.tracer.RecordError(span, err)
		return "", "", nil, nil, err
	}
	p.tracer.SetAttributes(span, "classifier.intent_id", result.IntentID, "classifier.confidence", result.Confidence)
	if p.logger != nil {
		p.logger.Debug(ctx, "pipeline: classified utterance", "session_id", session.ID, "intent_id", result.IntentID, "confidence", result.Confidence)
	}

	intentID := result.IntentID
	entities := result.Entities

	var consensus *models.Consensus
	if p.jury != nil && p.cfg.Voting.Enabled {
		voteCtx, voteSpan := p.tracer.Start(ctx, "pipeline.jury_vote")
		decided, _, voteErr := p.jury.Decide(voteCtx, votingPrompt(req.Text, result))
		if voteErr != nil {
			p.tracer.RecordError(voteSpan, voteErr)
			if p.logger != nil {
				p.logger.Warn(ctx, "pipeline: jury vote failed", "session_id", session.ID, "error", voteErr.Error())
			}
		} else if decided.Intent != "" && decided.Intent != "unknown" {
			consensus = &decided
			intentID = decided.Intent
			entities = mergeEntities(entities, decided.MergedEntities)
			p.tracer.SetAttributes(voteSpan, "voting.intent", decided.Intent, "voting.confidence", decided.Confidence)
			if p.logger != nil {
				p.logger.Debug(ctx, "pipeline: jury decided intent", "session_id", session.ID, "intent_id", decided.Intent, "confidence", decided.Confidence)
			}
		}
		voteSpan.End()
	}

	intent, ok := p.catalog.Lookup(intentID)
	if !ok {
		return "I'm not sure how to help with that yet.", "", consensus, nil, nil
	}

	session.CurrentIntent = intent.ID
	if session.Slots == nil {
		session.Slots = map[string]any{}
	}
	for k, v := range entities {
		session.Slots[k] = v
	}
	if session.State != models.SessionActive {
		_ = session.Transition(models.SessionActive)
	}

	fillResult, err := p.slots.Fill(ctx, intent, req.Text, session)
	if err != nil {
		return "", "", consensus, nil, err
	}
	if !fillResult.Complete {
		_ = session.Transition(models.SessionWaitingSlots)
		if p.logger != nil {
			p.logger.Info(ctx, "pipeline: waiting on slot", "session_id", session.ID, "intent_id", intent.ID, "question", fillResult.Question)
		}
		return "", fillResult.Question, consensus, nil, nil
	}

	text, question, view, err := p.dispatch(ctx, session, intent, req.Text)
	return text, question, consensus, view, err
}

// dispatch decomposes the filled intent into subtasks, plans and executes
// them, and summarizes the outcome.
func (p *Pipeline) dispatch(ctx context.Context, session *models.Session, intent models.IntentDefinition, utterance string) (string, string, *models.ConversationExecutionView, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.dispatch", observability.SpanOptions{
		Attributes: []attribute.KeyValue{attribute.String("intent_id", intent.ID)},
	})
	defer span.End()

	if session.State != models.SessionExecuting {
		if err := session.Transition(models.SessionExecuting); err != nil {
			p.tracer.RecordError(span, err)
			return "", "", nil, err
		}
	}

	if intent.IsInformational() || p.decompose == nil || !p.cfg.Decomposer.Enabled {
		_ = session.Transition(models.SessionCompleted)
		return "Got it.", "", nil, nil
	}

	subtasks, err := p.decompose.Decompose(ctx, utterance, intent, session.Slots, session.Context)
	if err != nil {
		p.tracer.RecordError(span, err)
		return "", "", nil, err
	}
	if len(subtasks) == 0 {
		_ = session.Transition(models.SessionCompleted)
		return "Got it.", "", nil, nil
	}

	plan, err := orchestrator.Plan(subtasks)
	if err != nil {
		p.tracer.RecordError(span, err)
		return "", "", nil, err
	}
	p.tracer.SetAttributes(span, "orchestrator.subtask_count", len(subtasks), "orchestrator.plan_levels", len(plan.Levels))

	execResult := p.orchestrate.Execute(ctx, session.ID+":"+uuid.NewString(), plan)
	if execResult.Failed {
		p.tracer.AddEvent(span, "execution_failed", "reason", execResult.Reason)
		if p.logger != nil {
			p.logger.Error(ctx, "pipeline: execution failed", "session_id", session.ID, "intent_id", intent.ID, "reason", execResult.Reason)
		}
		_ = session.Transition(models.SessionError)
	} else {
		if p.logger != nil {
			p.logger.Info(ctx, "pipeline: execution completed", "session_id", session.ID, "intent_id", intent.ID, "tracker_id", execResult.TrackerID)
		}
		_ = session.Transition(models.SessionCompleted)
	}

	view := &models.ConversationExecutionView{TrackerID: execResult.TrackerID, PlanLevels: len(execResult.Plan.Levels)}
	return summarizeExecution(execResult), "", view, nil
}

func (p *Pipeline) recordTurn(session *models.Session, userMessage, response string, start time.Time) {
	now := time.Now()
	session.History = append(session.History, models.Turn{
		ID:               uuid.NewString(),
		UserMessage:      userMessage,
		SystemResponse:   response,
		DetectedIntent:   session.CurrentIntent,
		ProcessingTimeMS: now.Sub(start).Milliseconds(),
		Timestamp:        now,
	})
	session.TurnCount = len(session.History)
	session.UpdatedAt = now
	session.LastActivity = now
}

func mergeEntities(base, override map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

func votingPrompt(utterance string, classified models.ClassificationResult) string {
	return fmt.Sprintf(
		"Utterance: %q\nClassifier's top intent: %s (confidence %.2f)\nDecide the correct intent for this utterance.",
		utterance, classified.IntentID, classified.Confidence,
	)
}

func summarizeExecution(result orchestrator.Result) string {
	if result.Cancelled {
		return "Execution was cancelled."
	}
	if result.Failed {
		return fmt.Sprintf("Something went wrong: %s", result.Reason)
	}
	return "Done."
}
