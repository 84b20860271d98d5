package voting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haasonsaas/assistant-core/internal/assistanterrors"
	"github.com/haasonsaas/assistant-core/internal/config"
	"github.com/haasonsaas/assistant-core/pkg/models"
)

// Engine is C5 VotingEngine.
type Engine struct {
	jurors  []Juror
	primary Juror
	cfg     config.VotingConfig
}

// New builds an Engine from a roster of already-constructed jurors. primary
// is used for the single_llm_mode fallback and should be the first
// roster entry that built successfully.
func New(jurors []Juror, primary Juror, cfg config.VotingConfig) *Engine {
	return &Engine{jurors: jurors, primary: primary, cfg: cfg}
}

// Decide runs round 1 (fan-out), resolves consensus, and runs debate rounds
// 2..R as needed, per spec.md §4.4.
func (e *Engine) Decide(ctx context.Context, basePrompt string) (models.Consensus, []models.Vote, error) {
	if len(e.jurors) == 0 {
		return models.Consensus{}, nil, fmt.Errorf("voting: no jurors available")
	}

	votes := e.round(ctx, basePrompt, nil)
	consensus, usable := e.resolve(votes)

	rounds := e.cfg.DebateRounds
	for round := 2; round <= rounds && consensus.Agreement != models.AgreementUnanimous; round++ {
		prevConfidence := consensus.Confidence
		debated := e.round(ctx, basePrompt, votes)
		next, nextUsable := e.resolve(debated)
		if next.Confidence-prevConfidence < e.improvementFloor() {
			break
		}
		votes, usable, consensus = debated, nextUsable, next
	}

	if consensus.Agreement == models.AgreementFailed || consensus.Intent == "" || consensus.Intent == "unknown" ||
		consensus.Confidence < e.cfg.ConsensusThreshold {
		return e.singleJurorFallback(ctx, basePrompt)
	}

	consensus.MergedEntities = models.MergeEntities(usable)
	consensus.MergedSubtasks = models.MergeSubtasks(usable)
	return consensus, usable, nil
}

func (e *Engine) improvementFloor() float64 {
	if e.cfg.ImprovementFloor > 0 {
		return e.cfg.ImprovementFloor
	}
	return 0.10
}

// round fans out to every juror concurrently and collects votes until every
// juror finishes or the round timeout elapses; late votes are discarded
// (spec.md §4.4 "Round 1").
func (e *Engine) round(ctx context.Context, basePrompt string, priorVotes []models.Vote) []models.Vote {
	timeout := e.cfg.VoteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	roundCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var votes []models.Vote

	for _, j := range e.jurors {
		wg.Add(1)
		go func(j Juror) {
			defer wg.Done()
			prompt := basePrompt
			if priorVotes != nil {
				prompt = basePrompt + "\n\n" + debateContext(j.ID(), priorVotes)
			}
			vote, err := j.ProposeIntent(roundCtx, prompt)
			if err != nil {
				return
			}
			mu.Lock()
			votes = append(votes, vote)
			mu.Unlock()
		}(j)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-roundCtx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	return append([]models.Vote(nil), votes...)
}

// debateContext renders every other juror's previous vote (excluding the
// recipient's own) plus an instruction to reconsider (spec.md §4.4
// "Debate").
func debateContext(selfID string, priorVotes []models.Vote) string {
	out := "Other jurors' previous votes:\n"
	for _, v := range priorVotes {
		if v.JurorID == selfID {
			continue
		}
		out += fmt.Sprintf("- %s proposed intent=%q confidence=%.2f\n", v.JurorID, v.Intent, v.Confidence)
	}
	out += "\nReconsider your vote in light of the above and respond again with the same JSON shape."
	return out
}

func (e *Engine) resolve(votes []models.Vote) (models.Consensus, []models.Vote) {
	minVotes := e.cfg.MinVotes
	if minVotes <= 0 {
		minVotes = 1
	}
	method := models.ConsensusMethod(e.cfg.ConsensusMethod)
	consensus := resolveConsensus(method, votes, minVotes)

	usable := make([]models.Vote, 0, len(votes))
	for _, v := range votes {
		if v.Intent == consensus.Intent {
			usable = append(usable, v)
		}
	}
	return consensus, usable
}

// singleJurorFallback calls the primary juror alone with a compact
// classification prompt when the jury as a whole fails to converge
// (spec.md §4.4 "Fallback").
func (e *Engine) singleJurorFallback(ctx context.Context, basePrompt string) (models.Consensus, []models.Vote, error) {
	if e.primary == nil {
		return models.Consensus{}, nil, &assistanterrors.ConsensusFailure{
			ValidVotes: 0,
			MinVotes:   e.cfg.MinVotes,
			Reason:     "jury failed to converge and no primary juror is configured for fallback",
		}
	}
	vote, err := e.primary.ProposeIntent(ctx, basePrompt)
	if err != nil {
		return models.Consensus{}, nil, &assistanterrors.ConsensusFailure{
			ValidVotes: 0,
			MinVotes:   e.cfg.MinVotes,
			Reason:     fmt.Sprintf("single-juror fallback failed: %v", err),
		}
	}
	vote.JurorID = e.primary.ID()
	return models.Consensus{
		Intent:         vote.Intent,
		Confidence:     vote.Confidence,
		Agreement:      models.AgreementUnanimous,
		Method:         models.MethodSingleLLM,
		MergedEntities: vote.Entities,
		MergedSubtasks: vote.Subtasks,
	}, []models.Vote{vote}, nil
}
