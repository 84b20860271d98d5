package voting

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/haasonsaas/assistant-core/internal/config"
	"github.com/haasonsaas/assistant-core/internal/llm"
	"github.com/haasonsaas/assistant-core/pkg/models"
)

// fakeClient returns a fixed response string and is safe for concurrent use,
// matching the llm.Client contract jurors fan out against.
type fakeClient struct {
	name string
	text string
	err  error
	slow time.Duration
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if f.slow > 0 {
		select {
		case <-time.After(f.slow):
		case <-ctx.Done():
			return llm.Response{}, ctx.Err()
		}
	}
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Text: f.text}, nil
}

func voteJSON(intent string, confidence float64) string {
	return fmt.Sprintf(`{"intent":%q,"confidence":%f,"entities":{}}`, intent, confidence)
}

func mustJuror(t *testing.T, id string, client llm.Client) Juror {
	t.Helper()
	j, err := NewJuror(RosterEntry{ID: id, Weight: 1}, client)
	if err != nil {
		t.Fatalf("NewJuror(%s): %v", id, err)
	}
	return j
}

func TestNewJuror_SkipsNilClient(t *testing.T) {
	if _, err := NewJuror(RosterEntry{ID: "nope"}, nil); err == nil {
		t.Fatal("expected error for nil client, got nil")
	}
}

func TestEngine_UnanimousRoundOneSkipsDebate(t *testing.T) {
	jurors := []Juror{
		mustJuror(t, "j1", &fakeClient{name: "a", text: voteJSON("order.status", 0.9)}),
		mustJuror(t, "j2", &fakeClient{name: "b", text: voteJSON("order.status", 0.8)}),
		mustJuror(t, "j3", &fakeClient{name: "c", text: voteJSON("order.status", 0.95)}),
	}
	cfg := config.VotingConfig{
		MinVotes:           1,
		VoteTimeout:        time.Second,
		ConsensusMethod:    string(models.MethodWeightedMajority),
		ConsensusThreshold: 0.5,
		DebateRounds:       3,
	}
	e := New(jurors, jurors[0], cfg)
	consensus, votes, err := e.Decide(context.Background(), "classify this")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if consensus.Intent != "order.status" {
		t.Fatalf("intent = %q, want order.status", consensus.Intent)
	}
	if consensus.Agreement != models.AgreementUnanimous {
		t.Fatalf("agreement = %v, want unanimous", consensus.Agreement)
	}
	if len(votes) != 3 {
		t.Fatalf("len(votes) = %d, want 3", len(votes))
	}
}

func TestEngine_DisagreementFallsBackToSingleJuror(t *testing.T) {
	jurors := []Juror{
		mustJuror(t, "j1", &fakeClient{name: "a", text: voteJSON("order.status", 0.4)}),
		mustJuror(t, "j2", &fakeClient{name: "b", text: voteJSON("order.cancel", 0.4)}),
	}
	primary := mustJuror(t, "primary", &fakeClient{name: "p", text: voteJSON("order.status", 0.9)})
	cfg := config.VotingConfig{
		MinVotes:           2,
		VoteTimeout:        time.Second,
		ConsensusMethod:    string(models.MethodWeightedMajority),
		ConsensusThreshold: 0.9,
		DebateRounds:       1,
	}
	e := New(jurors, primary, cfg)
	consensus, votes, err := e.Decide(context.Background(), "classify this")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if consensus.Method != models.MethodSingleLLM {
		t.Fatalf("method = %v, want single_llm_mode", consensus.Method)
	}
	if consensus.Intent != "order.status" {
		t.Fatalf("intent = %q, want order.status", consensus.Intent)
	}
	if len(votes) != 1 {
		t.Fatalf("len(votes) = %d, want 1", len(votes))
	}
}

func TestEngine_NoJurorsErrors(t *testing.T) {
	e := New(nil, nil, config.VotingConfig{MinVotes: 1})
	if _, _, err := e.Decide(context.Background(), "x"); err == nil {
		t.Fatal("expected error with no jurors, got nil")
	}
}

func TestEngine_LateVoteDiscardedByRoundTimeout(t *testing.T) {
	jurors := []Juror{
		mustJuror(t, "fast", &fakeClient{name: "fast", text: voteJSON("help", 0.9)}),
		mustJuror(t, "slow", &fakeClient{name: "slow", text: voteJSON("farewell", 0.9), slow: 200 * time.Millisecond}),
	}
	cfg := config.VotingConfig{
		MinVotes:           1,
		VoteTimeout:        20 * time.Millisecond,
		ConsensusMethod:    string(models.MethodWeightedMajority),
		ConsensusThreshold: 0.1,
		DebateRounds:       1,
	}
	e := New(jurors, jurors[0], cfg)
	consensus, votes, err := e.Decide(context.Background(), "x")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if consensus.Intent != "help" {
		t.Fatalf("intent = %q, want help (slow juror's vote should be discarded)", consensus.Intent)
	}
	for _, v := range votes {
		if v.JurorID == "slow" {
			t.Fatalf("slow juror's late vote was not discarded: %+v", v)
		}
	}
}

func TestConsensusAlgorithms_AgreeOnUnanimousVotes(t *testing.T) {
	votes := []models.Vote{
		{JurorID: "a", Intent: "x", Confidence: 0.8, Weight: 1},
		{JurorID: "b", Intent: "x", Confidence: 0.7, Weight: 1},
	}
	for method := range consensusTable {
		c := resolveConsensus(method, votes, 1)
		if c.Intent != "x" {
			t.Errorf("method %s: intent = %q, want x", method, c.Intent)
		}
	}
}

func TestResolveConsensus_UnknownMethodFallsBackToWeightedMajority(t *testing.T) {
	votes := []models.Vote{
		{JurorID: "a", Intent: "x", Confidence: 0.9, Weight: 1},
	}
	c := resolveConsensus(models.ConsensusMethod("made-up-method"), votes, 1)
	if c.Method != models.MethodWeightedMajority {
		t.Fatalf("method = %v, want weighted-majority fallback", c.Method)
	}
}

func TestWinnerAndAgreement_BelowMinVotesFails(t *testing.T) {
	scores := map[string]float64{"x": 1.0}
	_, _, agreement := winnerAndAgreement(scores, 1, 3)
	if agreement != models.AgreementFailed {
		t.Fatalf("agreement = %v, want failed", agreement)
	}
}

func TestWinnerAndAgreement_SplitOnTie(t *testing.T) {
	scores := map[string]float64{"x": 1.0, "y": 1.0}
	_, _, agreement := winnerAndAgreement(scores, 2, 1)
	if agreement != models.AgreementSplit {
		t.Fatalf("agreement = %v, want split", agreement)
	}
}

func TestParseVote_RejectsMissingIntent(t *testing.T) {
	if _, err := parseVote(`{"confidence": 0.5}`); err == nil {
		t.Fatal("expected error for missing intent, got nil")
	}
}

func TestParseVote_ToleratesSurroundingProse(t *testing.T) {
	v, err := parseVote("Sure, here's my vote:\n" + voteJSON("help", 0.6) + "\nHope that helps!")
	if err != nil {
		t.Fatalf("parseVote: %v", err)
	}
	if v.Intent != "help" {
		t.Fatalf("intent = %q, want help", v.Intent)
	}
}
