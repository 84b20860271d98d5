package sessionstore

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/assistant-core/pkg/models"
)

// maybeCompact collapses the oldest turns into the session's rolling
// summary once |history| >= threshold, incrementing CompressionLevel.
// turn_count is left untouched — spec.md §4.5 "invariants on turn_count
// remain" — only the retained History slice shrinks.
func maybeCompact(session *models.Session, threshold, keepLastN int) {
	if threshold <= 0 || len(session.History) < threshold {
		return
	}
	if keepLastN <= 0 || keepLastN >= len(session.History) {
		keepLastN = threshold / 2
	}
	cut := len(session.History) - keepLastN
	if cut <= 0 {
		return
	}

	summarized := session.History[:cut]
	session.History = append([]models.Turn(nil), session.History[cut:]...)
	session.Context.Summary = appendSummary(session.Context.Summary, summarized)
	session.Context.CompressionLevel++
}

// appendSummary folds a batch of turns into the existing rolling summary
// string. This is a deterministic, no-LLM summarizer (concatenated
// one-liners) — the teacher's own StrategySummarize instead prompts an LLM,
// but SessionStore has no LLM dependency of its own in this module (that
// belongs to RagClassifier/VotingEngine), so compaction here always behaves
// like the teacher's StrategyLastN+truncation combination.
func appendSummary(existing string, turns []models.Turn) string {
	var b strings.Builder
	if existing != "" {
		b.WriteString(existing)
		b.WriteString("\n")
	}
	for _, t := range turns {
		fmt.Fprintf(&b, "- [%s] intent=%s: %q -> %q\n", t.Timestamp.Format("15:04:05"), t.DetectedIntent, t.UserMessage, t.SystemResponse)
	}
	return strings.TrimRight(b.String(), "\n")
}
