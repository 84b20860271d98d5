package voting

import (
	"sort"

	"github.com/haasonsaas/assistant-core/pkg/models"
)

// consensusFunc computes a winning intent and confidence from a set of
// votes. minVotes is the configured floor below which agreement is
// automatically "failed" regardless of how the remaining votes split.
type consensusFunc func(votes []models.Vote, minVotes int) models.Consensus

// consensusTable dispatches a models.ConsensusMethod to its algorithm.
// Unknown method names fall back to weighted-majority (spec.md §9).
var consensusTable = map[models.ConsensusMethod]consensusFunc{
	models.MethodWeightedMajority:   weightedMajority,
	models.MethodPlurality:          plurality,
	models.MethodConfidenceWeighted: confidenceWeighted,
	models.MethodBordaCount:         bordaCount,
	models.MethodCondorcet:          condorcet,
	models.MethodApproval:           approval,
}

// resolveConsensus looks up method in consensusTable, defaulting to
// weighted-majority for unknown or empty method names.
func resolveConsensus(method models.ConsensusMethod, votes []models.Vote, minVotes int) models.Consensus {
	fn, ok := consensusTable[method]
	if !ok {
		fn = weightedMajority
	}
	c := fn(votes, minVotes)
	c.Method = method
	if !ok {
		c.Method = models.MethodWeightedMajority
	}
	return c
}

// tally sums a per-intent score and per-intent raw vote count, used by
// every algorithm below to compute the winner and the agreement level.
func tally(votes []models.Vote, score func(models.Vote) float64) (map[string]float64, map[string]int) {
	scores := make(map[string]float64)
	counts := make(map[string]int)
	for _, v := range votes {
		scores[v.Intent] += score(v)
		counts[v.Intent]++
	}
	return scores, counts
}

// winnerAndAgreement picks the argmax intent from scores and classifies
// agreement per spec.md §4.4's weighted-majority rules, which this package
// reuses for every algorithm since they all resolve to "one winning intent
// plus an agreement qualifier".
func winnerAndAgreement(scores map[string]float64, totalVotes, minVotes int) (string, float64, models.AgreementLevel) {
	if totalVotes < minVotes {
		return "", 0, models.AgreementFailed
	}

	type pair struct {
		intent string
		score  float64
	}
	ranked := make([]pair, 0, len(scores))
	for intent, score := range scores {
		ranked = append(ranked, pair{intent, score})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) == 0 {
		return "", 0, models.AgreementFailed
	}

	winner := ranked[0]
	var total float64
	for _, r := range ranked {
		total += r.score
	}
	if total == 0 {
		return winner.intent, 0, models.AgreementFailed
	}

	share := winner.score / total
	switch {
	case len(ranked) == 1:
		return winner.intent, share, models.AgreementUnanimous
	case len(ranked) >= 2 && ranked[0].score == ranked[1].score:
		return winner.intent, share, models.AgreementSplit
	case share > 0.5:
		return winner.intent, share, models.AgreementMajority
	default:
		return winner.intent, share, models.AgreementPlurality
	}
}

func weightedMajority(votes []models.Vote, minVotes int) models.Consensus {
	scores, _ := tally(votes, func(v models.Vote) float64 { return v.Weight * v.Confidence })
	intent, confidence, agreement := winnerAndAgreement(scores, len(votes), minVotes)
	return models.Consensus{Intent: intent, Confidence: confidence, Agreement: agreement}
}

func plurality(votes []models.Vote, minVotes int) models.Consensus {
	_, counts := tally(votes, nil)
	scores := make(map[string]float64, len(counts))
	for intent, n := range counts {
		scores[intent] = float64(n)
	}
	intent, _, agreement := winnerAndAgreement(scores, len(votes), minVotes)
	confidence := 0.0
	if len(votes) > 0 {
		confidence = scores[intent] / float64(len(votes))
	}
	return models.Consensus{Intent: intent, Confidence: confidence, Agreement: agreement}
}

func confidenceWeighted(votes []models.Vote, minVotes int) models.Consensus {
	scores, _ := tally(votes, func(v models.Vote) float64 { return v.Confidence })
	intent, confidence, agreement := winnerAndAgreement(scores, len(votes), minVotes)
	return models.Consensus{Intent: intent, Confidence: confidence, Agreement: agreement}
}

// bordaCount treats each juror's single proposed intent as their top
// preference and every other candidate intent as tied for last, which is
// the only ranking a single-intent Vote can express; intents with more
// distinct supporters accumulate more points under this scheme.
func bordaCount(votes []models.Vote, minVotes int) models.Consensus {
	candidates := map[string]bool{}
	for _, v := range votes {
		candidates[v.Intent] = true
	}
	n := len(candidates)
	scores := make(map[string]float64, n)
	for _, v := range votes {
		scores[v.Intent] += float64(n - 1)
	}
	intent, confidence, agreement := winnerAndAgreement(scores, len(votes), minVotes)
	return models.Consensus{Intent: intent, Confidence: confidence, Agreement: agreement}
}

// condorcet finds an intent preferred by a majority in every pairwise
// matchup, using confidence-weighted vote mass as the pairwise preference
// signal; when no such intent exists (a cycle), it falls back to
// weighted-majority per spec.md §4.4.
func condorcet(votes []models.Vote, minVotes int) models.Consensus {
	scores, _ := tally(votes, func(v models.Vote) float64 { return v.Weight * v.Confidence })
	candidates := make([]string, 0, len(scores))
	for intent := range scores {
		candidates = append(candidates, intent)
	}

	for _, c := range candidates {
		beatsAll := true
		for _, other := range candidates {
			if other == c {
				continue
			}
			if scores[c] <= scores[other] {
				beatsAll = false
				break
			}
		}
		if beatsAll {
			intent, confidence, agreement := winnerAndAgreement(scores, len(votes), minVotes)
			_ = intent
			return models.Consensus{Intent: c, Confidence: confidence, Agreement: agreement}
		}
	}
	return weightedMajority(votes, minVotes)
}

// approval treats every vote with confidence above 0.5 as an "approval" of
// its intent; the most-approved intent wins.
func approval(votes []models.Vote, minVotes int) models.Consensus {
	scores := make(map[string]float64)
	for _, v := range votes {
		if v.Confidence >= 0.5 {
			scores[v.Intent]++
		}
	}
	if len(scores) == 0 {
		return models.Consensus{Agreement: models.AgreementFailed}
	}
	intent, confidence, agreement := winnerAndAgreement(scores, len(votes), minVotes)
	return models.Consensus{Intent: intent, Confidence: confidence, Agreement: agreement}
}
