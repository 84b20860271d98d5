package models

import (
	"fmt"
	"sort"
	"strings"
)

// canonicalizeEntities produces a stable string representation of an
// entities map so it can be used as (part of) a de-duplication key. Keys
// are sorted so map iteration order never affects the result.
func canonicalizeEntities(entities map[string]any) string {
	if len(entities) == 0 {
		return ""
	}
	keys := make([]string, 0, len(entities))
	for k := range entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		fmt.Fprintf(&b, "%s=%v", k, entities[k])
	}
	return b.String()
}

// MergeEntities combines entity maps from multiple votes supporting the
// same winning intent. For each key, the value carried by the vote with the
// highest summed weight*confidence wins (spec.md §4.4).
func MergeEntities(votes []Vote) map[string]any {
	type candidate struct {
		value any
		score float64
	}
	best := map[string]candidate{}
	for _, v := range votes {
		score := v.Weight * v.Confidence
		for k, val := range v.Entities {
			if cur, ok := best[k]; !ok || score > cur.score {
				best[k] = candidate{value: val, score: score}
			}
		}
	}
	if len(best) == 0 {
		return nil
	}
	out := make(map[string]any, len(best))
	for k, c := range best {
		out[k] = c.value
	}
	return out
}

// MergeSubtasks de-duplicates subtasks by action+entities across votes,
// unioning their dependency lists (spec.md §4.4).
func MergeSubtasks(votes []Vote) []Subtask {
	order := make([]string, 0)
	merged := map[string]Subtask{}
	for _, v := range votes {
		for _, st := range v.Subtasks {
			key := st.Key()
			existing, ok := merged[key]
			if !ok {
				merged[key] = st
				order = append(order, key)
				continue
			}
			existing.Dependencies = unionStrings(existing.Dependencies, st.Dependencies)
			merged[key] = existing
		}
	}
	out := make([]Subtask, 0, len(order))
	for _, key := range order {
		out = append(out, merged[key])
	}
	return out
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string(nil), a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
