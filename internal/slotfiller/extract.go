package slotfiller

import "regexp"

// extractor attempts to pull one slot's value out of an utterance. It
// reports ok=false when the utterance doesn't contain a recognizable
// match, so callers can fall through to the next extraction tier.
type extractor func(utterance string) (any, bool)

var (
	orderIDPattern = regexp.MustCompile(`(?i)\b(?:order\s*#?\s*)?([A-Z]{1,4}-?\d{4,10})\b`)
	emailPattern   = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern   = regexp.MustCompile(`\+?\d[\d\-.\s]{7,14}\d`)
	amountPattern  = regexp.MustCompile(`\$?\s*(\d+(?:\.\d{1,2})?)\s*(?:usd|dollars)?`)
	dateISOPattern = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	yesNoPattern   = regexp.MustCompile(`(?i)\b(yes|yeah|yep|sure|confirm|no|nope|cancel)\b`)
)

func regexExtractor(re *regexp.Regexp) extractor {
	return func(utterance string) (any, bool) {
		m := re.FindStringSubmatch(utterance)
		if m == nil {
			return nil, false
		}
		if len(m) > 1 && m[1] != "" {
			return m[1], true
		}
		return m[0], true
	}
}

func yesNoExtractor(utterance string) (any, bool) {
	m := yesNoPattern.FindStringSubmatch(utterance)
	if m == nil {
		return nil, false
	}
	switch m[1] {
	case "yes", "yeah", "yep", "sure", "confirm":
		return true, true
	default:
		return false, true
	}
}

// defaultPatterns is the built-in regex extraction tier of spec.md §4.7,
// covering the slot shapes common to order-support and scheduling intents.
// Deployments with domain-specific slots register additional patterns via
// Filler.RegisterPattern rather than extending this table.
func defaultPatterns() map[string][]extractor {
	return map[string][]extractor{
		"order_id":     {regexExtractor(orderIDPattern)},
		"email":        {regexExtractor(emailPattern)},
		"phone":        {regexExtractor(phonePattern)},
		"amount":       {regexExtractor(amountPattern)},
		"date":         {regexExtractor(dateISOPattern)},
		"confirmation": {yesNoExtractor},
	}
}
