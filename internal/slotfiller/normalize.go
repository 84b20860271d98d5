package slotfiller

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalize folds a freshly extracted value into a canonical form before
// it's written into session.Slots: diacritics are stripped and whitespace
// collapsed on strings (order IDs and emails arrive with stray accents and
// padding more often than one would like), everything else passes through
// unchanged.
func normalize(slot string, value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}

	s = norm.NFC.String(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")

	switch slot {
	case "email":
		return strings.ToLower(s)
	case "order_id":
		return strings.ToUpper(s)
	default:
		return s
	}
}
