package sites

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseLocaleFloat coerces locale-formatted numeric text ("25 990 €",
// "120.000 km", "15 359,50") to a float. Thousands separators, narrow and
// non-breaking spaces, and unit suffixes are stripped; a comma is treated
// as the decimal separator. Unparseable input yields 0; a candidate with
// a bad price is kept with a zero field, not discarded.
func ParseLocaleFloat(text string) float64 {
	var b strings.Builder
	for _, r := range text {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ',':
			b.WriteRune('.')
		case r == '.':
			// Dots in French listings are thousands separators.
		default:
			// Spaces (including U+00A0 and U+202F), currency signs, and
			// unit suffixes all drop out.
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0
	}
	// Keep only the last decimal point; earlier ones came from commas used
	// as grouping in some listings.
	if first := strings.Index(cleaned, "."); first != strings.LastIndex(cleaned, ".") {
		last := strings.LastIndex(cleaned, ".")
		cleaned = strings.ReplaceAll(cleaned[:last], ".", "") + cleaned[last:]
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return f
}

// slugify lowercases a label and joins its words with dashes, the form
// URL-path marketplaces expect for make and model segments.
func slugify(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(strings.TrimSpace(label)), "-"))
}
