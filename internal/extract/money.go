package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var priceRe = regexp.MustCompile(`\d[\d.,]*`)

// ParsePrice extracts a canonical decimal amount from raw price text,
// tolerating currency symbols and locale separators ("$1,299.99",
// "1.299,99", "1299"). Returns false when no non-negative amount can be
// parsed.
func ParsePrice(text string) (*float64, bool) {
	raw := priceRe.FindString(text)
	if raw == "" {
		return nil, false
	}

	value, err := strconv.ParseFloat(normalizeSeparators(raw), 64)
	if err != nil || value < 0 {
		return nil, false
	}
	return &value, true
}

// normalizeSeparators rewrites locale separators into a plain decimal form.
// The last separator is the decimal point only when exactly two digits
// follow it; everything else is a thousands separator.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	last := lastDot
	if lastComma > last {
		last = lastComma
	}
	if last == -1 {
		return s
	}

	intPart := s
	fracPart := ""
	if len(s)-last-1 == 2 {
		intPart = s[:last]
		fracPart = s[last+1:]
	}

	intPart = strings.ReplaceAll(intPart, ".", "")
	intPart = strings.ReplaceAll(intPart, ",", "")
	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}
