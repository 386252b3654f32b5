package classification

import (
	"strings"
	"unicode"
)

// stopwords are terms too common in tariff descriptions to carry signal.
// "other" alone accounts for thousands of residual tariff lines.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "by": true, "for": true, "from": true,
	"in": true, "is": true, "it": true, "its": true, "nes": true,
	"nesoi": true, "not": true, "of": true, "on": true, "or": true,
	"other": true, "than": true, "that": true, "the": true,
	"their": true, "thereof": true, "this": true, "to": true,
	"whether": true, "with": true, "without": true,
}

// Tokenize normalizes free text into lowercase terms. Runs of letters
// and digits form terms; everything else separates them. Stopwords and
// single-character terms are dropped.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// uniqueTokens tokenizes and deduplicates, preserving first-seen order.
func uniqueTokens(s string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, 8)
	for _, t := range Tokenize(s) {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
