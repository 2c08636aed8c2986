package redact

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// normalizeName lower-cases with full Unicode case mapping and trims
// surrounding whitespace. Inner whitespace is left alone.
func normalizeName(name string) string {
	return strings.TrimSpace(cases.Lower(language.Und).String(name))
}

// NamesMatch reports whether two name strings likely denote the same person:
// equal after normalization, one contained in the other ("Jimmy" and
// "Jimmy John"), or sharing at least one whitespace-separated word.
//
// The empty string is contained in every string, so it matches everything.
// Detections are validated non-empty before they get here.
func NamesMatch(a, b string) bool {
	na, nb := normalizeName(a), normalizeName(b)
	if na == nb {
		return true
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}

	words := make(map[string]struct{})
	for _, w := range strings.Fields(na) {
		words[w] = struct{}{}
	}
	for _, w := range strings.Fields(nb) {
		if _, ok := words[w]; ok {
			return true
		}
	}
	return false
}
