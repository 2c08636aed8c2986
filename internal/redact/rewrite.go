package redact

import (
	"cmp"
	"slices"
)

// Replacement substitutes Alias for the codepoint range [Start, End).
// Original is the surface form being replaced.
type Replacement struct {
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Alias    string `json:"alias"`
	Original string `json:"original"`
}

// Rewrite applies replacements from the rightmost start to the leftmost, so
// a length change never shifts the offsets of a span still to be applied.
// Replacements must not overlap; that is the detector's contract.
func Rewrite(text string, replacements []Replacement) string {
	if len(replacements) == 0 {
		return text
	}

	ordered := slices.Clone(replacements)
	slices.SortStableFunc(ordered, func(a, b Replacement) int {
		return cmp.Compare(b.Start, a.Start)
	})

	runes := []rune(text)
	for _, r := range ordered {
		alias := []rune(r.Alias)
		out := make([]rune, 0, len(runes)-(r.End-r.Start)+len(alias))
		out = append(out, runes[:r.Start]...)
		out = append(out, alias...)
		out = append(out, runes[r.End:]...)
		runes = out
	}
	return string(runes)
}

// replacementsFor builds one replacement per group member, carrying the
// group's alias.
func replacementsFor(groups *Groups, mapping AliasMapping, text string) []Replacement {
	runes := []rune(text)
	var out []Replacement
	for _, pg := range groups.All() {
		alias := mapping.NameToAlias[pg.Canonical]
		for _, d := range pg.Members {
			out = append(out, Replacement{
				Start:    d.Start,
				End:      d.End,
				Alias:    alias,
				Original: string(runes[d.Start:d.End]),
			})
		}
	}
	return out
}
