package redact

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/coregx/ahocorasick"
)

// Mode selects how aliases are restored.
type Mode string

const (
	// ModeBoundary restores aliases in a single leftmost-longest scan. A hit
	// followed by another digit is skipped, so PERSON_1 never matches inside
	// PERSON_10 or PERSON_12, and restored names are never rescanned.
	ModeBoundary Mode = "boundary"

	// ModeSequential replaces each alias globally, one after another, in
	// alias order. PERSON_1 also rewrites the prefix of PERSON_10 when the
	// text contains ten or more people.
	ModeSequential Mode = "sequential"
)

// ParseMode maps a config string to a Mode, defaulting to ModeBoundary.
func ParseMode(s string) Mode {
	if Mode(strings.ToLower(strings.TrimSpace(s))) == ModeSequential {
		return ModeSequential
	}
	return ModeBoundary
}

// Deanonymize restores every alias of mapping (alias -> name) found in text
// that is not followed by a digit. Aliases may touch letters on either side,
// as they do when detections were adjacent or inside a word. Aliases not in
// mapping are left untouched.
func Deanonymize(text string, mapping map[string]string) string {
	out, _ := deanonymizeBoundary(text, mapping)
	return out
}

// DeanonymizeSequential restores aliases with one global literal replacement
// per mapping entry, in alias order.
func DeanonymizeSequential(text string, mapping map[string]string) string {
	out, _ := deanonymizeSequential(text, mapping)
	return out
}

func deanonymizeSequential(text string, mapping map[string]string) (string, int) {
	restored := 0
	for _, alias := range orderAliases(mapping) {
		restored += strings.Count(text, alias)
		text = strings.ReplaceAll(text, alias, mapping[alias])
	}
	return text, restored
}

func deanonymizeBoundary(text string, mapping map[string]string) (string, int) {
	aliases := orderAliases(mapping)
	if text == "" || len(aliases) == 0 {
		return text, 0
	}

	automaton, err := ahocorasick.NewBuilder().
		AddStrings(aliases).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return scanAliases(text, aliases, mapping)
	}

	type span struct{ start, end, pattern int }
	var found []span
	for _, m := range automaton.FindAllOverlapping([]byte(text)) {
		found = append(found, span{m.Start, m.End, m.PatternID})
	}
	// Leftmost first, longest first among equal starts.
	slices.SortFunc(found, func(a, b span) int {
		if c := cmp.Compare(a.start, b.start); c != 0 {
			return c
		}
		return cmp.Compare(b.end, a.end)
	})

	var sb strings.Builder
	sb.Grow(len(text))
	cursor, restored := 0, 0
	for _, s := range found {
		if s.start < cursor || !aliasEndsAt(text, s.end) {
			continue
		}
		sb.WriteString(text[cursor:s.start])
		sb.WriteString(mapping[aliases[s.pattern]])
		cursor = s.end
		restored++
	}
	sb.WriteString(text[cursor:])
	return sb.String(), restored
}

// scanAliases is the same restore without an automaton: at each position try
// aliases longest first.
func scanAliases(text string, aliases []string, mapping map[string]string) (string, int) {
	byLen := slices.Clone(aliases)
	slices.SortStableFunc(byLen, func(a, b string) int { return cmp.Compare(len(b), len(a)) })

	var sb strings.Builder
	restored := 0
	for i := 0; i < len(text); {
		hit := ""
		for _, alias := range byLen {
			if strings.HasPrefix(text[i:], alias) && aliasEndsAt(text, i+len(alias)) {
				hit = alias
				break
			}
		}
		if hit == "" {
			_, size := utf8.DecodeRuneInString(text[i:])
			sb.WriteString(text[i : i+size])
			i += size
			continue
		}
		sb.WriteString(mapping[hit])
		i += len(hit)
		restored++
	}
	return sb.String(), restored
}

// aliasEndsAt reports whether an alias ending at end is complete, that is
// not the prefix of a longer alias number.
func aliasEndsAt(text string, end int) bool {
	if end >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[end:])
	return !unicode.IsDigit(r)
}

// deanonymizeValue walks a JSON-decoded value and restores aliases in every
// string leaf. Object keys and non-string leaves are left as they are.
func deanonymizeValue(v any, restore func(string) string) any {
	switch val := v.(type) {
	case string:
		return restore(val)
	case []any:
		for i, item := range val {
			val[i] = deanonymizeValue(item, restore)
		}
		return val
	case map[string]any:
		for k, item := range val {
			val[k] = deanonymizeValue(item, restore)
		}
		return val
	}
	return v
}
