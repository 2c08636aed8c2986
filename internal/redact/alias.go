package redact

import (
	"sort"
	"strconv"
	"strings"
)

const aliasPrefix = "PERSON_"

// Alias formats the k-th alias (1-based).
func Alias(k int) string { return aliasPrefix + strconv.Itoa(k) }

// AliasMapping is the bijection between canonical names and aliases built
// for one request. Aliases lists the aliases in assignment order.
type AliasMapping struct {
	NameToAlias map[string]string
	AliasToName map[string]string
	Aliases     []string
}

// Len returns the number of aliased people.
func (m AliasMapping) Len() int { return len(m.Aliases) }

// AssignAliases numbers the groups PERSON_1..PERSON_n in ascending order of
// canonical name. Sorting is case-sensitive codepoint order, so the result
// depends only on the final set of canonical names, never on detection order.
func AssignAliases(groups *Groups) AliasMapping {
	names := groups.Names()
	sort.Strings(names)

	m := AliasMapping{
		NameToAlias: make(map[string]string, len(names)),
		AliasToName: make(map[string]string, len(names)),
		Aliases:     make([]string, 0, len(names)),
	}
	for i, name := range names {
		alias := Alias(i + 1)
		m.NameToAlias[name] = alias
		m.AliasToName[alias] = name
		m.Aliases = append(m.Aliases, alias)
	}
	return m
}

// aliasNumber extracts k from "PERSON_<k>".
func aliasNumber(alias string) (int, bool) {
	rest, ok := strings.CutPrefix(alias, aliasPrefix)
	if !ok || rest == "" {
		return 0, false
	}
	k, err := strconv.Atoi(rest)
	if err != nil || k < 0 {
		return 0, false
	}
	return k, true
}

// orderAliases returns the non-empty keys of a caller-supplied mapping in
// assignment order: PERSON_<k> keys by k, then any other keys sorted.
func orderAliases(mapping map[string]string) []string {
	out := make([]string, 0, len(mapping))
	for alias := range mapping {
		if alias != "" {
			out = append(out, alias)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ki, okI := aliasNumber(out[i])
		kj, okJ := aliasNumber(out[j])
		switch {
		case okI && okJ && ki != kj:
			return ki < kj
		case okI != okJ:
			return okI
		default:
			return out[i] < out[j]
		}
	})
	return out
}
