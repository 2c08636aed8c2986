package redact

import "unicode/utf8"

// PersonGroup is a cluster of detections believed to name one person.
// Canonical is the longest surface form seen so far (first seen wins ties).
type PersonGroup struct {
	Canonical string
	Members   []Detection
}

// Groups is an ordered set of person groups indexed by canonical name.
// Iteration order is the order in which groups were created or last
// re-keyed; GroupPeople scans it in that order.
type Groups struct {
	order []*PersonGroup
	index map[string]*PersonGroup
}

func newGroups() *Groups {
	return &Groups{index: make(map[string]*PersonGroup)}
}

// Len returns the number of distinct people.
func (g *Groups) Len() int { return len(g.order) }

// All returns the groups in iteration order.
func (g *Groups) All() []*PersonGroup {
	out := make([]*PersonGroup, len(g.order))
	copy(out, g.order)
	return out
}

// Get looks a group up by its current canonical name.
func (g *Groups) Get(canonical string) (*PersonGroup, bool) {
	pg, ok := g.index[canonical]
	return pg, ok
}

// Names returns the canonical names in iteration order.
func (g *Groups) Names() []string {
	out := make([]string, len(g.order))
	for i, pg := range g.order {
		out[i] = pg.Canonical
	}
	return out
}

func (g *Groups) firstMatch(surface string) *PersonGroup {
	for _, pg := range g.order {
		if NamesMatch(surface, pg.Canonical) {
			return pg
		}
	}
	return nil
}

func (g *Groups) add(pg *PersonGroup) {
	g.order = append(g.order, pg)
	g.index[pg.Canonical] = pg
}

func (g *Groups) remove(pg *PersonGroup) {
	for i, cur := range g.order {
		if cur == pg {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	delete(g.index, pg.Canonical)
}

// rekey promotes name to canonical for pg. The group leaves its old slot and
// is appended as a new entry. If another group already holds name, the
// members are merged into it so no detection is dropped.
func (g *Groups) rekey(pg *PersonGroup, name string) {
	g.remove(pg)
	if existing, ok := g.index[name]; ok {
		g.remove(existing)
		existing.Members = append(existing.Members, pg.Members...)
		g.add(existing)
		return
	}
	pg.Canonical = name
	g.add(pg)
}

// GroupPeople clusters detections in one left-to-right pass. Each surface
// form joins the first group, in iteration order, whose canonical name it
// matches; a longer surface form then becomes that group's canonical name.
//
// Clustering is greedy and not transitive: a detection that matches two
// groups joins the first one and the groups stay separate.
//
// Detections must already be valid for text (see ValidateDetections).
func GroupPeople(detections []Detection, text string) *Groups {
	runes := []rune(text)
	groups := newGroups()

	for _, d := range detections {
		surface := string(runes[d.Start:d.End])

		matched := groups.firstMatch(surface)
		if matched == nil {
			groups.add(&PersonGroup{Canonical: surface, Members: []Detection{d}})
			continue
		}

		matched.Members = append(matched.Members, d)
		if utf8.RuneCountInString(surface) > utf8.RuneCountInString(matched.Canonical) {
			groups.rekey(matched, surface)
		}
	}
	return groups
}
