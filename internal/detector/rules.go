package detector

import (
	"bufio"
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"name-redaction-service/internal/redact"
)

// Embedded given-name list, one lowercase name per line.
//
//go:embed data/given_names.txt
var givenNamesData string

var (
	givenNames   map[string]bool
	givenOnce    sync.Once
	givenLoadErr error
)

// loadGivenNames parses the embedded list once per process.
func loadGivenNames() (map[string]bool, error) {
	givenOnce.Do(func() {
		names := make(map[string]bool, 300)
		scanner := bufio.NewScanner(strings.NewReader(givenNamesData))
		for scanner.Scan() {
			if name := strings.TrimSpace(scanner.Text()); name != "" {
				names[name] = true
			}
		}
		if err := scanner.Err(); err != nil {
			givenLoadErr = fmt.Errorf("failed to load given names: %w", err)
			return
		}
		givenNames = names
	})
	return givenNames, givenLoadErr
}

// nameWordRe matches one capitalised word: "Jimmy", "O'Connor", "Mary-Jane".
var nameWordRe = regexp.MustCompile(`\p{Lu}(?:\p{Ll}+|['’]\p{Lu}\p{Ll}+)(?:-\p{Lu}\p{Ll}+)*`)

// Honorifics introduce a name but are not part of it.
var honorifics = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "miss": true, "mx": true,
	"dr": true, "prof": true, "coach": true,
}

// Capitalised words that commonly trail a name in school notes.
var trailingNonNames = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
	"january": true, "february": true, "march": true, "april": true, "june": true,
	"july": true, "august": true, "september": true, "october": true,
	"november": true, "december": true,
}

const maxNameTokens = 4

// Rules detects person names without a model: runs of up to four adjacent
// capitalised words are kept from the first word found in the given-name
// list, and any run directly after an honorific ("Mr. Smith") is kept whole.
type Rules struct {
	given map[string]bool
}

// NewRules loads the embedded name list and returns a Rules detector.
func NewRules() (*Rules, error) {
	given, err := loadGivenNames()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", redact.ErrDetectorUnavailable, err)
	}
	return &Rules{given: given}, nil
}

type nameToken struct {
	start, end int
	lower      string
}

// Analyze returns PERSON detections in text order.
func (r *Rules) Analyze(_ context.Context, text string, categories []string, _ string) ([]redact.Detection, error) {
	if !wantsPerson(categories) {
		return nil, nil
	}

	lower := cases.Lower(language.Und)
	var tokens []nameToken
	for _, loc := range nameWordRe.FindAllStringIndex(text, -1) {
		tokens = append(tokens, nameToken{
			start: loc[0],
			end:   loc[1],
			lower: lower.String(text[loc[0]:loc[1]]),
		})
	}

	ri := newRuneIndex(text)
	var out []redact.Detection
	titled := false

	for i := 0; i < len(tokens); {
		if honorifics[tokens[i].lower] {
			titled = i+1 < len(tokens) && followsHonorific(text, tokens[i].end, tokens[i+1].start)
			i++
			continue
		}

		j := i + 1
		for j < len(tokens) && j-i < maxNameTokens &&
			!honorifics[tokens[j].lower] && adjacent(text, tokens[j-1].end, tokens[j].start) {
			j++
		}
		run := tokens[i:j]
		i = j

		if !titled {
			k := 0
			for k < len(run) && !r.given[run[k].lower] {
				k++
			}
			run = run[k:]
		}
		titled = false

		for len(run) > 0 && trailingNonNames[run[len(run)-1].lower] {
			run = run[:len(run)-1]
		}
		if len(run) == 0 {
			continue
		}

		start, end := run[0].start, run[len(run)-1].end
		if !standsAlone(text, start, end) {
			continue
		}
		score := 0.6
		if len(run) > 1 {
			score = 0.85
		}
		out = append(out, ri.span(start, end, score))
	}
	return out, nil
}

// adjacent reports whether two words are separated by exactly one space
// (or nothing, as in "McDonald").
func adjacent(text string, prevEnd, nextStart int) bool {
	gap := text[prevEnd:nextStart]
	return gap == "" || gap == " "
}

// followsHonorific accepts "Mr. Smith" and "Mr Smith".
func followsHonorific(text string, titleEnd, nextStart int) bool {
	gap := text[titleEnd:nextStart]
	return gap == ". " || gap == " "
}
