// Package detector adapts span detectors to redact.Detector.
//
// Three engines are available:
//   - Presidio: the Presidio analyzer REST API (a spaCy NER model behind HTTP)
//   - Ollama:   a local LLM asked to list the person names it sees
//   - Rules:    an offline matcher over capitalised words and a given-name list
//
// All of them report PERSON spans as codepoint offsets into the input. A
// detector is built once at startup and shared by every request.
package detector

import (
	"context"
	"fmt"
	"net/http"
	"time"
	"unicode"
	"unicode/utf8"

	"name-redaction-service/internal/config"
	"name-redaction-service/internal/logger"
	"name-redaction-service/internal/redact"
)

// Pinger is implemented by detectors backed by a remote engine. Ping is
// called once at startup so a misconfigured engine fails fast.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New builds the detector selected by cfg.Detector.
func New(cfg *config.Config, log *logger.Logger) (redact.Detector, error) {
	client := &http.Client{Timeout: time.Duration(cfg.DetectorTimeoutSecs) * time.Second}

	switch cfg.Detector {
	case config.DetectorPresidio:
		return NewPresidio(cfg.PresidioEndpoint, cfg.PresidioScoreThreshold, client, log), nil
	case config.DetectorOllama:
		return NewOllama(cfg.OllamaEndpoint, cfg.OllamaModel, cfg.OllamaConfidence, client, log), nil
	case config.DetectorRules, "":
		return NewRules()
	}
	return nil, fmt.Errorf("%w: unknown detector %q", redact.ErrDetectorUnavailable, cfg.Detector)
}

// wantsPerson reports whether PERSON is among the requested categories.
// An empty list means "everything".
func wantsPerson(categories []string) bool {
	if len(categories) == 0 {
		return true
	}
	for _, c := range categories {
		if c == redact.LabelPerson {
			return true
		}
	}
	return false
}

// runeIndex maps byte offsets of text to codepoint offsets.
type runeIndex []int

func newRuneIndex(text string) runeIndex {
	idx := make(runeIndex, len(text)+1)
	n := 0
	for i := 0; i < len(text); n++ {
		_, size := utf8.DecodeRuneInString(text[i:])
		for j := 0; j < size; j++ {
			idx[i+j] = n
		}
		i += size
	}
	idx[len(text)] = n
	return idx
}

// span converts a byte range to a PERSON detection.
func (ri runeIndex) span(start, end int, score float64) redact.Detection {
	return redact.Detection{Start: ri[start], End: ri[end], Label: redact.LabelPerson, Score: score}
}

// isWordRune reports runes that continue a word.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// standsAlone reports whether text[start:end] is not part of a longer word.
func standsAlone(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

// dropOverlaps keeps the first of any detections that overlap, preserving
// the order in which the engine reported them.
func dropOverlaps(ds []redact.Detection) []redact.Detection {
	out := make([]redact.Detection, 0, len(ds))
	for _, d := range ds {
		clash := false
		for _, kept := range out {
			if d.Start < kept.End && kept.Start < d.End {
				clash = true
				break
			}
		}
		if !clash {
			out = append(out, d)
		}
	}
	return out
}
