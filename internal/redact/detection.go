// Package redact replaces person-name mentions in free text with stable
// PERSON_<k> aliases and restores them again from the returned mapping.
//
// Pipeline for one request:
//  1. the Detector returns PERSON spans (codepoint offsets, half-open)
//  2. GroupPeople clusters spans that name the same person (NamesMatch)
//  3. AssignAliases numbers the groups in sorted canonical-name order
//  4. Rewrite splices the aliases into the text right-to-left
//
// The mapping is owned by the caller; nothing here outlives a call.
package redact

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"
)

// LabelPerson is the only detection category the redactor consumes.
const LabelPerson = "PERSON"

// Sentinel errors. Callers match them with errors.Is.
var (
	// ErrDetectorUnavailable wraps any failure of the span detector.
	// Redaction is never silently skipped when detection fails.
	ErrDetectorUnavailable = errors.New("detector unavailable")

	// ErrInvalidSpan reports a detection whose offsets do not fit the text.
	ErrInvalidSpan = errors.New("invalid span")
)

// Detection is one span reported by the detector: a half-open range of
// codepoint offsets into the analyzed text plus its category label.
type Detection struct {
	Start int     `json:"start"`
	End   int     `json:"end"`
	Label string  `json:"label"`
	Score float64 `json:"score,omitempty"`
}

// Detector finds entity spans in text. Implementations must be safe for
// concurrent use; they are built once at startup and shared.
type Detector interface {
	Analyze(ctx context.Context, text string, categories []string, language string) ([]Detection, error)
}

// ValidateDetections checks every detection against the codepoint length of
// text. Zero-length spans are rejected too: an empty surface form would
// match every name.
func ValidateDetections(text string, detections []Detection) error {
	n := utf8.RuneCountInString(text)
	for i, d := range detections {
		if d.Start < 0 || d.Start >= d.End || d.End > n {
			return fmt.Errorf("%w: detection %d [%d,%d) in text of %d codepoints",
				ErrInvalidSpan, i, d.Start, d.End, n)
		}
	}
	return nil
}

// personsOnly keeps PERSON detections in detector order.
func personsOnly(detections []Detection) []Detection {
	out := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if d.Label == LabelPerson {
			out = append(out, d)
		}
	}
	return out
}
