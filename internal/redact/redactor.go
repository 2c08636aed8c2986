package redact

import (
	"context"
	"errors"
	"fmt"
	"time"

	"name-redaction-service/internal/logger"
	"name-redaction-service/internal/metrics"
)

// Result is the output of one redaction. NameMapping (alias -> name) is all
// the caller needs to restore the text later.
type Result struct {
	RedactedText string            `json:"redacted_text"`
	NameMapping  map[string]string `json:"name_mapping"`

	Mapping      AliasMapping  `json:"-"`
	Replacements []Replacement `json:"-"`
}

func unchanged(text string) *Result {
	return &Result{
		RedactedText: text,
		NameMapping:  map[string]string{},
		Mapping: AliasMapping{
			NameToAlias: map[string]string{},
			AliasToName: map[string]string{},
		},
	}
}

// RedactDetections redacts text given the detector's output. Non-PERSON
// detections are ignored; an out-of-range PERSON span fails with
// ErrInvalidSpan. No detections means text comes back unchanged.
func RedactDetections(text string, detections []Detection) (*Result, error) {
	persons := personsOnly(detections)
	if err := ValidateDetections(text, persons); err != nil {
		return nil, err
	}
	if len(persons) == 0 {
		return unchanged(text), nil
	}

	groups := GroupPeople(persons, text)
	mapping := AssignAliases(groups)
	replacements := replacementsFor(groups, mapping, text)

	nameMapping := make(map[string]string, len(mapping.AliasToName))
	for alias, name := range mapping.AliasToName {
		nameMapping[alias] = name
	}
	return &Result{
		RedactedText: Rewrite(text, replacements),
		NameMapping:  nameMapping,
		Mapping:      mapping,
		Replacements: replacements,
	}, nil
}

// Redactor runs the detector and the alias pipeline for single requests.
// It holds no per-request state and is safe for concurrent use when its
// Detector is.
type Redactor struct {
	detector Detector
	language string
	mode     Mode
	log      *logger.Logger
	metrics  *metrics.Metrics // nil = no metrics
}

// New creates a Redactor. log and m may be nil.
func New(d Detector, language string, mode Mode, log *logger.Logger, m *metrics.Metrics) *Redactor {
	if log == nil {
		log = logger.New("REDACT", "error")
	}
	if language == "" {
		language = "en"
	}
	if mode == "" {
		mode = ModeBoundary
	}
	return &Redactor{detector: d, language: language, mode: mode, log: log, metrics: m}
}

// Mode returns the de-anonymization mode in use.
func (r *Redactor) Mode() Mode { return r.mode }

// Language returns the language passed to the detector.
func (r *Redactor) Language() string { return r.language }

// Redact detects person names in text and replaces each with its group's
// alias. Detector failures are returned wrapped in ErrDetectorUnavailable.
func (r *Redactor) Redact(ctx context.Context, text string) (*Result, error) {
	if text == "" {
		return unchanged(text), nil
	}
	started := time.Now()

	detections, err := r.detector.Analyze(ctx, text, []string{LabelPerson}, r.language)
	if r.metrics != nil {
		r.metrics.RecordDetectorLatency(time.Since(started))
	}
	if err != nil {
		if r.metrics != nil {
			r.metrics.ErrorsDetector.Add(1)
		}
		r.log.Errorf("detect", "analyze failed: %v", err)
		if !errors.Is(err, ErrDetectorUnavailable) {
			err = fmt.Errorf("%w: %w", ErrDetectorUnavailable, err)
		}
		return nil, err
	}

	res, err := RedactDetections(text, detections)
	if err != nil {
		if r.metrics != nil {
			r.metrics.ErrorsInvalidSpan.Add(1)
		}
		r.log.Warnf("validate", "detector returned bad span: %v", err)
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.DetectionsTotal.Add(int64(len(res.Replacements)))
		r.metrics.PeopleAliased.Add(int64(res.Mapping.Len()))
		r.metrics.RecordRedactLatency(time.Since(started))
	}
	r.log.Debugf("redact", "%d detections, %d people, %d codepoints",
		len(res.Replacements), res.Mapping.Len(), len([]rune(text)))
	return res, nil
}

// Deanonymize restores aliases in text from mapping (alias -> name) using the
// configured mode. Unknown aliases stay as they are.
func (r *Redactor) Deanonymize(text string, mapping map[string]string) string {
	out, n := r.restore(text, mapping)
	if r.metrics != nil {
		r.metrics.AliasesRestored.Add(int64(n))
	}
	return out
}

// DeanonymizeValue restores aliases in every string leaf of a JSON-decoded
// value (maps, slices, strings). The value is modified in place and returned.
func (r *Redactor) DeanonymizeValue(v any, mapping map[string]string) any {
	return deanonymizeValue(v, func(s string) string {
		return r.Deanonymize(s, mapping)
	})
}

func (r *Redactor) restore(text string, mapping map[string]string) (string, int) {
	if r.mode == ModeSequential {
		return deanonymizeSequential(text, mapping)
	}
	return deanonymizeBoundary(text, mapping)
}
