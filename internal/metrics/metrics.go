// Package metrics provides lightweight, lock-minimal counters for the
// redaction service.
//
// Counters use sync/atomic so request handling incurs no mutex contention.
// Latency statistics use a single mutex per dimension; they are updated at
// most once per request.
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds all runtime counters for a running service instance.
// The zero value is usable; New also records the start time.
type Metrics struct {
	// Request counters
	RequestsTotal       atomic.Int64
	RequestsRedact      atomic.Int64
	RequestsDeanonymize atomic.Int64

	// Error counters
	ErrorsDetector    atomic.Int64
	ErrorsInvalidSpan atomic.Int64
	ErrorsBadRequest  atomic.Int64

	// Volume
	DetectionsTotal atomic.Int64 // PERSON spans replaced
	PeopleAliased   atomic.Int64 // distinct aliases handed out
	AliasesRestored atomic.Int64 // alias occurrences turned back into names

	detectMu   sync.Mutex
	detectStat latencyStats

	redactMu   sync.Mutex
	redactStat latencyStats

	startTime time.Time
}

// New returns a new Metrics with the start time recorded.
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordDetectorLatency records the duration of one detector call.
func (m *Metrics) RecordDetectorLatency(d time.Duration) {
	m.detectMu.Lock()
	m.detectStat.record(float64(d.Microseconds()) / 1000.0)
	m.detectMu.Unlock()
}

// RecordRedactLatency records the duration of one full redaction,
// detector call included.
func (m *Metrics) RecordRedactLatency(d time.Duration) {
	m.redactMu.Lock()
	m.redactStat.record(float64(d.Microseconds()) / 1000.0)
	m.redactMu.Unlock()
}

// Snapshot returns a point-in-time copy of all metrics, safe for JSON encoding.
func (m *Metrics) Snapshot() Snapshot {
	m.detectMu.Lock()
	detect := m.detectStat.snapshot()
	m.detectMu.Unlock()

	m.redactMu.Lock()
	redact := m.redactStat.snapshot()
	m.redactMu.Unlock()

	var uptime float64
	if !m.startTime.IsZero() {
		uptime = time.Since(m.startTime).Seconds()
	}

	return Snapshot{
		Requests: RequestSnapshot{
			Total:       m.RequestsTotal.Load(),
			Redact:      m.RequestsRedact.Load(),
			Deanonymize: m.RequestsDeanonymize.Load(),
		},
		Errors: ErrorSnapshot{
			Detector:    m.ErrorsDetector.Load(),
			InvalidSpan: m.ErrorsInvalidSpan.Load(),
			BadRequest:  m.ErrorsBadRequest.Load(),
		},
		Names: NameSnapshot{
			Detections: m.DetectionsTotal.Load(),
			Aliased:    m.PeopleAliased.Load(),
			Restored:   m.AliasesRestored.Load(),
		},
		Latency: LatencyGroup{
			DetectorMs: detect,
			RedactMs:   redact,
		},
		UptimeSecs: uptime,
	}
}

// --- JSON-serialisable snapshot types ---

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Requests   RequestSnapshot `json:"requests"`
	Errors     ErrorSnapshot   `json:"errors"`
	Names      NameSnapshot    `json:"names"`
	Latency    LatencyGroup    `json:"latency"`
	UptimeSecs float64         `json:"uptimeSecs"`
}

// RequestSnapshot holds request-level counters.
type RequestSnapshot struct {
	Total       int64 `json:"total"`
	Redact      int64 `json:"redact"`
	Deanonymize int64 `json:"deanonymize"`
}

// ErrorSnapshot holds error counters.
type ErrorSnapshot struct {
	Detector    int64 `json:"detector"`
	InvalidSpan int64 `json:"invalidSpan"`
	BadRequest  int64 `json:"badRequest"`
}

// NameSnapshot holds name volume counters.
type NameSnapshot struct {
	Detections int64 `json:"detections"`
	Aliased    int64 `json:"aliased"`
	Restored   int64 `json:"restored"`
}

// LatencyGroup groups the two latency dimensions.
type LatencyGroup struct {
	DetectorMs LatencySnapshot `json:"detectorMs"`
	RedactMs   LatencySnapshot `json:"redactMs"`
}

// LatencySnapshot is a min/mean/max summary for one latency dimension.
type LatencySnapshot struct {
	Count  int64   `json:"count"`
	MinMs  float64 `json:"minMs"`
	MeanMs float64 `json:"meanMs"`
	MaxMs  float64 `json:"maxMs"`
}

// --- internal accumulator ---

type latencyStats struct {
	count int64
	sum   float64
	min   float64
	max   float64
}

func (s *latencyStats) record(ms float64) {
	s.count++
	s.sum += ms
	if s.count == 1 || ms < s.min {
		s.min = ms
	}
	if ms > s.max {
		s.max = ms
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (s *latencyStats) snapshot() LatencySnapshot {
	if s.count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count:  s.count,
		MinMs:  round2(s.min),
		MeanMs: round2(s.sum / float64(s.count)),
		MaxMs:  round2(s.max),
	}
}
