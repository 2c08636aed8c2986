package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"name-redaction-service/internal/logger"
	"name-redaction-service/internal/redact"
)

const maxPresidioResponse = 10 << 20 // 10 MB

// Presidio calls the Presidio analyzer REST API. Offsets in its response
// are codepoint offsets, which is what the redactor expects.
type Presidio struct {
	analyzeURL     string
	healthURL      string
	scoreThreshold float64
	client         *http.Client
	log            *logger.Logger
}

type presidioRequest struct {
	Text           string   `json:"text"`
	Language       string   `json:"language"`
	Entities       []string `json:"entities,omitempty"`
	ScoreThreshold float64  `json:"score_threshold,omitempty"`
}

type presidioResult struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

// NewPresidio creates a Presidio detector for the analyzer at endpoint.
func NewPresidio(endpoint string, scoreThreshold float64, client *http.Client, log *logger.Logger) *Presidio {
	if client == nil {
		client = http.DefaultClient
	}
	endpoint = strings.TrimRight(endpoint, "/")
	return &Presidio{
		analyzeURL:     endpoint + "/analyze",
		healthURL:      endpoint + "/health",
		scoreThreshold: scoreThreshold,
		client:         client,
		log:            log,
	}
}

// Ping checks the analyzer's health endpoint.
func (p *Presidio) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.healthURL, nil)
	if err != nil {
		return fmt.Errorf("%w: create presidio health request: %w", redact.ErrDetectorUnavailable, err)
	}
	resp, err := p.client.Do(req) // #nosec G107 -- URL from trusted config
	if err != nil {
		return fmt.Errorf("%w: presidio health: %w", redact.ErrDetectorUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on HTTP response body
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: presidio health: status %d", redact.ErrDetectorUnavailable, resp.StatusCode)
	}
	return nil
}

// Analyze asks Presidio for entities of the given categories. Results below
// the score threshold or outside the requested categories are dropped, and
// overlapping spans keep the one Presidio ranked first.
func (p *Presidio) Analyze(ctx context.Context, text string, categories []string, language string) ([]redact.Detection, error) {
	body, err := json.Marshal(presidioRequest{
		Text:           text,
		Language:       language,
		Entities:       categories,
		ScoreThreshold: p.scoreThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal presidio request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.analyzeURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create presidio request: %w", redact.ErrDetectorUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req) // #nosec G107 -- URL from trusted config
	if err != nil {
		return nil, fmt.Errorf("%w: presidio: %w", redact.ErrDetectorUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on HTTP response body

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPresidioResponse))
	if err != nil {
		return nil, fmt.Errorf("%w: read presidio response: %w", redact.ErrDetectorUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: presidio status %d: %s",
			redact.ErrDetectorUnavailable, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var results []presidioResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("%w: presidio response parse error: %w", redact.ErrDetectorUnavailable, err)
	}

	allowed := make(map[string]bool, len(categories))
	for _, c := range categories {
		allowed[c] = true
	}

	detections := make([]redact.Detection, 0, len(results))
	for _, r := range results {
		if len(allowed) > 0 && !allowed[r.EntityType] {
			continue
		}
		if r.Score < p.scoreThreshold {
			continue
		}
		detections = append(detections, redact.Detection{
			Start: r.Start,
			End:   r.End,
			Label: r.EntityType,
			Score: r.Score,
		})
	}
	detections = dropOverlaps(detections)

	if p.log != nil {
		p.log.Debugf("presidio", "%d of %d results kept", len(detections), len(results))
	}
	return detections, nil
}
