package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"name-redaction-service/internal/logger"
	"name-redaction-service/internal/redact"
)

const maxOllamaResponse = 10 << 20 // 10 MB

// Ollama asks a local model which person names appear in the text, then
// locates every occurrence of those names itself. The model never supplies
// offsets.
type Ollama struct {
	generateURL string
	tagsURL     string
	model       string
	confidence  float64
	client      *http.Client
	log         *logger.Logger
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

type ollamaDetection struct {
	Original   string  `json:"original"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// NewOllama creates an Ollama detector.
func NewOllama(endpoint, model string, confidence float64, client *http.Client, log *logger.Logger) *Ollama {
	if client == nil {
		client = http.DefaultClient
	}
	endpoint = strings.TrimRight(endpoint, "/")
	return &Ollama{
		generateURL: endpoint + "/api/generate",
		tagsURL:     endpoint + "/api/tags",
		model:       model,
		confidence:  confidence,
		client:      client,
		log:         log,
	}
}

// Ping checks that the Ollama server answers.
func (o *Ollama) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.tagsURL, nil)
	if err != nil {
		return fmt.Errorf("%w: create ollama request: %w", redact.ErrDetectorUnavailable, err)
	}
	resp, err := o.client.Do(req) // #nosec G107 -- URL from trusted config
	if err != nil {
		return fmt.Errorf("%w: ollama: %w", redact.ErrDetectorUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on HTTP response body
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ollama status %d", redact.ErrDetectorUnavailable, resp.StatusCode)
	}
	return nil
}

// Analyze returns PERSON detections in text order.
func (o *Ollama) Analyze(ctx context.Context, text string, categories []string, _ string) ([]redact.Detection, error) {
	if !wantsPerson(categories) {
		return nil, nil
	}
	found, err := o.query(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", redact.ErrDetectorUnavailable, err)
	}

	var names []string
	seen := make(map[string]bool)
	for _, d := range found {
		name := strings.TrimSpace(d.Original)
		if d.Type != "name" || d.Confidence < o.confidence || name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}

	detections := locateNames(text, names)
	if o.log != nil {
		o.log.Debugf("ollama", "%d names, %d occurrences", len(names), len(detections))
	}
	return detections, nil
}

// query calls the Ollama API and parses the JSON array in the model output.
func (o *Ollama) query(ctx context.Context, text string) ([]ollamaDetection, error) {
	prompt := fmt.Sprintf(`Find every person name in the following text.
Return ONLY a JSON array of detections. Each item must have:
- "original": the name exactly as written in the text
- "type": "name"
- "confidence": float 0.0-1.0

Text to analyze:
%s

Return ONLY the JSON array, no explanation. Example: [{"original":"John Smith","type":"name","confidence":0.95}]`,
		text)

	reqBody, err := json.Marshal(ollamaRequest{Model: o.model, Prompt: prompt, Stream: false})
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.generateURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req) // #nosec G107 -- URL from trusted config
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on HTTP response body

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOllamaResponse))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama status %d", resp.StatusCode)
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		return nil, fmt.Errorf("ollama response parse error: %w", err)
	}

	// Extract the JSON array from the model's text response
	raw := strings.TrimSpace(ollamaResp.Response)
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("no JSON array in ollama response")
	}
	raw = raw[start : end+1]

	var detections []ollamaDetection
	if err := json.Unmarshal([]byte(raw), &detections); err != nil {
		return nil, fmt.Errorf("detection parse error: %w", err)
	}
	return detections, nil
}

// locateNames finds every whole-word occurrence of each name in text.
// Longer names claim their text first so "Jimmy" inside "Jimmy John" is not
// reported twice. Results are in text order.
func locateNames(text string, names []string) []redact.Detection {
	ordered := append([]string(nil), names...)
	sort.SliceStable(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })

	type byteSpan struct{ start, end int }
	var claimed []byteSpan
	overlaps := func(s, e int) bool {
		for _, c := range claimed {
			if s < c.end && c.start < e {
				return true
			}
		}
		return false
	}

	for _, name := range ordered {
		for from := 0; from < len(text); {
			i := strings.Index(text[from:], name)
			if i < 0 {
				break
			}
			s, e := from+i, from+i+len(name)
			if standsAlone(text, s, e) && !overlaps(s, e) {
				claimed = append(claimed, byteSpan{s, e})
			}
			from = e
		}
	}
	sort.Slice(claimed, func(i, j int) bool { return claimed[i].start < claimed[j].start })

	ri := newRuneIndex(text)
	out := make([]redact.Detection, 0, len(claimed))
	for _, c := range claimed {
		out = append(out, ri.span(c.start, c.end, 0))
	}
	return out
}
