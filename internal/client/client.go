// Package client calls a running redaction service over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"name-redaction-service/internal/redact"
)

const maxResponseBytes = 10 << 20 // 10 MB

// Client talks to the API served by cmd/redactor.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a Client for the service at baseURL. token may be empty; a nil
// httpClient means http.DefaultClient.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// Redact sends text to POST /redact. The returned Result carries only
// RedactedText and NameMapping.
func (c *Client) Redact(ctx context.Context, text string) (*redact.Result, error) {
	var res redact.Result
	if err := c.post(ctx, "/redact", map[string]string{"text": text}, &res); err != nil {
		return nil, err
	}
	if res.NameMapping == nil {
		res.NameMapping = map[string]string{}
	}
	return &res, nil
}

// Deanonymize sends text and its mapping to POST /deanonymize.
func (c *Client) Deanonymize(ctx context.Context, text string, mapping map[string]string) (string, error) {
	req := struct {
		Text        string            `json:"text"`
		NameMapping map[string]string `json:"name_mapping"`
	}{text, mapping}
	var resp struct {
		Text string `json:"text"`
	}
	if err := c.post(ctx, "/deanonymize", req, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

// DeanonymizeValue restores aliases in every string of a JSON-compatible
// value via POST /deanonymize/object.
func (c *Client) DeanonymizeValue(ctx context.Context, value any, mapping map[string]string) (any, error) {
	req := struct {
		Value       any               `json:"value"`
		NameMapping map[string]string `json:"name_mapping"`
	}{value, mapping}
	var resp struct {
		Value any `json:"value"`
	}
	if err := c.post(ctx, "/deanonymize/object", req, &resp); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req) // #nosec G107 -- URL from trusted config
	if err != nil {
		return fmt.Errorf("failed to connect to redaction service: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on HTTP response body

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s response parse error: %w", path, err)
	}
	return nil
}

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("redaction service %s failed: %d - %s", e.Path, e.Code, e.Body)
}
