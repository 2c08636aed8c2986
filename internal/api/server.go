// Package api exposes the redactor over HTTP.
//
// Endpoints:
//
//	POST /redact              - {"text":"..."} -> {"redacted_text","name_mapping"}
//	POST /deanonymize         - {"text","name_mapping"} -> {"text"}
//	POST /deanonymize/object  - {"value","name_mapping"} -> {"value"}
//	GET  /sample              - redacts a built-in classroom note
//	GET  /status              - uptime, detector and mode
//	GET  /metrics             - counters and latency
//
// The server speaks HTTP/1.1 and cleartext HTTP/2 (h2c) on the same port.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"name-redaction-service/internal/config"
	"name-redaction-service/internal/logger"
	"name-redaction-service/internal/metrics"
	"name-redaction-service/internal/redact"
)

// SampleText is the note served by GET /sample.
const SampleText = "Jimmy John and Chucky Cheese were messing around playing games in class. " +
	"Jimmy had already been warned and will be referred to admin. Chucky got a warning."

// Server is the redaction API server.
type Server struct {
	cfg       *config.Config
	redactor  *redact.Redactor
	log       *logger.Logger
	metrics   *metrics.Metrics // nil = no metrics
	token     string           // bearer token for auth; empty = no auth
	startTime time.Time
	srv       *http.Server
}

// New creates an API server. log and m may be nil.
func New(cfg *config.Config, r *redact.Redactor, log *logger.Logger, m *metrics.Metrics) *Server {
	if log == nil {
		log = logger.New("API", "error")
	}
	s := &Server{
		cfg:       cfg,
		redactor:  r,
		log:       log,
		metrics:   m,
		token:     cfg.APIToken,
		startTime: time.Now(),
	}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.ListenPort),
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          log.ErrorLog("http"),
	}
	if s.token != "" {
		log.Info("auth", "Bearer token authentication enabled")
	}
	return s
}

// Handler returns the HTTP handler for the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/redact", s.handleRedact)
	mux.HandleFunc("/deanonymize", s.handleDeanonymize)
	mux.HandleFunc("/deanonymize/object", s.handleDeanonymizeObject)
	mux.HandleFunc("/sample", s.handleSample)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/metrics", s.handleMetrics)
	return s.countMiddleware(s.authMiddleware(mux))
}

func (s *Server) countMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics != nil {
			s.metrics.RequestsTotal.Add(1)
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware checks for a valid Bearer token if one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(auth[len(prefix):])), []byte(s.token)) != 1 {
			s.log.Warnf("auth", "Unauthorized access attempt from %s to %s", r.RemoteAddr, r.URL.Path)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type redactRequest struct {
	Text *string `json:"text"`
}

type deanonymizeRequest struct {
	Text        *string           `json:"text"`
	NameMapping map[string]string `json:"name_mapping"`
}

type deanonymizeObjectRequest struct {
	Value       any               `json:"value"`
	NameMapping map[string]string `json:"name_mapping"`
}

func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req redactRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Text == nil {
		s.badRequest(w, `invalid request: need {"text":"..."}`)
		return
	}
	if s.metrics != nil {
		s.metrics.RequestsRedact.Add(1)
	}

	res, err := s.redactor.Redact(r.Context(), *req.Text)
	if err != nil {
		s.writeRedactError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res, s.log)
}

func (s *Server) handleDeanonymize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req deanonymizeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Text == nil {
		s.badRequest(w, `invalid request: need {"text":"...","name_mapping":{...}}`)
		return
	}
	if s.metrics != nil {
		s.metrics.RequestsDeanonymize.Add(1)
	}
	text := s.redactor.Deanonymize(*req.Text, req.NameMapping)
	writeJSON(w, http.StatusOK, map[string]string{"text": text}, s.log)
}

func (s *Server) handleDeanonymizeObject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req deanonymizeObjectRequest
	if !s.decode(w, r, &req) {
		return
	}
	if s.metrics != nil {
		s.metrics.RequestsDeanonymize.Add(1)
	}
	value := s.redactor.DeanonymizeValue(req.Value, req.NameMapping)
	writeJSON(w, http.StatusOK, map[string]any{"value": value}, s.log)
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	if s.metrics != nil {
		s.metrics.RequestsRedact.Add(1)
	}
	res, err := s.redactor.Redact(r.Context(), SampleText)
	if err != nil {
		s.writeRedactError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"original": SampleText,
		"redacted": res.RedactedText,
		"mapping":  res.NameMapping,
	}, s.log)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	type response struct {
		Status          string `json:"status"`
		Uptime          string `json:"uptime"`
		ListenPort      int    `json:"listenPort"`
		Detector        string `json:"detector"`
		Language        string `json:"language"`
		DeanonymizeMode string `json:"deanonymizeMode"`
		AuthEnabled     bool   `json:"authEnabled"`
	}

	writeJSON(w, http.StatusOK, response{
		Status:          "running",
		Uptime:          time.Since(s.startTime).Round(time.Second).String(),
		ListenPort:      s.cfg.ListenPort,
		Detector:        s.cfg.Detector,
		Language:        s.redactor.Language(),
		DeanonymizeMode: string(s.redactor.Mode()),
		AuthEnabled:     s.token != "",
	}, s.log)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot(), s.log)
}

// decode reads a size-limited JSON body into v. On failure it writes the
// response itself and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			if s.metrics != nil {
				s.metrics.ErrorsBadRequest.Add(1)
			}
			http.Error(w, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return false
		}
		s.badRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	if s.metrics != nil {
		s.metrics.ErrorsBadRequest.Add(1)
	}
	http.Error(w, msg, http.StatusBadRequest)
}

// writeRedactError maps redaction failures to status codes. A bad span is
// the detector breaking its contract, so it is reported as a gateway error.
// Timeouts and cancellations reach here as ErrDetectorUnavailable.
func (s *Server) writeRedactError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, redact.ErrInvalidSpan):
		http.Error(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, redact.ErrDetectorUnavailable):
		http.Error(w, "detector unavailable", http.StatusServiceUnavailable)
	default:
		s.log.Errorf("redact", "unexpected error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, log *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("encode", "JSON encode error: %v", err)
	}
}

// ListenAndServe starts the API server and blocks until it stops. It returns
// nil after a graceful Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Infof("listen", "Listening on %s (HTTP/1.1 + h2c)", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
