// Command redactor is the person-name redaction service.
//
// It replaces every person name in submitted text with a stable alias
// (PERSON_1, PERSON_2, ...) so the text can be sent to a third-party model,
// and restores the names in the model's reply from the returned mapping.
// Mappings are never stored server-side.
//
// Usage:
//
//	# Offline rule detector on the default port
//	./redactor
//
//	# Presidio analyzer
//	DETECTOR=presidio PRESIDIO_ENDPOINT=http://localhost:5002 ./redactor
//
//	# Local Ollama model, token-protected
//	DETECTOR=ollama API_TOKEN=secret ./redactor
//
//	# Call a running service
//	./redactor redact < note.txt > redacted.json
//	./redactor deanonymize -mapping redacted.json < reply.txt
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"name-redaction-service/internal/api"
	"name-redaction-service/internal/config"
	"name-redaction-service/internal/detector"
	"name-redaction-service/internal/logger"
	"name-redaction-service/internal/metrics"
	"name-redaction-service/internal/redact"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()

	if len(os.Args) > 1 && isClientCommand(os.Args[1]) {
		if err := runClient(context.Background(), cfg, os.Args[1:], os.Stdin, os.Stdout); err != nil {
			logger.New("CLIENT", cfg.LogLevel).Fatalf(os.Args[1], "%v", err)
		}
		return
	}

	log := logger.New("MAIN", cfg.LogLevel)

	printBanner(cfg)

	m := metrics.New()

	det, err := detector.New(cfg, logger.New("DETECT", cfg.LogLevel))
	if err != nil {
		log.Fatalf("startup", "build detector: %v", err)
	}
	// A detector that cannot be reached is a startup failure, not an empty result.
	if p, ok := det.(detector.Pinger); ok {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.DetectorTimeoutSecs)*time.Second)
		err := p.Ping(ctx)
		cancel()
		if err != nil {
			log.Fatalf("startup", "%s detector not reachable: %v", cfg.Detector, err)
		}
	}

	r := redact.New(det, cfg.Language, redact.ParseMode(cfg.DeanonymizeMode), logger.New("REDACT", cfg.LogLevel), m)
	srv := api.New(cfg, r, logger.New("API", cfg.LogLevel), m)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		if err != nil {
			log.Fatalf("serve", "%v", err)
		}
	case s := <-sig:
		log.Infof("shutdown", "received %s, draining requests", s)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("shutdown", "%v", err)
		}
	}
}

func printBanner(cfg *config.Config) {
	engine := cfg.Detector
	switch cfg.Detector {
	case config.DetectorPresidio:
		engine = fmt.Sprintf("presidio (%s, score >= %.2f)", cfg.PresidioEndpoint, cfg.PresidioScoreThreshold)
	case config.DetectorOllama:
		engine = fmt.Sprintf("ollama (%s, %s)", cfg.OllamaEndpoint, cfg.OllamaModel)
	case config.DetectorRules, "":
		engine = "rules (offline)"
	}
	auth := "off"
	if cfg.APIToken != "" {
		auth = "bearer token"
	}

	fmt.Printf(`
╔══════════════════════════════════════════════════════╗
║          Name Redaction Service  (Go)                ║
╚══════════════════════════════════════════════════════╝
  Listen          : %s:%d
  Detector        : %s
  Language        : %s
  De-anonymize    : %s
  Auth            : %s

  Try it:
    curl http://localhost:%d/sample
`, cfg.BindAddress, cfg.ListenPort,
		engine,
		cfg.Language,
		redact.ParseMode(cfg.DeanonymizeMode),
		auth,
		cfg.ListenPort)
}
