// Package config loads and holds all service configuration.
// Settings come from defaults, then the config file (JSON or YAML), then
// environment variables. A .env file in the working directory is loaded into
// the environment first; variables already set win over it.
package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Detector kinds.
const (
	DetectorRules    = "rules"
	DetectorPresidio = "presidio"
	DetectorOllama   = "ollama"
)

// Config holds the full service configuration.
type Config struct {
	ListenPort  int    `json:"listenPort" yaml:"listenPort"`
	BindAddress string `json:"bindAddress" yaml:"bindAddress"`
	APIToken    string `json:"apiToken" yaml:"apiToken"`
	LogLevel    string `json:"logLevel" yaml:"logLevel"`

	Detector string `json:"detector" yaml:"detector"`
	Language string `json:"language" yaml:"language"`

	PresidioEndpoint       string  `json:"presidioEndpoint" yaml:"presidioEndpoint"`
	PresidioScoreThreshold float64 `json:"presidioScoreThreshold" yaml:"presidioScoreThreshold"`

	OllamaEndpoint   string  `json:"ollamaEndpoint" yaml:"ollamaEndpoint"`
	OllamaModel      string  `json:"ollamaModel" yaml:"ollamaModel"`
	OllamaConfidence float64 `json:"ollamaConfidence" yaml:"ollamaConfidence"`

	DetectorTimeoutSecs int `json:"detectorTimeoutSecs" yaml:"detectorTimeoutSecs"`

	DeanonymizeMode string `json:"deanonymizeMode" yaml:"deanonymizeMode"`
	MaxBodyBytes    int64  `json:"maxBodyBytes" yaml:"maxBodyBytes"`
}

// defaultFiles are tried in order when REDACTOR_CONFIG is unset.
var defaultFiles = []string{"redactor-config.json", "redactor-config.yaml", "redactor-config.yml"}

// Load returns config with defaults overridden by the config file and env vars.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[CONFIG] Warning: could not parse .env: %v", err)
	}

	cfg := defaults()
	if path := os.Getenv("REDACTOR_CONFIG"); path != "" {
		loadFile(cfg, path)
	} else {
		for _, path := range defaultFiles {
			if loadFile(cfg, path) {
				break
			}
		}
	}
	loadEnv(cfg)
	return cfg
}

func defaults() *Config {
	return &Config{
		ListenPort:             8000,
		BindAddress:            "127.0.0.1",
		LogLevel:               "info",
		Detector:               DetectorRules,
		Language:               "en",
		PresidioEndpoint:       "http://localhost:5002",
		PresidioScoreThreshold: 0,
		OllamaEndpoint:         "http://localhost:11434",
		OllamaModel:            "qwen2.5:3b",
		OllamaConfidence:       0.7,
		DetectorTimeoutSecs:    10,
		DeanonymizeMode:        "boundary",
		MaxBodyBytes:           1 << 20,
	}
}

// loadFile merges the file at path into cfg. It reports whether the file
// existed; a missing file is not an error.
func loadFile(cfg *Config, path string) bool {
	data, err := os.ReadFile(path) // #nosec G304 -- path from operator config
	if err != nil {
		return false
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		log.Printf("[CONFIG] Warning: could not parse %s: %v", path, err)
	} else {
		log.Printf("[CONFIG] Loaded %s", path)
	}
	return true
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("LISTEN_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ListenPort = n
		}
	}
	if v := os.Getenv("BIND_ADDRESS"); v != "" {
		cfg.BindAddress = v
	}
	if v := os.Getenv("API_TOKEN"); v != "" {
		cfg.APIToken = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DETECTOR"); v != "" {
		cfg.Detector = strings.ToLower(v)
	}
	if v := os.Getenv("NER_LANGUAGE"); v != "" {
		cfg.Language = v
	}
	if v := os.Getenv("PRESIDIO_ENDPOINT"); v != "" {
		cfg.PresidioEndpoint = v
	}
	if v := os.Getenv("PRESIDIO_SCORE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.PresidioScoreThreshold = f
		}
	}
	if v := os.Getenv("OLLAMA_ENDPOINT"); v != "" {
		cfg.OllamaEndpoint = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		cfg.OllamaModel = v
	}
	if v := os.Getenv("OLLAMA_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.OllamaConfidence = f
		}
	}
	if v := os.Getenv("DETECTOR_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DetectorTimeoutSecs = n
		}
	}
	if v := os.Getenv("DEANONYMIZE_MODE"); v != "" {
		cfg.DeanonymizeMode = v
	}
	if v := os.Getenv("MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MaxBodyBytes = n
		}
	}
}
