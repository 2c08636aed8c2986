package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()

	if cfg.ListenPort != 8000 {
		t.Errorf("ListenPort: got %d, want 8000", cfg.ListenPort)
	}
	if cfg.BindAddress != "127.0.0.1" {
		t.Errorf("BindAddress: got %s", cfg.BindAddress)
	}
	if cfg.APIToken != "" {
		t.Errorf("APIToken should default to empty, got %q", cfg.APIToken)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel: got %s", cfg.LogLevel)
	}
	if cfg.Detector != DetectorRules {
		t.Errorf("Detector: got %s, want %s", cfg.Detector, DetectorRules)
	}
	if cfg.Language != "en" {
		t.Errorf("Language: got %s", cfg.Language)
	}
	if cfg.PresidioEndpoint != "http://localhost:5002" {
		t.Errorf("PresidioEndpoint: got %s", cfg.PresidioEndpoint)
	}
	// no threshold by default: a low-score name is still a name
	if cfg.PresidioScoreThreshold != 0 {
		t.Errorf("PresidioScoreThreshold: got %f, want 0", cfg.PresidioScoreThreshold)
	}
	if cfg.OllamaEndpoint != "http://localhost:11434" {
		t.Errorf("OllamaEndpoint: got %s", cfg.OllamaEndpoint)
	}
	if cfg.OllamaModel != "qwen2.5:3b" {
		t.Errorf("OllamaModel: got %s", cfg.OllamaModel)
	}
	if cfg.OllamaConfidence != 0.7 {
		t.Errorf("OllamaConfidence: got %f, want 0.7", cfg.OllamaConfidence)
	}
	if cfg.DetectorTimeoutSecs != 10 {
		t.Errorf("DetectorTimeoutSecs: got %d, want 10", cfg.DetectorTimeoutSecs)
	}
	if cfg.DeanonymizeMode != "boundary" {
		t.Errorf("DeanonymizeMode: got %s", cfg.DeanonymizeMode)
	}
	if cfg.MaxBodyBytes != 1<<20 {
		t.Errorf("MaxBodyBytes: got %d", cfg.MaxBodyBytes)
	}
}

func TestLoadEnv_ListenPort(t *testing.T) {
	t.Setenv("LISTEN_PORT", "9090")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.ListenPort != 9090 {
		t.Errorf("ListenPort: got %d, want 9090", cfg.ListenPort)
	}
}

func TestLoadEnv_InvalidPort_Ignored(t *testing.T) {
	t.Setenv("LISTEN_PORT", "not-a-number")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.ListenPort != 8000 {
		t.Errorf("ListenPort: got %d, want 8000 (invalid env should be ignored)", cfg.ListenPort)
	}
}

func TestLoadEnv_Strings(t *testing.T) {
	t.Setenv("BIND_ADDRESS", "0.0.0.0")
	t.Setenv("API_TOKEN", "secret-token")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("NER_LANGUAGE", "en")
	t.Setenv("PRESIDIO_ENDPOINT", "http://presidio:3000")
	t.Setenv("OLLAMA_ENDPOINT", "http://remote:11434")
	t.Setenv("OLLAMA_MODEL", "llama3:8b")
	t.Setenv("DEANONYMIZE_MODE", "sequential")

	cfg := defaults()
	loadEnv(cfg)

	checks := []struct{ name, got, want string }{
		{"BindAddress", cfg.BindAddress, "0.0.0.0"},
		{"APIToken", cfg.APIToken, "secret-token"},
		{"LogLevel", cfg.LogLevel, "debug"},
		{"Language", cfg.Language, "en"},
		{"PresidioEndpoint", cfg.PresidioEndpoint, "http://presidio:3000"},
		{"OllamaEndpoint", cfg.OllamaEndpoint, "http://remote:11434"},
		{"OllamaModel", cfg.OllamaModel, "llama3:8b"},
		{"DeanonymizeMode", cfg.DeanonymizeMode, "sequential"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %q, want %q", c.name, c.got, c.want)
		}
	}
}

func TestLoadEnv_DetectorLowercased(t *testing.T) {
	t.Setenv("DETECTOR", "Presidio")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.Detector != DetectorPresidio {
		t.Errorf("Detector: got %s, want %s", cfg.Detector, DetectorPresidio)
	}
}

func TestLoadEnv_Floats(t *testing.T) {
	t.Setenv("PRESIDIO_SCORE_THRESHOLD", "0.5")
	t.Setenv("OLLAMA_CONFIDENCE", "0.9")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.PresidioScoreThreshold != 0.5 {
		t.Errorf("PresidioScoreThreshold: got %f, want 0.5", cfg.PresidioScoreThreshold)
	}
	if cfg.OllamaConfidence != 0.9 {
		t.Errorf("OllamaConfidence: got %f, want 0.9", cfg.OllamaConfidence)
	}
}

func TestLoadEnv_DetectorTimeout_ZeroIgnored(t *testing.T) {
	t.Setenv("DETECTOR_TIMEOUT_SECS", "0")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.DetectorTimeoutSecs != 10 {
		t.Errorf("DetectorTimeoutSecs: got %d, want 10 (zero should be ignored)", cfg.DetectorTimeoutSecs)
	}
}

func TestLoadEnv_MaxBodyBytes(t *testing.T) {
	t.Setenv("MAX_BODY_BYTES", "4096")
	cfg := defaults()
	loadEnv(cfg)
	if cfg.MaxBodyBytes != 4096 {
		t.Errorf("MaxBodyBytes: got %d, want 4096", cfg.MaxBodyBytes)
	}
}

func TestLoadFile_ValidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data, err := json.Marshal(map[string]any{
		"listenPort": 9999,
		"detector":   "presidio",
		"apiToken":   "from-file",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := defaults()
	if !loadFile(cfg, path) {
		t.Fatal("loadFile reported missing file")
	}
	if cfg.ListenPort != 9999 {
		t.Errorf("ListenPort: got %d, want 9999", cfg.ListenPort)
	}
	if cfg.Detector != "presidio" {
		t.Errorf("Detector: got %s", cfg.Detector)
	}
	if cfg.APIToken != "from-file" {
		t.Errorf("APIToken: got %s", cfg.APIToken)
	}
	if cfg.Language != "en" {
		t.Errorf("Language default lost: got %s", cfg.Language)
	}
}

func TestLoadFile_ValidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := "listenPort: 7000\ndetector: ollama\nollamaModel: mistral:7b\ndeanonymizeMode: sequential\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := defaults()
	loadFile(cfg, path)
	if cfg.ListenPort != 7000 {
		t.Errorf("ListenPort: got %d, want 7000", cfg.ListenPort)
	}
	if cfg.Detector != DetectorOllama {
		t.Errorf("Detector: got %s", cfg.Detector)
	}
	if cfg.OllamaModel != "mistral:7b" {
		t.Errorf("OllamaModel: got %s", cfg.OllamaModel)
	}
	if cfg.DeanonymizeMode != "sequential" {
		t.Errorf("DeanonymizeMode: got %s", cfg.DeanonymizeMode)
	}
}

func TestLoadFile_Missing_IsNoOp(t *testing.T) {
	cfg := defaults()
	if loadFile(cfg, "/nonexistent/path/config.json") {
		t.Error("missing file reported as loaded")
	}
	if cfg.ListenPort != 8000 {
		t.Errorf("ListenPort changed unexpectedly: %d", cfg.ListenPort)
	}
}

func TestLoadFile_InvalidJSON_PreservesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config-bad.json")
	if err := os.WriteFile(path, []byte("{this is not json}"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := defaults()
	loadFile(cfg, path)
	if cfg.ListenPort != 8000 {
		t.Errorf("ListenPort changed on bad JSON: %d", cfg.ListenPort)
	}
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yml")
	if err := os.WriteFile(path, []byte("listenPort: 8123\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REDACTOR_CONFIG", path)

	cfg := Load()
	if cfg.ListenPort != 8123 {
		t.Errorf("ListenPort: got %d, want 8123", cfg.ListenPort)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.json")
	if err := os.WriteFile(path, []byte(`{"listenPort": 8123}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REDACTOR_CONFIG", path)
	t.Setenv("LISTEN_PORT", "8200")

	cfg := Load()
	if cfg.ListenPort != 8200 {
		t.Errorf("ListenPort: got %d, want 8200", cfg.ListenPort)
	}
}

func TestLoad_ReturnsNonNil(t *testing.T) {
	cfg := Load()
	if cfg == nil {
		t.Fatal("Load() returned nil")
	}
	if cfg.ListenPort <= 0 {
		t.Errorf("ListenPort should be positive, got %d", cfg.ListenPort)
	}
}
