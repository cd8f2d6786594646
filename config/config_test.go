package config

import (
	"testing"
	"time"
)

var envKeys = []string{
	"PORT", "MODEL_BACKEND", "MODEL_ID", "MODEL_DEVICE", "MODEL_PRECISION",
	"MAX_NEW_TOKENS", "INFERENCE_TIMEOUT", "MODEL_PROBE_ON_START", "PIPELINE_ENDPOINT_URL",
	"SYSTEM_PROMPT", "DB_ENABLED", "MAX_CONCURRENT_INFERENCES", "TRUSTED_PROXIES",
}

func clearEnv(t *testing.T) {
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Port != "7860" {
		t.Errorf("Port = %q, want 7860", cfg.Port)
	}
	if cfg.Backend != BackendPipeline {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendPipeline)
	}
	if cfg.ModelID != "google/medgemma-4b-it" {
		t.Errorf("ModelID = %q", cfg.ModelID)
	}
	if cfg.Device != "cpu" || cfg.Precision != "float32" {
		t.Errorf("Device/Precision = %q/%q, want cpu/float32", cfg.Device, cfg.Precision)
	}
	if cfg.MaxNewTokens != 512 {
		t.Errorf("MaxNewTokens = %d, want 512", cfg.MaxNewTokens)
	}
	if cfg.PipelineEndpointURL != "https://api-inference.huggingface.co/models/google/medgemma-4b-it" {
		t.Errorf("PipelineEndpointURL = %q", cfg.PipelineEndpointURL)
	}
	if cfg.SystemPrompt != defaultSystemPrompt {
		t.Errorf("SystemPrompt = %q", cfg.SystemPrompt)
	}
	if cfg.DBEnabled {
		t.Error("DBEnabled should default to false")
	}
	if cfg.TrustedProxies != nil {
		t.Errorf("TrustedProxies = %v, want none", cfg.TrustedProxies)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MODEL_BACKEND", "Ollama")
	t.Setenv("MODEL_DEVICE", "gpu")
	t.Setenv("MAX_NEW_TOKENS", "128")
	t.Setenv("INFERENCE_TIMEOUT", "5s")
	t.Setenv("MODEL_PROBE_ON_START", "true")
	t.Setenv("DB_ENABLED", "1")

	cfg := Load()

	if cfg.Backend != BackendOllama {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendOllama)
	}
	if cfg.ModelID != "llava" {
		t.Errorf("ModelID = %q, want backend default llava", cfg.ModelID)
	}
	if cfg.Precision != "bfloat16" {
		t.Errorf("Precision = %q, want bfloat16 on gpu", cfg.Precision)
	}
	if cfg.MaxNewTokens != 128 {
		t.Errorf("MaxNewTokens = %d, want 128", cfg.MaxNewTokens)
	}
	if cfg.InferenceTimeout != 5*time.Second {
		t.Errorf("InferenceTimeout = %v, want 5s", cfg.InferenceTimeout)
	}
	if !cfg.ProbeOnStart || !cfg.DBEnabled {
		t.Error("expected boolean overrides to be applied")
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_NEW_TOKENS", "lots")
	t.Setenv("INFERENCE_TIMEOUT", "soon")

	cfg := Load()

	if cfg.MaxNewTokens != 512 {
		t.Errorf("MaxNewTokens = %d, want default 512", cfg.MaxNewTokens)
	}
	if cfg.InferenceTimeout != 120*time.Second {
		t.Errorf("InferenceTimeout = %v, want default", cfg.InferenceTimeout)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.Backend = "torch" }, wantErr: true},
		{name: "zero tokens", mutate: func(c *Config) { c.MaxNewTokens = 0 }, wantErr: true},
		{name: "zero concurrency", mutate: func(c *Config) { c.MaxConcurrent = 0 }, wantErr: true},
		{name: "empty port", mutate: func(c *Config) { c.Port = "" }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.InferenceTimeout = -time.Second }, wantErr: true},
		{name: "missing token is not fatal", mutate: func(c *Config) { c.HFToken = "" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			cfg := Load()
			tc.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: "3306", DBName: "d"}
	if got, want := cfg.DSN(), "u:p@tcp(h:3306)/d?parseTime=true"; got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestLoadTrustedProxies(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRUSTED_PROXIES", " 10.0.0.1, ,192.168.0.0/16 ")

	cfg := Load()

	if len(cfg.TrustedProxies) != 2 || cfg.TrustedProxies[0] != "10.0.0.1" || cfg.TrustedProxies[1] != "192.168.0.0/16" {
		t.Errorf("TrustedProxies = %v", cfg.TrustedProxies)
	}
}
