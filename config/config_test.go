package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Embedder.Provider != "ollama" {
		t.Errorf("default provider = %q, want ollama", cfg.Embedder.Provider)
	}
	if cfg.Embedder.Dimensions() != 1024 {
		t.Errorf("default dimensions = %d, want 1024", cfg.Embedder.Dimensions())
	}
	if cfg.Retrieval.DefaultLimit != 5 || cfg.Retrieval.MaxLimit != 100 {
		t.Errorf("default limits = %d/%d, want 5/100", cfg.Retrieval.DefaultLimit, cfg.Retrieval.MaxLimit)
	}
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *cfg != Default() {
		t.Errorf("missing file should load defaults, got %+v", cfg)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
database:
  path: /var/lib/memoryd/mem.db
embedder:
  provider: openai
  openai:
    api_key: sk-test
    dimensions: 256
retrieval:
  default_limit: 10
  max_limit: 50
retention:
  enabled: true
  max_age_days: 30
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "/var/lib/memoryd/mem.db" {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
	if cfg.Embedder.Provider != "openai" || cfg.Embedder.OpenAI.APIKey != "sk-test" {
		t.Errorf("embedder = %+v", cfg.Embedder)
	}
	if cfg.Embedder.Dimensions() != 256 {
		t.Errorf("dimensions = %d, want 256", cfg.Embedder.Dimensions())
	}
	// Untouched fields keep their defaults.
	if cfg.Embedder.OpenAI.Model != "text-embedding-3-small" {
		t.Errorf("openai model default lost: %q", cfg.Embedder.OpenAI.Model)
	}
	if cfg.Dedup.DistanceThreshold != 0.1 {
		t.Errorf("dedup threshold default lost: %f", cfg.Dedup.DistanceThreshold)
	}
	if cfg.Retrieval.DefaultLimit != 10 || cfg.Retrieval.MaxLimit != 50 {
		t.Errorf("retrieval limits = %d/%d", cfg.Retrieval.DefaultLimit, cfg.Retrieval.MaxLimit)
	}
	// Retention keeps its default schedule while enabling.
	if !cfg.Retention.Enabled || cfg.Retention.Schedule != "@daily" || cfg.Retention.MaxAgeDays != 30 {
		t.Errorf("retention = %+v", cfg.Retention)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("merged config should validate: %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(":\n  - not yaml"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate_Failures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"unknown provider", func(c *Config) { c.Embedder.Provider = "cohere" }},
		{"missing ollama model", func(c *Config) { c.Embedder.Ollama.Model = "" }},
		{"zero dimensions", func(c *Config) { c.Embedder.Ollama.Dimensions = 0 }},
		{"openai without key", func(c *Config) { c.Embedder.Provider = "openai" }},
		{"dedup threshold too large", func(c *Config) { c.Dedup.DistanceThreshold = 2.5 }},
		{"retrieval threshold zero", func(c *Config) { c.Retrieval.DistanceThreshold = 0 }},
		{"zero default limit", func(c *Config) { c.Retrieval.DefaultLimit = 0 }},
		{"max limit below default", func(c *Config) { c.Retrieval.MaxLimit = 1 }},
		{"max limit above cap", func(c *Config) { c.Retrieval.MaxLimit = 500 }},
		{"retention without schedule", func(c *Config) {
			c.Retention.Enabled = true
			c.Retention.Schedule = ""
		}},
		{"retention without max age", func(c *Config) {
			c.Retention.Enabled = true
			c.Retention.MaxAgeDays = 0
		}},
		{"extraction without key", func(c *Config) { c.Extraction.Enabled = true }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation failure")
			}
		})
	}
}
