// Package config loads and validates the memoryd configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig locates the backing SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path,omitempty"`
}

// OllamaConfig configures the Ollama embedding provider.
type OllamaConfig struct {
	Host       string `yaml:"host,omitempty"`  // e.g. "http://localhost:11434"
	Model      string `yaml:"model,omitempty"` // embedding model name
	Dimensions int    `yaml:"dimensions,omitempty"`
}

// OpenAIConfig configures the OpenAI embedding provider.
type OpenAIConfig struct {
	APIKey     string `yaml:"api_key,omitempty"`
	BaseURL    string `yaml:"base_url,omitempty"`
	Model      string `yaml:"model,omitempty"`
	Dimensions int    `yaml:"dimensions,omitempty"`
}

// EmbedderConfig selects and configures the embedding provider. The
// provider's dimension is a deployment-time constant; the index is created
// with it and every embedding must match it.
type EmbedderConfig struct {
	Provider string       `yaml:"provider,omitempty"` // "ollama" or "openai"
	Ollama   OllamaConfig `yaml:"ollama,omitempty"`
	OpenAI   OpenAIConfig `yaml:"openai,omitempty"`
}

// Dimensions returns the configured provider's embedding dimension.
func (e EmbedderConfig) Dimensions() int {
	if e.Provider == "openai" {
		return e.OpenAI.Dimensions
	}
	return e.Ollama.Dimensions
}

// DedupConfig tunes write-time deduplication.
type DedupConfig struct {
	DistanceThreshold float64 `yaml:"distance_threshold,omitempty"`
}

// RetrievalConfig tunes similarity retrieval defaults.
type RetrievalConfig struct {
	DistanceThreshold float64 `yaml:"distance_threshold,omitempty"`
	DefaultLimit      int     `yaml:"default_limit,omitempty"`
	MaxLimit          int     `yaml:"max_limit,omitempty"`
}

// RetentionConfig schedules the episodic retention sweep.
type RetentionConfig struct {
	Enabled    bool   `yaml:"enabled,omitempty"`
	Schedule   string `yaml:"schedule,omitempty"` // cron spec, e.g. "@daily"
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

// ExtractionConfig configures the optional Claude memory extractor.
type ExtractionConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Model   string `yaml:"model,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
}

// SessionConfig sets the ambient scope applied to tool calls when the
// surrounding conversation layer supplies none.
type SessionConfig struct {
	DefaultUserID   string `yaml:"default_user_id,omitempty"`
	DefaultThreadID string `yaml:"default_thread_id,omitempty"`
}

// Config is the complete memoryd configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database,omitempty"`
	Embedder   EmbedderConfig   `yaml:"embedder,omitempty"`
	Dedup      DedupConfig      `yaml:"dedup,omitempty"`
	Retrieval  RetrievalConfig  `yaml:"retrieval,omitempty"`
	Retention  RetentionConfig  `yaml:"retention,omitempty"`
	Extraction ExtractionConfig `yaml:"extraction,omitempty"`
	Session    SessionConfig    `yaml:"session,omitempty"`
}

// Default returns the built-in configuration: local Ollama with bge-m3
// embeddings, tight thresholds, retention disabled.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Path: "memoryd.db"},
		Embedder: EmbedderConfig{
			Provider: "ollama",
			Ollama: OllamaConfig{
				Model:      "bge-m3",
				Dimensions: 1024,
			},
			OpenAI: OpenAIConfig{
				Model:      "text-embedding-3-small",
				Dimensions: 1536,
			},
		},
		Dedup:     DedupConfig{DistanceThreshold: 0.1},
		Retrieval: RetrievalConfig{DistanceThreshold: 0.1, DefaultLimit: 5, MaxLimit: 100},
		Retention: RetentionConfig{Schedule: "@daily", MaxAgeDays: 90},
		Extraction: ExtractionConfig{
			Model: "claude-3-5-haiku-latest",
		},
		Session: SessionConfig{DefaultUserID: "system"},
	}
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "memoryd.yaml"
	}
	return filepath.Join(home, ".config", "memoryd", "config.yaml")
}

// Load reads the YAML file at path and merges it over the defaults, with
// file values taking precedence. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) //nolint:gosec // G304: user-specified config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := mergo.Merge(&cfg, override, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration can run.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Embedder.Provider {
	case "ollama":
		if c.Embedder.Ollama.Model == "" {
			return fmt.Errorf("embedder.ollama.model is required")
		}
	case "openai":
		if c.Embedder.OpenAI.APIKey == "" {
			return fmt.Errorf("embedder.openai.api_key is required")
		}
	default:
		return fmt.Errorf("embedder.provider must be %q or %q, got %q", "ollama", "openai", c.Embedder.Provider)
	}
	if c.Embedder.Dimensions() <= 0 {
		return fmt.Errorf("embedder dimensions must be positive")
	}

	if c.Dedup.DistanceThreshold <= 0 || c.Dedup.DistanceThreshold > 2 {
		return fmt.Errorf("dedup.distance_threshold must be in (0, 2]")
	}
	if c.Retrieval.DistanceThreshold <= 0 || c.Retrieval.DistanceThreshold > 2 {
		return fmt.Errorf("retrieval.distance_threshold must be in (0, 2]")
	}
	if c.Retrieval.DefaultLimit <= 0 {
		return fmt.Errorf("retrieval.default_limit must be positive")
	}
	if c.Retrieval.MaxLimit < c.Retrieval.DefaultLimit || c.Retrieval.MaxLimit > 100 {
		return fmt.Errorf("retrieval.max_limit must be between default_limit and 100")
	}

	if c.Retention.Enabled {
		if c.Retention.Schedule == "" {
			return fmt.Errorf("retention.schedule is required when retention is enabled")
		}
		if c.Retention.MaxAgeDays <= 0 {
			return fmt.Errorf("retention.max_age_days must be positive when retention is enabled")
		}
	}

	if c.Extraction.Enabled {
		if c.Extraction.APIKey == "" {
			return fmt.Errorf("extraction.api_key is required when extraction is enabled")
		}
		if c.Extraction.Model == "" {
			return fmt.Errorf("extraction.model is required when extraction is enabled")
		}
	}

	return nil
}
