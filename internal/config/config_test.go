package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Filter.MaxLength != 10000 {
		t.Errorf("Expected default max length 10000, got %d", cfg.Filter.MaxLength)
	}
	if !cfg.Tokenizer.TokenizeURLs || cfg.Tokenizer.TokenizeHTMLTags {
		t.Errorf("Unexpected tokenizer defaults: %+v", cfg.Tokenizer.Options)
	}
	if cfg.Cache.SessionTTL != 24*time.Hour {
		t.Errorf("Expected 24h session TTL, got %s", cfg.Cache.SessionTTL)
	}
}

func TestLoadTokenizerSection(t *testing.T) {
	path := writeConfig(t, `
tokenizer:
  html_tags: true
  phones: false
  glossary_file: glossary.yaml
  glossary:
    - source: Positano
      translations:
        de: Positano
filter:
  max_length: 500
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if !cfg.Tokenizer.TokenizeHTMLTags {
		t.Error("Expected html_tags to be enabled")
	}
	if cfg.Tokenizer.TokenizePhones {
		t.Error("Expected phones to be disabled")
	}
	if !cfg.Tokenizer.TokenizeEmails {
		t.Error("Unset keys should keep their defaults")
	}
	if cfg.Tokenizer.GlossaryFile != "glossary.yaml" {
		t.Errorf("Unexpected glossary file: %q", cfg.Tokenizer.GlossaryFile)
	}
	if len(cfg.Tokenizer.GlossaryTerms) != 1 || cfg.Tokenizer.GlossaryTerms[0].Translations["de"] != "Positano" {
		t.Errorf("Unexpected inline glossary: %+v", cfg.Tokenizer.GlossaryTerms)
	}
	if cfg.Filter.MaxLength != 500 {
		t.Errorf("Expected max length 500, got %d", cfg.Filter.MaxLength)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SENTINEL_FILTER_MAX_LENGTH", "2048")
	t.Setenv("SENTINEL_LOGGING_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, "logging:\n  level: info\n"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Filter.MaxLength != 2048 {
		t.Errorf("Expected env max length 2048, got %d", cfg.Filter.MaxLength)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected env log level debug, got %s", cfg.Logging.Level)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
		{"zero max length", func(c *Config) { c.Filter.MaxLength = 0 }},
		{"mask format without type", func(c *Config) { c.Privacy.Masking.Format = "***" }},
		{"cache without url", func(c *Config) { c.Cache.Enabled = true; c.Cache.RedisURL = "" }},
		{"audit without url", func(c *Config) { c.Audit.Enabled = true; c.Audit.DatabaseURL = "" }},
		{"zero workers", func(c *Config) { c.ETL.WorkerCount = 0 }},
		{"bad trusted proxy", func(c *Config) { c.RateLimit.TrustedProxies = []string{"10.0.0.0/33"} }},
	}

	if err := validateConfig(GetDefaults()); err != nil {
		t.Fatalf("Defaults should be valid: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)
			if err := validateConfig(cfg); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for explicit missing config file")
	}
}
