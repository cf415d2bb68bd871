package filter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raaihank/l10n-sentinel/internal/config"
	"github.com/raaihank/l10n-sentinel/internal/logger"
	"github.com/raaihank/l10n-sentinel/internal/tokenizer"
)

func TestNewFromConfigMergesGlossaryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glossary.yaml")
	body := "terms:\n  - source: Amalfi Coast\n    translations:\n      de: Amalfiküste\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("Failed to write glossary: %v", err)
	}

	cfg := config.GetDefaults()
	cfg.Tokenizer.GlossaryFile = path
	cfg.Filter.MaxLength = 500

	f, detector, err := NewFromConfig(cfg, logger.Nop())
	if err != nil {
		t.Fatalf("Failed to build filter: %v", err)
	}
	if detector == nil {
		t.Fatal("Expected a detector")
	}
	if f.MaxLength() != 500 {
		t.Errorf("Expected max length 500, got %d", f.MaxLength())
	}

	result := f.Check("Visit the Amalfi Coast")
	if !result.Passed {
		t.Fatalf("Expected pass, got %+v", result.ValidationErrors)
	}
	if strings.Contains(result.Tokenization.TokenizedText, "Amalfi Coast") {
		t.Errorf("Glossary term was not tokenized: %q", result.Tokenization.TokenizedText)
	}
	tokens := result.Tokenization.TokenMap.Tokens()
	if len(tokens) != 1 || tokens[0].Type != tokenizer.TypeGlossary {
		t.Errorf("Expected one glossary token, got %+v", tokens)
	}
}

func TestNewFromConfigErrors(t *testing.T) {
	t.Run("missing glossary file", func(t *testing.T) {
		cfg := config.GetDefaults()
		cfg.Tokenizer.GlossaryFile = filepath.Join(t.TempDir(), "missing.yaml")
		if _, _, err := NewFromConfig(cfg, logger.Nop()); err == nil {
			t.Error("Expected error for missing glossary file")
		}
	})

	t.Run("unknown detector", func(t *testing.T) {
		cfg := config.GetDefaults()
		cfg.Privacy.Detectors = []string{"nonexistent"}
		if _, _, err := NewFromConfig(cfg, logger.Nop()); err == nil {
			t.Error("Expected error for unknown detector")
		}
	})
}
