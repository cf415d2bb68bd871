package glossary

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/raaihank/l10n-sentinel/internal/tokenizer"
)

const sample = `
terms:
  - source: Amalfi Coast
    match_whole_word: true
    translations:
      de: Amalfiküste
      it: Costiera Amalfitana
  - source: SITA
    case_sensitive: true
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glossary.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatalf("Failed to write glossary: %v", err)
	}

	terms, err := LoadFile(path)
	if err != nil {
		t.Fatalf("Failed to load glossary: %v", err)
	}

	if len(terms) != 2 {
		t.Fatalf("Expected 2 terms, got %d", len(terms))
	}
	if !terms[0].MatchWholeWord || terms[0].Translations["de"] != "Amalfiküste" {
		t.Errorf("Unexpected first term: %+v", terms[0])
	}
	if !terms[1].CaseSensitive || terms[1].Translations != nil {
		t.Errorf("Unexpected second term: %+v", terms[1])
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "terms:\n  - source: Capri\n    casesensitive: true\n"},
		{"empty source", "terms:\n  - source: \"\"\n"},
		{"bad locale", "terms:\n  - source: Capri\n    translations:\n      \"not a locale!\": Capri\n"},
		{"duplicate", "terms:\n  - source: Capri\n  - source: capri\n"},
		{"not yaml", "terms: [unclosed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("Expected parse error")
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	terms, err := Parse(nil)
	if err != nil {
		t.Fatalf("Empty glossary should be valid: %v", err)
	}
	if len(terms) != 0 {
		t.Errorf("Expected no terms, got %d", len(terms))
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestMerge(t *testing.T) {
	base := []tokenizer.GlossaryTerm{{Source: "Positano"}}

	merged, err := Merge(base, []tokenizer.GlossaryTerm{{Source: "Ravello"}})
	if err != nil {
		t.Fatalf("Failed to merge: %v", err)
	}
	if len(merged) != 2 {
		t.Errorf("Expected 2 terms, got %d", len(merged))
	}

	if _, err := Merge(base, []tokenizer.GlossaryTerm{{Source: "positano"}}); err == nil {
		t.Error("Expected duplicate error across sets")
	}
}
