// Package glossary loads do-not-translate terms from YAML files.
package glossary

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/raaihank/l10n-sentinel/internal/tokenizer"
	"gopkg.in/yaml.v3"
)

// File is the on-disk glossary layout
type File struct {
	Terms []tokenizer.GlossaryTerm `yaml:"terms"`
}

// LoadFile reads and validates a glossary file
func LoadFile(path string) ([]tokenizer.GlossaryTerm, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading glossary file: %w", err)
	}

	terms, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("error parsing glossary file %s: %w", path, err)
	}
	return terms, nil
}

// Parse decodes glossary YAML. Unknown keys are rejected so typos in
// case_sensitive or match_whole_word do not silently fall back to defaults.
func Parse(data []byte) ([]tokenizer.GlossaryTerm, error) {
	var file File

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	if err := tokenizer.ValidateGlossary(file.Terms); err != nil {
		return nil, err
	}
	return file.Terms, nil
}

// Merge appends extra to base and validates the combined set. Terms in
// extra may not redefine terms in base.
func Merge(base, extra []tokenizer.GlossaryTerm) ([]tokenizer.GlossaryTerm, error) {
	merged := make([]tokenizer.GlossaryTerm, 0, len(base)+len(extra))
	merged = append(merged, base...)
	merged = append(merged, extra...)

	if err := tokenizer.ValidateGlossary(merged); err != nil {
		return nil, err
	}
	return merged, nil
}
