package filter

import (
	"github.com/raaihank/l10n-sentinel/internal/privacy"
	"github.com/raaihank/l10n-sentinel/internal/tokenizer"
)

// Code classifies a validation error
type Code string

const (
	CodeTooLong         Code = "too_long"
	CodeInvalidUTF8     Code = "invalid_utf8"
	CodeBlockedPii      Code = "blocked_pii"
	CodeMalformedMarkup Code = "malformed_markup"
)

// ValidationError is one problem found in a submission
type ValidationError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Context string `json:"context,omitempty"`
}

func (e ValidationError) Error() string {
	if e.Context == "" {
		return string(e.Code) + ": " + e.Message
	}
	return string(e.Code) + ": " + e.Message + " (" + e.Context + ")"
}

// ContentFilterResult is the submission-time verdict for one text
type ContentFilterResult struct {
	Passed           bool                          `json:"passed"`
	Tokenization     *tokenizer.TokenizationResult `json:"tokenization,omitempty"`
	PiiScan          privacy.ScanResult            `json:"piiScan"`
	ValidationErrors []ValidationError             `json:"validationErrors"`
}

// Codes returns the validation error codes in report order
func (r ContentFilterResult) Codes() []string {
	codes := make([]string, len(r.ValidationErrors))
	for i, e := range r.ValidationErrors {
		codes[i] = string(e.Code)
	}
	return codes
}

// Scanner is the PII check the filter runs first
type Scanner interface {
	Scan(text string) privacy.ScanResult
}

// ScannerFunc adapts a function to Scanner
type ScannerFunc func(text string) privacy.ScanResult

func (f ScannerFunc) Scan(text string) privacy.ScanResult { return f(text) }
