// Package filter decides whether a source string may be sent for machine
// translation. It scans for PII first and only tokenizes clean text, so
// blocked content never ends up inside a token's original value.
package filter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/raaihank/l10n-sentinel/internal/privacy"
	"github.com/raaihank/l10n-sentinel/internal/tokenizer"
	"go.uber.org/zap"
)

// DefaultMaxLength is the rune limit applied when none is configured
const DefaultMaxLength = 10000

// snippetRadius bounds the text quoted in a markup error's context
const snippetRadius = 20

var completeGuideLink = regexp.MustCompile(`%LINK:[A-Za-z0-9_.\-/]+\|[^%\n]*%`)

// Filter composes a PII scanner, a tokenizer and structural validation.
// It is immutable and safe for concurrent use.
type Filter struct {
	scanner   Scanner
	tokenizer *tokenizer.Tokenizer
	maxLength int
	logger    *zap.Logger
}

// Option configures a Filter
type Option func(*Filter)

// WithMaxLength sets the rune limit reported as too_long
func WithMaxLength(n int) Option {
	return func(f *Filter) {
		if n > 0 {
			f.maxLength = n
		}
	}
}

// WithLogger sets the logger for verdicts
func WithLogger(l *zap.Logger) Option {
	return func(f *Filter) {
		if l != nil {
			f.logger = l
		}
	}
}

// New builds a filter. A nil scanner falls back to the default PII rules.
func New(scanner Scanner, tok *tokenizer.Tokenizer, opts ...Option) *Filter {
	if scanner == nil {
		scanner = ScannerFunc(privacy.ScanForPii)
	}
	f := &Filter{
		scanner:   scanner,
		tokenizer: tok,
		maxLength: DefaultMaxLength,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FilterForTranslation is a one-shot check with the default PII rules and
// length limit. It fails only when opts carries an invalid glossary.
func FilterForTranslation(text string, opts tokenizer.Options) (ContentFilterResult, error) {
	tok, err := tokenizer.New(opts)
	if err != nil {
		return ContentFilterResult{}, fmt.Errorf("failed to build tokenizer: %w", err)
	}
	return New(nil, tok).Check(text), nil
}

// Tokenizer returns the tokenizer the filter runs
func (f *Filter) Tokenizer() *tokenizer.Tokenizer {
	return f.tokenizer
}

// MaxLength returns the configured rune limit
func (f *Filter) MaxLength() int {
	return f.maxLength
}

// Check produces the verdict for text
func (f *Filter) Check(text string) ContentFilterResult {
	result := ContentFilterResult{
		PiiScan:          f.scanner.Scan(text),
		ValidationErrors: []ValidationError{},
	}

	if result.PiiScan.Blocked {
		result.ValidationErrors = append(result.ValidationErrors, ValidationError{
			Code:    CodeBlockedPii,
			Message: "text contains personal data that must not be sent for translation",
			Context: string(result.PiiScan.BlockReason),
		})
		f.log(result, text)
		return result
	}

	// Oversized or undecodable text is reported without tokenizing it
	if errs := f.validateInput(text); len(errs) > 0 {
		result.ValidationErrors = append(result.ValidationErrors, errs...)
		f.log(result, text)
		return result
	}

	tokenized := f.tokenizer.Tokenize(text)
	result.Tokenization = &tokenized
	result.ValidationErrors = append(result.ValidationErrors, validateMarkup(tokenized, f.tokenizer.Options())...)

	result.Passed = len(result.ValidationErrors) == 0
	f.log(result, text)
	return result
}

func (f *Filter) validateInput(text string) []ValidationError {
	var errs []ValidationError

	if !utf8.ValidString(text) {
		errs = append(errs, ValidationError{
			Code:    CodeInvalidUTF8,
			Message: "text is not valid UTF-8",
			Context: fmt.Sprintf("first invalid byte at offset %d", firstInvalidByte(text)),
		})
	}

	if n := utf8.RuneCountInString(text); n > f.maxLength {
		errs = append(errs, ValidationError{
			Code:    CodeTooLong,
			Message: fmt.Sprintf("text exceeds the %d character limit", f.maxLength),
			Context: fmt.Sprintf("length %d", n),
		})
	}

	return errs
}

// validateMarkup checks what is left in the tokenized text after detection.
// Well-formed markup has been replaced by placeholders.
func validateMarkup(tok tokenizer.TokenizationResult, opts tokenizer.Options) []ValidationError {
	var errs []ValidationError
	text := tok.TokenizedText

	if pos, ok := unbalancedBrace(text); ok {
		errs = append(errs, ValidationError{
			Code:    CodeMalformedMarkup,
			Message: "unbalanced curly braces",
			Context: snippet(text, pos),
		})
	}

	if pos, ok := unterminatedGuideLink(text); ok {
		errs = append(errs, ValidationError{
			Code:    CodeMalformedMarkup,
			Message: "unterminated guide link",
			Context: snippet(text, pos),
		})
	}

	if opts.TokenizeHTMLTags {
		if msg, ok := unbalancedTags(tok); ok {
			errs = append(errs, ValidationError{
				Code:    CodeMalformedMarkup,
				Message: "unbalanced HTML tags",
				Context: msg,
			})
		}
	}

	return errs
}

// unbalancedBrace returns the offset of the first brace that has no partner
func unbalancedBrace(text string) (int, bool) {
	var open []int
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '{':
			open = append(open, i)
		case '}':
			if len(open) == 0 {
				return i, true
			}
			open = open[:len(open)-1]
		}
	}
	if len(open) > 0 {
		return open[0], true
	}
	return 0, false
}

func unterminatedGuideLink(text string) (int, bool) {
	complete := completeGuideLink.FindAllStringIndex(text, -1)
	offset := 0
	for {
		idx := strings.Index(text[offset:], "%LINK:")
		if idx < 0 {
			return 0, false
		}
		pos := offset + idx

		covered := false
		for _, loc := range complete {
			if loc[0] == pos {
				covered = true
				break
			}
		}
		if !covered {
			return pos, true
		}
		offset = pos + len("%LINK:")
	}
}

// unbalancedTags walks the H tokens in text order with a tag stack
func unbalancedTags(tok tokenizer.TokenizationResult) (string, bool) {
	type tag struct {
		meta *tokenizer.Metadata
		raw  string
	}

	var tags []tag
	for _, placeholder := range tokenizer.FindPlaceholders(tok.TokenizedText) {
		t, ok := tok.TokenMap.Get(placeholder)
		if !ok || t.Type != tokenizer.TypeHTML || t.Metadata == nil {
			continue
		}
		tags = append(tags, tag{meta: t.Metadata, raw: t.Original})
	}

	var stack []tag
	for _, tg := range tags {
		switch {
		case tg.meta.SelfClosing:
		case !tg.meta.Closing:
			stack = append(stack, tg)
		case len(stack) == 0:
			return fmt.Sprintf("closing %s without opening tag", tg.raw), true
		case stack[len(stack)-1].meta.TagName != tg.meta.TagName:
			return fmt.Sprintf("%s closed by %s", stack[len(stack)-1].raw, tg.raw), true
		default:
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return fmt.Sprintf("%s is never closed", stack[len(stack)-1].raw), true
	}
	return "", false
}

func firstInvalidByte(text string) int {
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return -1
}

// snippet quotes the text around pos, aligned to rune boundaries
func snippet(text string, pos int) string {
	start := pos - snippetRadius
	if start < 0 {
		start = 0
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	end := pos + snippetRadius
	if end > len(text) {
		end = len(text)
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	return text[start:end]
}

// log records the verdict without the text itself
func (f *Filter) log(result ContentFilterResult, text string) {
	fields := []zap.Field{
		zap.Bool("passed", result.Passed),
		zap.Int("length", len(text)),
		zap.Bool("pii_blocked", result.PiiScan.Blocked),
		zap.Strings("error_codes", result.Codes()),
	}
	if result.Tokenization != nil {
		fields = append(fields, zap.Int("token_count", result.Tokenization.TokenMap.Len()))
	}
	f.logger.Debug("Content filter verdict", fields...)
}
