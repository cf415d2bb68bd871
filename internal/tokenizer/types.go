package tokenizer

import (
	"encoding/json"
	"fmt"
)

// TokenType identifies what kind of protected span a placeholder stands for
type TokenType string

const (
	// TypeURL marks http(s) and www. URLs
	TypeURL TokenType = "U"
	// TypeEmail marks email addresses
	TypeEmail TokenType = "E"
	// TypePhone marks phone numbers
	TypePhone TokenType = "P"
	// TypeInterpolation marks i18next {{var}} interpolations
	TypeInterpolation TokenType = "I"
	// TypeNesting marks i18next $t(key) nesting references
	TypeNesting TokenType = "J"
	// TypeHTML marks HTML open, close and self-closing tags
	TypeHTML TokenType = "H"
	// TypeLink marks %LINK:key|label% guide links
	TypeLink TokenType = "L"
	// TypeGlossary marks glossary terms
	TypeGlossary TokenType = "G"
	// TypePlaceholder marks {var}, {0} and ICU message placeholders
	TypePlaceholder TokenType = "C"
)

// Valid reports whether t is one of the known token types
func (t TokenType) Valid() bool {
	switch t {
	case TypeURL, TypeEmail, TypePhone, TypeInterpolation, TypeNesting,
		TypeHTML, TypeLink, TypeGlossary, TypePlaceholder:
		return true
	}
	return false
}

// Metadata carries type-specific detail for a token.
// Only the fields relevant to the token's type are populated.
type Metadata struct {
	// Guide links
	Key       string `json:"key,omitempty"`
	LabelText string `json:"labelText,omitempty"`

	// Glossary terms. SourceTerm is the surface form found in the text,
	// Term the configured source it matched.
	SourceTerm   string            `json:"sourceTerm,omitempty"`
	Term         string            `json:"term,omitempty"`
	Translations map[string]string `json:"translations,omitempty"`

	// HTML tags
	TagName     string `json:"tagName,omitempty"`
	Closing     bool   `json:"closing,omitempty"`
	SelfClosing bool   `json:"selfClosing,omitempty"`
}

// Token is one protected span replaced by a placeholder
type Token struct {
	Placeholder string    `json:"placeholder"`
	Type        TokenType `json:"type"`
	Seq         int       `json:"seq"`
	Original    string    `json:"original"`
	Metadata    *Metadata `json:"metadata,omitempty"`
}

// TokenMap is an ordered mapping from placeholder to token.
// Iteration order is detection order.
type TokenMap struct {
	tokens []Token
	index  map[string]int
}

// NewTokenMap builds a map from tokens in the given order.
// Later tokens with an already-present placeholder are dropped.
func NewTokenMap(tokens ...Token) TokenMap {
	m := TokenMap{
		tokens: make([]Token, 0, len(tokens)),
		index:  make(map[string]int, len(tokens)),
	}
	for _, tok := range tokens {
		m.add(tok)
	}
	return m
}

func (m *TokenMap) add(tok Token) bool {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	if _, exists := m.index[tok.Placeholder]; exists {
		return false
	}
	m.index[tok.Placeholder] = len(m.tokens)
	m.tokens = append(m.tokens, tok)
	return true
}

// Len returns the number of tokens
func (m TokenMap) Len() int {
	return len(m.tokens)
}

// Get returns the token for a placeholder
func (m TokenMap) Get(placeholder string) (Token, bool) {
	i, ok := m.index[placeholder]
	if !ok {
		return Token{}, false
	}
	return m.tokens[i], true
}

// Tokens returns a copy of the tokens in detection order
func (m TokenMap) Tokens() []Token {
	out := make([]Token, len(m.tokens))
	copy(out, m.tokens)
	return out
}

// Placeholders returns the placeholders in detection order
func (m TokenMap) Placeholders() []string {
	out := make([]string, len(m.tokens))
	for i, tok := range m.tokens {
		out[i] = tok.Placeholder
	}
	return out
}

// MarshalJSON encodes the map as an ordered array of tokens
func (m TokenMap) MarshalJSON() ([]byte, error) {
	if m.tokens == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(m.tokens)
}

// UnmarshalJSON decodes an ordered array of tokens
func (m *TokenMap) UnmarshalJSON(data []byte) error {
	var tokens []Token
	if err := json.Unmarshal(data, &tokens); err != nil {
		return err
	}
	decoded := NewTokenMap()
	for _, tok := range tokens {
		if !tok.Type.Valid() {
			return fmt.Errorf("invalid token type %q for %s", tok.Type, tok.Placeholder)
		}
		if tok.Placeholder == "" {
			tok.Placeholder = FormatPlaceholder(tok.Type, tok.Seq)
		}
		if !decoded.add(tok) {
			return fmt.Errorf("duplicate placeholder %s", tok.Placeholder)
		}
	}
	*m = decoded
	return nil
}

// TokenizationResult is the output of one Tokenize call
type TokenizationResult struct {
	TokenizedText   string   `json:"tokenizedText"`
	TokenMap        TokenMap `json:"tokenMap"`
	EscapedPatterns []string `json:"escapedPatterns"`
	HasTokens       bool     `json:"hasTokens"`
}

// FailureReason explains why a placeholder could not be restored
type FailureReason string

const (
	// FailureMissing means the placeholder does not appear at all
	FailureMissing FailureReason = "missing"
	// FailureMangled means a damaged variant of the placeholder was found
	FailureMangled FailureReason = "mangled"
)

// RestoreIssue is a diagnostic for one failed placeholder
type RestoreIssue struct {
	Placeholder string        `json:"placeholder"`
	Reason      FailureReason `json:"reason"`
	Found       string        `json:"found,omitempty"`
}

// RestorationResult is the output of one Restore call
type RestorationResult struct {
	RestoredText   string         `json:"restoredText"`
	RestoredTokens []string       `json:"restoredTokens"`
	FailedTokens   []string       `json:"failedTokens"`
	Issues         []RestoreIssue `json:"issues,omitempty"`
	Success        bool           `json:"success"`
}

// GlossaryTerm is an externally maintained term protected from free-form
// machine translation
type GlossaryTerm struct {
	Source         string            `json:"source" yaml:"source" mapstructure:"source" validate:"required,max=256"`
	Translations   map[string]string `json:"translations,omitempty" yaml:"translations" mapstructure:"translations" validate:"omitempty,dive,keys,required,endkeys,required"`
	CaseSensitive  bool              `json:"caseSensitive" yaml:"case_sensitive" mapstructure:"case_sensitive"`
	MatchWholeWord bool              `json:"matchWholeWord" yaml:"match_whole_word" mapstructure:"match_whole_word"`
}

// Options selects which detectors run
type Options struct {
	TokenizeURLs                  bool           `json:"tokenizeUrls" yaml:"urls" mapstructure:"urls"`
	TokenizeEmails                bool           `json:"tokenizeEmails" yaml:"emails" mapstructure:"emails"`
	TokenizePhones                bool           `json:"tokenizePhones" yaml:"phones" mapstructure:"phones"`
	TokenizeI18nextInterpolations bool           `json:"tokenizeI18nextInterpolations" yaml:"i18next_interpolations" mapstructure:"i18next_interpolations"`
	TokenizePlaceholders          bool           `json:"tokenizePlaceholders" yaml:"placeholders" mapstructure:"placeholders"`
	TokenizeGuideLinks            bool           `json:"tokenizeGuideLinks" yaml:"guide_links" mapstructure:"guide_links"`
	TokenizeHTMLTags              bool           `json:"tokenizeHtmlTags" yaml:"html_tags" mapstructure:"html_tags"`
	GlossaryTerms                 []GlossaryTerm `json:"glossaryTerms,omitempty" yaml:"glossary" mapstructure:"glossary"`
}

// DefaultOptions enables every detector except HTML tags, with no glossary
func DefaultOptions() Options {
	return Options{
		TokenizeURLs:                  true,
		TokenizeEmails:                true,
		TokenizePhones:                true,
		TokenizeI18nextInterpolations: true,
		TokenizePlaceholders:          true,
		TokenizeGuideLinks:            true,
	}
}
