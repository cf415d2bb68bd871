// Package tokenizer shields non-translatable spans behind opaque placeholders
// before text is sent to a machine-translation provider, and restores them
// afterward.
//
// Detection runs in a fixed priority order: guide links, HTML tags, i18next
// interpolations and nesting, brace placeholders, URLs, emails, phone numbers,
// glossary terms. A range claimed by an earlier detector is masked before the
// next one runs, so no character is ever claimed twice.
package tokenizer

import (
	"fmt"
	"sort"
	"strings"
)

// Tokenizer is a compiled, immutable detector set. It is safe for concurrent use.
type Tokenizer struct {
	opts      Options
	detectors []detector
}

// New validates opts and compiles the detector set
func New(opts Options) (*Tokenizer, error) {
	if err := ValidateGlossary(opts.GlossaryTerms); err != nil {
		return nil, fmt.Errorf("invalid glossary: %w", err)
	}

	glossary, err := compileGlossary(opts.GlossaryTerms)
	if err != nil {
		return nil, err
	}

	t := &Tokenizer{opts: opts}
	t.opts.GlossaryTerms = make([]GlossaryTerm, len(opts.GlossaryTerms))
	for i, term := range opts.GlossaryTerms {
		t.opts.GlossaryTerms[i] = copyTerm(term)
	}

	if opts.TokenizeGuideLinks {
		t.detectors = append(t.detectors, detector{typ: TypeLink, find: findGuideLinks})
	}
	if opts.TokenizeHTMLTags {
		t.detectors = append(t.detectors, detector{typ: TypeHTML, find: findHTMLTags})
	}
	if opts.TokenizeI18nextInterpolations {
		t.detectors = append(t.detectors,
			detector{typ: TypeInterpolation, find: findInterpolations},
			detector{typ: TypeNesting, find: findNesting},
		)
	}
	if opts.TokenizePlaceholders {
		t.detectors = append(t.detectors, detector{typ: TypePlaceholder, find: findBracePlaceholders})
	}
	if opts.TokenizeURLs {
		t.detectors = append(t.detectors, detector{typ: TypeURL, find: findURLs})
	}
	if opts.TokenizeEmails {
		t.detectors = append(t.detectors, detector{typ: TypeEmail, find: findEmails})
	}
	if opts.TokenizePhones {
		t.detectors = append(t.detectors, detector{typ: TypePhone, find: findPhones})
	}
	for _, g := range glossary {
		t.detectors = append(t.detectors, detector{typ: TypeGlossary, find: g.find})
	}

	return t, nil
}

// Tokenize is a one-shot helper for callers that do not reuse a Tokenizer
func Tokenize(text string, opts Options) (TokenizationResult, error) {
	t, err := New(opts)
	if err != nil {
		return TokenizationResult{}, err
	}
	return t.Tokenize(text), nil
}

// Options returns a copy of the options the tokenizer was built with
func (t *Tokenizer) Options() Options {
	opts := t.opts
	opts.GlossaryTerms = make([]GlossaryTerm, len(t.opts.GlossaryTerms))
	for i, term := range t.opts.GlossaryTerms {
		opts.GlossaryTerms[i] = copyTerm(term)
	}
	return opts
}

// Tokenize replaces protected spans in text with placeholders. It never fails:
// anything a detector cannot confidently claim stays plain text.
func (t *Tokenizer) Tokenize(text string) TokenizationResult {
	s := newScan(text)

	for _, loc := range placeholderPattern.FindAllStringIndex(text, -1) {
		s.escape(loc[0], loc[1])
	}

	for _, d := range t.detectors {
		for _, sp := range d.find(s.maskedText()) {
			s.claim(sp)
		}
	}

	return s.result()
}

// scan holds the per-call state of one Tokenize invocation
type scan struct {
	text    string
	mask    []byte
	claimed []bool
	dirty   bool
	masked  string

	seq     int
	tokens  []Token
	spans   []span
	escaped []string
	reserve map[string]bool
}

func newScan(text string) *scan {
	return &scan{
		text:    text,
		mask:    []byte(text),
		claimed: make([]bool, len(text)),
		masked:  text,
		reserve: make(map[string]bool),
		escaped: []string{},
	}
}

// escape marks a pre-existing placeholder-shaped substring as off limits
func (s *scan) escape(start, end int) {
	literal := s.text[start:end]
	s.escaped = append(s.escaped, literal)
	s.reserve[literal] = true
	s.markClaimed(start, end)
}

// claim accepts a span unless it overlaps anything already claimed
func (s *scan) claim(sp span) bool {
	if sp.start < 0 || sp.end > len(s.text) || sp.start >= sp.end {
		return false
	}
	for i := sp.start; i < sp.end; i++ {
		if s.claimed[i] {
			return false
		}
	}
	s.markClaimed(sp.start, sp.end)

	seq := s.nextSeq(sp.typ)
	s.tokens = append(s.tokens, Token{
		Placeholder: FormatPlaceholder(sp.typ, seq),
		Type:        sp.typ,
		Seq:         seq,
		Original:    s.text[sp.start:sp.end],
		Metadata:    sp.meta,
	})
	s.spans = append(s.spans, sp)
	return true
}

// nextSeq advances the counter, skipping numbers whose placeholder already
// appears literally in the input
func (s *scan) nextSeq(typ TokenType) int {
	for {
		s.seq++
		if !s.reserve[FormatPlaceholder(typ, s.seq)] {
			return s.seq
		}
	}
}

func (s *scan) markClaimed(start, end int) {
	for i := start; i < end; i++ {
		s.claimed[i] = true
		s.mask[i] = maskByte
	}
	s.dirty = true
}

func (s *scan) maskedText() string {
	if s.dirty {
		s.masked = string(s.mask)
		s.dirty = false
	}
	return s.masked
}

func (s *scan) result() TokenizationResult {
	if len(s.tokens) == 0 {
		return TokenizationResult{
			TokenizedText:   s.text,
			TokenMap:        NewTokenMap(),
			EscapedPatterns: s.escaped,
		}
	}

	order := make([]int, len(s.spans))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return s.spans[order[a]].start < s.spans[order[b]].start
	})

	var b strings.Builder
	b.Grow(len(s.text))
	pos := 0
	for _, i := range order {
		sp := s.spans[i]
		b.WriteString(s.text[pos:sp.start])
		b.WriteString(s.tokens[i].Placeholder)
		pos = sp.end
	}
	b.WriteString(s.text[pos:])

	return TokenizationResult{
		TokenizedText:   b.String(),
		TokenMap:        NewTokenMap(s.tokens...),
		EscapedPatterns: s.escaped,
		HasTokens:       true,
	}
}
