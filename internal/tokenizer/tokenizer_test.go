package tokenizer

import (
	"reflect"
	"strings"
	"sync"
	"testing"
)

func mustNew(t *testing.T, opts Options) *Tokenizer {
	t.Helper()
	tok, err := New(opts)
	if err != nil {
		t.Fatalf("Failed to create tokenizer: %v", err)
	}
	return tok
}

func TestGuideLinkLabelSeparation(t *testing.T) {
	tok := mustNew(t, DefaultOptions())

	result := tok.Tokenize("See %LINK:fornilloBeach|Fornillo Beach%")

	if result.TokenizedText != "See ⟦TL001⟧" {
		t.Errorf("Unexpected tokenized text: %q", result.TokenizedText)
	}
	if result.TokenMap.Len() != 1 {
		t.Fatalf("Expected 1 token, got %d", result.TokenMap.Len())
	}

	link, ok := result.TokenMap.Get("⟦TL001⟧")
	if !ok {
		t.Fatal("Link token not found in token map")
	}
	if link.Type != TypeLink {
		t.Errorf("Expected type L, got %s", link.Type)
	}
	if link.Metadata == nil {
		t.Fatal("Link token has no metadata")
	}
	if link.Metadata.Key != "fornilloBeach" {
		t.Errorf("Expected key 'fornilloBeach', got %q", link.Metadata.Key)
	}
	if link.Metadata.LabelText != "Fornillo Beach" {
		t.Errorf("Expected label 'Fornillo Beach', got %q", link.Metadata.LabelText)
	}
}

func TestTokenizeDetectorOrder(t *testing.T) {
	tok := mustNew(t, DefaultOptions())

	result := tok.Tokenize("Hello {{name}}, call +1 555 123 4567 or email me@example.com")

	want := "Hello ⟦TI001⟧, call ⟦TP003⟧ or email ⟦TE002⟧"
	if result.TokenizedText != want {
		t.Errorf("Tokenized text mismatch:\n got: %q\nwant: %q", result.TokenizedText, want)
	}

	wantOrder := []string{"⟦TI001⟧", "⟦TE002⟧", "⟦TP003⟧"}
	got := result.TokenMap.Placeholders()
	if strings.Join(got, ",") != strings.Join(wantOrder, ",") {
		t.Errorf("Token map order mismatch: got %v, want %v", got, wantOrder)
	}

	phone, _ := result.TokenMap.Get("⟦TP003⟧")
	if phone.Original != "+1 555 123 4567" {
		t.Errorf("Unexpected phone original: %q", phone.Original)
	}
	if !result.HasTokens {
		t.Error("HasTokens should be true")
	}
}

func TestTokenizeNoDoubleClaim(t *testing.T) {
	tok := mustNew(t, DefaultOptions())

	result := tok.Tokenize("Open https://example.com/{id}/edit now")

	if result.TokenMap.Len() != 2 {
		t.Fatalf("Expected 2 tokens, got %d: %v", result.TokenMap.Len(), result.TokenMap.Placeholders())
	}
	placeholder, _ := result.TokenMap.Get("⟦TC001⟧")
	if placeholder.Original != "{id}" {
		t.Errorf("Expected placeholder {id}, got %q", placeholder.Original)
	}
	url, _ := result.TokenMap.Get("⟦TU002⟧")
	if url.Original != "https://example.com/" {
		t.Errorf("URL must stop at the claimed placeholder, got %q", url.Original)
	}
	if strings.Contains(url.Original, "⟦") {
		t.Error("URL token contains a nested placeholder")
	}
}

func TestTokenizeURLs(t *testing.T) {
	tok := mustNew(t, DefaultOptions())

	tests := []struct {
		name string
		text string
		want string
	}{
		{"trailing period", "Go to https://example.com/path.", "https://example.com/path"},
		{"www prefix", "Book at www.positano.it, today", "www.positano.it"},
		{"balanced parens", "Docs: https://en.wikipedia.org/wiki/Amalfi_(town)", "https://en.wikipedia.org/wiki/Amalfi_(town)"},
		{"unbalanced paren", "(see https://example.com/a)", "https://example.com/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tok.Tokenize(tt.text)
			var found bool
			for _, token := range result.TokenMap.Tokens() {
				if token.Type == TypeURL {
					found = true
					if token.Original != tt.want {
						t.Errorf("Expected URL %q, got %q", tt.want, token.Original)
					}
				}
			}
			if !found {
				t.Errorf("No URL token found in %q", tt.text)
			}
		})
	}
}

func TestTokenizeLeavesAmbiguousTextAlone(t *testing.T) {
	tok := mustNew(t, DefaultOptions())

	texts := []string{
		"",
		"Hello {name",
		"Unclosed {{ brace",
		"%LINK:broken label without end",
		"Released 2024-10-19",
		"Population 10 000 000",
		"Order 123456789 shipped",
		"Server 192.168.100.200",
		"Empty braces {} and {{ }}",
	}

	for _, text := range texts {
		t.Run(text, func(t *testing.T) {
			result := tok.Tokenize(text)
			if result.HasTokens {
				t.Errorf("Expected no tokens, got %v", result.TokenMap.Placeholders())
			}
			if result.TokenizedText != text {
				t.Errorf("Text changed: %q -> %q", text, result.TokenizedText)
			}
		})
	}
}

func TestTokenizeI18nextAndICU(t *testing.T) {
	tok := mustNew(t, DefaultOptions())

	tests := []struct {
		name     string
		text     string
		typ      TokenType
		original string
	}{
		{"interpolation", "Hi {{user.name}}!", TypeInterpolation, "{{user.name}}"},
		{"formatted interpolation", "Total {{amount, currency}}", TypeInterpolation, "{{amount, currency}}"},
		{"nesting", "Press $t(common.ok) to continue", TypeNesting, "$t(common.ok)"},
		{"positional", "File {0} saved", TypePlaceholder, "{0}"},
		{"named", "Welcome {guest}", TypePlaceholder, "{guest}"},
		{"plural", "You have {count, plural, one {# room} other {# rooms}} left", TypePlaceholder, "{count, plural, one {# room} other {# rooms}}"},
		{"number", "Price {price, number, currency}", TypePlaceholder, "{price, number, currency}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tok.Tokenize(tt.text)
			tokens := result.TokenMap.Tokens()
			if len(tokens) != 1 {
				t.Fatalf("Expected 1 token, got %d: %v", len(tokens), result.TokenMap.Placeholders())
			}
			if tokens[0].Type != tt.typ {
				t.Errorf("Expected type %s, got %s", tt.typ, tokens[0].Type)
			}
			if tokens[0].Original != tt.original {
				t.Errorf("Expected original %q, got %q", tt.original, tokens[0].Original)
			}
		})
	}
}

func TestTokenizeHTMLTags(t *testing.T) {
	opts := DefaultOptions()
	opts.TokenizeHTMLTags = true
	tok := mustNew(t, opts)

	result := tok.Tokenize(`<b class="x">Bold</b> line<br/>`)

	if result.TokenizedText != "⟦TH001⟧Bold⟦TH002⟧ line⟦TH003⟧" {
		t.Errorf("Unexpected tokenized text: %q", result.TokenizedText)
	}

	open, _ := result.TokenMap.Get("⟦TH001⟧")
	if open.Metadata.TagName != "b" || open.Metadata.Closing {
		t.Errorf("Unexpected open tag metadata: %+v", open.Metadata)
	}
	closing, _ := result.TokenMap.Get("⟦TH002⟧")
	if !closing.Metadata.Closing {
		t.Error("Expected closing tag")
	}
	br, _ := result.TokenMap.Get("⟦TH003⟧")
	if !br.Metadata.SelfClosing {
		t.Error("Expected self-closing tag")
	}

	plain := mustNew(t, DefaultOptions()).Tokenize("<b>Bold</b>")
	if plain.HasTokens {
		t.Error("HTML tags must not be tokenized unless enabled")
	}
}

func TestTokenizeDisabledDetectors(t *testing.T) {
	tok := mustNew(t, Options{})

	text := "Mail me@example.com or visit https://example.com {{name}}"
	result := tok.Tokenize(text)

	if result.HasTokens || result.TokenizedText != text {
		t.Errorf("Expected no tokens with every detector disabled, got %q", result.TokenizedText)
	}
}

func TestEscapedPatterns(t *testing.T) {
	tok := mustNew(t, DefaultOptions())

	text := "Keep ⟦TU001⟧ and visit https://example.com"
	result := tok.Tokenize(text)

	if len(result.EscapedPatterns) != 1 || result.EscapedPatterns[0] != "⟦TU001⟧" {
		t.Fatalf("Expected escaped pattern ⟦TU001⟧, got %v", result.EscapedPatterns)
	}
	if _, ok := result.TokenMap.Get("⟦TU001⟧"); ok {
		t.Fatal("Escaped pattern must not be a live token")
	}
	if result.TokenizedText != "Keep ⟦TU001⟧ and visit ⟦TU002⟧" {
		t.Errorf("Unexpected tokenized text: %q", result.TokenizedText)
	}

	restored := Restore(result.TokenizedText, result, "")
	if restored.RestoredText != text {
		t.Errorf("Round trip mismatch: %q", restored.RestoredText)
	}
	if len(restored.RestoredTokens) != 1 || restored.RestoredTokens[0] != "⟦TU002⟧" {
		t.Errorf("Only the live token should be restored, got %v", restored.RestoredTokens)
	}
}

func TestGlossaryTerms(t *testing.T) {
	opts := DefaultOptions()
	opts.GlossaryTerms = []GlossaryTerm{
		{Source: "Sorrento", MatchWholeWord: true},
		{Source: "Amalfi Coast", Translations: map[string]string{"it": "Costiera Amalfitana"}, MatchWholeWord: true},
		{Source: "Amalfi", CaseSensitive: true, MatchWholeWord: true},
	}
	tok := mustNew(t, opts)

	t.Run("LongestTermFirst", func(t *testing.T) {
		result := tok.Tokenize("Drive the Amalfi Coast from Amalfi")
		tokens := result.TokenMap.Tokens()
		if len(tokens) != 2 {
			t.Fatalf("Expected 2 glossary tokens, got %d", len(tokens))
		}
		if tokens[0].Metadata.Term != "Amalfi Coast" {
			t.Errorf("Expected longest term first, got %q", tokens[0].Metadata.Term)
		}
		if tokens[1].Original != "Amalfi" {
			t.Errorf("Expected second token 'Amalfi', got %q", tokens[1].Original)
		}
	})

	t.Run("CaseAndWholeWord", func(t *testing.T) {
		result := tok.Tokenize("sorrento and Sorrentoland and amalfi")
		tokens := result.TokenMap.Tokens()
		if len(tokens) != 1 {
			t.Fatalf("Expected 1 glossary token, got %d: %v", len(tokens), result.TokenizedText)
		}
		if tokens[0].Metadata.SourceTerm != "sorrento" {
			t.Errorf("Expected surface form 'sorrento', got %q", tokens[0].Metadata.SourceTerm)
		}
		if tokens[0].Metadata.Term != "Sorrento" {
			t.Errorf("Expected configured term 'Sorrento', got %q", tokens[0].Metadata.Term)
		}
	})

	t.Run("NotInsideClaimedSpans", func(t *testing.T) {
		result := tok.Tokenize("See https://sorrento.example.com")
		for _, token := range result.TokenMap.Tokens() {
			if token.Type == TypeGlossary {
				t.Errorf("Glossary matched inside a URL: %+v", token)
			}
		}
	})
}

func TestNewRejectsInvalidGlossary(t *testing.T) {
	tests := []struct {
		name  string
		terms []GlossaryTerm
	}{
		{"empty source", []GlossaryTerm{{Source: ""}}},
		{"whitespace", []GlossaryTerm{{Source: " Capri "}}},
		{"delimiter", []GlossaryTerm{{Source: "⟦Capri⟧"}}},
		{"duplicate", []GlossaryTerm{{Source: "Capri"}, {Source: "capri"}}},
		{"bad locale", []GlossaryTerm{{Source: "Capri", Translations: map[string]string{"not a locale!": "x"}}}},
		{"empty translation", []GlossaryTerm{{Source: "Capri", Translations: map[string]string{"de": ""}}}},
		{"same locale twice", []GlossaryTerm{{Source: "Capri", Translations: map[string]string{"pt-BR": "a", "pt_BR": "b"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.GlossaryTerms = tt.terms
			if _, err := New(opts); err == nil {
				t.Error("Expected configuration error")
			}
		})
	}

	opts := DefaultOptions()
	opts.GlossaryTerms = []GlossaryTerm{{Source: "Capri"}, {Source: "capri", CaseSensitive: true}}
	if _, err := New(opts); err != nil {
		t.Errorf("Case-sensitive variant should be accepted: %v", err)
	}
}

func TestRoundTripIdentity(t *testing.T) {
	texts := []string{
		"",
		"Plain prose with nothing to protect.",
		"See %LINK:fornilloBeach|Fornillo Beach% or call (089) 123-4567.",
		"Hello {{name}}, your booking {0} is at https://example.com/b?id=1&x=2.",
		"Mail info@positano.example or +39 089 875 067 before {date, date, short}",
		"<p>Welcome to <b>Amalfi</b></p><br/>",
		"Prices: {count, plural, one {# night} other {# nights}} $t(pricing.note)",
		"Literal ⟦TU001⟧ and ⟦TC002⟧ stay put next to www.example.org",
		"Ünïcödé Amalfi Coast — ☀️ {x} sorrento",
		"Broken {name and %LINK:key|label without end",
	}

	optionSets := map[string]Options{
		"defaults": DefaultOptions(),
		"none":     {},
		"html+glossary": func() Options {
			o := DefaultOptions()
			o.TokenizeHTMLTags = true
			o.GlossaryTerms = []GlossaryTerm{
				{Source: "Amalfi Coast", Translations: map[string]string{"de": "Amalfiküste"}},
				{Source: "Sorrento", MatchWholeWord: true},
				{Source: "Amalfi", MatchWholeWord: true},
			}
			return o
		}(),
	}

	for name, opts := range optionSets {
		tok := mustNew(t, opts)
		for _, text := range texts {
			t.Run(name+"/"+text, func(t *testing.T) {
				tokenized := tok.Tokenize(text)
				restored := Restore(tokenized.TokenizedText, tokenized, "")
				if !restored.Success {
					t.Fatalf("Round trip failed, failed tokens: %v", restored.FailedTokens)
				}
				if restored.RestoredText != text {
					t.Errorf("Round trip mismatch:\n got: %q\nwant: %q", restored.RestoredText, text)
				}
				if len(restored.RestoredTokens) != tokenized.TokenMap.Len() {
					t.Errorf("Expected %d restored tokens, got %d", tokenized.TokenMap.Len(), len(restored.RestoredTokens))
				}
			})
		}
	}
}

func TestTokenizeConcurrentDeterminism(t *testing.T) {
	tok := mustNew(t, DefaultOptions())
	text := "Hi {{name}}, visit https://example.com or mail a@b.co, call +1 555 123 4567"
	want := tok.Tokenize(text)

	var wg sync.WaitGroup
	errs := make(chan string, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := tok.Tokenize(text)
			if got.TokenizedText != want.TokenizedText {
				errs <- got.TokenizedText
			}
		}()
	}
	wg.Wait()
	close(errs)

	for got := range errs {
		t.Errorf("Concurrent tokenization diverged: %q", got)
	}
}

func TestPlaceholderGrammar(t *testing.T) {
	if got := FormatPlaceholder(TypeURL, 1); got != "⟦TU001⟧" {
		t.Errorf("Expected ⟦TU001⟧, got %q", got)
	}
	if got := FormatPlaceholder(TypeGlossary, 1234); got != "⟦TG1234⟧" {
		t.Errorf("Expected ⟦TG1234⟧, got %q", got)
	}

	typ, seq, ok := ParsePlaceholder("⟦TE042⟧")
	if !ok || typ != TypeEmail || seq != 42 {
		t.Errorf("Unexpected parse result: %s %d %v", typ, seq, ok)
	}
	for _, bad := range []string{"⟦TX001⟧", "⟦TU01⟧", "[TU001]", "⟦TU000⟧", "x⟦TU001⟧"} {
		if _, _, ok := ParsePlaceholder(bad); ok {
			t.Errorf("Expected %q to be rejected", bad)
		}
	}
}

func TestFindPlaceholders(t *testing.T) {
	got := FindPlaceholders("a ⟦TU001⟧ b ⟦TX001⟧ [TE002] ⟦TE12⟧ ⟦TG004⟧")
	want := []string{"⟦TU001⟧", "⟦TG004⟧"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if got := FindPlaceholders("no tokens here"); len(got) != 0 {
		t.Errorf("Expected no placeholders, got %v", got)
	}
}
