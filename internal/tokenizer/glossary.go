package tokenizer

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"
)

var validate = validator.New()

// glossaryMatcher is a compiled, immutable matcher for one term
type glossaryMatcher struct {
	term    GlossaryTerm
	pattern *regexp.Regexp
}

// ValidateGlossary checks term definitions. Invalid terms are configuration
// errors and are reported together.
func ValidateGlossary(terms []GlossaryTerm) error {
	var errs []error
	seen := make(map[string]int, len(terms))

	for i, term := range terms {
		if err := validate.Struct(term); err != nil {
			errs = append(errs, fmt.Errorf("glossary term %d: %w", i, err))
			continue
		}
		if strings.TrimSpace(term.Source) != term.Source {
			errs = append(errs, fmt.Errorf("glossary term %d (%q): source has leading or trailing whitespace", i, term.Source))
		}
		if strings.ContainsAny(term.Source, OpenDelimiter+CloseDelimiter+"\x00") {
			errs = append(errs, fmt.Errorf("glossary term %d (%q): source contains reserved placeholder characters", i, term.Source))
		}

		key := "cs:" + term.Source
		if !term.CaseSensitive {
			key = "ci:" + strings.ToLower(term.Source)
		}
		if prev, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("glossary term %d (%q): duplicates term %d", i, term.Source, prev))
		} else {
			seen[key] = i
		}

		canonical := make(map[string]string, len(term.Translations))
		for locale := range term.Translations {
			tag, err := language.Parse(locale)
			if err != nil {
				errs = append(errs, fmt.Errorf("glossary term %d (%q): invalid locale %q: %w", i, term.Source, locale, err))
				continue
			}
			if other, dup := canonical[tag.String()]; dup {
				errs = append(errs, fmt.Errorf("glossary term %d (%q): locales %q and %q are the same", i, term.Source, other, locale))
				continue
			}
			canonical[tag.String()] = locale
		}
	}

	return errors.Join(errs...)
}

// compileGlossary builds matchers, longest source first. Ties keep the
// configured order.
func compileGlossary(terms []GlossaryTerm) ([]glossaryMatcher, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	matchers := make([]glossaryMatcher, 0, len(terms))
	for _, term := range terms {
		expr := regexp.QuoteMeta(term.Source)
		if !term.CaseSensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile glossary term %q: %w", term.Source, err)
		}
		matchers = append(matchers, glossaryMatcher{term: copyTerm(term), pattern: re})
	}

	sort.SliceStable(matchers, func(i, j int) bool {
		return utf8.RuneCountInString(matchers[i].term.Source) > utf8.RuneCountInString(matchers[j].term.Source)
	})
	return matchers, nil
}

// find returns the term's occurrences in text honouring whole-word matching
func (g glossaryMatcher) find(text string) []span {
	var spans []span
	for _, loc := range g.pattern.FindAllStringIndex(text, -1) {
		if g.term.MatchWholeWord && !atWordBoundary(text, loc[0], loc[1]) {
			continue
		}
		spans = append(spans, span{
			start: loc[0],
			end:   loc[1],
			typ:   TypeGlossary,
			meta: &Metadata{
				SourceTerm:   text[loc[0]:loc[1]],
				Term:         g.term.Source,
				Translations: copyTerm(g.term).Translations,
			},
		})
	}
	return spans
}

// atWordBoundary checks the runes on both sides of [start, end). Unlike \b it
// understands non-ASCII letters.
func atWordBoundary(text string, start, end int) bool {
	if start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		first, _ := utf8.DecodeRuneInString(text[start:end])
		if isWordRune(prev) && isWordRune(first) {
			return false
		}
	}
	if end < len(text) {
		next, _ := utf8.DecodeRuneInString(text[end:])
		last, _ := utf8.DecodeLastRuneInString(text[start:end])
		if isWordRune(next) && isWordRune(last) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func copyTerm(term GlossaryTerm) GlossaryTerm {
	if term.Translations == nil {
		return term
	}
	translations := make(map[string]string, len(term.Translations))
	for k, v := range term.Translations {
		translations[k] = v
	}
	term.Translations = translations
	return term
}
