package tokenizer

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// RestoreOptions tunes how placeholders are substituted back
type RestoreOptions struct {
	// Locale selects glossary translations. Empty restores source terms.
	Locale string
	// LinkLabels maps an L placeholder to its separately translated label
	LinkLabels map[string]string
}

// Restore substitutes placeholders in translated text using the token map
// from an earlier Tokenize call
func Restore(translated string, tok TokenizationResult, locale string) RestorationResult {
	return RestoreWithOptions(translated, tok, RestoreOptions{Locale: locale})
}

// RestoreWithOptions is Restore with link label overrides. It never fails:
// placeholders that cannot be found are reported in FailedTokens.
func RestoreWithOptions(translated string, tok TokenizationResult, opts RestoreOptions) RestorationResult {
	type hit struct {
		start       int
		end         int
		placeholder string
		replacement string
	}

	escaped := make(map[string]bool, len(tok.EscapedPatterns))
	for _, p := range tok.EscapedPatterns {
		escaped[p] = true
	}

	var hits []hit
	result := RestorationResult{
		RestoredTokens: []string{},
		FailedTokens:   []string{},
	}

	for _, t := range tok.TokenMap.tokens {
		idx := -1
		if !escaped[t.Placeholder] {
			idx = strings.Index(translated, t.Placeholder)
		}
		if idx < 0 {
			result.FailedTokens = append(result.FailedTokens, t.Placeholder)
			issue := RestoreIssue{Placeholder: t.Placeholder, Reason: FailureMissing}
			if found, ok := findMangled(translated, t.Type, t.Seq); ok {
				issue.Reason = FailureMangled
				issue.Found = found
			}
			result.Issues = append(result.Issues, issue)
			continue
		}
		hits = append(hits, hit{
			start:       idx,
			end:         idx + len(t.Placeholder),
			placeholder: t.Placeholder,
			replacement: replacementFor(t, opts),
		})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].start < hits[j].start })

	var b strings.Builder
	b.Grow(len(translated))
	pos := 0
	for _, h := range hits {
		b.WriteString(translated[pos:h.start])
		b.WriteString(h.replacement)
		pos = h.end
		result.RestoredTokens = append(result.RestoredTokens, h.placeholder)
	}
	b.WriteString(translated[pos:])

	result.RestoredText = b.String()
	result.Success = len(result.FailedTokens) == 0
	return result
}

func replacementFor(t Token, opts RestoreOptions) string {
	if t.Metadata == nil {
		return t.Original
	}

	switch t.Type {
	case TypeGlossary:
		if translated, ok := LookupTranslation(t.Metadata.Translations, opts.Locale); ok {
			return translated
		}
		if t.Metadata.SourceTerm != "" {
			return t.Metadata.SourceTerm
		}
	case TypeLink:
		label := t.Metadata.LabelText
		if override, ok := opts.LinkLabels[t.Placeholder]; ok {
			label = override
		}
		return "%LINK:" + t.Metadata.Key + "|" + label + "%"
	}
	return t.Original
}

// LookupTranslation finds the translation for locale: exact key first, then
// the same BCP 47 tag spelled differently, then the bare base language.
func LookupTranslation(translations map[string]string, locale string) (string, bool) {
	if len(translations) == 0 || locale == "" {
		return "", false
	}
	if v, ok := translations[locale]; ok && v != "" {
		return v, true
	}

	tag, err := language.Parse(locale)
	if err != nil {
		return "", false
	}

	var baseMatch string
	base, conf := tag.Base()
	for key, v := range translations {
		if v == "" {
			continue
		}
		keyTag, err := language.Parse(key)
		if err != nil {
			continue
		}
		if keyTag == tag {
			return v, true
		}
		if conf != language.No && keyTag.String() == base.String() {
			baseMatch = v
		}
	}

	if baseMatch != "" {
		return baseMatch, true
	}
	return "", false
}
