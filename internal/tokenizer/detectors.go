package tokenizer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maskByte overwrites claimed ranges before later detectors run. None of the
// patterns below accept it, so a masked range acts as a hard boundary.
const maskByte = 0x00

// span is a candidate match in byte offsets
type span struct {
	start int
	end   int
	typ   TokenType
	meta  *Metadata
}

// detector finds candidate spans in (masked) text. Implementations are pure.
type detector struct {
	typ  TokenType
	find func(text string) []span
}

var (
	guideLinkPattern = regexp.MustCompile(`%LINK:([A-Za-z0-9_.\-/]+)\|([^%\n\x00]*)%`)

	htmlTagPattern = regexp.MustCompile(`</?([A-Za-z][A-Za-z0-9\-]*)(?:\s[^<>\x00]*?)?\s*(/?)>`)

	interpolationPattern = regexp.MustCompile(`\{\{[^{}\x00]+\}\}`)
	nestingPattern       = regexp.MustCompile(`\$t\(\s*[A-Za-z0-9_.:\-]+\s*(?:,\s*\{[^(){}\x00]*\}\s*)?\)`)

	// ICU alternatives come first so that {count, plural, ...} is taken whole
	placeholderBracePattern = regexp.MustCompile(
		`\{\s*[A-Za-z0-9_]+\s*,\s*(?:plural|select|selectordinal)\s*,(?:[^{}\x00]|\{[^{}\x00]*\})*\}` +
			`|\{\s*[A-Za-z0-9_]+\s*,\s*(?:number|date|time)(?:\s*,\s*[^{}\x00]*)?\}` +
			`|\{[A-Za-z0-9_.]+\}`)

	urlPattern   = regexp.MustCompile(`(?i)\b(?:https?://|ftp://|www\.)[^\s<>"'\x00]+`)
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9](?:[A-Za-z0-9\-]*[A-Za-z0-9])?(?:\.[A-Za-z0-9](?:[A-Za-z0-9\-]*[A-Za-z0-9])?)*\.[A-Za-z]{2,}\b`)
	phonePattern = regexp.MustCompile(`(?:\+\d{1,3}[\s.\-]?)?(?:\(\d{1,4}\)[\s.\-]?)?\d{2,4}(?:[\s.\-]\d{2,8}){1,4}`)

	datePattern = regexp.MustCompile(`^(?:\d{4}[\-./]\d{1,2}[\-./]\d{1,2}|\d{1,2}[\-./]\d{1,2}[\-./]\d{2,4})$`)
)

// voidElements never have a closing tag
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

func findGuideLinks(text string) []span {
	var spans []span
	for _, m := range guideLinkPattern.FindAllStringSubmatchIndex(text, -1) {
		spans = append(spans, span{
			start: m[0],
			end:   m[1],
			typ:   TypeLink,
			meta: &Metadata{
				Key:       text[m[2]:m[3]],
				LabelText: text[m[4]:m[5]],
			},
		})
	}
	return spans
}

func findHTMLTags(text string) []span {
	var spans []span
	for _, m := range htmlTagPattern.FindAllStringSubmatchIndex(text, -1) {
		name := strings.ToLower(text[m[2]:m[3]])
		tag := text[m[0]:m[1]]
		closing := strings.HasPrefix(tag, "</")
		selfClosing := !closing && (m[5] > m[4] || strings.HasSuffix(strings.TrimSpace(tag[:len(tag)-1]), "/") || voidElements[name])
		spans = append(spans, span{
			start: m[0],
			end:   m[1],
			typ:   TypeHTML,
			meta: &Metadata{
				TagName:     name,
				Closing:     closing,
				SelfClosing: selfClosing,
			},
		})
	}
	return spans
}

func findInterpolations(text string) []span {
	var spans []span
	for _, loc := range interpolationPattern.FindAllStringIndex(text, -1) {
		inner := strings.TrimSpace(text[loc[0]+2 : loc[1]-2])
		if inner == "" || inner == "-" {
			continue
		}
		spans = append(spans, span{start: loc[0], end: loc[1], typ: TypeInterpolation})
	}
	return spans
}

func findNesting(text string) []span {
	return simpleSpans(nestingPattern, text, TypeNesting)
}

func findBracePlaceholders(text string) []span {
	return simpleSpans(placeholderBracePattern, text, TypePlaceholder)
}

func findURLs(text string) []span {
	var spans []span
	for _, loc := range urlPattern.FindAllStringIndex(text, -1) {
		end := loc[0] + trimURL(text[loc[0]:loc[1]])
		candidate := strings.ToLower(text[loc[0]:end])
		if candidate == "www." || strings.HasSuffix(candidate, "://") {
			continue
		}
		spans = append(spans, span{start: loc[0], end: end, typ: TypeURL})
	}
	return spans
}

// trimURL drops trailing sentence punctuation and unbalanced closing brackets,
// returning the kept length
func trimURL(u string) int {
	end := len(u)
	for end > 0 {
		c := u[end-1]
		switch c {
		case '.', ',', ';', ':', '!', '?', '\'', '"':
			end--
			continue
		case ')':
			if strings.Count(u[:end], "(") < strings.Count(u[:end], ")") {
				end--
				continue
			}
		case ']':
			if strings.Count(u[:end], "[") < strings.Count(u[:end], "]") {
				end--
				continue
			}
		}
		break
	}
	return end
}

func findEmails(text string) []span {
	return simpleSpans(emailPattern, text, TypeEmail)
}

func findPhones(text string) []span {
	var spans []span
	for _, loc := range phonePattern.FindAllStringIndex(text, -1) {
		if !isPhoneCandidate(text, loc[0], loc[1]) {
			continue
		}
		spans = append(spans, span{start: loc[0], end: loc[1], typ: TypePhone})
	}
	return spans
}

// isPhoneCandidate filters out dates, thousands-grouped amounts, version-like
// numbers and digit runs glued to surrounding words
func isPhoneCandidate(text string, start, end int) bool {
	candidate := text[start:end]

	if start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		if unicode.IsLetter(prev) || unicode.IsDigit(prev) || prev == '+' || prev == '.' || prev == '-' || prev == '/' {
			return false
		}
	}
	if end < len(text) {
		next, _ := utf8.DecodeRuneInString(text[end:])
		if unicode.IsLetter(next) || unicode.IsDigit(next) || next == '-' || next == '/' {
			return false
		}
	}

	digits := 0
	for _, r := range candidate {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 7 || digits > 15 {
		return false
	}

	if datePattern.MatchString(candidate) {
		return false
	}

	marked := strings.HasPrefix(candidate, "+") || strings.Contains(candidate, "(")
	if !marked && isThousandsGrouped(candidate) {
		return false
	}
	return true
}

// isThousandsGrouped reports whether every group after the first has exactly
// three digits, as in "10 000 000" or "192.168.100.200"
func isThousandsGrouped(s string) bool {
	groups := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '.' || r == '-' || r == '\t'
	})
	if len(groups) < 2 {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

func simpleSpans(re *regexp.Regexp, text string, typ TokenType) []span {
	locs := re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	spans := make([]span, 0, len(locs))
	for _, loc := range locs {
		spans = append(spans, span{start: loc[0], end: loc[1], typ: typ})
	}
	return spans
}
