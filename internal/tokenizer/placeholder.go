package tokenizer

import (
	"fmt"
	"regexp"
	"strconv"
)

// Placeholder delimiters. MT providers echo these brackets verbatim, which is
// what keeps placeholders intact through translation.
const (
	OpenDelimiter  = "⟦"
	CloseDelimiter = "⟧"
	placeholderTag = "T"
)

var (
	// placeholderPattern is the exact grammar: ⟦T + type letter + zero-padded seq + ⟧
	placeholderPattern = regexp.MustCompile(`⟦T([UEPIJHLGC])(\d{3,})⟧`)

	// loosePlaceholderPattern catches damaged placeholders: dropped or swapped
	// delimiters, inserted spaces, lost zero padding.
	loosePlaceholderPattern = regexp.MustCompile(`[⟦\[(]?\s*T\s?([UEPIJHLGC])\s?(\d{1,6})\s*[⟧\])]?`)
)

// FormatPlaceholder renders the placeholder for a token type and sequence number
func FormatPlaceholder(t TokenType, seq int) string {
	return fmt.Sprintf("%s%s%s%03d%s", OpenDelimiter, placeholderTag, t, seq, CloseDelimiter)
}

// ParsePlaceholder extracts the type and sequence number from an exact placeholder
func ParsePlaceholder(s string) (TokenType, int, bool) {
	m := placeholderPattern.FindStringSubmatch(s)
	if m == nil || m[0] != s {
		return "", 0, false
	}
	seq, err := strconv.Atoi(m[2])
	if err != nil || seq <= 0 {
		return "", 0, false
	}
	return TokenType(m[1]), seq, true
}

// FindPlaceholders returns every exact placeholder in text, in order
func FindPlaceholders(text string) []string {
	return placeholderPattern.FindAllString(text, -1)
}

// findMangled looks for a damaged variant of the placeholder for t/seq
func findMangled(text string, t TokenType, seq int) (string, bool) {
	for _, m := range loosePlaceholderPattern.FindAllStringSubmatch(text, -1) {
		if TokenType(m[1]) != t {
			continue
		}
		n, err := strconv.Atoi(m[2])
		if err != nil || n != seq {
			continue
		}
		return m[0], true
	}
	return "", false
}
