package privacy

import (
	"regexp"
	"sort"
	"strings"
)

// contextWindow is how many bytes either side of a candidate are searched
// for context keywords
const contextWindow = 64

var (
	ssnExactPattern   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	ssnRelaxedPattern = regexp.MustCompile(`\b\d{3}[ .]?\d{2}[ .]?\d{4}\b`)

	visaPattern        = regexp.MustCompile(`\b4\d{3}(?:[ -]?\d{4}){3}\b|\b4\d{12}\b`)
	mastercardPattern  = regexp.MustCompile(`\b(?:5[1-5]\d{2}|2[2-7]\d{2})(?:[ -]?\d{4}){3}\b`)
	amexPattern        = regexp.MustCompile(`\b3[47]\d{2}[ -]?\d{6}[ -]?\d{5}\b`)
	discoverPattern    = regexp.MustCompile(`\b6(?:011|5\d{2}|4[4-9]\d)(?:[ -]?\d{4}){3}\b`)
	genericCardPattern = regexp.MustCompile(`\b\d{4}[ -]\d{4}[ -]\d{4}[ -]\d{4}\b`)

	passportPattern   = regexp.MustCompile(`\b(?:[A-Z]{1,2}\d{6,9}|\d{9})\b`)
	nationalIDPattern = regexp.MustCompile(`\b[0-9CFGHJKLMNPRTVWXYZ]{9}\d\b`)
	ibanPattern       = regexp.MustCompile(`\b[A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,3})?\b`)

	ssnKeywords        = regexp.MustCompile(`(?i)\b(?:ssn|ss#|social security|soc\.? sec\.?|sozialversicherung\w*|tax id|taxpayer id)`)
	passportKeywords   = regexp.MustCompile(`(?i)\b(?:passport|passeport|reisepass|pasaporte|passaporto|paspoort)`)
	nationalIDKeywords = regexp.MustCompile(`(?i)(?:\bnational id|\bid card|\bid number|\bidentity card|\bidentity number|\bpersonalausweis|\bausweisnummer|\bcarte d'identit|\bcarta d'identit|\bdocumento de identidad|\bdni\b|\bnif\b)`)
)

var cardPatterns = []*regexp.Regexp{visaPattern, mastercardPattern, amexPattern, discoverPattern, genericCardPattern}

// DefaultRules returns the built-in rule set. The slice is freshly
// allocated; the compiled patterns are shared and immutable.
func DefaultRules() []DetectionRule {
	return []DetectionRule{
		{ID: "ssn_exact", Type: TypeSSN, Pattern: ssnExactPattern},
		{ID: "ssn_context", Type: TypeSSN, Pattern: ssnRelaxedPattern, Context: ssnKeywords},
		{ID: "card_visa", Type: TypeCreditCard, Pattern: visaPattern, Validate: luhnCandidate},
		{ID: "card_mastercard", Type: TypeCreditCard, Pattern: mastercardPattern, Validate: luhnCandidate},
		{ID: "card_amex", Type: TypeCreditCard, Pattern: amexPattern, Validate: luhnCandidate},
		{ID: "card_discover", Type: TypeCreditCard, Pattern: discoverPattern, Validate: luhnCandidate},
		{ID: "card_generic", Type: TypeCreditCard, Pattern: genericCardPattern, Validate: luhnCandidate},
		{ID: "passport", Type: TypePassport, Pattern: passportPattern, Context: passportKeywords},
		{ID: "national_id", Type: TypeNationalID, Pattern: nationalIDPattern, Context: nationalIDKeywords},
		{ID: "iban", Type: TypeIBAN, Pattern: ibanPattern, Validate: IBANChecksum},
	}
}

// Scanner applies a fixed rule set. It holds no mutable state and is safe
// for concurrent use.
type Scanner struct {
	rules  []DetectionRule
	policy Policy
}

// NewScanner builds a scanner over rules
func NewScanner(rules []DetectionRule, policy Policy) *Scanner {
	return &Scanner{
		rules:  append([]DetectionRule(nil), rules...),
		policy: policy,
	}
}

var defaultScanner = NewScanner(DefaultRules(), Policy{})

// ScanForPii scans text with the default rules. Only SSN and credit card
// findings block.
func ScanForPii(text string) ScanResult {
	return defaultScanner.Scan(text)
}

// Scan reports the PII found in text
func (s *Scanner) Scan(text string) ScanResult {
	return s.summarize(s.find(text))
}

// find returns accepted matches sorted by position. Overlapping matches of
// the same type collapse into the first one.
func (s *Scanner) find(text string) []match {
	if text == "" {
		return nil
	}

	var matches []match
	for _, rule := range s.rules {
		for _, loc := range rule.Pattern.FindAllStringIndex(text, -1) {
			candidate := text[loc[0]:loc[1]]
			if rule.Validate != nil && !rule.Validate(candidate) {
				continue
			}
			if rule.Context != nil && !hasContext(text, loc[0], loc[1], rule.Context) {
				continue
			}
			if overlapsSameType(matches, rule.Type, loc[0], loc[1]) {
				continue
			}
			matches = append(matches, match{typ: rule.Type, start: loc[0], end: loc[1]})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].start < matches[j].start })
	return matches
}

func (s *Scanner) summarize(matches []match) ScanResult {
	result := ScanResult{
		PiiTypes: []PiiType{},
		Findings: []Finding{},
	}
	if len(matches) == 0 {
		return result
	}

	byType := make(map[PiiType]*Finding)
	for _, m := range matches {
		f, ok := byType[m.typ]
		if !ok {
			f = &Finding{EntityType: m.typ, Masked: maskLabel(defaultMaskFormat, m.typ)}
			byType[m.typ] = f
			result.PiiTypes = append(result.PiiTypes, m.typ)
		}
		f.Count++
		f.Positions = append(f.Positions, m.start)
	}

	sort.Slice(result.PiiTypes, func(i, j int) bool { return result.PiiTypes[i] < result.PiiTypes[j] })
	for _, t := range result.PiiTypes {
		result.Findings = append(result.Findings, *byType[t])
	}

	result.HasPii = true
	switch {
	case result.Has(TypeSSN):
		result.BlockReason = ReasonSSN
		result.Blocked = true
	case result.Has(TypeCreditCard):
		result.BlockReason = ReasonCreditCard
		result.Blocked = true
	default:
		result.BlockReason = ReasonOtherPii
		result.Blocked = s.policy.BlockOtherPii
	}
	return result
}

func overlapsSameType(matches []match, typ PiiType, start, end int) bool {
	for _, m := range matches {
		if m.typ == typ && start < m.end && m.start < end {
			return true
		}
	}
	return false
}

func hasContext(text string, start, end int, keywords *regexp.Regexp) bool {
	lo := start - contextWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + contextWindow
	if hi > len(text) {
		hi = len(text)
	}
	return keywords.MatchString(text[lo:hi])
}

// LooksLikeCreditCard reports whether the whole field is a card number
// that passes the Luhn check
func LooksLikeCreditCard(text string) bool {
	field := strings.TrimSpace(text)
	if !luhnCandidate(field) {
		return false
	}
	for _, p := range cardPatterns {
		if fullMatch(p, field) {
			return true
		}
	}
	return false
}

// LooksLikeSsn reports whether the whole field is formatted as an SSN.
// No context is required.
func LooksLikeSsn(text string) bool {
	field := strings.TrimSpace(text)
	return fullMatch(ssnExactPattern, field) || fullMatch(ssnRelaxedPattern, field)
}

func fullMatch(p *regexp.Regexp, s string) bool {
	loc := p.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}
