package privacy

import "regexp"

// PiiType names a category of regulated personal data
type PiiType string

const (
	TypeSSN        PiiType = "ssn"
	TypeCreditCard PiiType = "credit_card"
	TypePassport   PiiType = "passport"
	TypeNationalID PiiType = "national_id"
	TypeIBAN       PiiType = "iban"
)

// AllTypes lists every type the default rules detect
var AllTypes = []PiiType{TypeSSN, TypeCreditCard, TypePassport, TypeNationalID, TypeIBAN}

// BlockReason is the category reported for a scan with findings
type BlockReason string

const (
	ReasonSSN        BlockReason = "ssn"
	ReasonCreditCard BlockReason = "credit_card"
	ReasonOtherPii   BlockReason = "other_pii"
)

// DetectionRule is one pattern for one PII type.
// Validate, when set, must accept the match (checksums).
// Context, when set, must match near the candidate (keyword gating).
type DetectionRule struct {
	ID       string
	Type     PiiType
	Pattern  *regexp.Regexp
	Validate func(match string) bool
	Context  *regexp.Regexp
}

// Finding summarises the matches of one type. Matched text is never kept.
type Finding struct {
	EntityType PiiType `json:"entityType"`
	Masked     string  `json:"masked"`
	Count      int     `json:"count"`
	Positions  []int   `json:"positions,omitempty"`
}

// ScanResult is the verdict for one piece of text
type ScanResult struct {
	HasPii      bool        `json:"hasPii"`
	PiiTypes    []PiiType   `json:"piiTypes"`
	Blocked     bool        `json:"blocked"`
	BlockReason BlockReason `json:"blockReason,omitempty"`
	Findings    []Finding   `json:"findings"`
}

// Has reports whether t was detected
func (r ScanResult) Has(t PiiType) bool {
	for _, found := range r.PiiTypes {
		if found == t {
			return true
		}
	}
	return false
}

// Policy decides which findings block submission
type Policy struct {
	// BlockOtherPii escalates passport, national ID and IBAN findings to a block
	BlockOtherPii bool
}

// match is an accepted detection in byte offsets
type match struct {
	typ   PiiType
	start int
	end   int
}
