package privacy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/raaihank/l10n-sentinel/internal/config"
	"github.com/raaihank/l10n-sentinel/internal/logger"
	"go.uber.org/zap"
)

const defaultMaskFormat = "[MASKED_{{TYPE}}]"

// Detector is the configured PII scanner used by the service layer
type Detector struct {
	scanner *Scanner
	enabled map[PiiType]bool
	logger  *logger.Logger
	config  config.PrivacyConfig
}

// New creates a new PII detector instance
func New(cfg config.PrivacyConfig, log *logger.Logger) (*Detector, error) {
	detector := &Detector{
		enabled: make(map[PiiType]bool),
		logger:  log,
		config:  cfg,
	}

	if err := detector.configureDetectors(cfg.Detectors); err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}

	var rules []DetectionRule
	for _, rule := range DefaultRules() {
		if detector.enabled[rule.Type] {
			rules = append(rules, rule)
		}
	}
	detector.scanner = NewScanner(rules, Policy{BlockOtherPii: cfg.BlockOtherPii})

	if !cfg.Enabled {
		log.Warn("Privacy detector disabled, texts will not be scanned for PII")
	}

	log.Info("Privacy detector initialized",
		zap.Int("total_rules", len(DefaultRules())),
		zap.Int("enabled_rules", len(rules)),
		zap.Bool("block_other_pii", cfg.BlockOtherPii),
	)

	return detector, nil
}

// configureDetectors enables detectors based on configuration
func (d *Detector) configureDetectors(detectors []string) error {
	for _, detector := range detectors {
		if detector == "all" {
			for _, t := range AllTypes {
				d.enabled[t] = true
			}
			continue
		}

		found := false
		for _, t := range AllTypes {
			if string(t) == detector {
				d.enabled[t] = true
				found = true
				break
			}
		}

		if !found {
			return fmt.Errorf("unknown detector: %s", detector)
		}
	}

	return nil
}

// Scan runs the enabled detectors over text
func (d *Detector) Scan(text string) ScanResult {
	if !d.config.Enabled {
		return ScanResult{PiiTypes: []PiiType{}, Findings: []Finding{}}
	}

	result := d.scanner.Scan(text)
	if result.HasPii {
		for i := range result.Findings {
			result.Findings[i].Masked = maskLabel(d.maskFormat(), result.Findings[i].EntityType)
		}
		d.logger.Debug("PII detected",
			zap.Strings("types", typeNames(result.PiiTypes)),
			zap.Bool("blocked", result.Blocked),
			zap.String("block_reason", string(result.BlockReason)),
		)
	}
	return result
}

// Mask replaces every finding in text with the configured label. Text is
// returned unchanged when masking is off.
func (d *Detector) Mask(text string) string {
	if !d.config.Enabled || !d.config.Masking.Enabled {
		return text
	}

	matches := d.scanner.find(text)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	pos := 0
	for _, m := range matches {
		if m.start < pos {
			if m.end > pos {
				pos = m.end
			}
			continue
		}
		b.WriteString(text[pos:m.start])
		b.WriteString(maskLabel(d.maskFormat(), m.typ))
		pos = m.end
	}
	b.WriteString(text[pos:])
	return b.String()
}

// GetEnabledRules returns the enabled detector names, sorted
func (d *Detector) GetEnabledRules() []string {
	var enabled []string
	for t, isEnabled := range d.enabled {
		if isEnabled {
			enabled = append(enabled, string(t))
		}
	}
	sort.Strings(enabled)
	return enabled
}

func (d *Detector) maskFormat() string {
	if d.config.Masking.Format == "" {
		return defaultMaskFormat
	}
	return d.config.Masking.Format
}

func maskLabel(format string, t PiiType) string {
	return strings.ReplaceAll(format, "{{TYPE}}", strings.ToUpper(string(t)))
}

func typeNames(types []PiiType) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names
}
