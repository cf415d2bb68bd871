package filter

import (
	"fmt"

	"github.com/raaihank/l10n-sentinel/internal/config"
	"github.com/raaihank/l10n-sentinel/internal/glossary"
	"github.com/raaihank/l10n-sentinel/internal/logger"
	"github.com/raaihank/l10n-sentinel/internal/privacy"
	"github.com/raaihank/l10n-sentinel/internal/tokenizer"
)

// NewFromConfig builds the configured detector and a filter that runs it.
// Terms from the glossary file are merged after the inline glossary.
func NewFromConfig(cfg *config.Config, log *logger.Logger) (*Filter, *privacy.Detector, error) {
	detector, err := privacy.New(cfg.Privacy, log.WithComponent("privacy"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create privacy detector: %w", err)
	}

	opts := cfg.Tokenizer.Options
	if cfg.Tokenizer.GlossaryFile != "" {
		terms, err := glossary.LoadFile(cfg.Tokenizer.GlossaryFile)
		if err != nil {
			return nil, nil, err
		}
		if opts.GlossaryTerms, err = glossary.Merge(opts.GlossaryTerms, terms); err != nil {
			return nil, nil, err
		}
	}

	tok, err := tokenizer.New(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create tokenizer: %w", err)
	}

	f := New(detector, tok,
		WithMaxLength(cfg.Filter.MaxLength),
		WithLogger(log.WithComponent("filter").Logger),
	)
	return f, detector, nil
}
