package lingua

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/compresr/lingua-gateway/internal/engine"
	"github.com/compresr/lingua-gateway/internal/pipes"
)

// ErrEngineFailure marks a compression engine error. The request carrying
// the fragment must not be forwarded.
var ErrEngineFailure = errors.New("compression engine failure")

// Outcome is the result of compressing one fragment.
// TokensBefore == 0 means the fragment was not compressed.
type Outcome struct {
	Text         string
	Kind         Kind
	Rate         float64
	TokensBefore int
	TokensAfter  int
}

// Compressed reports whether the outcome carries a replacement text.
func (o Outcome) Compressed() bool { return o.TokensBefore > 0 }

// Compressor compresses single text fragments with the shared engine.
type Compressor struct {
	engine     engine.Engine
	classifier *Classifier
	minChars   int
	proseRate  float64
	codeRate   float64
}

// NewCompressor creates a fragment compressor.
func NewCompressor(e engine.Engine, cfg pipes.LinguaConfig) *Compressor {
	return &Compressor{
		engine:     e,
		classifier: NewClassifier(cfg.Classifier),
		minChars:   cfg.MinChars,
		proseRate:  cfg.ProseRate,
		codeRate:   cfg.CodeRate,
	}
}

// RateFor returns the rate used for a fragment kind.
func (c *Compressor) RateFor(kind Kind) float64 {
	if kind == KindCode {
		return c.codeRate
	}
	return c.proseRate
}

// Compress compresses text if it is long enough. Short text, and results
// that do not save tokens, come back unchanged with zero counts.
func (c *Compressor) Compress(ctx context.Context, text string) (Outcome, error) {
	unchanged := Outcome{Text: text}
	if utf8.RuneCountInString(text) < c.minChars {
		return unchanged, nil
	}

	kind := c.classifier.Classify(text)
	rate := c.RateFor(kind)

	result, err := c.engine.CompressPrompt(ctx, text, rate)
	if err != nil {
		return unchanged, fmt.Errorf("%w: %w", ErrEngineFailure, err)
	}

	if result.OriginTokens <= 0 || result.CompressedTokens >= result.OriginTokens {
		log.Debug().
			Str("type", string(kind)).
			Int("tokens_before", result.OriginTokens).
			Int("tokens_after", result.CompressedTokens).
			Float64("rate", rate).
			Msg("fragment not reduced, keeping original")
		return unchanged, nil
	}

	log.Info().
		Str("type", string(kind)).
		Int("tokens_before", result.OriginTokens).
		Int("tokens_after", result.CompressedTokens).
		Float64("rate", rate).
		Msg("fragment compressed")

	return Outcome{
		Text:         result.CompressedPrompt,
		Kind:         kind,
		Rate:         rate,
		TokensBefore: result.OriginTokens,
		TokensAfter:  result.CompressedTokens,
	}, nil
}
