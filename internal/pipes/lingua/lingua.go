// Package lingua compresses message text before it reaches the provider.
//
// DESIGN: Every message's content is walked in order. Text fragments at or
// above the size threshold are classified as code or prose and compressed
// with the rate for that kind. Everything else in the request is untouched.
//
// FLOW:
//  1. Receives adapter via PipeContext
//  2. Calls adapter.ExtractMessages() to get message contents
//  3. Walks each content value, compressing eligible fragments
//  4. Calls adapter.ApplyContent() for messages that changed
//  5. Records token totals and the reduction percentage
//
// Any engine failure aborts the whole request.
package lingua

import (
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/compresr/lingua-gateway/internal/config"
	"github.com/compresr/lingua-gateway/internal/engine"
	"github.com/compresr/lingua-gateway/internal/pipes"
)

// PipeName identifies the lingua pipe in logs and metrics.
const PipeName = "lingua"

// Pipe compresses message text.
type Pipe struct {
	enabled  bool
	strategy string
	walker   *Walker
}

// New creates a new lingua pipe backed by the given engine.
func New(cfg *config.Config, e engine.Engine) *Pipe {
	return &Pipe{
		enabled:  cfg.Pipes.Lingua.Enabled,
		strategy: cfg.Engine.Strategy,
		walker:   NewWalker(NewCompressor(e, cfg.Pipes.Lingua)),
	}
}

// Name returns the pipe name.
func (p *Pipe) Name() string {
	return PipeName
}

// Strategy returns the engine strategy.
func (p *Pipe) Strategy() string {
	return p.strategy
}

// Enabled returns whether the pipe is active.
func (p *Pipe) Enabled() bool {
	return p.enabled
}

// Process compresses every message of the request.
// On error the caller must not forward the request.
func (p *Pipe) Process(ctx *pipes.PipeContext) ([]byte, error) {
	if !p.enabled || p.strategy == engine.StrategyPassthrough {
		return ctx.OriginalRequest, nil
	}

	messages, err := ctx.Adapter.ExtractMessages(ctx.OriginalRequest)
	if err != nil {
		return nil, err
	}

	body := ctx.OriginalRequest
	var totals Totals

	for _, msg := range messages {
		if msg.Content == nil {
			continue
		}

		res, err := p.walker.Walk(ctx.Context, msg.Content)
		if err != nil {
			log.Error().
				Err(err).
				Int("message_index", msg.Index).
				Str("role", msg.Role).
				Msg("lingua: compression failed")
			return nil, err
		}

		totals.Merge(res.Totals)
		for _, f := range res.Fragments {
			ctx.Fragments = append(ctx.Fragments, pipes.FragmentCompression{
				MessageIndex: msg.Index,
				Path:         f.Path,
				Kind:         string(f.Outcome.Kind),
				Rate:         f.Outcome.Rate,
				OriginalLen:  f.Length,
				TokensBefore: f.Outcome.TokensBefore,
				TokensAfter:  f.Outcome.TokensAfter,
			})
		}

		if !res.Changed() {
			continue
		}
		body, err = ctx.Adapter.ApplyContent(body, msg.Index, res.Content)
		if err != nil {
			return nil, err
		}
	}

	ctx.TokensBefore = totals.TokensBefore
	ctx.TokensAfter = totals.TokensAfter
	ctx.ReductionPercent = ReductionPercent(totals.TokensBefore, totals.TokensAfter)
	ctx.Compressed = len(ctx.Fragments) > 0

	if totals.TokensBefore > 0 {
		log.Info().
			Int("fragments", len(ctx.Fragments)).
			Int("tokens_before", totals.TokensBefore).
			Int("tokens_after", totals.TokensAfter).
			Str("reduction", FormatPercent(ctx.ReductionPercent)).
			Msgf("compressed %d -> %d tokens (%s reduction)",
				totals.TokensBefore, totals.TokensAfter, FormatPercent(ctx.ReductionPercent))
	}

	return body, nil
}

// ReductionPercent returns (1 - after/before) * 100, or 0 when before is 0.
func ReductionPercent(before, after int) float64 {
	if before <= 0 {
		return 0
	}
	return (1 - float64(after)/float64(before)) * 100
}

// FormatPercent renders a percentage with one decimal place.
func FormatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', 1, 64) + "%"
}
