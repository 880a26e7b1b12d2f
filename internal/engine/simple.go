package engine

import (
	"context"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
)

// DefaultEncoding is the tiktoken encoding used when none is configured.
const DefaultEncoding = "cl100k_base"

// charsPerToken is the fallback estimate when no tokenizer is available.
const charsPerToken = 4

// TokenCounter counts tokens in a string.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts tokens with a BPE encoding. The encoding is loaded
// on first use; if loading fails it falls back to a chars/4 estimate.
type TiktokenCounter struct {
	encoding string
	once     sync.Once
	tke      *tiktoken.Tiktoken
}

// NewTiktokenCounter creates a counter for the named encoding.
func NewTiktokenCounter(encoding string) *TiktokenCounter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &TiktokenCounter{encoding: encoding}
}

// Count returns the number of tokens in text.
func (c *TiktokenCounter) Count(text string) int {
	c.once.Do(func() {
		tke, err := tiktoken.GetEncoding(c.encoding)
		if err != nil {
			log.Warn().Err(err).Str("encoding", c.encoding).Msg("tiktoken unavailable, estimating tokens from length")
			return
		}
		c.tke = tke
	})
	if c.tke == nil {
		return (len(text) + charsPerToken - 1) / charsPerToken
	}
	return len(c.tke.Encode(text, nil, nil))
}

// SimpleEngine drops words at evenly spaced positions until roughly rate of
// them are gone. Line breaks and leading indentation are kept. It needs no
// model and is deterministic, which makes it useful offline and in tests.
type SimpleEngine struct {
	counter TokenCounter
}

// NewSimpleEngine creates a SimpleEngine using counter for token counts.
func NewSimpleEngine(counter TokenCounter) *SimpleEngine {
	return &SimpleEngine{counter: counter}
}

// Name returns the engine identifier.
func (e *SimpleEngine) Name() string { return StrategySimple }

// CompressPrompt removes about rate of the words in text.
func (e *SimpleEngine) CompressPrompt(_ context.Context, text string, rate float64) (*Result, error) {
	compressed := dropWords(text, rate)
	return &Result{
		CompressedPrompt: compressed,
		OriginTokens:     e.counter.Count(text),
		CompressedTokens: e.counter.Count(compressed),
	}, nil
}

// Health always succeeds.
func (e *SimpleEngine) Health(context.Context) error { return nil }

func dropWords(text string, rate float64) string {
	if rate <= 0 {
		return text
	}
	if rate > 1 {
		rate = 1
	}
	keep := 1 - rate

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	i := 0
	for _, line := range lines {
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		var kept []string
		for _, w := range strings.Fields(line) {
			// Keep word i when the running kept-count crosses an integer boundary.
			if int(float64(i+1)*keep) > int(float64(i)*keep) {
				kept = append(kept, w)
			}
			i++
		}
		if len(kept) == 0 {
			if strings.TrimSpace(line) == "" {
				out = append(out, "")
			}
			continue
		}
		out = append(out, indent+strings.Join(kept, " "))
	}
	return strings.Join(out, "\n")
}
