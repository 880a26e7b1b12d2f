// Package engine provides the prompt compression engines used by the gateway.
//
// FILES:
//   - engine.go:     Engine interface, Result, factory
//   - lingua.go:     HTTP client for an LLMLingua-2 compression service
//   - simple.go:     Local word-dropping engine with tiktoken counts
//   - serialized.go: Slot pool that serializes access to a shared engine
//
// One engine is created at startup and shared by every request. Engines are
// not assumed to be safe for concurrent use; wrap them with Serialized.
package engine

import (
	"context"
	"fmt"
	"time"
)

// Strategy names accepted by New.
const (
	StrategyLingua      = "lingua"
	StrategySimple      = "simple"
	StrategyPassthrough = "passthrough"
)

// Result is what an engine reports for one prompt.
type Result struct {
	CompressedPrompt string `json:"compressed_prompt"`
	OriginTokens     int    `json:"origin_tokens"`
	CompressedTokens int    `json:"compressed_tokens"`
}

// Engine compresses a prompt to the requested rate.
// Higher rate values request more reduction.
type Engine interface {
	// Name returns the engine identifier.
	Name() string

	// CompressPrompt compresses text. Token counts are engine-reported.
	CompressPrompt(ctx context.Context, text string, rate float64) (*Result, error)

	// Health verifies the engine is usable.
	Health(ctx context.Context) error
}

// Config selects and configures an engine.
type Config struct {
	Strategy       string        `yaml:"strategy"`        // lingua | simple | passthrough
	Endpoint       string        `yaml:"endpoint"`        // lingua service base URL
	APIKey         string        `yaml:"api_key"`         // optional bearer token for the service
	Model          string        `yaml:"model"`           // compression model name
	Device         string        `yaml:"device"`          // auto | cuda | mps | cpu
	Timeout        time.Duration `yaml:"timeout"`         // per-call HTTP timeout
	MaxConcurrency int           `yaml:"max_concurrency"` // concurrent engine calls (1 = serialized)
	Encoding       string        `yaml:"encoding"`        // tiktoken encoding for strategy=simple
}

// Validate checks the engine configuration.
func (c *Config) Validate() error {
	switch c.Strategy {
	case StrategyLingua:
		if c.Endpoint == "" {
			return fmt.Errorf("engine: endpoint required when strategy=%s", StrategyLingua)
		}
	case StrategySimple, StrategyPassthrough:
	default:
		return fmt.Errorf("engine: unknown strategy %q, must be 'lingua', 'simple', or 'passthrough'", c.Strategy)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("engine: max_concurrency must be >= 1, got %d", c.MaxConcurrency)
	}
	return nil
}

// New builds the configured engine wrapped in a Serialized pool.
func New(cfg Config) (*Serialized, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var e Engine
	switch cfg.Strategy {
	case StrategyLingua:
		opts := []LinguaOption{WithModel(cfg.Model), WithDevice(cfg.Device), WithAPIKey(cfg.APIKey)}
		if cfg.Timeout > 0 {
			opts = append(opts, WithTimeout(cfg.Timeout))
		}
		e = NewLinguaClient(cfg.Endpoint, opts...)
	case StrategySimple:
		e = NewSimpleEngine(NewTiktokenCounter(cfg.Encoding))
	default:
		e = Passthrough{}
	}

	return NewSerialized(e, cfg.MaxConcurrency), nil
}

// Passthrough returns text unchanged and reports no token counts,
// which the pipeline treats as "not compressed".
type Passthrough struct{}

// Name returns the engine identifier.
func (Passthrough) Name() string { return StrategyPassthrough }

// CompressPrompt returns text unchanged.
func (Passthrough) CompressPrompt(_ context.Context, text string, _ float64) (*Result, error) {
	return &Result{CompressedPrompt: text}, nil
}

// Health always succeeds.
func (Passthrough) Health(context.Context) error { return nil }
