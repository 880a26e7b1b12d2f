// Package pipes defines the common Pipe interface for compression pipelines.
//
// DESIGN: One pipe package implements this interface:
//   - lingua/: classify and compress message text with the shared engine
//
// FLOW:
//  1. Pipe receives adapter from gateway via PipeContext
//  2. Pipe calls adapter.ExtractMessages() to get content for processing
//  3. Pipe compresses eligible fragments - no provider-specific logic
//  4. Pipe calls adapter.ApplyContent() to patch results back
//
// The Router in gateway/ decides whether a request goes through a pipe.
//
// NOTE: Pipe configuration types are defined in config.go in this package.
package pipes

import (
	"context"

	"github.com/compresr/lingua-gateway/internal/adapters"
)

// PipeContext carries data through pipe processing.
// Pipes use this to access the adapter and store results.
type PipeContext struct {
	// Request-scoped context (cancellation, request ID)
	Context context.Context

	// Adapter for provider-agnostic extraction/application
	Adapter adapters.Adapter

	// Original request body
	OriginalRequest []byte

	// Results
	TokensBefore     int
	TokensAfter      int
	ReductionPercent float64
	Fragments        []FragmentCompression

	// Flags set by pipes
	Compressed bool
}

// FragmentCompression records one compressed text fragment.
type FragmentCompression struct {
	MessageIndex int
	Path         string  // Location inside the message content, e.g. "content.2.content.0.text"
	Kind         string  // "code" or "text"
	Rate         float64 // Rate passed to the engine
	OriginalLen  int     // Characters before compression
	TokensBefore int
	TokensAfter  int
}

// NewPipeContext creates a new pipe context.
func NewPipeContext(ctx context.Context, adapter adapters.Adapter, body []byte) *PipeContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &PipeContext{
		Context:         ctx,
		Adapter:         adapter,
		OriginalRequest: body,
	}
}

// Pipe defines the interface for a processing pipe.
// Pipes must NOT contain provider-specific logic - they use adapters for that.
type Pipe interface {
	// Name returns the pipe identifier.
	Name() string

	// Strategy returns the engine strategy the pipe compresses with.
	Strategy() string

	// Enabled returns whether this pipe is active.
	Enabled() bool

	// Process applies transformation using the adapter.
	// Returns the modified request body, or an error if the request must
	// not be forwarded.
	Process(ctx *PipeContext) ([]byte, error)
}
