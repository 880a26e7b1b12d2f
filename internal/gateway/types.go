// Package gateway types - types for the lingua compression gateway.
//
// DESIGN: Types used by the gateway for:
//   - Pipeline processing context
//   - Request/response handling constants
//
// Types are defined here to avoid circular imports and provide clear contracts.
package gateway

import (
	"context"
	"time"

	"github.com/compresr/lingua-gateway/internal/adapters"
	"github.com/compresr/lingua-gateway/internal/pipes"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// Version is reported by /health and the CLI. Set at build time with
// -ldflags "-X github.com/compresr/lingua-gateway/internal/gateway.Version=...".
var Version = "dev"

const (
	// HeaderRequestID carries the request ID in both directions.
	HeaderRequestID = "X-Request-ID"

	// MaxRequestBodySize is the maximum allowed request body (50MB).
	MaxRequestBodySize = 50 * 1024 * 1024

	// DefaultBufferSize is the chunk size used when streaming responses.
	DefaultBufferSize = 4096

	// MaxRateLimitBuckets prevents memory exhaustion from too many IP buckets.
	MaxRateLimitBuckets = 10000

	// MaxErrorBodyLogLen limits upstream error bodies in logs.
	MaxErrorBodyLogLen = 500

	// DefaultPipePoolSize bounds concurrent pipeline executions.
	DefaultPipePoolSize = 10
)

// strippedRequestHeaders are never forwarded upstream. The HTTP client
// recomputes them for the (possibly rewritten) body.
var strippedRequestHeaders = []string{"Host", "Content-Length", "Transfer-Encoding"}

// =============================================================================
// PIPELINE CONTEXT - Carries state through processing
// =============================================================================

// PipelineContext carries data through the processing pipeline.
// Created when a request arrives, passed to pipes for processing.
type PipelineContext struct {
	// Request-scoped context (cancellation, request ID)
	Context context.Context

	// Provider info
	Provider adapters.Provider
	Adapter  adapters.Adapter

	// Request data
	RequestID       string
	OriginalRequest []byte // Raw original request for forwarding
	OriginalPath    string // Original request path (e.g., /v1/messages)
	Model           string // Model being used
	Stream          bool   // Is this a streaming request?
	ReceivedAt      time.Time

	// Pipe processing results
	Compressed          bool
	TokensBefore        int
	TokensAfter         int
	ReductionPercent    float64
	Fragments           []pipes.FragmentCompression
	CompressionDuration time.Duration
}

// NewPipelineContext creates a new pipeline context.
func NewPipelineContext(ctx context.Context, adapter adapters.Adapter, body []byte, path string) *PipelineContext {
	pc := &PipelineContext{
		Context:         ctx,
		Adapter:         adapter,
		OriginalRequest: body,
		OriginalPath:    path,
		ReceivedAt:      time.Now(),
	}
	if adapter != nil {
		pc.Provider = adapter.Provider()
		pc.Model = adapter.ExtractModel(body)
		pc.Stream = adapter.IsStreaming(body)
	}
	return pc
}
