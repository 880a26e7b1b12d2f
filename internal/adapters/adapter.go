// Package adapters provides provider-specific request handling.
//
// DESIGN: The gateway fronts the Anthropic Messages API. The adapter hides
// the wire format from the compression pipe with one Extract/Apply pair:
//
//   - ExtractMessages: parse messages[*].content into the Content union
//   - ApplyContent:    patch one message's content back into the raw body
//
// FLOW:
//  1. Gateway picks the adapter for the request
//  2. Pipe calls ExtractMessages(body)
//  3. Pipe walks and compresses each Content value
//  4. Pipe calls ApplyContent(body, index, content) for changed messages
//
// Adapters are stateless and thread-safe.
package adapters

// Provider identifies the upstream API family.
type Provider string

const (
	ProviderUnknown   Provider = ""
	ProviderAnthropic Provider = "anthropic"
)

// Message is one entry of the request's messages array.
type Message struct {
	Index   int     // Position in messages[]
	Role    string  // "user", "assistant", ...
	Content Content // nil when the message has no content field
}

// UsageInfo is token usage reported by the upstream API.
type UsageInfo struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Adapter defines the interface for provider-specific request handling.
type Adapter interface {
	// Name returns the adapter identifier (e.g. "anthropic").
	Name() string

	// Provider returns the provider type for this adapter.
	Provider() Provider

	// ExtractMessages parses the messages array. A missing or non-array
	// messages field yields an empty slice; non-object entries are skipped.
	ExtractMessages(body []byte) ([]Message, error)

	// ApplyContent replaces messages[index].content with content.
	// All other bytes of body are preserved.
	ApplyContent(body []byte, index int, content Content) ([]byte, error)

	// ExtractModel extracts the model name from the request body.
	ExtractModel(body []byte) string

	// IsStreaming reports whether the request asks for an SSE response.
	IsStreaming(body []byte) bool

	// ExtractUsage extracts token usage from a non-streaming response body.
	ExtractUsage(responseBody []byte) UsageInfo
}

// BaseAdapter provides common functionality for all adapters.
type BaseAdapter struct {
	name     string
	provider Provider
}

// Name returns the adapter name.
func (a *BaseAdapter) Name() string {
	return a.name
}

// Provider returns the provider type.
func (a *BaseAdapter) Provider() Provider {
	return a.provider
}
