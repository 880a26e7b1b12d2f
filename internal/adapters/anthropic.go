package adapters

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// AnthropicMessagesPath is the Messages API endpoint the gateway compresses.
const AnthropicMessagesPath = "/v1/messages"

// ErrInvalidJSON is returned when the request body is not valid JSON.
var ErrInvalidJSON = errors.New("request body is not valid JSON")

// AnthropicAdapter handles Anthropic Messages API requests.
// Content is either a string or an array of typed blocks; tool results are
// "tool_result" blocks inside user messages.
type AnthropicAdapter struct {
	BaseAdapter
}

// NewAnthropicAdapter creates a new Anthropic adapter.
func NewAnthropicAdapter() *AnthropicAdapter {
	return &AnthropicAdapter{
		BaseAdapter: BaseAdapter{
			name:     "anthropic",
			provider: ProviderAnthropic,
		},
	}
}

// =============================================================================
// MESSAGES - Extract/Apply
// =============================================================================

// ExtractMessages parses messages[*] from an Anthropic request.
// Format: {"messages": [{"role": "user", "content": "..." | [{"type": "text", ...}]}]}
func (a *AnthropicAdapter) ExtractMessages(body []byte) ([]Message, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidJSON
	}

	messages := gjson.GetBytes(body, "messages")
	if !messages.IsArray() {
		return nil, nil
	}

	var extracted []Message
	idx := 0
	messages.ForEach(func(_, msg gjson.Result) bool {
		defer func() { idx++ }()
		if !msg.IsObject() {
			return true
		}
		m := Message{Index: idx, Role: msg.Get("role").String()}
		if content := msg.Get("content"); content.Exists() {
			m.Content = ParseContent([]byte(content.Raw))
		}
		extracted = append(extracted, m)
		return true
	})

	return extracted, nil
}

// ApplyContent patches messages[index].content in place.
func (a *AnthropicAdapter) ApplyContent(body []byte, index int, content Content) ([]byte, error) {
	if content == nil {
		return body, nil
	}
	patched, err := sjson.SetRawBytes(body, ContentPath(index), content.Raw())
	if err != nil {
		return nil, fmt.Errorf("failed to patch message %d: %w", index, err)
	}
	return patched, nil
}

// =============================================================================
// REQUEST METADATA
// =============================================================================

// ExtractModel extracts the model name from Anthropic request body.
func (a *AnthropicAdapter) ExtractModel(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	// Strip provider prefix if present (e.g., "anthropic/claude-3-5-sonnet" -> "claude-3-5-sonnet")
	return strings.TrimPrefix(gjson.GetBytes(body, "model").String(), "anthropic/")
}

// IsStreaming reports whether "stream": true is set.
func (a *AnthropicAdapter) IsStreaming(body []byte) bool {
	return gjson.GetBytes(body, "stream").Bool()
}

// =============================================================================
// USAGE EXTRACTION
// =============================================================================

// ExtractUsage extracts token usage from Anthropic API response.
// Anthropic format: {"usage": {"input_tokens": N, "output_tokens": N}}
func (a *AnthropicAdapter) ExtractUsage(responseBody []byte) UsageInfo {
	if len(responseBody) == 0 || !gjson.ValidBytes(responseBody) {
		return UsageInfo{}
	}
	usage := gjson.GetBytes(responseBody, "usage")
	in := int(usage.Get("input_tokens").Int())
	out := int(usage.Get("output_tokens").Int())
	return UsageInfo{InputTokens: in, OutputTokens: out, TotalTokens: in + out}
}

// Ensure AnthropicAdapter implements Adapter
var _ Adapter = (*AnthropicAdapter)(nil)
