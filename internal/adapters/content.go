// Content model for Anthropic message payloads.
//
// DESIGN: A message's "content" is a tagged union:
//
//	Content = TextContent | BlockList | RawContent
//	Block   = TextBlock | ToolResultBlock | OpaqueBlock
//
// Every value keeps the raw JSON it was parsed from. Unknown or malformed
// shapes fall into RawContent/OpaqueBlock and are re-emitted byte-for-byte.
// Only the With*() helpers produce new raw bytes, and they patch a single
// field with sjson so key order and sibling fields are preserved.
//
// A BlockList rebuilt by NewBlockList is compact: each block keeps its own
// bytes, but whitespace between elements of the original array is dropped.
package adapters

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Block type discriminators recognized by the compression pipeline.
const (
	BlockTypeText       = "text"
	BlockTypeToolResult = "tool_result"
)

// Content is the value of a message's "content" field.
type Content interface {
	// Raw returns the JSON encoding of the content.
	Raw() []byte
	isContent()
}

// TextContent is a plain string content value.
type TextContent struct {
	Text string
	raw  []byte
}

// BlockList is an ordered list of content blocks.
type BlockList struct {
	Blocks []Block
	raw    []byte
}

// RawContent is any other JSON value (null, number, object). Passed through untouched.
type RawContent struct {
	raw []byte
}

func (c *TextContent) Raw() []byte { return c.raw }
func (c *BlockList) Raw() []byte   { return c.raw }
func (c *RawContent) Raw() []byte  { return c.raw }

func (*TextContent) isContent() {}
func (*BlockList) isContent()   {}
func (*RawContent) isContent()  {}

// Block is one element of a BlockList.
type Block interface {
	Raw() []byte
	isBlock()
}

// TextBlock is {"type":"text","text":...}.
type TextBlock struct {
	Text string
	raw  []byte
}

// ToolResultBlock is {"type":"tool_result","content":...}.
// Content is nil when the block has no content field.
type ToolResultBlock struct {
	Content Content
	raw     []byte
}

// OpaqueBlock is any block the pipeline does not inspect, including
// list entries that are not JSON objects.
type OpaqueBlock struct {
	raw []byte
}

func (b *TextBlock) Raw() []byte       { return b.raw }
func (b *ToolResultBlock) Raw() []byte { return b.raw }
func (b *OpaqueBlock) Raw() []byte     { return b.raw }

func (*TextBlock) isBlock()       {}
func (*ToolResultBlock) isBlock() {}
func (*OpaqueBlock) isBlock()     {}

// ParseContent builds a Content from raw JSON. Empty input yields nil.
func ParseContent(raw []byte) Content {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return contentFromResult(gjson.ParseBytes(raw), raw)
}

func contentFromResult(res gjson.Result, raw []byte) Content {
	switch {
	case res.Type == gjson.String:
		return &TextContent{Text: res.String(), raw: raw}
	case res.IsArray():
		list := &BlockList{raw: raw}
		res.ForEach(func(_, item gjson.Result) bool {
			list.Blocks = append(list.Blocks, blockFromResult(item))
			return true
		})
		return list
	default:
		return &RawContent{raw: raw}
	}
}

func blockFromResult(item gjson.Result) Block {
	raw := []byte(item.Raw)
	if !item.IsObject() {
		return &OpaqueBlock{raw: raw}
	}

	switch item.Get("type").String() {
	case BlockTypeText:
		text := item.Get("text")
		if text.Type != gjson.String {
			return &OpaqueBlock{raw: raw}
		}
		return &TextBlock{Text: text.String(), raw: raw}
	case BlockTypeToolResult:
		content := item.Get("content")
		if !content.Exists() {
			return &ToolResultBlock{raw: raw}
		}
		return &ToolResultBlock{Content: contentFromResult(content, []byte(content.Raw)), raw: raw}
	default:
		return &OpaqueBlock{raw: raw}
	}
}

// NewTextContent returns string content holding text.
func NewTextContent(text string) *TextContent {
	return &TextContent{Text: text, raw: encodeString(text)}
}

// NewBlockList assembles a compact list from blocks, reusing each block's
// raw bytes.
func NewBlockList(blocks []Block) *BlockList {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, b := range blocks {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(b.Raw())
	}
	buf.WriteByte(']')
	return &BlockList{Blocks: blocks, raw: buf.Bytes()}
}

// WithText returns a copy of the block with its "text" field replaced.
func (b *TextBlock) WithText(text string) (*TextBlock, error) {
	raw, err := sjson.SetRawBytes(cloneBytes(b.raw), "text", encodeString(text))
	if err != nil {
		return nil, err
	}
	return &TextBlock{Text: text, raw: raw}, nil
}

// WithContent returns a copy of the block with its "content" field replaced.
func (b *ToolResultBlock) WithContent(content Content) (*ToolResultBlock, error) {
	raw, err := sjson.SetRawBytes(cloneBytes(b.raw), "content", content.Raw())
	if err != nil {
		return nil, err
	}
	return &ToolResultBlock{Content: content, raw: raw}, nil
}

// ContentPath returns the sjson/gjson path of a message's content field.
func ContentPath(messageIndex int) string {
	return "messages." + strconv.Itoa(messageIndex) + ".content"
}

// encodeString JSON-encodes s without HTML escaping so "<", ">" and "&"
// survive unchanged.
func encodeString(s string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return bytes.TrimRight(buf.Bytes(), "\n")
}

func cloneBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}
