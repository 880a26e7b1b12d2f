package lingua

import (
	"context"
	"strconv"
	"unicode/utf8"

	"github.com/compresr/lingua-gateway/internal/adapters"
)

// Totals aggregates engine-reported token counts. Only compressed
// fragments contribute.
type Totals struct {
	TokensBefore int
	TokensAfter  int
}

// Add accumulates a compressed outcome.
func (t *Totals) Add(o Outcome) {
	if !o.Compressed() {
		return
	}
	t.TokensBefore += o.TokensBefore
	t.TokensAfter += o.TokensAfter
}

// Merge accumulates other totals.
func (t *Totals) Merge(other Totals) {
	t.TokensBefore += other.TokensBefore
	t.TokensAfter += other.TokensAfter
}

// Fragment locates one compressed fragment inside a message's content.
type Fragment struct {
	Path    string // e.g. "content", "content.1.text", "content.0.content.2.text"
	Outcome Outcome
	Length  int
}

// WalkResult is the outcome of walking one message's content.
type WalkResult struct {
	Content   adapters.Content
	Totals    Totals
	Fragments []Fragment
}

// Changed reports whether any fragment was replaced.
func (r *WalkResult) Changed() bool { return len(r.Fragments) > 0 }

// Walker applies the Compressor to every eligible text node of a message.
type Walker struct {
	compressor *Compressor
}

// NewWalker creates a walker.
func NewWalker(c *Compressor) *Walker {
	return &Walker{compressor: c}
}

// Walk compresses a message's content. Fragments are visited in
// declaration order. Unrecognized values are returned as-is.
func (w *Walker) Walk(ctx context.Context, content adapters.Content) (*WalkResult, error) {
	res := &WalkResult{Content: content}

	switch c := content.(type) {
	case *adapters.TextContent:
		out, changed, err := w.walkString(ctx, c, "content", res)
		if err != nil {
			return nil, err
		}
		if changed {
			res.Content = out
		}
	case *adapters.BlockList:
		out, changed, err := w.walkBlocks(ctx, c, "content", res)
		if err != nil {
			return nil, err
		}
		if changed {
			res.Content = out
		}
	}

	return res, nil
}

func (w *Walker) walkString(ctx context.Context, c *adapters.TextContent, path string, res *WalkResult) (*adapters.TextContent, bool, error) {
	outcome, err := w.compress(ctx, c.Text, path, res)
	if err != nil || !outcome.Compressed() {
		return c, false, err
	}
	return adapters.NewTextContent(outcome.Text), true, nil
}

func (w *Walker) walkBlocks(ctx context.Context, list *adapters.BlockList, path string, res *WalkResult) (*adapters.BlockList, bool, error) {
	blocks := make([]adapters.Block, len(list.Blocks))
	copy(blocks, list.Blocks)
	changed := false

	for i, block := range list.Blocks {
		blockPath := path + "." + strconv.Itoa(i)

		switch b := block.(type) {
		case *adapters.TextBlock:
			outcome, err := w.compress(ctx, b.Text, blockPath+".text", res)
			if err != nil {
				return nil, false, err
			}
			if !outcome.Compressed() {
				continue
			}
			nb, err := b.WithText(outcome.Text)
			if err != nil {
				return nil, false, err
			}
			blocks[i] = nb
			changed = true

		case *adapters.ToolResultBlock:
			nested, ok, err := w.walkToolContent(ctx, b.Content, blockPath+".content", res)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				continue
			}
			nb, err := b.WithContent(nested)
			if err != nil {
				return nil, false, err
			}
			blocks[i] = nb
			changed = true
		}
	}

	if !changed {
		return list, false, nil
	}
	return adapters.NewBlockList(blocks), true, nil
}

// walkToolContent handles a tool_result's content: a string, or a list
// whose text entries are compressed. Nothing deeper is examined.
func (w *Walker) walkToolContent(ctx context.Context, content adapters.Content, path string, res *WalkResult) (adapters.Content, bool, error) {
	switch c := content.(type) {
	case *adapters.TextContent:
		return w.walkString(ctx, c, path, res)

	case *adapters.BlockList:
		blocks := make([]adapters.Block, len(c.Blocks))
		copy(blocks, c.Blocks)
		changed := false
		for i, block := range c.Blocks {
			tb, ok := block.(*adapters.TextBlock)
			if !ok {
				continue
			}
			outcome, err := w.compress(ctx, tb.Text, path+"."+strconv.Itoa(i)+".text", res)
			if err != nil {
				return nil, false, err
			}
			if !outcome.Compressed() {
				continue
			}
			nb, err := tb.WithText(outcome.Text)
			if err != nil {
				return nil, false, err
			}
			blocks[i] = nb
			changed = true
		}
		if !changed {
			return c, false, nil
		}
		return adapters.NewBlockList(blocks), true, nil
	}
	return content, false, nil
}

func (w *Walker) compress(ctx context.Context, text, path string, res *WalkResult) (Outcome, error) {
	outcome, err := w.compressor.Compress(ctx, text)
	if err != nil {
		return outcome, err
	}
	if outcome.Compressed() {
		res.Totals.Add(outcome)
		res.Fragments = append(res.Fragments, Fragment{Path: path, Outcome: outcome, Length: utf8.RuneCountInString(text)})
	}
	return outcome, nil
}
