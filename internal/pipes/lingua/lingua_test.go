package lingua

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/lingua-gateway/internal/adapters"
	"github.com/compresr/lingua-gateway/internal/config"
	"github.com/compresr/lingua-gateway/internal/engine"
	"github.com/compresr/lingua-gateway/internal/pipes"
)

// =============================================================================
// HELPERS
// =============================================================================

type engineCall struct {
	Text string
	Rate float64
}

// fakeEngine halves the text and reports fixed token counts unless a
// custom function is set.
type fakeEngine struct {
	mu     sync.Mutex
	calls  []engineCall
	before int
	after  int
	err    error
	fn     func(text string, rate float64) (*engine.Result, error)
}

func newFakeEngine(before, after int) *fakeEngine {
	return &fakeEngine{before: before, after: after}
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Health(context.Context) error { return nil }

func (f *fakeEngine) CompressPrompt(_ context.Context, text string, rate float64) (*engine.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, engineCall{Text: text, Rate: rate})
	f.mu.Unlock()

	if f.fn != nil {
		return f.fn(text, rate)
	}
	if f.err != nil {
		return nil, f.err
	}
	runes := []rune(text)
	return &engine.Result{
		CompressedPrompt: string(runes[:len(runes)/2]),
		OriginTokens:     f.before,
		CompressedTokens: f.after,
	}, nil
}

func (f *fakeEngine) Calls() []engineCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engineCall(nil), f.calls...)
}

// prose returns at least n characters of text that trips no code signal.
func prose(n int) string {
	const sentence = "The quick brown fox jumps over the lazy dog near a quiet river bank. "
	return strings.Repeat(sentence, n/len(sentence)+1)
}

// pythonCode returns at least n characters of Python source.
func pythonCode(n int) string {
	const fn = "def add(a, b):\n    total = a + b\n    return total\n\n"
	return strings.Repeat(fn, n/len(fn)+1)
}

func newTestCompressor(e engine.Engine) *Compressor {
	return NewCompressor(e, pipes.DefaultLinguaConfig())
}

func newTestPipe(e engine.Engine) *Pipe {
	return New(config.Default(), e)
}

func decode(t *testing.T, raw []byte) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

// =============================================================================
// CLASSIFIER
// =============================================================================

func TestClassifier_Prose(t *testing.T) {
	c := NewClassifier(pipes.DefaultClassifierConfig())
	assert.Equal(t, KindProse, c.Classify(prose(1500)))
}

func TestClassifier_EmptyIsProse(t *testing.T) {
	c := NewClassifier(pipes.DefaultClassifierConfig())
	assert.Equal(t, KindProse, c.Classify(""))
}

func TestClassifier_Indicators(t *testing.T) {
	c := NewClassifier(pipes.DefaultClassifierConfig())

	for _, ind := range pipes.DefaultIndicators {
		t.Run(ind, func(t *testing.T) {
			assert.Equal(t, KindCode, c.Classify("some words "+ind+" more words"))
		})
	}
}

func TestClassifier_FenceAlwaysCode(t *testing.T) {
	c := NewClassifier(pipes.DefaultClassifierConfig())

	inputs := []string{
		"```",
		"see below ```",
		prose(3000) + "```",
		"```" + prose(50),
	}
	for _, in := range inputs {
		assert.Equal(t, KindCode, c.Classify(in))
	}
}

func TestClassifier_StructuralDensity(t *testing.T) {
	c := NewClassifier(pipes.DefaultClassifierConfig())

	assert.Equal(t, KindProse, c.Classify(strings.Repeat("a;", 10)), "10 marks is not above the threshold")
	assert.Equal(t, KindCode, c.Classify(strings.Repeat("a;", 11)))
	assert.Equal(t, KindCode, c.Classify("x{ y} z; w() v{ u} t; s() r{ q} p; o()"))
}

func TestClassifier_Indentation(t *testing.T) {
	c := NewClassifier(pipes.DefaultClassifierConfig())

	// 4 newlines, 3 indented lines: 0.75 > 0.3
	assert.Equal(t, KindCode, c.Classify("x\n    y\n    z\n    w\n"))
	// Tabs count too.
	assert.Equal(t, KindCode, c.Classify("x\n\ty\n\tz\n\tw\n"))
	// Only 3 newlines: not enough lines to judge.
	assert.Equal(t, KindProse, c.Classify("x\n    y\n    z\n    w"))
	// Enough lines, too few indented: 1/5 = 0.2.
	assert.Equal(t, KindProse, c.Classify("a\nb\n    c\nd\ne\nf"))
}

func TestClassifier_CustomThresholds(t *testing.T) {
	cfg := pipes.DefaultClassifierConfig()
	cfg.StructureThreshold = 2
	cfg.Indicators = []string{"SELECT "}
	c := NewClassifier(cfg)

	assert.Equal(t, KindCode, c.Classify("SELECT name FROM users"))
	assert.Equal(t, KindCode, c.Classify("a; b; c;"))
	assert.Equal(t, KindProse, c.Classify("def foo"), "custom indicators replace the defaults")
}

// =============================================================================
// COMPRESSOR
// =============================================================================

func TestCompressor_BelowThresholdUnchanged(t *testing.T) {
	e := newFakeEngine(100, 50)
	c := newTestCompressor(e)

	for _, text := range []string{"", "hello", prose(999)[:999], pythonCode(999)[:999]} {
		out, err := c.Compress(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, text, out.Text)
		assert.Zero(t, out.TokensBefore)
		assert.Zero(t, out.TokensAfter)
		assert.False(t, out.Compressed())
	}
	assert.Empty(t, e.Calls())
}

func TestCompressor_ThresholdCountsCharacters(t *testing.T) {
	e := newFakeEngine(100, 50)
	c := newTestCompressor(e)

	// 999 two-byte characters: 1998 bytes, still below 1000 characters.
	text := strings.Repeat("é", 999)
	require.Equal(t, 999, utf8.RuneCountInString(text))

	out, err := c.Compress(context.Background(), text)
	require.NoError(t, err)
	assert.False(t, out.Compressed())
	assert.Empty(t, e.Calls())

	out, err = c.Compress(context.Background(), text+"é")
	require.NoError(t, err)
	assert.True(t, out.Compressed())
	assert.Len(t, e.Calls(), 1)
}

func TestCompressor_ProseRate(t *testing.T) {
	e := newFakeEngine(300, 150)
	c := newTestCompressor(e)
	text := prose(1500)

	out, err := c.Compress(context.Background(), text)
	require.NoError(t, err)

	require.Len(t, e.Calls(), 1)
	assert.Equal(t, 0.5, e.Calls()[0].Rate)
	assert.Equal(t, KindProse, out.Kind)
	assert.Equal(t, 300, out.TokensBefore)
	assert.Equal(t, 150, out.TokensAfter)
	assert.Less(t, len(out.Text), len(text))
}

func TestCompressor_CodeRate(t *testing.T) {
	e := newFakeEngine(400, 100)
	c := newTestCompressor(e)

	out, err := c.Compress(context.Background(), pythonCode(1200))
	require.NoError(t, err)

	require.Len(t, e.Calls(), 1)
	assert.Equal(t, 0.75, e.Calls()[0].Rate)
	assert.Equal(t, KindCode, out.Kind)
	assert.Equal(t, 0.75, out.Rate)
}

func TestCompressor_EngineFailure(t *testing.T) {
	e := newFakeEngine(0, 0)
	e.err = errors.New("out of memory")
	c := newTestCompressor(e)

	_, err := c.Compress(context.Background(), prose(1200))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEngineFailure)
	assert.Contains(t, err.Error(), "out of memory")
}

func TestCompressor_NoGainIsNoop(t *testing.T) {
	tests := []struct {
		name          string
		before, after int
	}{
		{"zero origin", 0, 0},
		{"equal", 200, 200},
		{"grew", 200, 210},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCompressor(newFakeEngine(tt.before, tt.after))
			text := prose(1200)

			out, err := c.Compress(context.Background(), text)
			require.NoError(t, err)
			assert.Equal(t, text, out.Text)
			assert.False(t, out.Compressed())
		})
	}
}

func TestCompressor_CustomMinChars(t *testing.T) {
	e := newFakeEngine(10, 5)
	cfg := pipes.DefaultLinguaConfig()
	cfg.MinChars = 10
	c := NewCompressor(e, cfg)

	out, err := c.Compress(context.Background(), "hello world")
	require.NoError(t, err)
	assert.True(t, out.Compressed())
}

// =============================================================================
// WALKER
// =============================================================================

func TestWalker_StringContent(t *testing.T) {
	w := NewWalker(newTestCompressor(newFakeEngine(300, 150)))
	text := prose(1500)
	content := adapters.ParseContent(mustJSON(t, text))

	res, err := w.Walk(context.Background(), content)
	require.NoError(t, err)

	require.True(t, res.Changed())
	tc, ok := res.Content.(*adapters.TextContent)
	require.True(t, ok)
	assert.Less(t, len(tc.Text), len(text))
	assert.Equal(t, Totals{TokensBefore: 300, TokensAfter: 150}, res.Totals)
	require.Len(t, res.Fragments, 1)
	assert.Equal(t, "content", res.Fragments[0].Path)
}

func TestWalker_ShortStringUntouched(t *testing.T) {
	e := newFakeEngine(300, 150)
	w := NewWalker(newTestCompressor(e))
	content := adapters.ParseContent([]byte(`"hello"`))

	res, err := w.Walk(context.Background(), content)
	require.NoError(t, err)

	assert.False(t, res.Changed())
	assert.Same(t, content, res.Content)
	assert.Equal(t, Totals{}, res.Totals)
	assert.Empty(t, e.Calls())
}

func TestWalker_ImageBlockPassthrough(t *testing.T) {
	e := newFakeEngine(300, 150)
	w := NewWalker(newTestCompressor(e))
	raw := []byte(`[{"type":"image","source":{"type":"base64","media_type":"image/png","data":"` + strings.Repeat("A", 4000) + `"}}]`)
	content := adapters.ParseContent(raw)

	res, err := w.Walk(context.Background(), content)
	require.NoError(t, err)

	assert.False(t, res.Changed())
	assert.Equal(t, raw, res.Content.Raw())
	assert.Equal(t, Totals{}, res.Totals)
	assert.Empty(t, e.Calls())
}

func TestWalker_NestedToolResultList(t *testing.T) {
	e := newFakeEngine(400, 100)
	w := NewWalker(newTestCompressor(e))
	code := pythonCode(1200)

	block := map[string]any{
		"type":        "tool_result",
		"tool_use_id": "toolu_01",
		"is_error":    false,
		"content": []any{
			map[string]any{"type": "text", "text": code},
		},
	}
	raw := mustJSON(t, []any{block})

	res, err := w.Walk(context.Background(), adapters.ParseContent(raw))
	require.NoError(t, err)
	require.True(t, res.Changed())

	require.Len(t, e.Calls(), 1)
	assert.Equal(t, 0.75, e.Calls()[0].Rate)
	require.Len(t, res.Fragments, 1)
	assert.Equal(t, "content.0.content.0.text", res.Fragments[0].Path)
	assert.Equal(t, KindCode, res.Fragments[0].Outcome.Kind)

	got := decode(t, res.Content.Raw()).([]any)
	require.Len(t, got, 1)
	gotBlock := got[0].(map[string]any)
	assert.Equal(t, "tool_result", gotBlock["type"])
	assert.Equal(t, "toolu_01", gotBlock["tool_use_id"])
	assert.Equal(t, false, gotBlock["is_error"])
	nested := gotBlock["content"].([]any)
	require.Len(t, nested, 1)
	nestedBlock := nested[0].(map[string]any)
	assert.Equal(t, "text", nestedBlock["type"])
	assert.NotEqual(t, code, nestedBlock["text"])
	assert.Equal(t, string([]rune(code)[:utf8.RuneCountInString(code)/2]), nestedBlock["text"])
}

func TestWalker_StructuralPreservation(t *testing.T) {
	e := newFakeEngine(300, 150)
	w := NewWalker(newTestCompressor(e))

	longProse := prose(1500)
	raw := []byte(`[` +
		`{"type":"text","text":` + string(mustJSON(t, longProse)) + `,"cache_control":{"type":"ephemeral"}},` +
		`{"type":"image","source":{"type":"url","url":"https://example.com/a.png"}},` +
		`"stray string",` +
		`{"type":"tool_use","id":"toolu_9","name":"read","input":{"path":"a.txt"}},` +
		`{"type":"tool_result","tool_use_id":"toolu_9","content":` + string(mustJSON(t, longProse)) + `},` +
		`{"type":"tool_result","tool_use_id":"toolu_10","content":[{"type":"image","source":{}},{"type":"text","text":"short"},{"type":"text","text":` + string(mustJSON(t, longProse)) + `}]},` +
		`{"type":"text","text":"tiny"}` +
		`]`)
	in := adapters.ParseContent(raw).(*adapters.BlockList)

	res, err := w.Walk(context.Background(), in)
	require.NoError(t, err)
	out, ok := res.Content.(*adapters.BlockList)
	require.True(t, ok)

	require.Len(t, out.Blocks, len(in.Blocks))
	before := decode(t, raw).([]any)
	after := decode(t, out.Raw()).([]any)
	require.Len(t, after, len(before))

	for i := range before {
		bm, isObj := before[i].(map[string]any)
		if !isObj {
			assert.Equal(t, before[i], after[i])
			continue
		}
		am := after[i].(map[string]any)
		assert.Equal(t, bm["type"], am["type"], "block %d type", i)
		assert.Len(t, am, len(bm), "block %d key set", i)
		for k, v := range bm {
			if k == "text" || k == "content" {
				continue
			}
			assert.Equal(t, v, am[k], "block %d field %s", i, k)
		}
	}

	// Opaque blocks are byte-identical.
	assert.Equal(t, in.Blocks[1].Raw(), out.Blocks[1].Raw())
	assert.Equal(t, in.Blocks[2].Raw(), out.Blocks[2].Raw())
	assert.Equal(t, in.Blocks[3].Raw(), out.Blocks[3].Raw())
	assert.Equal(t, in.Blocks[6].Raw(), out.Blocks[6].Raw())

	paths := make([]string, 0, len(res.Fragments))
	for _, f := range res.Fragments {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"content.0.text", "content.4.content", "content.5.content.2.text"}, paths)
	assert.Equal(t, Totals{TokensBefore: 900, TokensAfter: 450}, res.Totals)
}

func TestWalker_ToolResultWithoutContent(t *testing.T) {
	w := NewWalker(newTestCompressor(newFakeEngine(300, 150)))
	raw := []byte(`[{"type":"tool_result","tool_use_id":"toolu_1"}]`)

	res, err := w.Walk(context.Background(), adapters.ParseContent(raw))
	require.NoError(t, err)
	assert.False(t, res.Changed())
	assert.Equal(t, raw, res.Content.Raw())
}

func TestWalker_EngineFailureStopsWalk(t *testing.T) {
	e := newFakeEngine(0, 0)
	e.err = errors.New("boom")
	w := NewWalker(newTestCompressor(e))
	raw := mustJSON(t, []any{
		map[string]any{"type": "text", "text": prose(1200)},
		map[string]any{"type": "text", "text": prose(1200)},
	})

	_, err := w.Walk(context.Background(), adapters.ParseContent(raw))
	assert.ErrorIs(t, err, ErrEngineFailure)
	assert.Len(t, e.Calls(), 1)
}

func TestWalker_ZeroBeforeExcluded(t *testing.T) {
	n := 0
	e := &fakeEngine{fn: func(text string, _ float64) (*engine.Result, error) {
		n++
		if n == 1 {
			return &engine.Result{CompressedPrompt: text[:10], OriginTokens: 0, CompressedTokens: 0}, nil
		}
		return &engine.Result{CompressedPrompt: text[:10], OriginTokens: 200, CompressedTokens: 80}, nil
	}}
	w := NewWalker(newTestCompressor(e))
	raw := mustJSON(t, []any{
		map[string]any{"type": "text", "text": prose(1200)},
		map[string]any{"type": "text", "text": prose(1300)},
	})

	res, err := w.Walk(context.Background(), adapters.ParseContent(raw))
	require.NoError(t, err)
	assert.Equal(t, Totals{TokensBefore: 200, TokensAfter: 80}, res.Totals)
	require.Len(t, res.Fragments, 1)
	assert.Equal(t, "content.1.text", res.Fragments[0].Path)
}

// =============================================================================
// PIPE (ORCHESTRATOR)
// =============================================================================

func runPipe(t *testing.T, p *Pipe, body []byte) (*pipes.PipeContext, []byte, error) {
	t.Helper()
	pctx := pipes.NewPipeContext(context.Background(), adapters.NewAnthropicAdapter(), body)
	out, err := p.Process(pctx)
	return pctx, out, err
}

func TestPipe_ShortMessageUnchanged(t *testing.T) {
	e := newFakeEngine(300, 150)
	body := []byte(`{"model":"claude-sonnet-4","messages":[{"role":"user","content":"hello"}],"max_tokens":64}`)

	pctx, out, err := runPipe(t, newTestPipe(e), body)
	require.NoError(t, err)

	assert.Equal(t, body, out)
	assert.Zero(t, pctx.TokensBefore)
	assert.Zero(t, pctx.TokensAfter)
	assert.Zero(t, pctx.ReductionPercent)
	assert.False(t, pctx.Compressed)
	assert.Empty(t, e.Calls())
}

func TestPipe_ProseParagraph(t *testing.T) {
	e := newFakeEngine(320, 160)
	text := prose(1500)
	body := mustJSON(t, map[string]any{
		"model":    "claude-sonnet-4",
		"messages": []any{map[string]any{"role": "user", "content": text}},
	})

	pctx, out, err := runPipe(t, newTestPipe(e), body)
	require.NoError(t, err)

	require.Len(t, e.Calls(), 1)
	assert.Equal(t, 0.5, e.Calls()[0].Rate)

	got := decode(t, out).(map[string]any)
	msg := got["messages"].([]any)[0].(map[string]any)
	assert.Less(t, len(msg["content"].(string)), len(text))
	assert.Greater(t, pctx.TokensBefore, pctx.TokensAfter)
	assert.Greater(t, pctx.TokensAfter, 0)
	assert.True(t, pctx.Compressed)
}

func TestPipe_TwoMessagesReduction(t *testing.T) {
	e := newFakeEngine(2000, 1000)
	body := mustJSON(t, map[string]any{
		"model": "claude-sonnet-4",
		"messages": []any{
			map[string]any{"role": "user", "content": prose(1500)},
			map[string]any{"role": "assistant", "content": "ok"},
		},
	})

	pctx, _, err := runPipe(t, newTestPipe(e), body)
	require.NoError(t, err)

	assert.Equal(t, 2000, pctx.TokensBefore)
	assert.Equal(t, 1000, pctx.TokensAfter)
	assert.InDelta(t, 50.0, pctx.ReductionPercent, 1e-9)
	assert.Equal(t, "50.0%", FormatPercent(pctx.ReductionPercent))
	require.Len(t, pctx.Fragments, 1)
	assert.Equal(t, 0, pctx.Fragments[0].MessageIndex)
}

func TestPipe_PreservesEverythingElse(t *testing.T) {
	e := newFakeEngine(300, 150)
	short := `{"role":"assistant","content":[{"type":"text","text":"sure"}]}`
	body := []byte(`{"model":"claude-sonnet-4","system":"be brief","messages":[` +
		short + `,` +
		`{"role":"user","content":` + string(mustJSON(t, prose(1500))) + `},` +
		`42` +
		`],"max_tokens":1024,"metadata":{"user_id":"u1"}}`)

	_, out, err := runPipe(t, newTestPipe(e), body)
	require.NoError(t, err)

	before := decode(t, body).(map[string]any)
	after := decode(t, out).(map[string]any)
	for _, k := range []string{"model", "system", "max_tokens", "metadata"} {
		assert.Equal(t, before[k], after[k], k)
	}
	msgs := after["messages"].([]any)
	require.Len(t, msgs, 3)
	assert.Equal(t, float64(42), msgs[2])
	assert.Contains(t, string(out), short, "unchanged messages stay byte-identical")
}

func TestPipe_EngineFailureAborts(t *testing.T) {
	e := newFakeEngine(0, 0)
	e.err = errors.New("cuda oom")
	body := mustJSON(t, map[string]any{
		"messages": []any{map[string]any{"role": "user", "content": prose(1500)}},
	})

	_, out, err := runPipe(t, newTestPipe(e), body)
	assert.ErrorIs(t, err, ErrEngineFailure)
	assert.Nil(t, out)
}

func TestPipe_MalformedMessagesTolerated(t *testing.T) {
	e := newFakeEngine(300, 150)
	bodies := [][]byte{
		[]byte(`{"model":"x"}`),
		[]byte(`{"messages":"not a list"}`),
		[]byte(`{"messages":[null,1,"x",{"role":"user"},{"role":"user","content":null},{"role":"user","content":{"a":1}}]}`),
	}
	for _, body := range bodies {
		pctx, out, err := runPipe(t, newTestPipe(e), body)
		require.NoError(t, err)
		assert.Equal(t, body, out)
		assert.Zero(t, pctx.TokensBefore)
	}
	assert.Empty(t, e.Calls())
}

func TestPipe_InvalidJSON(t *testing.T) {
	_, _, err := runPipe(t, newTestPipe(newFakeEngine(1, 0)), []byte(`{"messages":[`))
	assert.ErrorIs(t, err, adapters.ErrInvalidJSON)
}

func TestPipe_Disabled(t *testing.T) {
	e := newFakeEngine(300, 150)
	cfg := config.Default()
	cfg.Pipes.Lingua.Enabled = false
	body := mustJSON(t, map[string]any{
		"messages": []any{map[string]any{"role": "user", "content": prose(1500)}},
	})

	pctx := pipes.NewPipeContext(context.Background(), adapters.NewAnthropicAdapter(), body)
	out, err := New(cfg, e).Process(pctx)
	require.NoError(t, err)
	assert.Equal(t, body, out)
	assert.Empty(t, e.Calls())
}

func TestPipe_AccountingConsistency(t *testing.T) {
	counts := []engine.Result{
		{OriginTokens: 500, CompressedTokens: 200},
		{OriginTokens: 300, CompressedTokens: 300},
		{OriginTokens: 700, CompressedTokens: 100},
	}
	i := 0
	e := &fakeEngine{fn: func(text string, _ float64) (*engine.Result, error) {
		r := counts[i%len(counts)]
		i++
		r.CompressedPrompt = text[:100]
		return &r, nil
	}}
	body := mustJSON(t, map[string]any{
		"messages": []any{
			map[string]any{"role": "user", "content": prose(1500)},
			map[string]any{"role": "user", "content": []any{
				map[string]any{"type": "text", "text": prose(1100)},
				map[string]any{"type": "text", "text": pythonCode(1100)},
			}},
		},
	})

	pctx, _, err := runPipe(t, newTestPipe(e), body)
	require.NoError(t, err)

	assert.Equal(t, 1200, pctx.TokensBefore)
	assert.Equal(t, 300, pctx.TokensAfter)
	assert.LessOrEqual(t, pctx.TokensAfter, pctx.TokensBefore)
	assert.InDelta(t, (1-300.0/1200.0)*100, pctx.ReductionPercent, 1e-9)
}

func TestReductionPercent(t *testing.T) {
	assert.Zero(t, ReductionPercent(0, 0))
	assert.InDelta(t, 50.0, ReductionPercent(2000, 1000), 1e-9)
	assert.InDelta(t, 75.0, ReductionPercent(400, 100), 1e-9)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
