package streamparse

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/agentrt/toolerrors"
	"github.com/flowctl/agentrt/tools"
)

type fakeResolver struct {
	specs map[tools.Ident]*tools.ToolSpec
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{specs: map[tools.Ident]*tools.ToolSpec{
		tools.EndTurn: {Name: tools.EndTurn, EndsStep: true},
		"search": {
			Name: "search",
			Input: tools.TypeSpec{
				Schema: []byte(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`),
			},
		},
	}}
}

func (f *fakeResolver) Resolve(name tools.Ident) (*tools.ToolSpec, bool) {
	s, ok := f.specs[name]
	return s, ok
}

func (f *fakeResolver) ValidateInput(name tools.Ident, value map[string]any) *toolerrors.ToolError {
	spec, ok := f.specs[name]
	if !ok {
		return toolerrors.New("tool not found")
	}
	if len(spec.Input.Schema) == 0 {
		return nil
	}
	if _, ok := value["query"].(string); spec.Name == "search" && !ok {
		return toolerrors.New("missing query")
	}
	return nil
}

func collectText(events []Event) string {
	var sb strings.Builder
	for _, e := range events {
		if e.Type == EventText {
			sb.WriteString(e.Delta)
		}
	}
	return sb.String()
}

func TestParser_PlainTextPassesThrough(t *testing.T) {
	p := New(newFakeResolver())
	events := p.Feed(Chunk{Kind: ChunkKindText, Text: "hello there"})
	require.Len(t, events, 1)
	assert.Equal(t, EventText, events[0].Type)
	assert.Equal(t, "hello there", events[0].Delta)
}

func TestParser_ParsesCompleteToolCall(t *testing.T) {
	p := New(newFakeResolver())
	raw := `before <codebuff_tool_call>{"cb_tool_name":"search","query":"cats"}</codebuff_tool_call> after`
	events := p.Feed(Chunk{Kind: ChunkKindText, Text: raw})

	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, "before  after", collectText(events))

	var call *ToolCall
	for _, e := range events {
		if e.Type == EventToolCall {
			call = e.Call
		}
	}
	require.NotNil(t, call)
	assert.Equal(t, tools.Ident("search"), call.ToolName)
	assert.Equal(t, "cats", call.Input["query"])
}

func TestParser_ToolCallSplitAcrossChunks(t *testing.T) {
	p := New(newFakeResolver())
	raw := `<codebuff_tool_call>{"cb_tool_name":"search","query":"dogs"}</codebuff_tool_call>`
	var call *ToolCall
	for i := 0; i < len(raw); i++ {
		for _, ev := range p.Feed(Chunk{Kind: ChunkKindText, Text: string(raw[i])}) {
			if ev.Type == EventToolCall {
				call = ev.Call
			}
		}
	}
	require.NotNil(t, call)
	assert.Equal(t, "dogs", call.Input["query"])
}

func TestParser_UnknownToolProducesError(t *testing.T) {
	p := New(newFakeResolver())
	raw := `<codebuff_tool_call>{"cb_tool_name":"nope"}</codebuff_tool_call>`
	var found *Event
	for _, ev := range p.Feed(Chunk{Kind: ChunkKindText, Text: raw}) {
		if ev.Type == EventToolCallError {
			e := ev
			found = &e
		}
	}
	require.NotNil(t, found)
	assert.Contains(t, found.Reason, "not found")
}

func TestParser_InvalidJSONProducesError(t *testing.T) {
	p := New(newFakeResolver())
	raw := `<codebuff_tool_call>{not json</codebuff_tool_call>`
	var found *Event
	for _, ev := range p.Feed(Chunk{Kind: ChunkKindText, Text: raw}) {
		if ev.Type == EventToolCallError {
			e := ev
			found = &e
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "Invalid JSON", found.Reason)
}

func TestParser_StripsToolResultEnvelope(t *testing.T) {
	p := New(newFakeResolver())
	raw := `keep <tool_result>{"stale":"echo"}</tool_result> this`
	events := p.Feed(Chunk{Kind: ChunkKindText, Text: raw})
	assert.Equal(t, "keep  this", collectText(events))
}

func TestParser_StopsEmittingAfterEndTurn(t *testing.T) {
	p := New(newFakeResolver())
	first := `<codebuff_tool_call>{"cb_tool_name":"end_turn"}</codebuff_tool_call>trailing text`
	events := p.Feed(Chunk{Kind: ChunkKindText, Text: first})
	assert.Empty(t, collectText(events))

	more := p.Feed(Chunk{Kind: ChunkKindText, Text: "more text after stop"})
	assert.Empty(t, more)
}

// TestParser_ChunkSplitInvariant verifies that splitting an input string at any
// point and feeding it as two chunks reconstructs the same plain text as
// feeding it whole, i.e. the rolling buffer correctly reassembles delimiters
// split across a chunk boundary (spec.md §4.2 "streaming guarantees").
func TestParser_ChunkSplitInvariant(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	samples := []string{
		"plain text with no envelope at all",
		`text before <codebuff_tool_call>{"cb_tool_name":"search","query":"x"}</codebuff_tool_call> text after`,
		`<codebuff_tool_call>{"cb_tool_name":"search","query":"y"}</codebuff_tool_call>`,
		`mid <tool_result>{"a":1}</tool_result> tail`,
	}

	properties.Property("splitting input at any offset yields the same text output as feeding it whole", prop.ForAll(
		func(sampleIdx, splitPct int) bool {
			sample := samples[sampleIdx%len(samples)]
			split := (len(sample) * (splitPct % 101)) / 100

			whole := New(newFakeResolver())
			wholeText := collectText(whole.Feed(Chunk{Kind: ChunkKindText, Text: sample}))

			parts := New(newFakeResolver())
			var splitText strings.Builder
			splitText.WriteString(collectText(parts.Feed(Chunk{Kind: ChunkKindText, Text: sample[:split]})))
			splitText.WriteString(collectText(parts.Feed(Chunk{Kind: ChunkKindText, Text: sample[split:]})))

			return wholeText == splitText.String()
		},
		gen.IntRange(0, len(samples)-1),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}
