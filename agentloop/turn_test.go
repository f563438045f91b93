package agentloop

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/flowctl/agentrt/agent"
	"github.com/flowctl/agentrt/model"
	"github.com/flowctl/agentrt/session"
	"github.com/flowctl/agentrt/toolexec"
	"github.com/flowctl/agentrt/tools"
)

type scriptedStreamer struct {
	chunks []model.Chunk
	idx    int
}

func (s *scriptedStreamer) Recv() (model.Chunk, error) {
	if s.idx >= len(s.chunks) {
		return model.Chunk{}, io.EOF
	}
	c := s.chunks[s.idx]
	s.idx++
	return c, nil
}
func (s *scriptedStreamer) Close() error            { return nil }
func (s *scriptedStreamer) Metadata() map[string]any { return nil }

type scriptedClient struct {
	streamer *scriptedStreamer
}

func (c *scriptedClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	return nil, errors.New("not implemented")
}
func (c *scriptedClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	return c.streamer, nil
}

type stubRequestBuilder struct{}

func (stubRequestBuilder) BuildRequest(state *session.AgentState, template *session.AgentTemplate, registry *tools.Registry) *model.Request {
	return &model.Request{Messages: ToModelMessages(state.MessageHistory())}
}

func textChunk(text string) model.Chunk {
	return model.Chunk{Type: model.ChunkTypeText, Message: &model.Message{Parts: []model.Part{model.TextPart{Text: text}}}}
}

func newTurnFixture(chunks []model.Chunk) (*TurnRunner, *session.AgentState) {
	registry := tools.NewRegistry()
	tree := agent.NewTree(agent.ID("main"), agent.Ident("root"))
	executor := toolexec.New(registry, tools.Capabilities{}, tree)
	state := session.NewAgentState(agent.ID("main"), agent.RunID("run-1"), agent.Ident("root"), "", 5)
	runner := &TurnRunner{
		Client:   &scriptedClient{streamer: &scriptedStreamer{chunks: chunks}},
		Registry: registry,
		Executor: executor,
		State:    state,
		Template: &session.AgentTemplate{},
		Builder:  stubRequestBuilder{},
	}
	return runner, state
}

func TestTurnRunner_PlainTextAppendsAssistantMessageNoToolCalls(t *testing.T) {
	runner, state := newTurnFixture([]model.Chunk{textChunk("hello there")})

	result, err := runner.RunTurn(context.Background())
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	if result.ToolCallCount != 0 || result.SawEndTurn {
		t.Fatalf("got %+v, want no tool calls", result)
	}
	history := state.MessageHistory()
	if len(history) != 1 || history[0].Text != "hello there" {
		t.Fatalf("history = %+v, want one assistant message", history)
	}
}

func TestTurnRunner_EndTurnToolCallSetsSawEndTurn(t *testing.T) {
	body := `<codebuff_tool_call>{"cb_tool_name":"end_turn"}</codebuff_tool_call>`
	runner, state := newTurnFixture([]model.Chunk{textChunk(body)})

	result, err := runner.RunTurn(context.Background())
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	if !result.SawEndTurn || result.ToolCallCount != 1 {
		t.Fatalf("got %+v, want SawEndTurn with one tool call", result)
	}
	history := state.MessageHistory()
	if len(history) == 0 {
		t.Fatal("expected end_turn dispatch to append to history")
	}
}

func TestTurnRunner_EndsStepToolStopsConsumingFurtherChunks(t *testing.T) {
	first := `<codebuff_tool_call>{"cb_tool_name":"write_file","path":"a.txt","content":"x"}</codebuff_tool_call>`
	runner, _ := newTurnFixture([]model.Chunk{textChunk(first), textChunk("never seen")})

	result, err := runner.RunTurn(context.Background())
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	if result.ToolCallCount != 1 {
		t.Fatalf("got ToolCallCount=%d, want 1 (second chunk must not be consumed)", result.ToolCallCount)
	}
}

func TestTurnRunner_UnknownToolProducesToolCallErrorResult(t *testing.T) {
	body := `<codebuff_tool_call>{"cb_tool_name":"not_a_real_tool"}</codebuff_tool_call>`
	runner, state := newTurnFixture([]model.Chunk{textChunk(body)})

	result, err := runner.RunTurn(context.Background())
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	if result.ToolCallCount != 1 || result.ToolResultCount != 1 {
		t.Fatalf("got %+v, want one counted tool call/result", result)
	}
	history := state.MessageHistory()
	last := history[len(history)-1]
	if last.Role != session.RoleTool || last.ToolResult == nil {
		t.Fatalf("last message = %+v, want a tool-result error entry", last)
	}
}
