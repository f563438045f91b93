package toolexec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/agentrt/agent"
	"github.com/flowctl/agentrt/session"
	"github.com/flowctl/agentrt/tools"
)

func newFixture(t *testing.T, opts ...Option) (*Executor, *session.AgentState) {
	t.Helper()
	reg := tools.NewRegistry()
	tree := agent.NewTree(agent.ID("main"), agent.Ident("root"))
	exec := New(reg, tools.Capabilities{}, tree, opts...)
	state := session.NewAgentState(agent.ID("main"), agent.RunID("run-1"), agent.Ident("root"), agent.ID(""), 10)
	return exec, state
}

func TestExecute_EndTurnIsSilentNoOp(t *testing.T) {
	exec, state := newFixture(t)
	out := exec.Execute(context.Background(), state, ToolCall{ToolCallID: "1", ToolName: tools.EndTurn})
	assert.Empty(t, out)

	history := state.MessageHistory()
	require.Len(t, history, 1, "end_turn appends the rendered call but no tool-result")
	assert.Equal(t, session.RoleAssistant, history[0].Role)
}

func TestExecute_SetOutputMergesIntoAgentState(t *testing.T) {
	exec, state := newFixture(t)
	exec.Execute(context.Background(), state, ToolCall{
		ToolCallID: "1", ToolName: tools.SetOutput,
		Input: map[string]any{"answer": 42},
	})

	out := state.Output()
	require.NotNil(t, out)
	assert.Equal(t, session.AgentOutputStructured, out.Type)
	value, ok := out.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 42, value["answer"])

	for _, m := range state.MessageHistory() {
		assert.Nil(t, m.ToolResult, "set_output must not append a tool-result message")
	}
}

func TestExecute_SetMessagesReplacesHistoryWholesale(t *testing.T) {
	exec, state := newFixture(t)
	state.AppendMessage(session.Message{Role: session.RoleUser, Text: "hi"})

	exec.Execute(context.Background(), state, ToolCall{
		ToolCallID: "1", ToolName: tools.SetMessages,
		Input: map[string]any{"messages": []any{
			map[string]any{"role": "assistant", "text": "replaced"},
		}},
	})

	history := state.MessageHistory()
	require.Len(t, history, 1)
	assert.Equal(t, "replaced", history[0].Text)
}

func TestExecute_UnknownToolProducesNotFoundError(t *testing.T) {
	exec, state := newFixture(t)
	out := exec.Execute(context.Background(), state, ToolCall{ToolCallID: "1", ToolName: tools.Ident("nope")})

	require.Len(t, out, 1)
	value, ok := out[0].Value.(map[string]string)
	require.True(t, ok)
	assert.Contains(t, value["errorMessage"], "nope")
}

func TestExecute_HostOverridePreemptsBuiltinHandler(t *testing.T) {
	called := false
	exec, state := newFixture(t, WithOverride(tools.ReadFiles, func(ctx tools.Context, call ToolCall) (tools.ResultParts, error) {
		called = true
		return tools.ResultParts{tools.TextPart("overridden")}, nil
	}))

	out := exec.Execute(context.Background(), state, ToolCall{ToolCallID: "1", ToolName: tools.ReadFiles, Input: map[string]any{}})
	assert.True(t, called)
	require.Len(t, out, 1)
	assert.Equal(t, "overridden", out[0].Text)
}

func TestExecute_BuiltinHandlerErrorBecomesToolResultError(t *testing.T) {
	exec, state := newFixture(t) // no FS capability injected
	out := exec.Execute(context.Background(), state, ToolCall{ToolCallID: "1", ToolName: tools.ReadFiles, Input: map[string]any{}})

	require.Len(t, out, 1)
	value, ok := out[0].Value.(map[string]string)
	require.True(t, ok)
	assert.NotEmpty(t, value["errorMessage"])
}

type stubOrchestrator struct {
	spawnAgentsCalls int
	inlineCalls      int
}

func (o *stubOrchestrator) SpawnAgents(ctx context.Context, parent *session.AgentState, call ToolCall) (tools.ResultParts, error) {
	o.spawnAgentsCalls++
	return tools.ResultParts{tools.TextPart("spawned")}, nil
}

func (o *stubOrchestrator) SpawnAgentInline(ctx context.Context, parent *session.AgentState, call ToolCall) (tools.ResultParts, error) {
	o.inlineCalls++
	return tools.ResultParts{tools.TextPart("spawned-inline")}, nil
}

func TestExecute_SpawnAgentsDelegatesToOrchestrator(t *testing.T) {
	orch := &stubOrchestrator{}
	exec, state := newFixture(t, WithOrchestrator(orch))

	exec.Execute(context.Background(), state, ToolCall{ToolCallID: "1", ToolName: tools.SpawnAgents, Input: map[string]any{}})
	assert.Equal(t, 1, orch.spawnAgentsCalls)

	exec.Execute(context.Background(), state, ToolCall{ToolCallID: "2", ToolName: tools.SpawnAgentInline, Input: map[string]any{}})
	assert.Equal(t, 1, orch.inlineCalls)
}

type stubBridge struct {
	gotTimeoutInput map[string]any
	sawDeadline     bool
}

func (b *stubBridge) Dispatch(ctx context.Context, state *session.AgentState, call ToolCall) (tools.ResultParts, error) {
	b.gotTimeoutInput = call.Input
	_, b.sawDeadline = ctx.Deadline()
	return tools.ResultParts{tools.TextPart("done")}, nil
}

func TestExecute_ClientDelegatedToolUsesBridge(t *testing.T) {
	bridge := &stubBridge{}
	exec, state := newFixture(t, WithClientBridge(bridge))

	out := exec.Execute(context.Background(), state, ToolCall{
		ToolCallID: "1", ToolName: tools.WriteFile,
		Input: map[string]any{"path": "a.txt", "content": "hi"},
	})
	require.Len(t, out, 1)
	assert.Equal(t, "done", out[0].Text)
	assert.NotNil(t, bridge.gotTimeoutInput)
	assert.True(t, bridge.sawDeadline, "default client-tool timeout installs a context deadline")
}

func TestExecute_NegativeTimeoutDisablesDeadline(t *testing.T) {
	bridge := &stubBridge{}
	exec, state := newFixture(t, WithClientBridge(bridge))

	exec.Execute(context.Background(), state, ToolCall{
		ToolCallID: "1", ToolName: tools.RunTerminalCommand,
		Input: map[string]any{"command": "sleep", "timeout_seconds": -1.0},
	})
	assert.False(t, bridge.sawDeadline, "negative timeout_seconds disables the deadline")
}

func TestExecute_ExcludeFromHistorySkipsAssistantMessage(t *testing.T) {
	exec, state := newFixture(t)
	exec.Execute(context.Background(), state, ToolCall{
		ToolCallID: "1", ToolName: tools.ReadFiles, ExcludeFromHistory: true,
		Input: map[string]any{},
	})

	for _, m := range state.MessageHistory() {
		assert.NotEqual(t, session.RoleAssistant, m.Role)
	}
}

func TestExecute_ParentAgentIDTaggedOnEventsForChildAgent(t *testing.T) {
	reg := tools.NewRegistry()
	tree := agent.NewTree(agent.ID("main"), agent.Ident("root"))
	tree.Add(agent.ID("child"), agent.ID("main"), agent.Ident("helper"))

	var events []Event
	sink := sinkFunc{
		start:  func(ctx context.Context, e Event) { events = append(events, e) },
		finish: func(ctx context.Context, e Event) { events = append(events, e) },
	}
	exec := New(reg, tools.Capabilities{}, tree, WithSink(sink))
	childState := session.NewAgentState(agent.ID("child"), agent.RunID("run-1"), agent.Ident("helper"), agent.ID("main"), 5)

	exec.Execute(context.Background(), childState, ToolCall{ToolCallID: "1", ToolName: tools.EndTurn})

	require.Len(t, events, 2)
	assert.Equal(t, agent.ID("main"), events[0].ParentAgentID)
	assert.Equal(t, agent.ID("main"), events[1].ParentAgentID)
}

type sinkFunc struct {
	start, finish func(ctx context.Context, e Event)
}

func (s sinkFunc) ToolCallStarted(ctx context.Context, e Event)  { s.start(ctx, e) }
func (s sinkFunc) ToolCallFinished(ctx context.Context, e Event) { s.finish(ctx, e) }
