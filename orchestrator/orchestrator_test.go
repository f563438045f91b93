package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/agentrt/agent"
	"github.com/flowctl/agentrt/session"
	"github.com/flowctl/agentrt/toolexec"
)

type stubTemplates struct {
	templates map[agent.Ident]*session.AgentTemplate
}

func (s *stubTemplates) Template(id agent.Ident) (*session.AgentTemplate, bool) {
	t, ok := s.templates[id]
	return t, ok
}

type stubSpawner struct {
	calls  int32
	output func(prompt string) session.AgentOutput
	err    error
}

func (s *stubSpawner) RunPrompt(ctx context.Context, state *session.AgentState, template *session.AgentTemplate, prompt string) (session.AgentOutput, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return session.AgentOutput{}, s.err
	}
	return s.output(prompt), nil
}

func newOrchestratorFixture(templates map[agent.Ident]*session.AgentTemplate, spawner Spawner) (*Orchestrator, *session.AgentState) {
	tree := agent.NewTree(agent.ID("main"), agent.Ident("root"))
	parent := session.NewAgentState(agent.ID("main"), agent.RunID("run-1"), agent.Ident("root"), "", 5)
	counter := 0
	o := New(tree, &stubTemplates{templates: templates}, spawner, WithIDGenerator(func() string {
		counter++
		return fmt.Sprintf("id-%d", counter)
	}))
	return o, parent
}

func TestSpawnAgents_RunsChildrenAndAssemblesResultsInInputOrder(t *testing.T) {
	templates := map[agent.Ident]*session.AgentTemplate{
		"worker": {OutputMode: session.OutputModeLastMessage},
	}
	spawner := &stubSpawner{output: func(prompt string) session.AgentOutput {
		return session.AgentOutput{Type: session.AgentOutputLastMessage, Message: "done:" + prompt}
	}}
	o, parent := newOrchestratorFixture(templates, spawner)

	call := toolexec.ToolCall{Input: map[string]any{"agents": []any{
		map[string]any{"agent_type": "worker", "prompt": "first"},
		map[string]any{"agent_type": "worker", "prompt": "second"},
		map[string]any{"agent_type": "worker", "prompt": "third"},
	}}}

	out, err := o.SpawnAgents(context.Background(), parent, call)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "done:first", out[0].Text)
	assert.Equal(t, "done:second", out[1].Text)
	assert.Equal(t, "done:third", out[2].Text)
	assert.Equal(t, int32(3), spawner.calls)
	assert.Len(t, parent.ChildRunIDs(), 3)
}

func TestSpawnAgents_UnknownAgentTypeProducesErrorPartNotFailure(t *testing.T) {
	spawner := &stubSpawner{output: func(string) session.AgentOutput { return session.AgentOutput{} }}
	o, parent := newOrchestratorFixture(map[agent.Ident]*session.AgentTemplate{}, spawner)

	call := toolexec.ToolCall{Input: map[string]any{"agents": []any{
		map[string]any{"agent_type": "ghost", "prompt": "hi"},
	}}}

	out, err := o.SpawnAgents(context.Background(), parent, call)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "json", out[0].Kind)
	errMap, ok := out[0].Value.(map[string]string)
	require.True(t, ok)
	assert.Contains(t, errMap["errorMessage"], "unknown agent type")
}

func TestSpawnAgentInline_RunsExactlyOneChildAndFoldsOutput(t *testing.T) {
	templates := map[agent.Ident]*session.AgentTemplate{
		"inline-worker": {OutputMode: session.OutputModeStructuredOutput},
	}
	spawner := &stubSpawner{output: func(prompt string) session.AgentOutput {
		return session.AgentOutput{Type: session.AgentOutputStructured, Value: map[string]any{"echo": prompt}}
	}}
	o, parent := newOrchestratorFixture(templates, spawner)

	call := toolexec.ToolCall{Input: map[string]any{"agent_type": "inline-worker", "prompt": "hello"}}
	out, err := o.SpawnAgentInline(context.Background(), parent, call)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "json", out[0].Kind)
	assert.Equal(t, int32(1), spawner.calls)
}

func TestSpawnAgents_InheritsParentSystemPromptWhenDeclared(t *testing.T) {
	var capturedPrompt string
	templates := map[agent.Ident]*session.AgentTemplate{
		"root":   {SystemPrompt: "you are the main agent"},
		"worker": {SystemPrompt: "you are a worker", InheritParentSystemPrompt: true, OutputMode: session.OutputModeLastMessage},
	}
	spawner := &stubSpawner{output: func(string) session.AgentOutput { return session.AgentOutput{Type: session.AgentOutputLastMessage} }}
	spawner.output = func(string) session.AgentOutput { return session.AgentOutput{Type: session.AgentOutputLastMessage} }
	o, parent := newOrchestratorFixture(templates, &capturingSpawner{base: spawner, capture: &capturedPrompt})

	call := toolexec.ToolCall{Input: map[string]any{"agents": []any{
		map[string]any{"agent_type": "worker", "prompt": "go"},
	}}}
	_, err := o.SpawnAgents(context.Background(), parent, call)
	require.NoError(t, err)
	assert.Contains(t, capturedPrompt, "you are the main agent")
	assert.Contains(t, capturedPrompt, "you are a worker")
}

type capturingSpawner struct {
	base    *stubSpawner
	capture *string
}

func (c *capturingSpawner) RunPrompt(ctx context.Context, state *session.AgentState, template *session.AgentTemplate, prompt string) (session.AgentOutput, error) {
	*c.capture = template.SystemPrompt
	return c.base.RunPrompt(ctx, state, template, prompt)
}
