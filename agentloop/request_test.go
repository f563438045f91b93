package agentloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/agentrt/agent"
	"github.com/flowctl/agentrt/model"
	"github.com/flowctl/agentrt/session"
	"github.com/flowctl/agentrt/tools"
)

func TestDefaultRequestBuilderIncludesSystemPromptAndHistory(t *testing.T) {
	registry := tools.NewRegistry()
	state := session.NewAgentState(agent.ID("a1"), agent.RunID("run-1"), agent.Ident("main"), "", 10)
	state.AppendMessage(session.Message{Role: session.RoleUser, Text: "hello"})
	state.AppendMessage(session.Message{Role: session.RoleAssistant, Text: "hi there"})

	template := &session.AgentTemplate{
		ID:           agent.Ident("main"),
		SystemPrompt: "You are helpful.",
	}

	b := DefaultRequestBuilder{Temperature: 0.5}
	req := b.BuildRequest(state, template, registry)

	require.Len(t, req.Messages, 3)
	assert.Equal(t, model.ConversationRoleSystem, req.Messages[0].Role)
	assert.Equal(t, model.ConversationRoleUser, req.Messages[1].Role)
	assert.Equal(t, model.ConversationRoleAssistant, req.Messages[2].Role)
	assert.Equal(t, float32(0.5), req.Temperature)
	assert.Equal(t, "run-1", req.RunID)
}

func TestDefaultRequestBuilderConvertsToolResult(t *testing.T) {
	registry := tools.NewRegistry()
	state := session.NewAgentState(agent.ID("a1"), agent.RunID("run-1"), agent.Ident("main"), "", 10)
	state.AppendMessage(session.Message{
		Role: session.RoleTool,
		ToolResult: &session.ToolResultContent{
			ToolCallID: "call-1",
			ToolName:   tools.Ident("read_file"),
			Output:     tools.ResultParts{tools.ErrorPart("boom")},
		},
	})

	template := &session.AgentTemplate{ID: agent.Ident("main")}
	b := DefaultRequestBuilder{}
	req := b.BuildRequest(state, template, registry)

	require.Len(t, req.Messages, 1)
	assert.Equal(t, model.ConversationRoleUser, req.Messages[0].Role)
	part, ok := req.Messages[0].Parts[0].(model.TextPart)
	require.True(t, ok)
	assert.Contains(t, part.Text, "call-1")
	assert.Contains(t, part.Text, "<tool_result>")
}

func TestDefaultRequestBuilderIncludesDeclaredTools(t *testing.T) {
	registry := tools.NewRegistry()
	template := &session.AgentTemplate{
		ID:        agent.Ident("main"),
		ToolNames: []tools.Ident{"end_turn", "unknown_tool"},
	}
	state := session.NewAgentState(agent.ID("a1"), agent.RunID("run-1"), agent.Ident("main"), "", 10)

	b := DefaultRequestBuilder{}
	req := b.BuildRequest(state, template, registry)

	require.Len(t, req.Tools, 1)
	assert.Equal(t, "end_turn", req.Tools[0].Name)
}
