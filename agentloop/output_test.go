package agentloop

import (
	"testing"

	"github.com/flowctl/agentrt/agent"
	"github.com/flowctl/agentrt/session"
)

func TestFinalOutput_PrefersExplicitSetOutput(t *testing.T) {
	state := session.NewAgentState(agent.ID("a"), agent.RunID("r"), agent.Ident("t"), "", 5)
	state.SetOutput(&session.AgentOutput{Type: session.AgentOutputStructured, Value: map[string]any{"ok": true}})
	template := &session.AgentTemplate{OutputMode: session.OutputModeLastMessage}

	out := FinalOutput(state, template)
	if out.Type != session.AgentOutputStructured {
		t.Fatalf("got Type %v, want AgentOutputStructured", out.Type)
	}
}

func TestFinalOutput_LastMessageModeReturnsMostRecentAssistantText(t *testing.T) {
	state := session.NewAgentState(agent.ID("a"), agent.RunID("r"), agent.Ident("t"), "", 5)
	state.AppendMessage(session.Message{Role: session.RoleAssistant, Text: "first"})
	state.AppendMessage(session.Message{Role: session.RoleUser, Text: "ignored"})
	state.AppendMessage(session.Message{Role: session.RoleAssistant, Text: "second"})
	template := &session.AgentTemplate{OutputMode: session.OutputModeLastMessage}

	out := FinalOutput(state, template)
	if out.Type != session.AgentOutputLastMessage || out.Message != "second" {
		t.Fatalf("got %+v, want lastMessage=second", out)
	}
}

func TestFinalOutput_StructuredOutputModeWithoutSetOutputIsError(t *testing.T) {
	state := session.NewAgentState(agent.ID("a"), agent.RunID("r"), agent.Ident("t"), "", 5)
	template := &session.AgentTemplate{OutputMode: session.OutputModeStructuredOutput}

	out := FinalOutput(state, template)
	if out.Type != session.AgentOutputError {
		t.Fatalf("got Type %v, want AgentOutputError", out.Type)
	}
}

func TestFinalOutput_AllMessagesModeReturnsFullHistory(t *testing.T) {
	state := session.NewAgentState(agent.ID("a"), agent.RunID("r"), agent.Ident("t"), "", 5)
	state.AppendMessage(session.Message{Role: session.RoleUser, Text: "hi"})
	state.AppendMessage(session.Message{Role: session.RoleAssistant, Text: "hello"})
	template := &session.AgentTemplate{OutputMode: session.OutputModeAllMessages}

	out := FinalOutput(state, template)
	history, ok := out.Value.([]session.Message)
	if out.Type != session.AgentOutputAllMessages || !ok || len(history) != 2 {
		t.Fatalf("got %+v, want allMessages with 2 entries", out)
	}
}
