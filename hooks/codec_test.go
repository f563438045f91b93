package hooks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/flowctl/agentrt/agent"
	"github.com/flowctl/agentrt/tools"
)

func TestDecodeFromHookInput_ToolResultReceivedRoundTrips(t *testing.T) {
	runID := "run-1"
	agentID := agent.Ident("agent-1")
	sessionID := "session-1"
	toolName := tools.Ident("atlas.read.get_topology")
	toolCallID := "call-1"

	ev := NewToolResultReceivedEvent(
		runID,
		agentID,
		sessionID,
		toolName,
		toolCallID,
		"",
		map[string]any{"summary": "ok"},
		"preview",
		nil,
		250*time.Millisecond,
		nil,
		nil,
	)

	in, err := EncodeToHookInput(ev, "")
	require.NoError(t, err)

	decoded, err := DecodeFromHookInput(in)
	require.NoError(t, err)

	tr, ok := decoded.(*ToolResultReceivedEvent)
	require.True(t, ok)
	require.Equal(t, toolName, tr.ToolName)
	require.Equal(t, toolCallID, tr.ToolCallID)
	require.Equal(t, "preview", tr.ResultPreview)
}
