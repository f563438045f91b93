package wire

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/agentrt/agent"
	"github.com/flowctl/agentrt/stream"
)

type fakeEvent struct {
	stream.Base
}

func TestRegistrySink_SendsBoundSession(t *testing.T) {
	sessCh := make(chan *Session, 1)
	srv := NewServer(func(ctx context.Context, sess *Session, msg PromptMessage) {
		sessCh <- sess
	})
	client := dialServer(t, srv)

	require.NoError(t, client.WriteJSON(PromptMessage{Type: ActionPrompt, PromptID: "p1"}))
	var sess *Session
	select {
	case sess = <-sessCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session")
	}

	registry := NewRegistry()
	registry.Bind(agent.RunID("run-1"), sess)
	sink := NewRegistrySink(registry)

	evt := fakeEvent{Base: stream.NewBase(stream.EventAssistantReply, "run-1", "sess-1", stream.AssistantReplyPayload{Text: "hi"})}
	require.NoError(t, sink.Send(context.Background(), evt))

	var msg AgentEventMessage
	require.NoError(t, client.ReadJSON(&msg))
	assert.Equal(t, ActionAgentEvent, msg.Type)
	assert.Equal(t, string(stream.EventAssistantReply), msg.EventType)
	assert.Equal(t, "run-1", msg.RunID)
	assert.Equal(t, "sess-1", msg.SessionID)
}

func TestRegistrySink_DropsUnboundRun(t *testing.T) {
	registry := NewRegistry()
	sink := NewRegistrySink(registry)

	evt := fakeEvent{Base: stream.NewBase(stream.EventAssistantReply, "run-unbound", "", stream.AssistantReplyPayload{Text: "hi"})}
	assert.NoError(t, sink.Send(context.Background(), evt))
}

func TestRegistrySink_Close(t *testing.T) {
	sink := NewRegistrySink(NewRegistry())
	assert.NoError(t, sink.Close(context.Background()))
}
