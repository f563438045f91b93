package wire

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/agentrt/agent"
	"github.com/flowctl/agentrt/session"
	"github.com/flowctl/agentrt/toolexec"
	"github.com/flowctl/agentrt/tools"
)

func dialServer(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	httpSrv := httptest.NewServer(srv)
	t.Cleanup(httpSrv.Close)
	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServer_PromptActionInvokesHandler(t *testing.T) {
	received := make(chan PromptMessage, 1)
	srv := NewServer(func(ctx context.Context, sess *Session, msg PromptMessage) {
		received <- msg
	})
	client := dialServer(t, srv)

	require.NoError(t, client.WriteJSON(PromptMessage{Type: ActionPrompt, PromptID: "p1", Prompt: "hello"}))

	select {
	case msg := <-received:
		assert.Equal(t, "p1", msg.PromptID)
		assert.Equal(t, "hello", msg.Prompt)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for prompt handler invocation")
	}
}

func TestServer_CancelUserInputMarksSessionCancelled(t *testing.T) {
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

	require.NoError(t, client.WriteJSON(CancelUserInputMessage{Type: ActionCancelUserInput, PromptID: "p1"}))

	require.Eventually(t, func() bool { return sess.Cancelled("p1") }, 2*time.Second, 10*time.Millisecond)
}

// fakeLookup implements SessionLookup for a single fixed session.
type fakeLookup struct{ sess *Session }

func (f fakeLookup) SessionFor(runID agent.RunID) (*Session, bool) { return f.sess, true }

func TestClientBridge_DispatchRoundTripsGenericToolCall(t *testing.T) {
	toolCalls := make(chan ToolCallRequestMessage, 1)
	srv := NewServer(nil)
	client := dialServer(t, srv)

	// Drive the client side of the round trip: read the tool-call-request,
	// reply with a tool-call-response carrying the same requestId.
	go func() {
		_, data, err := client.ReadMessage()
		if err != nil {
			return
		}
		var req ToolCallRequestMessage
		if json.Unmarshal(data, &req) == nil {
			toolCalls <- req
			_ = client.WriteJSON(ToolCallResponseMessage{
				Type:      ActionToolCallResponse,
				RequestID: req.RequestID,
				Output:    tools.ResultParts{tools.TextPart("ok")},
			})
		}
	}()

	// Wait for the server to register the session; the ServeHTTP goroutine
	// registers it synchronously before reading, so a short wait is
	// sufficient.
	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.sessions) == 1
	}, 2*time.Second, 10*time.Millisecond)

	srv.mu.Lock()
	var sess *Session
	for _, s := range srv.sessions {
		sess = s
	}
	srv.mu.Unlock()

	bridge := NewClientBridge(fakeLookup{sess: sess})
	state := session.NewAgentState(agent.ID("main"), agent.RunID("run-1"), agent.Ident("root"), "", 5)

	out, err := bridge.Dispatch(context.Background(), state, toolexec.ToolCall{
		ToolCallID: "tc1", ToolName: "run_terminal_command", Input: map[string]any{"command": "ls"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ok", out[0].Text)

	select {
	case req := <-toolCalls:
		assert.Equal(t, "run_terminal_command", req.ToolName)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tool-call-request")
	}
}

func TestClientBridge_DispatchTimesOutAsErrorResultNotGoError(t *testing.T) {
	srv := NewServer(nil)
	client := dialServer(t, srv)
	go func() {
		// Drain the tool-call-request without ever answering it, so the
		// context deadline below is what resolves the call.
		_, _, _ = client.ReadMessage()
	}()

	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.sessions) == 1
	}, 2*time.Second, 10*time.Millisecond)

	srv.mu.Lock()
	var sess *Session
	for _, s := range srv.sessions {
		sess = s
	}
	srv.mu.Unlock()

	bridge := NewClientBridge(fakeLookup{sess: sess})
	state := session.NewAgentState(agent.ID("main"), agent.RunID("run-1"), agent.Ident("root"), "", 5)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out, err := bridge.Dispatch(ctx, state, toolexec.ToolCall{ToolCallID: "tc1", ToolName: "run_terminal_command"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Value, "errorMessage")
}
