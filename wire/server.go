package wire

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/flowctl/agentrt/agent"
	"github.com/flowctl/agentrt/session"
	"github.com/flowctl/agentrt/toolexec"
	"github.com/flowctl/agentrt/tools"
)

// Session wraps one client's WebSocket connection: outbound sends, the
// request/resolver correlation map, and the per-prompt cancellation set
// described in spec.md §5's "small per-user live input set (mutex-guarded)".
type Session struct {
	ID string

	ws      *websocket.Conn
	writeMu sync.Mutex

	mu        sync.Mutex
	pending   map[string]chan json.RawMessage
	cancelled map[string]struct{}
}

// NewSession constructs a Session over an already-upgraded WebSocket
// connection.
func NewSession(id string, ws *websocket.Conn) *Session {
	return &Session{
		ID:        id,
		ws:        ws,
		pending:   make(map[string]chan json.RawMessage),
		cancelled: make(map[string]struct{}),
	}
}

// Send writes one message to the client. Safe for concurrent use: multiple
// agents (parent and spawned children) may stream chunks to the same
// session concurrently.
func (s *Session) Send(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ws.WriteJSON(v)
}

// await registers a resolver for requestID and returns the channel its
// response will be delivered on. The caller must eventually call drop,
// typically via defer, to avoid leaking the map entry on timeout.
func (s *Session) await(requestID string) chan json.RawMessage {
	ch := make(chan json.RawMessage, 1)
	s.mu.Lock()
	s.pending[requestID] = ch
	s.mu.Unlock()
	return ch
}

func (s *Session) drop(requestID string) {
	s.mu.Lock()
	delete(s.pending, requestID)
	s.mu.Unlock()
}

func (s *Session) resolve(requestID string, payload json.RawMessage) {
	s.mu.Lock()
	ch, ok := s.pending[requestID]
	if ok {
		delete(s.pending, requestID)
	}
	s.mu.Unlock()
	if ok {
		ch <- payload
	}
}

// Cancel marks promptID as canceled, per spec.md §4.9's "cancel-user-input"
// handling. Every suspend point in the Step Scheduler consults Cancelled.
func (s *Session) Cancel(promptID string) {
	s.mu.Lock()
	s.cancelled[promptID] = struct{}{}
	s.mu.Unlock()
}

// Cancelled reports whether promptID has been canceled.
func (s *Session) Cancelled(promptID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cancelled[promptID]
	return ok
}

// ClearCancelled removes promptID from the cancellation set once its run
// has torn down, so the set does not grow without bound across a
// long-lived connection.
func (s *Session) ClearCancelled(promptID string) {
	s.mu.Lock()
	delete(s.cancelled, promptID)
	s.mu.Unlock()
}

// PromptCancelChecker adapts one prompt's live cancellation flag on sess to
// scheduler.CancelChecker's Canceled() bool method (structurally: this
// package does not import scheduler, matching the module's pattern of
// lower-level packages declaring the minimal interface a higher layer needs
// rather than importing its concrete type). The Step Scheduler consults this
// between every iteration and every Stream Parser event, per spec.md §5.
type PromptCancelChecker struct {
	Session  *Session
	PromptID string
}

// Canceled reports whether the client sent cancel-user-input for this
// prompt.
func (c PromptCancelChecker) Canceled() bool {
	return c.Session.Cancelled(c.PromptID)
}

// PromptHandler processes one inbound "prompt" action. Implementations
// drive the Agent Loop/Orchestrator and eventually call sess.Send with a
// PromptResponseMessage or PromptErrorMessage.
type PromptHandler func(ctx context.Context, sess *Session, msg PromptMessage)

// Server accepts WebSocket connections and multiplexes client->server
// actions to the pending-request correlation table, the cancellation set,
// or the registered PromptHandler, per spec.md §4.9.
type Server struct {
	upgrader websocket.Upgrader
	onPrompt PromptHandler

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewServer constructs a Server that dispatches prompt actions to onPrompt.
func NewServer(onPrompt PromptHandler) *Server {
	return &Server{
		upgrader: websocket.Upgrader{},
		onPrompt: onPrompt,
		sessions: make(map[string]*Session),
	}
}

// ServeHTTP upgrades the connection and runs its read loop until the
// client disconnects or the request context is canceled.
func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sess := NewSession(uuid.NewString(), conn)

	srv.mu.Lock()
	srv.sessions[sess.ID] = sess
	srv.mu.Unlock()
	defer func() {
		srv.mu.Lock()
		delete(srv.sessions, sess.ID)
		srv.mu.Unlock()
		_ = conn.Close()
	}()

	sess.readLoop(r.Context(), srv.onPrompt)
}

// readLoop reads and routes every inbound message on the connection until
// it closes. Prompt handling runs in its own goroutine so a long-running
// prompt never blocks this connection's other inbound traffic (tool-call
// responses, cancellations) from being read.
func (s *Session) readLoop(ctx context.Context, onPrompt PromptHandler) {
	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if json.Unmarshal(data, &env) != nil {
			continue
		}
		switch env.Type {
		case ActionPrompt:
			var msg PromptMessage
			if json.Unmarshal(data, &msg) == nil && onPrompt != nil {
				go onPrompt(ctx, s, msg)
			}
		case ActionCancelUserInput:
			var msg CancelUserInputMessage
			if json.Unmarshal(data, &msg) == nil {
				s.Cancel(msg.PromptID)
			}
		case ActionReadFilesResponse, ActionToolCallResponse, ActionMCPToolData:
			var withID struct {
				RequestID string `json:"requestId"`
			}
			if json.Unmarshal(data, &withID) == nil {
				s.resolve(withID.RequestID, data)
			}
		case ActionInit:
			// Handshake only; the connection is already usable once upgraded.
		}
	}
}

// Registry binds agent.RunID to the Session driving that run's client, so
// the Client Tool Bridge (C10) can find the right connection for a
// client-delegated tool call without threading a Session through every
// layer of the Agent Loop.
type Registry struct {
	mu    sync.RWMutex
	byRun map[agent.RunID]*Session
}

// NewRegistry constructs an empty run->session binding table.
func NewRegistry() *Registry {
	return &Registry{byRun: make(map[agent.RunID]*Session)}
}

// Bind associates runID with sess for the lifetime of the run.
func (r *Registry) Bind(runID agent.RunID, sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byRun[runID] = sess
}

// Unbind removes runID's association, typically once the run completes.
func (r *Registry) Unbind(runID agent.RunID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byRun, runID)
}

// SessionFor resolves the Session bound to runID.
func (r *Registry) SessionFor(runID agent.RunID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byRun[runID]
	return s, ok
}

// SessionLookup is the collaborator a ClientBridge needs to find the
// connection serving a given run. *Registry satisfies it.
type SessionLookup interface {
	SessionFor(runID agent.RunID) (*Session, bool)
}

const readFilesToolName = "read_files"

// ClientBridge implements toolexec.ClientBridge (C10's server side): it
// turns a client-delegated tool call into a correlated wire round trip and
// blocks until the client answers or ctx is canceled/times out.
type ClientBridge struct {
	sessions SessionLookup
	newID    func() string
}

// NewClientBridge constructs a ClientBridge resolving sessions via lookup.
func NewClientBridge(lookup SessionLookup) *ClientBridge {
	return &ClientBridge{sessions: lookup, newID: func() string { return uuid.NewString() }}
}

var _ toolexec.ClientBridge = (*ClientBridge)(nil)

// Dispatch sends the tool call to the client bound to state.RunID and
// awaits its response. read_files uses the dedicated read-files/
// read-files-response round trip per spec.md §6; every other
// client-delegated tool uses the generic tool-call-request/tool-call-response
// pair. A context deadline (the Executor applies spec.md §5's 30s default,
// or none when timeout_seconds disables it) resolves as an error-shaped
// result part rather than a Go error, per §4.9's "Timeouts ... resolve with
// an error-shaped result part."
func (b *ClientBridge) Dispatch(ctx context.Context, state *session.AgentState, call toolexec.ToolCall) (tools.ResultParts, error) {
	sess, ok := b.sessions.SessionFor(state.RunID)
	if !ok {
		return nil, fmt.Errorf("no client session bound for run %s", state.RunID)
	}

	requestID := b.newID()
	ch := sess.await(requestID)
	defer sess.drop(requestID)

	if string(call.ToolName) == readFilesToolName {
		return b.dispatchReadFiles(ctx, sess, requestID, ch, call)
	}
	return b.dispatchToolCall(ctx, sess, requestID, ch, state, call)
}

func (b *ClientBridge) dispatchToolCall(ctx context.Context, sess *Session, requestID string, ch chan json.RawMessage, state *session.AgentState, call toolexec.ToolCall) (tools.ResultParts, error) {
	msg := ToolCallRequestMessage{
		Type:        ActionToolCallRequest,
		RequestID:   requestID,
		UserInputID: string(state.RunID),
		ToolName:    string(call.ToolName),
		Input:       call.Input,
	}
	if err := sess.Send(msg); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return tools.ResultParts{tools.ErrorPart("client tool call timed out or was canceled")}, nil
	case raw := <-ch:
		var resp ToolCallResponseMessage
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, err
		}
		return resp.Output, nil
	}
}

func (b *ClientBridge) dispatchReadFiles(ctx context.Context, sess *Session, requestID string, ch chan json.RawMessage, call toolexec.ToolCall) (tools.ResultParts, error) {
	paths, _ := call.Input["paths"].([]any)
	filePaths := make([]string, 0, len(paths))
	for _, p := range paths {
		if s, ok := p.(string); ok {
			filePaths = append(filePaths, s)
		}
	}
	if err := sess.Send(ReadFilesMessage{Type: ActionReadFiles, RequestID: requestID, FilePaths: filePaths}); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return tools.ResultParts{tools.ErrorPart("read_files timed out or was canceled")}, nil
	case raw := <-ch:
		var resp ReadFilesResponseMessage
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, err
		}
		return tools.ResultParts{tools.JSONPart(resp.Files)}, nil
	}
}

// awaitWithTimeout is a convenience for collaborators (outside the
// ClientBridge tool-call path) that need a bounded wait on a correlated
// response, such as an MCP tool-data request.
func awaitWithTimeout(ctx context.Context, sess *Session, requestID string, timeout time.Duration) (json.RawMessage, error) {
	ch := sess.await(requestID)
	defer sess.drop(requestID)

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case <-waitCtx.Done():
		return nil, waitCtx.Err()
	case raw := <-ch:
		return raw, nil
	}
}
