package clienttool

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"

	"github.com/flowctl/agentrt/wire"
)

// Client is a minimal reference implementation of the prompt client's
// tool-bridge half: it dials a runtime's wire.Server endpoint and answers
// every inbound tool-call-request/read-files message using a Dispatcher
// backed by the local filesystem and shell. Real integrations (editor
// plugins, CLIs) implement this same contract against their own
// CodebuffFileSystem instead of the OS.
type Client struct {
	conn       *websocket.Conn
	dispatcher *Dispatcher
}

// Dial connects to the runtime's WebSocket endpoint and returns a Client
// ready to run.
func Dial(url string, dispatcher *Dispatcher) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, dispatcher: dispatcher}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Run reads messages until the connection closes or ctx is done,
// dispatching tool-call-request and read-files actions locally and
// writing back their correlated responses. It ignores message kinds it
// does not need to answer (response-chunk, prompt-response, and so on are
// the caller's concern, read separately if needed).
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		var env wire.Envelope
		if json.Unmarshal(data, &env) != nil {
			continue
		}
		switch env.Type {
		case wire.ActionToolCallRequest:
			c.handleToolCallRequest(ctx, data)
		case wire.ActionReadFiles:
			c.handleReadFiles(ctx, data)
		}
	}
}

func (c *Client) handleToolCallRequest(ctx context.Context, data []byte) {
	var req wire.ToolCallRequestMessage
	if json.Unmarshal(data, &req) != nil {
		return
	}
	out := c.dispatcher.Dispatch(ctx, req.ToolName, req.Input)
	_ = c.conn.WriteJSON(wire.ToolCallResponseMessage{
		Type:      wire.ActionToolCallResponse,
		RequestID: req.RequestID,
		Output:    out,
	})
}

func (c *Client) handleReadFiles(ctx context.Context, data []byte) {
	var req wire.ReadFilesMessage
	if json.Unmarshal(data, &req) != nil {
		return
	}
	input := map[string]any{"paths": pathsToAny(req.FilePaths)}
	out := c.dispatcher.Dispatch(ctx, "read_files", input)

	files := map[string]*string{}
	if len(out) > 0 {
		if m, ok := out[0].Value.(map[string]*string); ok {
			files = m
		}
	}
	_ = c.conn.WriteJSON(wire.ReadFilesResponseMessage{
		Type:      wire.ActionReadFilesResponse,
		RequestID: req.RequestID,
		Files:     files,
	})
}

func pathsToAny(paths []string) []any {
	out := make([]any, len(paths))
	for i, p := range paths {
		out[i] = p
	}
	return out
}
