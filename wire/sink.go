package wire

import (
	"context"
	"fmt"

	"github.com/flowctl/agentrt/agent"
	"github.com/flowctl/agentrt/stream"
)

// RegistrySink implements stream.Sink by forwarding every stream.Event to
// the wire.Session bound to that event's run in a Registry. It is the glue
// between the internal hooks.Bus/stream.Subscriber machinery and the actual
// WebSocket connection a prompt client holds open, completing the Wire
// Protocol (C9) side of event delivery: a stream.Subscriber registered on
// the hooks.Bus calls Send here, and Send resolves the right live
// connection and writes an AgentEventMessage to it.
//
// Events for a run with no bound session (the client disconnected, or the
// run is driving a headless/batch execution with no live client) are
// dropped rather than treated as an error, since a missing session is an
// expected steady-state condition, not a transport failure.
type RegistrySink struct {
	sessions SessionLookup
}

// NewRegistrySink constructs a RegistrySink resolving sessions via lookup,
// typically a *Registry.
func NewRegistrySink(lookup SessionLookup) *RegistrySink {
	return &RegistrySink{sessions: lookup}
}

var _ stream.Sink = (*RegistrySink)(nil)

// Send resolves event's run to a bound Session and writes it as an
// AgentEventMessage. It returns nil, without writing anything, when no
// session is currently bound to the run.
func (s *RegistrySink) Send(ctx context.Context, event stream.Event) error {
	sess, ok := s.sessions.SessionFor(agent.RunID(event.RunID()))
	if !ok {
		return nil
	}
	msg := AgentEventMessage{
		Type:      ActionAgentEvent,
		EventType: string(event.Type()),
		RunID:     event.RunID(),
		SessionID: event.SessionID(),
		Payload:   event.Payload(),
	}
	if err := sess.Send(msg); err != nil {
		return fmt.Errorf("wire: send %s to session %s: %w", event.Type(), sess.ID, err)
	}
	return nil
}

// Close is a no-op: a RegistrySink does not own the underlying Sessions'
// connections, which are owned and closed by the server accepting/serving
// them.
func (s *RegistrySink) Close(context.Context) error { return nil }
