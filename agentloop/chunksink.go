package agentloop

import (
	"context"

	"github.com/flowctl/agentrt/session"
)

// ChunkSink streams one turn's incremental output as TurnRunner.RunTurn
// produces it, per spec.md §1 ("each agent streams partial output to its
// caller while tools are dispatched") and §6's normative text/reasoning
// response-chunk shapes. A nil ChunkSink disables streaming entirely; the
// turn still runs, it simply has no observer.
type ChunkSink interface {
	// TextDelta is called once per EventText delta as the model streams its
	// reply.
	TextDelta(ctx context.Context, state *session.AgentState, delta string)
	// ReasoningDelta is called once per EventReasoning delta with final set
	// to false. When the turn streamed any reasoning, one more call with an
	// empty delta and final set to true marks the end of the turn's
	// reasoning, mirroring hooks.ThinkingBlockEvent's own Final flag.
	ReasoningDelta(ctx context.Context, state *session.AgentState, delta string, final bool)
	// AssistantMessage is called at the end of a turn with the complete
	// assistant text accumulated from EventText deltas, after the turn's tool
	// calls (if any) have been dispatched. It is not called for a turn that
	// streamed no text.
	AssistantMessage(ctx context.Context, state *session.AgentState, text string)
}
