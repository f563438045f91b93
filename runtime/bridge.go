package runtime

import (
	"context"
	"encoding/json"

	"github.com/flowctl/agentrt/agent"
	"github.com/flowctl/agentrt/agentloop"
	"github.com/flowctl/agentrt/hooks"
	"github.com/flowctl/agentrt/orchestrator"
	"github.com/flowctl/agentrt/session"
	"github.com/flowctl/agentrt/toolexec"
	"github.com/flowctl/agentrt/tools"
	"github.com/flowctl/agentrt/wire"
)

// wireBridge is the one collaborator that turns every other component's
// internal events into this run's two outward-facing channels: the
// hooks.Bus (memory, metrics, the existing stream.Subscriber pipeline) and
// the live wire.Session the prompt arrived on. It implements
// agentloop.ChunkSink, toolexec.Sink, and orchestrator.ChunkSink, since all
// three just describe "something happened to this agent" from a different
// layer's vantage point.
//
// A nil sess (no live wire client, e.g. a batch/test caller of
// Runtime.RunPrompt) makes every wire.Session.Send call a no-op; hooks
// publication still happens unconditionally.
type wireBridge struct {
	bus      hooks.Bus
	sess     *wire.Session
	promptID string
}

var (
	_ agentloop.ChunkSink    = (*wireBridge)(nil)
	_ toolexec.Sink          = (*wireBridge)(nil)
	_ orchestrator.ChunkSink = (*wireBridge)(nil)
)

func (b *wireBridge) send(v any) {
	if b.sess == nil {
		return
	}
	_ = b.sess.Send(v)
}

// TextDelta implements agentloop.ChunkSink, forwarding one EventText delta as
// a "text" response-chunk, per spec.md §6.
func (b *wireBridge) TextDelta(ctx context.Context, state *session.AgentState, delta string) {
	b.send(wire.ResponseChunkMessage{
		Type:        wire.ActionResponseChunk,
		UserInputID: b.promptID,
		Chunk: wire.Chunk{
			Type:    wire.ChunkText,
			AgentID: string(state.AgentID),
			Text:    delta,
		},
	})
}

// ReasoningDelta implements agentloop.ChunkSink, forwarding one EventReasoning
// delta as a "reasoning" response-chunk and publishing a ThinkingBlockEvent
// on the bus so memory/telemetry subscribers see it too.
func (b *wireBridge) ReasoningDelta(ctx context.Context, state *session.AgentState, delta string, final bool) {
	b.send(wire.ResponseChunkMessage{
		Type:        wire.ActionResponseChunk,
		UserInputID: b.promptID,
		Chunk: wire.Chunk{
			Type:    wire.ChunkReasoning,
			AgentID: string(state.AgentID),
			Text:    delta,
		},
	})
	_ = b.bus.Publish(ctx, hooks.NewThinkingBlockEvent(
		string(state.RunID), agent.Ident(state.AgentID), "", delta, "", nil, 0, final,
	))
}

// AssistantMessage implements agentloop.ChunkSink, publishing the turn's
// complete assistant text as an AssistantMessageEvent on the bus. The wire
// protocol has no dedicated "assistant message" chunk type of its own — the
// text was already streamed delta-by-delta via TextDelta — so this only
// notifies the bus.
func (b *wireBridge) AssistantMessage(ctx context.Context, state *session.AgentState, text string) {
	_ = b.bus.Publish(ctx, hooks.NewAssistantMessageEvent(
		string(state.RunID), agent.Ident(state.AgentID), "", text, nil,
	))
}

// ToolCallStarted implements toolexec.Sink: emits a "tool_call" response-chunk
// and publishes a ToolCallScheduledEvent, per spec.md §6 and §4.3's "Side
// effects".
func (b *wireBridge) ToolCallStarted(ctx context.Context, evt toolexec.Event) {
	b.send(wire.ResponseChunkMessage{
		Type:        wire.ActionResponseChunk,
		UserInputID: b.promptID,
		Chunk: wire.Chunk{
			Type:       wire.ChunkToolCall,
			AgentID:    string(evt.AgentID),
			ToolCallID: evt.ToolCallID,
			ToolName:   string(evt.ToolName),
			Input:      evt.Input,
		},
	})

	payload, _ := json.Marshal(evt.Input)
	_ = b.bus.Publish(ctx, hooks.NewToolCallScheduledEvent(
		string(evt.RunID), agent.Ident(evt.AgentID), "", evt.ToolName, evt.ToolCallID,
		payload, "", "", 0,
	))
}

// ToolCallFinished implements toolexec.Sink: emits a "tool_result"
// response-chunk and publishes a ToolResultReceivedEvent.
func (b *wireBridge) ToolCallFinished(ctx context.Context, evt toolexec.Event) {
	b.send(wire.ResponseChunkMessage{
		Type:        wire.ActionResponseChunk,
		UserInputID: b.promptID,
		Chunk: wire.Chunk{
			Type:       wire.ChunkToolResult,
			AgentID:    string(evt.AgentID),
			ToolCallID: evt.ToolCallID,
			ToolName:   string(evt.ToolName),
			Output:     evt.Output,
		},
	})

	_ = b.bus.Publish(ctx, hooks.NewToolResultReceivedEvent(
		string(evt.RunID), agent.Ident(evt.AgentID), "", evt.ToolName, evt.ToolCallID, "",
		resultValue(evt.Output), "", nil, evt.Duration, nil, evt.Err,
	))
}

// SubagentStart implements orchestrator.ChunkSink: emits a "subagent_start"
// chunk tagged with parentAgentId, per spec.md §8 scenario 6.
func (b *wireBridge) SubagentStart(ctx context.Context, child *session.AgentState, parentID agent.ID) {
	b.send(wire.ResponseChunkMessage{
		Type:        wire.ActionResponseChunk,
		UserInputID: b.promptID,
		Chunk: wire.Chunk{
			Type:          wire.ChunkSubagentStart,
			AgentID:       string(child.AgentID),
			ParentAgentID: string(parentID),
			AgentType:     string(child.AgentType),
		},
	})
}

// SubagentFinish implements orchestrator.ChunkSink: emits a "subagent_finish"
// chunk tagged with parentAgentId. err is the child run's terminal error, if
// any; the chunk itself carries no error detail (the parent's own tool-result
// already surfaces a failed child's error text).
func (b *wireBridge) SubagentFinish(ctx context.Context, child *session.AgentState, parentID agent.ID, out session.AgentOutput, err error) {
	b.send(wire.ResponseChunkMessage{
		Type:        wire.ActionResponseChunk,
		UserInputID: b.promptID,
		Chunk: wire.Chunk{
			Type:          wire.ChunkSubagentFinish,
			AgentID:       string(child.AgentID),
			ParentAgentID: string(parentID),
			AgentType:     string(child.AgentType),
		},
	})
}

func resultValue(parts tools.ResultParts) any {
	if len(parts) == 0 {
		return nil
	}
	return parts
}
