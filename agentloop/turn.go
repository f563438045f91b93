package agentloop

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"

	"github.com/flowctl/agentrt/model"
	"github.com/flowctl/agentrt/scheduler"
	"github.com/flowctl/agentrt/session"
	"github.com/flowctl/agentrt/streamparse"
	"github.com/flowctl/agentrt/toolexec"
	"github.com/flowctl/agentrt/tools"
)

func newTurnCallID() string { return uuid.NewString() }

// RequestBuilder assembles the provider Request for one LLM turn from the
// agent's current message history, per spec.md §4.6 "assemble the request
// from the current message history, the template's systemPrompt, and the
// declared tool set".
type RequestBuilder interface {
	BuildRequest(state *session.AgentState, template *session.AgentTemplate, registry *tools.Registry) *model.Request
}

// TurnRunner drives one complete LLM turn: it streams a Request through
// model.Client, feeds every chunk through a fresh streamparse.Parser, and
// dispatches each resulting tool call through the Tool Executor (C3),
// implementing scheduler.LLMTurnRunner for the Step Scheduler (C5).
type TurnRunner struct {
	Client     model.Client
	Registry   *tools.Registry
	Executor   *toolexec.Executor
	State      *session.AgentState
	Template   *session.AgentTemplate
	Builder    RequestBuilder
	StepPrompt *StepPromptInjector // nil disables stepPrompt refresh
	ChunkSink  ChunkSink           // nil disables streaming
	Cancel     scheduler.CancelChecker
}

var _ scheduler.LLMTurnRunner = (*TurnRunner)(nil)

// RunTurn implements scheduler.LLMTurnRunner. Per spec.md §4.5 step 3, chunk
// consumption for this turn stops as soon as a dispatched tool is marked
// EndsStep (end_turn and any template-declared step-ending custom tool).
func (r *TurnRunner) RunTurn(ctx context.Context) (scheduler.TurnResult, error) {
	if r.StepPrompt != nil {
		r.StepPrompt.Inject(r.State, r.Template)
	}

	req := r.Builder.BuildRequest(r.State, r.Template, r.Registry)
	req.Stream = true

	stream, err := r.Client.Stream(ctx, req)
	if err != nil {
		return scheduler.TurnResult{}, err
	}
	defer stream.Close()

	parser := streamparse.New(r.Registry)
	var result scheduler.TurnResult
	var assistantText string
	var sawReasoning bool

	for {
		if r.Cancel != nil && r.Cancel.Canceled() {
			return result, scheduler.ErrCanceled
		}

		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, err
		}

		sc, ok := toStreamparseChunk(chunk)
		if !ok {
			continue
		}
		events := parser.Feed(sc)
		for _, ev := range events {
			if r.Cancel != nil && r.Cancel.Canceled() {
				return result, scheduler.ErrCanceled
			}
			switch ev.Type {
			case streamparse.EventText:
				assistantText += ev.Delta
				if r.ChunkSink != nil {
					r.ChunkSink.TextDelta(ctx, r.State, ev.Delta)
				}
			case streamparse.EventReasoning:
				sawReasoning = true
				if r.ChunkSink != nil {
					r.ChunkSink.ReasoningDelta(ctx, r.State, ev.Delta, false)
				}
			case streamparse.EventToolCall:
				result.ToolCallCount++
				out := r.Executor.Execute(ctx, r.State, toolexec.ToolCall{
					ToolCallID: newTurnCallID(),
					ToolName:   ev.Call.ToolName,
					Input:      ev.Call.Input,
				})
				_ = out
				result.ToolResultCount++
				if ev.Call.ToolName == tools.EndTurn {
					result.SawEndTurn = true
				}
				if spec, ok := r.Registry.Resolve(ev.Call.ToolName); ok && spec.EndsStep {
					r.finishTurn(ctx, assistantText, sawReasoning)
					return result, nil
				}
			case streamparse.EventToolCallError:
				result.ToolCallCount++
				result.ToolResultCount++
				r.State.AppendMessage(session.Message{
					Role: session.RoleTool,
					ToolResult: &session.ToolResultContent{
						Output: tools.ResultParts{tools.ErrorPart(ev.Reason)},
					},
				})
			}
		}
	}

	r.finishTurn(ctx, assistantText, sawReasoning)
	return result, nil
}

// finishTurn appends the turn's accumulated assistant text to history and
// notifies ChunkSink that the turn is done: a final reasoning-block marker
// (when any reasoning was streamed) and the complete assistant message.
func (r *TurnRunner) finishTurn(ctx context.Context, assistantText string, sawReasoning bool) {
	if assistantText != "" {
		r.State.AppendMessage(session.Message{Role: session.RoleAssistant, Text: assistantText})
	}
	if r.ChunkSink == nil {
		return
	}
	if sawReasoning {
		r.ChunkSink.ReasoningDelta(ctx, r.State, "", true)
	}
	if assistantText != "" {
		r.ChunkSink.AssistantMessage(ctx, r.State, assistantText)
	}
}

func toStreamparseChunk(c model.Chunk) (streamparse.Chunk, bool) {
	switch c.Type {
	case model.ChunkTypeText:
		text := ""
		if c.Message != nil {
			for _, p := range c.Message.Parts {
				if tp, ok := p.(model.TextPart); ok {
					text += tp.Text
				}
			}
		}
		return streamparse.Chunk{Kind: streamparse.ChunkKindText, Text: text}, true
	case model.ChunkTypeThinking:
		return streamparse.Chunk{Kind: streamparse.ChunkKindReasoning, Text: c.Thinking}, true
	case model.ChunkTypeStop:
		return streamparse.Chunk{}, false
	default:
		// tool_call / tool_call_delta / usage chunks carry no stream-parsed
		// text; the provider already emits tool calls structurally in these
		// chunk types, but this runtime's wire grammar expects them inline as
		// <codebuff_tool_call> text per spec.md §4.2, so only text/thinking
		// chunks are fed to the parser.
		return streamparse.Chunk{}, false
	}
}
