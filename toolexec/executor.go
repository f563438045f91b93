// Package toolexec implements the Tool Executor (C3): it takes one
// validated tool call and the current agent state and runs spec.md §4.3's
// eight dispatch rules, in order, against whichever collaborator owns that
// rule (a built-in handler, the Orchestrator, the Client Tool Bridge, or a
// host override).
package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowctl/agentrt/agent"
	"github.com/flowctl/agentrt/session"
	"github.com/flowctl/agentrt/toolerrors"
	"github.com/flowctl/agentrt/tools"
)

const defaultClientToolTimeout = 30 * time.Second

// ToolCall is one invocation to dispatch, already structurally validated by
// the Tool Registry (C1) or the Stream Parser (C2).
type ToolCall struct {
	ToolCallID string
	ToolName   tools.Ident
	Input      map[string]any

	// ExcludeFromHistory mirrors spec.md §4.3's "excludeToolFromMessageHistory"
	// flag a programmatic (handleSteps-yielded) call may set.
	ExcludeFromHistory bool
}

// Orchestrator delegates spawn_agents/spawn_agent_inline calls to the
// Orchestrator (C7), per spec.md §4.3 dispatch rule 4.
type Orchestrator interface {
	SpawnAgents(ctx context.Context, parent *session.AgentState, call ToolCall) (tools.ResultParts, error)
	SpawnAgentInline(ctx context.Context, parent *session.AgentState, call ToolCall) (tools.ResultParts, error)
}

// ClientBridge delegates a custom tool call to the Client Tool Bridge (C10),
// per spec.md §4.3 dispatch rule 7 and §4.9's correlation/timeout contract.
type ClientBridge interface {
	Dispatch(ctx context.Context, state *session.AgentState, call ToolCall) (tools.ResultParts, error)
}

// HostOverride is a host-registered handler that preempts a tool's built-in
// or custom dispatch, per spec.md §4.3 dispatch rule 5.
type HostOverride func(ctx tools.Context, call ToolCall) (tools.ResultParts, error)

// Sink receives tool_call/tool_result stream events as the Executor
// dispatches and completes calls, per spec.md §4.3's "Side effects".
type Sink interface {
	ToolCallStarted(ctx context.Context, evt Event)
	ToolCallFinished(ctx context.Context, evt Event)
}

// Event is the payload delivered to a Sink.
type Event struct {
	RunID         agent.RunID
	AgentID       agent.ID
	ParentAgentID agent.ID
	ToolCallID    string
	ToolName      tools.Ident
	Input         map[string]any
	Output        tools.ResultParts
	Err           *toolerrors.ToolError
	// Duration is populated only on ToolCallFinished: how long dispatch took.
	Duration time.Duration
}

// Executor dispatches tool calls per spec.md §4.3.
type Executor struct {
	registry     *tools.Registry
	overrides    map[tools.Ident]HostOverride
	orchestrator Orchestrator
	bridge       ClientBridge
	caps         tools.Capabilities
	tree         *agent.Tree
	sink         Sink
	templates    TemplateLookup
	outputSchemas *outputSchemaCache
}

// Option configures an Executor at construction time.
type Option func(*Executor)

// WithOverride registers a host override for name, per dispatch rule 5.
func WithOverride(name tools.Ident, fn HostOverride) Option {
	return func(e *Executor) { e.overrides[name] = fn }
}

// WithOrchestrator wires the Orchestrator (C7) collaborator.
func WithOrchestrator(o Orchestrator) Option { return func(e *Executor) { e.orchestrator = o } }

// WithClientBridge wires the Client Tool Bridge (C10) collaborator.
func WithClientBridge(b ClientBridge) Option { return func(e *Executor) { e.bridge = b } }

// WithSink wires a stream event sink.
func WithSink(s Sink) Option { return func(e *Executor) { e.sink = s } }

// New constructs an Executor bound to registry and the run's injected
// capabilities and agent tree.
func New(registry *tools.Registry, caps tools.Capabilities, tree *agent.Tree, opts ...Option) *Executor {
	e := &Executor{
		registry:      registry,
		overrides:     make(map[tools.Ident]HostOverride),
		caps:          caps,
		tree:          tree,
		outputSchemas: newOutputSchemaCache(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one tool call against state and returns its result parts.
// It returns no Go error: every failure, including a handler error or a
// missing orchestrator or client bridge, becomes a tool-result error part.
func (e *Executor) Execute(ctx context.Context, state *session.AgentState, call ToolCall) tools.ResultParts {
	spec, known := e.registry.Resolve(call.ToolName)

	if !call.ExcludeFromHistory {
		state.AppendMessage(session.Message{Role: session.RoleAssistant, Text: renderCall(call)})
	}

	parentTag := e.tree.NearestAncestorTag(state.AgentID)
	e.emitStart(ctx, state, call, parentTag)

	started := time.Now()
	out, toolErr := e.dispatch(ctx, state, call, spec, known)
	duration := time.Since(started)

	if toolErr != nil {
		out = tools.ResultParts{tools.ErrorPart(toolErr.Message)}
	}
	e.emitFinish(ctx, state, call, parentTag, out, toolErr, duration)

	if !isSilentRule(call.ToolName, spec) {
		state.AppendMessage(session.Message{
			Role: session.RoleTool,
			ToolResult: &session.ToolResultContent{
				ToolCallID: call.ToolCallID,
				ToolName:   call.ToolName,
				Output:     out,
			},
		})
	}
	return out
}

// dispatch applies spec.md §4.3's eight rules, first match wins.
func (e *Executor) dispatch(ctx context.Context, state *session.AgentState, call ToolCall, spec *tools.ToolSpec, known bool) (tools.ResultParts, *toolerrors.ToolError) {
	switch {
	case call.ToolName == tools.EndTurn:
		// Rule 1: no-op result; signals the loop via the caller checking
		// the Stream Parser's stop condition, not this result.
		return tools.ResultParts{}, nil

	case call.ToolName == tools.SetOutput:
		return e.handleSetOutput(state, call)

	case call.ToolName == tools.SetMessages:
		return e.handleSetMessages(state, call)

	case known && spec.IsAgentSpawn:
		if e.orchestrator == nil {
			return nil, toolerrors.New("no orchestrator configured for agent-spawn tool")
		}
		var out tools.ResultParts
		var err error
		if call.ToolName == tools.SpawnAgentInline {
			out, err = e.orchestrator.SpawnAgentInline(ctx, state, call)
		} else {
			out, err = e.orchestrator.SpawnAgents(ctx, state, call)
		}
		if err != nil {
			return nil, toolerrors.FromError(err)
		}
		return out, nil

	case known && e.overrides[call.ToolName] != nil:
		out, err := e.overrides[call.ToolName](e.toolContext(ctx, state), call)
		if err != nil {
			return nil, toolerrors.FromError(err)
		}
		return out, nil

	case known && spec.Handler != nil:
		out, err := spec.Handler(e.toolContext(ctx, state), call.Input)
		if err != nil {
			return nil, toolerrors.FromError(err)
		}
		return out, nil

	case known && spec.IsClientDelegated:
		return e.dispatchClientDelegated(ctx, state, call)

	default:
		return nil, toolerrors.WithRetryHint(
			toolerrors.Errorf("Tool %s not found", call.ToolName),
			toolerrors.RetryReasonToolUnavailable,
		)
	}
}

// handleSetOutput implements the set_output tool per spec.md §4.3 rule 2:
// validate call.Input against the agent's declared outputSchema (if any),
// then shallow-merge it into the existing structured output's top-level
// keys rather than replacing the output outright.
func (e *Executor) handleSetOutput(state *session.AgentState, call ToolCall) (tools.ResultParts, *toolerrors.ToolError) {
	if e.templates != nil {
		if template, ok := e.templates.Template(state.AgentType); ok {
			if toolErr := e.validateOutputSchema(state.AgentType, template, call.Input); toolErr != nil {
				return nil, toolErr
			}
		}
	}

	value := make(map[string]any, len(call.Input))
	if existing := state.Output(); existing != nil && existing.Type == session.AgentOutputStructured {
		if prior, ok := existing.Value.(map[string]any); ok {
			for k, v := range prior {
				value[k] = v
			}
		}
	}
	for k, v := range call.Input {
		value[k] = v
	}
	state.SetOutput(&session.AgentOutput{Type: session.AgentOutputStructured, Value: value})
	return tools.ResultParts{}, nil
}

func (e *Executor) handleSetMessages(state *session.AgentState, call ToolCall) (tools.ResultParts, *toolerrors.ToolError) {
	raw, ok := call.Input["messages"].([]any)
	if !ok {
		return nil, toolerrors.New("set_messages requires a messages array")
	}
	messages := make([]session.Message, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role, _ := m["role"].(string)
		text, _ := m["text"].(string)
		messages = append(messages, session.Message{Role: session.Role(role), Text: text})
	}
	state.ReplaceMessageHistory(messages)
	return tools.ResultParts{}, nil
}

func (e *Executor) dispatchClientDelegated(ctx context.Context, state *session.AgentState, call ToolCall) (tools.ResultParts, *toolerrors.ToolError) {
	if e.bridge == nil {
		return nil, toolerrors.New("no client tool bridge configured")
	}
	timeout := defaultClientToolTimeout
	if raw, ok := call.Input["timeout_seconds"]; ok {
		if secs, ok := toFloat(raw); ok {
			if secs < 0 {
				timeout = 0
			} else {
				timeout = time.Duration(secs * float64(time.Second))
			}
		}
	}
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	out, err := e.bridge.Dispatch(callCtx, state, call)
	if err != nil {
		return nil, toolerrors.FromError(err)
	}
	return out, nil
}

func (e *Executor) toolContext(ctx context.Context, state *session.AgentState) tools.Context {
	return tools.Context{Context: ctx, RunID: string(state.RunID), AgentID: string(state.AgentID), Caps: e.caps}
}

func (e *Executor) emitStart(ctx context.Context, state *session.AgentState, call ToolCall, parentTag agent.ID) {
	if e.sink == nil {
		return
	}
	e.sink.ToolCallStarted(ctx, Event{
		RunID: state.RunID, AgentID: state.AgentID, ParentAgentID: parentTag,
		ToolCallID: call.ToolCallID, ToolName: call.ToolName, Input: call.Input,
	})
}

func (e *Executor) emitFinish(ctx context.Context, state *session.AgentState, call ToolCall, parentTag agent.ID, out tools.ResultParts, toolErr *toolerrors.ToolError, duration time.Duration) {
	if e.sink == nil {
		return
	}
	e.sink.ToolCallFinished(ctx, Event{
		RunID: state.RunID, AgentID: state.AgentID, ParentAgentID: parentTag,
		ToolCallID: call.ToolCallID, ToolName: call.ToolName, Input: call.Input,
		Output: out, Err: toolErr, Duration: duration,
	})
}

// isSilentRule reports whether call is one of the three dispatch-rule
// silent tools (end_turn/set_output/set_messages) even before the registry
// has resolved it, since those three are always silent regardless of how a
// deployment configures its registry.
func isSilentRule(name tools.Ident, spec *tools.ToolSpec) bool {
	if name == tools.EndTurn || name == tools.SetOutput || name == tools.SetMessages {
		return true
	}
	return isSilentResult(spec)
}

func isSilentResult(spec *tools.ToolSpec) bool {
	return spec != nil && spec.SilentResult
}

// renderCall reproduces the <codebuff_tool_call> envelope text for the
// assistant-message side of spec.md §4.3's history invariant, so a
// programmatically yielded (handleSteps) call reads identically in history
// to one the model itself emitted.
func renderCall(call ToolCall) string {
	body := make(map[string]any, len(call.Input)+1)
	for k, v := range call.Input {
		body[k] = v
	}
	body["cb_tool_name"] = string(call.ToolName)
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Sprintf("<codebuff_tool_call>{\"cb_tool_name\":%q}</codebuff_tool_call>", call.ToolName)
	}
	return "<codebuff_tool_call>" + string(raw) + "</codebuff_tool_call>"
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
