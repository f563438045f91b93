// Package sandbox implements the JS Sandbox Manager (C4): it hosts a
// `handleSteps` generator written in JavaScript inside an isolated
// interpreter and exposes a single-shot stepwise iterator over the tool
// calls and control signals it yields, per spec.md §4.4.
package sandbox

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/flowctl/agentrt/agent"
	"github.com/flowctl/agentrt/session"
	"github.com/flowctl/agentrt/tools"
)

// memoryLimitBytes is the target per-sandbox heap ceiling (spec.md §4.4:
// "fixed memory ceiling (target ~20 MB)"). goja has no hard allocation limit
// of its own, so Sandbox.Step measures the process heap's growth across each
// step with runtime.ReadMemStats and accumulates it per sandbox; once the
// running total crosses this ceiling the sandbox refuses to advance further
// and reports an *IsolationError instead. This is an approximation, not an
// isolated measurement — concurrent sandboxes or unrelated allocations on
// the same process can attribute heap growth to the wrong step — but it is
// the only signal available without a process-per-sandbox architecture.
const memoryLimitBytes = 20 * 1024 * 1024

// stepTimeout bounds a single step's wall-clock execution, guarding against
// an infinite loop inside untrusted source (spec.md §4.4's "bounded stack,
// optional interrupt handler").
const stepTimeout = 5 * time.Second

// Yield is one value a handleSteps generator produces.
type Yield struct {
	// Kind distinguishes a tool-call yield from the two control signals.
	Kind YieldKind
	Call *ToolCallYield
}

// YieldKind tags a Yield's payload.
type YieldKind string

const (
	YieldKindToolCall YieldKind = "tool_call"
	YieldKindStep     YieldKind = "STEP"
	YieldKindStepAll  YieldKind = "STEP_ALL"
)

// ToolCallYield is the `{ toolName, input, includeToolCall? }` shape a
// generator yields to request a tool invocation, per spec.md §4.4.
type ToolCallYield struct {
	ToolName            tools.Ident
	Input               map[string]any
	ExcludeFromHistory  bool
}

// StepResult is the `{ value, done }` shape spec.md §4.4's
// `sandbox.step` contract returns.
type StepResult struct {
	Value *Yield
	Done  bool
}

// StepInput is the value passed into `sandbox.step`: "the preceding tool
// result and the latest public view of agent state" (spec.md §4.4).
type StepInput struct {
	ToolResult tools.ResultParts
	PublicView PublicAgentState
	Prompt     string
	Params     map[string]any
}

// PublicAgentState is the redacted view of session.AgentState a sandbox may
// observe, per spec.md §4.4: "agentId, runId, parentId, messageHistory,
// output — not the whole AgentState".
type PublicAgentState struct {
	AgentID       agent.ID
	RunID         agent.RunID
	ParentID      agent.ID
	MessageHistory []session.Message
	Output        *session.AgentOutput
}

// RedactState builds the PublicAgentState a sandbox may observe from a full
// session.AgentState, dropping everything spec.md §4.4 does not name
// (DirectCreditsUsed, AgentContext, childRunIDs).
func RedactState(s *session.AgentState) PublicAgentState {
	return PublicAgentState{
		AgentID:        s.AgentID,
		RunID:          s.RunID,
		ParentID:       s.ParentID,
		MessageHistory: s.MessageHistory(),
		Output:         s.Output(),
	}
}

// Logger receives handleSteps log calls. A nil Logger drops them; the Agent
// Loop passes nil, so no `handlesteps-log-chunk` wire event is sent.
type Logger interface {
	Log(runID agent.RunID, level string, args []any)
}

// IsolationError reports a sandbox failure that must end the owning run,
// per spec.md §4.4's "Isolation failure" clause.
type IsolationError struct {
	AgentID agent.ID
	Reason  string
}

func (e *IsolationError) Error() string {
	return fmt.Sprintf("Error executing handleSteps for agent %s: %s", e.AgentID, e.Reason)
}

// Sandbox hosts one run's compiled handleSteps generator.
type Sandbox struct {
	runID   agent.RunID
	agentID agent.ID
	logger  Logger

	mu        sync.Mutex
	vm        *goja.Runtime
	next      goja.Callable
	done      bool
	heapUsed  uint64 // cumulative heap growth attributed to this sandbox's steps
	overLimit bool
}

// Manager owns the registry of live sandboxes keyed by runId, per spec.md
// §4.4's `getOrCreate`/`remove` contract. One Manager is shared across all
// runs on a host; each entry is only ever touched by its owning run's Agent
// Loop (C6) goroutine, except for `remove`, which may race a disposal path
// and is therefore mutex-guarded (spec.md §4.6's shared-resource policy).
type Manager struct {
	mu        sync.Mutex
	sandboxes map[agent.RunID]*Sandbox
}

// NewManager constructs an empty sandbox registry.
func NewManager() *Manager {
	return &Manager{sandboxes: make(map[agent.RunID]*Sandbox)}
}

// GetOrCreate returns the existing sandbox for runID, or compiles sourceCode
// into a fresh one. Compilation and the generator's initial invocation
// (which must not execute past its first yield) happen synchronously here.
func (m *Manager) GetOrCreate(runID agent.RunID, agentID agent.ID, sourceCode string, initialInput StepInput, logger Logger) (*Sandbox, error) {
	m.mu.Lock()
	if sb, ok := m.sandboxes[runID]; ok {
		m.mu.Unlock()
		return sb, nil
	}
	m.mu.Unlock()

	sb, err := newSandbox(runID, agentID, sourceCode, initialInput, logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sandboxes[runID] = sb
	m.mu.Unlock()
	return sb, nil
}

// Remove disposes of the sandbox for runID, if any.
func (m *Manager) Remove(runID agent.RunID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sandboxes, runID)
}

func newSandbox(runID agent.RunID, agentID agent.ID, sourceCode string, initial StepInput, logger Logger) (sb *Sandbox, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &IsolationError{AgentID: agentID, Reason: fmt.Sprintf("%v", r)}
		}
	}()

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	sb = &Sandbox{runID: runID, agentID: agentID, logger: logger, vm: vm}
	sb.installLogger()

	program, err := goja.Compile(fmt.Sprintf("handlesteps-%s", runID), wrapAsIIFE(sourceCode), true)
	if err != nil {
		return nil, &IsolationError{AgentID: agentID, Reason: "syntax error: " + err.Error()}
	}
	genFactory, err := vm.RunProgram(program)
	if err != nil {
		return nil, &IsolationError{AgentID: agentID, Reason: err.Error()}
	}
	factory, ok := goja.AssertFunction(genFactory)
	if !ok {
		return nil, &IsolationError{AgentID: agentID, Reason: "handleSteps source did not produce a generator function"}
	}

	genArg := toJSStepArgs(vm, initial)
	genValue, err := factory(goja.Undefined(), genArg)
	if err != nil {
		return nil, &IsolationError{AgentID: agentID, Reason: err.Error()}
	}
	genObj := genValue.ToObject(vm)
	next, ok := goja.AssertFunction(genObj.Get("next"))
	if !ok {
		return nil, &IsolationError{AgentID: agentID, Reason: "handleSteps did not return a generator"}
	}
	sb.next = next
	return sb, nil
}

// wrapAsIIFE wraps a bare generator-function expression/declaration so it
// evaluates to a callable value regardless of whether the source is an
// expression or a `function*` declaration followed by its name.
func wrapAsIIFE(source string) string {
	return "(" + source + ")"
}

func (sb *Sandbox) installLogger() {
	_ = sb.vm.Set("__cb_log", func(call goja.FunctionCall) goja.Value {
		if sb.logger == nil {
			return goja.Undefined()
		}
		level := "info"
		args := make([]any, 0, len(call.Arguments))
		for i, a := range call.Arguments {
			if i == 0 {
				if s, ok := a.Export().(string); ok && (s == "debug" || s == "info" || s == "warn" || s == "error") {
					level = s
					continue
				}
			}
			args = append(args, a.Export())
		}
		sb.logger.Log(sb.runID, level, args)
		return goja.Undefined()
	})
	_ = sb.vm.Set("logger", map[string]func(goja.FunctionCall) goja.Value{
		"debug": func(call goja.FunctionCall) goja.Value { return sb.logAt("debug", call) },
		"info":  func(call goja.FunctionCall) goja.Value { return sb.logAt("info", call) },
		"warn":  func(call goja.FunctionCall) goja.Value { return sb.logAt("warn", call) },
		"error": func(call goja.FunctionCall) goja.Value { return sb.logAt("error", call) },
	})
}

func (sb *Sandbox) logAt(level string, call goja.FunctionCall) goja.Value {
	if sb.logger == nil {
		return goja.Undefined()
	}
	args := make([]any, len(call.Arguments))
	for i, a := range call.Arguments {
		args[i] = a.Export()
	}
	sb.logger.Log(sb.runID, level, args)
	return goja.Undefined()
}

func toJSStepArgs(vm *goja.Runtime, in StepInput) goja.Value {
	obj := vm.NewObject()
	_ = obj.Set("agentState", map[string]any{
		"agentId":        string(in.PublicView.AgentID),
		"runId":          string(in.PublicView.RunID),
		"parentId":       string(in.PublicView.ParentID),
		"messageHistory": in.PublicView.MessageHistory,
		"output":         in.PublicView.Output,
	})
	_ = obj.Set("prompt", in.Prompt)
	_ = obj.Set("params", in.Params)
	_ = obj.Set("toolResult", in.ToolResult)
	_ = obj.Set("logger", vm.Get("logger"))
	return obj
}

// Step advances the generator once, per spec.md §4.4's
// `sandbox.step(input) → { value, done }` contract. A panic inside goja
// (stack overflow, an interrupted long-running loop) is converted into an
// *IsolationError rather than propagating as a Go panic.
func (sb *Sandbox) Step(ctx context.Context, input StepInput) (result StepResult, err error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.done {
		return StepResult{Done: true}, nil
	}
	if sb.overLimit {
		sb.done = true
		return StepResult{}, &IsolationError{AgentID: sb.agentID, Reason: "sandbox exceeded its memory ceiling"}
	}

	var before runtime.MemStats
	runtime.ReadMemStats(&before)
	defer func() {
		var after runtime.MemStats
		runtime.ReadMemStats(&after)
		if after.HeapAlloc > before.HeapAlloc {
			sb.heapUsed += after.HeapAlloc - before.HeapAlloc
		}
		if sb.heapUsed > memoryLimitBytes {
			sb.overLimit = true
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			err = &IsolationError{AgentID: sb.agentID, Reason: fmt.Sprintf("%v", r)}
		}
	}()

	timer := time.AfterFunc(stepTimeout, func() {
		sb.vm.Interrupt("handleSteps step exceeded its time budget")
	})
	defer timer.Stop()

	arg := toJSStepArgs(sb.vm, input)
	next, callErr := sb.next(goja.Undefined(), arg)
	if callErr != nil {
		sb.done = true
		return StepResult{}, &IsolationError{AgentID: sb.agentID, Reason: callErr.Error()}
	}

	obj := next.ToObject(sb.vm)
	done := obj.Get("done").ToBoolean()
	sb.done = done
	if done {
		return StepResult{Done: true}, nil
	}

	yield, err := decodeYield(sb.vm, obj.Get("value"))
	if err != nil {
		sb.done = true
		return StepResult{}, &IsolationError{AgentID: sb.agentID, Reason: err.Error()}
	}
	return StepResult{Value: yield}, nil
}

func decodeYield(vm *goja.Runtime, v goja.Value) (*Yield, error) {
	if s, ok := v.Export().(string); ok {
		switch s {
		case string(YieldKindStep):
			return &Yield{Kind: YieldKindStep}, nil
		case string(YieldKindStepAll):
			return &Yield{Kind: YieldKindStepAll}, nil
		default:
			return nil, fmt.Errorf("unrecognized string yield %q", s)
		}
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("unrecognized yield value")
	}
	name, _ := obj.Get("toolName").Export().(string)
	if name == "" {
		return nil, fmt.Errorf("tool-call yield missing toolName")
	}
	input, _ := obj.Get("input").Export().(map[string]any)
	exclude := false
	if inc := obj.Get("includeToolCall"); inc != nil && !goja.IsUndefined(inc) {
		exclude = !inc.ToBoolean()
	}
	return &Yield{
		Kind: YieldKindToolCall,
		Call: &ToolCallYield{
			ToolName:           tools.Ident(name),
			Input:              input,
			ExcludeFromHistory: exclude,
		},
	}, nil
}
