// Package scheduler implements the Step Scheduler (C5): the per-run state
// machine that interleaves a programmatic generator (native or sandboxed
// handleSteps) with LLM turns, per spec.md §4.5.
package scheduler

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/flowctl/agentrt/session"
	"github.com/flowctl/agentrt/tools"
)

// newCallID synthesizes a tool-call id for a programmatically yielded call,
// which (unlike a model-emitted call) has no id of its own.
func newCallID() string {
	return uuid.NewString()
}

// maxOutputSchemaRestarts caps the end-of-run output-schema retry loop,
// per spec.md §4.5's "Hard cap restarts at 3 to prevent infinite retries"
// and §7's "only escalates to an error AgentOutput after three restarts".
const maxOutputSchemaRestarts = 3

// State names the Step Scheduler's per-run position, per spec.md §4.5.
type State string

const (
	StateIdle                 State = "idle"
	StateProgrammatic         State = "programmatic"
	StateLLM                  State = "llm"
	StateAwaitingProgrammatic State = "awaiting_programmatic"
	StateDone                 State = "done"
)

// YieldKind tags a Generator's yielded value.
type YieldKind string

const (
	YieldToolCall YieldKind = "tool_call"
	YieldStep     YieldKind = "STEP"
	YieldStepAll  YieldKind = "STEP_ALL"
)

// Yield is one value produced by a programmatic generator step, decoupled
// from the JS Sandbox Manager's own Yield type so this package can drive
// either a sandboxed or a trusted native generator through the same
// interface (spec.md §3: handleSteps "may be a native generator function
// (trusted, in-process) or a string of source code to run in the sandbox").
type Yield struct {
	Kind               YieldKind
	ToolName           tools.Ident
	Input              map[string]any
	ExcludeFromHistory bool
}

// Generator advances a handleSteps program by one yield. Next receives the
// result of the previously dispatched tool call (nil for the first call)
// and reports either the next Yield or that the generator returned.
type Generator interface {
	Next(ctx context.Context, priorResult tools.ResultParts) (yield *Yield, done bool, err error)
}

// ToolCall is the minimal shape the scheduler needs to ask a ToolExecutor to
// dispatch a programmatic (generator-yielded) call, mirroring
// toolexec.ToolCall's fields without importing that package.
type ToolCall struct {
	ToolCallID         string
	ToolName           tools.Ident
	Input              map[string]any
	ExcludeFromHistory bool
}

// ToolExecutor dispatches one tool call and returns its result, per C3's
// Executor.Execute contract. Declared as an interface here so this package
// does not import toolexec's concrete Executor type.
type ToolExecutor interface {
	Execute(ctx context.Context, state *session.AgentState, call ToolCall) tools.ResultParts
}

// TurnResult summarizes one completed LLM turn, aggregated by the Agent
// Loop (C6) while feeding Stream Parser events through the Tool Executor,
// per spec.md §4.5 step 3.
type TurnResult struct {
	ToolCallCount   int
	ToolResultCount int
	// SawEndTurn is true when the turn executed the end_turn tool.
	SawEndTurn bool
}

// LLMTurnRunner runs exactly one LLM turn against the current message
// history and returns its aggregate effect.
type LLMTurnRunner interface {
	RunTurn(ctx context.Context) (TurnResult, error)
}

// CancelChecker reports whether the run's prompt has been canceled, per
// spec.md §5's per-user "live input" set.
type CancelChecker interface {
	Canceled() bool
}

// OutputGate implements spec.md §4.5's end-of-run output-schema check: when
// the template declares an outputSchema and the agent never called
// set_output, inject a reminder and let the scheduler resume.
type OutputGate interface {
	// NeedsOutput reports whether the template declares outputSchema and
	// state.Output() is still nil.
	NeedsOutput(state *session.AgentState) bool
	// InjectReminder appends the system-reminder message instructing the
	// agent to call set_output.
	InjectReminder(state *session.AgentState)
}

// ErrCanceled is returned by Run when cancellation is observed.
var ErrCanceled = errors.New("scheduler: run cancelled by user")

// Outcome reports how Run terminated.
type Outcome struct {
	State    State
	Canceled bool
}

// RunDeps bundles one run's collaborators.
type RunDeps struct {
	State      *session.AgentState
	Generator  Generator // nil when the template has no handleSteps
	Executor   ToolExecutor
	TurnRunner LLMTurnRunner
	Cancel     CancelChecker // nil means never canceled
	OutputGate OutputGate    // nil means no outputSchema enforcement
}

// Scheduler drives one run's outer loop to completion.
type Scheduler struct {
	stepAll bool
}

// New constructs a Scheduler for one run. A Scheduler is not safe for
// concurrent use by more than one goroutine, matching spec.md §5's
// single-threaded-cooperative-per-run model.
func New() *Scheduler {
	return &Scheduler{}
}

// Run executes the outer loop described by spec.md §4.5's five numbered
// transitions until the run reaches Done.
func (s *Scheduler) Run(ctx context.Context, deps RunDeps) (Outcome, error) {
	restarts := 0
	stepsComplete := true // the generator has never run; treat as "complete" so it starts immediately

	var lastToolResult tools.ResultParts

	for {
		if deps.Cancel != nil && deps.Cancel.Canceled() {
			return Outcome{State: StateDone, Canceled: true}, ErrCanceled
		}

		progEndTurn, result, err := s.runProgrammaticStep(ctx, deps, stepsComplete, lastToolResult)
		if err != nil {
			return Outcome{State: StateDone}, err
		}
		lastToolResult = result

		if progEndTurn {
			break
		}

		if deps.Cancel != nil && deps.Cancel.Canceled() {
			return Outcome{State: StateDone, Canceled: true}, ErrCanceled
		}

		if deps.State.StepsRemaining() == 0 {
			// Step budget exhausted: force endTurn without starting another
			// LLM turn (spec.md §4.5 "Step counter").
			break
		}

		turn, err := deps.TurnRunner.RunTurn(ctx)
		if err != nil {
			return Outcome{State: StateDone}, err
		}
		deps.State.DecrementStep()

		shouldEndTurn := (turn.ToolCallCount == 0 && turn.ToolResultCount == 0) || turn.SawEndTurn
		stepsComplete = shouldEndTurn
		// With a generator, go round again so runProgrammaticStep can resume
		// it with stepsComplete; the run then ends on its end_turn or return.
		if shouldEndTurn && deps.Generator == nil {
			break
		}
	}

	if deps.OutputGate != nil {
		for restarts < maxOutputSchemaRestarts && deps.OutputGate.NeedsOutput(deps.State) {
			deps.OutputGate.InjectReminder(deps.State)
			restarts++

			if deps.State.StepsRemaining() == 0 {
				break
			}
			turn, err := deps.TurnRunner.RunTurn(ctx)
			if err != nil {
				return Outcome{State: StateDone}, err
			}
			deps.State.DecrementStep()
			_ = turn
		}
	}

	return Outcome{State: StateDone}, nil
}

// runProgrammaticStep implements spec.md §4.5 transition 1: advance the
// generator (respecting a pending STEP_ALL) and execute any yielded tool
// calls synchronously, one at a time, before fetching the next yield.
func (s *Scheduler) runProgrammaticStep(ctx context.Context, deps RunDeps, stepsComplete bool, priorResult tools.ResultParts) (endTurn bool, lastResult tools.ResultParts, err error) {
	if deps.Generator == nil {
		return false, priorResult, nil
	}

	if s.stepAll && !stepsComplete {
		// A prior STEP_ALL is active and the LLM has not yet ended its
		// step: do not advance the generator.
		return false, priorResult, nil
	}
	if s.stepAll && stepsComplete {
		s.stepAll = false
	}

	result := priorResult
	for {
		yield, done, err := deps.Generator.Next(ctx, result)
		if err != nil {
			return false, result, err
		}
		if done {
			return true, result, nil
		}

		switch yield.Kind {
		case YieldStep:
			return false, result, nil
		case YieldStepAll:
			s.stepAll = true
			return false, result, nil
		case YieldToolCall:
			if yield.ToolName == tools.EndTurn {
				return true, result, nil
			}
			result = deps.Executor.Execute(ctx, deps.State, ToolCall{
				ToolCallID:         newCallID(),
				ToolName:           yield.ToolName,
				Input:              yield.Input,
				ExcludeFromHistory: yield.ExcludeFromHistory,
			})
		}
	}
}
