package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/agentrt/agent"
	"github.com/flowctl/agentrt/session"
	"github.com/flowctl/agentrt/tools"
)

type scriptedGenerator struct {
	yields []*Yield
	idx    int
}

func (g *scriptedGenerator) Next(ctx context.Context, prior tools.ResultParts) (*Yield, bool, error) {
	if g.idx >= len(g.yields) {
		return nil, true, nil
	}
	y := g.yields[g.idx]
	g.idx++
	return y, false, nil
}

type countingExecutor struct {
	calls []ToolCall
}

func (e *countingExecutor) Execute(ctx context.Context, state *session.AgentState, call ToolCall) tools.ResultParts {
	e.calls = append(e.calls, call)
	return tools.ResultParts{tools.TextPart("ok")}
}

type scriptedTurnRunner struct {
	turns []TurnResult
	idx   int
	calls int
}

func (r *scriptedTurnRunner) RunTurn(ctx context.Context) (TurnResult, error) {
	r.calls++
	if r.idx >= len(r.turns) {
		return TurnResult{SawEndTurn: true}, nil
	}
	t := r.turns[r.idx]
	r.idx++
	return t, nil
}

func newState(steps int) *session.AgentState {
	return session.NewAgentState(agent.ID("main"), agent.RunID("run-1"), agent.Ident("root"), agent.ID(""), steps)
}

func TestRun_NoGeneratorRunsLLMTurnsUntilEndTurn(t *testing.T) {
	state := newState(5)
	turns := &scriptedTurnRunner{turns: []TurnResult{
		{ToolCallCount: 1, ToolResultCount: 1},
		{SawEndTurn: true},
	}}
	sched := New()
	outcome, err := sched.Run(context.Background(), RunDeps{State: state, TurnRunner: turns})
	require.NoError(t, err)
	assert.Equal(t, StateDone, outcome.State)
	assert.Equal(t, 2, turns.calls)
	assert.Equal(t, 3, state.StepsRemaining())
}

func TestRun_GeneratorEndTurnSkipsLLMEntirely(t *testing.T) {
	state := newState(5)
	gen := &scriptedGenerator{yields: []*Yield{{Kind: YieldToolCall, ToolName: tools.EndTurn}}}
	turns := &scriptedTurnRunner{}
	sched := New()

	outcome, err := sched.Run(context.Background(), RunDeps{State: state, Generator: gen, TurnRunner: turns})
	require.NoError(t, err)
	assert.Equal(t, StateDone, outcome.State)
	assert.Equal(t, 0, turns.calls)
	assert.Equal(t, 5, state.StepsRemaining())
}

func TestRun_GeneratorYieldsToolCallsThenSTEP(t *testing.T) {
	state := newState(5)
	exec := &countingExecutor{}
	gen := &scriptedGenerator{yields: []*Yield{
		{Kind: YieldToolCall, ToolName: tools.Ident("read_files")},
		{Kind: YieldStep},
	}}
	turns := &scriptedTurnRunner{turns: []TurnResult{{SawEndTurn: true}}}
	sched := New()

	outcome, err := sched.Run(context.Background(), RunDeps{State: state, Generator: gen, Executor: exec, TurnRunner: turns})
	require.NoError(t, err)
	assert.Equal(t, StateDone, outcome.State)
	require.Len(t, exec.calls, 1)
	assert.Equal(t, tools.Ident("read_files"), exec.calls[0].ToolName)
	assert.Equal(t, 1, turns.calls, "STEP should owe exactly one LLM turn")
}

func TestRun_StepAllKeepsGeneratorPausedUntilLLMEndsStep(t *testing.T) {
	state := newState(5)
	gen := &scriptedGenerator{yields: []*Yield{
		{Kind: YieldStepAll},
		{Kind: YieldToolCall, ToolName: tools.EndTurn},
	}}
	turns := &scriptedTurnRunner{turns: []TurnResult{
		{ToolCallCount: 1, ToolResultCount: 1}, // does not end the step
		{SawEndTurn: true},                     // ends the step, resumes generator
	}}
	sched := New()

	outcome, err := sched.Run(context.Background(), RunDeps{State: state, Generator: gen, TurnRunner: turns})
	require.NoError(t, err)
	assert.Equal(t, StateDone, outcome.State)
	assert.Equal(t, 2, turns.calls, "the LLM must run until it ends its step before the generator resumes")
	assert.Equal(t, 2, gen.idx, "both yields were consumed: STEP_ALL, then end_turn once the step actually ended")
}

func TestRun_StepBudgetExhaustionForcesEndTurn(t *testing.T) {
	state := newState(0)
	turns := &scriptedTurnRunner{}
	sched := New()

	outcome, err := sched.Run(context.Background(), RunDeps{State: state, TurnRunner: turns})
	require.NoError(t, err)
	assert.Equal(t, StateDone, outcome.State)
	assert.Equal(t, 0, turns.calls)
}

type alwaysCanceled struct{}

func (alwaysCanceled) Canceled() bool { return true }

func TestRun_CancellationStopsImmediately(t *testing.T) {
	state := newState(5)
	turns := &scriptedTurnRunner{}
	sched := New()

	outcome, err := sched.Run(context.Background(), RunDeps{State: state, TurnRunner: turns, Cancel: alwaysCanceled{}})
	require.ErrorIs(t, err, ErrCanceled)
	assert.True(t, outcome.Canceled)
	assert.Equal(t, 0, turns.calls)
}

type countingOutputGate struct {
	remainingNeeds int
	injected       int
}

func (g *countingOutputGate) NeedsOutput(state *session.AgentState) bool {
	return g.injected < g.remainingNeeds
}

func (g *countingOutputGate) InjectReminder(state *session.AgentState) {
	g.injected++
	state.AppendMessage(session.Message{Role: session.RoleUser, Text: "please call set_output"})
}

func TestRun_OutputGateRestartsCapAtThree(t *testing.T) {
	state := newState(10)
	turns := &scriptedTurnRunner{turns: []TurnResult{{SawEndTurn: true}}}
	gate := &countingOutputGate{remainingNeeds: 10}
	sched := New()

	_, err := sched.Run(context.Background(), RunDeps{State: state, TurnRunner: turns, OutputGate: gate})
	require.NoError(t, err)
	assert.Equal(t, 3, gate.injected, "restarts are capped at 3 regardless of how long NeedsOutput stays true")
}

func TestRun_OutputGateStopsOnceSatisfied(t *testing.T) {
	state := newState(10)
	turns := &scriptedTurnRunner{turns: []TurnResult{{SawEndTurn: true}}}
	gate := &countingOutputGate{remainingNeeds: 1}
	sched := New()

	_, err := sched.Run(context.Background(), RunDeps{State: state, TurnRunner: turns, OutputGate: gate})
	require.NoError(t, err)
	assert.Equal(t, 1, gate.injected)
}
