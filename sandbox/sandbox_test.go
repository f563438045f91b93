package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/agentrt/agent"
)

type recordingLogger struct {
	calls []string
}

func (l *recordingLogger) Log(runID agent.RunID, level string, args []any) {
	l.calls = append(l.calls, level)
}

func TestSandbox_YieldsToolCallThenEndTurn(t *testing.T) {
	source := `function* (ctx) {
		yield { toolName: "read_files", input: { paths: ["a.txt"] } };
		yield { toolName: "end_turn", input: {} };
	}`

	m := NewManager()
	sb, err := m.GetOrCreate(agent.RunID("run-1"), agent.ID("main"), source, StepInput{}, nil)
	require.NoError(t, err)

	res, err := sb.Step(context.Background(), StepInput{})
	require.NoError(t, err)
	require.False(t, res.Done)
	require.NotNil(t, res.Value)
	assert.Equal(t, YieldKindToolCall, res.Value.Kind)
	assert.Equal(t, "read_files", string(res.Value.Call.ToolName))

	res, err = sb.Step(context.Background(), StepInput{})
	require.NoError(t, err)
	require.NotNil(t, res.Value)
	assert.Equal(t, "end_turn", string(res.Value.Call.ToolName))

	res, err = sb.Step(context.Background(), StepInput{})
	require.NoError(t, err)
	assert.True(t, res.Done)
}

func TestSandbox_StepAndStepAllControlSignals(t *testing.T) {
	source := `function* (ctx) {
		yield "STEP";
		yield "STEP_ALL";
	}`
	m := NewManager()
	sb, err := m.GetOrCreate(agent.RunID("run-2"), agent.ID("main"), source, StepInput{}, nil)
	require.NoError(t, err)

	res, err := sb.Step(context.Background(), StepInput{})
	require.NoError(t, err)
	assert.Equal(t, YieldKindStep, res.Value.Kind)

	res, err = sb.Step(context.Background(), StepInput{})
	require.NoError(t, err)
	assert.Equal(t, YieldKindStepAll, res.Value.Kind)
}

func TestSandbox_SyntaxErrorBecomesIsolationError(t *testing.T) {
	m := NewManager()
	_, err := m.GetOrCreate(agent.RunID("run-3"), agent.ID("main"), "function* ( {", StepInput{}, nil)
	require.Error(t, err)
	var isoErr *IsolationError
	require.ErrorAs(t, err, &isoErr)
	assert.Contains(t, isoErr.Error(), "Error executing handleSteps for agent main")
}

func TestSandbox_UncaughtExceptionBecomesIsolationError(t *testing.T) {
	source := `function* (ctx) {
		throw new Error("boom");
	}`
	m := NewManager()
	sb, err := m.GetOrCreate(agent.RunID("run-4"), agent.ID("main"), source, StepInput{}, nil)
	require.NoError(t, err)

	_, err = sb.Step(context.Background(), StepInput{})
	require.Error(t, err)
	var isoErr *IsolationError
	require.ErrorAs(t, err, &isoErr)
	assert.Contains(t, isoErr.Reason, "boom")
}

func TestSandbox_LoggerCallsAreForwarded(t *testing.T) {
	source := `function* (ctx) {
		ctx.logger.info("hello");
		yield { toolName: "end_turn", input: {} };
	}`
	logger := &recordingLogger{}
	m := NewManager()
	sb, err := m.GetOrCreate(agent.RunID("run-5"), agent.ID("main"), source, StepInput{}, logger)
	require.NoError(t, err)

	_, err = sb.Step(context.Background(), StepInput{})
	require.NoError(t, err)
	assert.Contains(t, logger.calls, "info")
}

func TestSandbox_NoNetworkOrFilesystemGlobalsExposed(t *testing.T) {
	source := `function* (ctx) {
		if (typeof fetch !== "undefined" || typeof require !== "undefined" || typeof process !== "undefined") {
			throw new Error("sandbox leaked a host global");
		}
		yield { toolName: "end_turn", input: {} };
	}`
	m := NewManager()
	sb, err := m.GetOrCreate(agent.RunID("run-6"), agent.ID("main"), source, StepInput{}, nil)
	require.NoError(t, err)

	_, err = sb.Step(context.Background(), StepInput{})
	require.NoError(t, err)
}

func TestManager_RemoveDisposesSandbox(t *testing.T) {
	source := `function* (ctx) { yield { toolName: "end_turn", input: {} }; }`
	m := NewManager()
	_, err := m.GetOrCreate(agent.RunID("run-7"), agent.ID("main"), source, StepInput{}, nil)
	require.NoError(t, err)

	m.Remove(agent.RunID("run-7"))
	m.mu.Lock()
	_, ok := m.sandboxes[agent.RunID("run-7")]
	m.mu.Unlock()
	assert.False(t, ok)
}
