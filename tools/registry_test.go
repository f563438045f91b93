package tools

import (
	"testing"

	"github.com/flowctl/agentrt/toolerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_SeedsBuiltins(t *testing.T) {
	r := NewRegistry()

	spec, ok := r.Resolve(WriteFile)
	require.True(t, ok)
	assert.True(t, spec.EndsStep)
	assert.True(t, spec.IsClientDelegated)

	_, ok = r.Resolve(Ident("does_not_exist"))
	assert.False(t, ok)
}

func TestValidateInput_UnknownTool(t *testing.T) {
	r := NewRegistry()
	err := r.ValidateInput(Ident("no_such_tool"), map[string]any{})
	require.NotNil(t, err)
	assert.Equal(t, toolerrors.RetryReasonToolUnavailable, err.Retry)
}

func TestValidateInput_SchemaMismatch(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&ToolSpec{
		Name: Ident("strict_tool"),
		Input: TypeSpec{
			Name:   "StrictInput",
			Schema: []byte(`{"type":"object","properties":{"count":{"type":"number"}},"required":["count"]}`),
		},
	}))

	err := r.ValidateInput(Ident("strict_tool"), map[string]any{"count": "not a number"})
	require.NotNil(t, err)
	assert.Equal(t, toolerrors.RetryReasonInvalidArguments, err.Retry)

	err = r.ValidateInput(Ident("strict_tool"), map[string]any{"count": 3})
	assert.Nil(t, err)
}

func TestBuiltinTools_SilentResultsDoNotReachHistory(t *testing.T) {
	for _, name := range []Ident{EndTurn, SetOutput, SetMessages} {
		r := NewRegistry()
		spec, ok := r.Resolve(name)
		require.True(t, ok, name)
		assert.True(t, spec.SilentResult, "%s must be silent per spec.md §4.1", name)
	}
}
