// Package tools declares the closed set of built-in tools plus the registry
// that custom, per-session tools join at runtime, and validates tool inputs
// against their declared JSON schema before any handler runs.
package tools

import "encoding/json"

// AnyJSONCodec is a pre-built codec for the `any` type, used by tools whose
// payload shape is only known after schema validation.
var AnyJSONCodec = JSONCodec[any]{
	ToJSON: json.Marshal,
	FromJSON: func(data []byte) (any, error) {
		if len(data) == 0 {
			return nil, nil
		}
		var out any
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	},
}

// JSONCodec serializes and deserializes strongly typed values to and from JSON.
type JSONCodec[T any] struct {
	ToJSON   func(T) ([]byte, error)
	FromJSON func([]byte) (T, error)
}

// TypeSpec describes the input schema for a tool.
type TypeSpec struct {
	// Name is a human-readable label for the schema (used in error messages).
	Name string
	// Schema is the raw JSON Schema document used to validate a call's input.
	Schema []byte
	// ExampleInputs optionally seeds retry hints and await-clarification prompts.
	ExampleInputs []map[string]any
}

// ToolSpec declares one tool: its identity, its input shape, and how the
// Tool Executor (C3) must treat a call to it. Fields mirror spec.md §3's
// Tool data model and §4.1's resolveTool contract.
type ToolSpec struct {
	// Name is the tool's unique identifier. Built-in tools use a bare name
	// ("write_file"); custom, per-session tools may use any unique string.
	Name Ident
	// Description is shown to the model in its tool-use prompt.
	Description string
	// Input describes and validates the tool's argument shape.
	Input TypeSpec
	// EndsStep signals that once this tool is dispatched, the current LLM
	// turn must stop emitting further tool calls and yield to the scheduler
	// (spec.md §4.1).
	EndsStep bool
	// SilentResult means the tool's result is not returned to the LLM and is
	// not appended to message history as a tool-result (end_turn, set_output,
	// set_messages).
	SilentResult bool
	// IsClientDelegated means the Executor must delegate this call to the
	// Client Tool Bridge (C10) rather than run a local handler.
	IsClientDelegated bool
	// IsAgentSpawn means the Executor must delegate this call to the
	// Orchestrator (C7) instead of any other dispatch rule.
	IsAgentSpawn bool
	// Handler is the in-process implementation for a built-in local tool.
	// Nil for client-delegated, agent-spawn, and custom tools — those are
	// resolved by the Tool Executor through other means.
	Handler LocalHandler
}

// LocalHandler implements a built-in tool that runs in-process against
// injected capabilities, per spec.md §4.3 dispatch rule 6.
type LocalHandler func(ctx Context, input map[string]any) (ResultParts, error)
