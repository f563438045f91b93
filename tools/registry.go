package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/flowctl/agentrt/toolerrors"
)

// Registry resolves tool names to their ToolSpec and validates tool-call
// inputs against the declared schema, implementing spec.md §4.1's contract:
// resolveTool(name) -> {schema, endsStep, isClientDelegated, isAgentSpawn,
// handler?} and validateInput(name, value) -> Ok | Err.
//
// A Registry starts with the built-in tools and accumulates per-session
// custom tools via Register; it is safe for concurrent use because a single
// session's Registry may be read by the Tool Executor while still being
// extended by late-arriving custom tool definitions from SessionState.
type Registry struct {
	mu       sync.RWMutex
	specs    map[Ident]*ToolSpec
	compiled map[Ident]*jsonschema.Schema
}

// NewRegistry returns a Registry seeded with the built-in tool set.
func NewRegistry() *Registry {
	r := &Registry{
		specs:    make(map[Ident]*ToolSpec),
		compiled: make(map[Ident]*jsonschema.Schema),
	}
	for _, spec := range BuiltinTools() {
		_ = r.Register(spec)
	}
	return r
}

// Register adds or replaces a tool. Custom tools registered per-session use
// this identical surface; only their Handler is absent (they are always
// IsClientDelegated). Register compiles the tool's input schema eagerly so a
// malformed schema is caught at registration time, not at first call.
func (r *Registry) Register(spec *ToolSpec) error {
	var compiled *jsonschema.Schema
	if len(spec.Input.Schema) > 0 {
		c := jsonschema.NewCompiler()
		dec := json.NewDecoder(bytes.NewReader(spec.Input.Schema))
		dec.UseNumber()
		var doc any
		if err := dec.Decode(&doc); err != nil {
			return fmt.Errorf("tools: %s: invalid schema json: %w", spec.Name, err)
		}
		resource := string(spec.Name) + ".schema.json"
		if err := c.AddResource(resource, doc); err != nil {
			return fmt.Errorf("tools: %s: add schema resource: %w", spec.Name, err)
		}
		sch, err := c.Compile(resource)
		if err != nil {
			return fmt.Errorf("tools: %s: compile schema: %w", spec.Name, err)
		}
		compiled = sch
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.Name] = spec
	if compiled != nil {
		r.compiled[spec.Name] = compiled
	} else {
		delete(r.compiled, spec.Name)
	}
	return nil
}

// Resolve returns the ToolSpec for name, or (nil, false) if name is not
// registered — spec.md §4.3 dispatch rule 8: "Unknown -> tool-result error".
func (r *Registry) Resolve(name Ident) (*ToolSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

// ValidateInput validates value against name's declared schema. A tool with
// no schema accepts any object. Returns a *toolerrors.ToolError tagged
// RetryReasonInvalidArguments on failure, per spec.md §4.1: "Failures at
// validation time produce a tool-result error ... without invoking any
// handler."
func (r *Registry) ValidateInput(name Ident, value map[string]any) *toolerrors.ToolError {
	r.mu.RLock()
	schema, hasSchema := r.compiled[name]
	_, known := r.specs[name]
	r.mu.RUnlock()

	if !known {
		return toolerrors.WithRetryHint(
			toolerrors.Errorf("Tool %s not found", name),
			toolerrors.RetryReasonToolUnavailable,
		)
	}
	if !hasSchema {
		return nil
	}
	if err := schema.Validate(value); err != nil {
		return toolerrors.WithRetryHint(
			toolerrors.Errorf("input for %s does not match schema: %s", name, err.Error()),
			toolerrors.RetryReasonInvalidArguments,
		)
	}
	return nil
}
