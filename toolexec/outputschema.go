package toolexec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/flowctl/agentrt/agent"
	"github.com/flowctl/agentrt/session"
	"github.com/flowctl/agentrt/toolerrors"
)

// TemplateLookup resolves an agent.Ident to its declarative AgentTemplate,
// mirroring orchestrator.TemplateLookup without importing that package.
type TemplateLookup interface {
	Template(id agent.Ident) (*session.AgentTemplate, bool)
}

// WithTemplates wires the template lookup handleSetOutput needs to validate
// a set_output call against its agent's declared outputSchema.
func WithTemplates(t TemplateLookup) Option { return func(e *Executor) { e.templates = t } }

// outputSchemaCache lazily compiles and caches one AgentTemplate.OutputSchema
// per agent.Ident, mirroring tools.Registry's eager-compile-at-Register
// pattern — except a Registry knows every ToolSpec upfront, while an
// Executor only learns which templates exist as runs reach them, so
// compilation happens on first use instead.
type outputSchemaCache struct {
	mu       sync.Mutex
	compiled map[agent.Ident]*jsonschema.Schema
}

func newOutputSchemaCache() *outputSchemaCache {
	return &outputSchemaCache{compiled: make(map[agent.Ident]*jsonschema.Schema)}
}

func (c *outputSchemaCache) get(id agent.Ident, raw []byte) (*jsonschema.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sch, ok := c.compiled[id]; ok {
		return sch, nil
	}

	compiler := jsonschema.NewCompiler()
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("toolexec: %s: invalid outputSchema json: %w", id, err)
	}
	resource := string(id) + ".outputschema.json"
	if err := compiler.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("toolexec: %s: add outputSchema resource: %w", id, err)
	}
	sch, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("toolexec: %s: compile outputSchema: %w", id, err)
	}
	c.compiled[id] = sch
	return sch, nil
}

// validateOutputSchema validates value against template's declared
// outputSchema, per spec.md §4.3 rule 2's "validated against outputSchema if
// declared". A template with no outputSchema accepts any value. A malformed
// outputSchema document itself — rather than a bad set_output call — fails
// open (no validation) so a template authoring mistake does not wedge every
// run of that agent type.
func (e *Executor) validateOutputSchema(agentType agent.Ident, template *session.AgentTemplate, value map[string]any) *toolerrors.ToolError {
	if len(template.OutputSchema) == 0 {
		return nil
	}
	sch, err := e.outputSchemas.get(agentType, template.OutputSchema)
	if err != nil {
		return nil
	}
	if err := sch.Validate(value); err != nil {
		return toolerrors.WithRetryHint(
			toolerrors.Errorf("set_output value does not match %s's outputSchema: %s", agentType, err.Error()),
			toolerrors.RetryReasonInvalidArguments,
		)
	}
	return nil
}
