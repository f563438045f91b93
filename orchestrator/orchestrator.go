// Package orchestrator implements the Orchestrator (C7): it resolves
// spawn_agents and spawn_agent_inline tool calls into child agent runs
// recursively driven by the Agent Loop (C6), per spec.md §4.7.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/flowctl/agentrt/agent"
	"github.com/flowctl/agentrt/session"
	"github.com/flowctl/agentrt/toolexec"
	"github.com/flowctl/agentrt/tools"
)

// Spawner runs one child agent to completion, recursively applying the same
// Step Scheduler / Agent Loop machinery a top-level run uses. Declared as an
// interface so this package never imports agentloop's concrete Loop type —
// the composition root wires a *agentloop.Loop in as a Spawner.
type Spawner interface {
	RunPrompt(ctx context.Context, state *session.AgentState, template *session.AgentTemplate, prompt string) (session.AgentOutput, error)
}

// TemplateLookup resolves an agent.Ident to its declarative AgentTemplate,
// mirroring spec.md §4.7's "child templates are discovered by id in the
// per-session agentTemplates map".
type TemplateLookup interface {
	Template(id agent.Ident) (*session.AgentTemplate, bool)
}

// ChunkSink reports a child run's lifecycle to the Wire Protocol (C9), per
// spec.md §8 scenario 6: "subagent_start and subagent_finish chunks for both
// are emitted, each tagged with parentAgentId = parent.agentId". Declared
// here so this package never imports wire's concrete Chunk type — the
// composition root wires a concrete sink in.
type ChunkSink interface {
	SubagentStart(ctx context.Context, child *session.AgentState, parentID agent.ID)
	SubagentFinish(ctx context.Context, child *session.AgentState, parentID agent.ID, out session.AgentOutput, err error)
}

// childSpec is one entry of spawn_agents' "agents" array, or the sole spec
// spawn_agent_inline carries.
type childSpec struct {
	AgentType agent.Ident
	Prompt    string
	Params    map[string]any
}

// Orchestrator dispatches agent-spawn tool calls, implementing
// toolexec.Orchestrator.
type Orchestrator struct {
	tree      *agent.Tree
	templates TemplateLookup
	spawner   Spawner
	newID     func() string
	chunks    ChunkSink
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithIDGenerator overrides the default UUID-based id generator, primarily
// for deterministic tests.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// WithChunkSink wires the subagent_start/subagent_finish chunk emitter a live
// wire session needs; nil (the default) disables subagent chunk emission.
func WithChunkSink(sink ChunkSink) Option {
	return func(o *Orchestrator) { o.chunks = sink }
}

// New constructs an Orchestrator bound to the run's agent tree, template
// lookup, and child-running collaborator.
func New(tree *agent.Tree, templates TemplateLookup, spawner Spawner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		tree:      tree,
		templates: templates,
		spawner:   spawner,
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

var _ toolexec.Orchestrator = (*Orchestrator)(nil)

// SpawnAgents implements spec.md §4.7's spawn_agents: run every listed child
// concurrently, and assemble one result part per child in input order
// regardless of completion order (spec.md §5's "aggregated tool-result is
// in input order"). The tool-result is not returned until every child has
// reached Done (spec.md §4.7's ordering invariant).
func (o *Orchestrator) SpawnAgents(ctx context.Context, parent *session.AgentState, call toolexec.ToolCall) (tools.ResultParts, error) {
	specs, err := parseSpawnAgentsInput(call.Input)
	if err != nil {
		return nil, err
	}

	results := make(tools.ResultParts, len(specs))
	var wg sync.WaitGroup
	wg.Add(len(specs))
	for i, spec := range specs {
		go func(i int, spec childSpec) {
			defer wg.Done()
			results[i] = o.runChild(ctx, parent, spec)
		}(i, spec)
	}
	wg.Wait()

	return results, nil
}

// SpawnAgentInline implements spec.md §4.7's spawn_agent_inline: run exactly
// one child and fold its result into the parent's tool-result. Stitching the
// child's streaming chunks inline into the parent's visible stream (as if
// one continuous turn) is the Wire Protocol's (C9) concern once a chunk sink
// is wired to this call; this method's job ends at producing the
// tool-result the Tool Executor appends to history.
func (o *Orchestrator) SpawnAgentInline(ctx context.Context, parent *session.AgentState, call toolexec.ToolCall) (tools.ResultParts, error) {
	spec, err := parseSpawnAgentInlineInput(call.Input)
	if err != nil {
		return nil, err
	}
	return tools.ResultParts{o.runChild(ctx, parent, spec)}, nil
}

// runChild constructs the child's AgentState, registers it in the shared
// agent tree, and drives it to completion via the Spawner.
func (o *Orchestrator) runChild(ctx context.Context, parent *session.AgentState, spec childSpec) tools.ResultPart {
	template, ok := o.templates.Template(spec.AgentType)
	if !ok {
		return tools.ErrorPart(fmt.Sprintf("unknown agent type %q", spec.AgentType))
	}
	if template.InheritParentSystemPrompt {
		if parentTemplate, ok := o.templates.Template(parent.AgentType); ok && parentTemplate.SystemPrompt != "" {
			inherited := *template
			inherited.SystemPrompt = parentTemplate.SystemPrompt + "\n\n" + template.SystemPrompt
			template = &inherited
		}
	}

	childID := agent.ID(o.newID())
	childRunID := agent.RunID(o.newID())
	o.tree.Add(childID, parent.AgentID, spec.AgentType)

	child := session.NewAgentState(childID, childRunID, spec.AgentType, parent.AgentID, parent.StepsRemaining())
	for k, v := range spec.Params {
		child.AgentContext[k] = v
	}
	parent.AddChildRun(childRunID)

	// spec.md §4.7's back-pressure note: a child whose step limit is
	// exhausted before producing output still returns a well-formed error
	// output; the parent treats it like any other tool result.
	if child.StepsRemaining() == 0 {
		return tools.JSONPart(map[string]any{"type": "error", "message": "child agent spawned with zero steps remaining"})
	}

	if o.chunks != nil {
		o.chunks.SubagentStart(ctx, child, parent.AgentID)
	}
	out, err := o.spawner.RunPrompt(ctx, child, template, spec.Prompt)
	if o.chunks != nil {
		o.chunks.SubagentFinish(ctx, child, parent.AgentID, out, err)
	}
	if err != nil {
		return tools.ErrorPart(err.Error())
	}
	return outputToResultPart(out)
}

// outputToResultPart flattens a child's AgentOutput union into the single
// ResultPart its spawning tool call contributes, per spec.md §4.7's "the
// aggregate result (one result part per child) is the tool-result".
func outputToResultPart(out session.AgentOutput) tools.ResultPart {
	switch out.Type {
	case session.AgentOutputStructured:
		return tools.JSONPart(out.Value)
	case session.AgentOutputAllMessages:
		return tools.JSONPart(out.Value)
	case session.AgentOutputLastMessage:
		return tools.TextPart(out.Message)
	case session.AgentOutputError:
		return tools.JSONPart(map[string]any{"type": "error", "message": out.Message})
	default:
		return tools.TextPart("")
	}
}

func parseSpawnAgentsInput(input map[string]any) ([]childSpec, error) {
	raw, ok := input["agents"].([]any)
	if !ok {
		return nil, fmt.Errorf("spawn_agents requires an agents array")
	}
	specs := make([]childSpec, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("spawn_agents: each entry must be an object")
		}
		spec, err := decodeChildSpec(m)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func parseSpawnAgentInlineInput(input map[string]any) (childSpec, error) {
	return decodeChildSpec(input)
}

func decodeChildSpec(m map[string]any) (childSpec, error) {
	agentType, _ := m["agent_type"].(string)
	if agentType == "" {
		return childSpec{}, fmt.Errorf("child spec requires a non-empty agent_type")
	}
	prompt, _ := m["prompt"].(string)
	params, _ := m["params"].(map[string]any)
	return childSpec{AgentType: agent.Ident(agentType), Prompt: prompt, Params: params}, nil
}
