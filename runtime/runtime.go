// Package runtime wires the ten components together into a single running
// process, mirroring the teacher's own Runtime/Options/RegisterAgent/Run
// surface from goa.design/goa-ai's runtime/agent/runtime package — but
// driving this module's direct agentloop.Loop rather than a durable
// workflow engine, since no Temporal-equivalent component exists in this
// codebase's design (the Step Scheduler and Agent Loop run in-process).
package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowctl/agentrt/agent"
	"github.com/flowctl/agentrt/agentloop"
	"github.com/flowctl/agentrt/hooks"
	"github.com/flowctl/agentrt/model"
	"github.com/flowctl/agentrt/orchestrator"
	"github.com/flowctl/agentrt/run"
	runinmem "github.com/flowctl/agentrt/run/inmem"
	"github.com/flowctl/agentrt/sandbox"
	"github.com/flowctl/agentrt/session"
	sessioninmem "github.com/flowctl/agentrt/session/inmem"
	"github.com/flowctl/agentrt/stream"
	"github.com/flowctl/agentrt/telemetry"
	"github.com/flowctl/agentrt/toolexec"
	"github.com/flowctl/agentrt/tools"
	"github.com/flowctl/agentrt/wire"
)

// ErrAgentNotFound is returned when RunPrompt names an agent.Ident with no
// registered AgentTemplate.
var ErrAgentNotFound = errors.New("runtime: agent not found")

// ErrModelNotFound is returned when a template names a model id with no
// registered model.Client.
var ErrModelNotFound = errors.New("runtime: model not found")

// TemplateLookup resolves an agent.Ident to its declarative AgentTemplate.
// Satisfied directly by *config.Config.
type TemplateLookup interface {
	Template(id agent.Ident) (*session.AgentTemplate, bool)
}

// Options configures a Runtime. Every field is optional; New substitutes
// sane in-memory/no-op defaults exactly as the teacher's Options does for
// a nil Logger/Metrics/Tracer/Hooks.
type Options struct {
	// Templates resolves agent.Ident to its AgentTemplate, typically a
	// *config.Config loaded at process start.
	Templates TemplateLookup
	// Registry is the Tool Registry (C1) every agent dispatches against.
	Registry *tools.Registry
	// Capabilities bundles the built-in local tool handlers' collaborators
	// (filesystem, terminal, search).
	Capabilities tools.Capabilities
	// Sandboxes is the JS Sandbox Manager (C4) handleSteps generators run
	// inside.
	Sandboxes *sandbox.Manager
	// Bridge delegates client-delegated tool calls to the Client Tool
	// Bridge (C10); typically a *wire.ClientBridge bound to a *wire.Registry.
	Bridge toolexec.ClientBridge
	// RunStore tracks run metadata for observability.
	RunStore run.Store
	// SessionStore persists session/turn metadata across runs.
	SessionStore session.Store
	// Bus is the internal event bus driving memory/stream subscribers.
	Bus hooks.Bus
	// Stream publishes translated stream.Event values to callers; wired as
	// a hooks.Subscriber via stream.NewSubscriber.
	Stream stream.Sink
	// Logger emits structured logs.
	Logger telemetry.Logger
	// Metrics records counters/histograms.
	Metrics telemetry.Metrics
	// Tracer emits spans.
	Tracer telemetry.Tracer
}

// Runtime is the top-level object wiring C1-C10 together: one Runtime runs
// every registered agent template, dispatching each RunPrompt through its
// own fresh agent.Tree, toolexec.Executor, and orchestrator.Orchestrator,
// sharing the Tool Registry, JS Sandbox Manager, stores, and telemetry
// across runs. RunPrompt and PromptHandler may run concurrently with each
// other; RegisterModel writes the model map without a lock, so it is not
// safe to call while prompts are running.
type Runtime struct {
	templates TemplateLookup
	registry  *tools.Registry
	caps      tools.Capabilities
	sandboxes *sandbox.Manager
	bridge    toolexec.ClientBridge

	runStore     run.Store
	sessionStore session.Store
	bus          hooks.Bus

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer

	models map[string]model.Client
}

// New constructs a Runtime from opts, installing noop telemetry and
// in-memory stores for anything left unset.
func New(opts Options) *Runtime {
	bus := opts.Bus
	if bus == nil {
		bus = hooks.NewBus()
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NoopMetrics{}
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NoopTracer{}
	}
	runStore := opts.RunStore
	if runStore == nil {
		runStore = runinmem.New()
	}
	sessionStore := opts.SessionStore
	if sessionStore == nil {
		sessionStore = sessioninmem.New()
	}
	registry := opts.Registry
	if registry == nil {
		registry = tools.NewRegistry()
	}
	sandboxes := opts.Sandboxes
	if sandboxes == nil {
		sandboxes = sandbox.NewManager()
	}

	rt := &Runtime{
		templates:    opts.Templates,
		registry:     registry,
		caps:         opts.Capabilities,
		sandboxes:    sandboxes,
		bridge:       opts.Bridge,
		runStore:     runStore,
		sessionStore: sessionStore,
		bus:          bus,
		logger:       logger,
		metrics:      metrics,
		tracer:       tracer,
		models:       make(map[string]model.Client),
	}

	if opts.Stream != nil {
		sub, err := stream.NewSubscriber(opts.Stream)
		if err != nil {
			rt.logger.Warn(context.Background(), "runtime: failed to build stream subscriber", "err", err)
		} else if _, err := rt.bus.Register(sub); err != nil {
			rt.logger.Warn(context.Background(), "runtime: failed to register stream subscriber", "err", err)
		}
	}

	return rt
}

// RegisterModel makes client available under id for any AgentTemplate whose
// Model field names it.
func (r *Runtime) RegisterModel(id string, client model.Client) error {
	if id == "" {
		return errors.New("runtime: model id is required")
	}
	if client == nil {
		return errors.New("runtime: model client is required")
	}
	r.models[id] = client
	return nil
}

// Bus returns the internal event bus, for callers that need to register
// additional hooks.Subscriber instances (e.g. a memory-persistence hook).
func (r *Runtime) Bus() hooks.Bus { return r.bus }

// PromptHandler returns a wire.PromptHandler that runs the named agent
// template to completion against one client prompt and writes the result
// back over the WebSocket session, suitable for passing directly to
// wire.NewServer.
func (r *Runtime) PromptHandler(agentType agent.Ident) wire.PromptHandler {
	return func(ctx context.Context, sess *wire.Session, msg wire.PromptMessage) {
		defer sess.ClearCancelled(msg.PromptID)
		out, err := r.runPrompt(ctx, agentType, msg.PromptID, msg.Prompt, sess, msg.PromptID)
		if err != nil {
			_ = sess.Send(wire.PromptErrorMessage{
				Type:        wire.ActionPromptError,
				UserInputID: msg.PromptID,
				Message:     err.Error(),
			})
			return
		}
		_ = sess.Send(wire.PromptResponseMessage{
			Type:     wire.ActionPromptResponse,
			PromptID: msg.PromptID,
			Output:   outputValue(out),
		})
	}
}

// RunPrompt drives agentType's template through one full prompt: it builds
// a fresh agent.Tree and toolexec.Executor/orchestrator.Orchestrator pair
// for the run (breaking the Executor/Orchestrator construction cycle the
// same way the teacher's codegen does — the Orchestrator is handed a
// *agentloop.Loop as its Spawner before the Loop's own Executor field is
// set), runs it to completion, and records the outcome in RunStore.
func (r *Runtime) RunPrompt(ctx context.Context, agentType agent.Ident, runID, prompt string) (session.AgentOutput, error) {
	return r.runPrompt(ctx, agentType, runID, prompt, nil, "")
}

// runPrompt is RunPrompt's implementation, additionally accepting the live
// wire.Session/promptID a wire-driven call arrived on (both empty/nil for a
// direct, non-wire caller). sess/promptID feed the streaming chunk sink
// (spec.md §1, §6, §8 scenario 6) and the cooperative cancellation checker
// (spec.md §5) threaded into the Agent Loop.
func (r *Runtime) runPrompt(ctx context.Context, agentType agent.Ident, runID, prompt string, sess *wire.Session, promptID string) (session.AgentOutput, error) {
	if r.templates == nil {
		return session.AgentOutput{}, fmt.Errorf("runtime: no template lookup configured")
	}
	template, ok := r.templates.Template(agentType)
	if !ok {
		return session.AgentOutput{}, fmt.Errorf("%w: %q", ErrAgentNotFound, agentType)
	}
	client, ok := r.models[template.Model]
	if !ok {
		return session.AgentOutput{}, fmt.Errorf("%w: %q", ErrModelNotFound, template.Model)
	}

	if runID == "" {
		runID = uuid.NewString()
	}
	rootID := agent.ID(uuid.NewString())
	tree := agent.NewTree(rootID, agentType)
	state := session.NewAgentState(rootID, agent.RunID(runID), agentType, "", defaultStepBudget)

	bridge := &wireBridge{bus: r.bus, sess: sess, promptID: promptID}

	loop := &agentloop.Loop{Client: client, RequestBuilder: agentloop.DefaultRequestBuilder{}, ChunkSink: bridge}
	if sess != nil {
		loop.Cancel = wire.PromptCancelChecker{Session: sess, PromptID: promptID}
	}
	orch := orchestrator.New(tree, r.templates, loop, orchestrator.WithChunkSink(bridge))
	executor := toolexec.New(r.registry, r.caps, tree,
		toolexec.WithOrchestrator(orch),
		toolexec.WithClientBridge(r.bridge),
		toolexec.WithSink(bridge),
		toolexec.WithTemplates(r.templates),
	)
	loop.Executor = executor
	loop.Registry = r.registry
	loop.Sandboxes = r.sandboxes

	_ = r.runStore.Upsert(ctx, run.Record{
		RunID:     runID,
		AgentID:   agentType,
		Status:    run.StatusRunning,
		StartedAt: time.Now(),
	})

	out, err := loop.RunPrompt(ctx, state, template, prompt)

	status := run.StatusCompleted
	if err != nil {
		status = run.StatusFailed
	}
	_ = r.runStore.Upsert(ctx, run.Record{
		RunID:     runID,
		AgentID:   agentType,
		Status:    status,
		UpdatedAt: time.Now(),
	})

	return out, err
}

// outputValue projects an AgentOutput's tagged union down to the single
// "output" field PromptResponseMessage carries on the wire.
func outputValue(out session.AgentOutput) any {
	switch out.Type {
	case session.AgentOutputStructured, session.AgentOutputAllMessages:
		return out.Value
	case session.AgentOutputLastMessage, session.AgentOutputError:
		return out.Message
	default:
		return nil
	}
}

// defaultStepBudget bounds the top-level agent's LLM step count when no
// per-template override is threaded through (AgentTemplate carries no such
// field today; the Step Scheduler itself enforces the real ceiling via
// scheduler.RunDeps once a budget is plumbed through a future template
// field).
const defaultStepBudget = 250
