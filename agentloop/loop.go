// Package agentloop implements the Agent Loop (C6): it owns one agent
// instance's run from its first prompt through the Step Scheduler (C5) to a
// final AgentOutput, per spec.md §4.6.
package agentloop

import (
	"context"
	"time"

	"github.com/flowctl/agentrt/model"
	"github.com/flowctl/agentrt/sandbox"
	"github.com/flowctl/agentrt/scheduler"
	"github.com/flowctl/agentrt/session"
	"github.com/flowctl/agentrt/toolexec"
	"github.com/flowctl/agentrt/tools"
)

// classifierTimeout bounds the low-cost LLM classifier spec.md §4.6 allows
// for ambiguous direct-command detection.
const classifierTimeout = 30 * time.Second

// NativeGeneratorFunc is the concrete signature a session.HandleSteps with
// Kind session.HandleStepsNative must satisfy. session.HandleSteps.Native is
// declared as `any` so the session package stays decoupled from this
// package's scheduler-facing types; the Agent Loop is the one place that
// type-asserts it back.
type NativeGeneratorFunc func(ctx context.Context, state *session.AgentState, priorResult tools.ResultParts) (yield *scheduler.Yield, done bool, err error)

// Loop wires one agent instance's collaborators together: the model client,
// the Tool Registry and Executor, the JS Sandbox Manager, and an optional
// direct-command classifier.
type Loop struct {
	Client            model.Client
	Registry          *tools.Registry
	Executor          *toolexec.Executor
	Sandboxes         *sandbox.Manager
	PlaceholderSource PlaceholderSource
	Classifier        Classifier
	RequestBuilder    RequestBuilder
	ChunkSink         ChunkSink // nil disables streaming
	Cancel            scheduler.CancelChecker
}

// RunPrompt executes spec.md §4.6's full sequence for one prompt delivered
// to state's agent: seed the prompt and instructions into history, run the
// direct-command shortcut on the main agent's first turn, drive the Step
// Scheduler to completion, and derive the final AgentOutput.
func (l *Loop) RunPrompt(ctx context.Context, state *session.AgentState, template *session.AgentTemplate, prompt string) (session.AgentOutput, error) {
	isMain := state.ParentID == ""

	state.AppendMessage(session.Message{Role: session.RoleUser, Text: prompt, KeepDuringTruncation: true})

	if template.InstructionsPrompt != "" {
		data := l.snapshot(state)
		userPromptTTL := ttlUserPrompt
		state.AppendMessage(session.Message{
			Role:       session.RoleUser,
			Text:       Render(template.InstructionsPrompt, data),
			TimeToLive: &userPromptTTL,
		})
	}

	if isMain {
		if out, handled := l.tryDirectCommand(ctx, state, template, prompt); handled {
			return out, nil
		}
	}

	if template.HandleSteps != nil && template.HandleSteps.Kind == session.HandleStepsSandboxed && l.Sandboxes != nil {
		defer l.Sandboxes.Remove(state.RunID)
	}

	gen := l.buildGenerator(state, template)
	turnRunner := &TurnRunner{
		Client:     l.Client,
		Registry:   l.Registry,
		Executor:   l.Executor,
		State:      state,
		Template:   template,
		Builder:    l.RequestBuilder,
		StepPrompt: &StepPromptInjector{Source: l.PlaceholderSource},
		ChunkSink:  l.ChunkSink,
		Cancel:     l.Cancel,
	}

	sched := scheduler.New()
	_, err := sched.Run(ctx, scheduler.RunDeps{
		State:      state,
		Generator:  gen,
		Executor:   executorAdapter{l.Executor},
		TurnRunner: turnRunner,
		Cancel:     l.Cancel,
		OutputGate: &OutputSchemaGate{Template: template},
	})
	if err != nil {
		return session.AgentOutput{}, err
	}
	return FinalOutput(state, template), nil
}

// ttlUserPrompt is an opaque sentinel matching spec.md Glossary's
// "userPrompt" history-compaction hint. This runtime does not implement
// compaction (spec.md §1 Non-goals), so the numeric value never drives any
// behavior here; it exists so a future compactor has a stable tag to look
// for on the message this loop injects.
const ttlUserPrompt = -1

func (l *Loop) snapshot(state *session.AgentState) PlaceholderData {
	if l.PlaceholderSource == nil {
		return PlaceholderData{}
	}
	return l.PlaceholderSource.Snapshot(state)
}

// tryDirectCommand implements spec.md §4.6's shortcut: on the main agent's
// first turn, a raw shell command bypasses the LLM entirely.
func (l *Loop) tryDirectCommand(ctx context.Context, state *session.AgentState, template *session.AgentTemplate, prompt string) (session.AgentOutput, bool) {
	cmd, ok := DetectDirectCommand(prompt)
	if !ok && l.Classifier != nil && looksCommandShaped(prompt) {
		classifyCtx, cancel := context.WithTimeout(ctx, classifierTimeout)
		isCmd, err := l.Classifier.IsShellCommand(classifyCtx, prompt)
		cancel()
		if err == nil && isCmd {
			cmd, ok = prompt, true
		}
	}
	if !ok {
		return session.AgentOutput{}, false
	}

	l.Executor.Execute(ctx, state, toolexec.ToolCall{
		ToolCallID: newTurnCallID(),
		ToolName:   tools.RunTerminalCommand,
		Input:      map[string]any{"command": cmd},
	})
	return FinalOutput(state, template), true
}

// looksCommandShaped is a cheap pre-filter so the classifier is only
// consulted for input that could plausibly be a shell command, per spec.md
// §4.6's "ambiguous cases" framing rather than every prompt.
func looksCommandShaped(prompt string) bool {
	return len(prompt) > 0 && len(prompt) < 200 && !containsNewline(prompt)
}

func containsNewline(s string) bool {
	for _, r := range s {
		if r == '\n' {
			return true
		}
	}
	return false
}

// buildGenerator adapts template's HandleSteps (native or sandboxed) to the
// Step Scheduler's Generator interface, or returns nil when the template
// declares no programmatic step generator.
func (l *Loop) buildGenerator(state *session.AgentState, template *session.AgentTemplate) scheduler.Generator {
	if template.HandleSteps == nil {
		return nil
	}
	switch template.HandleSteps.Kind {
	case session.HandleStepsNative:
		fn, ok := template.HandleSteps.Native.(NativeGeneratorFunc)
		if !ok {
			return nil
		}
		return nativeGeneratorAdapter{fn: fn, state: state}
	case session.HandleStepsSandboxed:
		if l.Sandboxes == nil {
			return nil
		}
		sb, err := l.Sandboxes.GetOrCreate(state.RunID, state.AgentID, template.HandleSteps.Source, sandbox.StepInput{
			PublicView: sandbox.RedactState(state),
		}, nil)
		if err != nil {
			return failingGenerator{err: err}
		}
		return sandboxGeneratorAdapter{sandbox: sb, state: state}
	default:
		return nil
	}
}

type nativeGeneratorAdapter struct {
	fn    NativeGeneratorFunc
	state *session.AgentState
}

func (a nativeGeneratorAdapter) Next(ctx context.Context, priorResult tools.ResultParts) (*scheduler.Yield, bool, error) {
	return a.fn(ctx, a.state, priorResult)
}

type sandboxGeneratorAdapter struct {
	sandbox *sandbox.Sandbox
	state   *session.AgentState
}

func (a sandboxGeneratorAdapter) Next(ctx context.Context, priorResult tools.ResultParts) (*scheduler.Yield, bool, error) {
	res, err := a.sandbox.Step(ctx, sandbox.StepInput{
		ToolResult: priorResult,
		PublicView: sandbox.RedactState(a.state),
	})
	if err != nil {
		return nil, false, err
	}
	if res.Done || res.Value == nil {
		return nil, true, nil
	}
	switch res.Value.Kind {
	case sandbox.YieldKindStep:
		return &scheduler.Yield{Kind: scheduler.YieldStep}, false, nil
	case sandbox.YieldKindStepAll:
		return &scheduler.Yield{Kind: scheduler.YieldStepAll}, false, nil
	default:
		call := res.Value.Call
		if call == nil {
			return nil, true, nil
		}
		return &scheduler.Yield{
			Kind:               scheduler.YieldToolCall,
			ToolName:           call.ToolName,
			Input:              call.Input,
			ExcludeFromHistory: call.ExcludeFromHistory,
		}, false, nil
	}
}

// failingGenerator surfaces a sandbox construction error (e.g. a syntax
// error in handleSteps source) the first time the scheduler asks it to
// advance, ending the run per spec.md §4.4's isolation guarantee rather than
// silently skipping the programmatic step.
type failingGenerator struct{ err error }

func (f failingGenerator) Next(ctx context.Context, priorResult tools.ResultParts) (*scheduler.Yield, bool, error) {
	return nil, false, f.err
}

// executorAdapter adapts toolexec.Executor to scheduler.ToolExecutor, whose
// ToolCall type mirrors toolexec.ToolCall's fields without importing it.
type executorAdapter struct{ executor *toolexec.Executor }

func (a executorAdapter) Execute(ctx context.Context, state *session.AgentState, call scheduler.ToolCall) tools.ResultParts {
	return a.executor.Execute(ctx, state, toolexec.ToolCall{
		ToolCallID:         call.ToolCallID,
		ToolName:           call.ToolName,
		Input:              call.Input,
		ExcludeFromHistory: call.ExcludeFromHistory,
	})
}
