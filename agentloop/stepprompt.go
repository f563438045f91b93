package agentloop

import "github.com/flowctl/agentrt/session"

// PlaceholderSource supplies the dynamic values substituted into a
// template's instructionsPrompt/stepPrompt, per spec.md §4.6. A runtime's
// Session State (C8) owns the underlying file tree/git/system info and
// implements this small seam so agentloop never imports it directly.
type PlaceholderSource interface {
	Snapshot(state *session.AgentState) PlaceholderData
}

// StepPromptInjector refreshes a non-main agent's stepPrompt on every LLM
// turn, per spec.md §4.6: "on each iteration inject/refresh the formatted
// stepPrompt as a user message ... wrapped in <system_reminder> when the
// agent is not the main agent".
type StepPromptInjector struct {
	Source PlaceholderSource
}

// Inject appends the rendered stepPrompt to state's history. This runtime
// does not implement history compaction (spec.md §1 Non-goals), so
// "refresh" is realized as append-only, one reminder per turn, rather than
// replacing a prior entry in place.
func (i *StepPromptInjector) Inject(state *session.AgentState, template *session.AgentTemplate) {
	if template.StepPrompt == "" || state.ParentID == "" {
		return
	}
	data := PlaceholderData{}
	if i.Source != nil {
		data = i.Source.Snapshot(state)
	}
	rendered := Render(template.StepPrompt, data)
	text := "<system_reminder>" + rendered + "</system_reminder>"
	one := 1
	state.AppendMessage(session.Message{Role: session.RoleUser, Text: text, TimeToLive: &one})
}
