package agentloop

import "github.com/flowctl/agentrt/session"

// OutputSchemaGate implements scheduler.OutputGate for a template that
// declares an outputSchema, per spec.md §4.5's end-of-run enforcement: "if
// the template declares an outputSchema and the agent never called
// set_output, inject a reminder and retry".
type OutputSchemaGate struct {
	Template *session.AgentTemplate
}

// NeedsOutput reports whether the template requires structured output and
// none has been set yet.
func (g *OutputSchemaGate) NeedsOutput(state *session.AgentState) bool {
	return len(g.Template.OutputSchema) > 0 && state.Output() == nil
}

// InjectReminder appends the reminder message instructing the agent to call
// set_output.
func (g *OutputSchemaGate) InjectReminder(state *session.AgentState) {
	state.AppendMessage(session.Message{
		Role: session.RoleUser,
		Text: "<system_reminder>You must call set_output with a value matching the declared output schema before ending this run.</system_reminder>",
	})
}
