package agentloop

import "github.com/flowctl/agentrt/session"

// FinalOutput derives the run's AgentOutput from template's outputMode, per
// spec.md §4.6 ("after the scheduler exits, produce AgentOutput from the
// template's outputMode") and §3's AgentOutput union.
func FinalOutput(state *session.AgentState, template *session.AgentTemplate) session.AgentOutput {
	if out := state.Output(); out != nil {
		// set_output already populated a structuredOutput value; that always
		// wins over the template's declared mode.
		return *out
	}

	history := state.MessageHistory()
	switch template.OutputMode {
	case session.OutputModeAllMessages:
		return session.AgentOutput{Type: session.AgentOutputAllMessages, Value: history}
	case session.OutputModeStructuredOutput:
		return session.AgentOutput{
			Type:    session.AgentOutputError,
			Message: "agent ended without calling set_output, but its template requires structuredOutput",
		}
	case session.OutputModeLastMessage:
		fallthrough
	default:
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Role == session.RoleAssistant {
				return session.AgentOutput{Type: session.AgentOutputLastMessage, Message: history[i].Text}
			}
		}
		return session.AgentOutput{Type: session.AgentOutputLastMessage, Message: ""}
	}
}
