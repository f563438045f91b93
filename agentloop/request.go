package agentloop

import (
	"github.com/flowctl/agentrt/model"
	"github.com/flowctl/agentrt/session"
	"github.com/flowctl/agentrt/tools"
)

// DefaultRequestBuilder implements RequestBuilder per spec.md §4.6:
// "assemble the request from the current message history, the template's
// systemPrompt, and the declared tool set." It is the concrete collaborator
// a composition root wires into TurnRunner.Builder, built on the same
// ToModelMessages conversion stubRequestBuilder uses in turn_test.go (plus
// ToolDefinitions for the declared tools), so the history a real run sends
// matches what those tests already assume. Tests supply their own stub where
// only the turn-dispatch mechanics, not the conversion, are under test.
type DefaultRequestBuilder struct {
	// Temperature is applied to every built Request. Zero uses the
	// provider's own default.
	Temperature float32
	// MaxTokens caps output tokens per turn. Zero leaves the cap to the
	// provider adapter (llm.AnthropicClient sends 4096; llm.OpenAIClient
	// sends none, so the provider's own default applies).
	MaxTokens int
}

var _ RequestBuilder = DefaultRequestBuilder{}

// BuildRequest converts state's message history and template's declared
// tool set into a model.Request, per spec.md §4.6.
func (b DefaultRequestBuilder) BuildRequest(state *session.AgentState, template *session.AgentTemplate, registry *tools.Registry) *model.Request {
	messages := make([]*model.Message, 0, len(state.MessageHistory())+1)
	if template.SystemPrompt != "" {
		messages = append(messages, &model.Message{
			Role:  model.ConversationRoleSystem,
			Parts: []model.Part{model.TextPart{Text: template.SystemPrompt}},
		})
	}
	messages = append(messages, ToModelMessages(state.MessageHistory())...)

	return &model.Request{
		RunID:       string(state.RunID),
		Messages:    messages,
		Temperature: b.Temperature,
		Tools:       ToolDefinitions(registry, template.ToolNames),
		MaxTokens:   b.MaxTokens,
	}
}
