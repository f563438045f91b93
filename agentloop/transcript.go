package agentloop

import (
	"encoding/json"
	"fmt"

	"github.com/flowctl/agentrt/model"
	"github.com/flowctl/agentrt/session"
	"github.com/flowctl/agentrt/tools"
)

// toolResultOpenTag/toolResultCloseTag mirror streamparse's own
// <tool_result>...</tool_result> envelope so a tool-role history entry reads
// back to the model in the same grammar the Stream Parser already knows how
// to skip over in a replayed transcript.
const (
	toolResultOpenTag  = "<tool_result>"
	toolResultCloseTag = "</tool_result>"
)

// ToModelMessages renders a session AgentState's message history into the
// provider-agnostic transcript model.Client expects, per spec.md §4.6's
// "assemble the request from the current message history". There is no
// ConversationRole for a tool result, so a RoleTool entry is folded into a
// user-role message carrying the rendered envelope — mirroring how the
// Stream Parser treats inbound text containing that same envelope.
func ToModelMessages(history []session.Message) []*model.Message {
	out := make([]*model.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case session.RoleSystem:
			out = append(out, &model.Message{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: m.Text}}})
		case session.RoleUser:
			out = append(out, &model.Message{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: m.Text}}})
		case session.RoleAssistant:
			out = append(out, &model.Message{Role: model.ConversationRoleAssistant, Parts: []model.Part{model.TextPart{Text: m.Text}}})
		case session.RoleTool:
			out = append(out, &model.Message{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: renderToolResult(m.ToolResult)}}})
		}
	}
	return out
}

func renderToolResult(c *session.ToolResultContent) string {
	if c == nil {
		return toolResultOpenTag + toolResultCloseTag
	}
	raw, err := json.Marshal(map[string]any{
		"cb_tool_call_id": c.ToolCallID,
		"cb_tool_name":    string(c.ToolName),
		"output":          c.Output,
	})
	if err != nil {
		return fmt.Sprintf("%s{\"cb_tool_name\":%q}%s", toolResultOpenTag, c.ToolName, toolResultCloseTag)
	}
	return toolResultOpenTag + string(raw) + toolResultCloseTag
}

// ToolDefinitions builds the model.ToolDefinition list for the tools named by
// toolNames, looking each one up in registry. Unknown names are skipped; the
// Tool Registry (C1) is the source of truth for what a template may declare.
func ToolDefinitions(registry *tools.Registry, toolNames []tools.Ident) []*model.ToolDefinition {
	out := make([]*model.ToolDefinition, 0, len(toolNames))
	for _, name := range toolNames {
		spec, ok := registry.Resolve(name)
		if !ok {
			continue
		}
		var schema any
		if len(spec.Input.Schema) > 0 {
			_ = json.Unmarshal(spec.Input.Schema, &schema)
		}
		out = append(out, &model.ToolDefinition{
			Name:        string(spec.Name),
			Description: spec.Description,
			InputSchema: schema,
		})
	}
	return out
}
