package tools

// ToolUnavailable is a reserved tool identifier for a call to a tool name
// that is not registered. No code in this module uses it: the Stream Parser
// (C2) reports an unknown tool name as an EventToolCallError with reason
// `Tool <n> not found`.
const ToolUnavailable Ident = "tool_unavailable"
