// Package wire implements the Wire Protocol (C9): the bidirectional,
// ordered JSON message channel between a prompt client and the runtime,
// and the server side of the Client Tool Bridge (C10) built on top of it,
// per spec.md §4.9 and §6's normative payload shapes.
package wire

import (
	"encoding/json"

	"github.com/flowctl/agentrt/tools"
)

// Client -> server action discriminators.
const (
	ActionPrompt            = "prompt"
	ActionInit              = "init"
	ActionCancelUserInput   = "cancel-user-input"
	ActionReadFilesResponse = "read-files-response"
	ActionToolCallResponse  = "tool-call-response"
	ActionMCPToolData       = "mcp-tool-data"
)

// Server -> client action discriminators.
const (
	ActionResponseChunk         = "response-chunk"
	ActionSubagentResponseChunk = "subagent-response-chunk"
	ActionReadFiles             = "read-files"
	ActionToolCallRequest       = "tool-call-request"
	ActionRequestMCPToolData    = "request-mcp-tool-data"
	ActionPromptResponse        = "prompt-response"
	ActionPromptError           = "prompt-error"
	ActionUsageResponse         = "usage-response"
	ActionHandleStepsLogChunk   = "handlesteps-log-chunk"
	ActionAgentEvent            = "agent-event"
)

// Envelope is the minimal shape every message shares: just enough to read
// the discriminator and re-decode into the concrete type it names.
type Envelope struct {
	Type string `json:"type"`
}

// ToolResultPart is the wire shape of one already-resolved tool result
// carried on a prompt message's toolResults array.
type ToolResultPart struct {
	ToolCallID string            `json:"toolCallId"`
	Output     tools.ResultParts `json:"output"`
}

// PromptMessage is the client->server "prompt" action: §6 `{ type:"prompt",
// promptId, prompt, fingerprintId, authToken, costMode, sessionState,
// toolResults:[] }`.
type PromptMessage struct {
	Type          string           `json:"type"`
	PromptID      string           `json:"promptId"`
	Prompt        string           `json:"prompt"`
	FingerprintID string           `json:"fingerprintId"`
	AuthToken     string           `json:"authToken"`
	CostMode      string           `json:"costMode"`
	SessionState  json.RawMessage  `json:"sessionState"`
	ToolResults   []ToolResultPart `json:"toolResults,omitempty"`
}

// InitMessage is the client->server "init" action establishing a connection
// identity before any prompt is sent.
type InitMessage struct {
	Type          string `json:"type"`
	FingerprintID string `json:"fingerprintId"`
	AuthToken     string `json:"authToken"`
}

// CancelUserInputMessage is the client->server "cancel-user-input" action:
// §4.9's cancellation entry point.
type CancelUserInputMessage struct {
	Type      string `json:"type"`
	PromptID  string `json:"promptId"`
	AuthToken string `json:"authToken"`
}

// ReadFilesResponseMessage answers a server-issued ReadFilesMessage. A nil
// entry in Files means the path does not exist; non-nil contents always end
// with a trailing newline per §6.
type ReadFilesResponseMessage struct {
	Type      string             `json:"type"`
	RequestID string             `json:"requestId"`
	Files     map[string]*string `json:"files"`
}

// ToolCallResponseMessage answers a server-issued ToolCallRequestMessage.
type ToolCallResponseMessage struct {
	Type      string            `json:"type"`
	RequestID string            `json:"requestId"`
	Output    tools.ResultParts `json:"output"`
}

// MCPToolDataMessage answers a server-issued RequestMCPToolDataMessage.
type MCPToolDataMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Data      json.RawMessage `json:"data"`
}

// ChunkType enumerates the streaming event kinds carried inside a
// response-chunk's "chunk" field, per §6.
type ChunkType string

const (
	ChunkStart          ChunkType = "start"
	ChunkText           ChunkType = "text"
	ChunkReasoning      ChunkType = "reasoning"
	ChunkToolCall       ChunkType = "tool_call"
	ChunkToolResult     ChunkType = "tool_result"
	ChunkSubagentStart  ChunkType = "subagent_start"
	ChunkSubagentFinish ChunkType = "subagent_finish"
	ChunkFinish         ChunkType = "finish"
)

// Chunk is the tagged-union payload of a response-chunk/subagent-response-chunk
// message. Only the fields relevant to Type are populated; the rest are left
// zero and omitted from the wire encoding.
type Chunk struct {
	Type                 ChunkType         `json:"type"`
	AgentID              string            `json:"agentId,omitempty"`
	ParentAgentID        string            `json:"parentAgentId,omitempty"`
	MessageHistoryLength int               `json:"messageHistoryLength,omitempty"`
	Text                 string            `json:"text,omitempty"`
	ToolCallID           string            `json:"toolCallId,omitempty"`
	ToolName             string            `json:"toolName,omitempty"`
	Input                map[string]any    `json:"input,omitempty"`
	Output               tools.ResultParts `json:"output,omitempty"`
	AgentType            string            `json:"agentType,omitempty"`
	TotalCost            float64           `json:"totalCost,omitempty"`
}

// ResponseChunkMessage is the server->client "response-chunk" action.
type ResponseChunkMessage struct {
	Type        string `json:"type"`
	UserInputID string `json:"userInputId"`
	Chunk       Chunk  `json:"chunk"`
}

// SubagentResponseChunkMessage is the server->client "subagent-response-chunk"
// action, identical to ResponseChunkMessage but tagged with the child agent's
// identity so a consumer can demultiplex nested streams.
type SubagentResponseChunkMessage struct {
	Type            string `json:"type"`
	UserInputID     string `json:"userInputId"`
	AgentID         string `json:"agentId"`
	AgentType       string `json:"agentType"`
	Chunk           Chunk  `json:"chunk"`
	Prompt          string `json:"prompt,omitempty"`
	ForwardToPrompt bool   `json:"forwardToPrompt,omitempty"`
}

// ReadFilesMessage is the server->client "read-files" action, part of the
// Client Tool Bridge's read_files round trip.
type ReadFilesMessage struct {
	Type      string   `json:"type"`
	RequestID string   `json:"requestId"`
	FilePaths []string `json:"filePaths"`
}

// ToolCallRequestMessage is the server->client "tool-call-request" action:
// the Client Tool Bridge asking the client to run one client-delegated tool.
type ToolCallRequestMessage struct {
	Type        string         `json:"type"`
	RequestID   string         `json:"requestId"`
	UserInputID string         `json:"userInputId"`
	ToolName    string         `json:"toolName"`
	Input       map[string]any `json:"input"`
	Timeout     *float64       `json:"timeout,omitempty"`
	MCPConfig   map[string]any `json:"mcpConfig,omitempty"`
}

// RequestMCPToolDataMessage is the server->client "request-mcp-tool-data"
// action.
type RequestMCPToolDataMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	ServerID  string `json:"serverId"`
}

// PromptResponseMessage is the server->client "prompt-response" action
// completing a prompt.
type PromptResponseMessage struct {
	Type         string            `json:"type"`
	PromptID     string            `json:"promptId"`
	SessionState json.RawMessage   `json:"sessionState"`
	ToolCalls    []json.RawMessage `json:"toolCalls"`
	ToolResults  []ToolResultPart  `json:"toolResults"`
	Output       any               `json:"output"`
}

// PromptErrorMessage is the server->client "prompt-error" action, emitted on
// transport failures or top-level validation errors (§7's taxonomy rules 1
// and 7).
type PromptErrorMessage struct {
	Type        string `json:"type"`
	UserInputID string `json:"userInputId"`
	Message     string `json:"message"`
}

// UsageResponseMessage is the server->client "usage-response" action
// reporting accumulated cost/token usage for a prompt.
type UsageResponseMessage struct {
	Type      string  `json:"type"`
	PromptID  string  `json:"promptId"`
	TotalCost float64 `json:"totalCost"`
}

// HandleStepsLogChunkMessage is the server->client "handlesteps-log-chunk"
// action streaming console output produced by a sandboxed handleSteps
// generator (§4.4).
type HandleStepsLogChunkMessage struct {
	Type    string `json:"type"`
	AgentID string `json:"agentId"`
	Stream  string `json:"stream"`
	Text    string `json:"text"`
}

// AgentEventMessage is the server->client "agent-event" action: a generic
// envelope carrying any stream.Event this protocol does not already give a
// dedicated, narrowly-typed message to (planner thoughts, await-clarification
// prompts, child-run linkage, tool-call argument deltas, and so on).
// EventType and Payload mirror stream.Event.Type()/Payload() verbatim, so a
// client that already understands the stream package's event catalog needs
// no second decoder.
type AgentEventMessage struct {
	Type      string `json:"type"`
	EventType string `json:"eventType"`
	RunID     string `json:"runId"`
	SessionID string `json:"sessionId,omitempty"`
	Payload   any    `json:"payload"`
}
