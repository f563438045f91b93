// Package session defines the in-memory, per-run agent state and the
// declarative agent templates that describe how an agent type behaves: the
// Session State component (C8) of the runtime. This is server-authoritative
// bookkeeping for one run's agent tree, not the durable cross-restart
// session/run metadata store (see the run package for that concern).
package session

import (
	"sync"

	"github.com/flowctl/agentrt/agent"
	"github.com/flowctl/agentrt/tools"
)

// Role is the speaker role for a Message, per spec.md §3.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// ToolResultContent is the structured content of a tool-role Message.
type ToolResultContent struct {
	ToolCallID string
	ToolName   tools.Ident
	Output     tools.ResultParts
}

// Message is one entry in an AgentState's message history. Content is
// either plain Text or a structured ToolResult, never both, per spec.md §3.
type Message struct {
	Role Role
	Text string
	// ToolResult is non-nil for Role == RoleTool messages.
	ToolResult *ToolResultContent

	// TimeToLive and KeepDuringTruncation are opaque history-compaction
	// hints. This runtime does not implement compaction (spec.md §1
	// Non-goals); it must preserve both flags verbatim when copying or
	// replacing history so a future compactor can honor them.
	TimeToLive           *int
	KeepDuringTruncation bool
}

// OutputMode selects how an AgentTemplate's final AgentOutput is derived
// from its message history, per spec.md §3.
type OutputMode string

const (
	OutputModeLastMessage      OutputMode = "last_message"
	OutputModeAllMessages      OutputMode = "all_messages"
	OutputModeStructuredOutput OutputMode = "structured_output"
)

// HandleStepsKind distinguishes a trusted, in-process generator from one
// whose source runs inside the JS Sandbox Manager (C4).
type HandleStepsKind string

const (
	HandleStepsNative    HandleStepsKind = "native"
	HandleStepsSandboxed HandleStepsKind = "sandboxed"
)

// HandleSteps is an AgentTemplate's optional programmatic step generator.
// Exactly one of Native or Source is meaningful, selected by Kind.
type HandleSteps struct {
	Kind HandleStepsKind
	// Native is invoked directly, in-process, when Kind is HandleStepsNative.
	// The sandbox package does not need to know its signature; it is opaque
	// to session and bound by the Agent Loop (C6).
	Native any
	// Source is the generator's JavaScript source, run by the JS Sandbox
	// Manager (C4) when Kind is HandleStepsSandboxed.
	Source string
}

// AgentTemplate is the declarative definition of one agent kind, per
// spec.md §3. Templates are immutable once loaded; AgentState is the
// mutable per-run counterpart.
type AgentTemplate struct {
	ID            agent.Ident
	DisplayName   string
	Model         string
	SpawnerPrompt string

	InputSchema  []byte
	OutputSchema []byte
	OutputMode   OutputMode

	ToolNames       []tools.Ident
	SpawnableAgents []agent.Ident

	SystemPrompt       string
	InstructionsPrompt string
	StepPrompt         string

	IncludeMessageHistory     bool
	InheritParentSystemPrompt bool

	HandleSteps *HandleSteps

	// ParentInstructions maps a parent agent id to extra guidance injected
	// into this template's prompt only when spawned by that specific
	// parent (spec.md §3).
	ParentInstructions map[agent.Ident]string
}

// AgentOutputType tags the AgentOutput union, per spec.md §3.
type AgentOutputType string

const (
	AgentOutputStructured  AgentOutputType = "structuredOutput"
	AgentOutputLastMessage AgentOutputType = "lastMessage"
	AgentOutputAllMessages AgentOutputType = "allMessages"
	AgentOutputError       AgentOutputType = "error"
)

// AgentOutput is the tagged union an agent run produces, per spec.md §3.
type AgentOutput struct {
	Type AgentOutputType
	// Value holds the structuredOutput value or the allMessages list,
	// depending on Type.
	Value any
	// Message holds lastMessage's text or error's message, depending on Type.
	Message string
}

// AgentState is the mutable, per-run bookkeeping for one agent instance,
// per spec.md §3. A single AgentState is owned and mutated only by its own
// Agent Loop (C6) goroutine, but StepsRemaining/MessageHistory accessors are
// still mutex-guarded because the Tool Executor (C3) and stream readers
// observe them concurrently from other goroutines (spec.md §5).
type AgentState struct {
	mu sync.RWMutex

	AgentID   agent.ID
	RunID     agent.RunID
	AgentType agent.Ident
	ParentID  agent.ID // empty for the main agent

	messageHistory []Message
	output         *AgentOutput
	stepsRemaining int

	DirectCreditsUsed int
	childRunIDs       []agent.RunID

	// AgentContext is a free-form scratchpad; handleSteps generators and
	// host tool overrides may read and write it across steps.
	AgentContext map[string]any
}

// NewAgentState constructs an AgentState with the given identity and step
// budget. stepsRemaining must be >= 0.
func NewAgentState(id agent.ID, runID agent.RunID, agentType agent.Ident, parentID agent.ID, stepsRemaining int) *AgentState {
	if stepsRemaining < 0 {
		stepsRemaining = 0
	}
	return &AgentState{
		AgentID:        id,
		RunID:          runID,
		AgentType:      agentType,
		ParentID:       parentID,
		stepsRemaining: stepsRemaining,
		AgentContext:   make(map[string]any),
	}
}

// AppendMessage appends one message to the history, preserving order.
func (s *AgentState) AppendMessage(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageHistory = append(s.messageHistory, m)
}

// MessageHistory returns a snapshot copy of the current message history.
func (s *AgentState) MessageHistory() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messageHistory))
	copy(out, s.messageHistory)
	return out
}

// ReplaceMessageHistory implements the set_messages dispatch rule
// (spec.md §4.3 rule 3): wholesale replacement, not append.
func (s *AgentState) ReplaceMessageHistory(messages []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageHistory = messages
}

// Output returns the AgentOutput set so far, or nil if none has been set.
func (s *AgentState) Output() *AgentOutput {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.output
}

// SetOutput implements the set_output dispatch rule (spec.md §4.3 rule 2).
func (s *AgentState) SetOutput(out *AgentOutput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output = out
}

// StepsRemaining returns the current LLM step budget.
func (s *AgentState) StepsRemaining() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stepsRemaining
}

// DecrementStep consumes one LLM step. It never takes the counter below
// zero, per spec.md §3's invariant ("decreases monotonically ... never
// goes negative").
func (s *AgentState) DecrementStep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stepsRemaining > 0 {
		s.stepsRemaining--
	}
}

// AddChildRun records a spawned child's run id, preserving spawn order
// (spec.md §3: "childRunIds on the parent lists every direct child").
func (s *AgentState) AddChildRun(id agent.RunID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.childRunIDs = append(s.childRunIDs, id)
}

// ChildRunIDs returns a snapshot copy of the child run ids recorded so far.
func (s *AgentState) ChildRunIDs() []agent.RunID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]agent.RunID, len(s.childRunIDs))
	copy(out, s.childRunIDs)
	return out
}

// SessionState is the opaque, round-trippable snapshot exchanged with the
// client, per spec.md §3. The server is authoritative: ResetClientCounters
// must be called on every inbound SessionState before it is trusted, so a
// client cannot forge cost accounting.
type SessionState struct {
	MainAgentState        *AgentState
	FileContext           map[string]string
	AgentTemplates        map[agent.Ident]*AgentTemplate
	CustomToolDefinitions []*tools.ToolSpec
	ChangesSinceLastChat  []string
	ShellConfigFiles      map[string]string
	SystemInfo            map[string]any
	GitChanges            []string
	KnowledgeFiles        map[string]string
}

// ResetClientCounters zeroes any cost/usage counters the client may have
// sent back, per spec.md §3: "the server is authoritative and must reset
// client-provided cost counters to zero on entry."
func (s *SessionState) ResetClientCounters() {
	if s.MainAgentState == nil {
		return
	}
	s.MainAgentState.mu.Lock()
	s.MainAgentState.DirectCreditsUsed = 0
	s.MainAgentState.mu.Unlock()
}
