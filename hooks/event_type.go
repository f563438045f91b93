package hooks

// EventType identifies the concrete kind of a hook Event, letting subscribers
// filter or route on the bus without type assertions.
type EventType string

const (
	// RunStarted fires when a run begins execution.
	RunStarted EventType = "run_started"
	// RunCompleted fires after a run finishes, successfully or not.
	RunCompleted EventType = "run_completed"
	// RunPaused fires when a run is intentionally paused.
	RunPaused EventType = "run_paused"
	// RunResumed fires when a paused run resumes.
	RunResumed EventType = "run_resumed"
	// RunPhaseChanged fires when a run transitions between lifecycle phases.
	RunPhaseChanged EventType = "run_phase_changed"
	// AgentRunStarted fires when an agent-as-tool child run is started.
	AgentRunStarted EventType = "agent_run_started"

	// ToolCallScheduled fires when the runtime schedules a tool for execution.
	ToolCallScheduled EventType = "tool_call_scheduled"
	// ToolCallUpdated fires when a tool call's metadata is updated.
	ToolCallUpdated EventType = "tool_call_updated"
	// ToolResultReceived fires when a tool call completes.
	ToolResultReceived EventType = "tool_result_received"
	// ToolCallArgsDelta streams an incremental fragment of a tool call's
	// arguments as they are produced by the model.
	ToolCallArgsDelta EventType = "tool_call_args_delta"
	// ChildRunLinked fires when an agent-as-tool call spawns a child run.
	ChildRunLinked EventType = "child_run_linked"

	// PlannerNote fires when the planner emits an annotation or thought.
	PlannerNote EventType = "planner_note"
	// ThinkingBlock fires when the planner emits a structured reasoning block.
	ThinkingBlock EventType = "thinking_block"
	// AssistantMessage fires when a final assistant response is produced.
	AssistantMessage EventType = "assistant_message"

	// RetryHintIssued fires when the planner or runtime suggests a retry
	// policy change.
	RetryHintIssued EventType = "retry_hint_issued"
	// MemoryAppended fires when new memory entries are persisted.
	MemoryAppended EventType = "memory_appended"
	// PolicyDecision captures the outcome of a policy evaluation.
	PolicyDecision EventType = "policy_decision"
	// Usage reports token usage for a model invocation.
	Usage EventType = "usage"
	// HardProtectionTriggered signals a hard protection was applied to avoid
	// a pathological loop.
	HardProtectionTriggered EventType = "hard_protection_triggered"

	// AwaitClarification indicates the planner requested a human clarification.
	AwaitClarification EventType = "await_clarification"
	// AwaitConfirmation indicates the runtime requested an operator confirmation.
	AwaitConfirmation EventType = "await_confirmation"
	// AwaitQuestions indicates the planner requested answers to structured
	// multiple-choice questions.
	AwaitQuestions EventType = "await_questions"
	// AwaitExternalTools indicates the planner requested out-of-band tool
	// execution.
	AwaitExternalTools EventType = "await_external_tools"
	// ToolAuthorization indicates an operator approved or denied a pending
	// tool call.
	ToolAuthorization EventType = "tool_authorization"
)

// String returns the wire representation of the event type.
func (t EventType) String() string { return string(t) }
