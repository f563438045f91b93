package toolerrors

// RetryReason classifies why a tool call failed, giving a supervising agent
// or human-in-the-loop UI more to act on than a bare error string.
type RetryReason string

const (
	RetryReasonInvalidArguments RetryReason = "invalid_arguments"
	RetryReasonToolUnavailable  RetryReason = "tool_unavailable"
	RetryReasonTimeout          RetryReason = "timeout"
	RetryReasonRateLimited      RetryReason = "rate_limited"
)

// WithRetryHint attaches a RetryReason to a ToolError, returning a new
// ToolError so the original stays immutable for any other holder of it.
func WithRetryHint(err *ToolError, reason RetryReason) *ToolError {
	if err == nil {
		return nil
	}
	return &ToolError{Message: err.Message, Cause: err.Cause, Retry: reason}
}
