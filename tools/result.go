package tools

import "context"

// ResultPart is the tagged union spec.md §3 defines for a ToolResult's output:
// either a structured JSON value or plain text. An error is conventionally a
// "json" part carrying {errorMessage}.
type ResultPart struct {
	Kind string `json:"kind"` // "json" or "text"
	// Value holds the decoded payload for a "json" part.
	Value any `json:"value,omitempty"`
	// Text holds the payload for a "text" part.
	Text string `json:"text,omitempty"`
}

// ResultParts is the ordered output of one tool call.
type ResultParts []ResultPart

// JSONPart builds a "json" result part.
func JSONPart(value any) ResultPart { return ResultPart{Kind: "json", Value: value} }

// TextPart builds a "text" result part.
func TextPart(text string) ResultPart { return ResultPart{Kind: "text", Text: text} }

// ErrorPart builds the conventional error-shaped "json" part.
func ErrorPart(message string) ResultPart {
	return ResultPart{Kind: "json", Value: map[string]string{"errorMessage": message}}
}

// Filesystem is the injected "CodebuffFileSystem" collaborator spec.md §1
// treats as external: built-in file tools read and write through it rather
// than touching the OS filesystem directly, so a host can sandbox or
// virtualize project files.
type Filesystem interface {
	ReadFile(ctx context.Context, path string) (content string, ok bool, err error)
	WriteFile(ctx context.Context, path string, content string) error
	ListDirectory(ctx context.Context, path string) ([]string, error)
	Glob(ctx context.Context, pattern string) ([]string, error)
}

// Terminal runs a shell command and collects its output, backing
// run_terminal_command.
type Terminal interface {
	Run(ctx context.Context, command string, timeoutSeconds int) (output string, exitCode int, err error)
}

// Searcher backs code_search (ripgrep-style content search).
type Searcher interface {
	Search(ctx context.Context, pattern string, paths []string) (string, error)
}

// WebSearcher backs web_search.
type WebSearcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Capabilities bundles the injected collaborators a built-in local handler
// may need. A runtime wires concrete implementations; handlers only depend
// on the subset of methods relevant to the tool they implement.
type Capabilities struct {
	FS        Filesystem
	Term      Terminal
	Search    Searcher
	WebSearch WebSearcher
}

// Context carries the run-scoped capabilities a built-in local handler needs
// plus the standard cancellation context.
type Context struct {
	context.Context
	// RunID identifies the run the call belongs to, for capability
	// implementations that scope resources (e.g. a working directory) per run.
	RunID string
	// AgentID identifies the calling agent instance, for capabilities that
	// need to attribute side effects (e.g. logging) to a specific agent.
	AgentID string
	Caps Capabilities
}
