package agentloop

import (
	"context"
	"strings"
)

// directCommandPrefixes lists the whitelisted shell-command prefixes spec.md
// §4.6 allows to bypass the LLM entirely on the first turn of the main
// agent: "if user input looks like a raw shell command ... dispatch
// run_terminal_command directly, end turn".
var directCommandPrefixes = []string{"git", "npm", "ls", "pwd"}

// directCommandBlacklist names inputs that look like a whitelisted prefix but
// must never bypass the LLM, per spec.md §4.6's explicit blacklist.
var directCommandBlacklist = []string{"halt", "reboot"}

// DetectDirectCommand reports whether input should be dispatched straight to
// run_terminal_command, and the command text to run. It first rejects any
// directCommandBlacklist entry and any "yes ..." input, then recognizes a
// leading "!" or "/run <cmd>" escape, or an input whose first word is one of
// directCommandPrefixes. It never consults a classifier itself; Loop does
// that for some of the inputs this function rejects.
func DetectDirectCommand(input string) (command string, ok bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", false
	}

	lower := strings.ToLower(trimmed)
	for _, blocked := range directCommandBlacklist {
		if lower == blocked || strings.HasPrefix(lower, blocked+" ") {
			return "", false
		}
	}
	if strings.HasPrefix(lower, "yes ") || lower == "yes" {
		return "", false
	}

	if strings.HasPrefix(trimmed, "!") {
		return strings.TrimSpace(strings.TrimPrefix(trimmed, "!")), true
	}
	if strings.HasPrefix(trimmed, "/run ") {
		return strings.TrimSpace(strings.TrimPrefix(trimmed, "/run ")), true
	}

	firstWord := trimmed
	if i := strings.IndexByte(trimmed, ' '); i >= 0 {
		firstWord = trimmed[:i]
	}
	for _, prefix := range directCommandPrefixes {
		if firstWord == prefix {
			return trimmed, true
		}
	}
	return "", false
}

// Classifier is the low-cost LLM fallback described in spec.md §4.6 for
// inputs the deterministic whitelist/blacklist does not accept. Loop calls it
// only when one is configured, DetectDirectCommand returned false, and the
// input passes looksCommandShaped (non-empty, shorter than 200 bytes, no
// newline), bounded by classifierTimeout.
type Classifier interface {
	// IsShellCommand classifies input, falling through to normal LLM
	// processing on error or ctx deadline exceeded per spec.md §4.6
	// ("falling through to normal LLM processing on failure").
	IsShellCommand(ctx context.Context, input string) (bool, error)
}
