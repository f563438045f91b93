package clienttool

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

const codeSearchTimeout = 15 * time.Second

// RipgrepPath names the ripgrep binary CodeSearch runs. The default is the
// bare name "rg", which exec looks up on PATH at each call. Overridable in
// tests.
var RipgrepPath = "rg"

// CodeSearch delegates to the ripgrep binary named by RipgrepPath, per spec.md §4.9's
// code_search built-in. It returns ripgrep's own line-oriented output
// verbatim; the caller wraps failures as {errorMessage} parts.
func CodeSearch(ctx context.Context, dir, pattern string, extraArgs ...string) (string, error) {
	searchCtx, cancel := context.WithTimeout(ctx, codeSearchTimeout)
	defer cancel()

	args := append([]string{"--line-number", "--no-heading", "--color", "never"}, extraArgs...)
	args = append(args, pattern)

	cmd := exec.CommandContext(searchCtx, RipgrepPath, args...)
	cmd.Dir = dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	// ripgrep exits 1 when it finds no matches; that's not a tool failure.
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return "", nil
		}
		return "", err
	}
	return out.String(), nil
}
