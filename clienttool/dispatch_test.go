package clienttool

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, string) {
	t.Helper()
	root := t.TempDir()
	return NewDispatcher(root), root
}

func TestDispatcher_WriteFileThenReadFilesRoundTrips(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	out := d.Dispatch(ctx, "write_file", map[string]any{"path": "a.txt", "content": "hello"})
	require.Len(t, out, 1)
	require.Equal(t, "json", out[0].Kind)

	out = d.Dispatch(ctx, "read_files", map[string]any{"paths": []any{"a.txt", "missing.txt"}})
	require.Len(t, out, 1)
	files, ok := out[0].Value.(map[string]*string)
	require.True(t, ok)
	require.NotNil(t, files["a.txt"])
	assert.Equal(t, "hello\n", *files["a.txt"])
	assert.Nil(t, files["missing.txt"])
}

func TestDispatcher_StrReplaceAppliesUniqueMatch(t *testing.T) {
	d, root := newTestDispatcher(t)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.go"), []byte("package x\nfunc old() {}\n"), 0o644))

	out := d.Dispatch(ctx, "str_replace", map[string]any{
		"path": "f.go", "old_string": "func old()", "new_string": "func new()",
	})
	require.Len(t, out, 1)
	require.Equal(t, "json", out[0].Kind)

	content, err := os.ReadFile(filepath.Join(root, "f.go"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "func new()")
}

func TestDispatcher_StrReplaceErrorsOnAmbiguousMatch(t *testing.T) {
	d, root := newTestDispatcher(t)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.go"), []byte("a\na\n"), 0o644))

	out := d.Dispatch(ctx, "str_replace", map[string]any{"path": "f.go", "old_string": "a", "new_string": "b"})
	require.Len(t, out, 1)
	errMap, ok := out[0].Value.(map[string]string)
	require.True(t, ok)
	assert.Contains(t, errMap["errorMessage"], "not unique")
}

func TestDispatcher_GlobMatchesProjectFiles(t *testing.T) {
	d, root := newTestDispatcher(t)
	ctx := context.Background()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "a.go"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "a.txt"), []byte("x"), 0o644))

	out := d.Dispatch(ctx, "glob", map[string]any{"pattern": "**/*.go"})
	require.Len(t, out, 1)
	matches, ok := out[0].Value.([]string)
	require.True(t, ok)
	assert.Equal(t, []string{"pkg/a.go"}, matches)
}

func TestDispatcher_RunTerminalCommandCapturesOutput(t *testing.T) {
	d, _ := newTestDispatcher(t)
	out := d.Dispatch(context.Background(), "run_terminal_command", map[string]any{"command": "echo hi"})
	require.Len(t, out, 1)
	result, ok := out[0].Value.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, result["output"], "hi")
}

func TestDispatcher_CodeSearchSkippedWithoutRipgrepBinary(t *testing.T) {
	if _, err := exec.LookPath(RipgrepPath); err != nil {
		t.Skip("ripgrep not installed in this environment")
	}
	d, root := newTestDispatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.go"), []byte("needle\n"), 0o644))

	out := d.Dispatch(context.Background(), "code_search", map[string]any{"pattern": "needle"})
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Text, "needle")
}

func TestDispatcher_UnknownToolProducesErrorPart(t *testing.T) {
	d, _ := newTestDispatcher(t)
	out := d.Dispatch(context.Background(), "not_a_tool", map[string]any{})
	require.Len(t, out, 1)
	errMap, ok := out[0].Value.(map[string]string)
	require.True(t, ok)
	assert.Contains(t, errMap["errorMessage"], "unknown tool")
}
