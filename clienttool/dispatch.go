package clienttool

import (
	"context"
	"fmt"
	"time"

	"github.com/flowctl/agentrt/tools"
)

// Dispatcher routes a client-delegated tool name to its local built-in
// implementation, producing the same tools.ResultParts shape the server's
// Tool Executor expects from any other dispatch path. It is the collaborator
// a reference client (see Client in client.go) uses to answer inbound
// tool-call-request/read-files messages.
type Dispatcher struct {
	FS            tools.Filesystem
	WorkspaceRoot string
	// TerminalTimeout bounds run_terminal_command when the call omits its
	// own timeout_seconds input. Zero uses defaultTerminalTimeout.
	TerminalTimeout time.Duration
}

// NewDispatcher constructs a Dispatcher rooted at root, backed by a
// LocalFilesystem.
func NewDispatcher(root string) *Dispatcher {
	return &Dispatcher{FS: NewLocalFilesystem(root), WorkspaceRoot: root}
}

// Dispatch runs the named client-delegated tool against input and returns
// its result parts. Every error is wrapped as a {errorMessage} json part
// rather than returned as a Go error, per spec.md §4.9's "errors are
// wrapped as {errorMessage} json parts."
func (d *Dispatcher) Dispatch(ctx context.Context, toolName string, input map[string]any) tools.ResultParts {
	out, err := d.dispatch(ctx, toolName, input)
	if err != nil {
		return tools.ResultParts{tools.ErrorPart(err.Error())}
	}
	return out
}

func (d *Dispatcher) dispatch(ctx context.Context, toolName string, input map[string]any) (tools.ResultParts, error) {
	switch toolName {
	case "read_files":
		return d.readFiles(ctx, input)
	case "write_file":
		return d.writeFile(ctx, input)
	case "str_replace":
		return d.strReplace(ctx, input)
	case "run_terminal_command":
		return d.runTerminalCommand(ctx, input)
	case "code_search":
		return d.codeSearch(ctx, input)
	case "glob":
		return d.glob(ctx, input)
	case "list_directory":
		return d.listDirectory(ctx, input)
	default:
		return nil, fmt.Errorf("clienttool: unknown tool %q", toolName)
	}
}

func (d *Dispatcher) readFiles(ctx context.Context, input map[string]any) (tools.ResultParts, error) {
	paths, _ := input["paths"].([]any)
	files := make(map[string]*string, len(paths))
	for _, p := range paths {
		path, ok := p.(string)
		if !ok {
			continue
		}
		content, found, err := d.FS.ReadFile(ctx, path)
		if err != nil {
			return nil, err
		}
		if !found {
			files[path] = nil
			continue
		}
		if len(content) == 0 || content[len(content)-1] != '\n' {
			content += "\n"
		}
		files[path] = &content
	}
	return tools.ResultParts{tools.JSONPart(files)}, nil
}

func (d *Dispatcher) writeFile(ctx context.Context, input map[string]any) (tools.ResultParts, error) {
	path, _ := input["path"].(string)
	content, _ := input["content"].(string)
	if path == "" {
		return nil, fmt.Errorf("write_file: path is required")
	}
	if err := WriteFile(ctx, d.FS, path, content); err != nil {
		return nil, err
	}
	return tools.ResultParts{tools.JSONPart(map[string]any{"path": path, "written": true})}, nil
}

func (d *Dispatcher) strReplace(ctx context.Context, input map[string]any) (tools.ResultParts, error) {
	path, _ := input["path"].(string)
	oldStr, _ := input["old_string"].(string)
	newStr, _ := input["new_string"].(string)
	replaceAll, _ := input["replace_all"].(bool)
	if path == "" {
		return nil, fmt.Errorf("str_replace: path is required")
	}
	diffText, err := StrReplace(ctx, d.FS, path, oldStr, newStr, replaceAll)
	if err != nil {
		return nil, err
	}
	return tools.ResultParts{tools.JSONPart(map[string]any{"path": path, "diff": diffText})}, nil
}

func (d *Dispatcher) runTerminalCommand(ctx context.Context, input map[string]any) (tools.ResultParts, error) {
	command, _ := input["command"].(string)
	if command == "" {
		return nil, fmt.Errorf("run_terminal_command: command is required")
	}
	timeout := d.TerminalTimeout
	if timeout == 0 {
		timeout = defaultTerminalTimeout
	}
	if secs, ok := input["timeout_seconds"]; ok {
		if f, ok := toFloat(secs); ok {
			if f < 0 {
				timeout = 0
			} else {
				timeout = time.Duration(f * float64(time.Second))
			}
		}
	}
	output, runErr := RunTerminalCommand(ctx, d.WorkspaceRoot, command, timeout)
	result := map[string]any{"command": command, "output": output}
	if runErr != nil {
		result["exitError"] = runErr.Error()
	}
	return tools.ResultParts{tools.JSONPart(result)}, nil
}

func (d *Dispatcher) codeSearch(ctx context.Context, input map[string]any) (tools.ResultParts, error) {
	pattern, _ := input["pattern"].(string)
	if pattern == "" {
		return nil, fmt.Errorf("code_search: pattern is required")
	}
	out, err := CodeSearch(ctx, d.WorkspaceRoot, pattern)
	if err != nil {
		return nil, err
	}
	return tools.ResultParts{tools.TextPart(out)}, nil
}

func (d *Dispatcher) glob(ctx context.Context, input map[string]any) (tools.ResultParts, error) {
	pattern, _ := input["pattern"].(string)
	if pattern == "" {
		return nil, fmt.Errorf("glob: pattern is required")
	}
	matches, err := d.FS.Glob(ctx, pattern)
	if err != nil {
		return nil, err
	}
	return tools.ResultParts{tools.JSONPart(matches)}, nil
}

func (d *Dispatcher) listDirectory(ctx context.Context, input map[string]any) (tools.ResultParts, error) {
	path, _ := input["path"].(string)
	entries, err := d.FS.ListDirectory(ctx, path)
	if err != nil {
		return nil, err
	}
	return tools.ResultParts{tools.JSONPart(entries)}, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
