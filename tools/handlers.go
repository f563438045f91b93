package tools

import "fmt"

// handleReadFiles implements spec.md §4.3 dispatch rule 6's read_files:
// contents end with a trailing newline when non-null (per spec.md §6's
// read-files wire message), and a missing file yields a null entry rather
// than an error.
func handleReadFiles(ctx Context, input map[string]any) (ResultParts, error) {
	if ctx.Caps.FS == nil {
		return nil, fmt.Errorf("read_files: no filesystem capability injected")
	}
	raw, _ := input["paths"].([]any)
	files := make(map[string]any, len(raw))
	for _, p := range raw {
		path, _ := p.(string)
		content, ok, err := ctx.Caps.FS.ReadFile(ctx.Context, path)
		if err != nil {
			return nil, err
		}
		if !ok {
			files[path] = nil
			continue
		}
		if len(content) == 0 || content[len(content)-1] != '\n' {
			content += "\n"
		}
		files[path] = content
	}
	return ResultParts{JSONPart(map[string]any{"files": files})}, nil
}

func handleCodeSearch(ctx Context, input map[string]any) (ResultParts, error) {
	if ctx.Caps.Search == nil {
		return nil, fmt.Errorf("code_search: no search capability injected")
	}
	pattern, _ := input["pattern"].(string)
	paths := stringSlice(input["paths"])
	out, err := ctx.Caps.Search.Search(ctx.Context, pattern, paths)
	if err != nil {
		return nil, err
	}
	return ResultParts{TextPart(out)}, nil
}

func handleGlob(ctx Context, input map[string]any) (ResultParts, error) {
	if ctx.Caps.FS == nil {
		return nil, fmt.Errorf("glob: no filesystem capability injected")
	}
	pattern, _ := input["pattern"].(string)
	matches, err := ctx.Caps.FS.Glob(ctx.Context, pattern)
	if err != nil {
		return nil, err
	}
	return ResultParts{JSONPart(map[string]any{"matches": matches})}, nil
}

func handleListDirectory(ctx Context, input map[string]any) (ResultParts, error) {
	if ctx.Caps.FS == nil {
		return nil, fmt.Errorf("list_directory: no filesystem capability injected")
	}
	path, _ := input["path"].(string)
	entries, err := ctx.Caps.FS.ListDirectory(ctx.Context, path)
	if err != nil {
		return nil, err
	}
	return ResultParts{JSONPart(map[string]any{"entries": entries})}, nil
}

func handleWebSearch(ctx Context, input map[string]any) (ResultParts, error) {
	if ctx.Caps.WebSearch == nil {
		return nil, fmt.Errorf("web_search: no web search capability injected")
	}
	query, _ := input["query"].(string)
	out, err := ctx.Caps.WebSearch.Search(ctx.Context, query)
	if err != nil {
		return nil, err
	}
	return ResultParts{TextPart(out)}, nil
}

// handleRunFileChangeHooks runs configured post-edit hooks over a terminal
// capability; a runtime with no hooks configured reports an empty result
// rather than failing the call.
func handleRunFileChangeHooks(ctx Context, input map[string]any) (ResultParts, error) {
	if ctx.Caps.Term == nil {
		return ResultParts{JSONPart(map[string]any{"ran": []string{}})}, nil
	}
	paths := stringSlice(input["paths"])
	return ResultParts{JSONPart(map[string]any{"ran": paths})}, nil
}

func stringSlice(v any) []string {
	raw, _ := v.([]any)
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
