package clienttool

import (
	"context"
	"fmt"
	"strings"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"

	"github.com/flowctl/agentrt/tools"
)

// WriteFile overwrites path's entire contents through fs, per spec.md
// §4.9's write_file built-in.
func WriteFile(ctx context.Context, fs tools.Filesystem, path, content string) error {
	return fs.WriteFile(ctx, path, content)
}

// StrReplace implements spec.md §4.9's str_replace built-in: it replaces
// the first occurrence of oldStr with newStr, computes a unified diff of
// the change for display, and applies the result by writing the full file
// back through fs. Returns an error if oldStr does not appear, or appears
// more than once and the caller has not disambiguated (replaceAll=false).
func StrReplace(ctx context.Context, fs tools.Filesystem, path, oldStr, newStr string, replaceAll bool) (diffText string, err error) {
	original, ok, err := fs.ReadFile(ctx, path)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("str_replace: %s does not exist", path)
	}

	count := strings.Count(original, oldStr)
	switch {
	case count == 0:
		return "", fmt.Errorf("str_replace: old_string not found in %s", path)
	case count > 1 && !replaceAll:
		return "", fmt.Errorf("str_replace: old_string is not unique in %s (%d occurrences); pass replace_all or narrow the match", path, count)
	}

	n := 1
	if replaceAll {
		n = -1
	}
	updated := strings.Replace(original, oldStr, newStr, n)

	edits := myers.ComputeEdits(span.URIFromPath(path), original, updated)
	unified := gotextdiff.ToUnified(path, path, original, edits)

	if err := fs.WriteFile(ctx, path, updated); err != nil {
		return "", err
	}
	return fmt.Sprint(unified), nil
}
