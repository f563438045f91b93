package clienttool

import (
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
)

// skipDirs names directories a project-tree walk never descends into.
var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, ".idea": true, ".vscode": true,
}

// globWalk matches pattern (a gobwas/glob pattern with "/" as the path
// separator) against every file under root, returning root-relative paths.
func globWalk(root, pattern string) ([]string, error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, err
	}

	var matches []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if g.Match(rel) {
			matches = append(matches, rel)
		}
		return nil
	})
	return matches, err
}
