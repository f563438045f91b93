// Package clienttool implements the Client Tool Bridge's client-side
// built-ins (C10): the handlers a connected client runs locally in answer
// to a tool-call-request/read-files message, per spec.md §4.9. This
// package is the reference client-side implementation shipped alongside
// the runtime's server; a real editor or CLI integration implements the
// same contract against its own CodebuffFileSystem.
package clienttool

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// LocalFilesystem implements tools.Filesystem (the CodebuffFileSystem
// contract) against the local OS filesystem, rooted at Root so relative
// tool paths cannot escape the project directory.
type LocalFilesystem struct {
	Root string
}

// NewLocalFilesystem constructs a LocalFilesystem rooted at root.
func NewLocalFilesystem(root string) *LocalFilesystem {
	return &LocalFilesystem{Root: root}
}

// resolve joins path against Root and rejects any result that escapes it.
func (fs *LocalFilesystem) resolve(path string) (string, error) {
	full := filepath.Join(fs.Root, path)
	rel, err := filepath.Rel(fs.Root, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", errors.New("path escapes project root: " + path)
	}
	return full, nil
}

// ReadFile implements tools.Filesystem.
func (fs *LocalFilesystem) ReadFile(_ context.Context, path string) (string, bool, error) {
	full, err := fs.resolve(path)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}

// WriteFile implements tools.Filesystem.
func (fs *LocalFilesystem) WriteFile(_ context.Context, path string, content string) error {
	full, err := fs.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, []byte(content), 0o644)
}

// ListDirectory implements tools.Filesystem.
func (fs *LocalFilesystem) ListDirectory(_ context.Context, path string) ([]string, error) {
	full, err := fs.resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return names, nil
}

// Glob implements tools.Filesystem using a compiled gobwas/glob matcher
// walked over the project tree, mirroring spec.md §4.9's "micromatch over
// the project file tree" without depending on a JS-ecosystem library.
func (fs *LocalFilesystem) Glob(_ context.Context, pattern string) ([]string, error) {
	return globWalk(fs.Root, pattern)
}
