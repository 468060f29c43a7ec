package tools

import (
	"errors"
	"os"
	"path/filepath"
)

// Workspace provides file operations rooted at a scratch directory.
type Workspace struct {
	guard      *PathGuard
	allowWrite bool
}

// NewWorkspace builds a workspace rooted at baseDir, creating it when writes are allowed.
func NewWorkspace(baseDir string, allowWrite bool) (*Workspace, error) {
	guard, err := NewPathGuard(baseDir)
	if err != nil {
		return nil, err
	}
	if allowWrite {
		if err := os.MkdirAll(guard.BaseDir, 0o755); err != nil {
			return nil, err
		}
	}
	return &Workspace{guard: guard, allowWrite: allowWrite}, nil
}

// Root returns the absolute base directory.
func (w *Workspace) Root() string {
	return w.guard.BaseDir
}

// Sub returns a workspace rooted at a subdirectory.
func (w *Workspace) Sub(dir string) (*Workspace, error) {
	resolved, err := w.guard.Resolve(dir)
	if err != nil {
		return nil, err
	}
	return NewWorkspace(resolved, w.allowWrite)
}

// Path resolves rel inside the workspace without touching the disk.
func (w *Workspace) Path(rel string) (string, error) {
	return w.guard.Resolve(rel)
}

// WriteFile replaces the file at rel and returns its absolute path.
func (w *Workspace) WriteFile(rel string, content string) (string, error) {
	if !w.allowWrite {
		return "", errors.New("write is disabled by configuration")
	}
	resolved, err := w.guard.Resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return "", err
	}
	return resolved, nil
}

// ReadFile returns file contents.
func (w *Workspace) ReadFile(rel string) ([]byte, error) {
	resolved, err := w.guard.Resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(resolved)
}

// RemoveAll deletes rel and everything below it.
func (w *Workspace) RemoveAll(rel string) error {
	if !w.allowWrite {
		return errors.New("write is disabled by configuration")
	}
	resolved, err := w.guard.Resolve(rel)
	if err != nil {
		return err
	}
	if resolved == w.guard.BaseDir {
		return errors.New("refusing to remove the workspace root")
	}
	return os.RemoveAll(resolved)
}
