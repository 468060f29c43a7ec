package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrPathEscape is returned for paths that leave the guarded directory.
	ErrPathEscape = errors.New("path escapes base directory")
	// ErrAbsolutePath is returned for absolute paths; callers pass paths relative to the base.
	ErrAbsolutePath = errors.New("absolute paths are not allowed")
)

// PathGuard confines scratch and media paths to a base directory.
type PathGuard struct {
	BaseDir string
}

// NewPathGuard roots a guard at baseDir, or at the working directory when empty.
func NewPathGuard(baseDir string) (*PathGuard, error) {
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		baseDir = wd
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", baseDir, err)
	}
	return &PathGuard{BaseDir: abs}, nil
}

// Resolve returns the absolute form of the relative path p inside BaseDir.
func (g *PathGuard) Resolve(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errors.New("path is required")
	}
	if filepath.IsAbs(p) {
		return "", fmt.Errorf("%s: %w", p, ErrAbsolutePath)
	}
	abs := filepath.Join(g.BaseDir, p)
	rel, err := filepath.Rel(g.BaseDir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", p, ErrPathEscape)
	}
	return abs, nil
}

// Segment validates name as a single directory entry, such as a run identifier.
func Segment(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errors.New("name is required")
	case name == "." || name == "..":
		return fmt.Errorf("%q: %w", name, ErrPathEscape)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%q must not contain path separators", name)
	}
	return nil
}
