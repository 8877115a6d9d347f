// Package workspace confines all file access to the workspace root. Every
// tool that touches the filesystem resolves its path argument here first.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscape is returned when a path resolves outside the workspace root,
// whether through "..", symlinks or an absolute path pointing elsewhere.
var ErrEscape = errors.New("path escapes workspace")

// Resolver resolves and validates workspace-relative paths.
type Resolver struct {
	Root string
}

// NewResolver returns a resolver anchored at root. The root is made absolute
// once so later resolutions are cheap and stable even if the process chdirs.
func NewResolver(root string) (*Resolver, error) {
	clean := strings.TrimSpace(root)
	if clean == "" {
		clean = "."
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	return &Resolver{Root: abs}, nil
}

// Resolve returns an absolute, cleaned path within the workspace root.
// Escaping paths fail with ErrEscape; callers map that to their own error
// surface.
func (r *Resolver) Resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", fmt.Errorf("path is required")
	}
	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(r.Root, clean)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if !r.contains(targetAbs) {
		return "", ErrEscape
	}
	// Symlinks inside the tree can still point outside it. Resolve the
	// deepest existing ancestor and re-check.
	resolved, err := resolveExisting(targetAbs)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if !r.contains(resolved) {
		return "", ErrEscape
	}
	return targetAbs, nil
}

// Rel returns the workspace-relative form of an absolute path, for display
// and journal records.
func (r *Resolver) Rel(abs string) string {
	rel, err := filepath.Rel(r.Root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

func (r *Resolver) contains(abs string) bool {
	rel, err := filepath.Rel(r.Root, abs)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)))
}

// resolveExisting evaluates symlinks on the longest existing prefix of path
// and rejoins the non-existing suffix.
func resolveExisting(path string) (string, error) {
	current := path
	var suffix []string
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(suffix) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, suffix[i])
			}
			return resolved, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return path, nil
		}
		suffix = append(suffix, filepath.Base(current))
		current = parent
	}
}
