// Package files implements the workspace-scoped file tools: list_dir,
// read_file, write_file and glob_file_search. Every path is resolved through
// the workspace resolver; escapes fail with E_PATH_ESCAPE before any I/O.
package files

import (
	"errors"
	"fmt"
	"os"

	"github.com/haasonsaas/sidekick/internal/patch"
	"github.com/haasonsaas/sidekick/internal/workspace"
	"github.com/haasonsaas/sidekick/pkg/models"
)

// Config wires the file tools to their collaborators.
type Config struct {
	Resolver *workspace.Resolver

	// Engine journals write_file operations so they are undoable and so the
	// cache learns about changed paths.
	Engine *patch.Engine

	// MaxReadBytes caps read_file content; larger reads are truncated with
	// a marker. Zero means 200 KB.
	MaxReadBytes int
}

func (c Config) maxReadBytes() int {
	if c.MaxReadBytes > 0 {
		return c.MaxReadBytes
	}
	return 200_000
}

// resolve maps a tool path argument to an absolute path, translating
// resolver failures to the tool error surface.
func resolve(r *workspace.Resolver, path string) (string, *models.ToolResult) {
	abs, err := r.Resolve(path)
	if err != nil {
		if errors.Is(err, workspace.ErrEscape) {
			return "", models.Fail(models.CodePathEscape,
				fmt.Sprintf("path %q escapes the workspace", path))
		}
		return "", models.Fail(models.CodeInvalidArgs, err.Error())
	}
	return abs, nil
}

// statError maps a filesystem error to a tool result.
func statError(path string, err error) *models.ToolResult {
	if os.IsNotExist(err) {
		return models.Fail(models.CodeNotFound, fmt.Sprintf("%q does not exist", path))
	}
	return models.Fail(models.CodeIO, fmt.Sprintf("%q: %v", path, err))
}
