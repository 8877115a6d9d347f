package files

import (
	"context"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/sidekick/internal/tools"
	"github.com/haasonsaas/sidekick/pkg/models"
)

// globMaxMatches bounds the match list so a loose pattern cannot flood the
// transcript.
const globMaxMatches = 500

// GlobTool finds files by glob pattern.
type GlobTool struct {
	cfg Config
}

// NewGlobTool creates a glob_file_search tool.
func NewGlobTool(cfg Config) *GlobTool {
	return &GlobTool{cfg: cfg}
}

func (t *GlobTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "glob_file_search",
		Description: "Find workspace files matching a glob pattern. Supports ** for recursive matches.",
		Cacheable:   true,
		Schema: tools.ObjectSchema(map[string]any{
			"pattern": map[string]any{"type": "string", "minLength": 1},
			"path":    map[string]any{"type": "string"},
		}, "pattern"),
	}
}

func (t *GlobTool) Execute(ctx context.Context, args map[string]any) *models.ToolResult {
	pattern, _ := args["pattern"].(string)
	base, _ := args["path"].(string)
	if base == "" {
		base = "."
	}

	abs, fail := resolve(t.cfg.Resolver, base)
	if fail != nil {
		return fail
	}

	var matches []any
	truncated := false
	err := filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			// Hidden directories like .git are noise for code search.
			if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel := t.cfg.Resolver.Rel(p)
		if !globMatch(pattern, rel) {
			return nil
		}
		if len(matches) >= globMaxMatches {
			truncated = true
			return filepath.SkipAll
		}
		matches = append(matches, map[string]any{"path": rel})
		return nil
	})
	if err != nil && ctx.Err() != nil {
		return models.Fail(models.CodeTimeout, "glob search cancelled")
	}

	return models.Succeed(map[string]any{
		"path":      t.cfg.Resolver.Rel(abs),
		"pattern":   pattern,
		"matches":   matches,
		"count":     len(matches),
		"truncated": truncated,
	})
}

// globMatch matches rel against pattern, treating a leading "**/" as "any
// directory depth, including none" and also accepting basename matches for
// bare patterns like "*.go".
func globMatch(pattern, rel string) bool {
	if ok, err := path.Match(pattern, rel); err == nil && ok {
		return true
	}
	if rest, found := strings.CutPrefix(pattern, "**/"); found {
		if ok, err := path.Match(rest, rel); err == nil && ok {
			return true
		}
		if ok, err := path.Match(rest, path.Base(rel)); err == nil && ok {
			return true
		}
		return false
	}
	if !strings.Contains(pattern, "/") {
		if ok, err := path.Match(pattern, path.Base(rel)); err == nil && ok {
			return true
		}
	}
	return false
}
