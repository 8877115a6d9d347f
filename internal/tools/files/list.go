package files

import (
	"context"
	"os"
	"sort"

	"github.com/haasonsaas/sidekick/internal/tools"
	"github.com/haasonsaas/sidekick/pkg/models"
)

// ListDirTool lists directory entries.
type ListDirTool struct {
	cfg Config
}

// NewListDirTool creates a list_dir tool.
func NewListDirTool(cfg Config) *ListDirTool {
	return &ListDirTool{cfg: cfg}
}

func (t *ListDirTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "list_dir",
		Description: "List the entries of a workspace directory.",
		Cacheable:   true,
		Schema: tools.ObjectSchema(map[string]any{
			"path": map[string]any{"type": "string", "minLength": 1},
		}, "path"),
	}
}

func (t *ListDirTool) Execute(ctx context.Context, args map[string]any) *models.ToolResult {
	path, _ := args["path"].(string)
	abs, fail := resolve(t.cfg.Resolver, path)
	if fail != nil {
		return fail
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return statError(path, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	listed := make([]any, 0, len(entries))
	for _, entry := range entries {
		kind := "file"
		if entry.IsDir() {
			kind = "dir"
		}
		item := map[string]any{
			"name": entry.Name(),
			"type": kind,
		}
		if info, err := entry.Info(); err == nil && !entry.IsDir() {
			item["size"] = info.Size()
		}
		listed = append(listed, item)
	}

	return models.Succeed(map[string]any{
		"path":    t.cfg.Resolver.Rel(abs),
		"entries": listed,
		"count":   len(listed),
	})
}
