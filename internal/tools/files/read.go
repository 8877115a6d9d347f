package files

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/sidekick/internal/tools"
	"github.com/haasonsaas/sidekick/pkg/models"
)

// ReadFileTool reads file content with optional line offset and limit.
type ReadFileTool struct {
	cfg Config
}

// NewReadFileTool creates a read_file tool.
func NewReadFileTool(cfg Config) *ReadFileTool {
	return &ReadFileTool{cfg: cfg}
}

func (t *ReadFileTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "read_file",
		Description: "Read a file in the workspace. Supports line offset and limit for large files.",
		Cacheable:   true,
		Schema: tools.ObjectSchema(map[string]any{
			"path":   map[string]any{"type": "string", "minLength": 1},
			"offset": map[string]any{"type": "integer", "minimum": 0},
			"limit":  map[string]any{"type": "integer", "minimum": 1},
		}, "path"),
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]any) *models.ToolResult {
	path, _ := args["path"].(string)
	offset := intArg(args, "offset", 0)
	limit := intArg(args, "limit", 0)

	abs, fail := resolve(t.cfg.Resolver, path)
	if fail != nil {
		return fail
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return statError(path, err)
	}

	content := string(data)
	lines := strings.Split(content, "\n")
	// A trailing newline produces one phantom empty line; keep counts honest.
	totalLines := len(lines)
	if totalLines > 0 && lines[totalLines-1] == "" && strings.HasSuffix(content, "\n") {
		totalLines--
	}

	if offset > totalLines {
		return models.Succeed(map[string]any{
			"path":       path,
			"content":    "",
			"read_size":  0,
			"total_size": len(data),
			"offset":     offset,
			"limit":      limit,
			"truncated":  false,
		})
	}

	end := totalLines
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	window := strings.Join(lines[offset:end], "\n")
	if end > offset && end <= totalLines && strings.HasSuffix(content, "\n") && end == totalLines {
		window += "\n"
	}

	truncated := false
	if max := t.cfg.maxReadBytes(); len(window) > max {
		window = window[:max] + fmt.Sprintf("\n[... truncated at %d bytes ...]", max)
		truncated = true
	}

	return models.Succeed(map[string]any{
		"path":       path,
		"content":    window,
		"read_size":  len(window),
		"total_size": len(data),
		"offset":     offset,
		"limit":      limit,
		"truncated":  truncated,
	})
}

// intArg reads a numeric argument that may arrive as float64 from JSON.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}
