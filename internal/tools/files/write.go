package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/haasonsaas/sidekick/internal/patch"
	"github.com/haasonsaas/sidekick/internal/tools"
	"github.com/haasonsaas/sidekick/pkg/models"
)

// WriteFileTool writes whole files atomically and journals each write so it
// can be undone like a patch.
type WriteFileTool struct {
	cfg Config
}

// NewWriteFileTool creates a write_file tool.
func NewWriteFileTool(cfg Config) *WriteFileTool {
	return &WriteFileTool{cfg: cfg}
}

func (t *WriteFileTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "write_file",
		Description: "Write text to a file in the workspace, creating it if needed. The write is journaled and undoable.",
		WritesFiles: true,
		Schema: tools.ObjectSchema(map[string]any{
			"path": map[string]any{"type": "string", "minLength": 1},
			"text": map[string]any{"type": "string"},
		}, "path", "text"),
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]any) *models.ToolResult {
	path, _ := args["path"].(string)
	text, _ := args["text"].(string)

	abs, fail := resolve(t.cfg.Resolver, path)
	if fail != nil {
		return fail
	}

	var before string
	created := false
	if data, err := os.ReadFile(abs); err == nil {
		before = string(data)
	} else if os.IsNotExist(err) {
		created = true
	} else {
		return models.Fail(models.CodeIO, fmt.Sprintf("read %q: %v", path, err))
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return models.Fail(models.CodeIO, fmt.Sprintf("create parent dirs: %v", err))
	}
	if err := patch.WriteFileAtomic(abs, []byte(text)); err != nil {
		return models.Fail(models.CodeIO, fmt.Sprintf("write %q: %v", path, err))
	}

	rel := t.cfg.Resolver.Rel(abs)
	var undoID string
	if t.cfg.Engine != nil {
		id, err := t.cfg.Engine.RecordWrite(rel, before, text)
		if err != nil {
			return models.Fail(models.CodeIO, fmt.Sprintf("journal write: %v", err))
		}
		undoID = id
	}

	payload := map[string]any{
		"path":          rel,
		"bytes_written": len(text),
		"created":       created,
	}
	if undoID != "" {
		payload["undo_id"] = undoID
	}
	return models.Succeed(payload)
}
