// Package patchtool exposes the patch engine as the apply_patch and
// undo_patch tools.
package patchtool

import (
	"context"

	"github.com/haasonsaas/sidekick/internal/patch"
	"github.com/haasonsaas/sidekick/internal/tools"
	"github.com/haasonsaas/sidekick/pkg/models"
)

// ApplyPatchTool replaces old text with new text in one workspace file.
type ApplyPatchTool struct {
	engine *patch.Engine
}

// NewApplyPatchTool creates an apply_patch tool.
func NewApplyPatchTool(engine *patch.Engine) *ApplyPatchTool {
	return &ApplyPatchTool{engine: engine}
}

func (t *ApplyPatchTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "apply_patch",
		Description: "Replace old text with new text in a file. Exact match by default; fuzzy matching available for drifted context. Returns an undo_id.",
		WritesFiles: true,
		Schema: tools.ObjectSchema(map[string]any{
			"path":                  map[string]any{"type": "string", "minLength": 1},
			"old":                   map[string]any{"type": "string", "minLength": 1},
			"new":                   map[string]any{"type": "string"},
			"expected_replacements": map[string]any{"type": "integer", "minimum": 1},
			"fuzzy":                 map[string]any{"type": "boolean"},
			"min_similarity":        map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		}, "path", "old", "new"),
	}
}

func (t *ApplyPatchTool) Execute(ctx context.Context, args map[string]any) *models.ToolResult {
	path, _ := args["path"].(string)
	old, _ := args["old"].(string)
	newText, _ := args["new"].(string)
	fuzzy, _ := args["fuzzy"].(bool)

	opts := patch.ApplyOptions{Fuzzy: fuzzy}
	if v, ok := args["expected_replacements"].(float64); ok {
		opts.ExpectedReplacements = int(v)
	}
	if v, ok := args["min_similarity"].(float64); ok {
		opts.MinSimilarity = v
	}

	res, err := t.engine.Apply(path, old, newText, opts)
	if err != nil {
		return models.Fail(patch.CodeOf(err), err.Error())
	}
	payload := map[string]any{
		"path":         res.Path,
		"undo_id":      res.UndoID,
		"replacements": res.Replacements,
		"before_hash":  res.BeforeHash,
		"after_hash":   res.AfterHash,
	}
	if res.Fuzzy {
		payload["fuzzy"] = true
		payload["similarity"] = res.Similarity
	}
	return models.Succeed(payload)
}

// UndoPatchTool reverses a journaled patch or write.
type UndoPatchTool struct {
	engine *patch.Engine
}

// NewUndoPatchTool creates an undo_patch tool.
func NewUndoPatchTool(engine *patch.Engine) *UndoPatchTool {
	return &UndoPatchTool{engine: engine}
}

func (t *UndoPatchTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "undo_patch",
		Description: "Undo a previous patch or write by its undo_id. Fails on drift unless force is set.",
		WritesFiles: true,
		Schema: tools.ObjectSchema(map[string]any{
			"undo_id": map[string]any{"type": "string", "minLength": 1},
			"force":   map[string]any{"type": "boolean"},
		}, "undo_id"),
	}
}

func (t *UndoPatchTool) Execute(ctx context.Context, args map[string]any) *models.ToolResult {
	undoID, _ := args["undo_id"].(string)
	force, _ := args["force"].(bool)

	res, err := t.engine.Undo(undoID, force)
	if err != nil {
		return models.Fail(patch.CodeOf(err), err.Error())
	}
	return models.Succeed(map[string]any{
		"path":        res.Path,
		"undo_id":     res.UndoID,
		"restored_to": res.RestoredTo,
		"forced":      res.Forced,
	})
}
