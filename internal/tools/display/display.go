// Package display implements the display tool, which lets the model surface
// a message to the user without ending the turn.
package display

import (
	"context"
	"fmt"

	"github.com/haasonsaas/sidekick/internal/tools"
	"github.com/haasonsaas/sidekick/pkg/models"
)

// Emitter publishes a display event on the session's event channel.
type Emitter interface {
	EmitDisplay(content, level, title string)
}

// Tool emits agent-to-user messages via the event channel.
type Tool struct {
	emitter Emitter
}

// New creates a display tool.
func New(emitter Emitter) *Tool {
	return &Tool{emitter: emitter}
}

func (t *Tool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "display",
		Description: "Show a message to the user. Does not end the turn.",
		Schema: tools.ObjectSchema(map[string]any{
			"content": map[string]any{"type": "string", "minLength": 1},
			"level":   map[string]any{"type": "string", "enum": []any{"info", "warning", "error"}},
			"title":   map[string]any{"type": "string"},
		}, "content"),
	}
}

func (t *Tool) Execute(ctx context.Context, args map[string]any) *models.ToolResult {
	content, _ := args["content"].(string)
	level, _ := args["level"].(string)
	title, _ := args["title"].(string)
	if level == "" {
		level = "info"
	}

	if t.emitter == nil {
		return models.Fail(models.CodeTool, fmt.Sprintf("no event channel attached for level %q", level))
	}
	t.emitter.EmitDisplay(content, level, title)
	return models.Succeed(map[string]any{"displayed": true, "level": level})
}
