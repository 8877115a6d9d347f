package plugins

import (
	"context"
	"encoding/json"
	"time"

	"github.com/haasonsaas/sidekick/internal/tools"
	"github.com/haasonsaas/sidekick/pkg/models"
)

// PluginTool adapts one declared plugin into the tool registry. The registry
// validates arguments against the manifest schema before execution, the same
// as for built-in tools.
type PluginTool struct {
	manifest *Manifest
	host     Host
}

// NewPluginTool wraps a manifest and host as a tool.
func NewPluginTool(manifest *Manifest, host Host) *PluginTool {
	return &PluginTool{manifest: manifest, host: host}
}

func (t *PluginTool) Spec() tools.Spec {
	schema := json.RawMessage(`{"type":"object"}`)
	if t.manifest.Schema != nil {
		if raw, err := json.Marshal(t.manifest.Schema); err == nil {
			schema = raw
		}
	}
	return tools.Spec{
		Name:         "plugin_" + t.manifest.ID,
		Description:  t.manifest.Description,
		Schema:       schema,
		Cacheable:    t.manifest.Cacheable,
		NeedsNetwork: t.manifest.NeedsNetwork,
		Timeout:      time.Duration(t.manifest.TimeoutS) * time.Second,
	}
}

func (t *PluginTool) Execute(ctx context.Context, args map[string]any) *models.ToolResult {
	res, err := t.host.Run(ctx, t.manifest.ID, args)
	if err != nil {
		return models.Fail(models.CodeTool, err.Error())
	}
	payload := map[string]any{
		"plugin":      t.manifest.ID,
		"output":      res.Output,
		"exit_code":   res.ExitCode,
		"duration_ms": res.DurationMs,
	}
	if !res.OK {
		result := models.Fail(models.CodeTool, res.Error)
		result.Payload = payload
		return result
	}
	return models.Succeed(payload)
}
