package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/sidekick/internal/tools"
)

// blockedPrefix is the convention the system prompt sets for a step that
// cannot proceed. Text starting with it triggers a replan.
const blockedPrefix = "BLOCKED:"

// buildSystemPrompt describes the tool-call grammar and the available tools.
func buildSystemPrompt(registry *tools.Registry, workspaceRoot string) string {
	var b strings.Builder
	b.WriteString(`You are a coding agent working in a local workspace. You can call tools or answer directly.

To call a tool, respond with EXACTLY one JSON object and nothing else:
{"tool": "<name>", "args": {...}}

Rules:
- One tool call per response. Never emit more than one JSON object.
- When you have enough information, answer the user in plain text with no JSON object.
- All paths are relative to the workspace root; you cannot touch anything outside it.
- Tool failures come back as {"ok":false,"error":{"code","message"}}. Adjust and retry or explain.
- If a plan step cannot proceed at all, respond with a line starting with "` + blockedPrefix + `" followed by the reason.
`)
	fmt.Fprintf(&b, "\nWorkspace root: %s\n\nAvailable tools:\n", workspaceRoot)

	for _, spec := range registry.List(tools.ListFilter{}) {
		schema, _ := json.Marshal(spec.Schema)
		fmt.Fprintf(&b, "- %s: %s\n  args schema: %s\n", spec.Name, spec.Description, schema)
	}
	return b.String()
}
