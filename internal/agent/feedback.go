package agent

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/sidekick/pkg/models"
)

// feedbackMaxContent caps how much tool content is echoed back to the model
// verbatim before keyword windowing kicks in.
const feedbackMaxContent = 2000

// keywordWindowLines is the context shown around a keyword hit in long
// content.
const keywordWindowLines = 4

// formatFeedback turns a tool result into the compact message fed back to
// the model. The raw payload is never echoed; long text content is reduced
// to windows around hits for the user's keywords.
func formatFeedback(call *models.ToolCall, result *models.ToolResult, keywords []string) string {
	if !result.OK {
		info := result.Error
		if info == nil {
			info = &models.ToolErrorInfo{Code: models.CodeTool, Message: "unknown failure"}
		}
		return fmt.Sprintf(`Tool %s failed: {"ok":false,"error":{"code":%q,"message":%q}}`,
			call.Tool, info.Code, info.Message)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Tool %s succeeded", call.Tool)
	if result.Cached {
		b.WriteString(" (cached)")
	}
	b.WriteString(".\n")

	switch call.Tool {
	case "read_file":
		path, _ := result.Payload["path"].(string)
		content, _ := result.Payload["content"].(string)
		truncated, _ := result.Payload["truncated"].(bool)
		fmt.Fprintf(&b, "path: %s, %d bytes", path, len(content))
		if truncated {
			b.WriteString(" (truncated)")
		}
		b.WriteString("\n")
		b.WriteString(excerpt(content, keywords))
	case "grep":
		count, _ := result.Payload["count"].(int)
		fmt.Fprintf(&b, "%d matches\n", count)
		if matches, ok := result.Payload["matches"].([]any); ok {
			for i, m := range matches {
				if i >= 20 {
					fmt.Fprintf(&b, "... %d more\n", len(matches)-i)
					break
				}
				hit, _ := m.(map[string]any)
				fmt.Fprintf(&b, "%v:%v: %v\n", hit["path"], hit["line"], hit["preview"])
			}
		}
	case "list_dir", "glob_file_search":
		count, _ := result.Payload["count"].(int)
		key := "entries"
		if call.Tool == "glob_file_search" {
			key = "matches"
		}
		fmt.Fprintf(&b, "%d results\n", count)
		if items, ok := result.Payload[key].([]any); ok {
			for i, item := range items {
				if i >= 50 {
					fmt.Fprintf(&b, "... %d more\n", len(items)-i)
					break
				}
				switch v := item.(type) {
				case map[string]any:
					fmt.Fprintf(&b, "%v (%v)\n", v["name"], v["type"])
				default:
					fmt.Fprintf(&b, "%v\n", v)
				}
			}
		}
	case "run_cmd":
		exit, _ := result.Payload["exit_code"].(int)
		stdout, _ := result.Payload["stdout"].(string)
		stderr, _ := result.Payload["stderr"].(string)
		fmt.Fprintf(&b, "exit_code: %d\n", exit)
		if stdout != "" {
			b.WriteString("stdout:\n" + excerpt(stdout, keywords))
		}
		if stderr != "" {
			b.WriteString("stderr:\n" + excerpt(stderr, keywords))
		}
	case "apply_patch":
		fmt.Fprintf(&b, "path: %v, replacements: %v, undo_id: %v\n",
			result.Payload["path"], result.Payload["replacements"], result.Payload["undo_id"])
	case "undo_patch":
		fmt.Fprintf(&b, "path: %v restored (undo_id %v)\n",
			result.Payload["path"], result.Payload["undo_id"])
	case "write_file":
		fmt.Fprintf(&b, "path: %v, bytes_written: %v, undo_id: %v\n",
			result.Payload["path"], result.Payload["bytes_written"], result.Payload["undo_id"])
	case "search_semantic":
		count, _ := result.Payload["count"].(int)
		fmt.Fprintf(&b, "%d chunks\n", count)
		if matches, ok := result.Payload["matches"].([]any); ok {
			for _, m := range matches {
				hit, _ := m.(map[string]any)
				fmt.Fprintf(&b, "%v:%v-%v (score %.2f)\n%v\n",
					hit["path"], hit["start_line"], hit["end_line"], hit["score"], hit["text"])
			}
		}
	default:
		// Generic tools get a flat key summary, still never the raw payload.
		keys := make([]string, 0, len(result.Payload))
		for k := range result.Payload {
			keys = append(keys, k)
		}
		fmt.Fprintf(&b, "result fields: %s\n", strings.Join(keys, ", "))
		for _, k := range keys {
			if s, ok := result.Payload[k].(string); ok && len(s) < 400 {
				fmt.Fprintf(&b, "%s: %s\n", k, s)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// excerpt returns the content unchanged when short. Long content is reduced
// to windows around lines containing any keyword; with no hits, the head is
// kept.
func excerpt(content string, keywords []string) string {
	if len(content) <= feedbackMaxContent {
		return content
	}
	lines := strings.Split(content, "\n")

	hits := make(map[int]bool)
	for i, line := range lines {
		lower := strings.ToLower(line)
		for _, kw := range keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(kw)) {
				for j := i - keywordWindowLines; j <= i+keywordWindowLines; j++ {
					if j >= 0 && j < len(lines) {
						hits[j] = true
					}
				}
				break
			}
		}
	}

	if len(hits) == 0 {
		head := content[:feedbackMaxContent]
		return head + fmt.Sprintf("\n[... %d more bytes ...]", len(content)-feedbackMaxContent)
	}

	var b strings.Builder
	inGap := false
	for i, line := range lines {
		if hits[i] {
			if inGap {
				b.WriteString("[...]\n")
				inGap = false
			}
			b.WriteString(line)
			b.WriteString("\n")
		} else {
			inGap = true
		}
	}
	if inGap {
		b.WriteString("[...]\n")
	}
	return b.String()
}

// extractKeywords pulls significant words from the user request for the
// feedback windowing.
func extractKeywords(request string) []string {
	var out []string
	for _, w := range strings.FieldsFunc(request, func(r rune) bool {
		return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9' || r == '_')
	}) {
		if len(w) >= 4 && !stopWords[strings.ToLower(w)] {
			out = append(out, w)
		}
	}
	return out
}

var stopWords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "into": true,
	"file": true, "files": true, "please": true, "what": true, "where": true,
	"find": true, "show": true, "list": true, "make": true, "change": true,
}
