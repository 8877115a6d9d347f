package agent

import (
	"strings"
	"testing"

	"github.com/haasonsaas/sidekick/pkg/models"
)

func TestFormatFeedbackError(t *testing.T) {
	call := &models.ToolCall{Tool: "run_cmd"}
	result := models.Fail(models.CodePolicyDenied, "network access is disabled")

	got := formatFeedback(call, result, nil)
	if !strings.Contains(got, `"code":"E_POLICY_DENIED"`) {
		t.Fatalf("feedback = %q", got)
	}
	if !strings.Contains(got, "network access is disabled") {
		t.Fatalf("feedback = %q", got)
	}
}

func TestFormatFeedbackShortReadKeepsContent(t *testing.T) {
	call := &models.ToolCall{Tool: "read_file"}
	result := models.Succeed(map[string]any{
		"path": "a.txt", "content": "hello\nworld\n", "truncated": false,
	})

	got := formatFeedback(call, result, nil)
	if !strings.Contains(got, "hello\nworld") || !strings.Contains(got, "a.txt") {
		t.Fatalf("feedback = %q", got)
	}
}

func TestFormatFeedbackLongReadWindowsOnKeywords(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 500; i++ {
		if i == 250 {
			b.WriteString("class TokenBudget:\n")
			continue
		}
		b.WriteString("filler line with nothing of interest here\n")
	}
	call := &models.ToolCall{Tool: "read_file"}
	result := models.Succeed(map[string]any{
		"path": "src/token.py", "content": b.String(), "truncated": false,
	})

	got := formatFeedback(call, result, []string{"TokenBudget"})
	if !strings.Contains(got, "class TokenBudget:") {
		t.Fatalf("keyword hit missing: %q", got)
	}
	if !strings.Contains(got, "[...]") {
		t.Fatalf("no elision marker: %q", got)
	}
	if len(got) > 4000 {
		t.Fatalf("feedback too large: %d bytes", len(got))
	}
}

func TestFormatFeedbackGrepSummarizes(t *testing.T) {
	call := &models.ToolCall{Tool: "grep"}
	result := models.Succeed(map[string]any{
		"count": 2,
		"matches": []any{
			map[string]any{"path": "a.go", "line": 10, "preview": "func A() {"},
			map[string]any{"path": "b.go", "line": 20, "preview": "func B() {"},
		},
	})

	got := formatFeedback(call, result, nil)
	if !strings.Contains(got, "2 matches") || !strings.Contains(got, "a.go:10") {
		t.Fatalf("feedback = %q", got)
	}
}

func TestFormatFeedbackMarksCached(t *testing.T) {
	call := &models.ToolCall{Tool: "list_dir"}
	result := models.Succeed(map[string]any{"count": 0, "entries": []any{}})
	result.Cached = true

	if got := formatFeedback(call, result, nil); !strings.Contains(got, "(cached)") {
		t.Fatalf("feedback = %q", got)
	}
}

func TestExtractKeywords(t *testing.T) {
	got := extractKeywords("find the TokenBudget class in parser.py")
	joined := strings.Join(got, " ")
	if !strings.Contains(joined, "TokenBudget") || !strings.Contains(joined, "parser") {
		t.Fatalf("keywords = %v", got)
	}
	for _, kw := range got {
		if kw == "the" || kw == "find" {
			t.Fatalf("stop word leaked: %v", got)
		}
	}
}
