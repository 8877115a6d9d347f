package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/sidekick/internal/workspace"
	"github.com/haasonsaas/sidekick/pkg/models"
)

func newTestGrep(t *testing.T) (*GrepTool, string) {
	t.Helper()
	root := t.TempDir()
	resolver, err := workspace.NewResolver(root)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	tool := NewGrepTool(resolver)
	// Pin the in-process engine so results do not depend on the host having
	// ripgrep installed.
	tool.rgLooked = true
	tool.rgPath = ""
	return tool, root
}

func seed(t *testing.T, root, name, content string) {
	t.Helper()
	full := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestGrepFindsMatches(t *testing.T) {
	tool, root := newTestGrep(t)
	seed(t, root, "src/token.py", "class TokenBudget:\n    pass\n")
	seed(t, root, "src/other.py", "x = 1\n")

	res := tool.Execute(context.Background(), map[string]any{"pattern": "class TokenBudget"})
	if !res.OK {
		t.Fatalf("result = %+v", res)
	}
	if res.Payload["count"] != 1 || res.Payload["engine"] != "internal" {
		t.Fatalf("payload = %+v", res.Payload)
	}
	hit := res.Payload["matches"].([]any)[0].(map[string]any)
	if hit["path"] != "src/token.py" || hit["line"] != 1 {
		t.Fatalf("hit = %+v", hit)
	}
	if hit["preview"] != "class TokenBudget:" {
		t.Fatalf("preview = %q", hit["preview"])
	}
}

func TestGrepIgnoreCase(t *testing.T) {
	tool, root := newTestGrep(t)
	seed(t, root, "a.txt", "Hello World\n")

	res := tool.Execute(context.Background(), map[string]any{
		"pattern": "hello", "ignore_case": true,
	})
	if !res.OK || res.Payload["count"] != 1 {
		t.Fatalf("payload = %+v", res.Payload)
	}
	res = tool.Execute(context.Background(), map[string]any{"pattern": "hello"})
	if !res.OK || res.Payload["count"] != 0 {
		t.Fatalf("case-sensitive search should miss: %+v", res.Payload)
	}
}

func TestGrepMaxHits(t *testing.T) {
	tool, root := newTestGrep(t)
	seed(t, root, "a.txt", "hit\nhit\nhit\nhit\n")

	res := tool.Execute(context.Background(), map[string]any{
		"pattern": "hit", "max_hits": float64(2),
	})
	if !res.OK || res.Payload["count"] != 2 || res.Payload["truncated"] != true {
		t.Fatalf("payload = %+v", res.Payload)
	}
}

func TestGrepBadPattern(t *testing.T) {
	tool, _ := newTestGrep(t)
	res := tool.Execute(context.Background(), map[string]any{"pattern": "(["})
	if res.OK || res.ErrorCodeOf() != models.CodeInvalidArgs {
		t.Fatalf("result = %+v", res)
	}
}

func TestGrepScopedPathEscape(t *testing.T) {
	tool, _ := newTestGrep(t)
	res := tool.Execute(context.Background(), map[string]any{
		"pattern": "x", "path": "../outside",
	})
	if res.OK || res.ErrorCodeOf() != models.CodePathEscape {
		t.Fatalf("result = %+v", res)
	}
}

func TestGrepSkipsBinary(t *testing.T) {
	tool, root := newTestGrep(t)
	seed(t, root, "bin.dat", "he\x00llo")
	seed(t, root, "ok.txt", "hello\n")

	res := tool.Execute(context.Background(), map[string]any{"pattern": "hello"})
	if !res.OK || res.Payload["count"] != 1 {
		t.Fatalf("binary file should be skipped: %+v", res.Payload)
	}
}
