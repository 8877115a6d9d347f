package cache

import (
	"testing"
	"time"

	"github.com/haasonsaas/sidekick/pkg/models"
)

func result(payload map[string]any) *models.ToolResult {
	return models.Succeed(payload)
}

func TestMissThenHit(t *testing.T) {
	c := New(time.Minute, 10)
	key := Key("read_file", map[string]any{"path": "a.txt"})

	if _, ok := c.Get(key); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Put(key, result(map[string]any{"path": "a.txt", "content": "hello"}))
	got, ok := c.Get(key)
	if !ok || got.Payload["content"] != "hello" {
		t.Fatalf("expected hit, got %v ok=%v", got, ok)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestKeyCanonicalization(t *testing.T) {
	a := Key("grep", map[string]any{"pattern": "x", "ignore_case": true})
	b := Key("grep", map[string]any{"ignore_case": true, "pattern": "x"})
	if a != b {
		t.Fatalf("argument order changed the key: %q vs %q", a, b)
	}
	if a == Key("grep", map[string]any{"pattern": "y", "ignore_case": true}) {
		t.Fatal("different args must produce different keys")
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New(time.Minute, 10)
	now := time.Now()
	c.now = func() time.Time { return now }

	key := Key("read_file", map[string]any{"path": "a.txt"})
	c.Put(key, result(map[string]any{"path": "a.txt"}))

	if _, ok := c.Get(key); !ok {
		t.Fatal("fresh entry should hit")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get(key); ok {
		t.Fatal("expired entry must miss")
	}
	if c.Stats().Size != 0 {
		t.Fatal("expired entry should be removed")
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(time.Minute, 2)
	k1 := Key("read_file", map[string]any{"path": "1.txt"})
	k2 := Key("read_file", map[string]any{"path": "2.txt"})
	k3 := Key("read_file", map[string]any{"path": "3.txt"})

	c.Put(k1, result(map[string]any{"path": "1.txt"}))
	c.Put(k2, result(map[string]any{"path": "2.txt"}))
	c.Get(k1) // k1 now most recent
	c.Put(k3, result(map[string]any{"path": "3.txt"}))

	if _, ok := c.Get(k2); ok {
		t.Fatal("least recently used entry should be evicted")
	}
	if _, ok := c.Get(k1); !ok {
		t.Fatal("recently used entry should survive")
	}
}

func TestInvalidateByDirectReference(t *testing.T) {
	c := New(time.Minute, 10)
	read := Key("read_file", map[string]any{"path": "src/a.txt"})
	other := Key("read_file", map[string]any{"path": "src/b.txt"})
	c.Put(read, result(map[string]any{"path": "src/a.txt", "content": "x"}))
	c.Put(other, result(map[string]any{"path": "src/b.txt", "content": "y"}))

	dropped := c.Invalidate("src/a.txt")
	if dropped != 1 {
		t.Fatalf("dropped %d entries, want 1", dropped)
	}
	if _, ok := c.Get(other); !ok {
		t.Fatal("unrelated entry must survive invalidation")
	}
	if c.Stats().Invalidations != 1 {
		t.Fatalf("invalidations = %d, want 1", c.Stats().Invalidations)
	}
}

func TestInvalidateParentListing(t *testing.T) {
	c := New(time.Minute, 10)
	listKey := Key("list_dir", map[string]any{"path": "src"})
	c.Put(listKey, result(map[string]any{
		"path":    "src",
		"entries": []any{map[string]any{"name": "a.txt"}},
	}))

	if n := c.Invalidate("src/a.txt"); n != 1 {
		t.Fatalf("parent listing should be dropped, got %d", n)
	}
}

func TestInvalidateMatchList(t *testing.T) {
	c := New(time.Minute, 10)
	grepKey := Key("grep", map[string]any{"pattern": "needle"})
	c.Put(grepKey, result(map[string]any{
		"matches": []any{
			map[string]any{"path": "lib/hit.go", "line": 3, "preview": "needle"},
		},
	}))

	if n := c.Invalidate("lib/hit.go"); n != 1 {
		t.Fatalf("entry with matching hit should be dropped, got %d", n)
	}
}

func TestWriteInvalidationSequence(t *testing.T) {
	// read (miss, store) -> read (hit) -> write -> read (miss).
	c := New(time.Minute, 10)
	key := Key("read_file", map[string]any{"path": "a.txt"})

	if _, ok := c.Get(key); ok {
		t.Fatal("first read should miss")
	}
	c.Put(key, result(map[string]any{"path": "a.txt", "content": "v1"}))
	if _, ok := c.Get(key); !ok {
		t.Fatal("second read should hit")
	}

	c.Invalidate("a.txt")

	if _, ok := c.Get(key); ok {
		t.Fatal("read after write must miss")
	}
	stats := c.Stats()
	if stats.Invalidations != 1 {
		t.Fatalf("invalidations = %d, want exactly 1", stats.Invalidations)
	}
	if stats.Hits != 1 || stats.Misses != 2 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestClearKeepsCounters(t *testing.T) {
	c := New(time.Minute, 10)
	key := Key("read_file", map[string]any{"path": "a.txt"})
	c.Put(key, result(map[string]any{"path": "a.txt"}))
	c.Get(key)
	c.Clear()

	if c.Stats().Size != 0 {
		t.Fatal("clear should empty the cache")
	}
	if c.Stats().Hits != 1 {
		t.Fatal("clear should keep counters")
	}
}
