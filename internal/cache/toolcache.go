// Package cache holds per-session tool results. Only tools declared
// cacheable participate. Entries age out by TTL and are evicted LRU when the
// cache is full; any write to a path drops the entries that reference it.
package cache

import (
	"container/list"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/sidekick/pkg/models"
)

// Stats reports cache effectiveness.
type Stats struct {
	Size          int     `json:"size"`
	Hits          uint64  `json:"hits"`
	Misses        uint64  `json:"misses"`
	HitRate       float64 `json:"hit_rate"`
	Invalidations uint64  `json:"invalidations"`
}

type entry struct {
	key     string
	result  *models.ToolResult
	paths   map[string]bool // workspace-relative paths the payload references
	listDir string          // directory the payload lists, "" if none
	expires time.Time
	elem    *list.Element
}

// ToolCache is a bounded LRU+TTL cache keyed by (tool, canonical args).
// It does not persist across sessions.
type ToolCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*entry
	order      *list.List // front = most recent

	hits          uint64
	misses        uint64
	invalidations uint64

	now func() time.Time
}

// New creates a cache. Non-positive maxEntries disables the size bound;
// non-positive ttl disables aging.
func New(ttl time.Duration, maxEntries int) *ToolCache {
	return &ToolCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
		order:      list.New(),
		now:        time.Now,
	}
}

// Key canonicalizes a tool call into a cache key. Map keys are sorted by the
// JSON encoder, so argument order never splits the key space.
func Key(tool string, args map[string]any) string {
	canonical, err := json.Marshal(args)
	if err != nil {
		// Fall back to a formatted dump; still deterministic enough since
		// this only happens for unmarshalable args which tools reject anyway.
		keys := make([]string, 0, len(args))
		for k := range args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		canonical = []byte(fmt.Sprint(keys))
	}
	return tool + ":" + string(canonical)
}

// Get returns the cached result for the key, updating recency. Expired
// entries count as misses and are removed.
func (c *ToolCache) Get(key string) (*models.ToolResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ent, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.ttl > 0 && c.now().After(ent.expires) {
		c.removeLocked(ent)
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(ent.elem)
	c.hits++
	return ent.result, true
}

// Put stores a result. The result's payload is scanned once for path
// references so invalidation does not have to re-walk payloads.
func (c *ToolCache) Put(key string, result *models.ToolResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ent, ok := c.entries[key]; ok {
		c.removeLocked(ent)
	}
	ent := &entry{
		key:     key,
		result:  result,
		paths:   referencedPaths(result),
		listDir: listedDir(key, result),
		expires: c.now().Add(c.ttl),
	}
	ent.elem = c.order.PushFront(ent)
	c.entries[key] = ent

	if c.maxEntries > 0 {
		for len(c.entries) > c.maxEntries {
			oldest := c.order.Back()
			if oldest == nil {
				break
			}
			c.removeLocked(oldest.Value.(*entry))
		}
	}
}

// Invalidate drops every entry touched by a change to relPath: entries whose
// payload references the path (exactly or by suffix), and directory listings
// of its parent.
func (c *ToolCache) Invalidate(relPath string) int {
	relPath = path.Clean(strings.TrimPrefix(relPath, "./"))
	parent := path.Dir(relPath)

	c.mu.Lock()
	defer c.mu.Unlock()
	var doomed []*entry
	for _, ent := range c.entries {
		if entryTouches(ent, relPath, parent) {
			doomed = append(doomed, ent)
		}
	}
	for _, ent := range doomed {
		c.removeLocked(ent)
	}
	if len(doomed) > 0 {
		c.invalidations++
	}
	return len(doomed)
}

// Stats returns a snapshot of cache statistics.
func (c *ToolCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	var rate float64
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:          len(c.entries),
		Hits:          c.hits,
		Misses:        c.misses,
		HitRate:       rate,
		Invalidations: c.invalidations,
	}
}

// Clear drops everything but keeps the counters.
func (c *ToolCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.order.Init()
}

func (c *ToolCache) removeLocked(ent *entry) {
	c.order.Remove(ent.elem)
	delete(c.entries, ent.key)
}

func entryTouches(ent *entry, relPath, parent string) bool {
	for p := range ent.paths {
		if p == relPath || strings.HasSuffix(p, "/"+relPath) || strings.HasSuffix(relPath, "/"+p) {
			return true
		}
	}
	if ent.listDir != "" && (ent.listDir == parent || ent.listDir == relPath) {
		return true
	}
	return false
}

// referencedPaths walks the payload collecting every "path" value, including
// nested match lists.
func referencedPaths(result *models.ToolResult) map[string]bool {
	paths := make(map[string]bool)
	if result == nil {
		return paths
	}
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case map[string]any:
			for k, val := range t {
				if k == "path" {
					if s, ok := val.(string); ok && s != "" {
						paths[path.Clean(s)] = true
					}
					continue
				}
				walk(val)
			}
		case []any:
			for _, item := range t {
				walk(item)
			}
		}
	}
	walk(result.Payload)
	return paths
}

// listedDir returns the directory a list_dir/glob payload describes, derived
// from the cache key's tool prefix and the payload itself.
func listedDir(key string, result *models.ToolResult) string {
	tool, _, _ := strings.Cut(key, ":")
	if tool != "list_dir" && tool != "glob_file_search" {
		return ""
	}
	if result == nil || result.Payload == nil {
		return ""
	}
	if dir, ok := result.Payload["dir"].(string); ok && dir != "" {
		return path.Clean(dir)
	}
	if dir, ok := result.Payload["path"].(string); ok && dir != "" {
		return path.Clean(dir)
	}
	return "."
}
