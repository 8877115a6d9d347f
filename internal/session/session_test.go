package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/sidekick/internal/config"
	"github.com/haasonsaas/sidekick/internal/tools"
)

func newTestSession(t *testing.T, mutate func(*config.Config)) *Session {
	t.Helper()
	cfg := config.Default()
	cfg.WorkspaceRoot = t.TempDir()
	cfg.Audit.Enabled = true
	if mutate != nil {
		mutate(cfg)
	}
	s, err := New(Options{Config: cfg})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSessionCreatesProjectLayout(t *testing.T) {
	s := newTestSession(t, nil)

	for _, dir := range []string{s.paths.Logs, s.paths.Sessions, s.paths.CacheDir, s.paths.VectorDB} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("missing dir %s: %v", dir, err)
		}
	}
	if s.paths.ProjectID != ProjectID(s.cfg.WorkspaceRoot) {
		t.Fatalf("project id mismatch")
	}
}

func TestProjectIDStable(t *testing.T) {
	a := ProjectID("/home/dev/proj")
	b := ProjectID("/home/dev/proj/")
	if a != b {
		t.Fatalf("id unstable across trailing slash: %s vs %s", a, b)
	}
	if len(a) != 12 {
		t.Fatalf("id length = %d", len(a))
	}
	if a == ProjectID("/home/dev/other") {
		t.Fatal("different workspaces collide")
	}
}

func TestBuiltinToolsRegistered(t *testing.T) {
	s := newTestSession(t, nil)

	want := []string{
		"read_file", "write_file", "list_dir", "glob_file_search", "grep",
		"apply_patch", "undo_patch", "run_cmd", "display",
	}
	for _, name := range want {
		if _, ok := s.registry.Get(name); !ok {
			t.Fatalf("tool %s not registered", name)
		}
	}
	// Weather is opt-in and off by default.
	if _, ok := s.registry.Get("get_weather"); ok {
		t.Fatal("get_weather registered without weather.enabled")
	}
	// No semantic index in a fresh workspace.
	if _, ok := s.registry.Get("search_semantic"); ok {
		t.Fatal("search_semantic registered without an index")
	}
}

func TestWeatherToolOptIn(t *testing.T) {
	s := newTestSession(t, func(cfg *config.Config) {
		cfg.Weather.Enabled = true
		cfg.Weather.APIKey = "k"
	})
	if _, ok := s.registry.Get("get_weather"); !ok {
		t.Fatal("get_weather missing despite weather.enabled")
	}
}

func TestPluginsDiscoveredFromWorkspace(t *testing.T) {
	root := t.TempDir()
	pluginDir := filepath.Join(root, ".sidekick", "plugins")
	if err := os.MkdirAll(pluginDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	manifest := "id: hello\ndescription: says hello\ncommand: [\"/bin/echo\", \"hi\"]\n"
	if err := os.WriteFile(filepath.Join(pluginDir, "hello.plugin.yaml"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	s := newTestSession(t, func(cfg *config.Config) {
		cfg.WorkspaceRoot = root
	})
	if _, ok := s.registry.Get("plugin_hello"); !ok {
		t.Fatal("plugin tool not registered")
	}
}

func TestSnapshotWritesSessionFile(t *testing.T) {
	s := newTestSession(t, nil)
	s.turns = append(s.turns, turnRecord{Request: "list files", StopReason: "done", Iterations: 2})

	if err := s.snapshot(); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	data, err := os.ReadFile(s.paths.SessionFile(s.ID))
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var snap map[string]any
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("parse snapshot: %v", err)
	}
	if snap["id"] != s.ID || snap["project_id"] != s.paths.ProjectID {
		t.Fatalf("snapshot = %+v", snap)
	}
	turns, _ := snap["turns"].([]any)
	if len(turns) != 1 {
		t.Fatalf("turns = %v", snap["turns"])
	}
}

func TestBuildProviderRejectsUnknownMode(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIMode = "openai"
	if _, err := buildProvider(cfg); err != nil {
		t.Fatalf("openai mode: %v", err)
	}
	cfg.LLM.APIMode = "anthropic"
	if _, err := buildProvider(cfg); err != nil {
		t.Fatalf("anthropic mode: %v", err)
	}
	cfg.LLM.APIMode = "grpc"
	if _, err := buildProvider(cfg); err == nil {
		t.Fatal("expected unknown api_mode error")
	}
}

// Registry wiring sanity: every registered tool passes schema compilation,
// so List returns the full set.
func TestRegistryListsAllTools(t *testing.T) {
	s := newTestSession(t, nil)
	specs := s.registry.List(tools.ListFilter{})
	if len(specs) < 9 {
		t.Fatalf("only %d tools listed", len(specs))
	}
}
