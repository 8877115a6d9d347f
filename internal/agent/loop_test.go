package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/sidekick/internal/contextwin"
	"github.com/haasonsaas/sidekick/internal/observability"
	"github.com/haasonsaas/sidekick/internal/planner"
	"github.com/haasonsaas/sidekick/internal/policy"
	"github.com/haasonsaas/sidekick/internal/providers"
	"github.com/haasonsaas/sidekick/internal/tools"
	"github.com/haasonsaas/sidekick/internal/tools/files"
	"github.com/haasonsaas/sidekick/internal/workspace"
	"github.com/haasonsaas/sidekick/pkg/models"
)

// replayProvider returns one scripted reply per model call. When the script
// runs out it repeats the last reply.
type replayProvider struct {
	replies []string
	calls   int
}

func (p *replayProvider) Name() string { return "replay" }

func (p *replayProvider) Complete(_ context.Context, _ *providers.CompletionRequest) (<-chan *providers.CompletionChunk, error) {
	reply := ""
	if len(p.replies) > 0 {
		idx := p.calls
		if idx >= len(p.replies) {
			idx = len(p.replies) - 1
		}
		reply = p.replies[idx]
	}
	p.calls++
	out := make(chan *providers.CompletionChunk, 2)
	out <- &providers.CompletionChunk{Text: reply}
	out <- &providers.CompletionChunk{Done: true}
	close(out)
	return out, nil
}

// spyTool records whether it ran.
type spyTool struct {
	spec tools.Spec
	ran  int
	fn   func(args map[string]any) *models.ToolResult
}

func (s *spyTool) Spec() tools.Spec { return s.spec }

func (s *spyTool) Execute(_ context.Context, args map[string]any) *models.ToolResult {
	s.ran++
	if s.fn != nil {
		return s.fn(args)
	}
	return models.Succeed(map[string]any{"ok": true})
}

type harness struct {
	agent    *Agent
	emitter  *Emitter
	provider *replayProvider
	root     string
}

func newHarness(t *testing.T, replies []string, pol policy.Policy, extraTools ...tools.Tool) *harness {
	t.Helper()
	root := t.TempDir()
	resolver, err := workspace.NewResolver(root)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}

	registry := tools.NewRegistry()
	cfg := files.Config{Resolver: resolver}
	for _, tool := range []tools.Tool{files.NewReadFileTool(cfg), files.NewListDirTool(cfg)} {
		if err := registry.Register(tool); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	for _, tool := range extraTools {
		if err := registry.Register(tool); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	emitter := NewEmitter("trace-test", nil, 1024)
	executor := tools.NewExecutor(tools.ExecutorOptions{
		Registry: registry,
		Gate:     policy.NewGate(pol, resolver),
		OnEvent:  emitter.Emit,
	})
	window, err := contextwin.NewManager(32000, 2000, 5)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	provider := &replayProvider{replies: replies}

	agent := New(Options{
		Provider: provider,
		Executor: executor,
		Registry: registry,
		Window:   window,
		Emitter:  emitter,
		Config: Config{
			Model:         "test-model",
			MaxIterations: 8,
			WorkspaceRoot: root,
		},
	})
	return &harness{agent: agent, emitter: emitter, provider: provider, root: root}
}

func (h *harness) events() []*models.Event {
	h.emitter.Close()
	var out []*models.Event
	for ev := range h.emitter.Events() {
		out = append(out, ev)
	}
	return out
}

func countKind(events []*models.Event, kind models.EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func TestRunListDirectoryScenario(t *testing.T) {
	h := newHarness(t, []string{
		`{"tool": "list_dir", "args": {"path": "src"}}`,
		"src contains main.go and util.go.",
	}, policy.Policy{})
	if err := os.MkdirAll(filepath.Join(h.root, "src"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"main.go", "util.go"} {
		if err := os.WriteFile(filepath.Join(h.root, "src", name), []byte("package main\n"), 0o644); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	out, err := h.agent.Run(context.Background(), "list files in src")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.StopReason != models.StopReasonDone {
		t.Fatalf("stop = %q", out.StopReason)
	}
	if !strings.Contains(out.FinalText, "main.go") {
		t.Fatalf("final = %q", out.FinalText)
	}
	if out.Iterations > 3 {
		t.Fatalf("iterations = %d", out.Iterations)
	}

	events := h.events()
	if countKind(events, models.EventToolCallParsed) != 1 {
		t.Fatalf("tool_call_parsed count wrong")
	}
	if countKind(events, models.EventToolResult) != 1 {
		t.Fatalf("tool_result count wrong")
	}
	// Sequence numbers are strictly increasing.
	for i := 1; i < len(events); i++ {
		if events[i].Sequence <= events[i-1].Sequence {
			t.Fatalf("sequence not increasing at %d", i)
		}
	}
	if h.agent.State() != StateDone {
		t.Fatalf("state = %s", h.agent.State())
	}
}

func TestRunStopsAtMaxIterations(t *testing.T) {
	h := newHarness(t, []string{
		`{"tool": "list_dir", "args": {"path": "."}}`,
	}, policy.Policy{})

	out, err := h.agent.Run(context.Background(), "loop forever")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.StopReason != models.StopReasonMaxToolCalls {
		t.Fatalf("stop = %q", out.StopReason)
	}
	if h.provider.calls != 8 {
		t.Fatalf("model calls = %d, want 8", h.provider.calls)
	}
	events := h.events()
	found := false
	for _, ev := range events {
		if ev.Kind == models.EventStopReason && ev.Data["reason"] == models.StopReasonMaxToolCalls {
			found = true
		}
	}
	if !found {
		t.Fatal("missing max_tool_calls_reached stop event")
	}
}

func TestRunPolicyDeniedCommandSpawnsNothing(t *testing.T) {
	runCmd := &spyTool{spec: tools.Spec{
		Name:             "run_cmd",
		Description:      "run a command",
		ExecutesCommands: true,
		Schema: tools.ObjectSchema(map[string]any{
			"command": map[string]any{"type": "string"},
		}, "command"),
	}}
	h := newHarness(t, []string{
		`{"tool": "run_cmd", "args": {"command": "curl example.com"}}`,
		"That command needs network access, which is disabled. Try a local file instead.",
	}, policy.Policy{AllowNetwork: false}, runCmd)

	out, err := h.agent.Run(context.Background(), "run curl example.com")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if runCmd.ran != 0 {
		t.Fatal("denied command still executed")
	}
	if !strings.Contains(out.FinalText, "disabled") {
		t.Fatalf("final = %q", out.FinalText)
	}
	events := h.events()
	if countKind(events, models.EventPolicyDenyCmd) != 1 {
		t.Fatal("missing policy_deny_cmd event")
	}
}

func TestRunRecordsModelMetrics(t *testing.T) {
	h := newHarness(t, []string{
		`{"tool": "list_dir", "args": {"path": "."}}`,
		"The directory is empty.",
	}, policy.Policy{})
	m := observability.NewMetrics()
	h.agent.metrics = m

	if _, err := h.agent.Run(context.Background(), "what is in here"); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := testutil.ToFloat64(m.LLMRequestCounter.WithLabelValues("replay", "test-model", "success"))
	if int(got) != h.provider.calls {
		t.Fatalf("request counter = %v, want %d", got, h.provider.calls)
	}
	if n := testutil.CollectAndCount(m.LLMRequestDuration); n != 1 {
		t.Fatalf("duration series = %d, want 1", n)
	}
}

func TestRunMultipleToolCallsCorrected(t *testing.T) {
	h := newHarness(t, []string{
		`{"tool": "list_dir", "args": {"path": "a"}}` + "\n" + `{"tool": "list_dir", "args": {"path": "b"}}`,
		"Understood, nothing to do.",
	}, policy.Policy{})

	out, err := h.agent.Run(context.Background(), "do two things at once")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.StopReason != models.StopReasonDone {
		t.Fatalf("stop = %q", out.StopReason)
	}
	if n := countKind(h.events(), models.EventToolCallParsed); n != 0 {
		t.Fatalf("tool_call_parsed = %d, want 0", n)
	}
}

func TestRunStutterTruncated(t *testing.T) {
	h := newHarness(t, []string{
		"The answer is ready." + strings.Repeat("=", 400),
	}, policy.Policy{})

	out, err := h.agent.Run(context.Background(), "say something")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.FinalText != "The answer is ready." {
		t.Fatalf("final = %q", out.FinalText)
	}
	if countKind(h.events(), models.EventStutteringDetected) != 1 {
		t.Fatal("missing stuttering_detected event")
	}
}

func TestRunCancelledContext(t *testing.T) {
	h := newHarness(t, []string{
		`{"tool": "list_dir", "args": {"path": "."}}`,
	}, policy.Policy{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := h.agent.Run(ctx, "anything")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.StopReason != models.StopReasonUserCancel {
		t.Fatalf("stop = %q", out.StopReason)
	}
}

func TestRunPlannedFlow(t *testing.T) {
	planJSON := `{
		"title": "Two-step task",
		"steps": [
			{"id": "s1", "description": "Inspect the directory"},
			{"id": "s2", "description": "Report findings", "dependencies": ["s1"]}
		]
	}`
	h := newHarness(t, []string{
		"Step one inspected.",
		"Everything looks good; both files are present.",
	}, policy.Policy{})
	h.agent.planner = planner.New(&replayProvider{replies: []string{planJSON}}, "test-model", 0, 0)

	out, err := h.agent.Run(context.Background(), "First inspect the directory, then report findings. Do it step by step.")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.StopReason != models.StopReasonDone {
		t.Fatalf("stop = %q", out.StopReason)
	}
	if out.Plan == nil || !out.Plan.Done() {
		t.Fatalf("plan = %+v", out.Plan)
	}
	if !strings.Contains(out.FinalText, "both files are present") {
		t.Fatalf("final = %q", out.FinalText)
	}

	events := h.events()
	if countKind(events, models.EventPlanGenerated) != 1 {
		t.Fatal("missing plan_generated")
	}
	if countKind(events, models.EventPlanStepStart) != 2 || countKind(events, models.EventPlanStepDone) != 2 {
		t.Fatal("plan step events wrong")
	}
	if countKind(events, models.EventFinalVerify) != 1 {
		t.Fatal("missing final_verify")
	}
}

func TestRunReplanOnBlockedStep(t *testing.T) {
	planJSON := `{"title": "plan", "steps": [{"id": "s1", "description": "Edit missing file"}]}`
	replanJSON := `{"title": "plan B", "steps": [{"id": "r1", "description": "Create the file instead"}]}`
	h := newHarness(t, []string{
		"BLOCKED: target file does not exist",
		"Created the file as a fallback.",
	}, policy.Policy{})
	h.agent.planner = planner.New(&replayProvider{replies: []string{planJSON, replanJSON}}, "test-model", 0, 0)
	h.agent.cfg.MaxReplans = 1

	out, err := h.agent.Run(context.Background(), "Edit the config file, then verify it. Do it step by step.")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.StopReason != models.StopReasonDone {
		t.Fatalf("stop = %q", out.StopReason)
	}

	events := h.events()
	if countKind(events, models.EventPlanStepBlocked) != 1 {
		t.Fatal("missing plan_step_blocked")
	}
	if countKind(events, models.EventReplanGenerated) != 1 {
		t.Fatal("missing replan_generated")
	}
}
