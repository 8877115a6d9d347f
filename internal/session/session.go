// Package session assembles one agent session from configuration: tools,
// policy, cache, journal, model client, planner, audit. Everything is
// session-scoped; there are no process globals.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/sidekick/internal/agent"
	"github.com/haasonsaas/sidekick/internal/audit"
	"github.com/haasonsaas/sidekick/internal/cache"
	"github.com/haasonsaas/sidekick/internal/config"
	"github.com/haasonsaas/sidekick/internal/contextwin"
	"github.com/haasonsaas/sidekick/internal/observability"
	"github.com/haasonsaas/sidekick/internal/patch"
	"github.com/haasonsaas/sidekick/internal/planner"
	"github.com/haasonsaas/sidekick/internal/plugins"
	"github.com/haasonsaas/sidekick/internal/policy"
	"github.com/haasonsaas/sidekick/internal/providers"
	"github.com/haasonsaas/sidekick/internal/tools"
	"github.com/haasonsaas/sidekick/internal/tools/display"
	"github.com/haasonsaas/sidekick/internal/tools/files"
	"github.com/haasonsaas/sidekick/internal/tools/patchtool"
	"github.com/haasonsaas/sidekick/internal/tools/search"
	"github.com/haasonsaas/sidekick/internal/tools/semantic"
	"github.com/haasonsaas/sidekick/internal/tools/shell"
	"github.com/haasonsaas/sidekick/internal/tools/weather"
	"github.com/haasonsaas/sidekick/internal/vectorstore"
	"github.com/haasonsaas/sidekick/internal/workspace"
	"github.com/haasonsaas/sidekick/pkg/models"
)

// Session owns one conversation and its collaborators. Concurrent sessions
// in one process are not supported; the CLI creates exactly one.
type Session struct {
	ID        string
	CreatedAt time.Time

	cfg      *config.Config
	paths    *ProjectPaths
	logger   *observability.Logger
	metrics  *observability.Metrics
	resolver *workspace.Resolver
	cache    *cache.ToolCache
	journal  *patch.Journal
	engine   *patch.Engine
	registry *tools.Registry
	sink     *audit.Sink
	emitter  *agent.Emitter
	agent    *agent.Agent
	store    *vectorstore.Store

	turns []turnRecord
}

type turnRecord struct {
	Request    string    `json:"request"`
	FinalText  string    `json:"final_text"`
	StopReason string    `json:"stop_reason"`
	Iterations int       `json:"iterations"`
	At         time.Time `json:"at"`
}

// Options carries the parts the CLI supplies.
type Options struct {
	Config   *config.Config
	Prompter tools.Prompter
	Logger   *observability.Logger
}

// New builds a session. Close must be called to flush the audit trail.
func New(opts Options) (*Session, error) {
	cfg := opts.Config
	if cfg.WorkspaceRoot == "" {
		return nil, fmt.Errorf("workspace_root is required")
	}

	resolver, err := workspace.NewResolver(cfg.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	paths, err := NewProjectPaths(cfg.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("project layout: %w", err)
	}

	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		cfg:       cfg,
		paths:     paths,
		logger:    opts.Logger,
		metrics:   observability.NewMetrics(),
		resolver:  resolver,
	}
	s.metrics.ActiveSessions.Inc()

	s.sink, err = audit.Open(paths.AuditLog, audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	s.emitter = agent.NewEmitter(uuid.NewString(), s.sink, 256)

	s.cache = cache.New(
		time.Duration(cfg.Context.CacheTTLS)*time.Second,
		cfg.Context.CacheMaxEntries,
	)
	s.journal, err = patch.NewJournal(paths.JournalFile(s.ID))
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	s.engine = patch.NewEngine(resolver, s.journal)
	s.engine.OnChange = func(relPath string) { s.cache.Invalidate(relPath) }
	s.engine.Metrics = s.metrics

	if err := s.buildRegistry(); err != nil {
		return nil, err
	}

	gate := policy.NewGate(policy.Policy{
		AllowNetwork:     cfg.Policy.AllowNetwork,
		ConfirmWrite:     cfg.Policy.ConfirmWrite,
		ConfirmExec:      cfg.Policy.ConfirmExec,
		AllowedTools:     cfg.Policy.AllowedTools,
		DisallowedTools:  cfg.Policy.DisallowedTools,
		CommandDenylist:  cfg.Policy.CommandDenylist,
		CommandAllowlist: cfg.Policy.CommandAllowlist,
		PathRules:        cfg.Policy.PathRules,
		MaxRiskLevel:     policy.ParseRiskLevel(cfg.Policy.MaxRiskLevel),
	}, resolver)

	executor := tools.NewExecutor(tools.ExecutorOptions{
		Registry:       s.registry,
		Gate:           gate,
		Cache:          s.cache,
		Prompter:       opts.Prompter,
		Logger:         s.logger,
		Metrics:        s.metrics,
		DefaultTimeout: time.Duration(cfg.Limits.ToolTimeoutS) * time.Second,
		OnEvent:        s.emitter.Emit,
	})

	window, err := contextwin.NewManager(
		cfg.Context.MaxTokens,
		cfg.Context.ReservedOutput,
		cfg.Context.ProtectedRecent,
	)
	if err != nil {
		return nil, fmt.Errorf("context window: %w", err)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	s.agent = agent.New(agent.Options{
		Provider: provider,
		Executor: executor,
		Registry: s.registry,
		Window:   window,
		Planner:  planner.New(provider, cfg.LLM.Model, cfg.LLM.Temperature, cfg.LLM.MaxTokens),
		Emitter:  s.emitter,
		Logger:   s.logger,
		Metrics:  s.metrics,
		Config: agent.Config{
			Model:         cfg.LLM.Model,
			Temperature:   cfg.LLM.Temperature,
			MaxTokens:     cfg.LLM.MaxTokens,
			MaxIterations: cfg.Limits.MaxIterations,
			MaxReplans:    cfg.Limits.MaxReplans,
			WorkspaceRoot: cfg.WorkspaceRoot,
		},
	})
	return s, nil
}

// buildRegistry registers the built-in tools plus discovered plugins.
func (s *Session) buildRegistry() error {
	s.registry = tools.NewRegistry()
	fileCfg := files.Config{
		Resolver:     s.resolver,
		Engine:       s.engine,
		MaxReadBytes: s.cfg.Limits.MaxFileReadBytes,
	}

	builtins := []tools.Tool{
		files.NewReadFileTool(fileCfg),
		files.NewWriteFileTool(fileCfg),
		files.NewListDirTool(fileCfg),
		files.NewGlobTool(fileCfg),
		search.NewGrepTool(s.resolver),
		patchtool.NewApplyPatchTool(s.engine),
		patchtool.NewUndoPatchTool(s.engine),
		shell.NewRunCmdTool(s.resolver, s.cfg.Limits.MaxOutputBytes),
		display.New(s.emitter),
	}
	if s.cfg.Weather.Enabled {
		builtins = append(builtins, weather.New(s.cfg.Weather))
	}
	if tool := s.semanticTool(); tool != nil {
		builtins = append(builtins, tool)
	}
	for _, tool := range builtins {
		if err := s.registry.Register(tool); err != nil {
			return fmt.Errorf("register %s: %w", tool.Spec().Name, err)
		}
	}

	manifests, err := plugins.DiscoverManifests([]string{
		filepath.Join(s.cfg.WorkspaceRoot, ".sidekick", "plugins"),
	})
	if err != nil {
		// A broken manifest disables plugins, never the session.
		if s.logger != nil {
			s.logger.Warn(context.Background(), "plugin discovery failed", "error", err)
		}
		return nil
	}
	host := plugins.NewSubprocessHost(manifests, s.cfg.Limits.MaxOutputBytes)
	for _, m := range manifests {
		if err := s.registry.Register(plugins.NewPluginTool(m, host)); err != nil {
			if s.logger != nil {
				s.logger.Warn(context.Background(), "plugin rejected", "plugin", m.ID, "error", err)
			}
		}
	}
	return nil
}

// semanticTool wires search_semantic when the external indexer has produced
// a database. Absent index means the agent degrades to grep.
func (s *Session) semanticTool() tools.Tool {
	dbPath := filepath.Join(s.paths.VectorDB, "index.db")
	if _, err := os.Stat(dbPath); err != nil {
		return nil
	}
	store, err := vectorstore.Open(dbPath)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn(context.Background(), "vector store unavailable", "error", err)
		}
		return nil
	}
	s.store = store
	embedder := providers.NewOpenAIEmbedder(
		s.cfg.LLM.BaseURL, s.cfg.LLM.APIKey, "",
		time.Duration(s.cfg.LLM.TimeoutS)*time.Second,
	)
	return semantic.NewSearchTool(store, embedder)
}

func buildProvider(cfg *config.Config) (providers.Provider, error) {
	timeout := time.Duration(cfg.LLM.TimeoutS) * time.Second
	switch cfg.LLM.APIMode {
	case "", "openai":
		return providers.NewOpenAIProvider(providers.OpenAIOptions{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: timeout,
		}), nil
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicOptions{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown api_mode %q", cfg.LLM.APIMode)
	}
}

// Registry exposes the tool registry, mainly for CLI introspection.
func (s *Session) Registry() *tools.Registry {
	return s.registry
}

// Events exposes the session's event stream for the UI.
func (s *Session) Events() <-chan *models.Event {
	return s.emitter.Events()
}

// Run drives one user turn and snapshots the session afterwards.
func (s *Session) Run(ctx context.Context, request string) (*agent.Outcome, error) {
	outcome, err := s.agent.Run(ctx, request)
	if outcome != nil {
		s.turns = append(s.turns, turnRecord{
			Request:    request,
			FinalText:  outcome.FinalText,
			StopReason: outcome.StopReason,
			Iterations: outcome.Iterations,
			At:         time.Now(),
		})
		if snapErr := s.snapshot(); snapErr != nil && s.logger != nil {
			s.logger.Warn(ctx, "session snapshot failed", "error", snapErr)
		}
	}
	return outcome, err
}

// snapshot persists the session summary to sessions/<id>.json.
func (s *Session) snapshot() error {
	stats := s.cache.Stats()
	snap := map[string]any{
		"id":             s.ID,
		"created_at":     s.CreatedAt,
		"workspace_root": s.cfg.WorkspaceRoot,
		"project_id":     s.paths.ProjectID,
		"turns":          s.turns,
		"journal_len":    s.journal.Len(),
		"cache": map[string]any{
			"size":          stats.Size,
			"hits":          stats.Hits,
			"misses":        stats.Misses,
			"invalidations": stats.Invalidations,
		},
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.paths.SessionFile(s.ID), data, 0o644)
}

// Close tears the session down: event channel, journal, vector store,
// audit sink.
func (s *Session) Close() error {
	s.metrics.ActiveSessions.Dec()
	s.emitter.Close()
	if s.store != nil {
		s.store.Close()
	}
	if err := s.journal.Close(); err != nil {
		s.sink.Close()
		return err
	}
	return s.sink.Close()
}
