package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/haasonsaas/sidekick/internal/cache"
	"github.com/haasonsaas/sidekick/internal/observability"
	"github.com/haasonsaas/sidekick/internal/policy"
	"github.com/haasonsaas/sidekick/pkg/models"
)

// Prompter asks the user a yes/no question. Synchronous.
type Prompter interface {
	Ask(message string) bool
}

// EventFunc receives pipeline events for the UI and the audit trail.
type EventFunc func(kind models.EventKind, data map[string]any)

// Executor runs tool calls through the full pipeline. It is session-scoped;
// nothing here is a process global.
type Executor struct {
	registry *Registry
	gate     *policy.Gate
	cache    *cache.ToolCache
	prompter Prompter
	logger   *observability.Logger
	metrics  *observability.Metrics

	// defaultTimeout bounds tools that do not declare their own.
	defaultTimeout time.Duration

	// onEvent is optional; nil means no emission.
	onEvent EventFunc
}

// ExecutorOptions wires the executor's collaborators.
type ExecutorOptions struct {
	Registry       *Registry
	Gate           *policy.Gate
	Cache          *cache.ToolCache
	Prompter       Prompter
	Logger         *observability.Logger
	Metrics        *observability.Metrics
	DefaultTimeout time.Duration
	OnEvent        EventFunc
}

// NewExecutor creates an executor.
func NewExecutor(opts ExecutorOptions) *Executor {
	timeout := opts.DefaultTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Executor{
		registry:       opts.Registry,
		gate:           opts.Gate,
		cache:          opts.Cache,
		prompter:       opts.Prompter,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		defaultTimeout: timeout,
		onEvent:        opts.OnEvent,
	}
}

// Execute runs one tool call. It always returns a ToolResult; failures are
// encoded as {ok:false, error:{code, message}} so the model can react.
func (x *Executor) Execute(ctx context.Context, call models.ToolCall) *models.ToolResult {
	start := time.Now()
	result := x.execute(ctx, call)
	result.DurationMs = time.Since(start).Milliseconds()

	status := "success"
	if !result.OK {
		status = "error"
		if x.metrics != nil && result.Error != nil {
			x.metrics.ErrorCounter.WithLabelValues("tool", string(result.Error.Code)).Inc()
		}
	} else if result.Cached {
		status = "cached"
	}
	if x.metrics != nil {
		x.metrics.ToolExecutionCounter.WithLabelValues(call.Tool, status).Inc()
		x.metrics.ToolExecutionDuration.WithLabelValues(call.Tool).Observe(time.Since(start).Seconds())
	}
	x.emit(models.EventToolResult, map[string]any{
		"tool":        call.Tool,
		"ok":          result.OK,
		"cached":      result.Cached,
		"duration_ms": result.DurationMs,
		"error_code":  string(result.ErrorCodeOf()),
	})
	return result
}

func (x *Executor) execute(ctx context.Context, call models.ToolCall) *models.ToolResult {
	tool, ok := x.registry.Get(call.Tool)
	if !ok {
		return models.Fail(models.CodeNoTool, fmt.Sprintf("unknown tool %q", call.Tool))
	}
	if errInfo := x.registry.ValidateArgs(call.Tool, call.Args); errInfo != nil {
		return &models.ToolResult{OK: false, Error: errInfo}
	}
	spec := tool.Spec()

	verdict := x.gate.Check(call, policy.ToolTraits{
		NeedsNetwork:     spec.NeedsNetwork,
		WritesFiles:      spec.WritesFiles,
		ExecutesCommands: spec.ExecutesCommands,
	})
	if x.metrics != nil {
		x.metrics.PolicyDecisionCounter.WithLabelValues(string(verdict.Decision)).Inc()
	}
	switch verdict.Decision {
	case policy.DecisionDeny:
		if spec.ExecutesCommands {
			x.emit(models.EventPolicyDenyCmd, map[string]any{
				"reason": verdict.Reason,
				"risk":   verdict.Risk.String(),
			})
		}
		if x.logger != nil {
			x.logger.Warn(ctx, "tool call denied by policy",
				"tool", call.Tool, "reason", verdict.Reason, "risk", verdict.Risk.String())
		}
		return models.Fail(verdict.Code, verdict.Reason)
	case policy.DecisionConfirm:
		kind := models.EventConfirmWrite
		if verdict.Confirm == policy.ConfirmExec {
			kind = models.EventConfirmExec
		}
		x.emit(kind, map[string]any{"tool": call.Tool, "reason": verdict.Reason})
		if x.prompter == nil || !x.prompter.Ask(confirmMessage(call, verdict)) {
			return models.Fail(models.CodeDenied, "denied by user")
		}
	}

	var key string
	if spec.Cacheable && x.cache != nil {
		key = cache.Key(call.Tool, call.Args)
		if cached, hit := x.cache.Get(key); hit {
			if x.metrics != nil {
				x.metrics.CacheCounter.WithLabelValues("hit").Inc()
			}
			copied := *cached
			copied.Cached = true
			return &copied
		}
		if x.metrics != nil {
			x.metrics.CacheCounter.WithLabelValues("miss").Inc()
		}
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = x.defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := x.run(runCtx, tool, call)
	if runCtx.Err() == context.DeadlineExceeded && (result == nil || result.OK) {
		result = models.Fail(models.CodeTimeout,
			fmt.Sprintf("tool %s exceeded its %s timeout", call.Tool, timeout))
	}
	if result == nil {
		result = models.Fail(models.CodeTool, "tool returned no result")
	}

	if result.OK && key != "" {
		x.cache.Put(key, result)
	}
	return result
}

// run executes the tool with panic recovery. A panicking tool becomes an
// E_TOOL result instead of taking the session down.
func (x *Executor) run(ctx context.Context, tool Tool, call models.ToolCall) (result *models.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			if x.logger != nil {
				x.logger.Error(ctx, "tool panicked", "tool", call.Tool, "panic", fmt.Sprint(r))
			}
			result = models.Fail(models.CodeTool, fmt.Sprintf("tool %s panicked: %v", call.Tool, r))
		}
	}()
	return tool.Execute(ctx, call.Args)
}

func (x *Executor) emit(kind models.EventKind, data map[string]any) {
	if x.onEvent != nil {
		x.onEvent(kind, data)
	}
}

func confirmMessage(call models.ToolCall, verdict policy.Verdict) string {
	switch verdict.Confirm {
	case policy.ConfirmExec:
		cmd, _ := call.Args["command"].(string)
		return fmt.Sprintf("Run command %q? (%s)", cmd, verdict.Reason)
	default:
		target, _ := call.Args["path"].(string)
		if target == "" {
			return fmt.Sprintf("Allow %s? (%s)", call.Tool, verdict.Reason)
		}
		return fmt.Sprintf("Modify %q via %s? (%s)", target, call.Tool, verdict.Reason)
	}
}
