// Package agent drives the orchestration loop: render the context window,
// call the model, parse at most one tool call, execute it, feed the result
// back, and repeat until a final answer or a budget stop.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/sidekick/internal/contextwin"
	"github.com/haasonsaas/sidekick/internal/observability"
	"github.com/haasonsaas/sidekick/internal/planner"
	"github.com/haasonsaas/sidekick/internal/providers"
	"github.com/haasonsaas/sidekick/internal/tools"
	"github.com/haasonsaas/sidekick/pkg/models"
)

// State names the agent loop's position in its state machine.
type State string

const (
	StateIdle            State = "IDLE"
	StateIntake          State = "INTAKE"
	StateContextBuilding State = "CONTEXT_BUILDING"
	StatePlanning        State = "PLANNING"
	StateExecuting       State = "EXECUTING"
	StateVerifying       State = "VERIFYING"
	StateSummarizing     State = "SUMMARIZING"
	StateDone            State = "DONE"
)

// Config tunes one agent session.
type Config struct {
	Model         string
	Temperature   float32
	MaxTokens     int
	MaxIterations int
	MaxReplans    int
	WorkspaceRoot string
}

// Options wires the agent's collaborators.
type Options struct {
	Provider providers.Provider
	Executor *tools.Executor
	Registry *tools.Registry
	Window   *contextwin.Manager
	Planner  *planner.Planner // optional; nil disables planning
	Emitter  *Emitter
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Config   Config
}

// Agent runs one session's loop. Not safe for concurrent Run calls.
type Agent struct {
	provider providers.Provider
	executor *tools.Executor
	registry *tools.Registry
	window   *contextwin.Manager
	planner  *planner.Planner
	emitter  *Emitter
	logger   *observability.Logger
	metrics  *observability.Metrics
	cfg      Config

	state State
}

// Outcome is the result of one turn.
type Outcome struct {
	FinalText  string
	StopReason string
	Iterations int
	Plan       *models.Plan
}

// New creates an agent.
func New(opts Options) *Agent {
	cfg := opts.Config
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 20
	}
	if cfg.MaxReplans < 0 {
		cfg.MaxReplans = 0
	}
	return &Agent{
		provider: opts.Provider,
		executor: opts.Executor,
		registry: opts.Registry,
		window:   opts.Window,
		planner:  opts.Planner,
		emitter:  opts.Emitter,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		cfg:      cfg,
		state:    StateIdle,
	}
}

// State reports the loop's current state.
func (a *Agent) State() State {
	return a.state
}

func (a *Agent) setState(s State) {
	a.state = s
	a.emitter.Emit(models.EventState, map[string]any{"state": string(s)})
}

// Run drives one user turn to completion.
func (a *Agent) Run(ctx context.Context, request string) (*Outcome, error) {
	a.setState(StateIntake)
	a.emitter.Emit(models.EventUserMessage, map[string]any{"content": request})

	a.setState(StateContextBuilding)
	a.window.SetSystem(buildSystemPrompt(a.registry, a.cfg.WorkspaceRoot))
	a.window.Append(models.Message{
		Role:     models.RoleUser,
		Content:  request,
		Priority: models.PriorityRecent,
	})

	var plan *models.Plan
	if a.planner != nil && complexIntent(request) {
		a.setState(StatePlanning)
		p, err := a.planner.Plan(ctx, "You plan work for a coding agent.", request)
		if err != nil {
			// Planning is an optimization; a trivial loop still works.
			if a.logger != nil {
				a.logger.Warn(ctx, "planning failed, continuing without plan", "error", err)
			}
		} else {
			plan = p
			a.emitter.Emit(models.EventPlanGenerated, planData(plan))
		}
	}

	a.setState(StateExecuting)
	return a.executeLoop(ctx, request, plan)
}

func (a *Agent) executeLoop(ctx context.Context, request string, plan *models.Plan) (*Outcome, error) {
	keywords := extractKeywords(request)
	replans := 0
	currentStep := ""
	lastAssistant := ""

	for iter := 0; iter < a.cfg.MaxIterations; iter++ {
		a.emitter.SetStepIndex(iter)
		if ctx.Err() != nil {
			return a.stop(StopOutcome{Reason: models.StopReasonUserCancel, Text: lastAssistant, Iterations: iter, Plan: plan})
		}

		if plan != nil && currentStep == "" {
			ready := plan.Ready()
			if len(ready) == 0 {
				break // plan done; summarize below
			}
			currentStep = ready[0]
			step := plan.Step(currentStep)
			a.emitter.Emit(models.EventPlanStepStart, map[string]any{
				"step": currentStep, "description": step.Description,
			})
			a.window.Append(models.Message{
				Role:     models.RoleUser,
				Content:  fmt.Sprintf("Work on plan step %s: %s", currentStep, step.Description),
				Priority: models.PriorityWorking,
			})
		}

		text, err := a.complete(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return a.stop(StopOutcome{Reason: models.StopReasonUserCancel, Text: lastAssistant, Iterations: iter, Plan: plan})
			}
			// Model transport failure ends the turn; nothing to feed back.
			a.emitter.Emit(models.EventStopReason, map[string]any{
				"reason": models.StopReasonFatalError, "error": err.Error(),
			})
			a.setState(StateDone)
			return &Outcome{StopReason: models.StopReasonFatalError, Iterations: iter, Plan: plan}, err
		}

		if truncated, stuttered := detectStutter(text); stuttered {
			a.emitter.Emit(models.EventStutteringDetected, map[string]any{
				"original_len": len(text), "kept_len": len(truncated),
			})
			text = truncated
		}
		lastAssistant = text

		call, perr := ParseToolCall(text)
		if perr != nil {
			a.window.Append(models.Message{Role: models.RoleAssistant, Content: text, Priority: models.PriorityWorking})
			a.window.Append(models.Message{
				Role:     models.RoleUser,
				Content:  "Your response contained multiple distinct tool calls. Emit exactly one JSON object per response.",
				Priority: models.PriorityWorking,
			})
			continue
		}

		if call == nil {
			outcome, done := a.handleFinalText(ctx, text, plan, &currentStep, &replans, iter)
			if done {
				return outcome, nil
			}
			continue
		}

		a.emitter.Emit(models.EventToolCallParsed, map[string]any{"tool": call.Tool, "args": call.Args})
		a.window.Append(models.Message{Role: models.RoleAssistant, Content: text, Priority: models.PriorityWorking})

		result := a.executor.Execute(ctx, *call)
		a.window.Append(models.Message{
			Role:     models.RoleUser,
			Content:  formatFeedback(call, result, keywords),
			Priority: models.PriorityWorking,
		})
	}

	if plan != nil && plan.Done() {
		return a.summarize(ctx, plan)
	}
	return a.stop(StopOutcome{
		Reason:     models.StopReasonMaxToolCalls,
		Text:       lastAssistant,
		Iterations: a.cfg.MaxIterations,
		Plan:       plan,
	})
}

// handleFinalText processes an assistant response with no tool call. The
// bool result reports whether the turn is over.
func (a *Agent) handleFinalText(ctx context.Context, text string, plan *models.Plan, currentStep *string, replans *int, iter int) (*Outcome, bool) {
	trimmed := strings.TrimSpace(text)

	if plan != nil && strings.HasPrefix(trimmed, blockedPrefix) {
		reason := strings.TrimSpace(strings.TrimPrefix(trimmed, blockedPrefix))
		a.emitter.Emit(models.EventPlanStepBlocked, map[string]any{
			"step": *currentStep, "reason": reason,
		})
		if a.planner != nil && *replans < a.cfg.MaxReplans {
			*replans++
			a.setState(StatePlanning)
			newPlan, err := a.planner.Replan(ctx, "You plan work for a coding agent.", plan, reason)
			a.setState(StateExecuting)
			if err == nil {
				*plan = *newPlan
				*currentStep = ""
				a.emitter.Emit(models.EventReplanGenerated, planData(plan))
				return nil, false
			}
			if a.logger != nil {
				a.logger.Warn(ctx, "replan failed", "error", err)
			}
		}
		out, _ := a.stop(StopOutcome{
			Reason:     models.StopReasonBudgetExhausted,
			Text:       text,
			Iterations: iter + 1,
			Plan:       plan,
		})
		return out, true
	}

	a.window.Append(models.Message{Role: models.RoleAssistant, Content: text, Priority: models.PriorityRecent})

	if plan != nil && *currentStep != "" {
		a.setState(StateVerifying)
		plan.Step(*currentStep).Done = true
		a.emitter.Emit(models.EventPlanStepDone, map[string]any{"step": *currentStep})
		*currentStep = ""
		if !plan.Done() {
			a.setState(StateExecuting)
			return nil, false
		}
		a.emitter.Emit(models.EventFinalVerify, map[string]any{"steps": len(plan.Steps)})
	}

	a.setState(StateSummarizing)
	a.emitter.Emit(models.EventStopReason, map[string]any{"reason": models.StopReasonDone})
	a.setState(StateDone)
	return &Outcome{
		FinalText:  text,
		StopReason: models.StopReasonDone,
		Iterations: iter + 1,
		Plan:       plan,
	}, true
}

// summarize asks the model for a closing answer once every plan step is done.
func (a *Agent) summarize(ctx context.Context, plan *models.Plan) (*Outcome, error) {
	a.setState(StateSummarizing)
	a.window.Append(models.Message{
		Role:     models.RoleUser,
		Content:  "All plan steps are done. Summarize what was accomplished for the user. Do not call tools.",
		Priority: models.PriorityWorking,
	})
	text, err := a.complete(ctx)
	if err != nil {
		text = fmt.Sprintf("Completed all %d plan steps.", len(plan.Steps))
	}
	a.emitter.Emit(models.EventFinalVerify, map[string]any{"steps": len(plan.Steps)})
	a.emitter.Emit(models.EventStopReason, map[string]any{"reason": models.StopReasonDone})
	a.setState(StateDone)
	return &Outcome{
		FinalText:  text,
		StopReason: models.StopReasonDone,
		Iterations: a.cfg.MaxIterations,
		Plan:       plan,
	}, nil
}

// StopOutcome carries an early-stop decision into stop().
type StopOutcome struct {
	Reason     string
	Text       string
	Iterations int
	Plan       *models.Plan
}

func (a *Agent) stop(s StopOutcome) (*Outcome, error) {
	a.emitter.Emit(models.EventStopReason, map[string]any{"reason": s.Reason})
	a.setState(StateDone)
	text := s.Text
	if text == "" {
		text = "Stopped before reaching a final answer (" + s.Reason + ")."
	}
	return &Outcome{
		FinalText:  text,
		StopReason: s.Reason,
		Iterations: s.Iterations,
		Plan:       s.Plan,
	}, nil
}

// complete renders the window and performs one blocking model call.
func (a *Agent) complete(ctx context.Context) (string, error) {
	rendered := a.window.Render()
	req := &providers.CompletionRequest{
		Model:       a.cfg.Model,
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	}
	for _, msg := range rendered {
		if msg.Role == models.RoleSystem {
			req.System = msg.Text()
			continue
		}
		req.Messages = append(req.Messages, providers.CompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Text(),
		})
	}

	a.emitter.Emit(models.EventLLMRequest, map[string]any{
		"model": req.Model, "messages": len(req.Messages),
	})
	start := time.Now()
	chunks, err := a.provider.Complete(ctx, req)
	var text string
	var usage *providers.Usage
	if err == nil {
		text, usage, err = providers.Collect(ctx, chunks)
	}
	if a.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		a.metrics.LLMRequestCounter.WithLabelValues(a.provider.Name(), a.cfg.Model, status).Inc()
		a.metrics.LLMRequestDuration.WithLabelValues(a.provider.Name(), a.cfg.Model).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return "", err
	}
	data := map[string]any{"chars": len(text)}
	if usage != nil {
		data["prompt_tokens"] = usage.PromptTokens
		data["completion_tokens"] = usage.CompletionTokens
		if a.metrics != nil {
			a.metrics.LLMTokensUsed.WithLabelValues(a.provider.Name(), a.cfg.Model, "prompt").Add(float64(usage.PromptTokens))
			a.metrics.LLMTokensUsed.WithLabelValues(a.provider.Name(), a.cfg.Model, "completion").Add(float64(usage.CompletionTokens))
		}
	}
	a.emitter.Emit(models.EventLLMResponse, data)
	return text, nil
}

// complexIntent decides whether a request warrants an explicit plan before
// execution. Short single-action asks go straight to the loop.
func complexIntent(request string) bool {
	lower := strings.ToLower(request)
	if len(request) > 200 {
		return true
	}
	for _, marker := range []string{" then ", " after that", " and also ", "refactor", "implement", "migrate", "step by step"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return strings.Count(request, ".")+strings.Count(request, ";") > 2
}

func planData(plan *models.Plan) map[string]any {
	steps := make([]any, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		steps = append(steps, map[string]any{"id": s.ID, "description": s.Description})
	}
	return map[string]any{"title": plan.Title, "steps": steps}
}
