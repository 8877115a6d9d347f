// Package planner asks the model for a structured step plan and validates
// it into an acyclic dependency graph.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/sidekick/internal/providers"
	"github.com/haasonsaas/sidekick/pkg/models"
)

// maxParseRetries bounds the "retry with error feedback" loop after a
// malformed plan response.
const maxParseRetries = 2

const planFormatPrompt = `Respond with a single JSON object and nothing else:
{"title": "...", "steps": [{"id": "s1", "description": "...", "dependencies": ["s0"], "expected_tool": "read_file"}]}
Step ids must be unique, dependencies must reference existing ids, and the dependency graph must be acyclic. Omit "dependencies" and "expected_tool" when not needed.`

// Planner produces and repairs plans via the model client.
type Planner struct {
	provider    providers.Provider
	model       string
	temperature float32
	maxTokens   int
}

// New creates a planner bound to a provider and model.
func New(provider providers.Provider, model string, temperature float32, maxTokens int) *Planner {
	return &Planner{
		provider:    provider,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

// Plan asks the model to decompose the user request into steps.
func (p *Planner) Plan(ctx context.Context, system, request string) (*models.Plan, error) {
	prompt := fmt.Sprintf("Break this request into a step plan.\n\nRequest:\n%s\n\n%s", request, planFormatPrompt)
	return p.converse(ctx, system, prompt)
}

// Replan asks the model for a replacement plan after a step reported it
// cannot proceed. The caller enforces the session-level replan cap.
func (p *Planner) Replan(ctx context.Context, system string, prior *models.Plan, reason string) (*models.Plan, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "The current plan cannot proceed.\n\nReason: %s\n\nCurrent plan %q:\n", reason, prior.Title)
	for _, step := range prior.Steps {
		status := "pending"
		if step.Done {
			status = "done"
		}
		fmt.Fprintf(&b, "- [%s] %s: %s\n", status, step.ID, step.Description)
	}
	fmt.Fprintf(&b, "\nProduce a replacement plan that works around the problem. Keep completed work; do not repeat done steps.\n\n%s", planFormatPrompt)
	return p.converse(ctx, system, b.String())
}

// converse runs the request plus up to maxParseRetries repair rounds, feeding
// the validation error back to the model each time.
func (p *Planner) converse(ctx context.Context, system, prompt string) (*models.Plan, error) {
	messages := []providers.CompletionMessage{
		{Role: string(models.RoleUser), Content: prompt},
	}

	var lastErr error
	for attempt := 0; attempt <= maxParseRetries; attempt++ {
		text, err := p.complete(ctx, system, messages)
		if err != nil {
			return nil, err
		}

		plan, err := ParsePlan(text)
		if err == nil {
			return plan, nil
		}
		lastErr = err

		messages = append(messages,
			providers.CompletionMessage{Role: string(models.RoleAssistant), Content: text},
			providers.CompletionMessage{
				Role:    string(models.RoleUser),
				Content: fmt.Sprintf("That plan was rejected: %v. Reply again with only the corrected JSON object.", err),
			},
		)
	}
	return nil, fmt.Errorf("plan rejected after %d attempts: %w", maxParseRetries+1, lastErr)
}

func (p *Planner) complete(ctx context.Context, system string, messages []providers.CompletionMessage) (string, error) {
	chunks, err := p.provider.Complete(ctx, &providers.CompletionRequest{
		Model:       p.model,
		System:      system,
		Messages:    messages,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	})
	if err != nil {
		return "", err
	}
	text, _, err := providers.Collect(ctx, chunks)
	return text, err
}
