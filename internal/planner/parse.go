package planner

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/haasonsaas/sidekick/pkg/models"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ParsePlan extracts a plan JSON object from the model's reply and validates
// it. The reply may be a bare object, a fenced block, or prose with an
// embedded object.
func ParsePlan(text string) (*models.Plan, error) {
	candidate, err := extractObject(text)
	if err != nil {
		return nil, err
	}
	var plan models.Plan
	if err := json.Unmarshal([]byte(candidate), &plan); err != nil {
		return nil, fmt.Errorf("plan is not valid JSON: %w", err)
	}
	if err := Validate(&plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func extractObject(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		return trimmed, nil
	}
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return m[1], nil
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1], nil
	}
	return "", fmt.Errorf("no JSON object found in response")
}

// Validate checks the plan invariants: steps present, ids unique and
// non-empty, dependencies resolvable, graph acyclic.
func Validate(plan *models.Plan) error {
	if len(plan.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}

	ids := make(map[string]bool, len(plan.Steps))
	for _, step := range plan.Steps {
		if step.ID == "" {
			return fmt.Errorf("step with empty id")
		}
		if step.Description == "" {
			return fmt.Errorf("step %s has no description", step.ID)
		}
		if ids[step.ID] {
			return fmt.Errorf("duplicate step id %s", step.ID)
		}
		ids[step.ID] = true
	}
	for _, step := range plan.Steps {
		for _, dep := range step.Dependencies {
			if !ids[dep] {
				return fmt.Errorf("step %s depends on unknown step %s", step.ID, dep)
			}
			if dep == step.ID {
				return fmt.Errorf("step %s depends on itself", step.ID)
			}
		}
	}
	if cycle := findCycle(plan); cycle != "" {
		return fmt.Errorf("dependency cycle through step %s", cycle)
	}
	return nil
}

// findCycle runs a three-color DFS over the dependency edges and returns the
// id of a step on a cycle, or "".
func findCycle(plan *models.Plan) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(plan.Steps))
	deps := make(map[string][]string, len(plan.Steps))
	for _, step := range plan.Steps {
		deps[step.ID] = step.Dependencies
	}

	var visit func(id string) string
	visit = func(id string) string {
		color[id] = gray
		for _, dep := range deps[id] {
			switch color[dep] {
			case gray:
				return dep
			case white:
				if hit := visit(dep); hit != "" {
					return hit
				}
			}
		}
		color[id] = black
		return ""
	}

	for _, step := range plan.Steps {
		if color[step.ID] == white {
			if hit := visit(step.ID); hit != "" {
				return hit
			}
		}
	}
	return ""
}
