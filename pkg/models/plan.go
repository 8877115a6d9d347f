package models

// PlanStep is one node in the plan's dependency graph. A step becomes
// executable only once every dependency is done.
type PlanStep struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies,omitempty"`
	ExpectedTool string   `json:"expected_tool,omitempty"`
	Done         bool     `json:"done"`
}

// Plan is an acyclic-dependency step graph produced by the planner.
type Plan struct {
	Title string     `json:"title"`
	Steps []PlanStep `json:"steps"`
}

// Step returns the step with the given id, or nil.
func (p *Plan) Step(id string) *PlanStep {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// Done reports whether every step has completed.
func (p *Plan) Done() bool {
	for i := range p.Steps {
		if !p.Steps[i].Done {
			return false
		}
	}
	return true
}

// Ready returns the ids of steps whose dependencies are all done and which
// are not themselves done, in plan order.
func (p *Plan) Ready() []string {
	done := make(map[string]bool, len(p.Steps))
	for i := range p.Steps {
		if p.Steps[i].Done {
			done[p.Steps[i].ID] = true
		}
	}
	var ready []string
	for i := range p.Steps {
		step := &p.Steps[i]
		if step.Done {
			continue
		}
		ok := true
		for _, dep := range step.Dependencies {
			if !done[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, step.ID)
		}
	}
	return ready
}
