package contextwin

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/sidekick/pkg/models"
)

// compression keeps this many lines from each end of an elided message.
const (
	compressHeadLines = 12
	compressTailLines = 6
)

// Manager holds the transcript and renders it to fit the token budget.
// The budget is the window size minus the reservation for model output.
//
// Retention priorities, strongest first: protected, recent, working,
// relevant, archival. The system message is always protected. The most
// recent turns are promoted to recent regardless of their declared tag.
// Under pressure the manager compresses from weakest priority upward, then
// drops. Protected and recent messages are dropped only as the final step,
// when compressing everything still does not fit; the system message alone
// is never dropped and is the only content that can leave the rendered
// window over budget.
type Manager struct {
	mu sync.Mutex

	budget          int
	protectedRecent int

	system    models.Message
	hasSystem bool
	messages  []models.Message
}

// NewManager creates a manager. reservedOutput must leave a positive budget.
func NewManager(maxTokens, reservedOutput, protectedRecent int) (*Manager, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultContextWindow
	}
	if reservedOutput < 0 {
		reservedOutput = 0
	}
	budget := maxTokens - reservedOutput
	if budget <= 0 {
		return nil, fmt.Errorf("reserved output %d leaves no budget in window %d", reservedOutput, maxTokens)
	}
	if protectedRecent < 0 {
		protectedRecent = 0
	}
	return &Manager{budget: budget, protectedRecent: protectedRecent}, nil
}

// SetSystem installs the system message. It is protected unconditionally.
func (m *Manager) SetSystem(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.system = models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleSystem,
		Content:   text,
		Priority:  models.PriorityProtected,
		CreatedAt: time.Now().UTC(),
	}
	m.hasSystem = true
}

// Append adds a message to the transcript. A zero Priority means working.
func (m *Manager) Append(msg models.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	m.messages = append(m.messages, msg)
}

// Len returns the number of transcript messages, excluding the system one.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// Clear empties the transcript. With keepProtected set, protected messages
// and the system message survive; otherwise only the system message does.
func (m *Manager) Clear(keepProtected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !keepProtected {
		m.messages = nil
		return
	}
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.Priority == models.PriorityProtected {
			kept = append(kept, msg)
		}
	}
	m.messages = kept
}

// Stats summarizes the rendered window.
type Stats struct {
	Tokens     int            `json:"tokens"`
	Items      int            `json:"items"`
	ByPriority map[string]int `json:"by_category"`
}

// Stats reports token and item counts for the window as it would be sent,
// broken down by retention priority.
func (m *Manager) Stats() Stats {
	rendered := m.Render()
	stats := Stats{ByPriority: make(map[string]int)}
	for _, msg := range rendered {
		stats.Tokens += EstimateTokens(msg.Text())
		stats.Items++
		stats.ByPriority[msg.Priority.String()]++
	}
	return stats
}

// Info reports budget usage for the transcript as it would be rendered.
func (m *Manager) Info() *WindowInfo {
	rendered := m.Render()
	used := 0
	for _, msg := range rendered {
		used += EstimateTokens(msg.Text())
	}
	remaining := m.budget - used
	if remaining < 0 {
		remaining = 0
	}
	var pct float64
	if m.budget > 0 {
		pct = float64(used) / float64(m.budget) * 100
	}
	return &WindowInfo{
		TotalTokens:     m.budget,
		UsedTokens:      used,
		RemainingTokens: remaining,
		UsedPercent:     pct,
	}
}

// Render returns the transcript fitted to the budget: system message first,
// then the surviving transcript in original order. The originals are never
// mutated; compression happens on the rendered copy.
func (m *Manager) Render() []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Message, 0, len(m.messages)+1)
	if m.hasSystem {
		out = append(out, m.system)
	}
	out = append(out, m.messages...)

	// Promote the trailing turns to at least recent.
	start := len(out) - m.protectedRecent
	if m.hasSystem && start < 1 {
		start = 1
	}
	if start < 0 {
		start = 0
	}
	for i := start; i < len(out); i++ {
		if out[i].Priority > models.PriorityRecent {
			out[i].Priority = models.PriorityRecent
		}
	}

	if m.total(out) <= m.budget {
		return out
	}

	// Compress weakest priorities first, oldest first within a priority.
	for _, level := range []models.Priority{models.PriorityArchival, models.PriorityRelevant, models.PriorityWorking} {
		for i := range out {
			if out[i].Priority != level || out[i].Compressed {
				continue
			}
			out[i] = compress(out[i])
			if m.total(out) <= m.budget {
				return out
			}
		}
	}

	// Then drop, same order. Protected and recent messages survive.
	for _, level := range []models.Priority{models.PriorityArchival, models.PriorityRelevant, models.PriorityWorking} {
		for m.total(out) > m.budget {
			idx := -1
			for i := range out {
				if out[i].Priority == level {
					idx = i
					break
				}
			}
			if idx < 0 {
				break
			}
			out = append(out[:idx], out[idx+1:]...)
		}
		if m.total(out) <= m.budget {
			return out
		}
	}

	// Last resort: compress recent turns too, but never the system message.
	for i := range out {
		if out[i].Role == models.RoleSystem || out[i].Compressed {
			continue
		}
		out[i] = compress(out[i])
		if m.total(out) <= m.budget {
			return out
		}
	}

	// Still over budget with everything compressed: drop oldest first,
	// keeping only the system message.
	for m.total(out) > m.budget {
		idx := -1
		for i := range out {
			if out[i].Role != models.RoleSystem {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		out = append(out[:idx], out[idx+1:]...)
	}
	return out
}

// OverBudget reports whether even the fitted transcript exceeds the budget.
func (m *Manager) OverBudget() bool {
	rendered := m.Render()
	return m.total(rendered) > m.budget
}

func (m *Manager) total(msgs []models.Message) int {
	sum := 0
	for _, msg := range msgs {
		sum += EstimateTokens(msg.Text())
	}
	return sum
}

// compress elides the middle of a long message, keeping head and tail lines.
// Short messages are returned unchanged apart from the Compressed mark so
// they are not revisited.
func compress(msg models.Message) models.Message {
	lines := strings.Split(msg.Text(), "\n")
	msg.Compressed = true
	if len(lines) <= compressHeadLines+compressTailLines+1 {
		return msg
	}
	elided := len(lines) - compressHeadLines - compressTailLines
	var sb strings.Builder
	for _, line := range lines[:compressHeadLines] {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "[... %d lines elided ...]\n", elided)
	for i, line := range lines[len(lines)-compressTailLines:] {
		sb.WriteString(line)
		if i < compressTailLines-1 {
			sb.WriteString("\n")
		}
	}
	msg.Content = sb.String()
	msg.Segments = nil
	return msg
}
