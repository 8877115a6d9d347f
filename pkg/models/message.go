// Package models provides domain types shared across the Sidekick runtime.
package models

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Priority tags a message for the context manager's budget algorithm.
// The lattice is total: protected > recent > working > relevant > archival.
type Priority int

const (
	// PriorityProtected messages are compressed and dropped last.
	PriorityProtected Priority = iota
	// PriorityRecent covers the last N user/assistant exchanges.
	PriorityRecent
	// PriorityWorking is the default for in-turn material.
	PriorityWorking
	// PriorityRelevant covers retrieved or referenced context.
	PriorityRelevant
	// PriorityArchival is compressed first and dropped first.
	PriorityArchival
)

// String returns the tag name used in events and stats.
func (p Priority) String() string {
	switch p {
	case PriorityProtected:
		return "protected"
	case PriorityRecent:
		return "recent"
	case PriorityWorking:
		return "working"
	case PriorityRelevant:
		return "relevant"
	case PriorityArchival:
		return "archival"
	default:
		return "unknown"
	}
}

// Segment is one element of structured message content: either inline text
// or a reference to an image. Exactly one field is set.
type Segment struct {
	Text     string `json:"text,omitempty"`
	ImageRef string `json:"image_ref,omitempty"`
}

// Message is a single conversation entry. Content holds plain text; Segments
// is set instead when the message carries structured content. Ordering within
// a conversation is strict insertion order.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content,omitempty"`
	Segments  []Segment `json:"segments,omitempty"`
	Priority  Priority  `json:"priority"`
	CreatedAt time.Time `json:"created_at,omitempty"`

	// Compressed marks a message whose content was replaced by a summary.
	Compressed bool `json:"compressed,omitempty"`
}

// Text returns the message content, flattening segments when present.
func (m *Message) Text() string {
	if len(m.Segments) == 0 {
		return m.Content
	}
	var out string
	for _, s := range m.Segments {
		if s.Text != "" {
			out += s.Text
		} else if s.ImageRef != "" {
			out += "[image: " + s.ImageRef + "]"
		}
	}
	return out
}
