package models

import "time"

// PatchMode distinguishes how a journal record came to be.
type PatchMode string

const (
	PatchModeApply PatchMode = "apply"
	PatchModeWrite PatchMode = "write"
	PatchModeUndo  PatchMode = "undo"
)

// PatchRecord is one undo-journal entry. The journal is append-only: every
// applied patch produces exactly one forward record, every undo an inverse
// record. Before content is stored inline so undo never depends on state
// outside the journal.
type PatchRecord struct {
	UndoID     string    `json:"undo_id"`
	Path       string    `json:"path"`
	BeforeHash string    `json:"before_hash"`
	AfterHash  string    `json:"after_hash"`
	Before     string    `json:"before"`
	Mode       PatchMode `json:"mode"`
	Timestamp  time.Time `json:"timestamp"`

	// InverseOf links an undo record to the forward record it reverses.
	InverseOf string `json:"inverse_of,omitempty"`
}
