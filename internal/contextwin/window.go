// Package contextwin manages the conversation transcript under a token
// budget. Messages carry retention priorities; when the transcript outgrows
// the budget, low-priority messages are compressed first and dropped last,
// and the system message is never touched.
package contextwin

import (
	"fmt"
	"unicode/utf8"
)

const (
	// DefaultContextWindow is the default window size in tokens.
	DefaultContextWindow = 128000

	// TokensPerChar is a rough estimate of tokens per character.
	TokensPerChar = 0.25
)

// EstimateTokens estimates the number of tokens in text, Unicode-aware,
// using a conservative ~4 characters per token.
func EstimateTokens(text string) int {
	charCount := utf8.RuneCountInString(text)
	tokens := int(float64(charCount) * TokensPerChar)
	if tokens == 0 && charCount > 0 {
		return 1
	}
	return tokens
}

// WindowInfo reports current budget usage.
type WindowInfo struct {
	TotalTokens     int     `json:"total_tokens"`
	UsedTokens      int     `json:"used_tokens"`
	RemainingTokens int     `json:"remaining_tokens"`
	UsedPercent     float64 `json:"used_percent"`
}

// String returns a human-readable description.
func (w *WindowInfo) String() string {
	return fmt.Sprintf("%d/%d tokens (%.1f%% used)",
		w.UsedTokens, w.TotalTokens, w.UsedPercent)
}
