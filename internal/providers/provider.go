// Package providers contains the model client implementations. Both blocking
// and streaming completion run through the same channel-based interface: a
// blocking call is a stream collected to the end.
package providers

import (
	"context"
	"errors"
	"strings"

	"github.com/haasonsaas/sidekick/pkg/models"
)

// CompletionMessage is one turn of the transcript in provider-neutral form.
type CompletionMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// CompletionRequest describes a single model call.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []CompletionMessage
	Temperature float32
	MaxTokens   int
}

// Usage reports token counts for a completed request.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// CompletionChunk is one streaming delta. The final chunk has Done set and
// carries the usage totals when the backend reports them.
type CompletionChunk struct {
	Text  string
	Done  bool
	Usage *Usage
	Error error
}

// Provider is a model backend. Complete returns immediately with a channel
// that yields chunks until Done or Error; the channel is always closed.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)
}

// Collect drains a chunk stream into a single response. This is the blocking
// completion mode: identical request path, assembled result.
func Collect(ctx context.Context, chunks <-chan *CompletionChunk) (string, *Usage, error) {
	var sb strings.Builder
	var usage *Usage
	for {
		select {
		case <-ctx.Done():
			return sb.String(), usage, &ProviderError{
				Reason:  FailTimeout,
				Message: "completion cancelled",
				Cause:   ctx.Err(),
			}
		case chunk, ok := <-chunks:
			if !ok {
				return sb.String(), usage, nil
			}
			if chunk.Error != nil {
				return sb.String(), usage, chunk.Error
			}
			sb.WriteString(chunk.Text)
			if chunk.Usage != nil {
				usage = chunk.Usage
			}
			if chunk.Done {
				// Drain until close so the producer goroutine exits.
				for range chunks {
				}
				return sb.String(), usage, nil
			}
		}
	}
}

// send delivers one chunk unless the context is cancelled first. A false
// return means the consumer is gone and the producer must stop; without the
// select an abandoned unbuffered channel would block the producer forever.
func send(ctx context.Context, chunks chan<- *CompletionChunk, chunk *CompletionChunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// ErrorCode maps a provider failure onto the runtime's error surface.
func ErrorCode(err error) models.ErrorCode {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Reason == FailTimeout {
			return models.CodeTimeout
		}
		return models.CodeNetwork
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.CodeTimeout
	}
	return models.CodeNetwork
}
