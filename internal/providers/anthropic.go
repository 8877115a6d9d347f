package providers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Provider for the Anthropic Messages API.
// Selected with llm.api_mode "anthropic".
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// AnthropicOptions configures the Anthropic client.
type AnthropicOptions struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewAnthropicProvider creates a provider for the Anthropic Messages API.
func NewAnthropicProvider(opts AnthropicOptions) *AnthropicProvider {
	reqOpts := []option.RequestOption{}
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: opts.Timeout}))
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(reqOpts...),
		model:  opts.Model,
	}
}

// Name returns "anthropic".
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete sends the request and returns a channel of streaming chunks.
func (p *AnthropicProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		switch m.Role {
		case "assistant":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		default:
			// System turns inside the transcript fold into user turns; the
			// dedicated system field carries the real system prompt.
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	chunks := make(chan *CompletionChunk)
	go p.processStream(ctx, model, stream, chunks)
	return chunks, nil
}

func (p *AnthropicProvider) processStream(ctx context.Context, model string, stream interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
	Close() error
}, chunks chan<- *CompletionChunk) {
	defer close(chunks)
	defer stream.Close()

	usage := &Usage{}
	for stream.Next() {
		if ctx.Err() != nil {
			send(ctx, chunks, &CompletionChunk{Error: p.wrap(model, ctx.Err()), Done: true})
			return
		}

		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			usage.PromptTokens = int(ev.Message.Usage.InputTokens)
		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text != "" {
					if !send(ctx, chunks, &CompletionChunk{Text: delta.Text}) {
						return
					}
				}
			}
		case anthropic.MessageDeltaEvent:
			usage.CompletionTokens = int(ev.Usage.OutputTokens)
		}
	}
	if err := stream.Err(); err != nil {
		send(ctx, chunks, &CompletionChunk{Error: p.wrap(model, err), Done: true})
		return
	}
	send(ctx, chunks, &CompletionChunk{Done: true, Usage: usage})
}

func (p *AnthropicProvider) wrap(model string, err error) *ProviderError {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return classify(p.Name(), model, apiErr.StatusCode, err)
	}
	return classify(p.Name(), model, 0, err)
}
