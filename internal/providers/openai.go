package providers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements Provider against any OpenAI-compatible chat
// completions endpoint. With a base URL pointing at a local server (llama.cpp,
// vLLM, Ollama's compat layer) the same client drives local models.
//
// Thread safety: a single OpenAIProvider is safe for concurrent use; each
// Complete call creates an independent stream and goroutine.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// OpenAIOptions configures the OpenAI-compatible client.
type OpenAIOptions struct {
	APIKey  string
	BaseURL string // empty means api.openai.com
	Model   string
	Timeout time.Duration
}

// NewOpenAIProvider creates a provider for an OpenAI-compatible backend.
// Local servers commonly ignore the API key; an empty key is allowed when a
// base URL is set.
func NewOpenAIProvider(opts OpenAIOptions) *OpenAIProvider {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.Timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  opts.Model,
	}
}

// Name returns "openai".
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Complete sends the request and returns a channel of streaming chunks.
// Immediate failures (auth, bad request, upstream refusal) come back as an
// error; mid-stream failures arrive as a chunk with Error set. Failures are
// not retried here; the error's retryable flag tells the caller whether a
// retry could help.
func (p *OpenAIProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		Stream:      true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, p.wrap(model, err)
	}

	chunks := make(chan *CompletionChunk)
	go p.processStream(ctx, model, stream, chunks)
	return chunks, nil
}

func (p *OpenAIProvider) processStream(ctx context.Context, model string, stream *openai.ChatCompletionStream, chunks chan<- *CompletionChunk) {
	defer close(chunks)
	defer stream.Close()

	var usage *Usage
	for {
		if ctx.Err() != nil {
			send(ctx, chunks, &CompletionChunk{Error: p.wrap(model, ctx.Err()), Done: true})
			return
		}

		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			send(ctx, chunks, &CompletionChunk{Done: true, Usage: usage})
			return
		}
		if err != nil {
			send(ctx, chunks, &CompletionChunk{Error: p.wrap(model, err), Done: true})
			return
		}

		if resp.Usage != nil {
			usage = &Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
			}
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content != "" {
				if !send(ctx, chunks, &CompletionChunk{Text: choice.Delta.Content}) {
					return
				}
			}
		}
	}
}

// wrap converts SDK errors into classified ProviderErrors.
func (p *OpenAIProvider) wrap(model string, err error) *ProviderError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		pe := classify(p.Name(), model, apiErr.HTTPStatusCode, err)
		pe.Message = apiErr.Message
		return pe
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classify(p.Name(), model, reqErr.HTTPStatusCode, err)
	}
	return classify(p.Name(), model, 0, err)
}
