package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/sidekick/pkg/models"
)

type scriptedProvider struct {
	chunks []*CompletionChunk
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	out := make(chan *CompletionChunk, len(p.chunks))
	for _, c := range p.chunks {
		out <- c
	}
	close(out)
	return out, nil
}

func TestCollectAssemblesStream(t *testing.T) {
	p := &scriptedProvider{chunks: []*CompletionChunk{
		{Text: "Hello, "},
		{Text: "world"},
		{Done: true, Usage: &Usage{PromptTokens: 12, CompletionTokens: 4}},
	}}
	ch, err := p.Complete(context.Background(), &CompletionRequest{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	text, usage, err := Collect(context.Background(), ch)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if text != "Hello, world" {
		t.Fatalf("text = %q", text)
	}
	if usage == nil || usage.PromptTokens != 12 || usage.CompletionTokens != 4 {
		t.Fatalf("usage = %+v", usage)
	}
}

func TestCollectPropagatesStreamError(t *testing.T) {
	streamErr := &ProviderError{Reason: FailServerError, Provider: "scripted"}
	p := &scriptedProvider{chunks: []*CompletionChunk{
		{Text: "partial"},
		{Error: streamErr, Done: true},
	}}
	ch, _ := p.Complete(context.Background(), &CompletionRequest{})
	text, _, err := Collect(context.Background(), ch)
	if !errors.Is(err, streamErr) {
		t.Fatalf("err = %v, want stream error", err)
	}
	if text != "partial" {
		t.Fatalf("partial text lost: %q", text)
	}
}

func TestCollectHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocked := make(chan *CompletionChunk) // never written
	_, _, err := Collect(ctx, blocked)
	if ErrorCode(err) != models.CodeTimeout {
		t.Fatalf("expected timeout code, got %v (%v)", ErrorCode(err), err)
	}
}

// A consumer that walks away after cancellation must not strand the
// producer on an unbuffered send.
func TestSendUnblocksProducerOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	chunks := make(chan *CompletionChunk)
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		defer close(chunks)
		for send(ctx, chunks, &CompletionChunk{Text: "x"}) {
		}
	}()

	if _, ok := <-chunks; !ok {
		t.Fatal("stream closed before first chunk")
	}
	cancel()
	// Collect has returned; nobody reads chunks anymore.
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("producer still blocked after cancellation")
	}
}
