package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// A failing completion surfaces as a single classified error; retry
// decisions belong to the caller.
func TestOpenAICompleteSingleAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": {"message": "backend down"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIOptions{APIKey: "test", BaseURL: srv.URL + "/v1", Model: "m"})
	_, err := p.Complete(context.Background(), &CompletionRequest{
		Messages: []CompletionMessage{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error from 500 response")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("server hit %d times, want exactly 1", n)
	}
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %T, want *ProviderError", err)
	}
	if !pe.Reason.IsRetryable() {
		t.Fatalf("5xx should classify as retryable, got %s", pe.Reason)
	}
}
