package semantic

import (
	"context"
	"errors"
	"testing"

	"github.com/haasonsaas/sidekick/internal/vectorstore"
	"github.com/haasonsaas/sidekick/pkg/models"
)

// fakeEmbedder maps known queries to fixed vectors.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 0}, nil
}

func newTestSearch(t *testing.T, embedder *fakeEmbedder) *SearchTool {
	t.Helper()
	store, err := vectorstore.Open("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	err = store.Index(context.Background(), "src/auth.go", []vectorstore.Chunk{
		{StartLine: 10, EndLine: 30, Text: "func Login(user, pass string) error"},
	}, [][]float32{{1, 0, 0}})
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	err = store.Index(context.Background(), "src/db.go", []vectorstore.Chunk{
		{StartLine: 1, EndLine: 12, Text: "func OpenDB(dsn string) (*DB, error)"},
	}, [][]float32{{0, 1, 0}})
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	return NewSearchTool(store, embedder)
}

func TestSemanticSearchRanksChunks(t *testing.T) {
	tool := newTestSearch(t, &fakeEmbedder{vectors: map[string][]float32{
		"how does login work": {0.9, 0.1, 0},
	}})

	res := tool.Execute(context.Background(), map[string]any{
		"query": "how does login work", "top_k": float64(1),
	})
	if !res.OK {
		t.Fatalf("result = %+v", res)
	}
	if res.Payload["count"] != 1 {
		t.Fatalf("count = %v", res.Payload["count"])
	}
	hit := res.Payload["matches"].([]any)[0].(map[string]any)
	if hit["path"] != "src/auth.go" || hit["start_line"] != 10 {
		t.Fatalf("hit = %+v", hit)
	}
	if hit["score"].(float64) <= 0 {
		t.Fatalf("score = %v", hit["score"])
	}
}

func TestSemanticSearchEmbedderFailure(t *testing.T) {
	tool := newTestSearch(t, &fakeEmbedder{err: errors.New("endpoint unreachable")})

	res := tool.Execute(context.Background(), map[string]any{"query": "anything"})
	if res.OK || res.ErrorCodeOf() != models.CodeNetwork {
		t.Fatalf("result = %+v", res)
	}
}

func TestSemanticSearchIsCacheable(t *testing.T) {
	tool := newTestSearch(t, &fakeEmbedder{})
	if !tool.Spec().Cacheable {
		t.Fatal("search_semantic should be cacheable")
	}
}
