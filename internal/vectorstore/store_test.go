package vectorstore

import (
	"context"
	"path/filepath"
	"testing"
)

func seedStore(t *testing.T, s *Store) {
	t.Helper()
	err := s.Index(context.Background(), "src/auth.go", []Chunk{
		{StartLine: 1, EndLine: 20, Text: "func Login() {}"},
		{StartLine: 21, EndLine: 40, Text: "func Logout() {}"},
	}, [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
	})
	if err != nil {
		t.Fatalf("index auth: %v", err)
	}
	err = s.Index(context.Background(), "src/db.go", []Chunk{
		{StartLine: 1, EndLine: 30, Text: "func OpenDB() {}"},
	}, [][]float32{{0, 0, 1}})
	if err != nil {
		t.Fatalf("index db: %v", err)
	}
}

func TestSearchRanksBySimilarity(t *testing.T) {
	s, err := Open("")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	seedStore(t, s)

	results, err := s.Search(context.Background(), []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Path != "src/auth.go" || results[0].StartLine != 1 {
		t.Fatalf("best = %+v", results[0])
	}
	if results[0].Score < results[1].Score {
		t.Fatalf("results out of order: %v then %v", results[0].Score, results[1].Score)
	}
	if results[0].Score < 0.99 {
		t.Fatalf("exact match score = %v", results[0].Score)
	}
}

func TestIndexReplacesFileChunks(t *testing.T) {
	s, err := Open("")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	seedStore(t, s)

	err = s.Index(context.Background(), "src/auth.go",
		[]Chunk{{StartLine: 1, EndLine: 5, Text: "rewritten"}},
		[][]float32{{0, 1, 0}})
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}
	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
}

func TestOpenOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	seedStore(t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("count after reopen = %d, want 3", n)
	}
}

func TestDimensionMismatchScoresZero(t *testing.T) {
	s, err := Open("")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	seedStore(t, s)

	results, err := s.Search(context.Background(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, r := range results {
		if r.Score != 0 {
			t.Fatalf("mismatched dimension should score 0, got %+v", r)
		}
	}
}
