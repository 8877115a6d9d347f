// Package vectorstore reads the SQLite database maintained by the external
// code indexer and answers nearest-neighbor queries over code chunks.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Chunk is one indexed span of a workspace file.
type Chunk struct {
	Path      string  `json:"path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
}

// Store answers similarity queries against the indexer's chunk table.
type Store struct {
	db *sql.DB
}

// Open opens the chunk database. An empty path opens an in-memory store,
// which is only useful in tests.
func Open(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL,
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			text TEXT NOT NULL,
			embedding BLOB NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create chunks table: %w", err)
	}
	_, err = s.db.Exec("CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path)")
	if err != nil {
		return fmt.Errorf("create chunks index: %w", err)
	}
	return nil
}

// Index replaces the stored chunks for a file. The external indexer is the
// normal writer; this path exists for tests and small local corpora.
func (s *Store) Index(ctx context.Context, path string, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("chunk/embedding count mismatch: %d vs %d", len(chunks), len(embeddings))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE path = ?", path); err != nil {
		return fmt.Errorf("clear chunks for %s: %w", path, err)
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (path, start_line, end_line, text, embedding) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		if _, err := stmt.ExecContext(ctx, path, c.StartLine, c.EndLine, c.Text, encodeEmbedding(embeddings[i])); err != nil {
			return fmt.Errorf("insert chunk %s:%d: %w", path, c.StartLine, err)
		}
	}
	return tx.Commit()
}

// Search returns the k chunks most similar to the query embedding, best
// first. Chunks whose stored embedding has a different dimension score zero
// and fall to the bottom.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]Chunk, error) {
	if k <= 0 {
		k = 8
	}
	rows, err := s.db.QueryContext(ctx, "SELECT path, start_line, end_line, text, embedding FROM chunks")
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var results []Chunk
	for rows.Next() {
		var c Chunk
		var blob []byte
		if err := rows.Scan(&c.Path, &c.StartLine, &c.EndLine, &c.Text, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.Score = cosineSimilarity(query, decodeEmbedding(blob))
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Count reports the number of indexed chunks.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n)
	return n, err
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// encodeEmbedding packs a float32 vector as little-endian IEEE 754 bytes.
func encodeEmbedding(v []float32) []byte {
	data := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(f))
	}
	return data
}

func decodeEmbedding(data []byte) []float32 {
	if len(data)%4 != 0 {
		return nil
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
