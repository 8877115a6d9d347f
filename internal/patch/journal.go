package patch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/haasonsaas/sidekick/pkg/models"
)

// Journal is the append-only undo journal. Records are held in memory for
// lookups and mirrored to a JSONL file so a session can be inspected after
// the fact. The journal only ever grows.
type Journal struct {
	mu      sync.Mutex
	records []models.PatchRecord
	byID    map[string]int
	file    *os.File
}

// NewJournal creates a journal backed by the given file path. An empty path
// keeps the journal memory-only, which the tests use.
func NewJournal(path string) (*Journal, error) {
	j := &Journal{byID: make(map[string]int)}
	if path == "" {
		return j, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// Reload existing records so undo works across process restarts within
	// a session directory.
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var rec models.PatchRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		j.byID[rec.UndoID] = len(j.records)
		j.records = append(j.records, rec)
	}
	if err := scanner.Err(); err != nil {
		f.Close()
		return nil, fmt.Errorf("read journal: %w", err)
	}
	j.file = f
	return j, nil
}

// Append adds a record. Duplicate undo IDs are rejected; the journal never
// rewrites history.
func (j *Journal) Append(rec models.PatchRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, exists := j.byID[rec.UndoID]; exists {
		return fmt.Errorf("duplicate undo id %s", rec.UndoID)
	}
	if j.file != nil {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		if _, err := j.file.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("write journal: %w", err)
		}
	}
	j.byID[rec.UndoID] = len(j.records)
	j.records = append(j.records, rec)
	return nil
}

// Lookup returns the record for an undo id.
func (j *Journal) Lookup(undoID string) (models.PatchRecord, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	idx, ok := j.byID[undoID]
	if !ok {
		return models.PatchRecord{}, false
	}
	return j.records[idx], true
}

// Len returns the number of records.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.records)
}

// Records returns a copy of all records in append order.
func (j *Journal) Records() []models.PatchRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]models.PatchRecord, len(j.records))
	copy(out, j.records)
	return out
}

// Close syncs and closes the backing file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	if err := j.file.Sync(); err != nil {
		j.file.Close()
		return err
	}
	return j.file.Close()
}
