// Package patch applies and undoes content edits reliably. Every applied
// patch produces one journal record; every undo appends an inverse record.
// Writes are atomic: temp file in the target directory, fsync, rename.
package patch

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/sidekick/internal/observability"
	"github.com/haasonsaas/sidekick/internal/workspace"
	"github.com/haasonsaas/sidekick/pkg/models"
)

// ApplyResult reports a successful patch application.
type ApplyResult struct {
	UndoID       string  `json:"undo_id"`
	Path         string  `json:"path"`
	Replacements int     `json:"replacements"`
	BeforeHash   string  `json:"before_hash"`
	AfterHash    string  `json:"after_hash"`
	Fuzzy        bool    `json:"fuzzy,omitempty"`
	Similarity   float64 `json:"similarity,omitempty"`
}

// UndoResult reports a successful undo.
type UndoResult struct {
	UndoID     string `json:"undo_id"`
	Path       string `json:"path"`
	RestoredTo string `json:"restored_to"` // hash of the restored content
	Forced     bool   `json:"forced,omitempty"`
}

// ApplyOptions tune the apply algorithm.
type ApplyOptions struct {
	// ExpectedReplacements is the exact occurrence count required for the
	// exact path. Zero means the default of 1.
	ExpectedReplacements int

	// Fuzzy enables the similarity fallback when exact matching fails.
	Fuzzy bool

	// MinSimilarity overrides DefaultMinSimilarity when positive.
	MinSimilarity float64
}

// Engine is the patch engine for one session.
type Engine struct {
	resolver *workspace.Resolver
	journal  *Journal

	// OnChange is invoked with the workspace-relative path after every
	// successful apply, write or undo. The cache hooks in here.
	OnChange func(relPath string)

	// Metrics, when set, counts every apply, write and undo by outcome.
	Metrics *observability.Metrics
}

// NewEngine creates a patch engine over the given workspace and journal.
func NewEngine(resolver *workspace.Resolver, journal *Journal) *Engine {
	return &Engine{resolver: resolver, journal: journal}
}

// Journal exposes the engine's journal for inspection.
func (e *Engine) Journal() *Journal {
	return e.journal
}

// Apply replaces old with new in the file at path.
//
// The exact path requires the occurrence count of old to equal the expected
// replacement count. When it does not and fuzzy is enabled, a line-aligned
// similarity search picks a unique best window instead. All failures except
// E_IO leave the file untouched.
func (e *Engine) Apply(path, old, new string, opts ApplyOptions) (res *ApplyResult, err error) {
	defer func() { e.count("apply", err) }()
	if old == "" {
		return nil, failf(models.CodeInvalidArgs, "old text is required")
	}
	if old == new {
		return nil, failf(models.CodeInvalidArgs, "old and new are identical")
	}
	expected := opts.ExpectedReplacements
	if expected <= 0 {
		expected = 1
	}

	abs, err := e.resolver.Resolve(path)
	if err != nil {
		if errors.Is(err, workspace.ErrEscape) {
			return nil, failf(models.CodePathEscape, "path %q escapes the workspace", path)
		}
		return nil, failf(models.CodeInvalidArgs, "%v", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, failf(models.CodeNotFound, "file %q does not exist", path)
		}
		return nil, failf(models.CodeIO, "read %q: %v", path, err)
	}
	before := string(data)
	beforeHash := hashContent(before)

	var after string
	var replacements int
	var fuzzyUsed bool
	var score float64

	count := strings.Count(before, old)
	switch {
	case count == expected:
		after = strings.Replace(before, old, new, expected)
		replacements = expected
	case count > expected:
		return nil, failf(models.CodeAmbiguous,
			"old text occurs %d times, expected %d; widen the context or set expected_replacements", count, expected)
	default:
		if !opts.Fuzzy {
			return nil, failf(models.CodeNoMatch,
				"old text occurs %d times, expected %d", count, expected)
		}
		minSim := opts.MinSimilarity
		if minSim <= 0 {
			minSim = DefaultMinSimilarity
		}
		match := findFuzzy(before, old)
		if match == nil || match.similarity < minSim {
			got := 0.0
			if match != nil {
				got = match.similarity
			}
			return nil, failf(models.CodeNoMatch,
				"no window reached similarity %.2f (best %.2f)", minSim, got)
		}
		if match.runnerUp >= 0 && match.similarity-match.runnerUp < uniquenessMargin {
			return nil, failf(models.CodeAmbiguous,
				"fuzzy match not unique: best %.2f, runner-up %.2f", match.similarity, match.runnerUp)
		}
		after = before[:match.start] + new + before[match.start+match.length:]
		replacements = 1
		fuzzyUsed = true
		score = match.similarity
	}

	if err := writeAtomic(abs, []byte(after)); err != nil {
		return nil, failf(models.CodeIO, "write %q: %v", path, err)
	}
	afterHash := hashContent(after)
	rel := e.resolver.Rel(abs)

	rec := models.PatchRecord{
		UndoID:     uuid.NewString(),
		Path:       rel,
		BeforeHash: beforeHash,
		AfterHash:  afterHash,
		Before:     before,
		Mode:       models.PatchModeApply,
		Timestamp:  time.Now().UTC(),
	}
	if err := e.journal.Append(rec); err != nil {
		return nil, failf(models.CodeIO, "journal: %v", err)
	}
	e.notify(rel)

	return &ApplyResult{
		UndoID:       rec.UndoID,
		Path:         rel,
		Replacements: replacements,
		BeforeHash:   beforeHash,
		AfterHash:    afterHash,
		Fuzzy:        fuzzyUsed,
		Similarity:   score,
	}, nil
}

// RecordWrite journals a whole-file write performed by write_file, so such
// writes are undoable like patches. before is the previous content, empty
// for new files.
func (e *Engine) RecordWrite(relPath, before, after string) (undoID string, err error) {
	defer func() { e.count("write", err) }()
	rec := models.PatchRecord{
		UndoID:     uuid.NewString(),
		Path:       relPath,
		BeforeHash: hashContent(before),
		AfterHash:  hashContent(after),
		Before:     before,
		Mode:       models.PatchModeWrite,
		Timestamp:  time.Now().UTC(),
	}
	if err := e.journal.Append(rec); err != nil {
		return "", failf(models.CodeIO, "journal: %v", err)
	}
	e.notify(relPath)
	return rec.UndoID, nil
}

// Undo restores the file touched by the given record to its before content.
// If the file has drifted since the patch and force is false, it fails with
// E_DRIFT.
func (e *Engine) Undo(undoID string, force bool) (res *UndoResult, err error) {
	defer func() { e.count("undo", err) }()
	rec, ok := e.journal.Lookup(undoID)
	if !ok {
		return nil, failf(models.CodeNotFound, "unknown undo id %q", undoID)
	}
	abs, err := e.resolver.Resolve(rec.Path)
	if err != nil {
		return nil, failf(models.CodeInvalidArgs, "%v", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, failf(models.CodeNotFound, "file %q no longer exists", rec.Path)
		}
		return nil, failf(models.CodeIO, "read %q: %v", rec.Path, err)
	}
	current := string(data)
	currentHash := hashContent(current)
	if currentHash != rec.AfterHash && !force {
		return nil, failf(models.CodeDrift,
			"file %q changed since the patch (have %s, journal %s); pass force to restore anyway",
			rec.Path, shortHash(currentHash), shortHash(rec.AfterHash))
	}

	if err := writeAtomic(abs, []byte(rec.Before)); err != nil {
		return nil, failf(models.CodeIO, "write %q: %v", rec.Path, err)
	}

	inverse := models.PatchRecord{
		UndoID:     uuid.NewString(),
		Path:       rec.Path,
		BeforeHash: currentHash,
		AfterHash:  rec.BeforeHash,
		Before:     current,
		Mode:       models.PatchModeUndo,
		Timestamp:  time.Now().UTC(),
		InverseOf:  rec.UndoID,
	}
	if err := e.journal.Append(inverse); err != nil {
		return nil, failf(models.CodeIO, "journal: %v", err)
	}
	e.notify(rec.Path)

	return &UndoResult{
		UndoID:     inverse.UndoID,
		Path:       rec.Path,
		RestoredTo: rec.BeforeHash,
		Forced:     force && currentHash != rec.AfterHash,
	}, nil
}

func (e *Engine) notify(relPath string) {
	if e.OnChange != nil {
		e.OnChange(relPath)
	}
}

func (e *Engine) count(mode string, err error) {
	if e.Metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	e.Metrics.PatchCounter.WithLabelValues(mode, status).Inc()
}

// hashContent returns the hex sha256 of content.
func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// writeAtomic writes data via a temp file in the same directory, fsyncs and
// renames over the target. A crash never leaves a half-written file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	// Preserve the original mode when the file already exists.
	if info, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmpName, info.Mode())
	}
	return os.Rename(tmpName, path)
}

// WriteFileAtomic exposes the atomic write for the file tools.
func WriteFileAtomic(path string, data []byte) error {
	return writeAtomic(path, data)
}
