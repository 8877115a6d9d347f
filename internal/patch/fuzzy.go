package patch

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	// DefaultMinSimilarity is the floor for accepting a fuzzy match.
	DefaultMinSimilarity = 0.92

	// uniquenessMargin is how far below the winner the runner-up must stay
	// for the match to count as unique.
	uniquenessMargin = 0.05
)

// fuzzyMatch is the best window found by fuzzy search.
type fuzzyMatch struct {
	start      int // byte offset of the window
	length     int // byte length of the window
	similarity float64
	runnerUp   float64
}

// findFuzzy slides line-aligned windows of roughly the same line count as
// old across content, scores each window by normalized edit similarity, and
// returns the best window with its runner-up score. Windows one line shorter
// and longer than old are also tried so off-by-one drift still matches.
func findFuzzy(content, old string) *fuzzyMatch {
	oldLines := strings.Count(old, "\n") + 1
	lines := strings.SplitAfter(content, "\n")
	if len(lines) == 0 {
		return nil
	}

	// Byte offset of each line start.
	offsets := make([]int, len(lines)+1)
	for i, line := range lines {
		offsets[i+1] = offsets[i] + len(line)
	}

	dmp := diffmatchpatch.New()
	best := fuzzyMatch{similarity: -1}
	second := -1.0

	for _, span := range windowSpans(oldLines) {
		if span <= 0 {
			continue
		}
		for start := 0; start+span <= len(lines); start++ {
			window := content[offsets[start]:offsets[start+span]]
			score := similarity(dmp, window, old)
			if score > best.similarity {
				prev := best
				best = fuzzyMatch{
					start:      offsets[start],
					length:     offsets[start+span] - offsets[start],
					similarity: score,
				}
				// A demoted best only counts as runner-up when it covers
				// different bytes; overlapping windows are the same site.
				if prev.similarity > second && !overlaps(prev.start, prev.start+prev.length, best) {
					second = prev.similarity
				}
			} else if score > second && !overlaps(offsets[start], offsets[start+span], best) {
				second = score
			}
		}
	}
	if best.similarity < 0 {
		return nil
	}
	best.runnerUp = second
	return &best
}

func windowSpans(oldLines int) []int {
	spans := []int{oldLines}
	if oldLines > 1 {
		spans = append(spans, oldLines-1)
	}
	spans = append(spans, oldLines+1)
	return spans
}

func overlaps(start, end int, m fuzzyMatch) bool {
	return start < m.start+m.length && m.start < end
}

// similarity returns 1 - levenshtein/maxlen over the diff of a and b.
func similarity(dmp *diffmatchpatch.DiffMatchPatch, a, b string) float64 {
	if a == b {
		return 1
	}
	longer := len([]rune(a))
	if l := len([]rune(b)); l > longer {
		longer = l
	}
	if longer == 0 {
		return 1
	}
	diffs := dmp.DiffMain(a, b, false)
	distance := dmp.DiffLevenshtein(diffs)
	score := 1 - float64(distance)/float64(longer)
	if score < 0 {
		return 0
	}
	return score
}
