// Package search implements the grep tool. It prefers ripgrep when present
// and falls back to an in-process scan, reporting which engine ran in the
// payload.
package search

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/haasonsaas/sidekick/internal/tools"
	"github.com/haasonsaas/sidekick/internal/workspace"
	"github.com/haasonsaas/sidekick/pkg/models"
)

const (
	defaultMaxHits = 100
	previewMax     = 200
	// Files larger than this are skipped by the in-process engine; ripgrep
	// handles them fine but a fallback scan should not chew through blobs.
	fallbackMaxFileBytes = 2 * 1024 * 1024
)

// GrepTool searches file contents by regular expression.
type GrepTool struct {
	resolver *workspace.Resolver

	// rgPath caches the ripgrep lookup; empty after lookup means fallback.
	rgPath   string
	rgLooked bool
}

// NewGrepTool creates a grep tool over the workspace.
func NewGrepTool(resolver *workspace.Resolver) *GrepTool {
	return &GrepTool{resolver: resolver}
}

func (t *GrepTool) Spec() tools.Spec {
	return tools.Spec{
		Name:        "grep",
		Description: "Search workspace files for a regular expression. Returns {path, line, preview} hits.",
		Cacheable:   true,
		Schema: tools.ObjectSchema(map[string]any{
			"pattern":     map[string]any{"type": "string", "minLength": 1},
			"path":        map[string]any{"type": "string"},
			"ignore_case": map[string]any{"type": "boolean"},
			"max_hits":    map[string]any{"type": "integer", "minimum": 1, "maximum": 1000},
		}, "pattern"),
	}
}

// Match is one grep hit.
type Match struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Preview string `json:"preview"`
}

func (t *GrepTool) Execute(ctx context.Context, args map[string]any) *models.ToolResult {
	pattern, _ := args["pattern"].(string)
	base, _ := args["path"].(string)
	ignoreCase, _ := args["ignore_case"].(bool)
	maxHits := defaultMaxHits
	if v, ok := args["max_hits"].(float64); ok && v > 0 {
		maxHits = int(v)
	}
	if base == "" {
		base = "."
	}

	abs, err := t.resolver.Resolve(base)
	if err != nil {
		if errors.Is(err, workspace.ErrEscape) {
			return models.Fail(models.CodePathEscape, fmt.Sprintf("path %q escapes the workspace", base))
		}
		return models.Fail(models.CodeInvalidArgs, err.Error())
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return models.Fail(models.CodeNotFound, fmt.Sprintf("%q does not exist", base))
		}
		return models.Fail(models.CodeIO, err.Error())
	}

	var matches []Match
	engine := "ripgrep"
	matches, err = t.ripgrep(ctx, abs, pattern, ignoreCase, maxHits)
	if err != nil {
		engine = "internal"
		matches, err = t.scan(ctx, abs, pattern, ignoreCase, maxHits)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return models.Fail(models.CodeTimeout, "search cancelled")
			}
			return models.Fail(models.CodeInvalidArgs, err.Error())
		}
	}

	listed := make([]any, 0, len(matches))
	for _, m := range matches {
		listed = append(listed, map[string]any{
			"path":    m.Path,
			"line":    m.Line,
			"preview": m.Preview,
		})
	}
	return models.Succeed(map[string]any{
		"pattern":   pattern,
		"matches":   listed,
		"count":     len(listed),
		"engine":    engine,
		"truncated": len(matches) >= maxHits,
	})
}

// errNoRipgrep distinguishes "rg missing" from "rg ran and failed".
var errNoRipgrep = errors.New("ripgrep not available")

func (t *GrepTool) ripgrep(ctx context.Context, abs, pattern string, ignoreCase bool, maxHits int) ([]Match, error) {
	if !t.rgLooked {
		t.rgLooked = true
		if path, err := exec.LookPath("rg"); err == nil {
			t.rgPath = path
		}
	}
	if t.rgPath == "" {
		return nil, errNoRipgrep
	}

	cmdArgs := []string{"--json", "--max-count", fmt.Sprint(maxHits)}
	if ignoreCase {
		cmdArgs = append(cmdArgs, "--ignore-case")
	}
	cmdArgs = append(cmdArgs, "--", pattern, abs)

	cmd := exec.CommandContext(ctx, t.rgPath, cmdArgs...)
	out, err := cmd.Output()
	if err != nil {
		// Exit code 1 means no matches; anything else is a real failure.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("ripgrep: %w", err)
	}
	return t.parseRipgrepJSON(out, maxHits), nil
}

// parseRipgrepJSON extracts match lines from rg's JSON event stream.
func (t *GrepTool) parseRipgrepJSON(out []byte, maxHits int) []Match {
	var matches []Match
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var event struct {
			Type string `json:"type"`
			Data struct {
				Path struct {
					Text string `json:"text"`
				} `json:"path"`
				Lines struct {
					Text string `json:"text"`
				} `json:"lines"`
				LineNumber int `json:"line_number"`
			} `json:"data"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil || event.Type != "match" {
			continue
		}
		matches = append(matches, Match{
			Path:    t.resolver.Rel(event.Data.Path.Text),
			Line:    event.Data.LineNumber,
			Preview: trimPreview(event.Data.Lines.Text),
		})
		if len(matches) >= maxHits {
			break
		}
	}
	return matches
}

// scan is the in-process fallback engine.
func (t *GrepTool) scan(ctx context.Context, abs, pattern string, ignoreCase bool, maxHits int) ([]Match, error) {
	expr := pattern
	if ignoreCase {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("bad pattern: %w", err)
	}

	var matches []Match
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > fallbackMaxFileBytes {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil || bytes.IndexByte(data, 0) >= 0 {
			return nil // unreadable or binary
		}
		rel := t.resolver.Rel(p)
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				matches = append(matches, Match{
					Path:    rel,
					Line:    i + 1,
					Preview: trimPreview(line),
				})
				if len(matches) >= maxHits {
					return filepath.SkipAll
				}
			}
		}
		return nil
	})
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return matches, nil
}

func trimPreview(line string) string {
	line = strings.TrimRight(line, "\r\n")
	if len(line) > previewMax {
		return line[:previewMax] + "..."
	}
	return line
}
