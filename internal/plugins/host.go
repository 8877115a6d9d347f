package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Host runs a declared plugin with an argument map and reports the outcome.
type Host interface {
	Run(ctx context.Context, pluginID string, args map[string]any) (*Result, error)
}

// SubprocessHost executes plugins as child processes. Arguments are passed
// as a JSON object on stdin; stdout is the plugin's output.
type SubprocessHost struct {
	manifests map[string]*Manifest

	// maxOutputBytes bounds captured stdout and stderr. Zero means 256 KB.
	maxOutputBytes int
}

// NewSubprocessHost creates a host over the discovered manifests.
func NewSubprocessHost(manifests []*Manifest, maxOutputBytes int) *SubprocessHost {
	if maxOutputBytes <= 0 {
		maxOutputBytes = 256_000
	}
	byID := make(map[string]*Manifest, len(manifests))
	for _, m := range manifests {
		byID[m.ID] = m
	}
	return &SubprocessHost{manifests: byID, maxOutputBytes: maxOutputBytes}
}

// Manifests returns the declared plugins, for registry wiring.
func (h *SubprocessHost) Manifests() []*Manifest {
	out := make([]*Manifest, 0, len(h.manifests))
	for _, m := range h.manifests {
		out = append(out, m)
	}
	return out
}

// Run executes the plugin and returns its result. A non-zero exit is a
// failed Result, not an error; errors are reserved for unknown plugins and
// spawn failures.
func (h *SubprocessHost) Run(ctx context.Context, pluginID string, args map[string]any) (*Result, error) {
	m, ok := h.manifests[pluginID]
	if !ok {
		return nil, fmt.Errorf("unknown plugin %q", pluginID)
	}

	if m.TimeoutS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.TimeoutS)*time.Second)
		defer cancel()
	}

	stdin, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode plugin args: %w", err)
	}

	exe := m.Command[0]
	if !filepath.IsAbs(exe) && strings.Contains(exe, string(filepath.Separator)) {
		exe = filepath.Join(filepath.Dir(m.Path), exe)
	}
	cmd := exec.CommandContext(ctx, exe, m.Command[1:]...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start).Milliseconds()

	res := &Result{
		Output:     clamp(stdout.String(), h.maxOutputBytes),
		DurationMs: elapsed,
	}
	switch {
	case runErr == nil:
		res.OK = true
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			res.Error = clamp(stderr.String(), h.maxOutputBytes)
			if res.Error == "" {
				res.Error = runErr.Error()
			}
		} else {
			return nil, fmt.Errorf("spawn plugin %s: %w", pluginID, runErr)
		}
	}
	if ctx.Err() != nil {
		res.OK = false
		res.Error = "plugin timed out"
	}
	return res, nil
}

func clamp(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
