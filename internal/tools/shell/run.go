// Package shell implements the policy-gated run_cmd tool. The policy gate
// decides whether a command may run at all; this package only executes and
// captures.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/haasonsaas/sidekick/internal/tools"
	"github.com/haasonsaas/sidekick/internal/workspace"
	"github.com/haasonsaas/sidekick/pkg/models"
)

// RunCmdTool executes a shell command inside the workspace.
type RunCmdTool struct {
	resolver *workspace.Resolver

	// maxOutputBytes bounds captured stdout and stderr each. Zero means 64 KB.
	maxOutputBytes int

	// shell defaults to /bin/sh.
	shell string
}

// NewRunCmdTool creates a run_cmd tool.
func NewRunCmdTool(resolver *workspace.Resolver, maxOutputBytes int) *RunCmdTool {
	if maxOutputBytes <= 0 {
		maxOutputBytes = 64_000
	}
	return &RunCmdTool{
		resolver:       resolver,
		maxOutputBytes: maxOutputBytes,
		shell:          "/bin/sh",
	}
}

func (t *RunCmdTool) Spec() tools.Spec {
	return tools.Spec{
		Name:             "run_cmd",
		Description:      "Run a shell command in the workspace. Output is captured with a size bound; the exit code is reported.",
		ExecutesCommands: true,
		Schema: tools.ObjectSchema(map[string]any{
			"command": map[string]any{"type": "string", "minLength": 1},
			"cwd":     map[string]any{"type": "string"},
		}, "command"),
	}
}

func (t *RunCmdTool) Execute(ctx context.Context, args map[string]any) *models.ToolResult {
	command, _ := args["command"].(string)
	cwd, _ := args["cwd"].(string)
	if cwd == "" {
		cwd = "."
	}

	dir, err := t.resolver.Resolve(cwd)
	if err != nil {
		if errors.Is(err, workspace.ErrEscape) {
			return models.Fail(models.CodePathEscape, fmt.Sprintf("cwd %q escapes the workspace", cwd))
		}
		return models.Fail(models.CodeInvalidArgs, err.Error())
	}

	cmd := exec.CommandContext(ctx, t.shell, "-c", command)
	cmd.Dir = dir
	stdout := newBoundedBuffer(t.maxOutputBytes)
	stderr := newBoundedBuffer(t.maxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(runErr, &exitErr):
			exitCode = exitErr.ExitCode()
		default:
			exitCode = -1
		}
	}

	payload := map[string]any{
		"command":   command,
		"cwd":       t.resolver.Rel(dir),
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": exitCode,
		"truncated": stdout.Truncated() || stderr.Truncated(),
	}

	// Timeout still reports the partial output captured so far.
	if ctx.Err() != nil {
		result := models.Fail(models.CodeTimeout, "command timed out and was killed")
		result.Payload = payload
		return result
	}
	if runErr != nil && exitCode == -1 {
		return models.Fail(models.CodeTool, fmt.Sprintf("start command: %v", runErr))
	}
	return models.Succeed(payload)
}

// boundedBuffer captures up to max bytes and drops the rest, remembering
// that it did.
type boundedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	max       int
	truncated bool
}

func newBoundedBuffer(max int) *boundedBuffer {
	return &boundedBuffer{max: max}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := b.max - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.buf.String()
	if b.truncated {
		s += fmt.Sprintf("\n[... output truncated at %d bytes ...]", b.max)
	}
	return strings.TrimRight(s, "\x00")
}

func (b *boundedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
