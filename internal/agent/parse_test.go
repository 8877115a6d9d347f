package agent

import (
	"errors"
	"strings"
	"testing"
)

func TestParseBareObject(t *testing.T) {
	call, err := ParseToolCall(`{"tool": "read_file", "args": {"path": "a.txt"}}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if call == nil || call.Tool != "read_file" || call.Args["path"] != "a.txt" {
		t.Fatalf("call = %+v", call)
	}
}

func TestParseFencedBlock(t *testing.T) {
	text := "I'll read the file first.\n```json\n{\"tool\": \"read_file\", \"args\": {\"path\": \"a.txt\"}}\n```"
	call, err := ParseToolCall(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if call == nil || call.Tool != "read_file" {
		t.Fatalf("call = %+v", call)
	}
}

func TestParseEmbeddedObject(t *testing.T) {
	text := `Let me check: {"tool": "grep", "args": {"pattern": "TODO"}} should find them.`
	call, err := ParseToolCall(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if call == nil || call.Tool != "grep" || call.Args["pattern"] != "TODO" {
		t.Fatalf("call = %+v", call)
	}
}

func TestParseNoCall(t *testing.T) {
	call, err := ParseToolCall("The file contains three functions. Done.")
	if err != nil || call != nil {
		t.Fatalf("call = %+v, err = %v", call, err)
	}
}

func TestParseIgnoresNonToolObjects(t *testing.T) {
	call, err := ParseToolCall(`The config is {"level": "info"} by default.`)
	if err != nil || call != nil {
		t.Fatalf("call = %+v, err = %v", call, err)
	}
}

func TestParseRejectsDistinctCandidates(t *testing.T) {
	text := `{"tool": "read_file", "args": {"path": "a.txt"}}
{"tool": "list_dir", "args": {"path": "src"}}`
	_, err := ParseToolCall(text)
	if !errors.Is(err, ErrMultipleToolCalls) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseAcceptsIdenticalDuplicates(t *testing.T) {
	// Bare form and the fenced copy are the same call.
	text := "```json\n{\"tool\": \"list_dir\", \"args\": {\"path\": \"src\"}}\n```\n" +
		`{"args": {"path": "src"}, "tool": "list_dir"}`
	call, err := ParseToolCall(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if call == nil || call.Tool != "list_dir" {
		t.Fatalf("call = %+v", call)
	}
}

func TestParseBraceInsideString(t *testing.T) {
	call, err := ParseToolCall(`{"tool": "apply_patch", "args": {"path": "a.go", "old": "func x() {", "new": "func y() {"}}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if call == nil || call.Args["old"] != "func x() {" {
		t.Fatalf("call = %+v", call)
	}
}

func TestDetectStutter(t *testing.T) {
	text, hit := detectStutter("normal answer")
	if hit || text != "normal answer" {
		t.Fatalf("text = %q, hit = %v", text, hit)
	}

	runaway := "The answer is " + strings.Repeat("!", 500)
	text, hit = detectStutter(runaway)
	if !hit {
		t.Fatal("expected stutter detection")
	}
	if text != "The answer is " {
		t.Fatalf("truncated = %q", text)
	}
}

func TestDetectStutterAllowsWhitespaceRuns(t *testing.T) {
	text := "code:\n" + strings.Repeat("\n", 200) + "end"
	if _, hit := detectStutter(text); hit {
		t.Fatal("newline runs are not stuttering")
	}
}
