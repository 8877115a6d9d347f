package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/haasonsaas/sidekick/pkg/models"
)

// ErrMultipleToolCalls is returned when the assistant text contains more
// than one distinct tool-call candidate.
var ErrMultipleToolCalls = fmt.Errorf("multiple distinct tool calls in one response")

var toolCallFence = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// toolCallShape is the wire form the system prompt asks for.
type toolCallShape struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// ParseToolCall extracts at most one tool call from free-form assistant
// text. It accepts, in order: a bare top-level JSON object, a fenced code
// block, and the first embedded {...} that parses with the right shape.
// Multiple candidates are rejected unless they are identical.
func ParseToolCall(text string) (*models.ToolCall, error) {
	var candidates []string

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		candidates = append(candidates, trimmed)
	}
	for _, m := range toolCallFence.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, m[1])
	}
	candidates = append(candidates, balancedObjects(text)...)

	var calls []*models.ToolCall
	var canon []string
	for _, c := range candidates {
		call, key, ok := decodeToolCall(c)
		if !ok {
			continue
		}
		duplicate := false
		for _, prev := range canon {
			if prev == key {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		calls = append(calls, call)
		canon = append(canon, key)
	}

	switch len(calls) {
	case 0:
		return nil, nil
	case 1:
		return calls[0], nil
	default:
		return nil, ErrMultipleToolCalls
	}
}

// decodeToolCall parses one candidate and returns it with a canonical key
// for identity comparison.
func decodeToolCall(raw string) (*models.ToolCall, string, bool) {
	var shape toolCallShape
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&shape); err != nil || shape.Tool == "" {
		return nil, "", false
	}
	if shape.Args == nil {
		shape.Args = map[string]any{}
	}
	key, err := json.Marshal(shape)
	if err != nil {
		return nil, "", false
	}
	return &models.ToolCall{Tool: shape.Tool, Args: shape.Args}, string(key), true
}

// balancedObjects scans the text for top-level {...} spans, respecting
// strings and escapes, so prose around an embedded call does not break
// parsing.
func balancedObjects(text string) []string {
	var spans []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range text {
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && r == '\\':
			escaped = true
		case r == '"':
			inString = !inString
		case inString:
		case r == '{':
			if depth == 0 {
				start = i
			}
			depth++
		case r == '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					spans = append(spans, text[start:i+1])
					start = -1
				}
			}
		}
	}
	return spans
}
