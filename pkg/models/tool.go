package models

import "encoding/json"

// ErrorCode classifies failures crossing the core boundary. Tools and the
// policy gate report these codes back to the model; they never carry stack
// traces or raw internal errors.
type ErrorCode string

const (
	CodeInvalidArgs  ErrorCode = "E_INVALID_ARGS"
	CodeNotFound     ErrorCode = "E_NOT_FOUND"
	CodePathEscape   ErrorCode = "E_PATH_ESCAPE"
	CodeNoMatch      ErrorCode = "E_NO_MATCH"
	CodeAmbiguous    ErrorCode = "E_AMBIGUOUS"
	CodeDrift        ErrorCode = "E_DRIFT"
	CodeIO           ErrorCode = "E_IO"
	CodeDenied       ErrorCode = "E_DENIED"
	CodePolicyDenied ErrorCode = "E_POLICY_DENIED"
	CodeToolBlocked  ErrorCode = "E_TOOL_BLOCKED"
	CodeTimeout      ErrorCode = "E_TIMEOUT"
	CodeNoTool       ErrorCode = "E_NO_TOOL"
	CodeTool         ErrorCode = "E_TOOL"
	CodeNetwork      ErrorCode = "E_NETWORK"
)

// ToolCall is an assistant-produced request to execute a named tool.
// Exactly one is accepted per assistant turn.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// ToolErrorInfo is the structured error half of a tool result.
type ToolErrorInfo struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ToolResult is the structured outcome of one tool execution. Payload carries
// tool-specific fields (file text, matches, exit_code, ...). When OK is false
// Error is set and Payload may hold partial data (e.g. truncated output).
type ToolResult struct {
	OK      bool           `json:"ok"`
	Payload map[string]any `json:"payload,omitempty"`
	Error   *ToolErrorInfo `json:"error,omitempty"`

	// Cached marks a result served from the session cache.
	Cached bool `json:"cached,omitempty"`

	DurationMs int64 `json:"duration_ms,omitempty"`
}

// Fail builds an error result with the given code and message.
func Fail(code ErrorCode, message string) *ToolResult {
	return &ToolResult{OK: false, Error: &ToolErrorInfo{Code: code, Message: message}}
}

// Succeed builds an ok result with the given payload.
func Succeed(payload map[string]any) *ToolResult {
	if payload == nil {
		payload = map[string]any{}
	}
	return &ToolResult{OK: true, Payload: payload}
}

// ErrorCodeOf returns the result's error code, or "" for ok results.
func (r *ToolResult) ErrorCodeOf() ErrorCode {
	if r == nil || r.Error == nil {
		return ""
	}
	return r.Error.Code
}

// MarshalCompact renders the result as single-line JSON for audit records.
func (r *ToolResult) MarshalCompact() string {
	data, err := json.Marshal(r)
	if err != nil {
		return `{"ok":false}`
	}
	return string(data)
}
