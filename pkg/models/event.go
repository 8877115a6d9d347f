package models

import "time"

// EventKind identifies the kind of agent event.
type EventKind string

const (
	EventUserMessage        EventKind = "user_message"
	EventLLMRequest         EventKind = "llm_request"
	EventLLMResponse        EventKind = "llm_response"
	EventToolCallParsed     EventKind = "tool_call_parsed"
	EventToolResult         EventKind = "tool_result"
	EventConfirmWrite       EventKind = "confirm_write"
	EventConfirmExec        EventKind = "confirm_exec"
	EventPolicyDenyCmd      EventKind = "policy_deny_cmd"
	EventStutteringDetected EventKind = "stuttering_detected"
	EventPlanGenerated      EventKind = "plan_generated"
	EventPlanStepStart      EventKind = "plan_step_start"
	EventPlanStepDone       EventKind = "plan_step_done"
	EventPlanStepBlocked    EventKind = "plan_step_blocked"
	EventReplanGenerated    EventKind = "replan_generated"
	EventFinalVerify        EventKind = "final_verify"
	EventStopReason         EventKind = "stop_reason"
	EventDisplay            EventKind = "display"
	EventState              EventKind = "state"
)

// Event is emitted by the agent loop for every state transition and decision.
// Events for a single session are strictly ordered by Sequence; across
// sessions no ordering is guaranteed.
type Event struct {
	Kind      EventKind      `json:"kind"`
	StepIndex int            `json:"step_index"`
	Sequence  uint64         `json:"seq"`
	TraceID   string         `json:"trace_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// StopReason values carried in stop_reason events.
const (
	StopReasonDone             = "done"
	StopReasonMaxToolCalls     = "max_tool_calls_reached"
	StopReasonUserCancel       = "user_cancel"
	StopReasonFatalError       = "fatal_error"
	StopReasonBudgetExhausted  = "budget_exhausted"
	StopReasonPolicyTerminated = "policy_terminated"
)
