// Package codex bridges to the codex CLI running in proto mode: it spawns
// the subprocess, writes Submission lines to its stdin, and parses Event
// lines from its stdout. Credentials for the child process come from the
// credential store's two contracts (API key or refreshed token set).
package codex

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Submission is one operation sent to the codex process.
type Submission struct {
	// ID correlates events emitted in response to this submission.
	ID string `json:"id"`
	// Op is the operation payload.
	Op Op `json:"op"`
}

// Operation type identifiers.
const (
	OpConfigureSession = "configure_session"
	OpUserInput        = "user_input"
	OpInterrupt        = "interrupt"
	OpExecApproval     = "exec_approval"
	OpPatchApproval    = "patch_approval"
	OpShutdown         = "shutdown"
)

// Op is an internally tagged operation; Type selects which fields apply.
type Op struct {
	Type string `json:"type"`

	// user_input
	Items []InputItem `json:"items,omitempty"`

	// exec_approval / patch_approval
	ApprovalID string `json:"id,omitempty"`
	Decision   string `json:"decision,omitempty"`

	// configure_session
	Provider               *ModelProvider `json:"provider,omitempty"`
	Model                  string         `json:"model,omitempty"`
	ModelReasoningEffort   string         `json:"model_reasoning_effort,omitempty"`
	ModelReasoningSummary  string         `json:"model_reasoning_summary,omitempty"`
	UserInstructions       string         `json:"user_instructions,omitempty"`
	BaseInstructions       string         `json:"base_instructions,omitempty"`
	ApprovalPolicy         string         `json:"approval_policy,omitempty"`
	SandboxPolicy          *SandboxPolicy `json:"sandbox_policy,omitempty"`
	DisableResponseStorage bool           `json:"disable_response_storage,omitempty"`
	Cwd                    string         `json:"cwd,omitempty"`
	ResumePath             string         `json:"resume_path,omitempty"`
}

// ModelProvider names the upstream model provider for a session.
type ModelProvider struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url,omitempty"`
}

// SandboxPolicy describes the filesystem/network sandbox for a session.
type SandboxPolicy struct {
	Mode          string   `json:"mode"`
	WritableRoots []string `json:"writable_roots,omitempty"`
	NetworkAccess bool     `json:"network_access,omitempty"`
}

// Input item type identifiers.
const (
	InputText       = "text"
	InputImage      = "image"
	InputLocalImage = "local_image"
)

// InputItem is one element of a user_input operation.
type InputItem struct {
	Type string `json:"type"`
	// Text carries the message for text items.
	Text string `json:"text,omitempty"`
	// ImageURL is a pre-encoded data: URI image.
	ImageURL string `json:"image_url,omitempty"`
	// Path is a local image path; codex converts it to a data URI itself.
	Path string `json:"path,omitempty"`
}

// NewUserInputOp builds a user_input operation from the given items.
func NewUserInputOp(items ...InputItem) Op {
	return Op{Type: OpUserInput, Items: items}
}

// NewInterruptOp builds an interrupt operation.
func NewInterruptOp() Op {
	return Op{Type: OpInterrupt}
}

// NewExecApprovalOp builds an exec_approval decision for the given request.
func NewExecApprovalOp(approvalID string, approved bool) Op {
	return Op{Type: OpExecApproval, ApprovalID: approvalID, Decision: decisionString(approved)}
}

// NewPatchApprovalOp builds a patch_approval decision for the given request.
func NewPatchApprovalOp(approvalID string, approved bool) Op {
	return Op{Type: OpPatchApproval, ApprovalID: approvalID, Decision: decisionString(approved)}
}

// NewShutdownOp builds a shutdown operation.
func NewShutdownOp() Op {
	return Op{Type: OpShutdown}
}

func decisionString(approved bool) string {
	if approved {
		return "allow"
	}
	return "deny"
}

// Event type identifiers emitted by the codex process.
const (
	EventSessionConfigured    = "session_configured"
	EventTaskStarted          = "task_started"
	EventTaskComplete         = "task_complete"
	EventAgentMessage         = "agent_message"
	EventAgentMessageDelta    = "agent_message_delta"
	EventAgentReasoning       = "agent_reasoning"
	EventAgentReasoningDelta  = "agent_reasoning_delta"
	EventTokenCount           = "token_count"
	EventTurnStarted          = "turn_started"
	EventTurnAborted          = "turn_aborted"
	EventTurnComplete         = "turn_complete"
	EventTurnDiff             = "turn_diff"
	EventPlanUpdate           = "plan_update"
	EventExecApprovalRequest  = "exec_approval_request"
	EventPatchApprovalRequest = "patch_approval_request"
	EventPatchApplyBegin      = "patch_apply_begin"
	EventPatchApplyEnd        = "patch_apply_end"
	EventExecCommandBegin     = "exec_command_begin"
	EventExecCommandOutput    = "exec_command_output_delta"
	EventExecCommandEnd       = "exec_command_end"
	EventError                = "error"
	EventShutdownComplete     = "shutdown_complete"
	EventBackgroundEvent      = "background_event"
)

// Event is one message received from the codex process.
type Event struct {
	// ID echoes the submission ID this event responds to.
	ID string `json:"id"`
	// Msg is the event payload.
	Msg EventMsg `json:"msg"`
}

// EventMsg is an internally tagged event payload; Type selects which fields
// apply. Unknown event types still parse — Type is preserved and the typed
// fields stay zero — so newer codex versions do not break the bridge.
type EventMsg struct {
	Type string `json:"type"`

	// session_configured
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`

	// agent_message / error / background_event
	Message          string `json:"message,omitempty"`
	LastAgentMessage string `json:"last_agent_message,omitempty"`

	// streaming deltas and reasoning
	Delta string `json:"delta,omitempty"`
	Text  string `json:"text,omitempty"`

	// task_complete / turn_complete
	ResponseID string `json:"response_id,omitempty"`

	// token_count
	InputTokens           int `json:"input_tokens,omitempty"`
	CachedInputTokens     int `json:"cached_input_tokens,omitempty"`
	OutputTokens          int `json:"output_tokens,omitempty"`
	ReasoningOutputTokens int `json:"reasoning_output_tokens,omitempty"`
	TotalTokens           int `json:"total_tokens,omitempty"`

	// exec_approval_request carries command as a string; exec_command_begin
	// as an array. Kept raw here; use CommandString/CommandArgs.
	Command json.RawMessage `json:"command,omitempty"`
	Cwd     string          `json:"cwd,omitempty"`

	// exec_command_*
	CallID   string `json:"call_id,omitempty"`
	Stream   string `json:"stream,omitempty"`
	Chunk    []byte `json:"chunk,omitempty"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode int    `json:"exit_code,omitempty"`

	// plan_update
	Plan []PlanItem `json:"plan,omitempty"`

	// turn_diff / patch events
	UnifiedDiff string   `json:"unified_diff,omitempty"`
	Patch       string   `json:"patch,omitempty"`
	Files       []string `json:"files,omitempty"`
	Success     bool     `json:"success,omitempty"`
}

// PlanItem is one step of an agent plan update.
type PlanItem struct {
	Step   string `json:"step"`
	Status string `json:"status"`
}

// CommandString returns the command as a single string, joining array form
// with spaces.
func (m *EventMsg) CommandString() string {
	if len(m.Command) == 0 {
		return ""
	}
	parsed := gjson.ParseBytes(m.Command)
	if parsed.IsArray() {
		out := ""
		for i, part := range parsed.Array() {
			if i > 0 {
				out += " "
			}
			out += part.String()
		}
		return out
	}
	return parsed.String()
}

// CommandArgs returns the command as an argument vector. String form yields
// a single-element slice.
func (m *EventMsg) CommandArgs() []string {
	if len(m.Command) == 0 {
		return nil
	}
	parsed := gjson.ParseBytes(m.Command)
	if parsed.IsArray() {
		parts := parsed.Array()
		args := make([]string, 0, len(parts))
		for _, part := range parts {
			args = append(args, part.String())
		}
		return args
	}
	return []string{parsed.String()}
}
