// Package api defines the data model and stable contracts shared across the
// engine: response items, turns, policy, and the events the Session Core
// emits to consumers. Nothing in this package depends on runtime, transport,
// or tools so that all of those can depend on it without cycles.
package api

import (
	"encoding/json"
	"time"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// OrderKey
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// OrderKey is the total-order sort key for every event the Session Core can
// emit. Ties are broken by MintSeq, a process-wide monotonic counter
// assigned when the event is minted, never derived from server data.
type OrderKey struct {
	RequestOrdinal uint64 `json:"request_ordinal"`
	OutputIndex    uint32 `json:"output_index"`
	SequenceNumber uint64 `json:"sequence_number"`
	MintSeq        uint64 `json:"mint_seq"`
}

// UnassignedOutputIndex marks an OrderKey minted for an event with no
// server-assigned output index (synthetic background events, tool lifecycle
// events for a call dispatched before any model output arrived).
const UnassignedOutputIndex uint32 = 1<<32 - 1

// Less reports whether k sorts strictly before other, lexicographically over
// (RequestOrdinal, OutputIndex, SequenceNumber, MintSeq).
func (k OrderKey) Less(other OrderKey) bool {
	if k.RequestOrdinal != other.RequestOrdinal {
		return k.RequestOrdinal < other.RequestOrdinal
	}
	if k.OutputIndex != other.OutputIndex {
		return k.OutputIndex < other.OutputIndex
	}
	if k.SequenceNumber != other.SequenceNumber {
		return k.SequenceNumber < other.SequenceNumber
	}
	return k.MintSeq < other.MintSeq
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// ResponseItem
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// ResponseItemKind discriminates the ResponseItem tagged union.
type ResponseItemKind string

const (
	ItemMessage        ResponseItemKind = "message"
	ItemReasoning      ResponseItemKind = "reasoning"
	ItemToolCall       ResponseItemKind = "tool_call"
	ItemToolResult     ResponseItemKind = "tool_result"
	ItemLocalShellCall ResponseItemKind = "local_shell_call"
)

// Role identifies the speaker of a Message item.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ContentPart is one chunk of a Message's content: text or an image
// reference (the view_image built-in attaches the latter).
type ContentPart struct {
	Text     string `json:"text,omitempty"`
	ImageRef string `json:"image_ref,omitempty"`
}

// ResponseItem is every observable step of the dialog, stored in
// ConversationHistory in arrival order. Exactly one of the typed fields is
// populated, selected by Kind; this mirrors the teacher's discriminated
// event payloads (pkg/engine/api/events.go) rather than a Go sum type, since
// the language has none.
type ResponseItem struct {
	Kind ResponseItemKind `json:"kind"`

	// Message
	Role    Role          `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`

	// Reasoning
	SummaryText     string `json:"summary_text,omitempty"`
	DetailText      string `json:"detail_text,omitempty"`
	HasDetailText   bool   `json:"has_detail_text,omitempty"`

	// ToolCall / LocalShellCall
	CallID    string          `json:"call_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Command   []string        `json:"command,omitempty"`
	Cwd       string          `json:"cwd,omitempty"`
	TimeoutMs int64           `json:"timeout_ms,omitempty"`

	// ToolResult
	ResultContent string `json:"result_content,omitempty"`
	Success       *bool  `json:"success,omitempty"`

	OrderKey  OrderKey  `json:"order_key"`
	MintedAt  time.Time `json:"minted_at"`
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Turn / RunningTool
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// TurnState is the Session Core's state machine position for a Turn.
type TurnState string

const (
	TurnIdle          TurnState = "idle"
	TurnAwaitingModel TurnState = "awaiting_model"
	TurnRunningTools  TurnState = "running_tools"
	TurnAborting      TurnState = "aborting"
	TurnCompleted     TurnState = "completed"
	TurnFailed        TurnState = "failed"
)

// RunningTool is bookkeeping for an in-flight tool call.
type RunningTool struct {
	CallID        string
	ToolName      string
	OrderKey      OrderKey
	StartedAt     time.Time
	HistoryCellID int64
}

// TokenUsage is additive across turns.
type TokenUsage struct {
	InputTokens           uint64 `json:"input_tokens"`
	CachedInputTokens     uint64 `json:"cached_input_tokens"`
	OutputTokens          uint64 `json:"output_tokens"`
	ReasoningOutputTokens uint64 `json:"reasoning_output_tokens"`
	TotalTokens           uint64 `json:"total_tokens"`
}

// Add accumulates other into u, saturating on overflow.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens = saturatingAdd(u.InputTokens, other.InputTokens)
	u.CachedInputTokens = saturatingAdd(u.CachedInputTokens, other.CachedInputTokens)
	u.OutputTokens = saturatingAdd(u.OutputTokens, other.OutputTokens)
	u.ReasoningOutputTokens = saturatingAdd(u.ReasoningOutputTokens, other.ReasoningOutputTokens)
	u.TotalTokens = saturatingAdd(u.TotalTokens, other.TotalTokens)
}

func saturatingAdd(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return ^uint64(0)
	}
	return sum
}

// RateLimitWindow describes one rate-limit window snapshot.
type RateLimitWindow struct {
	UsedPercent  float64   `json:"used_percent"`
	WindowSecond uint64    `json:"window_seconds"`
	ResetsAt     time.Time `json:"resets_at"`
}

// RateLimitSnapshot is updated opportunistically from response metadata.
type RateLimitSnapshot struct {
	Primary   *RateLimitWindow `json:"primary,omitempty"`
	Secondary *RateLimitWindow `json:"secondary,omitempty"`
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Policy
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// ApprovalPolicy controls when the Approval Broker is consulted.
type ApprovalPolicy string

const (
	ApprovalNever              ApprovalPolicy = "never"
	ApprovalOnFailure          ApprovalPolicy = "on_failure"
	ApprovalUnlessAllowListed  ApprovalPolicy = "unless_allow_listed"
	ApprovalAutoEdit           ApprovalPolicy = "auto_edit"
)

// SandboxKind discriminates SandboxPolicy.
type SandboxKind string

const (
	SandboxReadOnly       SandboxKind = "read_only"
	SandboxWorkspaceWrite SandboxKind = "workspace_write"
	SandboxDangerFull     SandboxKind = "danger_full_access"
)

// SandboxPolicy constrains what a spawned command may touch.
type SandboxPolicy struct {
	Kind           SandboxKind `json:"kind"`
	WritableRoots  []string    `json:"writable_roots,omitempty"`
	NetworkAccess  bool        `json:"network_access,omitempty"`
}

// ExecutionPreset names a (ApprovalPolicy, SandboxPolicy) pair.
type ExecutionPreset string

const (
	PresetReadOnly  ExecutionPreset = "read-only"
	PresetUntrusted ExecutionPreset = "untrusted"
	PresetAuto      ExecutionPreset = "auto"
	PresetFullYolo  ExecutionPreset = "full-yolo"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Approval Broker
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// DecisionKind is the outcome of an approval request.
type DecisionKind string

const (
	DecisionApprove          DecisionKind = "approve"
	DecisionApproveForSession DecisionKind = "approve_for_session"
	DecisionDeny             DecisionKind = "deny"
)

// Decision is the Approval Broker's answer to a request_approval call.
type Decision struct {
	Kind       DecisionKind
	RequestID  string
	ToolCallID string
}

// ApprovalKind classifies why approval is being requested.
type ApprovalKind string

const (
	ApprovalKindShell       ApprovalKind = "shell"
	ApprovalKindPatch       ApprovalKind = "apply_patch"
	ApprovalKindEscalation  ApprovalKind = "escalated_privileges"
	ApprovalKindSandboxRetry ApprovalKind = "sandbox_retry"
)

// ApprovalPreview is a human-readable summary shown to the approver.
type ApprovalPreview struct {
	Summary  string
	RiskHint string
	Affected []string
	Content  string
}

// ApprovalRequest carries everything an Approval Broker consumer needs to
// render a prompt and return a Decision.
type ApprovalRequest struct {
	RequestID  string
	ToolCallID string
	Kind       ApprovalKind
	ToolName   string
	Args       map[string]any
	Preview    *ApprovalPreview
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// FileChange / TurnDiffTracker
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// FileChangeKind discriminates FileChange.
type FileChangeKind string

const (
	FileAdd    FileChangeKind = "add"
	FileUpdate FileChangeKind = "update"
	FileDelete FileChangeKind = "delete"
)

// FileChange is one path's half of an apply_patch transaction.
type FileChange struct {
	Kind    FileChangeKind
	Path    string
	Content string // Add
	Old     string // Update
	New     string // Update
	MoveTo  string // Update, optional rename
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Tool descriptors
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// ToolKind discriminates how the Session Core should treat a built-in.
type ToolKind string

const (
	ToolKindFunction   ToolKind = "function"
	ToolKindLocalShell ToolKind = "local_shell"
	ToolKindUnifiedExec ToolKind = "unified_exec"
)

// ToolDescriptor is the JSON-Schema-bearing description of a tool handed to
// the model and used by the registry for dispatch.
type ToolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
	Kind        ToolKind
	Risk        RiskLevel
}

// RiskLevel indicates the risk level of a tool, used by policy decisions.
type RiskLevel string

const (
	RiskNone RiskLevel = "none"
	RiskLow  RiskLevel = "low"
	RiskHigh RiskLevel = "high"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Session (persisted record)
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Session is the persisted, resumable session record: one JSON-Lines
// transcript file of ResponseItems plus a small header.
type Session struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Model     string    `json:"model"`
	Preset    ExecutionPreset `json:"preset"`

	Summary string `json:"summary,omitempty"`
}
