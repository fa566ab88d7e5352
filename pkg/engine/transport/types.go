// Package transport is the Model Transport: it posts a Prompt over HTTP,
// parses the Responses-API-shaped SSE stream into ModelEvents, and retries
// failed attempts with rate-limit-aware backoff.
//
// Wire shapes grounded on sebastianxbutler-godex's pkg/protocol/types.go
// (ResponsesRequest/ResponseInputItem/ToolSpec/StreamEvent), adapted to
// this repo's api.ResponseItem/api.ToolDescriptor vocabulary.
package transport

import "encoding/json"

// Prompt is what the Session Core hands to the transport for one model
// turn: instructions, the accumulated item history, the enabled tool
// descriptors, and generation parameters (§4.3).
type Prompt struct {
	Model             string
	Instructions      string
	Input             []RequestItem
	Tools             []ToolSpec
	ReasoningEffort   string
	SummaryVerbosity  string
	ParallelToolCalls bool
}

// RequestItem is one entry of the prior-items array sent upstream; it
// mirrors godex's ResponseInputItem discriminated-by-Type shape.
type RequestItem struct {
	Type      string `json:"type"`
	Role      string `json:"role,omitempty"`
	Text      string `json:"text,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Output    string `json:"output,omitempty"`
}

// ToolSpec is one tool descriptor in the request body's "tools" array.
type ToolSpec struct {
	Type        string          `json:"type"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Strict      bool            `json:"strict,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// responsesRequest is the actual HTTP body shape.
type responsesRequest struct {
	Model             string          `json:"model"`
	Instructions      string          `json:"instructions,omitempty"`
	Input             []wireInputItem `json:"input,omitempty"`
	Tools             []ToolSpec      `json:"tools,omitempty"`
	ParallelToolCalls bool            `json:"parallel_tool_calls,omitempty"`
	Reasoning         *wireReasoning  `json:"reasoning,omitempty"`
	Store             bool            `json:"store"`
	Stream            bool            `json:"stream"`
}

type wireReasoning struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

type wireInputItem struct {
	Type      string               `json:"type"`
	Role      string               `json:"role,omitempty"`
	Content   []wireInputContent   `json:"content,omitempty"`
	Name      string               `json:"name,omitempty"`
	Arguments string               `json:"arguments,omitempty"`
	CallID    string               `json:"call_id,omitempty"`
	Output    string               `json:"output,omitempty"`
}

type wireInputContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func toWireInput(items []RequestItem) []wireInputItem {
	out := make([]wireInputItem, 0, len(items))
	for _, it := range items {
		switch it.Type {
		case "message":
			out = append(out, wireInputItem{
				Type:    "message",
				Role:    it.Role,
				Content: []wireInputContent{{Type: "input_text", Text: it.Text}},
			})
		case "function_call":
			out = append(out, wireInputItem{Type: "function_call", Name: it.Name, CallID: it.CallID, Arguments: it.Arguments})
		case "function_call_output":
			out = append(out, wireInputItem{Type: "function_call_output", CallID: it.CallID, Output: it.Output})
		default:
			out = append(out, wireInputItem{Type: it.Type, Role: it.Role, CallID: it.CallID, Output: it.Output, Arguments: it.Arguments, Name: it.Name})
		}
	}
	return out
}

// streamEvent is the raw shape of one SSE "data:" line, a superset of the
// fields used by the `type` values enumerated in §4.3.
type streamEvent struct {
	Type         string          `json:"type"`
	Response     *responseRef    `json:"response,omitempty"`
	Item         *outputItem     `json:"item,omitempty"`
	Delta        string          `json:"delta,omitempty"`
	ItemID       string          `json:"item_id,omitempty"`
	OutputIndex  uint32          `json:"output_index"`
	SequenceNum  uint64          `json:"sequence_number"`
	Code         string          `json:"code,omitempty"`
	Message      string          `json:"message,omitempty"`
	RetryAfterMs int64           `json:"retry_after_ms,omitempty"`
	RateLimits   *rateLimitWire  `json:"rate_limits,omitempty"`
	_            json.RawMessage `json:"-"`
}

type responseRef struct {
	ID    string    `json:"id,omitempty"`
	Usage *usageRef `json:"usage,omitempty"`
}

type usageRef struct {
	InputTokens           uint64 `json:"input_tokens"`
	CachedInputTokens     uint64 `json:"cached_input_tokens"`
	OutputTokens          uint64 `json:"output_tokens"`
	ReasoningOutputTokens uint64 `json:"reasoning_output_tokens"`
	TotalTokens           uint64 `json:"total_tokens"`
}

type outputItem struct {
	ID        string `json:"id,omitempty"`
	Type      string `json:"type,omitempty"`
	Name      string `json:"name,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Command   string `json:"command,omitempty"`
	Status    string `json:"status,omitempty"`
}

type rateLimitWire struct {
	PrimaryUsedPercent   float64 `json:"primary_used_percent"`
	PrimaryWindowMinutes int     `json:"primary_window_minutes"`
	ResetsInSeconds      int64   `json:"resets_in_seconds"`
}
