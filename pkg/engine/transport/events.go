package transport

import "AgentCore/pkg/engine/api"

// ModelEventKind discriminates ModelEvent, mirroring the SSE `type` field
// values enumerated in §4.3.
type ModelEventKind string

const (
	EventResponseCreated   ModelEventKind = "response_created"
	EventItemAdded         ModelEventKind = "item_added"
	EventTextDelta         ModelEventKind = "text_delta"
	EventReasoningDelta    ModelEventKind = "reasoning_delta"
	EventFunctionArgsDelta ModelEventKind = "function_args_delta"
	EventItemDone          ModelEventKind = "item_done"
	EventCompleted         ModelEventKind = "completed"
)

// ModelEvent is the typed, ordered unit the transport yields to the
// Session Core. Exactly one payload field is populated per Kind.
type ModelEvent struct {
	Kind ModelEventKind

	// Carries the request_ordinal established by response.created; every
	// ModelEvent within one stream shares the same ResponseID.
	ResponseID string

	OutputIndex    uint32
	SequenceNumber uint64

	// ItemAdded / ItemDone
	ItemID     string
	ItemKind   api.ResponseItemKind
	ToolName   string
	CallID     string
	Command    []string

	// TextDelta / ReasoningDelta / FunctionArgsDelta
	Delta string

	// Completed
	Usage     api.TokenUsage
	RateLimit *api.RateLimitSnapshot
}

func itemKindOf(item *outputItem) api.ResponseItemKind {
	if item == nil {
		return api.ItemMessage
	}
	switch item.Type {
	case "reasoning":
		return api.ItemReasoning
	case "function_call", "tool_call":
		return api.ItemToolCall
	case "local_shell_call":
		return api.ItemLocalShellCall
	default:
		return api.ItemMessage
	}
}
