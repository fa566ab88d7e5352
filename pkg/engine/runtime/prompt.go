package runtime

import (
	"encoding/json"

	"AgentCore/pkg/engine/api"
	"AgentCore/pkg/engine/transport"
)

// buildPrompt converts the session's accumulated history plus the
// registered tool set into a transport.Prompt for the next model round.
// Grounded on the teacher's turn_runner.go request-assembly step,
// generalized from api.LLMMessage/api.ToolSchema to
// api.ResponseItem/api.ToolDescriptor.
func buildPrompt(cfg ModelConfig, history []api.ResponseItem, descriptors []api.ToolDescriptor) transport.Prompt {
	items := make([]transport.RequestItem, 0, len(history))
	for _, h := range history {
		items = append(items, toRequestItems(h)...)
	}

	tools := make([]transport.ToolSpec, 0, len(descriptors))
	for _, d := range descriptors {
		params, _ := json.Marshal(d.Parameters)
		toolType := "function"
		if d.Kind == api.ToolKindLocalShell {
			toolType = "local_shell"
		}
		tools = append(tools, transport.ToolSpec{
			Type:        toolType,
			Name:        d.Name,
			Description: d.Description,
			Parameters:  params,
		})
	}

	return transport.Prompt{
		Model:             cfg.Model,
		Instructions:      cfg.Instructions,
		Input:             items,
		Tools:             tools,
		ReasoningEffort:   cfg.ReasoningEffort,
		SummaryVerbosity:  cfg.SummaryVerbosity,
		ParallelToolCalls: true,
	}
}

// toRequestItems converts one history item into the (possibly zero, one,
// or two) wire items it corresponds to. A ToolCall item contributes a
// function_call entry; its paired ToolResult (stored as a separate history
// item carrying the same CallID) contributes a function_call_output entry.
func toRequestItems(item api.ResponseItem) []transport.RequestItem {
	switch item.Kind {
	case api.ItemMessage:
		text := joinContent(item.Content)
		if text == "" {
			return nil
		}
		return []transport.RequestItem{{Type: "message", Role: string(item.Role), Text: text}}

	case api.ItemReasoning:
		// Reasoning items are not replayed as prior input; the model
		// regenerates its own reasoning trace each round.
		return nil

	case api.ItemToolCall, api.ItemLocalShellCall:
		return []transport.RequestItem{{
			Type:      "function_call",
			Name:      item.ToolName,
			CallID:    item.CallID,
			Arguments: string(item.Arguments),
		}}

	case api.ItemToolResult:
		return []transport.RequestItem{{
			Type:   "function_call_output",
			CallID: item.CallID,
			Output: item.ResultContent,
		}}

	default:
		return nil
	}
}

func joinContent(parts []api.ContentPart) string {
	if len(parts) == 1 {
		return parts[0].Text
	}
	out := ""
	for _, p := range parts {
		out += p.Text
	}
	return out
}
