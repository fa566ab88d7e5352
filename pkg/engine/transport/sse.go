package transport

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"time"

	"AgentCore/pkg/engine/api"
)

// parseStream reads SSE "data:" lines off r and invokes emit for each
// decoded ModelEvent, in arrival order. Grounded on
// sebastianxbutler-godex's pkg/sse.ParseStream line-scanning loop,
// retargeted to this repo's streamEvent/ModelEvent shapes.
func parseStream(r io.Reader, emit func(ModelEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var dataLines []string
	var responseID string

	flush := func() error {
		if len(dataLines) == 0 {
			return nil
		}
		joined := strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]
		if strings.TrimSpace(joined) == "" || strings.TrimSpace(joined) == "[DONE]" {
			return nil
		}

		var raw streamEvent
		if err := json.Unmarshal([]byte(joined), &raw); err != nil {
			// Malformed frame: skip rather than fail the whole stream.
			return nil
		}

		if raw.Type == "error" {
			return api.NewError(api.KindTransport, raw.Message, nil)
		}

		if raw.Response != nil && raw.Response.ID != "" {
			responseID = raw.Response.ID
		}

		ev, ok := translate(raw, responseID)
		if !ok {
			return nil
		}
		return emit(ev)
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}

func translate(raw streamEvent, responseID string) (ModelEvent, bool) {
	base := ModelEvent{
		ResponseID:     responseID,
		OutputIndex:    raw.OutputIndex,
		SequenceNumber: raw.SequenceNum,
	}

	switch raw.Type {
	case "response.created":
		base.Kind = EventResponseCreated
		return base, true

	case "response.output_item.added":
		base.Kind = EventItemAdded
		if raw.Item != nil {
			base.ItemID = raw.Item.ID
			base.ItemKind = itemKindOf(raw.Item)
			base.ToolName = raw.Item.Name
			base.CallID = raw.Item.CallID
			if raw.Item.Command != "" {
				base.Command = []string{raw.Item.Command}
			}
		}
		return base, true

	case "response.output_text.delta":
		base.Kind = EventTextDelta
		base.Delta = raw.Delta
		base.ItemID = raw.ItemID
		return base, true

	case "response.reasoning_text.delta":
		base.Kind = EventReasoningDelta
		base.Delta = raw.Delta
		base.ItemID = raw.ItemID
		return base, true

	case "response.function_call_arguments.delta":
		base.Kind = EventFunctionArgsDelta
		base.Delta = raw.Delta
		base.ItemID = raw.ItemID
		return base, true

	case "response.output_item.done":
		base.Kind = EventItemDone
		if raw.Item != nil {
			base.ItemID = raw.Item.ID
			base.ItemKind = itemKindOf(raw.Item)
			base.ToolName = raw.Item.Name
			base.CallID = raw.Item.CallID
		}
		return base, true

	case "response.completed":
		base.Kind = EventCompleted
		if raw.Response != nil && raw.Response.Usage != nil {
			u := raw.Response.Usage
			base.Usage = api.TokenUsage{
				InputTokens:           u.InputTokens,
				CachedInputTokens:     u.CachedInputTokens,
				OutputTokens:          u.OutputTokens,
				ReasoningOutputTokens: u.ReasoningOutputTokens,
				TotalTokens:           u.TotalTokens,
			}
		}
		if raw.RateLimits != nil {
			base.RateLimit = &api.RateLimitSnapshot{
				Primary: &api.RateLimitWindow{
					UsedPercent:  raw.RateLimits.PrimaryUsedPercent,
					WindowSecond: uint64(raw.RateLimits.PrimaryWindowMinutes) * 60,
					ResetsAt:     time.Now().Add(time.Duration(raw.RateLimits.ResetsInSeconds) * time.Second),
				},
			}
		}
		return base, true

	default:
		return ModelEvent{}, false
	}
}
