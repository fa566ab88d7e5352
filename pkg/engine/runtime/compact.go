package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"AgentCore/pkg/engine/api"
	"AgentCore/pkg/engine/transport"
)

// defaultKeepTurns is how many trailing user turns Compact preserves
// verbatim, matching the teacher's DefaultCompressConfig.KeepTurns intent.
const defaultKeepTurns = 1

const compactionInstructions = "Summarize the conversation so far for context continuation. " +
	"Be concise but preserve any decisions, file paths, and outstanding tasks that matter for continuing the work."

// Compact replaces the history prefix with a model-generated summary,
// running as a single auxiliary turn whose only UI surface is a
// BackgroundEvent (§4.1). It fails with api.ErrBusy if a turn is already
// active.
//
// Grounded on the teacher's CompressHistory/findSafeMessageSplit
// (pkg/engine/runtime/compress.go), generalized from the teacher's
// LLMMessage/tool_calls pairing to this repo's ResponseItem/CallID
// pairing. The teacher's pendingToolCalls bookkeeping is simplified away
// here because this Session Core's invariant (§5: a tool_result item is
// always appended, even "interrupted", for every tool_call it dispatches)
// means no user-message index can ever fall inside an unresolved call/
// result pair — every user-message boundary is already a safe split
// point.
func (s *Session) Compact(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session closed")
	}
	if s.turn != nil {
		s.mu.Unlock()
		return api.ErrBusy
	}
	turnID := s.clock.NewID()
	compactCtx, cancel := context.WithCancel(ctx)
	turn := &activeTurn{id: turnID, cancel: cancel, done: make(chan struct{})}
	s.turn = turn
	s.mu.Unlock()

	defer close(turn.done)
	defer s.clearTurn(turn)
	defer cancel()

	history := s.snapshotHistory()
	splitIdx := findUserTurnSplit(history, defaultKeepTurns)
	if splitIdx <= 0 {
		return nil
	}

	old, kept := history[:splitIdx], history[splitIdx:]

	summary, err := s.generateSummary(compactCtx, old)
	if err != nil {
		return fmt.Errorf("compact: %w", err)
	}

	summaryItem := api.ResponseItem{
		Kind:     api.ItemMessage,
		Role:     api.RoleSystem,
		Content:  []api.ContentPart{{Text: "Summary of prior conversation:\n" + summary}},
		OrderKey: s.syntheticOrderKey(0),
		MintedAt: s.clock.Now(),
	}
	newHistory := append([]api.ResponseItem{summaryItem}, kept...)

	s.mu.Lock()
	s.history = newHistory
	s.mu.Unlock()

	if s.transcript != nil {
		if err := s.transcript.Replace(ctx, s.id, newHistory); err != nil {
			return fmt.Errorf("compact: failed to persist compacted transcript: %w", err)
		}
	}

	s.emit(api.UiEvent{
		TurnID: turnID, Type: api.EvBackgroundEvent, OrderKey: s.syntheticOrderKey(0),
		Background: &api.BackgroundPayload{Message: fmt.Sprintf("compacted %d items into a summary", len(old))},
	})
	return nil
}

// findUserTurnSplit returns the index of the first user-message item that
// begins the last keepTurns user turns, or 0 if there are not more than
// keepTurns user turns in history.
func findUserTurnSplit(history []api.ResponseItem, keepTurns int) int {
	var userIdx []int
	for i, item := range history {
		if item.Kind == api.ItemMessage && item.Role == api.RoleUser {
			userIdx = append(userIdx, i)
		}
	}
	if len(userIdx) <= keepTurns {
		return 0
	}
	return userIdx[len(userIdx)-keepTurns]
}

// generateSummary runs a single non-streaming-to-the-UI model round over
// a rendered transcript of items and returns the resulting text.
func (s *Session) generateSummary(ctx context.Context, items []api.ResponseItem) (string, error) {
	prompt := transport.Prompt{
		Model:        s.modelCfg.Model,
		Instructions: compactionInstructions,
		Input:        []transport.RequestItem{{Type: "message", Role: "user", Text: renderTranscript(items)}},
	}

	var result strings.Builder
	onEvent := func(ev transport.ModelEvent) error {
		if ev.Kind == transport.EventTextDelta {
			result.WriteString(ev.Delta)
		}
		return nil
	}
	onReset := func() { result.Reset() }
	onWait := func(wait time.Duration, resetsAt time.Time) {
		s.emit(api.UiEvent{
			Type:       api.EvBackgroundEvent,
			OrderKey:   s.syntheticOrderKey(0),
			Background: &api.BackgroundPayload{Message: fmt.Sprintf("rate limited; waiting %s until %s", wait.Round(time.Second), resetsAt.Format(time.RFC3339))},
		})
	}

	if err := s.transport.Stream(ctx, prompt, onEvent, onReset, onWait); err != nil {
		return "", err
	}

	summary := strings.TrimSpace(result.String())
	if summary == "" {
		return "", fmt.Errorf("model returned an empty summary")
	}
	return summary, nil
}

// renderTranscript flattens a slice of ResponseItems into the plain-text
// log the summarization prompt reads, mirroring the teacher's
// generateSummary rendering loop (user/assistant/tool cases) but keyed off
// ResponseItemKind instead of LLMMessage.Role.
func renderTranscript(items []api.ResponseItem) string {
	var b strings.Builder
	b.WriteString("## Conversation to summarize\n\n")

	for _, item := range items {
		switch item.Kind {
		case api.ItemMessage:
			switch item.Role {
			case api.RoleUser:
				fmt.Fprintf(&b, "**User**: %s\n\n", truncateForSummary(joinContent(item.Content), 300))
			case api.RoleAssistant:
				if text := joinContent(item.Content); text != "" {
					fmt.Fprintf(&b, "**Assistant**: %s\n\n", truncateForSummary(text, 300))
				}
			}
		case api.ItemToolCall, api.ItemLocalShellCall:
			fmt.Fprintf(&b, "_[Used tool: %s]_\n", item.ToolName)
		case api.ItemToolResult:
			if item.ResultContent != "" && len(item.ResultContent) < 100 {
				fmt.Fprintf(&b, "_Tool result: %s_\n", item.ResultContent)
			}
		}
	}

	b.WriteString("\n---\nProvide the summary now. Be concise but complete.")
	return b.String()
}

func truncateForSummary(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
