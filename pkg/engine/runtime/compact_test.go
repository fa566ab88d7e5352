package runtime

import (
	"strings"
	"testing"

	"AgentCore/pkg/engine/api"
)

func userMsg() api.ResponseItem {
	return api.ResponseItem{Kind: api.ItemMessage, Role: api.RoleUser}
}

func assistantMsg() api.ResponseItem {
	return api.ResponseItem{Kind: api.ItemMessage, Role: api.RoleAssistant}
}

func TestFindUserTurnSplit_FewerTurnsThanKeep(t *testing.T) {
	history := []api.ResponseItem{userMsg(), assistantMsg()}
	if got := findUserTurnSplit(history, 1); got != 0 {
		t.Errorf("findUserTurnSplit = %d, want 0 (nothing to compact)", got)
	}
}

func TestFindUserTurnSplit_KeepsLastNTurns(t *testing.T) {
	history := []api.ResponseItem{
		userMsg(),      // 0
		assistantMsg(), // 1
		userMsg(),      // 2 <- split point when keepTurns=1
		assistantMsg(), // 3
	}
	got := findUserTurnSplit(history, 1)
	if got != 2 {
		t.Errorf("findUserTurnSplit = %d, want 2", got)
	}
}

func TestFindUserTurnSplit_KeepTurnsExceedsHistory(t *testing.T) {
	history := []api.ResponseItem{userMsg(), assistantMsg(), userMsg(), assistantMsg()}
	if got := findUserTurnSplit(history, 5); got != 0 {
		t.Errorf("findUserTurnSplit = %d, want 0", got)
	}
}

func TestTruncateForSummary(t *testing.T) {
	if got := truncateForSummary("short", 10); got != "short" {
		t.Errorf("truncateForSummary(short) = %q, want unchanged", got)
	}
	long := "0123456789abcdef"
	got := truncateForSummary(long, 10)
	want := "0123456789..."
	if got != want {
		t.Errorf("truncateForSummary(long) = %q, want %q", got, want)
	}
}

func TestRenderTranscript_IncludesUserAndAssistantText(t *testing.T) {
	items := []api.ResponseItem{
		{Kind: api.ItemMessage, Role: api.RoleUser, Content: []api.ContentPart{{Text: "hello"}}},
		{Kind: api.ItemMessage, Role: api.RoleAssistant, Content: []api.ContentPart{{Text: "hi there"}}},
		{Kind: api.ItemToolCall, ToolName: "shell"},
	}
	out := renderTranscript(items)
	if !strings.Contains(out, "hello") || !strings.Contains(out, "hi there") || !strings.Contains(out, "shell") {
		t.Errorf("renderTranscript missing expected content: %q", out)
	}
}
