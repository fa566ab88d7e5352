package tools

import (
	"context"
	"encoding/json"
	"time"

	"AgentCore/pkg/engine/api"
)

// WriteStdinTool is the `write_stdin` half of the unified exec built-in
// (§6, supplemented from original_source — present in unified_exec.rs but
// omitted from the distilled spec's schema table): it writes to an
// existing session's pty and returns newly accumulated output.
type WriteStdinTool struct {
	manager *unifiedExecManager
}

// NewWriteStdinTool constructs the write_stdin tool sharing manager with
// the sibling exec_command tool.
func NewWriteStdinTool(manager *unifiedExecManager) *WriteStdinTool {
	return &WriteStdinTool{manager: manager}
}

func (t *WriteStdinTool) Descriptor() api.ToolDescriptor {
	return descriptor(
		"write_stdin",
		"Write characters to an existing exec_command session's stdin and return accumulated output.",
		[]ParameterDef{
			{Name: "session_id", Type: "integer", Description: "Session id returned by exec_command", Required: true},
			{Name: "chars", Type: "string", Description: "Characters to write to stdin"},
			{Name: "yield_time_ms", Type: "integer", Description: "Milliseconds to wait for output before returning (default 1000)"},
			{Name: "max_output_tokens", Type: "integer", Description: "Truncate returned output to roughly this many tokens"},
		},
		api.ToolKindUnifiedExec,
		api.RiskHigh,
	)
}

func (t *WriteStdinTool) Handle(ctx context.Context, inv api.Invocation) api.ToolResult {
	sessionID := int32(intArg(inv.Args, "session_id", 0))
	sess, ok := t.manager.get(sessionID)
	if !ok {
		return failf("no such session: %d", sessionID)
	}

	if chars := stringArg(inv.Args, "chars", ""); chars != "" {
		if err := sess.writeStdin(chars); err != nil {
			return fail(err)
		}
	}

	yieldTime := clampYieldTime(intArg(inv.Args, "yield_time_ms", 0))
	maxTokens := intArg(inv.Args, "max_output_tokens", defaultMaxOutputTokens)

	output, exitCode, _ := sess.drain(yieldTime)
	output, originalCount := truncateToTokens(output, maxTokens)
	wallTime := time.Since(sess.startedAt).Seconds()

	resp := execCommandResponse{
		SessionID:          sessionID,
		ChunkID:            0,
		WallTimeSeconds:     wallTime,
		Output:             output,
		ExitCode:           exitCode,
		OriginalTokenCount: originalCount,
	}
	raw, _ := json.Marshal(resp)
	return okStructured(string(raw), resp)
}
