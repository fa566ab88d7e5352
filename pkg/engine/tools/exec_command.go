package tools

import (
	"context"
	"encoding/json"
	"time"

	"AgentCore/pkg/engine/api"
)

// ExecCommandTool is the `exec_command` half of the unified PTY exec
// built-in: it always starts a new persistent session. It takes no
// session_id; reattaching to a live session is done only by write_stdin.
type ExecCommandTool struct {
	workspaceRoot string
	manager       *unifiedExecManager
}

// NewExecCommandTool constructs the exec_command tool sharing manager
// with the sibling write_stdin tool (same live session table).
func NewExecCommandTool(workspaceRoot string, manager *unifiedExecManager) *ExecCommandTool {
	return &ExecCommandTool{workspaceRoot: workspaceRoot, manager: manager}
}

func (t *ExecCommandTool) Descriptor() api.ToolDescriptor {
	return descriptor(
		"exec_command",
		"Start a persistent PTY session running cmd. Returns accumulated output after yield_time_ms; the session stays alive for follow-up write_stdin calls.",
		[]ParameterDef{
			{Name: "cmd", Type: "string", Description: "Command line to run", Required: true},
			{Name: "shell", Type: "string", Description: "Shell to invoke (default /bin/bash)"},
			{Name: "login", Type: "boolean", Description: "Run as a login shell (default true)"},
			{Name: "yield_time_ms", Type: "integer", Description: "Milliseconds to wait for output before returning (default 1000)"},
			{Name: "max_output_tokens", Type: "integer", Description: "Truncate returned output to roughly this many tokens"},
		},
		api.ToolKindUnifiedExec,
		api.RiskHigh,
	)
}

func (t *ExecCommandTool) Handle(ctx context.Context, inv api.Invocation) api.ToolResult {
	cmdLine := stringArg(inv.Args, "cmd", "")
	if cmdLine == "" {
		return failf("cmd is required")
	}
	shell := stringArg(inv.Args, "shell", defaultUnifiedShell)
	login := boolArg(inv.Args, "login", true)
	yieldTime := clampYieldTime(intArg(inv.Args, "yield_time_ms", 0))
	maxTokens := intArg(inv.Args, "max_output_tokens", defaultMaxOutputTokens)

	sess, err := t.manager.start(cmdLine, shell, login)
	if err != nil {
		return fail(err)
	}

	output, exitCode, _ := sess.drain(yieldTime)
	output, originalCount := truncateToTokens(output, maxTokens)
	wallTime := time.Since(sess.startedAt).Seconds()

	resp := execCommandResponse{
		SessionID:          sess.sessionID,
		ChunkID:            0,
		WallTimeSeconds:     wallTime,
		Output:             output,
		ExitCode:           exitCode,
		OriginalTokenCount: originalCount,
	}
	raw, _ := json.Marshal(resp)
	return okStructured(string(raw), resp)
}
