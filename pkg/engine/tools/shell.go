package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"AgentCore/pkg/engine/api"
	"AgentCore/pkg/engine/sandbox"
)

const defaultShellTimeout = 30 * time.Second
const maxShellTimeout = 10 * time.Minute

// ShellTool is the `shell`/`local_shell` built-in: a command array run in
// cwd under the current SandboxPolicy (§4.2).
type ShellTool struct {
	workspaceRoot string
	gateway       *sandbox.Gateway
	policy        api.SandboxPolicy
	// codexFlavored selects the structured-text output format; other
	// models get raw JSON (§4.2 "Shell output formatting").
	codexFlavored bool
}

// NewShellTool constructs the shell tool.
func NewShellTool(workspaceRoot string, gateway *sandbox.Gateway, policy api.SandboxPolicy, codexFlavored bool) *ShellTool {
	if gateway == nil {
		gateway = sandbox.NewGateway()
	}
	return &ShellTool{workspaceRoot: workspaceRoot, gateway: gateway, policy: policy, codexFlavored: codexFlavored}
}

func (t *ShellTool) Descriptor() api.ToolDescriptor {
	return descriptor(
		"shell",
		"Run a command in the workspace. with_escalated_privileges always prompts for approval.",
		[]ParameterDef{
			{Name: "command", Type: "array", Items: map[string]any{"type": "string"}, Description: "Argv array to execute", Required: true},
			{Name: "workdir", Type: "string", Description: "Working directory, relative to the workspace (optional)"},
			{Name: "timeout", Type: "number", Description: "Timeout in seconds (default 30)"},
			{Name: "with_escalated_privileges", Type: "boolean", Description: "Request privileges beyond the current sandbox policy"},
			{Name: "justification", Type: "string", Description: "Why escalated privileges are needed"},
		},
		api.ToolKindLocalShell,
		api.RiskHigh,
	)
}

func (t *ShellTool) Handle(ctx context.Context, inv api.Invocation) api.ToolResult {
	command := stringSliceArg(inv.Args, "command")
	if len(command) == 0 {
		return failf("command must be a non-empty array")
	}

	cwd := t.workspaceRoot
	if workdir := stringArg(inv.Args, "workdir", ""); workdir != "" {
		resolved, err := resolvePathInWorkspace(t.workspaceRoot, workdir)
		if err != nil {
			return fail(err)
		}
		cwd = resolved
	}

	timeout := defaultShellTimeout
	if secs := intArg(inv.Args, "timeout", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	if timeout > maxShellTimeout {
		timeout = maxShellTimeout
	}

	// with_escalated_privileges is accepted but a no-op under
	// DangerFullAccess, since there is no sandbox left to escalate out of
	// (SPEC_FULL.md §6 Open Question resolution). Approval-gating on this
	// flag happens in the policy layer before Handle is ever called.
	_ = boolArg(inv.Args, "with_escalated_privileges", false)

	effectivePolicy := t.policy
	if inv.BypassSandbox {
		effectivePolicy = api.SandboxPolicy{Kind: api.SandboxDangerFull}
	}

	res, err := t.gateway.Run(ctx, command, cwd, nil, effectivePolicy, timeout)
	if err != nil {
		return fail(err)
	}

	succeeded := res.ExitCode == 0 && !res.TimedOut
	var content string
	if t.codexFlavored {
		content = formatCodexShellOutput(res)
	} else {
		content = formatGenericShellOutput(res)
	}
	return api.ToolResult{
		Content:  content,
		Success:  succeeded,
		TimedOut: res.TimedOut,
		Structured: shellJSONOutput{
			Metadata: shellJSONMetadata{ExitCode: res.ExitCode, DurationSeconds: res.Duration.Seconds()},
			Output:   res.Stdout,
		},
	}
}

func (t *ShellTool) Preview(ctx context.Context, inv api.Invocation) *api.ApprovalPreview {
	command := stringSliceArg(inv.Args, "command")
	return &api.ApprovalPreview{
		Summary:  "Run shell command",
		Content:  fmt.Sprint(command),
		Affected: []string{t.workspaceRoot},
		RiskHint: "shell",
	}
}

func formatCodexShellOutput(res sandbox.Result) string {
	var marker string
	if res.OmittedLines > 0 {
		marker = fmt.Sprintf("[... omitted %d of %d lines ...]\n", res.OmittedLines, res.TotalLines)
	}
	return fmt.Sprintf("Exit code: %d\nWall time: %.2fs\n%sOutput:\n%s", res.ExitCode, res.Duration.Seconds(), marker, res.Stdout)
}

type shellJSONMetadata struct {
	ExitCode        int     `json:"exit_code"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type shellJSONOutput struct {
	Metadata shellJSONMetadata `json:"metadata"`
	Output   string            `json:"output"`
}

func formatGenericShellOutput(res sandbox.Result) string {
	out, _ := json.Marshal(shellJSONOutput{
		Metadata: shellJSONMetadata{ExitCode: res.ExitCode, DurationSeconds: res.Duration.Seconds()},
		Output:   res.Stdout,
	})
	return string(out)
}
