// Package policy maps execution presets to (ApprovalPolicy, SandboxPolicy)
// pairs and decides, per tool call, whether the Approval Broker must be
// consulted before dispatch. Grounded on the teacher's unified tool
// governance package (pkg/engine/policy/policy.go), generalized from the
// teacher's four-mode ApprovalMode to the spec's ApprovalPolicy x
// SandboxPolicy product and its four named ExecutionPresets.
package policy

import (
	"fmt"
	"path/filepath"
	"strings"

	"AgentCore/pkg/engine/api"
)

// Resolve returns the (ApprovalPolicy, SandboxPolicy) pair for a named
// preset, exactly as specified in §6.
func Resolve(preset api.ExecutionPreset) (api.ApprovalPolicy, api.SandboxPolicy) {
	switch preset {
	case api.PresetReadOnly:
		return api.ApprovalNever, api.SandboxPolicy{Kind: api.SandboxReadOnly}
	case api.PresetUntrusted:
		return api.ApprovalOnFailure, api.SandboxPolicy{Kind: api.SandboxReadOnly}
	case api.PresetAuto:
		return api.ApprovalOnFailure, api.SandboxPolicy{Kind: api.SandboxWorkspaceWrite, NetworkAccess: false}
	case api.PresetFullYolo:
		return api.ApprovalNever, api.SandboxPolicy{Kind: api.SandboxDangerFull}
	default:
		// Unknown presets degrade to the safest option.
		return api.ApprovalOnFailure, api.SandboxPolicy{Kind: api.SandboxReadOnly}
	}
}

// Policy is the live governance object the Tool Execution Layer consults
// before and after every dispatch.
type Policy struct {
	Approval api.ApprovalPolicy
	Sandbox  api.SandboxPolicy

	// AllowList is consulted only under ApprovalUnlessAllowListed.
	AllowList map[string]bool
}

// New builds a Policy from a named preset.
func New(preset api.ExecutionPreset) *Policy {
	approval, sandbox := Resolve(preset)
	return &Policy{Approval: approval, Sandbox: sandbox, AllowList: map[string]bool{}}
}

// NeedApproval decides, before dispatch, whether the Approval Broker must
// be consulted. escalated reflects the shell tool's
// with_escalated_privileges flag, which always prompts regardless of
// ApprovalPolicy unless the sandbox is already DangerFullAccess (§6, Open
// Question resolved in SPEC_FULL.md §9).
func (p *Policy) NeedApproval(toolName string, escalated bool, priorFailure bool) bool {
	if escalated {
		return p.Sandbox.Kind != api.SandboxDangerFull
	}
	switch p.Approval {
	case api.ApprovalNever:
		return false
	case api.ApprovalOnFailure:
		return priorFailure
	case api.ApprovalUnlessAllowListed:
		return !p.AllowList[toolName]
	case api.ApprovalAutoEdit:
		return toolName != "apply_patch" && toolName != "update_plan"
	default:
		return true
	}
}

// AllowSession records a tool name as approved for the remainder of the
// session (ApprovalKind = ApproveForSession), only meaningful under
// ApprovalUnlessAllowListed.
func (p *Policy) AllowSession(toolName string) {
	p.AllowList[toolName] = true
}

// ValidateWorkspacePath ensures targetPath resolves within workspaceRoot,
// following symlinks where the target exists and falling back to lexical
// containment for not-yet-existing paths (e.g. apply_patch Add operations).
// Grounded on the teacher's DefaultPolicy.validatePath.
func ValidateWorkspacePath(targetPath, workspaceRoot string) (string, error) {
	if !filepath.IsAbs(targetPath) {
		targetPath = filepath.Join(workspaceRoot, targetPath)
	}
	absPath, err := filepath.Abs(targetPath)
	if err != nil {
		return "", api.NewError(api.KindSandbox, fmt.Sprintf("invalid path: %v", err), err)
	}
	absWorkspace, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return "", api.NewError(api.KindSandbox, fmt.Sprintf("invalid workspace root: %v", err), err)
	}
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		absPath = resolved
	}
	if resolvedRoot, err := filepath.EvalSymlinks(absWorkspace); err == nil {
		absWorkspace = resolvedRoot
	}
	if absPath != absWorkspace && !strings.HasPrefix(absPath, absWorkspace+string(filepath.Separator)) {
		return "", api.NewError(api.KindSandbox, fmt.Sprintf("path %q escapes workspace boundary", targetPath), nil)
	}
	return absPath, nil
}

// DeniesGitDir reports whether path (relative to workspaceRoot) falls under
// .git/, which apply_patch must always reject under WorkspaceWrite (§4.2).
func DeniesGitDir(absPath, workspaceRoot string) bool {
	rel, err := filepath.Rel(workspaceRoot, absPath)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return rel == ".git" || strings.HasPrefix(rel, ".git/")
}
