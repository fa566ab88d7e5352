package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"AgentCore/pkg/engine/api"
)

// ActionlintConfig gates the optional workflow-file validator (§3.1,
// mined from code-rs/core/src/workflow_validation.rs's GithubConfig).
type ActionlintConfig struct {
	OnPatch bool
	Path    string // override; empty means look up "actionlint" on PATH
}

// ApplyPatchTool is the `apply_patch` built-in: applies a multi-file
// add/update/delete batch as one transaction via a staging directory
// (§4.2's six-step algorithm).
type ApplyPatchTool struct {
	workspaceRoot string
	actionlint    ActionlintConfig
}

// NewApplyPatchTool constructs the apply_patch tool.
func NewApplyPatchTool(workspaceRoot string, actionlint ActionlintConfig) *ApplyPatchTool {
	return &ApplyPatchTool{workspaceRoot: workspaceRoot, actionlint: actionlint}
}

func (t *ApplyPatchTool) Descriptor() api.ToolDescriptor {
	return descriptor(
		"apply_patch",
		"Apply a batch of file adds/updates/deletes as one transaction. Writes under .github/workflows/*.{yml,yaml} may be checked with actionlint if configured.",
		[]ParameterDef{
			{Name: "changes", Type: "array", Required: true, Description: "List of {kind, path, content?, old?, new?, move_to?}", Items: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"kind":    map[string]any{"type": "string", "enum": []string{"add", "update", "delete"}},
					"path":    map[string]any{"type": "string"},
					"content": map[string]any{"type": "string"},
					"old":     map[string]any{"type": "string"},
					"new":     map[string]any{"type": "string"},
					"move_to": map[string]any{"type": "string"},
				},
				"required": []string{"kind", "path"},
			}},
		},
		api.ToolKindFunction,
		api.RiskHigh,
	)
}

type patchChangeArg struct {
	Kind    string `json:"kind"`
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
	Old     string `json:"old,omitempty"`
	New     string `json:"new,omitempty"`
	MoveTo  string `json:"move_to,omitempty"`
}

func (t *ApplyPatchTool) Handle(ctx context.Context, inv api.Invocation) api.ToolResult {
	rawChanges, err := json.Marshal(inv.Args["changes"])
	if err != nil {
		return failf("changes must be an array: %v", err)
	}
	var parsed []patchChangeArg
	if err := json.Unmarshal(rawChanges, &parsed); err != nil {
		return failf("changes must be an array of file changes: %v", err)
	}
	if len(parsed) == 0 {
		return failf("changes must not be empty")
	}

	seen := map[string]bool{}
	changes := make([]api.FileChange, 0, len(parsed))
	for _, c := range parsed {
		if seen[c.Path] {
			return failf("duplicate path in patch: %s", c.Path)
		}
		seen[c.Path] = true

		absPath, err := resolvePathInWorkspace(t.workspaceRoot, c.Path)
		if err != nil {
			return fail(err)
		}
		if deniesGitDir(absPath, t.workspaceRoot) {
			return failf("writes under .git/ are not permitted: %s", c.Path)
		}

		fc := api.FileChange{Path: absPath, Content: c.Content, Old: c.Old, New: c.New}
		switch c.Kind {
		case "add":
			fc.Kind = api.FileAdd
		case "update":
			fc.Kind = api.FileUpdate
			if c.MoveTo != "" {
				moveAbs, err := resolvePathInWorkspace(t.workspaceRoot, c.MoveTo)
				if err != nil {
					return fail(err)
				}
				fc.MoveTo = moveAbs
			}
		case "delete":
			fc.Kind = api.FileDelete
		default:
			return failf("unknown change kind: %s", c.Kind)
		}
		changes = append(changes, fc)
	}

	stagingDir, err := os.MkdirTemp("", "apply-patch-staging-*")
	if err != nil {
		return failf("failed to create staging directory: %v", err)
	}
	defer os.RemoveAll(stagingDir)

	if failedPath, err := stageChanges(stagingDir, t.workspaceRoot, changes); err != nil {
		return failf("patch rejected at %s: %v", failedPath, err)
	}

	var diagnostics []string
	if t.actionlint.OnPatch {
		diagnostics = t.maybeRunActionlint(changes)
	}

	if failedPath, err := commitChanges(t.workspaceRoot, changes); err != nil {
		// A failed apply_patch suppresses TurnDiff entirely; the caller
		// (Session Core) checks Success before touching inv.Tracker.
		return api.ToolResult{Content: fmt.Sprintf("failed to apply %s: %v", failedPath, err), Success: false}
	}

	if inv.Tracker != nil {
		for _, c := range changes {
			inv.Tracker.Record(c)
		}
	}

	content := "Patch applied"
	if len(diagnostics) > 0 {
		content += "\n\nactionlint diagnostics:\n" + strings.Join(diagnostics, "\n")
	}
	return ok(content)
}

// stageChanges mirrors the patch onto a scratch copy under stagingDir so
// validation (and future diagnostics) never touch the real tree before a
// decision to commit is made.
func stageChanges(stagingDir, workspaceRoot string, changes []api.FileChange) (string, error) {
	for _, c := range changes {
		rel, err := filepath.Rel(workspaceRoot, c.Path)
		if err != nil {
			return c.Path, err
		}
		dest := filepath.Join(stagingDir, rel)

		switch c.Kind {
		case api.FileAdd:
			if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
				return c.Path, err
			}
			if err := os.WriteFile(dest, []byte(c.Content), 0644); err != nil {
				return c.Path, err
			}
		case api.FileUpdate:
			existing, err := os.ReadFile(c.Path)
			if err != nil {
				return c.Path, err
			}
			if c.Old != "" && !strings.Contains(string(existing), c.Old) {
				return c.Path, fmt.Errorf("expected content not found")
			}
			if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
				return c.Path, err
			}
			if err := os.WriteFile(dest, []byte(c.New), 0644); err != nil {
				return c.Path, err
			}
		case api.FileDelete:
			if _, err := os.Stat(c.Path); err != nil {
				return c.Path, err
			}
		}
	}
	return "", nil
}

// commitChanges applies the validated batch to the real tree. On any
// per-file failure it attempts a best-effort rollback of what was already
// committed and returns the offending path (§4.2 step 5).
func commitChanges(workspaceRoot string, changes []api.FileChange) (string, error) {
	var applied []api.FileChange
	rollback := func() {
		for _, c := range applied {
			_ = undoChange(c)
		}
	}

	for _, c := range changes {
		if err := applyChange(c); err != nil {
			rollback()
			return c.Path, err
		}
		applied = append(applied, c)
	}
	return "", nil
}

func applyChange(c api.FileChange) error {
	switch c.Kind {
	case api.FileAdd:
		if err := os.MkdirAll(filepath.Dir(c.Path), 0755); err != nil {
			return err
		}
		return os.WriteFile(c.Path, []byte(c.Content), 0644)
	case api.FileUpdate:
		destPath := c.Path
		if c.MoveTo != "" {
			destPath = c.MoveTo
			if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
				return err
			}
		}
		if err := os.WriteFile(destPath, []byte(c.New), 0644); err != nil {
			return err
		}
		if c.MoveTo != "" && c.MoveTo != c.Path {
			return os.Remove(c.Path)
		}
		return nil
	case api.FileDelete:
		return os.Remove(c.Path)
	}
	return fmt.Errorf("unknown change kind: %s", c.Kind)
}

// undoChange is a best-effort inverse of applyChange, used only for
// in-memory batch rollback; it cannot restore deleted file contents
// beyond what was captured in the FileChange itself.
func undoChange(c api.FileChange) error {
	switch c.Kind {
	case api.FileAdd:
		return os.Remove(c.Path)
	case api.FileUpdate:
		destPath := c.Path
		if c.MoveTo != "" {
			destPath = c.MoveTo
		}
		if err := os.WriteFile(c.Path, []byte(c.Old), 0644); err != nil {
			return err
		}
		if c.MoveTo != "" && c.MoveTo != c.Path {
			return os.Remove(destPath)
		}
		return nil
	case api.FileDelete:
		return os.WriteFile(c.Path, []byte(c.Old), 0644)
	}
	return nil
}

func deniesGitDir(absPath, workspaceRoot string) bool {
	rel, err := filepath.Rel(workspaceRoot, absPath)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return rel == ".git" || strings.HasPrefix(rel, ".git/")
}

// maybeRunActionlint runs actionlint against a temp workspace mirroring
// .github/workflows with the proposed changes staged in, matching
// workflow_validation.rs's maybe_run_actionlint. Returns nil (never fails
// the patch) when not configured, the binary is missing, no staged path
// touches .github/workflows/*.{yml,yaml}, or there is no output.
func (t *ApplyPatchTool) maybeRunActionlint(changes []api.FileChange) []string {
	exe := t.actionlint.Path
	if exe == "" {
		exe = "actionlint"
	}
	resolved, err := exec.LookPath(exe)
	if err != nil {
		return nil
	}

	touches := false
	for _, c := range changes {
		if isWorkflowPath(c.Path, t.workspaceRoot) {
			touches = true
			break
		}
	}
	if !touches {
		return nil
	}

	tempRoot, err := os.MkdirTemp("", "actionlint-*")
	if err != nil {
		return nil
	}
	defer os.RemoveAll(tempRoot)

	sourceGithub := filepath.Join(t.workspaceRoot, ".github")
	if info, err := os.Stat(sourceGithub); err == nil && info.IsDir() {
		_ = copyDirRecursive(sourceGithub, filepath.Join(tempRoot, ".github"))
	}

	for _, c := range changes {
		if !isInGithubDir(c.Path, t.workspaceRoot) {
			continue
		}
		rel, err := filepath.Rel(t.workspaceRoot, c.Path)
		if err != nil {
			continue
		}
		dest := filepath.Join(tempRoot, rel)
		switch c.Kind {
		case api.FileAdd:
			_ = os.MkdirAll(filepath.Dir(dest), 0755)
			_ = os.WriteFile(dest, []byte(c.Content), 0644)
		case api.FileUpdate:
			destPath := dest
			if c.MoveTo != "" {
				moveRel, _ := filepath.Rel(t.workspaceRoot, c.MoveTo)
				destPath = filepath.Join(tempRoot, moveRel)
			}
			_ = os.MkdirAll(filepath.Dir(destPath), 0755)
			_ = os.WriteFile(destPath, []byte(c.New), 0644)
		case api.FileDelete:
			_ = os.Remove(dest)
		}
	}

	cmd := exec.Command(resolved, "-color", "never")
	cmd.Dir = tempRoot
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	_ = cmd.Run()

	if out.Len() == 0 {
		return nil
	}
	return strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
}

func isWorkflowPath(absPath, workspaceRoot string) bool {
	rel, err := filepath.Rel(workspaceRoot, absPath)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasPrefix(rel, ".github/workflows/") {
		return false
	}
	ext := filepath.Ext(rel)
	return ext == ".yml" || ext == ".yaml"
}

func isInGithubDir(absPath, workspaceRoot string) bool {
	rel, err := filepath.Rel(workspaceRoot, absPath)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return rel == ".github" || strings.HasPrefix(rel, ".github/")
}

func copyDirRecursive(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		return os.WriteFile(target, data, 0644)
	})
}
