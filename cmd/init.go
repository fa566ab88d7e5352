package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// writeAgentInstructionsTemplate emits a template agent-instructions file
// to the workspace (§6's /init command). It never overwrites an existing
// file. Grounded on the teacher's InitPersonaFiles (cmd/init.go), reduced
// from the teacher's dual project/workspace persona.md pair to the single
// instructions file SPEC_FULL.md's Instructions config field consumes.
func writeAgentInstructionsTemplate(workspaceRoot string) (string, error) {
	path := filepath.Join(workspaceRoot, "AGENTS.md")

	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	if err := os.MkdirAll(workspaceRoot, 0o755); err != nil {
		return "", fmt.Errorf("create workspace dir: %w", err)
	}

	content := strings.TrimSpace(defaultAgentInstructions()) + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func defaultAgentInstructions() string {
	return "# Agent Instructions\n\n" +
		"## Role\n" +
		"You are assisting with this repository from the terminal.\n\n" +
		"## Workflow\n" +
		"- Read before you write: inspect the relevant files before editing them.\n" +
		"- Prefer small, reviewable edits over broad rewrites.\n" +
		"- Run a command to verify a change where one is available.\n\n" +
		"## Output Style\n" +
		"- Be concise and actionable.\n" +
		"- Reference file paths directly rather than describing their contents.\n"
}
