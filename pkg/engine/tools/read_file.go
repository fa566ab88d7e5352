package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"AgentCore/pkg/engine/api"
)

const (
	defaultReadOffset  = 1
	defaultReadLimit   = 2000
	maxReadLineLength  = 2000
	readToolMaxBytes   = 10 * 1024 * 1024
)

// ReadFileTool is the read-only `read_file` built-in: a 1-indexed line
// range of a file, with long lines truncated (§4.2/§6).
type ReadFileTool struct {
	workspaceRoot string
}

// NewReadFileTool constructs the read_file tool rooted at workspaceRoot.
func NewReadFileTool(workspaceRoot string) *ReadFileTool {
	return &ReadFileTool{workspaceRoot: workspaceRoot}
}

func (t *ReadFileTool) Descriptor() api.ToolDescriptor {
	return descriptor(
		"read_file",
		"Read a range of lines from a file. offset and limit are 1-indexed; long lines are truncated.",
		[]ParameterDef{
			{Name: "file_path", Type: "string", Description: "Absolute path to the file to read", Required: true},
			{Name: "offset", Type: "integer", Description: "1-indexed starting line (default 1)"},
			{Name: "limit", Type: "integer", Description: "Maximum number of lines to return (default 2000)"},
		},
		api.ToolKindFunction,
		api.RiskNone,
	)
}

func (t *ReadFileTool) Handle(ctx context.Context, inv api.Invocation) api.ToolResult {
	filePath := stringArg(inv.Args, "file_path", "")
	if filePath == "" {
		return api.ToolResult{Content: "file_path is required", Success: false}
	}

	absPath, err := resolvePathInWorkspace(t.workspaceRoot, filePath)
	if err != nil {
		return fail(err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return failf("file does not exist: %s", filePath)
		}
		return fail(err)
	}
	if info.IsDir() {
		return failf("path is a directory, not a file: %s", filePath)
	}
	if info.Size() > readToolMaxBytes {
		return failf("file is too large to read (%d bytes)", info.Size())
	}

	offset := intArg(inv.Args, "offset", defaultReadOffset)
	limit := intArg(inv.Args, "limit", defaultReadLimit)
	if offset < 1 {
		return failf("offset must be >= 1, got %d", offset)
	}
	if limit <= 0 {
		return failf("limit must be > 0, got %d", limit)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return fail(err)
	}

	lines := strings.Split(string(content), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if offset > len(lines) {
		return failf("offset (%d) exceeds file length (%d lines)", offset, len(lines))
	}

	end := offset - 1 + limit
	if end > len(lines) {
		end = len(lines)
	}
	selected := lines[offset-1 : end]

	var b strings.Builder
	for i, line := range selected {
		if len(line) > maxReadLineLength {
			line = line[:maxReadLineLength] + fmt.Sprintf(" [... line truncated, %d chars total]", len(line))
		}
		fmt.Fprintf(&b, "%6d\t%s\n", offset+i, line)
	}

	return ok(b.String())
}
