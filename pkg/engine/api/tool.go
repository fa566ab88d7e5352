package api

import (
	"context"
	"sync"
)

// Invocation carries everything a Tool needs to execute one call (§4.2):
// the call id, parsed arguments, working directory, the owning turn, and
// the shared diff tracker apply_patch contributes to.
type Invocation struct {
	CallID  string
	Args    Args
	Cwd     string
	TurnID  string
	Tracker *TurnDiffTracker
	// BypassSandbox is set by the Session Core for a single retry dispatch
	// after a sandbox-denied attempt was approved out-of-sandbox (§4.2
	// sandbox-retry flow). Tools that consult a SandboxPolicy must run
	// unconfined when this is true.
	BypassSandbox bool
}

// ToolResult is what a Tool returns for one call; the Session Core injects
// ResultContent back into history as a ToolResult ResponseItem.
type ToolResult struct {
	Content  string
	Success  bool
	TimedOut bool
	// Structured is an optional machine-readable payload (e.g.
	// exec_command's {session_id, chunk_id, ...}); when set it is
	// marshaled in place of Content for tool-result injection.
	Structured any
}

// Tool is the per-tool contract the Tool Execution Layer dispatches
// through (§4.2).
type Tool interface {
	Descriptor() ToolDescriptor
	Handle(ctx context.Context, inv Invocation) ToolResult
}

// Previewer is implemented by tools that can render an ApprovalPreview
// before execution (shell, apply_patch).
type Previewer interface {
	Preview(ctx context.Context, inv Invocation) *ApprovalPreview
}

// TurnDiffTracker accumulates FileChanges across one turn's apply_patch
// calls so a cumulative unified diff can be emitted as a TurnDiff event.
// Guarded by a mutex since concurrently dispatched apply_patch calls may
// record into it at once (§5).
type TurnDiffTracker struct {
	mu      sync.Mutex
	changes []FileChange
}

// Record appends one file's change to the tracker.
func (t *TurnDiffTracker) Record(change FileChange) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.changes = append(t.changes, change)
}

// Changes returns a copy of the changes recorded so far, in application
// order.
func (t *TurnDiffTracker) Changes() []FileChange {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]FileChange, len(t.changes))
	copy(out, t.changes)
	return out
}
