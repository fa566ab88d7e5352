// Package approval implements the Approval Broker: it serializes user
// approval prompts so that concurrently dispatched tool calls never race
// each other for the terminal, and resolves outstanding prompts as Deny on
// cancellation (§5).
package approval

import (
	"context"
	"sync"

	"AgentCore/pkg/engine/api"
)

// Handler renders an ApprovalRequest to the user and returns their
// Decision. cmd/ui.CLIApprover is the reference terminal implementation.
type Handler interface {
	RequestApproval(ctx context.Context, req api.ApprovalRequest) (api.Decision, error)
}

// Broker serializes calls to Handler with a mutex so that two tool calls
// dispatched concurrently within one turn (§4.1 concurrent tool dispatch)
// never present overlapping prompts.
type Broker struct {
	handler Handler

	mu      sync.Mutex
	pending map[string]context.CancelFunc
}

// New constructs a Broker around a rendering Handler.
func New(handler Handler) *Broker {
	return &Broker{handler: handler, pending: map[string]context.CancelFunc{}}
}

// Request serializes one approval prompt. If ctx is canceled while the
// prompt is outstanding (turn interrupted), Request returns DecisionDeny
// without waiting further for the handler (§5: "Approval prompts
// outstanding at cancellation resolve as Deny").
func (b *Broker) Request(ctx context.Context, req api.ApprovalRequest) api.Decision {
	b.mu.Lock()
	defer b.mu.Unlock()

	type result struct {
		decision api.Decision
		err      error
	}
	done := make(chan result, 1)
	go func() {
		d, err := b.handler.RequestApproval(ctx, req)
		done <- result{d, err}
	}()

	select {
	case <-ctx.Done():
		return api.Decision{Kind: api.DecisionDeny, RequestID: req.RequestID, ToolCallID: req.ToolCallID}
	case r := <-done:
		if r.err != nil {
			return api.Decision{Kind: api.DecisionDeny, RequestID: req.RequestID, ToolCallID: req.ToolCallID}
		}
		return r.decision
	}
}
