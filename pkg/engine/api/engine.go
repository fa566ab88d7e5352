// Package api defines the stable public interface for the engine: the
// Session Core's operations and the inputs/config it consumes.
package api

import (
	"context"
	"time"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Session Core Interface
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Session is the Session Core's public contract (§4.1). One Session drives
// one conversation; all observation happens through Events().
type Session interface {
	// Submit begins a new turn. Returns ErrBusy when a turn is already
	// active and the caller has not called Interrupt first.
	Submit(ctx context.Context, input UserInput) (*TurnHandle, error)

	// Interrupt cancels the current turn. Idempotent.
	Interrupt()

	// Compact replaces the history prefix with a model-generated summary,
	// running as a single auxiliary turn.
	Compact(ctx context.Context) error

	// Events is the outbound ordered stream.
	Events() EventStream

	// Close releases the session's resources (transcript file, etc).
	Close() error
}

// UserInput is what a caller submits to begin a turn.
type UserInput struct {
	Text   string
	Images []string // paths or refs attached via view_image
}

// TurnHandle is a lightweight reference to a started turn.
type TurnHandle struct {
	TurnID    string
	StartedAt time.Time
}

// SessionInfo is the public view of a persisted session, used for listing
// and /resume.
type SessionInfo struct {
	SessionID string
	CreatedAt time.Time
	UpdatedAt time.Time
	Model     string
	Preset    ExecutionPreset
}

// Args is the canonical argument container for tools.
type Args = map[string]any
