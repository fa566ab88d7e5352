// Package clock provides the Clock & Id Service: monotonic time, UUID
// generation, and the process-wide MintSeq counter used to break ties in
// api.OrderKey.
package clock

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Clock is the Session Core's single source of time and identifiers. A real
// Clock wraps time.Now; tests substitute a fixed/stepped implementation.
type Clock interface {
	Now() time.Time
	NewID() string
	// MintSeq returns the next value of the process-wide monotonic
	// sequence counter, used as the final OrderKey tie-breaker.
	MintSeq() uint64
	// NextRequestOrdinal returns the next request_ordinal for a new model
	// stream within this session.
	NextRequestOrdinal() uint64
	// NextSyntheticSeq returns the next per-request sequence_number for
	// events without a server-assigned one (§4.4).
	NextSyntheticSeq(requestOrdinal uint64) uint64
}

// System is the production Clock, backed by wall time and google/uuid.
type System struct {
	mintSeq  atomic.Uint64
	reqOrd   atomic.Uint64
	synthMus map[uint64]*atomic.Uint64
}

// New constructs a System clock.
func New() *System {
	return &System{synthMus: make(map[uint64]*atomic.Uint64)}
}

func (s *System) Now() time.Time { return time.Now() }

func (s *System) NewID() string { return uuid.NewString() }

func (s *System) MintSeq() uint64 { return s.mintSeq.Add(1) }

func (s *System) NextRequestOrdinal() uint64 { return s.reqOrd.Add(1) }

// NextSyntheticSeq hands out a per-request counter. Callers only need this
// for events lacking a server-assigned sequence_number (background events,
// tool lifecycle minted before any model output); it is intentionally
// un-synchronized across requestOrdinals since each request's counter is
// independent and the map is only ever grown, never read concurrently with
// a write for the same key in this engine's single-core-loop design.
func (s *System) NextSyntheticSeq(requestOrdinal uint64) uint64 {
	counter, ok := s.synthMus[requestOrdinal]
	if !ok {
		counter = &atomic.Uint64{}
		s.synthMus[requestOrdinal] = counter
	}
	return counter.Add(1)
}
