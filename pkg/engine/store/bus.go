package store

import (
	"context"
	"io"
	"sync"

	"AgentCore/pkg/engine/api"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Event Bus
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// defaultReplayCapacity bounds how many recent events a Bus retains for
// subscribers that attach mid-turn (§4.5: reconnecting observers replay
// recent history before streaming live).
const defaultReplayCapacity = 256

// defaultSubscriberCapacity bounds each subscriber's channel; beyond this
// the Bus starts dropping Droppable events rather than blocking the
// publisher (§4.5 backpressure rule).
const defaultSubscriberCapacity = 128

// Bus is the in-process Event Bus: a single publisher (the Session Core)
// fans UiEvents out to zero or more subscribers (terminal UI, a resumed
// /status observer, future non-interactive consumers), replaying a bounded
// recent-history ring buffer to subscribers that attach mid-turn.
//
// Grounded on the teacher's ChannelEventStream (pkg/engine/store/event_log.go),
// generalized with the replay buffer and the Droppable()-gated drop policy
// SPEC_FULL.md §4.5 requires ("never drop *Final, ToolEnd, TurnDiff, or
// Error; stale deltas and spinner ticks may be coalesced or dropped").
type Bus struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	replay      []api.UiEvent
	replayCap   int
	closed      bool
}

type subscriber struct {
	ch     chan api.UiEvent
	closed chan struct{}
	once   sync.Once
}

// NewBus constructs an Event Bus with the default replay/backpressure
// budgets.
func NewBus() *Bus {
	return &Bus{
		subscribers: map[*subscriber]struct{}{},
		replayCap:   defaultReplayCapacity,
	}
}

// Publish fans an event out to all current subscribers and records it in
// the replay buffer. It never blocks: a subscriber whose channel is full
// either has the event dropped (if Droppable) or receives it via a
// blocking send performed in a background goroutine (non-Droppable events
// must eventually be delivered).
func (b *Bus) Publish(ev api.UiEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.replay = append(b.replay, ev)
	if len(b.replay) > b.replayCap {
		b.replay = b.replay[len(b.replay)-b.replayCap:]
	}

	for sub := range b.subscribers {
		select {
		case sub.ch <- ev:
		default:
			if ev.Type.Droppable() {
				// Stale delta/spinner-tick under backpressure: drop it,
				// the next non-droppable event will still get through.
				continue
			}
			// Must-deliver event: send in the background so one slow
			// subscriber never stalls the publisher or its peers.
			go func(s *subscriber, e api.UiEvent) {
				select {
				case s.ch <- e:
				case <-s.closed:
				}
			}(sub, ev)
		}
	}
}

// Subscribe attaches a new observer, replaying buffered history first (in
// original order) and then streaming live events. The returned
// EventStream's Close unsubscribes.
func (b *Bus) Subscribe() api.EventStream {
	sub := &subscriber{
		ch:     make(chan api.UiEvent, defaultSubscriberCapacity),
		closed: make(chan struct{}),
	}

	b.mu.Lock()
	replayed := make([]api.UiEvent, len(b.replay))
	copy(replayed, b.replay)
	if !b.closed {
		b.subscribers[sub] = struct{}{}
	}
	b.mu.Unlock()

	return &busStream{bus: b, sub: sub, backlog: replayed}
}

// Close shuts the bus down: all subscribers' Recv calls return io.EOF
// once their backlog and channel drain.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subscribers {
		sub.once.Do(func() { close(sub.closed) })
	}
	b.subscribers = map[*subscriber]struct{}{}
}

func (b *Bus) unsubscribe(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, sub)
	sub.once.Do(func() { close(sub.closed) })
}

// busStream implements api.EventStream for one subscriber.
type busStream struct {
	bus     *Bus
	sub     *subscriber
	backlog []api.UiEvent
	idx     int
}

func (s *busStream) Recv(ctx context.Context) (api.UiEvent, error) {
	if s.idx < len(s.backlog) {
		ev := s.backlog[s.idx]
		s.idx++
		return ev, nil
	}

	select {
	case <-ctx.Done():
		return api.UiEvent{}, ctx.Err()
	case ev, ok := <-s.sub.ch:
		if !ok {
			return api.UiEvent{}, io.EOF
		}
		return ev, nil
	case <-s.sub.closed:
		// Drain whatever is already queued before reporting closure.
		select {
		case ev := <-s.sub.ch:
			return ev, nil
		default:
			return api.UiEvent{}, io.EOF
		}
	}
}

func (s *busStream) Close() error {
	s.bus.unsubscribe(s.sub)
	return nil
}
