package slidesync

import (
	"sync"
	"time"
)

// backoff yields reconnect delays. With max equal to initial it is a fixed
// delay; otherwise it doubles up to max.
type backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(initial, max time.Duration) *backoff {
	if max < initial {
		max = initial
	}
	return &backoff{
		initial: initial,
		max:     max,
		current: initial,
	}
}

func (b *backoff) next() time.Duration {
	d := b.current
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	if d > b.max {
		d = b.max
	}
	return d
}

func (b *backoff) reset() {
	b.current = b.initial
}

// timer is the subset of *time.Timer the scheduler needs.
type timer interface {
	Stop() bool
}

// clock abstracts deferred execution so tests can fire timers by hand.
type clock interface {
	afterFunc(d time.Duration, fn func()) timer
}

type realClock struct{}

func (realClock) afterFunc(d time.Duration, fn func()) timer {
	return time.AfterFunc(d, fn)
}

// reconnectScheduler is a single deferred-timer slot. Scheduling replaces
// (and stops) whatever was pending, so at most one reconnect is ever queued.
type reconnectScheduler struct {
	clock clock

	mu      sync.Mutex
	pending timer
	gen     uint64
}

func newReconnectScheduler(c clock) *reconnectScheduler {
	if c == nil {
		c = realClock{}
	}
	return &reconnectScheduler{clock: c}
}

// schedule arms the slot to run fn after d, canceling any pending timer.
func (s *reconnectScheduler) schedule(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.gen++
	gen := s.gen
	s.pending = s.clock.afterFunc(d, func() {
		s.mu.Lock()
		if s.gen != gen || s.pending == nil {
			// Replaced or canceled after the runtime already started us.
			s.mu.Unlock()
			return
		}
		s.pending = nil
		s.mu.Unlock()
		fn()
	})
}

// cancel stops and clears the pending timer, if any.
func (s *reconnectScheduler) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *reconnectScheduler) stopLocked() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.gen++
}

// isPending reports whether a reconnect is currently queued.
func (s *reconnectScheduler) isPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}
