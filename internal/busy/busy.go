// Package busy implements the reference-counted, debounced "work in
// progress" indicator.
package busy

import (
	"sync"
	"time"

	"github.com/linxtalk/linxtalk-cli/internal/clock"
)

// DefaultDelay is how long work must be outstanding before the indicator shows.
const DefaultDelay = 300 * time.Millisecond

// Signal counts outstanding operations. It becomes visible only after the
// count has stayed positive for the debounce delay, and hides as soon as
// the count returns to zero.
type Signal struct {
	clock clock.Clock
	delay time.Duration

	mu         sync.Mutex
	count      int
	visible    bool
	timer      clock.Timer
	generation uint64
	subs       map[int]func(bool)
	nextSub    int
}

// Option configures a Signal.
type Option func(*Signal)

// WithClock sets the timer source.
func WithClock(c clock.Clock) Option {
	return func(s *Signal) {
		s.clock = c
	}
}

// WithDelay sets the debounce delay. Non-positive values keep the default.
func WithDelay(d time.Duration) Option {
	return func(s *Signal) {
		if d > 0 {
			s.delay = d
		}
	}
}

// New creates a hidden signal with a zero count.
func New(opts ...Option) *Signal {
	s := &Signal{
		clock: clock.Real(),
		delay: DefaultDelay,
		subs:  make(map[int]func(bool)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Show registers one more outstanding operation.
func (s *Signal) Show() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	if s.count != 1 {
		return
	}
	s.generation++
	gen := s.generation
	s.timer = s.clock.AfterFunc(s.delay, func() { s.fire(gen) })
}

// Hide releases one outstanding operation. Extra calls are ignored.
func (s *Signal) Hide() {
	s.mu.Lock()
	if s.count == 0 {
		s.mu.Unlock()
		return
	}
	s.count--
	if s.count > 0 {
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	// Invalidate a timer that already started running but hasn't taken the lock.
	s.generation++
	changed := s.visible
	s.visible = false
	fns := s.subscribersLocked()
	s.mu.Unlock()

	if changed {
		for _, fn := range fns {
			fn(false)
		}
	}
}

func (s *Signal) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.count == 0 || s.visible {
		s.mu.Unlock()
		return
	}
	s.visible = true
	s.timer = nil
	fns := s.subscribersLocked()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(true)
	}
}

// Count returns the number of outstanding operations.
func (s *Signal) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Visible reports whether the indicator should be shown.
func (s *Signal) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// Subscribe registers fn to be called whenever visibility changes.
func (s *Signal) Subscribe(fn func(visible bool)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Signal) subscribersLocked() []func(bool) {
	fns := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	return fns
}
