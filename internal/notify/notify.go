// Package notify implements the single-slot toast used to surface
// operation results.
package notify

import (
	"sync"
	"time"

	"github.com/linxtalk/linxtalk-cli/internal/clock"
)

// DefaultDuration is how long a toast stays up before dismissing itself.
const DefaultDuration = 1500 * time.Millisecond

// Kind classifies a toast.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
)

// Toast is a transient message.
type Toast struct {
	Message string
	Kind    Kind
}

// Notifier holds at most one toast. Showing a new toast replaces the
// current one and restarts the dismiss timer.
type Notifier struct {
	clock    clock.Clock
	duration time.Duration

	mu         sync.Mutex
	current    *Toast
	timer      clock.Timer
	generation uint64
	subs       map[int]func(Toast, bool)
	nextSub    int
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithClock sets the timer source.
func WithClock(c clock.Clock) Option {
	return func(n *Notifier) {
		n.clock = c
	}
}

// WithDuration sets the auto-dismiss delay. Non-positive values keep the default.
func WithDuration(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.duration = d
		}
	}
}

// New creates an empty notifier.
func New(opts ...Option) *Notifier {
	n := &Notifier{
		clock:    clock.Real(),
		duration: DefaultDuration,
		subs:     make(map[int]func(Toast, bool)),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Show displays message, replacing any current toast.
func (n *Notifier) Show(message string, kind Kind) {
	n.mu.Lock()
	if n.timer != nil {
		n.timer.Stop()
	}
	t := Toast{Message: message, Kind: kind}
	n.current = &t
	n.generation++
	gen := n.generation
	n.timer = n.clock.AfterFunc(n.duration, func() { n.expire(gen) })
	fns := n.subscribersLocked()
	n.mu.Unlock()

	for _, fn := range fns {
		fn(t, true)
	}
}

// Success shows a success toast.
func (n *Notifier) Success(message string) { n.Show(message, KindSuccess) }

// Error shows an error toast.
func (n *Notifier) Error(message string) { n.Show(message, KindError) }

// Warning shows a warning toast.
func (n *Notifier) Warning(message string) { n.Show(message, KindWarning) }

// Info shows an informational toast.
func (n *Notifier) Info(message string) { n.Show(message, KindInfo) }

// Hide dismisses the current toast, if any.
func (n *Notifier) Hide() {
	n.mu.Lock()
	n.hideLocked()
}

func (n *Notifier) expire(gen uint64) {
	n.mu.Lock()
	if gen != n.generation {
		n.mu.Unlock()
		return
	}
	n.hideLocked()
}

// hideLocked clears the toast and unlocks n.mu before notifying.
func (n *Notifier) hideLocked() {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.generation++
	if n.current == nil {
		n.mu.Unlock()
		return
	}
	last := *n.current
	n.current = nil
	fns := n.subscribersLocked()
	n.mu.Unlock()

	for _, fn := range fns {
		fn(last, false)
	}
}

// Current returns the toast on screen.
func (n *Notifier) Current() (Toast, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return Toast{}, false
	}
	return *n.current, true
}

// Subscribe registers fn for show (visible=true) and dismiss (visible=false) events.
func (n *Notifier) Subscribe(fn func(t Toast, visible bool)) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextSub
	n.nextSub++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

func (n *Notifier) subscribersLocked() []func(Toast, bool) {
	fns := make([]func(Toast, bool), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	return fns
}
