package storage

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// Persister writes snapshots of a value in the background. Enqueue never
// blocks on I/O; a single writer goroutine drains the queue and only ever
// saves the newest snapshot, so an older value can't land after a newer one.
type Persister[T any] struct {
	repo   Repository[T]
	logger *slog.Logger
	name   string

	mu      sync.Mutex
	pending *T
	busy    bool
	idle    chan struct{}
	lastErr error
}

// PersisterOption configures a Persister.
type PersisterOption[T any] func(*Persister[T])

// WithLogger sets the logger used to report failed writes.
func WithLogger[T any](l *slog.Logger) PersisterOption[T] {
	return func(p *Persister[T]) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPersister creates a background writer for repo. name identifies the
// repository in log records.
func NewPersister[T any](repo Repository[T], name string, opts ...PersisterOption[T]) *Persister[T] {
	idle := make(chan struct{})
	close(idle)
	p := &Persister[T]{
		repo:   repo,
		name:   name,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		idle:   idle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enqueue schedules value to be written.
func (p *Persister[T]) Enqueue(value T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := value
	p.pending = &v
	if p.busy {
		return
	}
	p.busy = true
	p.idle = make(chan struct{})
	go p.drain(p.idle)
}

func (p *Persister[T]) drain(idle chan struct{}) {
	for {
		p.mu.Lock()
		next := p.pending
		p.pending = nil
		if next == nil {
			p.busy = false
			p.mu.Unlock()
			close(idle)
			return
		}
		p.mu.Unlock()

		err := p.repo.Save(context.Background(), *next)
		if err != nil {
			p.logger.Warn("persist failed", "store", p.name, "error", err)
		}
		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()
	}
}

// Flush waits until every enqueued snapshot has been written or ctx is done.
// It returns the error from the most recent write, if any.
func (p *Persister[T]) Flush(ctx context.Context) error {
	p.mu.Lock()
	idle := p.idle
	p.mu.Unlock()

	select {
	case <-idle:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}
