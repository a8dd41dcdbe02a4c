package busy

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linxtalk/linxtalk-cli/internal/clock"
)

func newTestSignal() (*Signal, *clock.Fake) {
	fake := clock.NewFake(time.Unix(0, 0))
	return New(WithClock(fake), WithDelay(300*time.Millisecond)), fake
}

func TestShowBecomesVisibleAfterDelay(t *testing.T) {
	s, fake := newTestSignal()

	s.Show()
	assert.False(t, s.Visible())

	fake.Advance(299 * time.Millisecond)
	assert.False(t, s.Visible())

	fake.Advance(time.Millisecond)
	assert.True(t, s.Visible())
}

func TestHideBeforeDelayNeverShows(t *testing.T) {
	s, fake := newTestSignal()

	s.Show()
	fake.Advance(100 * time.Millisecond)
	s.Hide()

	fake.Advance(time.Second)
	assert.False(t, s.Visible())
	assert.Equal(t, 0, fake.Pending())
}

func TestOverlappingOperations(t *testing.T) {
	s, fake := newTestSignal()

	// Two overlapping operations: one timer, visible after 300ms,
	// hidden only when the last one finishes.
	s.Show()
	fake.Advance(100 * time.Millisecond)
	s.Show()
	assert.Equal(t, 1, fake.Pending())

	fake.Advance(200 * time.Millisecond)
	assert.True(t, s.Visible())

	s.Hide()
	assert.True(t, s.Visible())
	assert.Equal(t, 1, s.Count())

	s.Hide()
	assert.False(t, s.Visible())
	assert.Equal(t, 0, s.Count())
}

func TestHideFloorsAtZero(t *testing.T) {
	s, _ := newTestSignal()

	s.Hide()
	s.Hide()
	assert.Equal(t, 0, s.Count())

	s.Show()
	assert.Equal(t, 1, s.Count())
}

func TestNewBusyPeriodRestartsDelay(t *testing.T) {
	s, fake := newTestSignal()

	s.Show()
	fake.Advance(250 * time.Millisecond)
	s.Hide()

	s.Show()
	fake.Advance(100 * time.Millisecond)
	assert.False(t, s.Visible(), "delay restarts with each busy period")

	fake.Advance(200 * time.Millisecond)
	assert.True(t, s.Visible())
}

func TestStaleTimerIgnored(t *testing.T) {
	s, _ := newTestSignal()

	s.Show()
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()
	s.Hide()
	s.Show()

	// A callback from the first busy period arrives late.
	s.fire(gen)
	assert.False(t, s.Visible())
}

func TestSubscribe(t *testing.T) {
	s, fake := newTestSignal()

	var mu sync.Mutex
	var events []bool
	s.Subscribe(func(v bool) {
		mu.Lock()
		events = append(events, v)
		mu.Unlock()
	})

	s.Show()
	fake.Advance(300 * time.Millisecond)
	s.Hide()

	// Short operation: no events at all.
	s.Show()
	s.Hide()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, events)
}

func TestRealClock(t *testing.T) {
	s := New(WithDelay(10 * time.Millisecond))
	s.Show()
	defer s.Hide()

	require.Eventually(t, s.Visible, time.Second, 5*time.Millisecond)
}
