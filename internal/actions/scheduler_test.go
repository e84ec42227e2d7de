package actions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awaistahir/spotswitch/internal/engine"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []bool
	errOn error
}

func (d *recordingDispatcher) SetPower(_ context.Context, on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, on)
	if on {
		return d.errOn
	}
	return nil
}

func (d *recordingDispatcher) Calls() []bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]bool(nil), d.calls...)
}

func startLoop(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestArmReturnsPair(t *testing.T) {
	now := time.Date(2024, 12, 2, 15, 0, 0, 0, time.UTC)
	s := New(&recordingDispatcher{}, nil, WithClock(fixedClock(now)))

	w := engine.CheapestWindow{Start: now.Add(10 * time.Hour), End: now.Add(14 * time.Hour), SlotCount: 4}
	on, off := s.Arm(w)

	assert.Equal(t, On, on.Kind)
	assert.Equal(t, Off, off.Kind)
	assert.Equal(t, w.Start, on.FireAt)
	assert.Equal(t, w.End, off.FireAt)
	assert.Equal(t, on.Cycle, off.Cycle)
	assert.Equal(t, []DeferredAction{on, off}, s.Pending())
}

func TestPastActionsFireImmediately(t *testing.T) {
	now := time.Date(2024, 12, 2, 15, 0, 0, 0, time.UTC)
	d := &recordingDispatcher{}
	s := New(d, nil, WithClock(fixedClock(now)))
	startLoop(t, s)

	// slow fetch: the window already started, and the end is exactly now
	s.Arm(engine.CheapestWindow{Start: now.Add(-time.Minute), End: now, SlotCount: 1})

	require.Eventually(t, func() bool { return len(d.Calls()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []bool{true, false}, d.Calls())
	assert.Empty(t, s.Pending())
}

func TestFutureActionsFireInOrder(t *testing.T) {
	d := &recordingDispatcher{}
	s := New(d, nil)
	startLoop(t, s)

	now := time.Now()
	s.Arm(engine.CheapestWindow{Start: now.Add(30 * time.Millisecond), End: now.Add(60 * time.Millisecond), SlotCount: 1})

	assert.Len(t, s.Pending(), 2)
	require.Eventually(t, func() bool { return len(d.Calls()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []bool{true, false}, d.Calls())
}

func TestFailedOnStillFiresOff(t *testing.T) {
	now := time.Now()
	d := &recordingDispatcher{errOn: errors.New("device error 1")}
	s := New(d, nil, WithClock(fixedClock(now)))
	startLoop(t, s)

	s.Arm(engine.CheapestWindow{Start: now.Add(-2 * time.Hour), End: now.Add(-time.Hour), SlotCount: 1})

	require.Eventually(t, func() bool { return len(d.Calls()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []bool{true, false}, d.Calls())
}

// movableClock is a clock the test can advance while Run reads it
type movableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *movableClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func kindsOf(pending []DeferredAction) []Kind {
	kinds := make([]Kind, len(pending))
	for i, a := range pending {
		kinds[i] = a.Kind
	}
	return kinds
}

func TestStaleCycles(t *testing.T) {
	now := time.Date(2024, 12, 2, 15, 0, 0, 0, time.UTC)
	first := engine.CheapestWindow{Start: now.Add(10 * time.Hour), End: now.Add(14 * time.Hour), SlotCount: 4}
	second := engine.CheapestWindow{Start: now.Add(12 * time.Hour), End: now.Add(13 * time.Hour), SlotCount: 1}

	tests := []struct {
		name        string
		cancelStale bool
		want        []Kind
	}{
		{name: "unstarted cycle cancelled", cancelStale: true, want: []Kind{On, Off}},
		{name: "kept", cancelStale: false, want: []Kind{On, On, Off, Off}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&recordingDispatcher{}, nil, WithClock(fixedClock(now)), WithCancelStale(tt.cancelStale))
			s.Arm(first)
			on, _ := s.Arm(second)
			assert.Equal(t, uint64(2), on.Cycle)

			pending := s.Pending()
			assert.Equal(t, tt.want, kindsOf(pending))
			if tt.cancelStale {
				for _, a := range pending {
					assert.Equal(t, uint64(2), a.Cycle)
				}
			}
		})
	}
}

func TestRearmKeepsOffOfRunningWindow(t *testing.T) {
	today := time.Date(2024, 12, 2, 0, 0, 0, 0, time.UTC)
	clock := &movableClock{now: today.Add(14 * time.Hour)}
	d := &recordingDispatcher{}
	s := New(d, nil, WithClock(clock.Now))
	startLoop(t, s)

	s.Arm(engine.CheapestWindow{Start: today.Add(14 * time.Hour), End: today.Add(18 * time.Hour), SlotCount: 4})
	require.Eventually(t, func() bool { return len(d.Calls()) == 1 }, time.Second, 5*time.Millisecond)

	// the daily recompute arms tomorrow while today's window is running
	clock.Set(today.Add(15 * time.Hour))
	s.Arm(engine.CheapestWindow{Start: today.Add(26 * time.Hour), End: today.Add(30 * time.Hour), SlotCount: 4})

	pending := s.Pending()
	assert.Equal(t, []Kind{Off, On, Off}, kindsOf(pending))
	assert.Equal(t, uint64(1), pending[0].Cycle)

	clock.Set(today.Add(18*time.Hour + time.Second))
	s.signal()

	require.Eventually(t, func() bool { return len(d.Calls()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []bool{true, false}, d.Calls())
	assert.Equal(t, []Kind{On, Off}, kindsOf(s.Pending()))
}

func TestSkip(t *testing.T) {
	now := time.Date(2024, 12, 2, 15, 0, 0, 0, time.UTC)
	future := engine.CheapestWindow{Start: now.Add(10 * time.Hour), End: now.Add(14 * time.Hour), SlotCount: 4}

	t.Run("drops unstarted cycle", func(t *testing.T) {
		s := New(&recordingDispatcher{}, nil, WithClock(fixedClock(now)))
		s.Arm(future)

		assert.Equal(t, 2, s.Skip())
		assert.Empty(t, s.Pending())
		assert.Equal(t, 0, s.Skip())
	})

	t.Run("keeps off of started cycle", func(t *testing.T) {
		s := New(&recordingDispatcher{}, nil, WithClock(fixedClock(now)))
		// cycle 1 already switched on; only its OFF is left
		s.mu.Lock()
		s.cycle = 1
		s.push(DeferredAction{FireAt: future.End, Kind: Off, Cycle: 1})
		s.mu.Unlock()

		assert.Equal(t, 0, s.Skip())
		assert.Equal(t, []Kind{Off}, kindsOf(s.Pending()))
	})

	t.Run("disabled", func(t *testing.T) {
		s := New(&recordingDispatcher{}, nil, WithClock(fixedClock(now)), WithCancelStale(false))
		s.Arm(future)

		assert.Equal(t, 0, s.Skip())
		assert.Len(t, s.Pending(), 2)
	})
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "on", On.String())
	assert.Equal(t, "off", Off.String())
	assert.Equal(t, "kind(7)", Kind(7).String())
}
