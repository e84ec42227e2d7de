// Package actions turns a computed window into two deferred power
// transitions and fires them from a single loop.
package actions

import (
	"container/heap"
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/awaistahir/spotswitch/internal/engine"
)

// Dispatcher performs a power transition
type Dispatcher interface {
	SetPower(ctx context.Context, on bool) error
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithCancelStale controls whether a new cycle drops earlier cycles that
// have not switched on yet. Enabled by default.
func WithCancelStale(cancel bool) Option {
	return func(s *Scheduler) {
		s.cancelStale = cancel
	}
}

// Scheduler owns the queue of pending actions. Arm and Skip may be called
// from any goroutine; actions are fired only by Run.
type Scheduler struct {
	dispatcher  Dispatcher
	logger      *slog.Logger
	now         func() time.Time
	cancelStale bool

	mu    sync.Mutex
	queue actionQueue
	cycle uint64
	seq   uint64
	wake  chan struct{}
}

// New creates a scheduler dispatching to d
func New(d Dispatcher, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		dispatcher:  d,
		logger:      logger.With("component", "actions"),
		now:         time.Now,
		cancelStale: true,
		wake:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Arm queues an ON action at the window start and an OFF action at the
// window end. Fire times already in the past fire on the next loop turn.
func (s *Scheduler) Arm(w engine.CheapestWindow) (on, off DeferredAction) {
	s.mu.Lock()
	if s.cancelStale {
		s.dropUnstarted()
	}
	s.cycle++
	on = DeferredAction{FireAt: w.Start, Kind: On, Cycle: s.cycle}
	off = DeferredAction{FireAt: w.End, Kind: Off, Cycle: s.cycle}
	s.push(on)
	s.push(off)
	now := s.now()
	s.mu.Unlock()

	s.logger.Info("actions armed",
		"cycle", on.Cycle,
		"on_at", on.FireAt, "on_in", on.FireAt.Sub(now).Round(time.Second),
		"off_at", off.FireAt, "off_in", off.FireAt.Sub(now).Round(time.Second))
	s.signal()
	return on, off
}

// Skip records a cycle that arms nothing, e.g. because of the price
// ceiling. Earlier cycles are cancelled as they would be by Arm. It returns
// the number of dropped actions.
func (s *Scheduler) Skip() int {
	s.mu.Lock()
	s.cycle++
	n := 0
	if s.cancelStale {
		n = s.dropUnstarted()
	}
	s.mu.Unlock()

	if n > 0 {
		s.signal()
	}
	return n
}

// dropUnstarted removes every cycle whose ON is still queued. The OFF of a
// cycle that already switched on is kept so the relay is never left on.
// Callers hold s.mu.
func (s *Scheduler) dropUnstarted() int {
	unstarted := make(map[uint64]bool)
	for _, item := range s.queue {
		if item.action.Kind == On {
			unstarted[item.action.Cycle] = true
		}
	}
	if len(unstarted) == 0 {
		return 0
	}

	kept := s.queue[:0]
	dropped := 0
	for _, item := range s.queue {
		if unstarted[item.action.Cycle] {
			dropped++
			continue
		}
		kept = append(kept, item)
	}
	s.queue = kept
	heap.Init(&s.queue)

	s.logger.Warn("dropping actions of cycles that have not started", "count", dropped)
	return dropped
}

// Pending returns the queued actions in firing order
func (s *Scheduler) Pending() []DeferredAction {
	s.mu.Lock()
	items := make(actionQueue, len(s.queue))
	copy(items, s.queue)
	s.mu.Unlock()

	sort.Sort(items)
	out := make([]DeferredAction, len(items))
	for i, item := range items {
		out[i] = item.action
	}
	return out
}

// Run fires due actions until ctx is done. Dispatch failures are logged and
// do not affect the other queued actions.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		action, wait, ok := s.next()
		if ok {
			s.fire(ctx, action)
			continue
		}

		var timeout <-chan time.Time
		if wait > 0 {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(wait)
			timeout = timer.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		case <-timeout:
		}
	}
}

// next pops a due action, or reports how long until the head is due. A zero
// wait with ok false means the queue is empty.
func (s *Scheduler) next() (DeferredAction, time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return DeferredAction{}, 0, false
	}
	head := s.queue[0].action
	if wait := head.FireAt.Sub(s.now()); wait > 0 {
		return DeferredAction{}, wait, false
	}
	heap.Pop(&s.queue)
	return head, 0, true
}

func (s *Scheduler) fire(ctx context.Context, a DeferredAction) {
	s.logger.Info("firing action", "kind", a.Kind, "cycle", a.Cycle, "fire_at", a.FireAt)

	var err error
	switch a.Kind {
	case On:
		err = s.dispatcher.SetPower(ctx, true)
	case Off:
		err = s.dispatcher.SetPower(ctx, false)
	default:
		s.logger.Error("unknown action kind", "kind", a.Kind)
		return
	}
	if err != nil {
		s.logger.Error("action failed", "kind", a.Kind, "cycle", a.Cycle, "error", err)
	}
}

func (s *Scheduler) push(a DeferredAction) {
	s.seq++
	heap.Push(&s.queue, queued{action: a, seq: s.seq})
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
