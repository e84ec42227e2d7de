// Package service runs the startup reconciliation and the recompute cycle:
// resolve the query window, fetch prices, pick the cheapest block, report it
// and arm the power actions.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/awaistahir/spotswitch/internal/actions"
	"github.com/awaistahir/spotswitch/internal/config"
	"github.com/awaistahir/spotswitch/internal/engine"
	"github.com/awaistahir/spotswitch/internal/notify"
	"github.com/awaistahir/spotswitch/internal/schedule"
	"github.com/awaistahir/spotswitch/internal/store"
)

// PriceSource fetches the market price series between two instants
type PriceSource interface {
	MarketData(ctx context.Context, start, end time.Time) (engine.PriceSeries, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, desired schedule.RecurrenceRule) (schedule.Outcome, error)
}

// Armer queues the deferred power actions of a cycle
type Armer interface {
	Arm(w engine.CheapestWindow) (on, off actions.DeferredAction)
	Skip() int
}

type Notifier interface {
	Notify(ctx context.Context, message string, sendExternally bool, persistKey string)
}

type PlanStore interface {
	SavePlan(ctx context.Context, p *store.Plan) error
}

// Deps are the collaborators of a Service. Reconciler, Armer, Notifier and
// Plans may be nil for a dry-run service.
type Deps struct {
	Prices     PriceSource
	Reconciler Reconciler
	Armer      Armer
	Notifier   Notifier
	Plans      PlanStore
	Now        func() time.Time
}

// Result describes one computed cycle
type Result struct {
	QueryStart time.Time                `json:"query_start"`
	QueryEnd   time.Time                `json:"query_end"`
	Window     engine.CheapestWindow    `json:"window"`
	Average    float64                  `json:"average_price"`
	Scheduled  bool                     `json:"scheduled"`
	Actions    []actions.DeferredAction `json:"actions,omitempty"`
	Message    string                   `json:"message"`
}

// Service holds the immutable configuration and its collaborators
type Service struct {
	cfg    config.Config
	deps   Deps
	logger *slog.Logger

	// one cycle at a time
	mu sync.Mutex
}

func New(cfg config.Config, deps Deps, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "service"),
	}
}

// Config returns the configuration the service was built with
func (s *Service) Config() config.Config {
	return s.cfg
}

// DesiredRule is the recurring trigger this instance should own
func (s *Service) DesiredRule() schedule.RecurrenceRule {
	return schedule.RecurrenceRule{
		Timespec: s.cfg.Schedule.Timespec,
		Invocation: schedule.Invocation{
			URL:      s.cfg.Schedule.CallbackURL,
			Instance: s.cfg.InstanceID,
		},
	}
}

// PlanKey is the key-value store key holding the last schedule message
func PlanKey(instance string) string {
	return "spotswitch-plan-" + instance
}

// Startup reconciles the recurring trigger. Errors are fatal for the caller.
func (s *Service) Startup(ctx context.Context) (schedule.Outcome, error) {
	if s.deps.Reconciler == nil {
		return schedule.Unchanged, errors.New("no scheduler configured")
	}
	outcome, err := s.deps.Reconciler.Reconcile(ctx, s.DesiredRule())
	if err != nil {
		return outcome, fmt.Errorf("reconciling recurring job: %w", err)
	}
	s.logger.Info("startup reconciliation finished", "outcome", outcome)
	return outcome, nil
}

// Plan computes the cheapest window for the next query window without
// notifying or arming anything
func (s *Service) Plan(ctx context.Context) (Result, error) {
	res, _, err := s.compute(ctx)
	return res, err
}

// Prices fetches the series for the next query window
func (s *Service) Prices(ctx context.Context) (engine.PriceSeries, error) {
	start, end, err := engine.ResolveWindow(s.deps.Now(), s.cfg.Window.StartHour, s.cfg.Window.EndHour, s.cfg.Location())
	if err != nil {
		return nil, err
	}
	return s.deps.Prices.MarketData(ctx, start, end)
}

// Recompute runs one full cycle. A fetch failure or unusable series is
// notified and aborts the cycle before anything is armed.
func (s *Service) Recompute(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.deps.Now()
	res, series, err := s.compute(ctx)
	if err != nil {
		if !errors.Is(err, engine.ErrConfiguration) {
			s.notify(ctx, notify.AbortedMessage(err), s.cfg.Telegram.SendSchedule, "")
		}
		return res, err
	}
	s.logger.Debug("price series", "slots", len(series))

	key := PlanKey(s.cfg.InstanceID)
	if !res.Scheduled {
		res.Message = notify.AboveCeilingMessage(res.Window, *s.cfg.PriceLimit)
		s.notify(ctx, res.Message, s.cfg.Telegram.SendSchedule, key)
		if s.deps.Armer != nil {
			s.deps.Armer.Skip()
		}
	} else {
		res.Message = notify.ScheduleMessage(res.Window, s.cfg.Location())
		s.notify(ctx, res.Message, s.cfg.Telegram.SendSchedule, key)
		if s.deps.Armer != nil {
			on, off := s.deps.Armer.Arm(res.Window)
			res.Actions = []actions.DeferredAction{on, off}
		}
	}

	if s.deps.Plans != nil {
		plan := &store.Plan{
			ComputedAt:   now,
			QueryStart:   res.QueryStart,
			QueryEnd:     res.QueryEnd,
			Window:       res.Window,
			AveragePrice: res.Average,
			Scheduled:    res.Scheduled,
			Message:      res.Message,
		}
		if err := s.deps.Plans.SavePlan(ctx, plan); err != nil {
			s.logger.Warn("failed to save plan", "error", err)
		}
	}
	return res, nil
}

// compute resolves, fetches and optimizes. The query bounds of the result
// are set once resolution succeeded.
func (s *Service) compute(ctx context.Context) (Result, engine.PriceSeries, error) {
	var res Result
	loc := s.cfg.Location()

	start, end, err := engine.ResolveWindow(s.deps.Now(), s.cfg.Window.StartHour, s.cfg.Window.EndHour, loc)
	if err != nil {
		return res, nil, err
	}
	res.QueryStart, res.QueryEnd = start, end

	s.logger.Info("run data",
		"instance", s.cfg.InstanceID,
		"market", s.cfg.Market,
		"duration_hours", s.cfg.DurationHours,
		"query_start", start.In(loc),
		"query_end", end.In(loc),
		"price_limit", s.cfg.PriceLimit)

	series, err := s.deps.Prices.MarketData(ctx, start, end)
	if err != nil {
		return res, nil, err
	}

	w, err := engine.FindCheapestWindow(series, s.cfg.DurationHours)
	if err != nil {
		return res, series, err
	}
	res.Window = w
	res.Average = w.AveragePrice()
	res.Scheduled = engine.WithinCeiling(w, s.cfg.PriceLimit)

	s.logger.Info("cheapest window",
		"start", w.Start.In(loc),
		"end", w.End.In(loc),
		"average_price", notify.FormatPrice(res.Average),
		"scheduled", res.Scheduled)
	return res, series, nil
}

func (s *Service) notify(ctx context.Context, message string, external bool, key string) {
	if s.deps.Notifier == nil {
		s.logger.Info(message)
		return
	}
	s.deps.Notifier.Notify(ctx, message, external, key)
}
