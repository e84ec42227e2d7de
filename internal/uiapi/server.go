package uiapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/awaistahir/spotswitch/internal/actions"
	"github.com/awaistahir/spotswitch/internal/config"
	"github.com/awaistahir/spotswitch/internal/engine"
	"github.com/awaistahir/spotswitch/internal/prices"
	"github.com/awaistahir/spotswitch/internal/service"
	"github.com/awaistahir/spotswitch/internal/store"
)

// Planner is the recompute pipeline behind the API
type Planner interface {
	Config() config.Config
	Recompute(ctx context.Context) (service.Result, error)
	Prices(ctx context.Context) (engine.PriceSeries, error)
}

type PlanReader interface {
	LatestPlan(ctx context.Context) (*store.Plan, error)
}

type PendingLister interface {
	Pending() []actions.DeferredAction
}

// recomputeTimeout bounds a cycle started over HTTP. The cycle is detached
// from the request so a caller that hangs up cannot abort it.
const recomputeTimeout = 2 * time.Minute

type Server struct {
	planner Planner
	plans   PlanReader
	pending PendingLister
	logger  *slog.Logger
}

// NewServer creates the HTTP API. plans and pending may be nil.
func NewServer(planner Planner, plans PlanReader, pending PendingLister, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		planner: planner,
		plans:   plans,
		pending: pending,
		logger:  logger.With("component", "uiapi"),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/prices", s.handleGetPrices)
		// the recurring job on the device issues a GET
		r.Get("/recompute", s.handleRecompute)
		r.Post("/recompute", s.handleRecompute)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Instance      string                   `json:"instance"`
	Market        string                   `json:"market"`
	Device        string                   `json:"device"`
	Timespec      string                   `json:"timespec"`
	DurationHours int                      `json:"duration_hours"`
	StartHour     int                      `json:"start_hour"`
	EndHour       int                      `json:"end_hour"`
	PriceLimit    *float64                 `json:"price_limit,omitempty"`
	LastPlan      *store.Plan              `json:"last_plan"`
	Pending       []actions.DeferredAction `json:"pending"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.planner.Config()
	resp := statusResponse{
		Instance:      cfg.InstanceID,
		Market:        cfg.Market,
		Device:        cfg.Device.Name,
		Timespec:      cfg.Schedule.Timespec,
		DurationHours: cfg.DurationHours,
		StartHour:     cfg.Window.StartHour,
		EndHour:       cfg.Window.EndHour,
		PriceLimit:    cfg.PriceLimit,
		Pending:       []actions.DeferredAction{},
	}

	if s.plans != nil {
		plan, err := s.plans.LatestPlan(r.Context())
		switch {
		case err == nil:
			resp.LastPlan = plan
		case !errors.Is(err, store.ErrNotFound):
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if s.pending != nil {
		resp.Pending = append(resp.Pending, s.pending.Pending()...)
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	series, err := s.planner.Prices(r.Context())
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, series)
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("instance") != s.planner.Config().InstanceID {
		s.logger.Warn("recompute rejected", "instance", r.URL.Query().Get("instance"), "remote", r.RemoteAddr)
		respondError(w, http.StatusForbidden, "unknown instance")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), recomputeTimeout)
	defer cancel()

	res, err := s.planner.Recompute(ctx)
	if err != nil {
		s.logger.Error("recompute failed", "error", err)
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func statusFor(err error) int {
	var fetchErr *prices.FetchError
	switch {
	case errors.As(err, &fetchErr), errors.Is(err, engine.ErrInsufficientData), errors.Is(err, engine.ErrInvalidSeries):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
