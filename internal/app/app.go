// Package app wires the configured components together for the CLI and the
// daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/awaistahir/spotswitch/internal/actions"
	"github.com/awaistahir/spotswitch/internal/config"
	"github.com/awaistahir/spotswitch/internal/notify"
	"github.com/awaistahir/spotswitch/internal/power"
	"github.com/awaistahir/spotswitch/internal/prices"
	"github.com/awaistahir/spotswitch/internal/schedule"
	"github.com/awaistahir/spotswitch/internal/service"
	"github.com/awaistahir/spotswitch/internal/shelly"
	"github.com/awaistahir/spotswitch/internal/store"
	"github.com/awaistahir/spotswitch/internal/transport"
)

const userAgent = "spotswitch/1.0"

// ErrNoDevice is returned by operations that need a relay or scheduler
var ErrNoDevice = errors.New("no device configured (set device.url)")

type App struct {
	Config   config.Config
	Store    *store.Store
	Device   *shelly.Client // nil without device.url
	Notifier *notify.Notifier
	Power    *power.Controller
	Actions  *actions.Scheduler
	Service  *service.Service
}

// Open builds every component from cfg. The returned config carries the
// resolved instance id.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	cfg, err = config.ResolveInstanceID(ctx, cfg, st)
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &App{Config: cfg, Store: st}

	// messages are persisted on the device when there is one so other
	// scripts can read them
	var kv notify.Store = st
	if cfg.Device.URL != "" {
		a.Device = shelly.NewClient(cfg.Device.URL, cfg.Device.SwitchID)
		kv = a.Device
	}

	var messenger notify.Messenger
	if cfg.Telegram.Active {
		messenger = notify.NewTelegramClient(cfg.Telegram.Token, cfg.Telegram.ChatID, transport.WithUserAgent(userAgent))
	}
	a.Notifier = notify.New(logger, kv, messenger, cfg.Device.Name)

	deps := service.Deps{
		Prices:   prices.NewAwattarClient(cfg.Market, transport.WithUserAgent(userAgent)),
		Notifier: a.Notifier,
		Plans:    st,
	}
	if a.Device != nil {
		a.Power = power.NewController(a.Device, a.Notifier, cfg.Telegram.SendPowerOn, cfg.Telegram.SendPowerOff)
		a.Actions = actions.New(a.Power, logger, actions.WithCancelStale(cfg.CancelStaleActions))
		deps.Armer = a.Actions
		deps.Reconciler = schedule.NewReconciler(a.Device, a.Device, logger)
	}
	a.Service = service.New(cfg, deps, logger)

	return a, nil
}

// RequireDevice fails when no device is configured
func (a *App) RequireDevice() error {
	if a.Device == nil {
		return ErrNoDevice
	}
	return nil
}

func (a *App) Close() error {
	return a.Store.Close()
}
