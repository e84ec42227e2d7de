package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/awaistahir/spotswitch/internal/app"
	"github.com/awaistahir/spotswitch/internal/config"
	"github.com/awaistahir/spotswitch/internal/logging"
	"github.com/awaistahir/spotswitch/internal/uiapi"
)

func main() {
	var cfgFile string
	var addr string

	rootCmd := &cobra.Command{
		Use:   "spotswitchd",
		Short: "spotswitch daemon: reconciles the device schedule and switches power in the cheapest window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return run(cfg)
		},
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default is ./spotswitch.yaml or $HOME/.spotswitch/spotswitch.yaml)")
	rootCmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides server.addr)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.RequireDevice(); err != nil {
		return err
	}

	// a missing or duplicated trigger is fatal
	if _, err := a.Service.Startup(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           uiapi.NewServer(a.Service, a.Store, a.Actions, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Actions.Run(gCtx)
	})

	g.Go(func() error {
		logger.Info("spotswitch listening",
			"addr", srv.Addr,
			"instance", a.Config.InstanceID,
			"device", a.Config.Device.URL,
			"db", a.Config.DBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("spotswitch stopped")
		return nil
	}
	return err
}
