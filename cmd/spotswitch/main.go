package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/awaistahir/spotswitch/internal/app"
	"github.com/awaistahir/spotswitch/internal/config"
	"github.com/awaistahir/spotswitch/internal/logging"
	"github.com/awaistahir/spotswitch/internal/notify"
	"github.com/awaistahir/spotswitch/internal/service"
	"github.com/awaistahir/spotswitch/internal/store"
)

var (
	cfgFile string
	dbPath  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "spotswitch",
		Short: "spotswitch - switch a relay on during the cheapest spot price hours",
		Long: `spotswitch finds the cheapest contiguous block of hourly aWATTar spot
prices in a daily window and drives a Shelly relay at its boundaries.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./spotswitch.yaml or $HOME/.spotswitch/spotswitch.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default is $HOME/.spotswitch/spotswitch.db)")

	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(pricesCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(switchCmd())
	rootCmd.AddCommand(statusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openApp loads the configuration and builds the components. Logs go to
// stderr so stdout stays machine readable.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	return app.Open(ctx, cfg, logger)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func planCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the cheapest window for the next query window without arming it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Service.Plan(ctx)
			if err != nil {
				return fmt.Errorf("planning: %w", err)
			}

			if asJSON {
				return printJSON(cmd.OutOrStdout(), res)
			}
			printPlan(cmd.OutOrStdout(), a.Config, res)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")

	return cmd
}

func printPlan(w io.Writer, cfg config.Config, res service.Result) {
	loc := cfg.Location()
	layout := "Mon 2 Jan 15:04"

	fmt.Fprintf(w, "Query window:  %s - %s\n", res.QueryStart.In(loc).Format(layout), res.QueryEnd.In(loc).Format(layout))
	fmt.Fprintf(w, "Cheapest %dh:   %s - %s\n", res.Window.SlotCount, res.Window.Start.In(loc).Format(layout), res.Window.End.In(loc).Format(layout))
	fmt.Fprintf(w, "Average price: %s cent/kWh\n", notify.FormatPrice(res.Average))
	if cfg.PriceLimit != nil {
		fmt.Fprintf(w, "Price limit:   %s cent/kWh\n", notify.FormatPrice(*cfg.PriceLimit))
	}
	if res.Scheduled {
		fmt.Fprintln(w, "Would be scheduled")
	} else {
		fmt.Fprintln(w, "Would not be scheduled (above price limit)")
	}
}

func pricesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prices",
		Short: "Fetch the price series for the next query window as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			series, err := a.Service.Prices(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Fetched %d price slots\n", len(series))
			return printJSON(cmd.OutOrStdout(), series)
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Create or update the recurring recompute job on the device",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.RequireDevice(); err != nil {
				return err
			}
			outcome, err := a.Service.Startup(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recurring job %s (instance %s)\n", outcome, a.Config.InstanceID)
			return nil
		},
	}
}

func switchCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "switch on|off",
		Short:     "Switch the relay immediately",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.RequireDevice(); err != nil {
				return err
			}
			return a.Power.SetPower(ctx, args[0] == "on")
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last computed plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			plan, err := a.Store.LatestPlan(ctx)
			if errors.Is(err, store.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "No plan computed yet")
				return nil
			}
			if err != nil {
				return err
			}

			loc := a.Config.Location()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Instance:    %s\n", a.Config.InstanceID)
			fmt.Fprintf(w, "Computed at: %s\n", plan.ComputedAt.In(loc).Format(time.RFC1123))
			fmt.Fprintf(w, "Scheduled:   %t\n", plan.Scheduled)
			fmt.Fprintf(w, "Message:     %s\n", plan.Message)
			return nil
		},
	}
}
