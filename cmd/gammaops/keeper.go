package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smartdevs17/gamma-ops/internal/config"
	"github.com/smartdevs17/gamma-ops/internal/keeper"
	"github.com/smartdevs17/gamma-ops/internal/pricer"
	"github.com/smartdevs17/gamma-ops/internal/registry"
	"github.com/smartdevs17/gamma-ops/internal/schedule"
	"github.com/smartdevs17/gamma-ops/internal/server"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

var keeperCmd = &cobra.Command{
	Use:   "keeper",
	Short: "Push oToken expiry prices into the Oracle",
}

var keeperRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Check every asset once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, signerOptional, func(ctx context.Context, app *Application) error {
			k, err := app.newKeeper(ctx)
			if err != nil {
				return err
			}
			result, runErr := k.RunOnce(ctx)
			if result != nil {
				if err := printOutput(cmd.OutOrStdout(), "json", result); err != nil {
					return err
				}
			}
			return runErr
		})
	},
}

var keeperStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the keeper loop and the HTTP API until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, signerOptional, func(ctx context.Context, app *Application) error {
			k, err := app.newKeeper(ctx)
			if err != nil {
				return err
			}

			var srv *server.HTTPServer
			if app.config.Server.Enabled {
				srv = server.NewHTTPServer(&app.config.Server, server.Dependencies{
					Storage:        app.storage,
					Keeper:         k,
					Notification:   app.notification,
					Chain:          app.connection,
					MetricsManager: app.metrics,
					Version:        AppVersion,
				})
				if err := srv.Start(); err != nil {
					return err
				}
			}

			if err := k.Start(ctx); err != nil {
				return fmt.Errorf("failed to start keeper: %w", err)
			}

			<-ctx.Done()
			app.logger.Info("Received shutdown signal, stopping keeper")

			if err := k.Stop(); err != nil {
				app.logger.WithError(err).Warn("Failed to stop keeper")
			}
			if srv != nil {
				if err := srv.Stop(); err != nil {
					return fmt.Errorf("failed to stop server: %w", err)
				}
			}
			return nil
		})
	},
}

// newKeeper seeds the configured assets and builds the keeper around a price job
func (app *Application) newKeeper(ctx context.Context) (*keeper.Keeper, error) {
	cfg := app.config.Keeper
	if _, err := registry.SeedFromConfig(ctx, app.storage, cfg.Bots); err != nil {
		return nil, err
	}

	book, err := app.addressBook(ctx)
	if err != nil {
		return nil, err
	}
	weekday, err := config.ParseWeekday(cfg.ExpiryWeekday)
	if err != nil {
		return nil, err
	}

	if app.signer == nil && !cfg.DryRun {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Signer private key is required unless keeper.dry_run is set", "")
	}

	pm := app.metrics.GetPrometheusMetrics()
	opts := []pricer.Option{
		pricer.WithNotifier(app.notification),
		pricer.WithMetrics(pm),
	}
	if app.signer != nil {
		opts = append(opts, pricer.WithWaiter(app.signer))
	}

	job := pricer.NewJob(pricer.Config{
		Window:           schedule.Window{Hour: cfg.ExpiryHour, Weekday: weekday},
		GasLimit:         app.config.Signer.GasLimit,
		MaxRoundLookback: cfg.MaxRoundLookback,
		PendingTimeout:   cfg.PendingTimeout,
		Concurrency:      cfg.Concurrency,
		DryRun:           cfg.DryRun,
		WaitReceipt:      app.config.Signer.WaitReceipt,
	}, book, app.client, app.transactor(), app.storage, opts...)

	return keeper.New(job, app.storage, cfg.Interval,
		keeper.WithNotifier(app.notification),
		keeper.WithMetrics(pm),
	), nil
}

func init() {
	keeperCmd.AddCommand(keeperRunCmd)
	keeperCmd.AddCommand(keeperStartCmd)
}
