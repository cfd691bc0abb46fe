package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smartdevs17/gamma-ops/internal/migration"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Deploy and configure the protocol contracts",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations for the network",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetInt("to")
		return withApp(cmd, signerRequired, func(ctx context.Context, app *Application) error {
			m, err := app.newMigrator()
			if err != nil {
				return err
			}
			applied, err := m.Up(ctx, target)
			for _, n := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied migration %d\n", n)
			}
			return err
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the migration journal of the network",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("output")
		return withApp(cmd, signerNone, func(ctx context.Context, app *Application) error {
			m, err := app.newMigrator()
			if err != nil {
				return err
			}
			status, err := m.Status(ctx)
			if err != nil {
				return err
			}
			if format != "table" {
				return printOutput(cmd.OutOrStdout(), format, status)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NUMBER\tNAME\tSTATUS\tCOMPLETED")
			for _, s := range status {
				completed := "-"
				if s.CompletedAt != nil {
					completed = s.CompletedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Number, s.Name, s.Status, completed)
			}
			return w.Flush()
		})
	},
}

// newMigrator builds a migrator for the configured network
func (app *Application) newMigrator() (*migration.Migrator, error) {
	network := app.config.Network.Name
	deployment, ok := app.config.Deployment(network)
	if !ok {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "No migration settings for network", network)
	}

	var deployer migration.Deployer
	if app.signer != nil {
		deployer = app.signer
	}
	return migration.NewMigrator(migration.Config{
		Network:        network,
		Deployment:     deployment,
		GasLimit:       app.config.Signer.GasLimit,
		DeployGasLimit: app.config.Signer.DeployGasLimit,
	}, app.artifacts(), app.client, deployer, app.storage,
		migration.WithNotifier(app.notification),
		migration.WithMetrics(app.metrics.GetPrometheusMetrics()),
	), nil
}

func init() {
	migrateUpCmd.Flags().Int("to", 0, "last migration number to apply (0 applies all)")
	migrateStatusCmd.Flags().StringP("output", "o", "table", "output format (table, json, yaml)")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}
