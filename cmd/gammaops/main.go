// File: cmd/gammaops/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

// AppVersion contains the application version
var AppVersion = "1.0.0"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "gammaops",
	Short:         "Gamma protocol operations",
	Long:          `Deploys and configures the Gamma options protocol and keeps oToken expiry prices flowing into its Oracle.`,
	Version:       AppVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "gammaops %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration is valid!\n")
		fmt.Fprintf(out, "Environment: %s\n", cfg.App.Environment)
		fmt.Fprintf(out, "Network: %s (chain %d)\n", cfg.Network.Name, cfg.Network.ChainID)
		fmt.Fprintf(out, "Node: %s\n", cfg.Network.NodeURL)
		fmt.Fprintf(out, "Database: %s\n", cfg.Storage.Type)
		fmt.Fprintf(out, "Bots: %d\n", len(cfg.Keeper.Bots))
		if _, ok := cfg.Deployment(cfg.Network.Name); ok {
			fmt.Fprintf(out, "Migrations: configured for %s\n", cfg.Network.Name)
		}
		return nil
	},
}

// printOutput writes v as json or yaml
func printOutput(w io.Writer, format string, v interface{}) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return utils.NewAppError(utils.ErrCodeValidation, "Unknown output format", format)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// init initializes the CLI commands
func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringP("network", "n", "", "network name, overrides network.name")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("network", rootCmd.PersistentFlags().Lookup("network"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keeperCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(opsCmd)
	rootCmd.AddCommand(assetsCmd)
	configCmd.AddCommand(validateConfigCmd)
}

func main() {
	ctx, cancel := signalContext()
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
