package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/smartdevs17/gamma-ops/internal/migration"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

var opsCmd = &cobra.Command{
	Use:   "ops",
	Short: "One-shot maintenance scripts against deployed contracts",
}

var transferOwnerCmd = &cobra.Command{
	Use:   "transfer-owner",
	Short: "Hand every contract in an address file to its newOwner",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		f, err := migration.LoadAddressFile(path)
		if err != nil {
			return err
		}
		return withApp(cmd, signerRequired, func(ctx context.Context, app *Application) error {
			changes, err := app.newOps().TransferOwners(ctx, f)
			if perr := printOutput(cmd.OutOrStdout(), outputFormat(cmd), changes); perr != nil {
				return perr
			}
			return err
		})
	},
}

var setCallRestrictionCmd = &cobra.Command{
	Use:   "set-call-restriction",
	Short: "Restrict or allow arbitrary call actions on the Controller",
	RunE: func(cmd *cobra.Command, args []string) error {
		controller, err := addressFlag(cmd, "controller")
		if err != nil {
			return err
		}
		restricted, _ := cmd.Flags().GetBool("restriction")
		return withApp(cmd, signerRequired, func(ctx context.Context, app *Application) error {
			current, txHash, err := app.newOps().SetCallRestriction(ctx, controller, restricted)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tx %s\ncallRestricted: %t\n", txHash.Hex(), current)
			return nil
		})
	},
}

var deployChainlinkPricerCmd = &cobra.Command{
	Use:   "deploy-chainlink-pricer",
	Short: "Deploy a ChainlinkPricer for an asset",
	RunE: func(cmd *cobra.Command, args []string) error {
		addrs, err := addressFlags(cmd, "bot", "asset", "aggregator", "oracle")
		if err != nil {
			return err
		}
		return withApp(cmd, signerRequired, func(ctx context.Context, app *Application) error {
			pricer, err := app.newOps().DeployChainlinkPricer(ctx, addrs[0], addrs[1], addrs[2], addrs[3])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ChainlinkPricer deployed at %s\n", pricer.Hex())
			return nil
		})
	},
}

var migrateOracleCmd = &cobra.Command{
	Use:   "migrate-oracle",
	Short: "Copy the expiry prices of an asset to a new Oracle",
	RunE: func(cmd *cobra.Command, args []string) error {
		addrs, err := addressFlags(cmd, "factory", "old-oracle", "new-oracle", "asset")
		if err != nil {
			return err
		}
		return withApp(cmd, signerRequired, func(ctx context.Context, app *Application) error {
			result, err := app.newOps().MigrateOracle(ctx, app.subgraph(), addrs[0], addrs[1], addrs[2], addrs[3])
			if result != nil {
				if perr := printOutput(cmd.OutOrStdout(), outputFormat(cmd), result); perr != nil {
					return perr
				}
			}
			return err
		})
	},
}

var deployPricerCmd = &cobra.Command{
	Use:     "deploy-pricer <Artifact>",
	Aliases: []string{"deploy-artifact"},
	Short:   "Deploy a pricer, or any artifact, with positional constructor arguments",
	Example: `  gammaops ops deploy-pricer YearnPricer --arg <yToken> --arg <underlying> --arg <oracle>
  gammaops ops deploy-pricer ChainlinkTwoStepPricer --arg <bot> --arg <asset> --arg <weth> --arg <aggregator> --arg <oracle>`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctorArgs, _ := cmd.Flags().GetStringArray("arg")
		gasLimit, _ := cmd.Flags().GetUint64("gas-limit")
		return withApp(cmd, signerRequired, func(ctx context.Context, app *Application) error {
			deployed, err := app.newOps().DeployPricer(ctx, args[0], ctorArgs, gasLimit)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), outputFormat(cmd), deployed)
		})
	},
}

var deployModuleCmd = &cobra.Command{
	Use:       "deploy-module <controller|calculator|otoken-impl>",
	Short:     "Deploy a new implementation of a protocol module",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{migration.ModuleController, migration.ModuleMarginCalculator, migration.ModuleOtokenImpl},
	RunE: func(cmd *cobra.Command, args []string) error {
		req := migration.ModuleRequest{Module: args[0]}
		req.GasLimit, _ = cmd.Flags().GetUint64("gas-limit")

		var err error
		switch req.Module {
		case migration.ModuleController:
			req.MarginVault, err = addressFlag(cmd, "margin-vault")
		case migration.ModuleMarginCalculator:
			req.Oracle, err = addressFlag(cmd, "oracle")
		}
		if err != nil {
			return err
		}

		return withApp(cmd, signerRequired, func(ctx context.Context, app *Application) error {
			deployed, err := app.newOps().DeployModule(ctx, req)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), outputFormat(cmd), deployed)
		})
	},
}

var whitelistCalleeCmd = &cobra.Command{
	Use:   "whitelist-callee",
	Short: "Allow a contract as the target of Controller call actions",
	RunE: func(cmd *cobra.Command, args []string) error {
		addrs, err := addressFlags(cmd, "whitelist", "callee")
		if err != nil {
			return err
		}
		return withApp(cmd, signerRequired, func(ctx context.Context, app *Application) error {
			whitelisted, txHash, err := app.newOps().WhitelistCallee(ctx, addrs[0], addrs[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tx %s\nisWhitelistedCallee: %t\n", txHash.Hex(), whitelisted)
			return nil
		})
	},
}

func (app *Application) newOps() *migration.Ops {
	var deployer migration.Deployer
	if app.signer != nil {
		deployer = app.signer
	}
	return migration.NewOps(migration.OpsConfig{
		Network:        app.config.Network.Name,
		GasLimit:       app.config.Signer.GasLimit,
		DeployGasLimit: app.config.Signer.DeployGasLimit,
	}, app.artifacts(), app.client, deployer, app.storage, app.metrics.GetPrometheusMetrics())
}

func outputFormat(cmd *cobra.Command) string {
	format, _ := cmd.Flags().GetString("output")
	return format
}

// addressFlag reads a required address flag
func addressFlag(cmd *cobra.Command, name string) (common.Address, error) {
	value, _ := cmd.Flags().GetString(name)
	if value == "" {
		return common.Address{}, utils.NewAppError(utils.ErrCodeValidation, "Missing required flag", "--"+name)
	}
	addr, err := utils.ParseAddress(value)
	if err != nil {
		return common.Address{}, fmt.Errorf("--%s: %w", name, err)
	}
	return addr, nil
}

func addressFlags(cmd *cobra.Command, names ...string) ([]common.Address, error) {
	out := make([]common.Address, len(names))
	for i, name := range names {
		addr, err := addressFlag(cmd, name)
		if err != nil {
			return nil, err
		}
		out[i] = addr
	}
	return out, nil
}

func init() {
	transferOwnerCmd.Flags().StringP("file", "f", "", "yaml or json file of contract addresses plus newOwner")
	transferOwnerCmd.MarkFlagRequired("file")
	transferOwnerCmd.Flags().StringP("output", "o", "json", "output format (json, yaml)")

	setCallRestrictionCmd.Flags().String("controller", "", "Controller address")
	setCallRestrictionCmd.Flags().Bool("restriction", true, "restrict call actions")

	for _, name := range []string{"bot", "asset", "aggregator", "oracle"} {
		deployChainlinkPricerCmd.Flags().String(name, "", name+" address")
	}

	for _, name := range []string{"factory", "old-oracle", "new-oracle", "asset"} {
		migrateOracleCmd.Flags().String(name, "", name+" address")
	}
	migrateOracleCmd.Flags().StringP("output", "o", "json", "output format (json, yaml)")

	deployPricerCmd.Flags().StringArray("arg", nil, "constructor argument, in order (repeatable)")
	deployPricerCmd.Flags().Uint64("gas-limit", 0, "gas limit (default signer.deploy_gas_limit)")
	deployPricerCmd.Flags().StringP("output", "o", "json", "output format (json, yaml)")

	deployModuleCmd.Flags().String("margin-vault", "", "MarginVault library address (controller)")
	deployModuleCmd.Flags().String("oracle", "", "Oracle address (calculator)")
	deployModuleCmd.Flags().Uint64("gas-limit", 0, "gas limit (default signer.deploy_gas_limit)")
	deployModuleCmd.Flags().StringP("output", "o", "json", "output format (json, yaml)")

	whitelistCalleeCmd.Flags().String("whitelist", "", "Whitelist address")
	whitelistCalleeCmd.Flags().String("callee", "", "callee contract address")

	opsCmd.AddCommand(transferOwnerCmd)
	opsCmd.AddCommand(setCallRestrictionCmd)
	opsCmd.AddCommand(deployChainlinkPricerCmd)
	opsCmd.AddCommand(migrateOracleCmd)
	opsCmd.AddCommand(deployPricerCmd)
	opsCmd.AddCommand(deployModuleCmd)
	opsCmd.AddCommand(whitelistCalleeCmd)
}
