package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/smartdevs17/gamma-ops/internal/config"
	"github.com/smartdevs17/gamma-ops/internal/models"
	"github.com/smartdevs17/gamma-ops/internal/registry"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Manage the assets each pricer bot serves",
}

var addAssetCmd = &cobra.Command{
	Use:   "add",
	Short: "Register an asset with a bot after checking it on-chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		bot, _ := cmd.Flags().GetString("bot")
		kind, _ := cmd.Flags().GetString("kind")
		asset, err := addressFlag(cmd, "asset")
		if err != nil {
			return err
		}

		return withApp(cmd, signerOptional, func(ctx context.Context, app *Application) error {
			reg, err := app.newRegistry(ctx)
			if err != nil {
				return err
			}

			var a *models.Asset
			switch kind {
			case config.BotTypeBase:
				collateral, err := addressFlag(cmd, "collateral")
				if err != nil {
					return err
				}
				a, err = reg.AddBaseAsset(ctx, bot, asset, collateral)
				if err != nil {
					return err
				}
			case config.BotTypeDerived:
				a, err = reg.AddDerivedAsset(ctx, bot, asset)
				if err != nil {
					return err
				}
			default:
				return utils.NewAppError(utils.ErrCodeValidation, "Unknown asset kind", kind)
			}
			return printOutput(cmd.OutOrStdout(), "json", a)
		})
	},
}

var removeAssetCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove an asset from a bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		bot, _ := cmd.Flags().GetString("bot")
		asset, err := addressFlag(cmd, "asset")
		if err != nil {
			return err
		}
		return withApp(cmd, signerNone, func(ctx context.Context, app *Application) error {
			reg, err := app.newRegistry(ctx)
			if err != nil {
				return err
			}
			return reg.RemoveAsset(ctx, bot, asset)
		})
	},
}

var listAssetsCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered assets",
	RunE: func(cmd *cobra.Command, args []string) error {
		bot, _ := cmd.Flags().GetString("bot")
		return withApp(cmd, signerNone, func(ctx context.Context, app *Application) error {
			reg, err := app.newRegistry(ctx)
			if err != nil {
				return err
			}
			assets, err := reg.ListAssets(ctx, bot)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "BOT\tKIND\tASSET\tPRICER\tSOURCE")
			for _, a := range assets {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.Bot, a.Kind, a.Address, a.Pricer, a.Source)
			}
			return w.Flush()
		})
	},
}

func (app *Application) newRegistry(ctx context.Context) (*registry.Registry, error) {
	book, err := app.addressBook(ctx)
	if err != nil {
		return nil, err
	}
	strike := common.Address{}
	if app.config.Gamma.StrikeAsset != "" {
		strike = common.HexToAddress(app.config.Gamma.StrikeAsset)
	}
	reg := registry.New(book, strike, app.client, app.storage)
	if app.signer != nil {
		reg.SetSigner(app.signer.From())
	}
	return reg, nil
}

func init() {
	addAssetCmd.Flags().String("bot", "", "bot name")
	addAssetCmd.Flags().String("kind", config.BotTypeBase, "asset kind (base, derived)")
	addAssetCmd.Flags().String("asset", "", "asset address")
	addAssetCmd.Flags().String("collateral", "", "collateral of the whitelisted call product (base assets)")
	addAssetCmd.MarkFlagRequired("bot")

	removeAssetCmd.Flags().String("bot", "", "bot name")
	removeAssetCmd.Flags().String("asset", "", "asset address")
	removeAssetCmd.MarkFlagRequired("bot")

	listAssetsCmd.Flags().String("bot", "", "only list the assets of this bot")

	assetsCmd.AddCommand(addAssetCmd)
	assetsCmd.AddCommand(removeAssetCmd)
	assetsCmd.AddCommand(listAssetsCmd)
}
