// Package registry manages the assets each pricer bot serves. New assets are
// validated against the protocol before they are stored.
package registry

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/gamma-ops/internal/config"
	"github.com/smartdevs17/gamma-ops/internal/contracts"
	"github.com/smartdevs17/gamma-ops/internal/models"
	"github.com/smartdevs17/gamma-ops/internal/storage"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

// Registry adds, removes and lists bot assets
type Registry struct {
	addressBook *contracts.AddressBook
	strike      common.Address
	caller      contracts.Caller
	storage     storage.Storage
	signer      common.Address
	logger      *logrus.Entry
}

// New creates a registry for the protocol behind addressBook. strike is the
// strike asset products are checked against.
func New(addressBook, strike common.Address, caller contracts.Caller, store storage.Storage) *Registry {
	return &Registry{
		addressBook: contracts.NewAddressBook(addressBook, caller),
		strike:      strike,
		caller:      caller,
		storage:     store,
		logger:      utils.ComponentLogger("registry"),
	}
}

// SetSigner sets the address the keeper signs with. Base assets whose pricer
// bot differs are still added but logged, since their submissions would revert.
func (r *Registry) SetSigner(signer common.Address) {
	r.signer = signer
}

// AddBaseAsset registers a Chainlink-priced asset with bot. The (asset, strike,
// collateral) call product must be whitelisted and the asset must have a pricer.
func (r *Registry) AddBaseAsset(ctx context.Context, bot string, asset, collateral common.Address) (*models.Asset, error) {
	if err := r.ensureNew(ctx, bot, asset); err != nil {
		return nil, err
	}

	whitelistAddr, err := r.addressBook.GetWhitelist(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve whitelist: %w", err)
	}
	product := contracts.Product{Underlying: asset, Strike: r.strike, Collateral: collateral, IsPut: false}
	ok, err := contracts.NewWhitelist(whitelistAddr, r.caller).IsWhitelistedProduct(ctx, product)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Product is not whitelisted",
			fmt.Sprintf("underlying %s, strike %s, collateral %s", asset.Hex(), r.strike.Hex(), collateral.Hex()))
	}

	pricerAddr, err := r.pricerOf(ctx, asset)
	if err != nil {
		return nil, err
	}
	pricer := contracts.NewChainlinkPricer(pricerAddr, r.caller)
	aggregator, err := pricer.Aggregator(ctx)
	if err != nil {
		return nil, fmt.Errorf("pricer aggregator: %w", err)
	}
	botAddr, err := pricer.Bot(ctx)
	if err != nil {
		return nil, fmt.Errorf("pricer bot: %w", err)
	}

	a := &models.Asset{
		Bot:        bot,
		Kind:       models.AssetKindBase,
		Address:    asset.Hex(),
		Pricer:     pricerAddr.Hex(),
		Aggregator: aggregator.Hex(),
		Collateral: collateral.Hex(),
		Source:     models.AssetSourceRegistry,
	}
	if err := r.storage.SaveAsset(ctx, a); err != nil {
		return nil, err
	}

	logger := r.logger.WithFields(logrus.Fields{
		"bot":        bot,
		"asset":      a.Address,
		"pricer":     a.Pricer,
		"aggregator": a.Aggregator,
		"pricer_bot": botAddr.Hex(),
	})
	if r.signer != (common.Address{}) && botAddr != r.signer {
		logger.WithField("signer", r.signer.Hex()).Warn("Pricer bot is not the keeper signer")
	}
	logger.Info("Base asset added")
	return a, nil
}

// AddDerivedAsset registers an asset priced from its underlying with bot
func (r *Registry) AddDerivedAsset(ctx context.Context, bot string, asset common.Address) (*models.Asset, error) {
	if err := r.ensureNew(ctx, bot, asset); err != nil {
		return nil, err
	}

	pricerAddr, err := r.pricerOf(ctx, asset)
	if err != nil {
		return nil, err
	}
	underlying, err := contracts.NewDerivedPricer(pricerAddr, r.caller).Underlying(ctx)
	if err != nil {
		return nil, fmt.Errorf("pricer underlying: %w", err)
	}

	a := &models.Asset{
		Bot:        bot,
		Kind:       models.AssetKindDerived,
		Address:    asset.Hex(),
		Pricer:     pricerAddr.Hex(),
		Underlying: underlying.Hex(),
		Source:     models.AssetSourceRegistry,
	}
	if err := r.storage.SaveAsset(ctx, a); err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"bot":        bot,
		"asset":      a.Address,
		"pricer":     a.Pricer,
		"underlying": a.Underlying,
	}).Info("Derived asset added")
	return a, nil
}

// RemoveAsset removes asset from bot
func (r *Registry) RemoveAsset(ctx context.Context, bot string, asset common.Address) error {
	if err := r.storage.DeleteAsset(ctx, bot, asset.Hex()); err != nil {
		return err
	}
	r.logger.WithFields(logrus.Fields{"bot": bot, "asset": asset.Hex()}).Info("Asset removed")
	return nil
}

// ListAssets returns the assets of bot, or of every bot when bot is empty
func (r *Registry) ListAssets(ctx context.Context, bot string) ([]*models.Asset, error) {
	return r.storage.ListAssets(ctx, models.AssetFilter{Bot: bot})
}

func (r *Registry) ensureNew(ctx context.Context, bot string, asset common.Address) error {
	_, err := r.storage.GetAsset(ctx, bot, asset.Hex())
	switch {
	case err == nil:
		return utils.NewAppError(utils.ErrCodeValidation, "Asset already registered", bot+"/"+asset.Hex())
	case utils.HasCode(err, utils.ErrCodeNotFound):
		return nil
	default:
		return err
	}
}

func (r *Registry) pricerOf(ctx context.Context, asset common.Address) (common.Address, error) {
	oracleAddr, err := r.addressBook.GetOracle(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("resolve oracle: %w", err)
	}
	pricer, err := contracts.NewOracle(oracleAddr, r.caller).GetPricer(ctx, asset)
	if err != nil {
		return common.Address{}, err
	}
	if pricer == (common.Address{}) {
		return common.Address{}, utils.NewAppError(utils.ErrCodeNotFound, "Asset has no pricer", asset.Hex())
	}
	return pricer, nil
}

// SeedFromConfig stores the statically configured assets of every bot. Existing
// rows for the same (bot, asset) are overwritten. It returns the number of assets seeded.
func SeedFromConfig(ctx context.Context, store storage.Storage, bots []config.BotConfig) (int, error) {
	n := 0
	for _, bot := range bots {
		for _, ac := range bot.Assets {
			a := &models.Asset{
				Bot:        bot.Name,
				Kind:       bot.Type,
				Address:    ac.Asset,
				Pricer:     ac.Pricer,
				Aggregator: ac.Aggregator,
				Underlying: ac.Underlying,
				Source:     models.AssetSourceConfig,
			}
			if err := store.SaveAsset(ctx, a); err != nil {
				return n, fmt.Errorf("seed %s/%s: %w", bot.Name, ac.Asset, err)
			}
			n++
		}
	}
	if n > 0 {
		utils.ComponentLogger("registry").WithField("assets", n).Info("Seeded assets from config")
	}
	return n, nil
}
