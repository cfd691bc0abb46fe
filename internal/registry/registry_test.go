package registry

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/gamma-ops/internal/config"
	"github.com/smartdevs17/gamma-ops/internal/contracts/contractstest"
	"github.com/smartdevs17/gamma-ops/internal/models"
	"github.com/smartdevs17/gamma-ops/internal/storage"
	"github.com/smartdevs17/gamma-ops/internal/storage/storagetest"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

var (
	addressBook = common.HexToAddress("0x1e31f2dcbad4dc572004eae6355fb18f9615cbe4")
	oracleAddr  = common.HexToAddress("0x789cd7ab3742e23ce0952f6bc3eb3a73a0e08833")
	whitelist   = common.HexToAddress("0xa5ea18ac6865f315ff5dd9f1a7fb1d41a30a6779")
	usdc        = common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	botAddr     = common.HexToAddress("0xfacb407914655562d6619b0048a612b1795df783")

	weth       = common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	wethPricer = common.HexToAddress("0x3100000000000000000000000000000000000003")
	wethAgg    = common.HexToAddress("0x5f4ec3df9cbd43714fe2740f5e3616155c5b8419")

	wsteth       = common.HexToAddress("0x7f39c581f595b53c5cb19bd0b3f8da6c935e2ca0")
	wstethPricer = common.HexToAddress("0x6100000000000000000000000000000000000006")
)

type fixture struct {
	chain    *contractstest.FakeChain
	oracle   *contractstest.Oracle
	store    storage.Storage
	registry *Registry
}

func newFixture(t *testing.T) *fixture {
	chain := contractstest.NewFakeChain(botAddr)
	chain.Return(addressBook, contractstest.GetOracle, oracleAddr)
	chain.Return(addressBook, contractstest.GetWhitelist, whitelist)
	chain.Handle(whitelist, contractstest.IsWhitelistedProduct, func(input []byte) ([]any, error) {
		var (
			underlying, strike, collateral common.Address
			isPut                          bool
		)
		if err := contractstest.IsWhitelistedProduct.DecodeArgs(input, &underlying, &strike, &collateral, &isPut); err != nil {
			return nil, err
		}
		return []any{underlying == weth && strike == usdc && collateral == weth && !isPut}, nil
	})

	oracle := chain.NewOracle(oracleAddr)
	oracle.SetPricer(weth, wethPricer)
	oracle.SetPricer(wsteth, wstethPricer)
	chain.NewChainlinkPricer(wethPricer, weth, botAddr, chain.NewAggregator(wethAgg), oracle)
	chain.NewDerivedPricer(wstethPricer, wsteth, weth, 1, oracle)

	store := storagetest.New(t)
	r := New(addressBook, usdc, chain, store)
	r.SetSigner(botAddr)
	return &fixture{chain: chain, oracle: oracle, store: store, registry: r}
}

func TestAddBaseAsset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	asset, err := f.registry.AddBaseAsset(ctx, "chainlink", weth, weth)
	require.NoError(t, err)
	assert.Equal(t, models.AssetKindBase, asset.Kind)
	assert.Equal(t, models.AssetSourceRegistry, asset.Source)

	stored, err := f.store.GetAsset(ctx, "chainlink", weth.Hex())
	require.NoError(t, err)
	assert.Equal(t, utils.NormalizeAddress(wethPricer.Hex()), stored.Pricer)
	assert.Equal(t, utils.NormalizeAddress(wethAgg.Hex()), stored.Aggregator)
	assert.Equal(t, utils.NormalizeAddress(weth.Hex()), stored.Collateral)

	_, err = f.registry.AddBaseAsset(ctx, "chainlink", weth, weth)
	require.Error(t, err)
	assert.True(t, utils.HasCode(err, utils.ErrCodeValidation))
	assert.Contains(t, err.Error(), "already registered")

	// A different bot may serve the same asset
	_, err = f.registry.AddBaseAsset(ctx, "chainlink-internal", weth, weth)
	require.NoError(t, err)
}

func TestAddBaseAssetRequiresWhitelistedProduct(t *testing.T) {
	f := newFixture(t)

	_, err := f.registry.AddBaseAsset(context.Background(), "chainlink", weth, usdc)
	require.Error(t, err)
	assert.True(t, utils.HasCode(err, utils.ErrCodeValidation))
	assert.Contains(t, err.Error(), "not whitelisted")

	assets, err := f.registry.ListAssets(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, assets)
}

func TestAddBaseAssetRequiresPricer(t *testing.T) {
	f := newFixture(t)
	f.oracle.SetPricer(weth, common.Address{})

	_, err := f.registry.AddBaseAsset(context.Background(), "chainlink", weth, weth)
	require.Error(t, err)
	assert.True(t, utils.HasCode(err, utils.ErrCodeNotFound))
}

func TestAddDerivedAsset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	asset, err := f.registry.AddDerivedAsset(ctx, "wsteth", wsteth)
	require.NoError(t, err)
	assert.Equal(t, models.AssetKindDerived, asset.Kind)

	stored, err := f.store.GetAsset(ctx, "wsteth", wsteth.Hex())
	require.NoError(t, err)
	assert.Equal(t, utils.NormalizeAddress(weth.Hex()), stored.Underlying)
	assert.Equal(t, utils.NormalizeAddress(wstethPricer.Hex()), stored.Pricer)
}

func TestRemoveAndListAssets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.registry.AddBaseAsset(ctx, "chainlink", weth, weth)
	require.NoError(t, err)
	_, err = f.registry.AddDerivedAsset(ctx, "wsteth", wsteth)
	require.NoError(t, err)

	all, err := f.registry.ListAssets(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	chainlink, err := f.registry.ListAssets(ctx, "chainlink")
	require.NoError(t, err)
	require.Len(t, chainlink, 1)
	assert.Equal(t, utils.NormalizeAddress(weth.Hex()), chainlink[0].Address)

	require.NoError(t, f.registry.RemoveAsset(ctx, "chainlink", weth))
	err = f.registry.RemoveAsset(ctx, "chainlink", weth)
	assert.True(t, utils.HasCode(err, utils.ErrCodeNotFound))

	all, err = f.registry.ListAssets(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSeedFromConfig(t *testing.T) {
	store := storagetest.New(t)
	ctx := context.Background()
	bots := []config.BotConfig{
		{
			Name: "chainlink",
			Type: config.BotTypeBase,
			Assets: []config.AssetConfig{
				{Asset: weth.Hex(), Pricer: wethPricer.Hex(), Aggregator: wethAgg.Hex()},
			},
		},
		{
			Name: "wsteth",
			Type: config.BotTypeDerived,
			Assets: []config.AssetConfig{
				{Asset: wsteth.Hex(), Pricer: wstethPricer.Hex(), Underlying: weth.Hex()},
			},
		},
	}

	n, err := SeedFromConfig(ctx, store, bots)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Seeding again updates in place
	n, err = SeedFromConfig(ctx, store, bots)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assets, err := store.ListAssets(ctx, models.AssetFilter{})
	require.NoError(t, err)
	require.Len(t, assets, 2)
	for _, a := range assets {
		assert.Equal(t, models.AssetSourceConfig, a.Source)
	}

	derived, err := store.ListAssets(ctx, models.AssetFilter{Kind: models.AssetKindDerived})
	require.NoError(t, err)
	require.Len(t, derived, 1)
	assert.Equal(t, utils.NormalizeAddress(weth.Hex()), derived[0].Underlying)
}
