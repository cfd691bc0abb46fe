package migration

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/gamma-ops/internal/contracts"
)

// Deployment names recorded by the migrations
const (
	AddressBookName      = "AddressBook"
	OtokenName           = "Otoken"
	WhitelistName        = "Whitelist"
	OracleName           = "Oracle"
	MarginPoolName       = "MarginPool"
	MarginCalculatorName = "MarginCalculator"
	MarginVaultName      = "MarginVault"
	ControllerName       = "Controller"
	ControllerProxyName  = "ControllerProxy"
	USDCPricerName       = "USDCPricer"
	ChainlinkPricerName  = "ChainlinkPricer"
	CompoundPricerName   = "CompoundPricer"
)

// Migrations returns the ordered migration list
func Migrations() []Migration {
	return []Migration{
		{Number: 1, Name: "deploy_contracts", run: deployContracts},
		{Number: 2, Name: "setup_ownership", run: setupOwnership},
		{Number: 3, Name: "log_controller", run: logController},
		{Number: 4, Name: "setup_pricers", run: setupPricers},
		{Number: 5, Name: "whitelist_assets", run: whitelistAssets},
	}
}

// deployContracts deploys the protocol modules leaf to root and registers
// each one in the AddressBook. The OtokenFactory is left as configured.
func deployContracts(ctx context.Context, m *Migrator, number int) error {
	d := m.config.Deployment
	large := d.LargeDeployGasLimit

	bookAddr, ok, err := m.optional("address_book", d.AddressBook)
	if err != nil {
		return err
	}
	if ok {
		m.logger.WithField("address", bookAddr.Hex()).Info("Using configured AddressBook")
		if err := m.record(ctx, number, AddressBookName, bookAddr, common.Hash{}); err != nil {
			return err
		}
	} else {
		bookAddr, err = m.deploy(ctx, number, AddressBookName, 0, nil)
		if err != nil {
			return err
		}
	}
	book := contracts.NewAddressBook(bookAddr, m.caller)

	modules := []struct {
		name   string
		module string
		gas    uint64
		args   []any
	}{
		{OtokenName, contracts.ModuleOtokenImpl, large, nil},
		{WhitelistName, contracts.ModuleWhitelist, 0, []any{bookAddr}},
		{OracleName, contracts.ModuleOracle, 0, nil},
		{MarginPoolName, contracts.ModuleMarginPool, 0, []any{bookAddr}},
		{MarginCalculatorName, contracts.ModuleMarginCalculator, large, []any{bookAddr}},
	}
	for _, mod := range modules {
		addr, err := m.deploy(ctx, number, mod.name, mod.gas, nil, mod.args...)
		if err != nil {
			return err
		}
		tx, err := book.SetModule(ctx, m.deployer, mod.module, addr, m.gasLimit)
		if _, err := m.wait(ctx, "AddressBook.set"+mod.module, tx, err); err != nil {
			return err
		}
	}

	vault, err := m.deploy(ctx, number, MarginVaultName, 0, nil)
	if err != nil {
		return err
	}
	controller, err := m.deploy(ctx, number, ControllerName, large, map[string]common.Address{MarginVaultName: vault})
	if err != nil {
		return err
	}
	tx, err := book.SetModule(ctx, m.deployer, contracts.ModuleController, controller, m.gasLimit)
	if _, err := m.wait(ctx, "AddressBook.setController", tx, err); err != nil {
		return err
	}

	proxy, err := book.GetController(ctx)
	if err != nil {
		return fmt.Errorf("read controller proxy: %w", err)
	}
	m.logger.WithField("address", proxy.Hex()).Info("Controller proxy address")
	return nil
}

// ownedModules are handed to the multisig after deployment
var ownedModules = []string{AddressBookName, WhitelistName, OracleName, MarginPoolName, ControllerName}

// setupOwnership transfers the protocol modules to the network multisig
func setupOwnership(ctx context.Context, m *Migrator, number int) error {
	multisig, ok, err := m.optional("multisig", m.config.Deployment.Multisig)
	if err != nil {
		return err
	}
	if !ok {
		m.logger.Info("No multisig configured, skipping ownership transfer")
		return nil
	}

	for _, name := range ownedModules {
		addr, err := m.resolve(ctx, name)
		if err != nil {
			return err
		}
		if _, _, err := m.transferOwnership(ctx, contracts.NewOwnable(name, addr, m.caller), multisig); err != nil {
			return err
		}
	}
	return nil
}

// logController records the controller proxy the AddressBook created
func logController(ctx context.Context, m *Migrator, number int) error {
	bookAddr, err := m.resolve(ctx, AddressBookName)
	if err != nil {
		return err
	}
	proxy, err := contracts.NewAddressBook(bookAddr, m.caller).GetController(ctx)
	if err != nil {
		return fmt.Errorf("read controller proxy: %w", err)
	}
	m.logger.WithField("address", proxy.Hex()).Info("Controller proxy address")
	return m.record(ctx, number, ControllerProxyName, proxy, common.Hash{})
}

// setupPricers deploys the USDC, WETH and cUSDC pricers and assigns them in
// the Oracle
func setupPricers(ctx context.Context, m *Migrator, number int) error {
	d := m.config.Deployment
	required := []struct{ field, value string }{
		{"usdc", d.USDC},
		{"weth", d.WETH},
		{"cusdc", d.CUSDC},
		{"chainlink_ethusdc_aggregator", d.ChainlinkETHUSDC},
	}
	addrs := make([]common.Address, len(required))
	for i, r := range required {
		addr, ok, err := m.optional(r.field, r.value)
		if err != nil {
			return err
		}
		if !ok {
			m.logger.WithField("missing", r.field).Info("Pricer config incomplete, skipping this step")
			return nil
		}
		addrs[i] = addr
	}
	usdc, weth, cusdc, aggregator := addrs[0], addrs[1], addrs[2], addrs[3]

	oracleAddr, err := m.resolve(ctx, OracleName)
	if err != nil {
		return err
	}
	oracle := contracts.NewOracle(oracleAddr, m.caller)

	setPricer := func(asset, pricer common.Address, name string) error {
		tx, err := oracle.SetAssetPricer(ctx, m.deployer, asset, pricer, m.gasLimit)
		_, err = m.wait(ctx, "Oracle.setAssetPricer "+name, tx, err)
		return err
	}

	usdcPricer, err := m.deploy(ctx, number, USDCPricerName, 0, nil, usdc, oracleAddr)
	if err != nil {
		return err
	}
	if err := setPricer(usdc, usdcPricer, USDCPricerName); err != nil {
		return err
	}

	ethArgs, err := chainlinkPricerArgs(m.artifacts, m.deployer.From(), weth, aggregator, oracleAddr)
	if err != nil {
		return err
	}
	ethPricer, err := m.deploy(ctx, number, ChainlinkPricerName, 0, nil, ethArgs...)
	if err != nil {
		return err
	}
	if err := setPricer(weth, ethPricer, ChainlinkPricerName); err != nil {
		return err
	}

	cusdcPricer, err := m.deploy(ctx, number, CompoundPricerName, 0, nil, cusdc, usdc, usdcPricer, oracleAddr)
	if err != nil {
		return err
	}
	return setPricer(cusdc, cusdcPricer, CompoundPricerName)
}

// chainlinkPricerArgs fits the constructor of the ChainlinkPricer artifact:
// newer pricers take the bot address first
func chainlinkPricerArgs(artifacts ArtifactSource, bot, asset, aggregator, oracle common.Address) ([]any, error) {
	artifact, err := artifacts.Load(ChainlinkPricerName)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ChainlinkPricerName, err)
	}
	if artifact.ConstructorInputs() == 4 {
		return []any{bot, asset, aggregator, oracle}, nil
	}
	return []any{asset, aggregator, oracle}, nil
}

// whitelistAssets whitelists WETH, WBTC and USDC as collateral and their
// put and call products against USDC
func whitelistAssets(ctx context.Context, m *Migrator, number int) error {
	d := m.config.Deployment
	if d.WETH == "" || d.WBTC == "" || d.USDC == "" {
		m.logger.Info("Missing one of WETH, WBTC, USDC, skipping this step")
		return nil
	}
	weth, err := parseAddress("weth", d.WETH)
	if err != nil {
		return err
	}
	wbtc, err := parseAddress("wbtc", d.WBTC)
	if err != nil {
		return err
	}
	usdc, err := parseAddress("usdc", d.USDC)
	if err != nil {
		return err
	}

	whitelistAddr, err := m.resolve(ctx, WhitelistName)
	if err != nil {
		return err
	}
	whitelist := contracts.NewWhitelist(whitelistAddr, m.caller)

	m.logger.WithFields(logrus.Fields{
		"weth": weth.Hex(),
		"wbtc": wbtc.Hex(),
		"usdc": usdc.Hex(),
	}).Info("Whitelisting assets")

	for _, collateral := range []common.Address{weth, wbtc, usdc} {
		tx, err := whitelist.WhitelistCollateral(ctx, m.deployer, collateral, m.gasLimit)
		if _, err := m.wait(ctx, "Whitelist.whitelistCollateral "+collateral.Hex(), tx, err); err != nil {
			return err
		}
	}

	products := []contracts.Product{
		{Underlying: weth, Strike: usdc, Collateral: usdc, IsPut: true},
		{Underlying: weth, Strike: usdc, Collateral: weth, IsPut: false},
		{Underlying: wbtc, Strike: usdc, Collateral: usdc, IsPut: true},
		{Underlying: wbtc, Strike: usdc, Collateral: wbtc, IsPut: false},
	}
	for _, p := range products {
		tx, err := whitelist.WhitelistProduct(ctx, m.deployer, p, m.gasLimit)
		if _, err := m.wait(ctx, "Whitelist.whitelistProduct", tx, err); err != nil {
			return err
		}
	}
	return nil
}
