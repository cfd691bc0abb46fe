package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lmittmann/w3"
)

// AddressBook is the protocol registry of module addresses
type AddressBook struct {
	Ownable
}

// NewAddressBook binds an AddressBook
func NewAddressBook(address common.Address, caller Caller) *AddressBook {
	return &AddressBook{Ownable{bound{address: address, caller: caller, name: "AddressBook"}}}
}

func (ab *AddressBook) getAddress(ctx context.Context, fn *w3.Func) (common.Address, error) {
	var addr common.Address
	err := ab.call(ctx, fn, nil, &addr)
	return addr, err
}

// GetOracle returns the Oracle module address
func (ab *AddressBook) GetOracle(ctx context.Context) (common.Address, error) {
	return ab.getAddress(ctx, funcGetOracle)
}

// GetWhitelist returns the Whitelist module address
func (ab *AddressBook) GetWhitelist(ctx context.Context) (common.Address, error) {
	return ab.getAddress(ctx, funcGetWhitelist)
}

// GetController returns the Controller proxy address
func (ab *AddressBook) GetController(ctx context.Context) (common.Address, error) {
	return ab.getAddress(ctx, funcGetController)
}

// GetMarginPool returns the MarginPool address
func (ab *AddressBook) GetMarginPool(ctx context.Context) (common.Address, error) {
	return ab.getAddress(ctx, funcGetMarginPool)
}

// GetMarginCalculator returns the MarginCalculator address
func (ab *AddressBook) GetMarginCalculator(ctx context.Context) (common.Address, error) {
	return ab.getAddress(ctx, funcGetMarginCalculator)
}

// GetOtokenFactory returns the OtokenFactory address
func (ab *AddressBook) GetOtokenFactory(ctx context.Context) (common.Address, error) {
	return ab.getAddress(ctx, funcGetOtokenFactory)
}

// GetOtokenImpl returns the Otoken implementation address
func (ab *AddressBook) GetOtokenImpl(ctx context.Context) (common.Address, error) {
	return ab.getAddress(ctx, funcGetOtokenImpl)
}

// Module names accepted by SetModule
const (
	ModuleOtokenImpl       = "OtokenImpl"
	ModuleOtokenFactory    = "OtokenFactory"
	ModuleWhitelist        = "Whitelist"
	ModuleOracle           = "Oracle"
	ModuleMarginPool       = "MarginPool"
	ModuleMarginCalculator = "MarginCalculator"
	ModuleController       = "Controller"
)

var moduleSetters = map[string]*w3.Func{
	ModuleOtokenImpl:       funcSetOtokenImpl,
	ModuleOtokenFactory:    funcSetOtokenFactory,
	ModuleWhitelist:        funcSetWhitelist,
	ModuleOracle:           funcSetOracle,
	ModuleMarginPool:       funcSetMarginPool,
	ModuleMarginCalculator: funcSetMarginCalculator,
	ModuleController:       funcSetController,
}

// SetModule registers a module address. Upgradeable modules are wrapped in a
// proxy by the AddressBook itself.
func (ab *AddressBook) SetModule(ctx context.Context, tx Transactor, module string, addr common.Address, gasLimit uint64) (*types.Transaction, error) {
	fn, ok := moduleSetters[module]
	if !ok {
		return nil, &UnknownModuleError{Module: module}
	}
	return ab.transact(ctx, tx, gasLimit, fn, addr)
}

// UnknownModuleError is returned for module names the AddressBook has no setter for
type UnknownModuleError struct {
	Module string
}

func (e *UnknownModuleError) Error() string {
	return "unknown address book module " + e.Module
}

// Oracle stores expiry prices and pricer assignments
type Oracle struct {
	Ownable
}

// NewOracle binds an Oracle
func NewOracle(address common.Address, caller Caller) *Oracle {
	return &Oracle{Ownable{bound{address: address, caller: caller, name: "Oracle"}}}
}

// GetExpiryPrice returns the stored price for asset at expiry; zero means unset
func (o *Oracle) GetExpiryPrice(ctx context.Context, asset common.Address, expiry *big.Int) (*big.Int, bool, error) {
	var (
		price     *big.Int
		finalized bool
	)
	if err := o.call(ctx, funcGetExpiryPrice, []any{asset, expiry}, &price, &finalized); err != nil {
		return nil, false, err
	}
	return price, finalized, nil
}

// IsLockingPeriodOver reports whether the pricer locking period after expiry has passed
func (o *Oracle) IsLockingPeriodOver(ctx context.Context, asset common.Address, expiry *big.Int) (bool, error) {
	var over bool
	err := o.call(ctx, funcIsLockingPeriodOver, []any{asset, expiry}, &over)
	return over, err
}

// IsDisputePeriodOver reports whether the dispute period after expiry has passed
func (o *Oracle) IsDisputePeriodOver(ctx context.Context, asset common.Address, expiry *big.Int) (bool, error) {
	var over bool
	err := o.call(ctx, funcIsDisputePeriodOver, []any{asset, expiry}, &over)
	return over, err
}

// GetPricer returns the pricer assigned to asset
func (o *Oracle) GetPricer(ctx context.Context, asset common.Address) (common.Address, error) {
	var pricer common.Address
	err := o.call(ctx, funcGetPricer, []any{asset}, &pricer)
	return pricer, err
}

// SetAssetPricer assigns pricer to asset
func (o *Oracle) SetAssetPricer(ctx context.Context, tx Transactor, asset, pricer common.Address, gasLimit uint64) (*types.Transaction, error) {
	return o.transact(ctx, tx, gasLimit, funcSetAssetPricer, asset, pricer)
}

// MigrateOracle writes historical expiry prices into a fresh Oracle
func (o *Oracle) MigrateOracle(ctx context.Context, tx Transactor, asset common.Address, expiries, prices []*big.Int, gasLimit uint64) (*types.Transaction, error) {
	return o.transact(ctx, tx, gasLimit, funcMigrateOracle, asset, expiries, prices)
}

// ChainlinkPricer pushes Chainlink round prices into the Oracle
type ChainlinkPricer struct {
	bound
}

// NewChainlinkPricer binds a ChainlinkPricer
func NewChainlinkPricer(address common.Address, caller Caller) *ChainlinkPricer {
	return &ChainlinkPricer{bound{address: address, caller: caller, name: "ChainlinkPricer"}}
}

// SetExpiryPriceInOracle submits the price of roundID for expiry
func (p *ChainlinkPricer) SetExpiryPriceInOracle(ctx context.Context, tx Transactor, expiry, roundID *big.Int, gasLimit uint64) (*types.Transaction, error) {
	return p.transact(ctx, tx, gasLimit, funcSetExpiryPriceWithRound, expiry, roundID)
}

// Aggregator returns the Chainlink aggregator the pricer reads
func (p *ChainlinkPricer) Aggregator(ctx context.Context) (common.Address, error) {
	var addr common.Address
	err := p.call(ctx, funcPricerAggregator, nil, &addr)
	return addr, err
}

// Bot returns the only address allowed to push prices
func (p *ChainlinkPricer) Bot(ctx context.Context) (common.Address, error) {
	var addr common.Address
	err := p.call(ctx, funcPricerBot, nil, &addr)
	return addr, err
}

// Asset returns the asset the pricer prices
func (p *ChainlinkPricer) Asset(ctx context.Context) (common.Address, error) {
	var addr common.Address
	err := p.call(ctx, funcPricerAsset, nil, &addr)
	return addr, err
}

// DerivedPricer prices a wrapped asset from its underlying expiry price
type DerivedPricer struct {
	bound
}

// NewDerivedPricer binds a derived-asset pricer (yearn, stakedao, wsteth, ...)
func NewDerivedPricer(address common.Address, caller Caller) *DerivedPricer {
	return &DerivedPricer{bound{address: address, caller: caller, name: "DerivedPricer"}}
}

// SetExpiryPriceInOracle derives and submits the expiry price
func (p *DerivedPricer) SetExpiryPriceInOracle(ctx context.Context, tx Transactor, expiry *big.Int, gasLimit uint64) (*types.Transaction, error) {
	return p.transact(ctx, tx, gasLimit, funcSetExpiryPrice, expiry)
}

// Underlying returns the asset whose price the derived price depends on
func (p *DerivedPricer) Underlying(ctx context.Context) (common.Address, error) {
	var addr common.Address
	err := p.call(ctx, funcPricerUnderlying, nil, &addr)
	return addr, err
}

// Aggregator is a Chainlink AggregatorInterface
type Aggregator struct {
	bound
}

// NewAggregator binds a Chainlink aggregator
func NewAggregator(address common.Address, caller Caller) *Aggregator {
	return &Aggregator{bound{address: address, caller: caller, name: "Aggregator"}}
}

// LatestRound returns the latest round id
func (a *Aggregator) LatestRound(ctx context.Context) (*big.Int, error) {
	var round *big.Int
	err := a.call(ctx, funcLatestRound, nil, &round)
	return round, err
}

// GetTimestamp returns the update timestamp of roundID, zero for unknown rounds
func (a *Aggregator) GetTimestamp(ctx context.Context, roundID *big.Int) (*big.Int, error) {
	var ts *big.Int
	err := a.call(ctx, funcGetTimestamp, []any{roundID}, &ts)
	return ts, err
}

// Whitelist tracks whitelisted collaterals and products
type Whitelist struct {
	Ownable
}

// NewWhitelist binds a Whitelist
func NewWhitelist(address common.Address, caller Caller) *Whitelist {
	return &Whitelist{Ownable{bound{address: address, caller: caller, name: "Whitelist"}}}
}

// WhitelistCollateral allows collateral to back vaults
func (w *Whitelist) WhitelistCollateral(ctx context.Context, tx Transactor, collateral common.Address, gasLimit uint64) (*types.Transaction, error) {
	return w.transact(ctx, tx, gasLimit, funcWhitelistCollateral, collateral)
}

// WhitelistProduct allows an (underlying, strike, collateral, isPut) product
func (w *Whitelist) WhitelistProduct(ctx context.Context, tx Transactor, p Product, gasLimit uint64) (*types.Transaction, error) {
	return w.transact(ctx, tx, gasLimit, funcWhitelistProduct, p.Underlying, p.Strike, p.Collateral, p.IsPut)
}

// IsWhitelistedProduct reports whether p is whitelisted
func (w *Whitelist) IsWhitelistedProduct(ctx context.Context, p Product) (bool, error) {
	var ok bool
	err := w.call(ctx, funcIsWhitelistedProduct, []any{p.Underlying, p.Strike, p.Collateral, p.IsPut}, &ok)
	return ok, err
}

// WhitelistCallee allows callee as the target of Controller call actions
func (w *Whitelist) WhitelistCallee(ctx context.Context, tx Transactor, callee common.Address, gasLimit uint64) (*types.Transaction, error) {
	return w.transact(ctx, tx, gasLimit, funcWhitelistCallee, callee)
}

// IsWhitelistedCallee reports whether callee may be called through the Controller
func (w *Whitelist) IsWhitelistedCallee(ctx context.Context, callee common.Address) (bool, error) {
	var ok bool
	err := w.call(ctx, funcIsWhitelistedCallee, []any{callee}, &ok)
	return ok, err
}

// Product identifies an option product
type Product struct {
	Underlying common.Address
	Strike     common.Address
	Collateral common.Address
	IsPut      bool
}

// Controller is the protocol entry point
type Controller struct {
	Ownable
}

// NewController binds a Controller
func NewController(address common.Address, caller Caller) *Controller {
	return &Controller{Ownable{bound{address: address, caller: caller, name: "Controller"}}}
}

// SetCallRestriction toggles the call action restriction
func (c *Controller) SetCallRestriction(ctx context.Context, tx Transactor, restricted bool, gasLimit uint64) (*types.Transaction, error) {
	return c.transact(ctx, tx, gasLimit, funcSetCallRestriction, restricted)
}

// CallRestricted returns the current call action restriction
func (c *Controller) CallRestricted(ctx context.Context) (bool, error) {
	var restricted bool
	err := c.call(ctx, funcCallRestricted, nil, &restricted)
	return restricted, err
}

// Initialize sets the controller's address book and owner
func (c *Controller) Initialize(ctx context.Context, tx Transactor, addressBook, owner common.Address, gasLimit uint64) (*types.Transaction, error) {
	return c.transact(ctx, tx, gasLimit, funcInitialize, addressBook, owner)
}

// OtokenFactory creates oTokens
type OtokenFactory struct {
	Ownable
}

// NewOtokenFactory binds an OtokenFactory
func NewOtokenFactory(address common.Address, caller Caller) *OtokenFactory {
	return &OtokenFactory{Ownable{bound{address: address, caller: caller, name: "OtokenFactory"}}}
}

// GetOtokensLength returns the number of oTokens created
func (f *OtokenFactory) GetOtokensLength(ctx context.Context) (*big.Int, error) {
	var n *big.Int
	err := f.call(ctx, funcGetOtokensLength, nil, &n)
	return n, err
}
