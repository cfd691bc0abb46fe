// Package contracts holds the ABI surface of the Gamma protocol contracts the
// keeper and migrations talk to, and thin typed wrappers over it.
package contracts

import "github.com/lmittmann/w3"

// Ownable
var (
	funcOwner             = w3.MustNewFunc("owner()", "address")
	funcTransferOwnership = w3.MustNewFunc("transferOwnership(address newOwner)", "")
)

// AddressBook
var (
	funcGetOracle           = w3.MustNewFunc("getOracle()", "address")
	funcGetWhitelist        = w3.MustNewFunc("getWhitelist()", "address")
	funcGetController       = w3.MustNewFunc("getController()", "address")
	funcGetMarginPool       = w3.MustNewFunc("getMarginPool()", "address")
	funcGetMarginCalculator = w3.MustNewFunc("getMarginCalculator()", "address")
	funcGetOtokenFactory    = w3.MustNewFunc("getOtokenFactory()", "address")
	funcGetOtokenImpl       = w3.MustNewFunc("getOtokenImpl()", "address")

	funcSetOtokenImpl       = w3.MustNewFunc("setOtokenImpl(address)", "")
	funcSetOtokenFactory    = w3.MustNewFunc("setOtokenFactory(address)", "")
	funcSetWhitelist        = w3.MustNewFunc("setWhitelist(address)", "")
	funcSetOracle           = w3.MustNewFunc("setOracle(address)", "")
	funcSetMarginPool       = w3.MustNewFunc("setMarginPool(address)", "")
	funcSetMarginCalculator = w3.MustNewFunc("setMarginCalculator(address)", "")
	funcSetController       = w3.MustNewFunc("setController(address)", "")
)

// Oracle
var (
	funcGetExpiryPrice      = w3.MustNewFunc("getExpiryPrice(address asset, uint256 expiryTimestamp)", "uint256 price, bool isFinalized")
	funcIsLockingPeriodOver = w3.MustNewFunc("isLockingPeriodOver(address asset, uint256 expiryTimestamp)", "bool")
	funcIsDisputePeriodOver = w3.MustNewFunc("isDisputePeriodOver(address asset, uint256 expiryTimestamp)", "bool")
	funcGetPricer           = w3.MustNewFunc("getPricer(address asset)", "address")
	funcSetAssetPricer      = w3.MustNewFunc("setAssetPricer(address asset, address pricer)", "")
	funcMigrateOracle       = w3.MustNewFunc("migrateOracle(address asset, uint256[] expiries, uint256[] prices)", "")
)

// Pricers
var (
	funcSetExpiryPriceWithRound = w3.MustNewFunc("setExpiryPriceInOracle(uint256 expiryTimestamp, uint80 roundId)", "")
	funcSetExpiryPrice          = w3.MustNewFunc("setExpiryPriceInOracle(uint256 expiryTimestamp)", "")
	funcPricerAggregator        = w3.MustNewFunc("aggregator()", "address")
	funcPricerBot               = w3.MustNewFunc("bot()", "address")
	funcPricerAsset             = w3.MustNewFunc("asset()", "address")
	funcPricerUnderlying        = w3.MustNewFunc("underlying()", "address")
)

// Chainlink aggregator
var (
	funcLatestRound  = w3.MustNewFunc("latestRound()", "uint256")
	funcGetTimestamp = w3.MustNewFunc("getTimestamp(uint256 roundId)", "uint256")
)

// Whitelist
var (
	funcWhitelistCollateral  = w3.MustNewFunc("whitelistCollateral(address collateral)", "")
	funcWhitelistProduct     = w3.MustNewFunc("whitelistProduct(address underlying, address strike, address collateral, bool isPut)", "")
	funcIsWhitelistedProduct = w3.MustNewFunc("isWhitelistedProduct(address underlying, address strike, address collateral, bool isPut)", "bool")
	funcWhitelistCallee      = w3.MustNewFunc("whitelistCallee(address callee)", "")
	funcIsWhitelistedCallee  = w3.MustNewFunc("isWhitelistedCallee(address callee)", "bool")
)

// Controller
var (
	funcSetCallRestriction = w3.MustNewFunc("setCallRestriction(bool isRestricted)", "")
	funcCallRestricted     = w3.MustNewFunc("callRestricted()", "bool")
	funcInitialize         = w3.MustNewFunc("initialize(address addressBook, address owner)", "")
)

// OtokenFactory
var funcGetOtokensLength = w3.MustNewFunc("getOtokensLength()", "uint256")
