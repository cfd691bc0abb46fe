package contractstest

import "github.com/lmittmann/w3"

// Function declarations used to register handlers. Selectors match the ones
// the contracts package encodes.
var (
	Owner             = w3.MustNewFunc("owner()", "address")
	TransferOwnership = w3.MustNewFunc("transferOwnership(address)", "")

	GetOracle           = w3.MustNewFunc("getOracle()", "address")
	GetWhitelist        = w3.MustNewFunc("getWhitelist()", "address")
	GetController       = w3.MustNewFunc("getController()", "address")
	GetMarginPool       = w3.MustNewFunc("getMarginPool()", "address")
	GetMarginCalculator = w3.MustNewFunc("getMarginCalculator()", "address")
	GetOtokenFactory    = w3.MustNewFunc("getOtokenFactory()", "address")
	GetOtokenImpl       = w3.MustNewFunc("getOtokenImpl()", "address")
	SetOtokenImpl       = w3.MustNewFunc("setOtokenImpl(address)", "")
	SetWhitelist        = w3.MustNewFunc("setWhitelist(address)", "")
	SetOracle           = w3.MustNewFunc("setOracle(address)", "")
	SetMarginPool       = w3.MustNewFunc("setMarginPool(address)", "")
	SetMarginCalculator = w3.MustNewFunc("setMarginCalculator(address)", "")
	SetController       = w3.MustNewFunc("setController(address)", "")

	GetExpiryPrice      = w3.MustNewFunc("getExpiryPrice(address,uint256)", "uint256,bool")
	IsLockingPeriodOver = w3.MustNewFunc("isLockingPeriodOver(address,uint256)", "bool")
	IsDisputePeriodOver = w3.MustNewFunc("isDisputePeriodOver(address,uint256)", "bool")
	GetPricer           = w3.MustNewFunc("getPricer(address)", "address")
	SetAssetPricer      = w3.MustNewFunc("setAssetPricer(address,address)", "")
	MigrateOracle       = w3.MustNewFunc("migrateOracle(address,uint256[],uint256[])", "")

	SetExpiryPriceWithRound = w3.MustNewFunc("setExpiryPriceInOracle(uint256,uint80)", "")
	SetExpiryPrice          = w3.MustNewFunc("setExpiryPriceInOracle(uint256)", "")
	PricerAggregator        = w3.MustNewFunc("aggregator()", "address")
	PricerBot               = w3.MustNewFunc("bot()", "address")
	PricerAsset             = w3.MustNewFunc("asset()", "address")
	PricerUnderlying        = w3.MustNewFunc("underlying()", "address")

	LatestRound  = w3.MustNewFunc("latestRound()", "uint256")
	GetTimestamp = w3.MustNewFunc("getTimestamp(uint256)", "uint256")

	WhitelistCollateral  = w3.MustNewFunc("whitelistCollateral(address)", "")
	WhitelistProduct     = w3.MustNewFunc("whitelistProduct(address,address,address,bool)", "")
	IsWhitelistedProduct = w3.MustNewFunc("isWhitelistedProduct(address,address,address,bool)", "bool")
	WhitelistCallee      = w3.MustNewFunc("whitelistCallee(address)", "")
	IsWhitelistedCallee  = w3.MustNewFunc("isWhitelistedCallee(address)", "bool")

	SetCallRestriction = w3.MustNewFunc("setCallRestriction(bool)", "")
	CallRestricted     = w3.MustNewFunc("callRestricted()", "bool")
	Initialize         = w3.MustNewFunc("initialize(address,address)", "")

	GetOtokensLength = w3.MustNewFunc("getOtokensLength()", "uint256")
)
