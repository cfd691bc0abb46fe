package migration

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/smartdevs17/gamma-ops/internal/contracts"
	"github.com/smartdevs17/gamma-ops/internal/metrics"
	"github.com/smartdevs17/gamma-ops/internal/storage"
	"github.com/smartdevs17/gamma-ops/internal/subgraph"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

// Ops runs one-shot maintenance scripts against deployed contracts
type Ops struct {
	executor
}

// OpsConfig controls the ops scripts
type OpsConfig struct {
	Network        string
	GasLimit       uint64
	DeployGasLimit uint64
}

// NewOps creates an ops runner. store may be nil; deployments are then not recorded.
func NewOps(cfg OpsConfig, artifacts ArtifactSource, caller contracts.Caller, deployer Deployer, store storage.Storage, m *metrics.PrometheusMetrics) *Ops {
	if cfg.GasLimit == 0 {
		cfg.GasLimit = 1_000_000
	}
	if cfg.DeployGasLimit == 0 {
		cfg.DeployGasLimit = 8_000_000
	}
	return &Ops{executor{
		network:   cfg.Network,
		artifacts: artifacts,
		caller:    caller,
		deployer:  deployer,
		storage:   store,
		gasLimit:  cfg.GasLimit,
		deployGas: cfg.DeployGasLimit,
		metrics:   m,
		now:       time.Now,
		logger:    utils.ComponentLogger("ops").WithField("network", cfg.Network),
	}}
}

// SetClock overrides time.Now
func (o *Ops) SetClock(now func() time.Time) {
	o.now = now
}

// AddressFile lists deployed contracts by name plus the owner to hand them to
type AddressFile struct {
	NewOwner    common.Address
	AddressBook common.Address
	Contracts   map[string]common.Address
}

// ownerFileOrder is the transfer order of the contracts an address file may name
var ownerFileOrder = []string{
	"AddressBook", "Whitelist", "Oracle", "MarginPool", "Controller", "MarginCalculator",
	"MarginVault", "OToken", "OTokenFactory", "PayableProxyController", "PermitCallee",
	"OwnedUpgradeabilityProxy",
}

// LoadAddressFile reads a yaml or json file of name: address pairs. The
// newOwner key names the new owner.
func LoadAddressFile(path string) (*AddressFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Failed to read address file", err.Error())
	}
	return ParseAddressFile(data)
}

// ParseAddressFile decodes an address file
func ParseAddressFile(data []byte) (*AddressFile, error) {
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Invalid address file", err.Error())
	}

	f := &AddressFile{Contracts: make(map[string]common.Address)}
	for key, value := range raw {
		addr, err := parseAddress(key, value)
		if err != nil {
			return nil, err
		}
		if key == "newOwner" {
			f.NewOwner = addr
			continue
		}
		if key == "AddressBook" {
			f.AddressBook = addr
		}
		f.Contracts[key] = addr
	}

	if f.NewOwner == (common.Address{}) {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Address file has no newOwner", "")
	}
	if _, ok := f.Contracts[ControllerName]; ok && f.AddressBook == (common.Address{}) {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Address file names a Controller but no AddressBook", "")
	}
	return f, nil
}

// names returns the contract names in transfer order
func (f *AddressFile) names() []string {
	known := make(map[string]bool, len(ownerFileOrder))
	var out []string
	for _, name := range ownerFileOrder {
		known[name] = true
		if _, ok := f.Contracts[name]; ok {
			out = append(out, name)
		}
	}
	var rest []string
	for name := range f.Contracts {
		if !known[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// Ownership transfer actions
const (
	OwnerUnchanged   = "unchanged"
	OwnerTransferred = "transferred"
	OwnerInitialized = "initialized"
)

// OwnershipChange is the outcome for one contract of TransferOwners
type OwnershipChange struct {
	Name          string `json:"name" yaml:"name"`
	Address       string `json:"address" yaml:"address"`
	PreviousOwner string `json:"previous_owner" yaml:"previous_owner"`
	Action        string `json:"action" yaml:"action"`
	TxHash        string `json:"tx_hash,omitempty" yaml:"tx_hash,omitempty"`
}

// TransferOwners hands every contract in f to f.NewOwner. Contracts already
// owned by it are left alone. The Controller is handed over through
// initialize(addressBook, newOwner).
func (o *Ops) TransferOwners(ctx context.Context, f *AddressFile) ([]OwnershipChange, error) {
	var changes []OwnershipChange
	for _, name := range f.names() {
		addr := f.Contracts[name]
		change := OwnershipChange{Name: name, Address: addr.Hex(), Action: OwnerUnchanged}

		if name == ControllerName {
			controller := contracts.NewController(addr, o.caller)
			owner, err := controller.Owner(ctx)
			if err != nil {
				return changes, fmt.Errorf("%s owner: %w", name, err)
			}
			change.PreviousOwner = owner.Hex()
			if owner != f.NewOwner {
				o.logger.WithField("contract", name).Info("Transferring owner")
				tx, err := controller.Initialize(ctx, o.deployer, f.AddressBook, f.NewOwner, o.gasLimit)
				if tx, err = o.wait(ctx, "Controller.initialize", tx, err); err != nil {
					return changes, err
				}
				change.Action = OwnerInitialized
				change.TxHash = tx.Hash().Hex()
			}
			changes = append(changes, change)
			continue
		}

		tx, owner, err := o.transferOwnership(ctx, contracts.NewOwnable(name, addr, o.caller), f.NewOwner)
		if err != nil {
			return changes, err
		}
		change.PreviousOwner = owner.Hex()
		if tx != nil {
			change.Action = OwnerTransferred
			change.TxHash = tx.Hash().Hex()
		}
		changes = append(changes, change)
	}
	return changes, nil
}

// SetCallRestriction sets the Controller call restriction and returns the
// value read back after the transaction is mined
func (o *Ops) SetCallRestriction(ctx context.Context, controllerAddr common.Address, restricted bool) (bool, common.Hash, error) {
	controller := contracts.NewController(controllerAddr, o.caller)
	tx, err := controller.SetCallRestriction(ctx, o.deployer, restricted, o.gasLimit)
	if tx, err = o.wait(ctx, "Controller.setCallRestriction", tx, err); err != nil {
		return false, common.Hash{}, err
	}

	current, err := controller.CallRestricted(ctx)
	if err != nil {
		return false, tx.Hash(), fmt.Errorf("read call restriction: %w", err)
	}
	o.logger.WithFields(logrus.Fields{
		"controller": controllerAddr.Hex(),
		"restricted": current,
		"tx_hash":    tx.Hash().Hex(),
	}).Info("Call action restriction set")
	return current, tx.Hash(), nil
}

// DeployChainlinkPricer deploys a ChainlinkPricer for asset
func (o *Ops) DeployChainlinkPricer(ctx context.Context, bot, asset, aggregator, oracle common.Address) (common.Address, error) {
	artifact, err := o.artifacts.Load(ChainlinkPricerName)
	if err != nil {
		return common.Address{}, fmt.Errorf("load %s: %w", ChainlinkPricerName, err)
	}
	if n := artifact.ConstructorInputs(); n != 4 {
		return common.Address{}, utils.NewAppError(utils.ErrCodeArtifact, "ChainlinkPricer constructor does not take a bot",
			fmt.Sprintf("%d inputs", n))
	}

	// one record per asset so pricers of different assets do not replace each other
	return o.deployAs(ctx, 0, ChainlinkPricerName+":"+asset.Hex(), ChainlinkPricerName, 0, nil, bot, asset, aggregator, oracle)
}

// OtokenSource lists oTokens that expired before now
type OtokenSource interface {
	ExpiredOtokens(ctx context.Context, now time.Time) ([]subgraph.Otoken, error)
}

// OracleMigration is the outcome of MigrateOracle
type OracleMigration struct {
	Asset            common.Address `json:"asset"`
	OtokensOnFactory *big.Int       `json:"otokens_on_factory"`
	OtokensFound     int            `json:"otokens_found"`
	Expiries         []*big.Int     `json:"expiries"`
	Prices           []*big.Int     `json:"prices"`
	TxHash           string         `json:"tx_hash,omitempty"`
}

// MigrateOracle copies the expiry prices of asset from oldOracle to
// newOracle. The expiries are those of expired oTokens that use asset as
// underlying, strike or collateral. Nothing is sent when there are none.
func (o *Ops) MigrateOracle(ctx context.Context, src OtokenSource, factory, oldOracle, newOracle, asset common.Address) (*OracleMigration, error) {
	length, err := contracts.NewOtokenFactory(factory, o.caller).GetOtokensLength(ctx)
	if err != nil {
		return nil, fmt.Errorf("read oToken count: %w", err)
	}
	o.logger.WithField("total", length).Info("oTokens created by factory")

	otokens, err := src.ExpiredOtokens(ctx, o.now())
	if err != nil {
		return nil, fmt.Errorf("list expired oTokens: %w", err)
	}

	result := &OracleMigration{Asset: asset, OtokensOnFactory: length, OtokensFound: len(otokens)}
	old := contracts.NewOracle(oldOracle, o.caller)
	seen := make(map[int64]bool)
	for _, ot := range otokens {
		if !ot.Touches(asset.Hex()) || seen[ot.ExpiryTimestamp] {
			continue
		}
		seen[ot.ExpiryTimestamp] = true

		expiry := big.NewInt(ot.ExpiryTimestamp)
		price, _, err := old.GetExpiryPrice(ctx, asset, expiry)
		if err != nil {
			return nil, fmt.Errorf("read price at %d: %w", ot.ExpiryTimestamp, err)
		}
		result.Expiries = append(result.Expiries, expiry)
		result.Prices = append(result.Prices, price)
	}

	logger := o.logger.WithFields(logrus.Fields{
		"asset":      asset.Hex(),
		"new_oracle": newOracle.Hex(),
		"expiries":   len(result.Expiries),
	})
	if len(result.Expiries) == 0 {
		logger.Info("No expiry prices to migrate")
		return result, nil
	}

	logger.Info("Migrating prices to new Oracle")
	tx, err := contracts.NewOracle(newOracle, o.caller).MigrateOracle(ctx, o.deployer, asset, result.Expiries, result.Prices, o.gasLimit)
	if tx, err = o.wait(ctx, "Oracle.migrateOracle", tx, err); err != nil {
		return result, err
	}
	result.TxHash = tx.Hash().Hex()
	logger.WithField("tx_hash", result.TxHash).Info("Oracle prices migrated")
	return result, nil
}
