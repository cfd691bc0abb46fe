package migration

import (
	"context"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/gamma-ops/internal/contracts"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

// Protocol modules that can be redeployed for an upgrade
const (
	ModuleController       = "controller"
	ModuleMarginCalculator = "calculator"
	ModuleOtokenImpl       = "otoken-impl"
)

// upgradeSuffix keeps module upgrades from replacing the records of the
// initial migration
const upgradeSuffix = ":upgrade"

// ModuleRequest names a module to redeploy and what its constructor or
// linker needs
type ModuleRequest struct {
	Module string
	// MarginVault is linked into the Controller
	MarginVault common.Address
	// Oracle is the MarginCalculator constructor argument
	Oracle   common.Address
	GasLimit uint64
}

// Deployed is the outcome of a one-shot deployment
type Deployed struct {
	Artifact string `json:"artifact" yaml:"artifact"`
	Record   string `json:"record" yaml:"record"`
	Address  string `json:"address" yaml:"address"`
}

// DeployPricer deploys the pricer artifact with args converted to its
// constructor parameter types. The deployment is recorded per priced asset:
// the first address parameter that is not the bot.
func (o *Ops) DeployPricer(ctx context.Context, artifactName string, args []string, gasLimit uint64) (*Deployed, error) {
	a, err := o.artifacts.Load(artifactName)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", artifactName, err)
	}

	inputs := a.ABI.Constructor.Inputs
	values, err := constructorArgs(inputs, args)
	if err != nil {
		return nil, err
	}

	record := artifactName
	if asset, ok := pricedAsset(inputs, values); ok {
		record += ":" + asset.Hex()
	}

	o.logger.WithFields(logrus.Fields{"artifact": artifactName, "args": len(args)}).Info("Deploying pricer")
	addr, err := o.deployAs(ctx, 0, record, artifactName, gasLimit, nil, values...)
	if err != nil {
		return nil, err
	}
	return &Deployed{Artifact: artifactName, Record: record, Address: addr.Hex()}, nil
}

// DeployModule deploys a fresh implementation of a protocol module. Pointing
// the AddressBook at it is left to the owner.
func (o *Ops) DeployModule(ctx context.Context, req ModuleRequest) (*Deployed, error) {
	var (
		artifactName string
		libs         map[string]common.Address
		args         []any
	)
	switch req.Module {
	case ModuleController:
		if req.MarginVault == (common.Address{}) {
			return nil, utils.NewAppError(utils.ErrCodeValidation, "Controller needs a MarginVault library", "")
		}
		artifactName = ControllerName
		libs = map[string]common.Address{MarginVaultName: req.MarginVault}
	case ModuleMarginCalculator:
		if req.Oracle == (common.Address{}) {
			return nil, utils.NewAppError(utils.ErrCodeValidation, "MarginCalculator needs an Oracle", "")
		}
		artifactName = MarginCalculatorName
		args = []any{req.Oracle}
	case ModuleOtokenImpl:
		artifactName = OtokenName
	default:
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Unknown module", req.Module)
	}

	record := artifactName + upgradeSuffix
	addr, err := o.deployAs(ctx, 0, record, artifactName, req.GasLimit, libs, args...)
	if err != nil {
		return nil, err
	}
	return &Deployed{Artifact: artifactName, Record: record, Address: addr.Hex()}, nil
}

// constructorArgs converts command line values to the Go types the ABI packer expects
func constructorArgs(inputs abi.Arguments, args []string) ([]any, error) {
	if len(args) != len(inputs) {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Wrong number of constructor arguments",
			fmt.Sprintf("want %d (%s), got %d", len(inputs), describeInputs(inputs), len(args)))
	}

	values := make([]any, len(args))
	for i, in := range inputs {
		v, err := convertArg(in.Type, args[i])
		if err != nil {
			name := in.Name
			if name == "" {
				name = strconv.Itoa(i)
			}
			return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid constructor argument",
				fmt.Sprintf("%s %s: %v", in.Type.String(), name, err))
		}
		values[i] = v
	}
	return values, nil
}

func convertArg(t abi.Type, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch t.T {
	case abi.AddressTy:
		if !common.IsHexAddress(value) {
			return nil, fmt.Errorf("%q is not an address", value)
		}
		return common.HexToAddress(value), nil
	case abi.BoolTy:
		return strconv.ParseBool(value)
	case abi.StringTy:
		return value, nil
	case abi.UintTy, abi.IntTy:
		n, ok := new(big.Int).SetString(value, 0)
		if !ok {
			return nil, fmt.Errorf("%q is not an integer", value)
		}
		if t.T == abi.UintTy && n.Sign() < 0 {
			return nil, fmt.Errorf("%s is negative", value)
		}
		// uint256 and other odd widths pack from *big.Int
		if t.GetType().Kind() == reflect.Ptr {
			bits := t.Size
			if t.T == abi.IntTy {
				bits--
			}
			if n.BitLen() > bits {
				return nil, fmt.Errorf("%s overflows %s", value, t.String())
			}
			return n, nil
		}
		v := reflect.New(t.GetType()).Elem()
		if t.T == abi.UintTy {
			if !n.IsUint64() || v.OverflowUint(n.Uint64()) {
				return nil, fmt.Errorf("%s overflows %s", value, t.String())
			}
			v.SetUint(n.Uint64())
		} else {
			if !n.IsInt64() || v.OverflowInt(n.Int64()) {
				return nil, fmt.Errorf("%s overflows %s", value, t.String())
			}
			v.SetInt(n.Int64())
		}
		return v.Interface(), nil
	default:
		return nil, fmt.Errorf("unsupported type %s", t.String())
	}
}

// pricedAsset is the first address argument not named bot
func pricedAsset(inputs abi.Arguments, values []any) (common.Address, bool) {
	for i, in := range inputs {
		if in.Type.T != abi.AddressTy || strings.EqualFold(strings.TrimPrefix(in.Name, "_"), "bot") {
			continue
		}
		return values[i].(common.Address), true
	}
	return common.Address{}, false
}

func describeInputs(inputs abi.Arguments) string {
	if len(inputs) == 0 {
		return "none"
	}
	parts := make([]string, len(inputs))
	for i, in := range inputs {
		parts[i] = strings.TrimSpace(in.Type.String() + " " + in.Name)
	}
	return strings.Join(parts, ", ")
}

// WhitelistCallee allows callee as a Controller call action target and
// returns the value read back after the transaction is mined
func (o *Ops) WhitelistCallee(ctx context.Context, whitelistAddr, callee common.Address) (bool, common.Hash, error) {
	whitelist := contracts.NewWhitelist(whitelistAddr, o.caller)
	tx, err := whitelist.WhitelistCallee(ctx, o.deployer, callee, o.gasLimit)
	if tx, err = o.wait(ctx, "Whitelist.whitelistCallee", tx, err); err != nil {
		return false, common.Hash{}, err
	}

	ok, err := whitelist.IsWhitelistedCallee(ctx, callee)
	if err != nil {
		return false, tx.Hash(), fmt.Errorf("read callee whitelist: %w", err)
	}
	o.logger.WithFields(logrus.Fields{
		"callee":      callee.Hex(),
		"whitelisted": ok,
		"tx_hash":     tx.Hash().Hex(),
	}).Info("Callee whitelisting set")
	return ok, tx.Hash(), nil
}
