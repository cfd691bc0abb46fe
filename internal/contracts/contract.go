package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lmittmann/w3"

	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

// Caller executes read-only contract calls. *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Transactor signs and broadcasts a transaction. A nil to deploys a contract.
type Transactor interface {
	From() common.Address
	SendTransaction(ctx context.Context, to *common.Address, data []byte, gasLimit uint64) (*types.Transaction, error)
}

// bound is a contract address plus the caller used to read from it
type bound struct {
	address common.Address
	caller  Caller
	name    string
}

// Address returns the contract address
func (b *bound) Address() common.Address {
	return b.address
}

func (b *bound) call(ctx context.Context, fn *w3.Func, args []any, returns ...any) error {
	input, err := fn.EncodeArgs(args...)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to encode call", fmt.Sprintf("%s.%s: %v", b.name, fn.Signature, err))
	}

	to := b.address
	output, err := b.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeBlockchain, "Contract call failed", fmt.Sprintf("%s(%s).%s: %v", b.name, to.Hex(), fn.Signature, err))
	}
	if len(output) == 0 {
		return utils.NewAppError(utils.ErrCodeBlockchain, "Contract call returned no data", fmt.Sprintf("%s(%s).%s", b.name, to.Hex(), fn.Signature))
	}

	if err := fn.DecodeReturns(output, returns...); err != nil {
		return utils.NewAppError(utils.ErrCodeBlockchain, "Failed to decode call result", fmt.Sprintf("%s.%s: %v", b.name, fn.Signature, err))
	}
	return nil
}

func (b *bound) transact(ctx context.Context, tx Transactor, gasLimit uint64, fn *w3.Func, args ...any) (*types.Transaction, error) {
	input, err := fn.EncodeArgs(args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to encode transaction", fmt.Sprintf("%s.%s: %v", b.name, fn.Signature, err))
	}

	to := b.address
	sent, err := tx.SendTransaction(ctx, &to, input, gasLimit)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", b.name, fn.Signature, err)
	}
	return sent, nil
}

// Ownable is the owner()/transferOwnership() surface shared by Gamma modules
type Ownable struct {
	bound
}

// NewOwnable binds an Ownable contract
func NewOwnable(name string, address common.Address, caller Caller) *Ownable {
	return &Ownable{bound{address: address, caller: caller, name: name}}
}

// Name returns the contract name used in logs
func (o *Ownable) Name() string {
	return o.name
}

// Owner returns the current owner
func (o *Ownable) Owner(ctx context.Context) (common.Address, error) {
	var owner common.Address
	err := o.call(ctx, funcOwner, nil, &owner)
	return owner, err
}

// TransferOwnership hands the contract to newOwner
func (o *Ownable) TransferOwnership(ctx context.Context, tx Transactor, newOwner common.Address, gasLimit uint64) (*types.Transaction, error) {
	return o.transact(ctx, tx, gasLimit, funcTransferOwnership, newOwner)
}
