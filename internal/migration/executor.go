package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/gamma-ops/internal/contracts"
	"github.com/smartdevs17/gamma-ops/internal/metrics"
	"github.com/smartdevs17/gamma-ops/internal/models"
	"github.com/smartdevs17/gamma-ops/internal/storage"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

// Deployer sends transactions and contract creations and waits for them to be
// mined. WaitMined must fail on a reverted receipt.
type Deployer interface {
	contracts.Transactor
	Deploy(ctx context.Context, initCode []byte, gasLimit uint64) (common.Address, *types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// executor deploys and configures contracts one transaction at a time
type executor struct {
	network   string
	artifacts ArtifactSource
	caller    contracts.Caller
	deployer  Deployer
	storage   storage.Storage
	gasLimit  uint64
	deployGas uint64
	metrics   *metrics.PrometheusMetrics
	now       func() time.Time
	logger    *logrus.Entry
}

// deploy creates contract name with args, waits for it and records the
// deployment under migration number
func (e *executor) deploy(ctx context.Context, number int, name string, gas uint64, libs map[string]common.Address, args ...any) (common.Address, error) {
	return e.deployAs(ctx, number, name, name, gas, libs, args...)
}

// deployAs deploys the artifact named artifact and records it as name
func (e *executor) deployAs(ctx context.Context, number int, name, artifact string, gas uint64, libs map[string]common.Address, args ...any) (common.Address, error) {
	a, err := e.artifacts.Load(artifact)
	if err != nil {
		return common.Address{}, fmt.Errorf("load %s: %w", artifact, err)
	}
	if len(libs) > 0 {
		a = a.Link(libs)
	}
	initCode, err := a.DeployData(args...)
	if err != nil {
		return common.Address{}, err
	}
	if gas == 0 {
		gas = e.deployGas
	}

	addr, tx, err := e.deployer.Deploy(ctx, initCode, gas)
	if err != nil {
		e.recordTx("failed")
		return common.Address{}, fmt.Errorf("deploy %s: %w", artifact, err)
	}
	receipt, err := e.deployer.WaitMined(ctx, tx)
	if err != nil {
		e.recordTx("failed")
		return common.Address{}, fmt.Errorf("deploy %s: %w", artifact, err)
	}
	if receipt != nil && receipt.ContractAddress != (common.Address{}) {
		addr = receipt.ContractAddress
	}
	e.recordTx("mined")

	if err := e.record(ctx, number, name, addr, tx.Hash()); err != nil {
		return common.Address{}, err
	}
	e.logger.WithFields(logrus.Fields{
		"contract": artifact,
		"address":  addr.Hex(),
		"tx_hash":  tx.Hash().Hex(),
	}).Info("Contract deployed")
	return addr, nil
}

// wait waits for a transaction sent for what
func (e *executor) wait(ctx context.Context, what string, tx *types.Transaction, err error) (*types.Transaction, error) {
	if err != nil {
		e.recordTx("failed")
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	if _, err := e.deployer.WaitMined(ctx, tx); err != nil {
		e.recordTx("failed")
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	e.recordTx("mined")
	e.logger.WithFields(logrus.Fields{"step": what, "tx_hash": tx.Hash().Hex()}).Info("Transaction confirmed")
	return tx, nil
}

// record stores a deployment address. The executor of an ops script may have no store.
func (e *executor) record(ctx context.Context, number int, name string, addr common.Address, txHash common.Hash) error {
	if e.storage == nil {
		return nil
	}
	d := &models.Deployment{
		Network:   e.network,
		Name:      name,
		Address:   addr.Hex(),
		Migration: number,
		CreatedAt: e.now().UTC(),
	}
	if txHash != (common.Hash{}) {
		d.TxHash = txHash.Hex()
	}
	if err := e.storage.SaveDeployment(ctx, d); err != nil {
		return fmt.Errorf("record %s: %w", name, err)
	}
	return nil
}

// resolve returns the address a previous migration recorded for name
func (e *executor) resolve(ctx context.Context, name string) (common.Address, error) {
	d, err := e.storage.GetDeployment(ctx, e.network, name)
	if err != nil {
		return common.Address{}, fmt.Errorf("resolve %s: %w", name, err)
	}
	return common.HexToAddress(d.Address), nil
}

// transferOwnership hands c to newOwner unless it already owns it. The
// returned transaction is nil when nothing was sent.
func (e *executor) transferOwnership(ctx context.Context, c *contracts.Ownable, newOwner common.Address) (*types.Transaction, common.Address, error) {
	owner, err := c.Owner(ctx)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("%s owner: %w", c.Name(), err)
	}
	if owner == newOwner {
		e.logger.WithFields(logrus.Fields{"contract": c.Name(), "owner": owner.Hex()}).Info("Owner already set")
		return nil, owner, nil
	}

	e.logger.WithFields(logrus.Fields{
		"contract":  c.Name(),
		"owner":     owner.Hex(),
		"new_owner": newOwner.Hex(),
	}).Info("Transferring ownership")
	tx, err := c.TransferOwnership(ctx, e.deployer, newOwner, e.gasLimit)
	tx, err = e.wait(ctx, c.Name()+" transferOwnership", tx, err)
	return tx, owner, err
}

func (e *executor) recordTx(status string) {
	if e.metrics != nil {
		e.metrics.RecordTransaction(status)
	}
}

func parseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, utils.NewAppError(utils.ErrCodeValidation, "Invalid address", fmt.Sprintf("%s: %q", field, value))
	}
	return common.HexToAddress(value), nil
}
