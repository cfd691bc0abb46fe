// File: internal/txmgr/txmgr.go
package txmgr

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/gamma-ops/internal/config"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

// Client is the subset of ethclient.Client the manager needs
type Client interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Speed multipliers applied to the node's suggested tip, in percent
var speedMultipliers = map[string]int64{
	"safelow": 100,
	"average": 125,
	"fast":    150,
	"fastest": 200,
}

// Manager signs transactions with a local key and broadcasts them
type Manager struct {
	client  Client
	chainID *big.Int
	signer  types.Signer
	key     *ecdsa.PrivateKey
	from    common.Address
	speed   int64
	maxFee  *big.Int
	timeout time.Duration
	poll    time.Duration
	logger  *logrus.Entry

	mu        sync.Mutex
	nextNonce *uint64
}

// NewManager creates a transaction manager for the configured signer
func NewManager(client Client, chainID int64, cfg *config.SignerConfig) (*Manager, error) {
	if cfg.PrivateKey == "" {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Signer private key is required", "")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Invalid signer private key", err.Error())
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	if cfg.From != "" && !strings.EqualFold(cfg.From, from.Hex()) {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Signer key does not match configured from address",
			fmt.Sprintf("key=%s from=%s", from.Hex(), cfg.From))
	}

	speed, ok := speedMultipliers[strings.ToLower(cfg.Speed)]
	if !ok {
		speed = speedMultipliers["fast"]
	}

	timeout := cfg.ReceiptTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	return &Manager{
		client:  client,
		chainID: big.NewInt(chainID),
		signer:  types.LatestSignerForChainID(big.NewInt(chainID)),
		key:     key,
		from:    from,
		speed:   speed,
		maxFee:  new(big.Int).Mul(big.NewInt(cfg.MaxFeeGwei), big.NewInt(params.GWei)),
		timeout: timeout,
		poll:    2 * time.Second,
		logger:  utils.ComponentLogger("txmgr"),
	}, nil
}

// From returns the signer address
func (m *Manager) From() common.Address {
	return m.from
}

// SendTransaction signs and broadcasts a transaction. A nil to deploys data as init code.
func (m *Manager) SendTransaction(ctx context.Context, to *common.Address, data []byte, gasLimit uint64) (*types.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	nonce, err := m.nonce(ctx)
	if err != nil {
		return nil, err
	}

	txData, err := m.buildTx(ctx, nonce, to, data, gasLimit)
	if err != nil {
		return nil, err
	}

	signed, err := types.SignNewTx(m.key, m.signer, txData)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeTransaction, "Failed to sign transaction", err.Error())
	}

	if err := m.client.SendTransaction(ctx, signed); err != nil {
		// The node may have seen a different nonce; refetch next time
		m.nextNonce = nil
		return nil, utils.NewAppError(utils.ErrCodeTransaction, "Failed to send transaction", err.Error())
	}

	next := nonce + 1
	m.nextNonce = &next

	fields := logrus.Fields{
		"tx_hash":   signed.Hash().Hex(),
		"nonce":     nonce,
		"gas_limit": gasLimit,
	}
	if to != nil {
		fields["to"] = to.Hex()
	} else {
		fields["contract"] = crypto.CreateAddress(m.from, nonce).Hex()
	}
	m.logger.WithFields(fields).Info("Transaction sent")

	return signed, nil
}

// Deploy sends init code and returns the address the contract will live at
func (m *Manager) Deploy(ctx context.Context, initCode []byte, gasLimit uint64) (common.Address, *types.Transaction, error) {
	tx, err := m.SendTransaction(ctx, nil, initCode, gasLimit)
	if err != nil {
		return common.Address{}, nil, err
	}
	return crypto.CreateAddress(m.from, tx.Nonce()), tx, nil
}

// WaitMined polls for the receipt of tx and fails if it reverted
func (m *Manager) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()

	for {
		receipt, err := m.client.TransactionReceipt(ctx, tx.Hash())
		if err == nil && receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, utils.NewAppError(utils.ErrCodeTransaction, "Transaction reverted", tx.Hash().Hex())
			}
			m.logger.WithFields(logrus.Fields{
				"tx_hash":  tx.Hash().Hex(),
				"block":    receipt.BlockNumber,
				"gas_used": receipt.GasUsed,
			}).Info("Transaction mined")
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			m.logger.WithError(err).WithField("tx_hash", tx.Hash().Hex()).Warn("Failed to fetch receipt")
		}

		select {
		case <-ctx.Done():
			return nil, utils.NewAppError(utils.ErrCodeTransaction, "Timed out waiting for receipt", tx.Hash().Hex())
		case <-ticker.C:
		}
	}
}

func (m *Manager) nonce(ctx context.Context) (uint64, error) {
	pending, err := m.client.PendingNonceAt(ctx, m.from)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to get nonce", err.Error())
	}
	if m.nextNonce != nil && *m.nextNonce > pending {
		return *m.nextNonce, nil
	}
	return pending, nil
}

func (m *Manager) buildTx(ctx context.Context, nonce uint64, to *common.Address, data []byte, gasLimit uint64) (types.TxData, error) {
	head, err := m.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to get latest header", err.Error())
	}

	// Pre-London chains only take legacy transactions
	if head.BaseFee == nil {
		price, err := m.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to suggest gas price", err.Error())
		}
		return &types.LegacyTx{
			Nonce:    nonce,
			To:       to,
			Gas:      gasLimit,
			GasPrice: m.capFee(m.applySpeed(price)),
			Data:     data,
		}, nil
	}

	tip, err := m.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to suggest gas tip", err.Error())
	}
	tip = m.applySpeed(tip)

	feeCap := new(big.Int).Mul(head.BaseFee, big.NewInt(2))
	feeCap = m.capFee(feeCap.Add(feeCap, tip))
	if tip.Cmp(feeCap) > 0 {
		tip = new(big.Int).Set(feeCap)
	}

	return &types.DynamicFeeTx{
		ChainID:   m.chainID,
		Nonce:     nonce,
		To:        to,
		Gas:       gasLimit,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Data:      data,
	}, nil
}

func (m *Manager) applySpeed(v *big.Int) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(m.speed))
	return out.Div(out, big.NewInt(100))
}

func (m *Manager) capFee(v *big.Int) *big.Int {
	if m.maxFee.Sign() > 0 && v.Cmp(m.maxFee) > 0 {
		return new(big.Int).Set(m.maxFee)
	}
	return v
}
