package connection

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/smartdevs17/gamma-ops/internal/metrics"
)

// ChainClient routes calls through the connection manager so every request
// uses the current node and is measured. It satisfies contracts.Caller and
// txmgr.Client.
type ChainClient struct {
	manager Manager
	metrics *metrics.PrometheusMetrics
}

// NewChainClient creates a client on top of manager. m may be nil.
func NewChainClient(manager Manager, m *metrics.PrometheusMetrics) *ChainClient {
	return &ChainClient{manager: manager, metrics: m}
}

func (cc *ChainClient) do(ctx context.Context, method string, fn func(*ethclient.Client) error) error {
	start := time.Now()
	client, err := cc.manager.GetClient(ctx)
	if err != nil {
		cc.record(method, "error", start)
		return err
	}

	err = fn(client)
	switch {
	case err == nil, errors.Is(err, ethereum.NotFound):
		cc.record(method, "success", start)
	case isTransportError(err):
		cc.manager.MarkFailed(err)
		cc.record(method, "error", start)
	default:
		// Reverts and other node-side rejections say nothing about the connection
		cc.record(method, "rejected", start)
	}
	return err
}

func (cc *ChainClient) record(method, status string, start time.Time) {
	if cc.metrics != nil {
		cc.metrics.RecordRPCRequest(cc.manager.Endpoint(), method, status, time.Since(start))
	}
}

// CallContract executes an eth_call at the latest block
func (cc *ChainClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := cc.do(ctx, "eth_call", func(c *ethclient.Client) error {
		var err error
		out, err = c.CallContract(ctx, msg, blockNumber)
		return err
	})
	return out, err
}

// PendingNonceAt returns the account nonce including pending transactions
func (cc *ChainClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := cc.do(ctx, "eth_getTransactionCount", func(c *ethclient.Client) error {
		var err error
		nonce, err = c.PendingNonceAt(ctx, account)
		return err
	})
	return nonce, err
}

// SuggestGasTipCap returns the node's priority fee suggestion
func (cc *ChainClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	var tip *big.Int
	err := cc.do(ctx, "eth_maxPriorityFeePerGas", func(c *ethclient.Client) error {
		var err error
		tip, err = c.SuggestGasTipCap(ctx)
		return err
	})
	return tip, err
}

// SuggestGasPrice returns the node's legacy gas price suggestion
func (cc *ChainClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := cc.do(ctx, "eth_gasPrice", func(c *ethclient.Client) error {
		var err error
		price, err = c.SuggestGasPrice(ctx)
		return err
	})
	return price, err
}

// HeaderByNumber returns a block header; nil means latest
func (cc *ChainClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var header *types.Header
	err := cc.do(ctx, "eth_getBlockByNumber", func(c *ethclient.Client) error {
		var err error
		header, err = c.HeaderByNumber(ctx, number)
		return err
	})
	return header, err
}

// SendTransaction broadcasts a signed transaction
func (cc *ChainClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return cc.do(ctx, "eth_sendRawTransaction", func(c *ethclient.Client) error {
		return c.SendTransaction(ctx, tx)
	})
}

// TransactionReceipt returns the receipt of a mined transaction
func (cc *ChainClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := cc.do(ctx, "eth_getTransactionReceipt", func(c *ethclient.Client) error {
		var err error
		receipt, err = c.TransactionReceipt(ctx, txHash)
		return err
	})
	return receipt, err
}

// isTransportError reports whether err came from the connection rather than
// from the node evaluating the request
func isTransportError(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
