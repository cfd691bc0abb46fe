// Package contractstest provides an in-memory chain for exercising the
// contract wrappers without a node.
package contractstest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lmittmann/w3"
)

// ErrReverted is returned for calls and sends that have no handler
var ErrReverted = errors.New("execution reverted")

// CallHandler answers a read call. input is the full calldata.
type CallHandler func(input []byte) ([]any, error)

// SendHandler applies a transaction's effect. input is the full calldata.
type SendHandler func(input []byte) error

// Sent is a transaction recorded by the fake chain
type Sent struct {
	To       *common.Address
	Data     []byte
	GasLimit uint64
	Tx       *types.Transaction
}

type key struct {
	addr     common.Address
	selector [4]byte
}

// FakeChain implements contracts.Caller, contracts.Transactor and the
// deploy/wait surface used by migrations.
type FakeChain struct {
	mu       sync.Mutex
	from     common.Address
	nonce    uint64
	calls    map[key]handlerEntry
	sends    map[key]SendHandler
	sent     []Sent
	failTo   map[common.Address]error
	deployed map[common.Address][]byte
}

type handlerEntry struct {
	fn *w3.Func
	h  CallHandler
}

// NewFakeChain creates a fake chain whose transactions come from from
func NewFakeChain(from common.Address) *FakeChain {
	return &FakeChain{
		from:     from,
		calls:    make(map[key]handlerEntry),
		sends:    make(map[key]SendHandler),
		failTo:   make(map[common.Address]error),
		deployed: make(map[common.Address][]byte),
	}
}

func selectorOf(fn *w3.Func) [4]byte {
	var sel [4]byte
	copy(sel[:], fn.Selector[:])
	return sel
}

// Handle registers h for calls of fn at addr
func (c *FakeChain) Handle(addr common.Address, fn *w3.Func, h CallHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[key{addr, selectorOf(fn)}] = handlerEntry{fn: fn, h: h}
}

// Return registers a fixed result for calls of fn at addr
func (c *FakeChain) Return(addr common.Address, fn *w3.Func, returns ...any) {
	c.Handle(addr, fn, func([]byte) ([]any, error) { return returns, nil })
}

// OnSend registers an effect for transactions calling fn at addr
func (c *FakeChain) OnSend(addr common.Address, fn *w3.Func, h SendHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends[key{addr, selectorOf(fn)}] = h
}

// FailSends makes every transaction to addr fail with err
func (c *FakeChain) FailSends(addr common.Address, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failTo[addr] = err
}

// CallContract implements contracts.Caller
func (c *FakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, ErrReverted
	}
	var sel [4]byte
	copy(sel[:], msg.Data[:4])

	c.mu.Lock()
	entry, ok := c.calls[key{*msg.To, sel}]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: no handler for %x at %s", ErrReverted, sel, msg.To.Hex())
	}

	returns, err := entry.h(msg.Data)
	if err != nil {
		return nil, err
	}
	return entry.fn.Returns.Pack(returns...)
}

// From implements contracts.Transactor
func (c *FakeChain) From() common.Address {
	return c.from
}

// SendTransaction implements contracts.Transactor. A nil to records a deployment.
func (c *FakeChain) SendTransaction(ctx context.Context, to *common.Address, data []byte, gasLimit uint64) (*types.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if to != nil {
		if err, ok := c.failTo[*to]; ok {
			return nil, err
		}
		if len(data) >= 4 {
			var sel [4]byte
			copy(sel[:], data[:4])
			if h, ok := c.sends[key{*to, sel}]; ok {
				if err := h(data); err != nil {
					return nil, err
				}
			}
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    c.nonce,
		To:       to,
		Gas:      gasLimit,
		GasPrice: big.NewInt(1),
		Data:     data,
	})
	if to == nil {
		c.deployed[crypto.CreateAddress(c.from, c.nonce)] = data
	}
	c.nonce++
	c.sent = append(c.sent, Sent{To: to, Data: data, GasLimit: gasLimit, Tx: tx})
	return tx, nil
}

// Deploy records init code and returns the CREATE address
func (c *FakeChain) Deploy(ctx context.Context, initCode []byte, gasLimit uint64) (common.Address, *types.Transaction, error) {
	tx, err := c.SendTransaction(ctx, nil, initCode, gasLimit)
	if err != nil {
		return common.Address{}, nil, err
	}
	return crypto.CreateAddress(c.from, tx.Nonce()), tx, nil
}

// WaitMined returns a successful receipt for any recorded transaction
func (c *FakeChain) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sent {
		if s.Tx.Hash() == tx.Hash() {
			receipt := &types.Receipt{
				Status:      types.ReceiptStatusSuccessful,
				TxHash:      tx.Hash(),
				BlockNumber: big.NewInt(int64(tx.Nonce()) + 1),
				GasUsed:     tx.Gas() / 2,
			}
			if tx.To() == nil {
				receipt.ContractAddress = crypto.CreateAddress(c.from, tx.Nonce())
			}
			return receipt, nil
		}
	}
	return nil, ethereum.NotFound
}

// Sent returns every recorded transaction
func (c *FakeChain) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// SentTo returns the recorded transactions calling fn at addr
func (c *FakeChain) SentTo(addr common.Address, fn *w3.Func) []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Sent
	for _, s := range c.sent {
		if s.To != nil && *s.To == addr && len(s.Data) >= 4 && bytes.Equal(s.Data[:4], fn.Selector[:]) {
			out = append(out, s)
		}
	}
	return out
}

// Deployed returns the init code recorded for a deployment at addr
func (c *FakeChain) Deployed(addr common.Address) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	code, ok := c.deployed[addr]
	return code, ok
}
