package txmgr

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/gamma-ops/internal/config"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

type fakeClient struct {
	mu       sync.Mutex
	pending  uint64
	baseFee  *big.Int
	tip      *big.Int
	price    *big.Int
	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
}

func (f *fakeClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.pending, nil
}

func (f *fakeClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.tip), nil
}

func (f *fakeClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.price), nil
}

func (f *fakeClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(100), BaseFee: f.baseFee}, nil
}

func (f *fakeClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[txHash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(params.GWei))
}

func newTestManager(t *testing.T, client Client, speed string) *Manager {
	t.Helper()
	m, err := NewManager(client, 1, &config.SignerConfig{
		PrivateKey: "0x" + testKey,
		Speed:      speed,
		MaxFeeGwei: 500,
	})
	require.NoError(t, err)
	m.poll = 10 * time.Millisecond
	return m
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(&fakeClient{}, 1, &config.SignerConfig{})
	require.Error(t, err)
	assert.True(t, utils.HasCode(err, utils.ErrCodeConfiguration))

	_, err = NewManager(&fakeClient{}, 1, &config.SignerConfig{PrivateKey: "not-a-key"})
	require.Error(t, err)

	_, err = NewManager(&fakeClient{}, 1, &config.SignerConfig{
		PrivateKey: testKey,
		From:       "0x0000000000000000000000000000000000000001",
	})
	require.Error(t, err)
}

func TestSendTransactionDynamicFee(t *testing.T) {
	client := &fakeClient{pending: 7, baseFee: gwei(10), tip: gwei(2)}
	m := newTestManager(t, client, "fast")

	to := common.HexToAddress("0x789cD7AB3742e23Ce0952F6Bc3Eb3A73A0E08833")
	tx, err := m.SendTransaction(context.Background(), &to, []byte{0x01}, 1_000_000)
	require.NoError(t, err)

	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(1_000_000), tx.Gas())
	assert.Equal(t, gwei(3), tx.GasTipCap())
	assert.Equal(t, gwei(23), tx.GasFeeCap()) // 2*base + tip
	assert.Equal(t, big.NewInt(1), tx.ChainId())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), tx)
	require.NoError(t, err)
	assert.Equal(t, m.From(), sender)
}

func TestSendTransactionTracksNonceLocally(t *testing.T) {
	client := &fakeClient{pending: 3, baseFee: gwei(1), tip: gwei(1)}
	m := newTestManager(t, client, "average")
	to := common.HexToAddress("0x01")

	first, err := m.SendTransaction(context.Background(), &to, nil, 21000)
	require.NoError(t, err)
	second, err := m.SendTransaction(context.Background(), &to, nil, 21000)
	require.NoError(t, err)

	assert.Equal(t, uint64(3), first.Nonce())
	assert.Equal(t, uint64(4), second.Nonce())
}

func TestSendTransactionLegacyAndFeeCap(t *testing.T) {
	client := &fakeClient{price: gwei(400)}
	m := newTestManager(t, client, "fastest")
	to := common.HexToAddress("0x01")

	tx, err := m.SendTransaction(context.Background(), &to, nil, 21000)
	require.NoError(t, err)
	assert.Equal(t, uint8(types.LegacyTxType), tx.Type())
	assert.Equal(t, gwei(500), tx.GasPrice()) // 800 gwei capped at max fee
}

func TestDeployReturnsCreateAddress(t *testing.T) {
	client := &fakeClient{pending: 12, baseFee: gwei(1), tip: gwei(1)}
	m := newTestManager(t, client, "fast")

	addr, tx, err := m.Deploy(context.Background(), []byte{0x60, 0x80}, 3_000_000)
	require.NoError(t, err)
	assert.Nil(t, tx.To())
	assert.Equal(t, crypto.CreateAddress(m.From(), 12), addr)
}

func TestWaitMined(t *testing.T) {
	client := &fakeClient{pending: 0, baseFee: gwei(1), tip: gwei(1), receipts: map[common.Hash]*types.Receipt{}}
	m := newTestManager(t, client, "fast")
	to := common.HexToAddress("0x01")

	ok, err := m.SendTransaction(context.Background(), &to, nil, 21000)
	require.NoError(t, err)
	reverted, err := m.SendTransaction(context.Background(), &to, nil, 21000)
	require.NoError(t, err)

	client.mu.Lock()
	client.receipts[ok.Hash()] = &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(5)}
	client.receipts[reverted.Hash()] = &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(5)}
	client.mu.Unlock()

	receipt, err := m.WaitMined(context.Background(), ok)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(5), receipt.BlockNumber)

	_, err = m.WaitMined(context.Background(), reverted)
	require.Error(t, err)
	assert.True(t, utils.HasCode(err, utils.ErrCodeTransaction))

	m.timeout = 30 * time.Millisecond
	missing, err := m.SendTransaction(context.Background(), &to, nil, 21000)
	require.NoError(t, err)
	_, err = m.WaitMined(context.Background(), missing)
	require.Error(t, err)
}
