package contractstest

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallContractEncodesReturns(t *testing.T) {
	oracle := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	asset := common.HexToAddress("0x00000000000000000000000000000000000000a2")
	chain := NewFakeChain(common.HexToAddress("0xd0"))
	chain.Return(oracle, GetExpiryPrice, big.NewInt(1850_00000000), true)

	input, err := GetExpiryPrice.EncodeArgs(asset, big.NewInt(1700000000))
	require.NoError(t, err)

	out, err := chain.CallContract(context.Background(), ethereum.CallMsg{To: &oracle, Data: input}, nil)
	require.NoError(t, err)

	var (
		price   *big.Int
		settled bool
	)
	require.NoError(t, GetExpiryPrice.DecodeReturns(out, &price, &settled))
	assert.Equal(t, big.NewInt(1850_00000000), price)
	assert.True(t, settled)
}

func TestCallContractWithoutHandler(t *testing.T) {
	addr := common.HexToAddress("0xa1")
	chain := NewFakeChain(common.HexToAddress("0xd0"))

	input, err := CallRestricted.EncodeArgs()
	require.NoError(t, err)

	_, err = chain.CallContract(context.Background(), ethereum.CallMsg{To: &addr, Data: input}, nil)
	assert.ErrorIs(t, err, ErrReverted)
}
