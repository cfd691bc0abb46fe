package main

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

func TestPrintOutput(t *testing.T) {
	v := map[string]interface{}{"number": 1, "name": "deploy_contracts"}

	var buf bytes.Buffer
	require.NoError(t, printOutput(&buf, "json", v))
	assert.JSONEq(t, `{"number":1,"name":"deploy_contracts"}`, buf.String())

	buf.Reset()
	require.NoError(t, printOutput(&buf, "yaml", v))
	assert.Contains(t, buf.String(), "name: deploy_contracts")

	err := printOutput(&buf, "xml", v)
	assert.True(t, utils.HasCode(err, utils.ErrCodeValidation))
}

func TestAddressFlags(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("bot", "", "")
	cmd.Flags().String("asset", "", "")
	require.NoError(t, cmd.Flags().Set("bot", "0x00000000000000000000000000000000000000b0"))

	_, err := addressFlags(cmd, "bot", "asset")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--asset")

	require.NoError(t, cmd.Flags().Set("asset", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"))
	addrs, err := addressFlags(cmd, "bot", "asset")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xb0"), addrs[0])

	require.NoError(t, cmd.Flags().Set("asset", "weth"))
	_, err = addressFlag(cmd, "asset")
	assert.Error(t, err)
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"keeper", "run"},
		{"keeper", "start"},
		{"migrate", "up"},
		{"migrate", "status"},
		{"ops", "transfer-owner"},
		{"ops", "set-call-restriction"},
		{"ops", "deploy-chainlink-pricer"},
		{"ops", "migrate-oracle"},
		{"ops", "deploy-pricer"},
		{"ops", "deploy-module"},
		{"ops", "whitelist-callee"},
		{"assets", "add"},
		{"assets", "remove"},
		{"assets", "list"},
		{"config", "validate"},
		{"version"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
