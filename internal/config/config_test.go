package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
network:
  name: mainnet
  node_url: https://mainnet.example.org
  chain_id: 1
gamma:
  address_book: "0x1E31F2DCBad4dc572004Eae6355fB18F9615cBe4"
  strike_asset: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
keeper:
  interval: 2m
  bots:
    - name: chainlink
      type: base
      assets:
        - asset: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
          pricer: "0x128cE9B4D97A6550905dE7d9Abc2b8C747b0996C"
          aggregator: "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"
    - name: yearn
      type: derived
      assets:
        - asset: "0xa258C4606Ca8206D8aA700cE2143D7db854D168c"
          pricer: "0x0D3bc4A5a8D3B8f1C4a6e16a5F6D0F96c1a2d6B7"
          underlying: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
migrations:
  networks:
    Mainnet:
      multisig: "0x638E5DA0EEbbA58c67567bcEb4Ab2dc8D34853FB"
      large_deploy_gas_limit: 20000000
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "mainnet", cfg.Network.Name)
	assert.Equal(t, int64(1), cfg.Network.ChainID)
	assert.Equal(t, 2*time.Minute, cfg.Keeper.Interval)
	require.Len(t, cfg.Keeper.Bots, 2)
	assert.Equal(t, BotTypeDerived, cfg.Keeper.Bots[1].Type)

	// defaults
	assert.Equal(t, 8, cfg.Keeper.ExpiryHour)
	assert.Equal(t, "Friday", cfg.Keeper.ExpiryWeekday)
	assert.Equal(t, 500, cfg.Keeper.MaxRoundLookback)
	assert.Equal(t, 30*time.Minute, cfg.Keeper.PendingTimeout)
	assert.Equal(t, uint64(1000000), cfg.Signer.GasLimit)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, 500, cfg.Subgraph.First)

	d, ok := cfg.Deployment("MAINNET")
	require.True(t, ok)
	assert.Equal(t, "0x638E5DA0EEbbA58c67567bcEb4Ab2dc8D34853FB", d.Multisig)
	assert.Equal(t, uint64(20000000), d.LargeDeployGasLimit)

	_, ok = cfg.Deployment("kovan")
	assert.False(t, ok)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("GAMMA_NODE_URL", "https://override.example.org")
	t.Setenv("GAMMA_PRIVATE_KEY", "0xabc")
	t.Setenv("GAMMA_OPS_KEEPER_DRY_RUN", "true")

	cfg, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)
	assert.Equal(t, "https://override.example.org", cfg.Network.NodeURL)
	assert.Equal(t, "0xabc", cfg.Signer.PrivateKey)
	assert.True(t, cfg.Keeper.DryRun)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no node", func(c *Config) { c.Network.NodeURL = "" }, "node URL"},
		{"no pending timeout", func(c *Config) { c.Keeper.PendingTimeout = 0 }, "pending timeout"},
		{"bad hour", func(c *Config) { c.Keeper.ExpiryHour = 24 }, "expiry hour"},
		{"bad weekday", func(c *Config) { c.Keeper.ExpiryWeekday = "Caturday" }, "weekday"},
		{"bad address book", func(c *Config) { c.Gamma.AddressBook = "0x1234" }, "address book"},
		{"bad bot type", func(c *Config) { c.Keeper.Bots[0].Type = "twap" }, "unknown type"},
		{"base without aggregator", func(c *Config) { c.Keeper.Bots[0].Assets[0].Aggregator = "" }, "aggregator"},
		{"derived without underlying", func(c *Config) { c.Keeper.Bots[1].Assets[0].Underlying = "" }, "underlying"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, testConfig))
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("friday")
	require.NoError(t, err)
	assert.Equal(t, time.Friday, d)

	_, err = ParseWeekday("Fri")
	assert.Error(t, err)
}
