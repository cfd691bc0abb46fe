package connection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/gamma-ops/internal/config"
	"github.com/smartdevs17/gamma-ops/internal/metrics"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// newRPCServer answers the handful of JSON-RPC methods the manager uses
func newRPCServer(t *testing.T, chainID string, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "eth_chainId":
			resp["result"] = chainID
		case "eth_blockNumber":
			resp["result"] = "0x10"
		case "eth_call":
			var msg map[string]any
			require.NoError(t, json.Unmarshal(req.Params[0], &msg))
			if msg["to"] == "0x000000000000000000000000000000000000dead" {
				resp["error"] = map[string]any{"code": 3, "message": "execution reverted"}
			} else {
				resp["result"] = "0x000000000000000000000000000000000000000000000000000000000000002a"
			}
		default:
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testNetworkConfig(urls ...string) *config.NetworkConfig {
	return &config.NetworkConfig{
		NodeURL:        urls[0],
		BackupNodes:    urls[1:],
		ChainID:        1337,
		RequestTimeout: 2 * time.Second,
		RetryAttempts:  2,
		RetryDelay:     10 * time.Millisecond,
	}
}

func init() {
	utils.InitLogger("error", "text", "stdout", "")
}

func TestHealthCheck(t *testing.T) {
	srv := newRPCServer(t, "0x539", nil)
	cm := NewConnectionManager(testNetworkConfig(srv.URL))
	defer cm.Close()

	require.NoError(t, cm.HealthCheck(context.Background()))
	assert.True(t, cm.IsConnected())

	stats := cm.Stats()
	assert.Equal(t, uint64(1337), stats.ChainID)
	assert.Equal(t, uint64(16), stats.LatestBlock)
	assert.Equal(t, srv.URL, stats.CurrentURL)
	assert.True(t, stats.IsHealthy)
}

func TestHealthCheckChainIDMismatch(t *testing.T) {
	srv := newRPCServer(t, "0x1", nil)
	cm := NewConnectionManager(testNetworkConfig(srv.URL))
	defer cm.Close()

	err := cm.HealthCheck(context.Background())
	require.Error(t, err)
	assert.True(t, utils.HasCode(err, utils.ErrCodeConnection))
	assert.False(t, cm.IsConnected())
}

func TestFailoverToBackup(t *testing.T) {
	backup := newRPCServer(t, "0x539", nil)
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	cm := NewConnectionManager(testNetworkConfig(deadURL, backup.URL))
	defer cm.Close()

	_, err := cm.GetClient(context.Background())
	require.NoError(t, err)
	assert.Equal(t, backup.URL, cm.Endpoint())
}

func TestConnectExhausted(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	cm := NewConnectionManager(testNetworkConfig(deadURL))
	_, err := cm.GetClient(context.Background())
	require.Error(t, err)
	assert.True(t, utils.HasCode(err, utils.ErrCodeConnection))
}

func TestChainClientCallContract(t *testing.T) {
	var calls int32
	srv := newRPCServer(t, "0x539", &calls)
	cm := NewConnectionManager(testNetworkConfig(srv.URL))
	defer cm.Close()

	pm := metrics.NewPrometheusMetrics(prometheus.NewRegistry())
	client := NewChainClient(cm, pm)

	to := common.HexToAddress("0x01")
	out, err := client.CallContract(context.Background(), ethereum.CallMsg{To: &to}, nil)
	require.NoError(t, err)
	require.Len(t, out, 32)
	assert.Equal(t, byte(42), out[31])

	dead := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	_, err = client.CallContract(context.Background(), ethereum.CallMsg{To: &dead}, nil)
	require.Error(t, err)
	assert.True(t, cm.IsConnected(), "a revert must not drop the connection")

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.RPCRequestsTotal.WithLabelValues(srv.URL, "eth_call", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.RPCRequestsTotal.WithLabelValues(srv.URL, "eth_call", "rejected")))
	assert.Greater(t, atomic.LoadInt32(&calls), int32(2))
}
