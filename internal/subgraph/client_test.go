package subgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/gamma-ops/internal/config"
	"github.com/smartdevs17/gamma-ops/internal/metrics"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

const (
	weth = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	usdc = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
)

func otokenJSON(id string, expiry int64) map[string]any {
	return map[string]any{
		"id":              id,
		"strikeAsset":     map[string]any{"id": usdc},
		"underlyingAsset": map[string]any{"id": weth},
		"collateralAsset": map[string]any{"id": usdc},
		"isPut":           true,
		"expiryTimestamp": fmt.Sprint(expiry),
	}
}

func TestExpiredOtokensPages(t *testing.T) {
	var requests []graphqlRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphqlRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		requests = append(requests, req)

		var rows []any
		switch req.Variables["lastID"] {
		case "":
			rows = []any{otokenJSON("0x01", 1611907200), otokenJSON("0x02", 1612512000)}
		case "0x02":
			rows = []any{otokenJSON("0x03", 1612512000)}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"otokens": rows}})
	}))
	defer srv.Close()

	m := metrics.NewManager().GetPrometheusMetrics()
	c := NewClient(&config.SubgraphConfig{URL: srv.URL, First: 2, Timeout: time.Second})
	c.SetMetrics(m)

	now := time.Unix(1700000000, 0)
	otokens, err := c.ExpiredOtokens(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, otokens, 3)

	assert.Equal(t, "0x03", otokens[2].ID)
	assert.Equal(t, weth, otokens[0].Underlying)
	assert.Equal(t, usdc, otokens[0].Strike)
	assert.True(t, otokens[0].IsPut)
	assert.Equal(t, int64(1611907200), otokens[0].ExpiryTimestamp)

	require.Len(t, requests, 2)
	assert.Equal(t, "1700000000", requests[0].Variables["now"])
	assert.Equal(t, float64(2), requests[0].Variables["first"])
	assert.Contains(t, requests[0].Query, "expiryTimestamp_lt")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SubgraphRequestsTotal.WithLabelValues("success")))
}

func TestQueryGraphQLErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"Type Query has no field otokenz"}]}`))
	}))
	defer srv.Close()

	m := metrics.NewManager().GetPrometheusMetrics()
	c := NewClient(&config.SubgraphConfig{URL: srv.URL})
	c.SetMetrics(m)

	_, err := c.ExpiredOtokens(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no field otokenz")
	assert.True(t, utils.HasCode(err, utils.ErrCodeExternal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubgraphRequestsTotal.WithLabelValues("error")))
}

func TestQueryHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "indexer unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(&config.SubgraphConfig{URL: srv.URL})
	err := c.Query(context.Background(), "{ _meta { block { number } } }", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status: 502")
}

func TestOtokenTouches(t *testing.T) {
	o := Otoken{Underlying: weth, Strike: usdc, Collateral: weth}
	assert.True(t, o.Touches("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"))
	assert.True(t, o.Touches(usdc))
	assert.False(t, o.Touches("0x2260fac5e5542a773aa44fbcfedf7c193bc2c599"))
}
