package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagersDoNotCollide(t *testing.T) {
	first := NewManager()
	second := NewManager()

	first.GetPrometheusMetrics().RecordPriceSubmission("WETH", "base", "sent")
	first.GetPrometheusMetrics().RecordPriceSubmission("WETH", "base", "sent")
	second.GetPrometheusMetrics().RecordPriceSubmission("WETH", "base", "failed")

	assert.Equal(t, 2.0, testutil.ToFloat64(first.GetPrometheusMetrics().PriceSubmissionsTotal.WithLabelValues("WETH", "base", "sent")))
	assert.Equal(t, 0.0, testutil.ToFloat64(second.GetPrometheusMetrics().PriceSubmissionsTotal.WithLabelValues("WETH", "base", "sent")))
}

func TestKeeperAndHealthMetrics(t *testing.T) {
	m := NewManager()
	pm := m.GetPrometheusMetrics()

	pm.RecordKeeperRun("success", 2*time.Second)
	pm.UpdateComponentHealth("keeper", true)
	pm.UpdateComponentHealth("storage", false)
	pm.UpdateLastPricedExpiry("0xweth", 1711699200)

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.KeeperRunsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.ComponentHealth.WithLabelValues("keeper")))
	assert.Equal(t, 0.0, testutil.ToFloat64(pm.ComponentHealth.WithLabelValues("storage")))
	assert.Equal(t, 1711699200.0, testutil.ToFloat64(pm.LastPricedExpiry.WithLabelValues("0xweth")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewManager()
	m.GetPrometheusMetrics().RecordMigration("mainnet", "2_deploy_contracts", "success")
	m.UpdateSystemMetrics()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `gamma_migrations_total{migration="2_deploy_contracts",network="mainnet",status="success"} 1`)
	assert.Contains(t, body, "gamma_goroutines")
	assert.Contains(t, body, "go_goroutines")
}
