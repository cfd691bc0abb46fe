package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for gamma-ops
type PrometheusMetrics struct {
	// Keeper metrics
	KeeperRunsTotal       *prometheus.CounterVec
	KeeperRunDuration     prometheus.Histogram
	AssetChecksTotal      *prometheus.CounterVec
	PriceSubmissionsTotal *prometheus.CounterVec
	RoundLookbackDepth    prometheus.Histogram
	LastPricedExpiry      *prometheus.GaugeVec
	AssetsTracked         *prometheus.GaugeVec

	// Connection and transaction metrics
	ConnectionErrorsTotal *prometheus.CounterVec
	RPCRequestsTotal      *prometheus.CounterVec
	RPCRequestDuration    *prometheus.HistogramVec
	TransactionsTotal     *prometheus.CounterVec

	// Migration metrics
	MigrationsTotal       *prometheus.CounterVec
	SubgraphRequestsTotal *prometheus.CounterVec

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec
	DatabaseConnections       prometheus.Gauge

	// Notification metrics
	NotificationsSentTotal    *prometheus.CounterVec
	NotificationFailuresTotal *prometheus.CounterVec
	NotificationDuration      *prometheus.HistogramVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates all metrics and registers them with reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		KeeperRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamma_keeper_runs_total",
				Help: "Total number of keeper runs by outcome",
			},
			[]string{"outcome"},
		),

		KeeperRunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gamma_keeper_run_duration_seconds",
				Help:    "Time spent in a single keeper run",
				Buckets: prometheus.DefBuckets,
			},
		),

		AssetChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamma_asset_checks_total",
				Help: "Total number of asset expiry price checks by result",
			},
			[]string{"kind", "result"},
		),

		PriceSubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamma_price_submissions_total",
				Help: "Total number of expiry price submissions",
			},
			[]string{"asset", "kind", "status"},
		),

		RoundLookbackDepth: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gamma_round_lookback_depth",
				Help:    "Number of aggregator rounds walked back to find the expiry round",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500},
			},
		),

		LastPricedExpiry: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gamma_last_priced_expiry_timestamp",
				Help: "Latest expiry timestamp a price was submitted for",
			},
			[]string{"asset"},
		),

		AssetsTracked: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gamma_assets_tracked",
				Help: "Number of assets the keeper prices",
			},
			[]string{"kind"},
		),

		ConnectionErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamma_connection_errors_total",
				Help: "Total number of connection errors to Ethereum nodes",
			},
			[]string{"endpoint", "error_type"},
		),

		RPCRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamma_rpc_requests_total",
				Help: "Total number of RPC requests made to Ethereum nodes",
			},
			[]string{"endpoint", "method", "status"},
		),

		RPCRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gamma_rpc_request_duration_seconds",
				Help:    "Duration of RPC requests to Ethereum nodes",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "method"},
		),

		TransactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamma_transactions_total",
				Help: "Total number of transactions by status",
			},
			[]string{"status"},
		),

		MigrationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamma_migrations_total",
				Help: "Total number of migration steps run",
			},
			[]string{"network", "migration", "status"},
		),

		SubgraphRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamma_subgraph_requests_total",
				Help: "Total number of subgraph queries",
			},
			[]string{"status"},
		),

		DatabaseOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamma_database_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gamma_database_operation_duration_seconds",
				Help:    "Duration of database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		DatabaseConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gamma_database_connections",
				Help: "Number of open database connections",
			},
		),

		NotificationsSentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamma_notifications_sent_total",
				Help: "Total number of notifications sent",
			},
			[]string{"channel", "type"},
		),

		NotificationFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamma_notification_failures_total",
				Help: "Total number of failed notifications",
			},
			[]string{"channel", "type", "error"},
		),

		NotificationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gamma_notification_duration_seconds",
				Help:    "Duration of notification delivery",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel", "type"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamma_http_requests_total",
				Help: "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gamma_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gamma_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gamma_component_health",
				Help: "Health status of application components (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gamma_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gamma_goroutines",
				Help: "Number of running goroutines",
			},
		),
	}
}

// RecordKeeperRun records a finished keeper run
func (m *PrometheusMetrics) RecordKeeperRun(outcome string, duration time.Duration) {
	m.KeeperRunsTotal.WithLabelValues(outcome).Inc()
	m.KeeperRunDuration.Observe(duration.Seconds())
}

// RecordAssetCheck records the result of checking one asset
func (m *PrometheusMetrics) RecordAssetCheck(kind, result string) {
	m.AssetChecksTotal.WithLabelValues(kind, result).Inc()
}

// RecordPriceSubmission records an expiry price submission attempt
func (m *PrometheusMetrics) RecordPriceSubmission(asset, kind, status string) {
	m.PriceSubmissionsTotal.WithLabelValues(asset, kind, status).Inc()
}

// RecordRoundLookback records how far back the round search walked
func (m *PrometheusMetrics) RecordRoundLookback(depth int) {
	m.RoundLookbackDepth.Observe(float64(depth))
}

// UpdateLastPricedExpiry records the latest expiry priced for asset
func (m *PrometheusMetrics) UpdateLastPricedExpiry(asset string, expiry int64) {
	m.LastPricedExpiry.WithLabelValues(asset).Set(float64(expiry))
}

// UpdateAssetsTracked sets the number of tracked assets of kind
func (m *PrometheusMetrics) UpdateAssetsTracked(kind string, count int) {
	m.AssetsTracked.WithLabelValues(kind).Set(float64(count))
}

// RecordConnectionError records a connection error
func (m *PrometheusMetrics) RecordConnectionError(endpoint, errorType string) {
	m.ConnectionErrorsTotal.WithLabelValues(endpoint, errorType).Inc()
}

// RecordRPCRequest records an RPC request
func (m *PrometheusMetrics) RecordRPCRequest(endpoint, method, status string, duration time.Duration) {
	m.RPCRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
	m.RPCRequestDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// RecordTransaction records a transaction outcome
func (m *PrometheusMetrics) RecordTransaction(status string) {
	m.TransactionsTotal.WithLabelValues(status).Inc()
}

// RecordMigration records a migration step
func (m *PrometheusMetrics) RecordMigration(network, migration, status string) {
	m.MigrationsTotal.WithLabelValues(network, migration, status).Inc()
}

// RecordSubgraphRequest records a subgraph query
func (m *PrometheusMetrics) RecordSubgraphRequest(status string) {
	m.SubgraphRequestsTotal.WithLabelValues(status).Inc()
}

// RecordDatabaseOperation records a database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// UpdateDatabaseConnections updates the database connections metric
func (m *PrometheusMetrics) UpdateDatabaseConnections(count int) {
	m.DatabaseConnections.Set(float64(count))
}

// RecordNotificationSent records a sent notification
func (m *PrometheusMetrics) RecordNotificationSent(channel, notificationType string, duration time.Duration) {
	m.NotificationsSentTotal.WithLabelValues(channel, notificationType).Inc()
	m.NotificationDuration.WithLabelValues(channel, notificationType).Observe(duration.Seconds())
}

// RecordNotificationFailure records a failed notification
func (m *PrometheusMetrics) RecordNotificationFailure(channel, notificationType, errorType string) {
	m.NotificationFailuresTotal.WithLabelValues(channel, notificationType, errorType).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the application uptime metric
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates the health status of a component
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateMemoryUsage updates the memory usage metric
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine count metric
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}
