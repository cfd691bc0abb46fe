package connection

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/gamma-ops/internal/config"
	"github.com/smartdevs17/gamma-ops/internal/metrics"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

// Manager defines the connection manager interface
type Manager interface {
	GetClient(ctx context.Context) (*ethclient.Client, error)
	HealthCheck(ctx context.Context) error
	ChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	MarkFailed(err error)
	Endpoint() string
	IsConnected() bool
	Close() error
	Stats() ConnectionStats
}

// ConnectionManager keeps one live client, failing over across the
// configured node URLs
type ConnectionManager struct {
	config          *config.NetworkConfig
	urls            []string
	currentIndex    int
	client          *ethclient.Client
	mu              sync.RWMutex
	logger          *logrus.Entry
	stats           ConnectionStats
	lastHealthCheck time.Time
	isHealthy       bool
	metrics         *metrics.PrometheusMetrics
}

// ConnectionStats holds connection statistics
type ConnectionStats struct {
	TotalRequests   uint64    `json:"total_requests"`
	FailedRequests  uint64    `json:"failed_requests"`
	Reconnects      uint64    `json:"reconnects"`
	CurrentURL      string    `json:"current_url"`
	LastConnectedAt time.Time `json:"last_connected_at"`
	LastHealthCheck time.Time `json:"last_health_check"`
	IsHealthy       bool      `json:"is_healthy"`
	ChainID         uint64    `json:"chain_id"`
	LatestBlock     uint64    `json:"latest_block"`
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(cfg *config.NetworkConfig) *ConnectionManager {
	urls := append([]string{cfg.NodeURL}, cfg.BackupNodes...)

	return &ConnectionManager{
		config: cfg,
		urls:   urls,
		logger: utils.ComponentLogger("connection"),
		stats: ConnectionStats{
			CurrentURL: cfg.NodeURL,
		},
	}
}

// SetMetrics attaches Prometheus metrics
func (cm *ConnectionManager) SetMetrics(m *metrics.PrometheusMetrics) {
	cm.metrics = m
}

// GetClient returns the current client, connecting if needed
func (cm *ConnectionManager) GetClient(ctx context.Context) (*ethclient.Client, error) {
	cm.mu.Lock()
	client := cm.client
	stale := time.Since(cm.lastHealthCheck) > time.Minute
	cm.stats.TotalRequests++
	cm.mu.Unlock()

	if client == nil {
		return cm.connect(ctx)
	}

	if stale {
		if err := cm.quickHealthCheck(ctx, client); err != nil {
			cm.logger.WithError(err).Warn("Client health check failed, reconnecting")
			return cm.reconnect(ctx)
		}
		cm.mu.Lock()
		cm.lastHealthCheck = time.Now()
		cm.mu.Unlock()
	}

	return client, nil
}

// connect dials the configured nodes in order until one answers
func (cm *ConnectionManager) connect(ctx context.Context) (*ethclient.Client, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.client != nil {
		return cm.client, nil
	}

	attempts := cm.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	urls := cm.rotatedURLs()

	for attempt := 0; attempt < attempts; attempt++ {
		for _, url := range urls {
			log := cm.logger.WithFields(logrus.Fields{"url": url, "attempt": attempt + 1})
			log.Debug("Attempting connection")

			client, err := cm.dialWithTimeout(ctx, url)
			if err != nil {
				log.WithError(err).Warn("Connection failed")
				cm.stats.FailedRequests++
				cm.recordError(url, "dial_failed")
				continue
			}

			if err := cm.quickHealthCheck(ctx, client); err != nil {
				client.Close()
				log.WithError(err).Warn("Health check failed after connection")
				cm.recordError(url, "health_check_failed")
				continue
			}

			cm.client = client
			cm.currentIndex = cm.indexOf(url)
			cm.stats.CurrentURL = url
			cm.stats.LastConnectedAt = time.Now()
			cm.isHealthy = true
			cm.lastHealthCheck = time.Now()

			cm.logger.WithField("url", url).Info("Connected to Ethereum node")
			return client, nil
		}

		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cm.config.RetryDelay):
			}
		}
	}

	return nil, utils.NewAppError(utils.ErrCodeConnection, "Failed to connect to any Ethereum node",
		"All connection attempts exhausted")
}

// reconnect drops the current client and dials again starting at the next node
func (cm *ConnectionManager) reconnect(ctx context.Context) (*ethclient.Client, error) {
	cm.mu.Lock()
	if cm.client != nil {
		cm.client.Close()
		cm.client = nil
	}
	cm.isHealthy = false
	cm.currentIndex = (cm.currentIndex + 1) % len(cm.urls)
	cm.stats.Reconnects++
	cm.mu.Unlock()

	return cm.connect(ctx)
}

// MarkFailed drops the current client after a failed request so the next
// GetClient fails over
func (cm *ConnectionManager) MarkFailed(err error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.stats.FailedRequests++
	cm.isHealthy = false
	// Force a health check on the next GetClient
	cm.lastHealthCheck = time.Time{}
	cm.logger.WithError(err).Debug("Request failed, connection marked for re-check")
}

func (cm *ConnectionManager) dialWithTimeout(ctx context.Context, url string) (*ethclient.Client, error) {
	timeout := cm.config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return ethclient.DialContext(dialCtx, url)
}

func (cm *ConnectionManager) quickHealthCheck(ctx context.Context, client *ethclient.Client) error {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := client.ChainID(checkCtx)
	return err
}

// HealthCheck verifies the node answers and serves the configured chain
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	client, err := cm.GetClient(ctx)
	if err != nil {
		cm.setHealthy(false)
		return err
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		cm.MarkFailed(err)
		return utils.NewAppError(utils.ErrCodeConnection, "Failed to get chain ID", err.Error())
	}

	if cm.config.ChainID != 0 && chainID.Int64() != cm.config.ChainID {
		cm.setHealthy(false)
		return utils.NewAppError(utils.ErrCodeConnection, "Chain ID mismatch",
			fmt.Sprintf("expected %d, got %d", cm.config.ChainID, chainID.Int64()))
	}

	blockNumber, err := client.BlockNumber(ctx)
	if err != nil {
		cm.MarkFailed(err)
		return utils.NewAppError(utils.ErrCodeConnection, "Failed to get latest block", err.Error())
	}

	cm.mu.Lock()
	cm.stats.ChainID = chainID.Uint64()
	cm.stats.LatestBlock = blockNumber
	cm.stats.LastHealthCheck = time.Now()
	cm.stats.IsHealthy = true
	cm.lastHealthCheck = time.Now()
	cm.isHealthy = true
	url := cm.stats.CurrentURL
	cm.mu.Unlock()

	cm.logger.WithFields(logrus.Fields{
		"chain_id":     chainID.Uint64(),
		"latest_block": blockNumber,
		"url":          url,
	}).Debug("Health check passed")

	return nil
}

// ChainID returns the chain ID reported by the node
func (cm *ConnectionManager) ChainID(ctx context.Context) (*big.Int, error) {
	client, err := cm.GetClient(ctx)
	if err != nil {
		return nil, err
	}
	id, err := client.ChainID(ctx)
	if err != nil {
		cm.MarkFailed(err)
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to get chain ID", err.Error())
	}
	return id, nil
}

// LatestBlockNumber returns the latest block number
func (cm *ConnectionManager) LatestBlockNumber(ctx context.Context) (uint64, error) {
	client, err := cm.GetClient(ctx)
	if err != nil {
		return 0, err
	}

	blockNumber, err := client.BlockNumber(ctx)
	if err != nil {
		cm.MarkFailed(err)
		return 0, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to get block number", err.Error())
	}

	cm.mu.Lock()
	cm.stats.LatestBlock = blockNumber
	cm.mu.Unlock()

	return blockNumber, nil
}

// Endpoint returns the URL of the node currently in use
func (cm *ConnectionManager) Endpoint() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.stats.CurrentURL
}

// IsConnected returns whether the manager holds a healthy client
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.client != nil && cm.isHealthy
}

// Close closes the connection
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.client != nil {
		cm.client.Close()
		cm.client = nil
	}

	cm.isHealthy = false
	cm.logger.Info("Connection manager closed")
	return nil
}

// Stats returns connection statistics
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	stats := cm.stats
	stats.IsHealthy = cm.isHealthy
	return stats
}

func (cm *ConnectionManager) setHealthy(healthy bool) {
	cm.mu.Lock()
	cm.isHealthy = healthy
	cm.stats.IsHealthy = healthy
	cm.mu.Unlock()
}

func (cm *ConnectionManager) recordError(endpoint, errorType string) {
	if cm.metrics != nil {
		cm.metrics.RecordConnectionError(endpoint, errorType)
	}
}

// rotatedURLs returns all URLs starting from the current index
func (cm *ConnectionManager) rotatedURLs() []string {
	if cm.currentIndex > 0 && cm.currentIndex < len(cm.urls) {
		rotated := make([]string, 0, len(cm.urls))
		rotated = append(rotated, cm.urls[cm.currentIndex:]...)
		return append(rotated, cm.urls[:cm.currentIndex]...)
	}
	return cm.urls
}

func (cm *ConnectionManager) indexOf(url string) int {
	for i, u := range cm.urls {
		if u == url {
			return i
		}
	}
	return 0
}
