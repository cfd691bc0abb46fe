package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/gamma-ops/internal/metrics"
	"github.com/smartdevs17/gamma-ops/internal/models"
)

// StorageWithMetrics wraps a storage implementation with metrics on the
// keeper's hot path
type StorageWithMetrics struct {
	Storage
	metrics *metrics.PrometheusMetrics
}

// NewStorageWithMetrics creates a storage wrapper with metrics
func NewStorageWithMetrics(storage Storage, m *metrics.PrometheusMetrics) *StorageWithMetrics {
	return &StorageWithMetrics{
		Storage: storage,
		metrics: m,
	}
}

func (s *StorageWithMetrics) observe(operation, table string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordDatabaseOperation(operation, table, status, time.Since(start))
}

// SaveAsset saves an asset and records metrics
func (s *StorageWithMetrics) SaveAsset(ctx context.Context, asset *models.Asset) error {
	start := time.Now()
	err := s.Storage.SaveAsset(ctx, asset)
	s.observe("upsert", "assets", start, err)
	return err
}

// ListAssets lists assets and records metrics
func (s *StorageWithMetrics) ListAssets(ctx context.Context, filter models.AssetFilter) ([]*models.Asset, error) {
	start := time.Now()
	assets, err := s.Storage.ListAssets(ctx, filter)
	s.observe("select", "assets", start, err)
	return assets, err
}

// SaveSubmission saves a submission and records metrics
func (s *StorageWithMetrics) SaveSubmission(ctx context.Context, sub *models.PriceSubmission) error {
	start := time.Now()
	err := s.Storage.SaveSubmission(ctx, sub)
	s.observe("insert", "price_submissions", start, err)
	return err
}

// UpdateSubmissionStatus updates a submission and records metrics
func (s *StorageWithMetrics) UpdateSubmissionStatus(ctx context.Context, id, status, txHash string, errMsg *string) error {
	start := time.Now()
	err := s.Storage.UpdateSubmissionStatus(ctx, id, status, txHash, errMsg)
	s.observe("update", "price_submissions", start, err)
	return err
}

// FindRecentSubmission looks up a submission and records metrics
func (s *StorageWithMetrics) FindRecentSubmission(ctx context.Context, asset string, expiry int64, since time.Time) (*models.PriceSubmission, error) {
	start := time.Now()
	sub, err := s.Storage.FindRecentSubmission(ctx, asset, expiry, since)
	s.observe("select", "price_submissions", start, err)
	return sub, err
}

// SaveDeployment saves a deployment and records metrics
func (s *StorageWithMetrics) SaveDeployment(ctx context.Context, d *models.Deployment) error {
	start := time.Now()
	err := s.Storage.SaveDeployment(ctx, d)
	s.observe("upsert", "deployments", start, err)
	return err
}
