// File: internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/gamma-ops/internal/models"
)

// Storage defines the persistence operations of the keeper and migrations
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Asset registry
	SaveAsset(ctx context.Context, asset *models.Asset) error
	GetAsset(ctx context.Context, bot, address string) (*models.Asset, error)
	ListAssets(ctx context.Context, filter models.AssetFilter) ([]*models.Asset, error)
	DeleteAsset(ctx context.Context, bot, address string) error

	// Price submissions
	SaveSubmission(ctx context.Context, submission *models.PriceSubmission) error
	UpdateSubmissionStatus(ctx context.Context, id, status, txHash string, errMsg *string) error
	GetSubmissions(ctx context.Context, filter models.SubmissionFilter) ([]*models.PriceSubmission, error)
	FindRecentSubmission(ctx context.Context, asset string, expiry int64, since time.Time) (*models.PriceSubmission, error)

	// Deployments and the migration journal
	SaveDeployment(ctx context.Context, deployment *models.Deployment) error
	GetDeployment(ctx context.Context, network, name string) (*models.Deployment, error)
	GetDeployments(ctx context.Context, network string) ([]*models.Deployment, error)
	StartMigration(ctx context.Context, record *models.MigrationRecord) error
	FinishMigration(ctx context.Context, network string, number int, status string, errMsg *string) error
	GetMigrations(ctx context.Context, network string) ([]*models.MigrationRecord, error)
	LastCompletedMigration(ctx context.Context, network string) (int, error)

	// Operational log
	LogEvent(ctx context.Context, eventType string, data map[string]interface{}) error
	GetLogsByType(ctx context.Context, eventType string, limit int) ([]*models.LogEntry, error)

	// Statistics and maintenance
	GetStorageStats(ctx context.Context) (*StorageStats, error)
	Cleanup(ctx context.Context, retentionDays int) error
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalAssets        int64      `json:"total_assets"`
	TotalSubmissions   int64      `json:"total_submissions"`
	FailedSubmissions  int64      `json:"failed_submissions"`
	TotalDeployments   int64      `json:"total_deployments"`
	TotalLogs          int64      `json:"total_logs"`
	LatestSubmission   *time.Time `json:"latest_submission,omitempty"`
	LatestPricedExpiry int64      `json:"latest_priced_expiry"`
	DatabaseSize       int64      `json:"database_size_bytes"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}
