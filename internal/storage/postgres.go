package storage

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

// PostgreSQLStorage implements Storage using PostgreSQL
type PostgreSQLStorage struct {
	sqlStore
	config     *StorageConfig
	migrations []*Migration
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		sqlStore: sqlStore{
			logger:   utils.ComponentLogger("storage").WithField("driver", "postgres"),
			numbered: true,
		},
		config:     config,
		migrations: GetPostgresMigrations(),
	}
}

// Connect establishes database connection
func (p *PostgreSQLStorage) Connect() error {
	db, err := sql.Open("postgres", p.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	db.SetMaxOpenConns(p.config.MaxConnections)
	db.SetMaxIdleConns(p.config.MaxConnections / 2)
	db.SetConnMaxIdleTime(p.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	p.db = db
	p.logger.Info("PostgreSQL database connected")
	return nil
}

// Migrate runs database migrations
func (p *PostgreSQLStorage) Migrate() error {
	return p.applyMigrations(p.migrations)
}

// GetStorageStats returns row counts and the database size
func (p *PostgreSQLStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	stats, err := p.storageStats(ctx)
	if err != nil {
		return nil, err
	}

	if err := p.db.QueryRowContext(ctx, "SELECT pg_database_size(current_database())").Scan(&stats.DatabaseSize); err != nil {
		p.logger.WithError(err).Debug("Failed to read database size")
	}
	return stats, nil
}
