// File: internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

// SQLiteStorage implements Storage using SQLite
type SQLiteStorage struct {
	sqlStore
	config     *StorageConfig
	migrations []*Migration
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		sqlStore:   sqlStore{logger: utils.ComponentLogger("storage").WithField("driver", "sqlite")},
		config:     config,
		migrations: GetSQLiteMigrations(),
	}
}

// Connect establishes database connection
func (s *SQLiteStorage) Connect() error {
	if s.config.ConnectionString != ":memory:" {
		dir := filepath.Dir(s.config.ConnectionString)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
			}
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	// A single writer avoids SQLITE_BUSY between the keeper and the API
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(s.config.MaxIdleTime)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set busy timeout", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")
	return nil
}

// Migrate runs database migrations
func (s *SQLiteStorage) Migrate() error {
	return s.applyMigrations(s.migrations)
}

// GetStorageStats returns row counts and the database file size
func (s *SQLiteStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	stats, err := s.storageStats(ctx)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()").
		Scan(&stats.DatabaseSize)
	if err != nil {
		s.logger.WithError(err).Debug("Failed to read database size")
		stats.DatabaseSize = 0
	}
	return stats, nil
}

// Vacuum optimizes the database
func (s *SQLiteStorage) Vacuum() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	if _, err := s.db.Exec("VACUUM"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to vacuum database", err.Error())
	}
	s.logger.WithFields(logrus.Fields{"path": s.config.ConnectionString}).Info("Database vacuum completed")
	return nil
}
