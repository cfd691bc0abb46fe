package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/gamma-ops/internal/models"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

// sqlStore holds the queries shared by the SQLite and PostgreSQL backends.
// Queries are written with ? placeholders and rebound for postgres.
type sqlStore struct {
	db       *sql.DB
	logger   *logrus.Entry
	numbered bool
}

func (s *sqlStore) rebind(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if s.db == nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *sqlStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if s.db == nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *sqlStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("Database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *sqlStore) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

func (s *sqlStore) applyMigrations(migrations []*Migration) error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	for _, migration := range migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Debug("Applying migration")

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	s.logger.WithField("count", len(migrations)).Info("Database migrations completed")
	return nil
}

// SaveAsset inserts or updates an asset keyed by (bot, address)
func (s *sqlStore) SaveAsset(ctx context.Context, asset *models.Asset) error {
	now := time.Now().UTC()
	if asset.ID == "" {
		asset.ID = utils.GenerateID()
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = now
	}
	asset.UpdatedAt = now
	asset.Address = utils.NormalizeAddress(asset.Address)
	asset.Pricer = utils.NormalizeAddress(asset.Pricer)

	_, err := s.exec(ctx, `
		INSERT INTO assets
		(id, bot, kind, address, pricer, aggregator, underlying, collateral, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (bot, address) DO UPDATE SET
			kind = excluded.kind,
			pricer = excluded.pricer,
			aggregator = excluded.aggregator,
			underlying = excluded.underlying,
			collateral = excluded.collateral,
			source = excluded.source,
			updated_at = excluded.updated_at
	`, asset.ID, asset.Bot, asset.Kind, asset.Address, asset.Pricer,
		normalizeOptional(asset.Aggregator), normalizeOptional(asset.Underlying), normalizeOptional(asset.Collateral),
		asset.Source, asset.CreatedAt, asset.UpdatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save asset", err.Error())
	}
	return nil
}

const assetColumns = `id, bot, kind, address, pricer, aggregator, underlying, collateral, source, created_at, updated_at`

func scanAsset(row interface{ Scan(...any) error }) (*models.Asset, error) {
	var a models.Asset
	err := row.Scan(&a.ID, &a.Bot, &a.Kind, &a.Address, &a.Pricer, &a.Aggregator,
		&a.Underlying, &a.Collateral, &a.Source, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

// GetAsset returns one asset of bot
func (s *sqlStore) GetAsset(ctx context.Context, bot, address string) (*models.Asset, error) {
	if s.db == nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	row := s.queryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE bot = ? AND address = ?`,
		bot, utils.NormalizeAddress(address))

	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Asset not found", bot+"/"+address)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get asset", err.Error())
	}
	return asset, nil
}

// ListAssets returns assets ordered by bot and creation time
func (s *sqlStore) ListAssets(ctx context.Context, filter models.AssetFilter) ([]*models.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE 1=1`
	var args []any
	if filter.Bot != "" {
		query += ` AND bot = ?`
		args = append(args, filter.Bot)
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, filter.Kind)
	}
	query += ` ORDER BY bot, created_at, address`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list assets", err.Error())
	}
	defer rows.Close()

	var assets []*models.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan asset", err.Error())
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

// DeleteAsset removes an asset from bot
func (s *sqlStore) DeleteAsset(ctx context.Context, bot, address string) error {
	result, err := s.exec(ctx, `DELETE FROM assets WHERE bot = ? AND address = ?`, bot, utils.NormalizeAddress(address))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete asset", err.Error())
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Asset not found", bot+"/"+address)
	}
	return nil
}

// SaveSubmission records a new price submission
func (s *sqlStore) SaveSubmission(ctx context.Context, sub *models.PriceSubmission) error {
	now := time.Now().UTC()
	if sub.ID == "" {
		sub.ID = utils.GenerateID()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	sub.Asset = utils.NormalizeAddress(sub.Asset)
	sub.Pricer = utils.NormalizeAddress(sub.Pricer)

	_, err := s.exec(ctx, `
		INSERT INTO price_submissions
		(id, run_id, bot, kind, asset, pricer, expiry, round_id, tx_hash, status, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sub.ID, sub.RunID, sub.Bot, sub.Kind, sub.Asset, sub.Pricer, sub.Expiry, sub.RoundID,
		sub.TxHash, sub.Status, sub.Error, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save submission", err.Error())
	}
	return nil
}

// UpdateSubmissionStatus sets the status of a submission. An empty txHash
// keeps the stored hash.
func (s *sqlStore) UpdateSubmissionStatus(ctx context.Context, id, status, txHash string, errMsg *string) error {
	result, err := s.exec(ctx, `
		UPDATE price_submissions
		SET status = ?, tx_hash = CASE WHEN ? = '' THEN tx_hash ELSE ? END, error = ?, updated_at = ?
		WHERE id = ?
	`, status, txHash, txHash, errMsg, time.Now().UTC(), id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update submission", err.Error())
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Submission not found", id)
	}
	return nil
}

const submissionColumns = `id, run_id, bot, kind, asset, pricer, expiry, round_id, tx_hash, status, error, created_at, updated_at`

func scanSubmission(row interface{ Scan(...any) error }) (*models.PriceSubmission, error) {
	var (
		sub    models.PriceSubmission
		errMsg sql.NullString
	)
	err := row.Scan(&sub.ID, &sub.RunID, &sub.Bot, &sub.Kind, &sub.Asset, &sub.Pricer, &sub.Expiry,
		&sub.RoundID, &sub.TxHash, &sub.Status, &errMsg, &sub.CreatedAt, &sub.UpdatedAt)
	if errMsg.Valid {
		sub.Error = &errMsg.String
	}
	return &sub, err
}

// GetSubmissions returns submissions, newest first
func (s *sqlStore) GetSubmissions(ctx context.Context, filter models.SubmissionFilter) ([]*models.PriceSubmission, error) {
	query := `SELECT ` + submissionColumns + ` FROM price_submissions WHERE 1=1`
	var args []any
	if filter.Asset != "" {
		query += ` AND asset = ?`
		args = append(args, utils.NormalizeAddress(filter.Asset))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Expiry != 0 {
		query += ` AND expiry = ?`
		args = append(args, filter.Expiry)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get submissions", err.Error())
	}
	defer rows.Close()

	var subs []*models.PriceSubmission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan submission", err.Error())
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// FindRecentSubmission returns the newest pending or confirmed submission
// for (asset, expiry) created after since, or nil when there is none
func (s *sqlStore) FindRecentSubmission(ctx context.Context, asset string, expiry int64, since time.Time) (*models.PriceSubmission, error) {
	subs, err := s.GetSubmissions(ctx, models.SubmissionFilter{Asset: asset, Expiry: expiry})
	if err != nil {
		return nil, err
	}
	for _, sub := range subs {
		if sub.Status != models.SubmissionPending && sub.Status != models.SubmissionConfirmed {
			continue
		}
		if sub.CreatedAt.After(since) {
			return sub, nil
		}
	}
	return nil, nil
}

// SaveDeployment records the address of a deployed contract, replacing a
// previous deployment of the same name
func (s *sqlStore) SaveDeployment(ctx context.Context, d *models.Deployment) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, `
		INSERT INTO deployments (network, name, address, tx_hash, migration, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (network, name) DO UPDATE SET
			address = excluded.address,
			tx_hash = excluded.tx_hash,
			migration = excluded.migration,
			created_at = excluded.created_at
	`, d.Network, d.Name, d.Address, d.TxHash, d.Migration, d.CreatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save deployment", err.Error())
	}
	return nil
}

func scanDeployment(row interface{ Scan(...any) error }) (*models.Deployment, error) {
	var d models.Deployment
	err := row.Scan(&d.Network, &d.Name, &d.Address, &d.TxHash, &d.Migration, &d.CreatedAt)
	return &d, err
}

// GetDeployment returns a named deployment on network
func (s *sqlStore) GetDeployment(ctx context.Context, network, name string) (*models.Deployment, error) {
	if s.db == nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	row := s.queryRow(ctx, `
		SELECT network, name, address, tx_hash, migration, created_at
		FROM deployments WHERE network = ? AND name = ?
	`, network, name)

	d, err := scanDeployment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Deployment not found", network+"/"+name)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get deployment", err.Error())
	}
	return d, nil
}

// GetDeployments returns the deployments of network, or of every network
// when network is empty
func (s *sqlStore) GetDeployments(ctx context.Context, network string) ([]*models.Deployment, error) {
	query := `SELECT network, name, address, tx_hash, migration, created_at FROM deployments`
	var args []any
	if network != "" {
		query += ` WHERE network = ?`
		args = append(args, network)
	}
	query += ` ORDER BY network, migration, created_at, name`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get deployments", err.Error())
	}
	defer rows.Close()

	var out []*models.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan deployment", err.Error())
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// StartMigration journals a migration as running
func (s *sqlStore) StartMigration(ctx context.Context, r *models.MigrationRecord) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	r.Status = models.MigrationRunning
	r.CompletedAt = nil
	r.Error = nil

	_, err := s.exec(ctx, `
		INSERT INTO migration_journal (network, number, name, status, started_at, completed_at, error)
		VALUES (?, ?, ?, ?, ?, NULL, NULL)
		ON CONFLICT (network, number) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			started_at = excluded.started_at,
			completed_at = NULL,
			error = NULL
	`, r.Network, r.Number, r.Name, r.Status, r.StartedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to journal migration", err.Error())
	}
	return nil
}

// FinishMigration records the outcome of a running migration
func (s *sqlStore) FinishMigration(ctx context.Context, network string, number int, status string, errMsg *string) error {
	result, err := s.exec(ctx, `
		UPDATE migration_journal SET status = ?, completed_at = ?, error = ?
		WHERE network = ? AND number = ?
	`, status, time.Now().UTC(), errMsg, network, number)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to finish migration", err.Error())
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Migration not journaled", fmt.Sprintf("%s/%d", network, number))
	}
	return nil
}

// GetMigrations returns the journal of network ordered by number
func (s *sqlStore) GetMigrations(ctx context.Context, network string) ([]*models.MigrationRecord, error) {
	query := `SELECT network, number, name, status, started_at, completed_at, error FROM migration_journal`
	var args []any
	if network != "" {
		query += ` WHERE network = ?`
		args = append(args, network)
	}
	query += ` ORDER BY network, number`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get migrations", err.Error())
	}
	defer rows.Close()

	var out []*models.MigrationRecord
	for rows.Next() {
		var (
			r         models.MigrationRecord
			completed sql.NullTime
			errMsg    sql.NullString
		)
		if err := rows.Scan(&r.Network, &r.Number, &r.Name, &r.Status, &r.StartedAt, &completed, &errMsg); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan migration", err.Error())
		}
		if completed.Valid {
			r.CompletedAt = &completed.Time
		}
		if errMsg.Valid {
			r.Error = &errMsg.String
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// LastCompletedMigration returns the highest migration number completed
// on network, zero when none
func (s *sqlStore) LastCompletedMigration(ctx context.Context, network string) (int, error) {
	if s.db == nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	var last sql.NullInt64
	err := s.queryRow(ctx, `
		SELECT MAX(number) FROM migration_journal WHERE network = ? AND status = ?
	`, network, models.MigrationCompleted).Scan(&last)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read migration journal", err.Error())
	}
	return int(last.Int64), nil
}

// LogEvent stores an operational log entry
func (s *sqlStore) LogEvent(ctx context.Context, eventType string, data map[string]interface{}) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal log data", err.Error())
	}

	_, err = s.exec(ctx, `INSERT INTO logs (id, type, data, created_at) VALUES (?, ?, ?, ?)`,
		utils.GenerateID(), eventType, string(dataJSON), time.Now().UTC())
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to store log entry", err.Error())
	}
	return nil
}

// GetLogsByType returns the newest log entries of eventType
func (s *sqlStore) GetLogsByType(ctx context.Context, eventType string, limit int) ([]*models.LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.query(ctx, `
		SELECT id, type, data, created_at FROM logs WHERE type = ? ORDER BY created_at DESC LIMIT ?
	`, eventType, limit)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get logs", err.Error())
	}
	defer rows.Close()

	var out []*models.LogEntry
	for rows.Next() {
		var (
			entry models.LogEntry
			data  string
		)
		if err := rows.Scan(&entry.ID, &entry.Type, &data, &entry.CreatedAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan log entry", err.Error())
		}
		if err := json.Unmarshal([]byte(data), &entry.Data); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to decode log data", err.Error())
		}
		out = append(out, &entry)
	}
	return out, rows.Err()
}

func (s *sqlStore) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	err := s.queryRow(ctx, query, args...).Scan(&n)
	return n, err
}

// storageStats fills the counters shared by both backends
func (s *sqlStore) storageStats(ctx context.Context) (*StorageStats, error) {
	if s.db == nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	stats := &StorageStats{}
	counters := []struct {
		dst   *int64
		query string
		args  []any
	}{
		{&stats.TotalAssets, `SELECT COUNT(*) FROM assets`, nil},
		{&stats.TotalSubmissions, `SELECT COUNT(*) FROM price_submissions`, nil},
		{&stats.FailedSubmissions, `SELECT COUNT(*) FROM price_submissions WHERE status = ?`, []any{models.SubmissionFailed}},
		{&stats.TotalDeployments, `SELECT COUNT(*) FROM deployments`, nil},
		{&stats.TotalLogs, `SELECT COUNT(*) FROM logs`, nil},
	}
	for _, c := range counters {
		n, err := s.count(ctx, c.query, c.args...)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get storage stats", err.Error())
		}
		*c.dst = n
	}

	var latestExpiry sql.NullInt64
	if err := s.queryRow(ctx, `SELECT MAX(expiry) FROM price_submissions WHERE status = ?`,
		models.SubmissionConfirmed).Scan(&latestExpiry); err == nil {
		stats.LatestPricedExpiry = latestExpiry.Int64
	}

	subs, err := s.GetSubmissions(ctx, models.SubmissionFilter{Limit: 1})
	if err == nil && len(subs) == 1 {
		stats.LatestSubmission = &subs[0].CreatedAt
	}

	return stats, nil
}

// Cleanup deletes log entries older than retentionDays
func (s *sqlStore) Cleanup(ctx context.Context, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	logs, err := s.logsOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, id := range logs {
		if _, err := s.exec(ctx, `DELETE FROM logs WHERE id = ?`, id); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to cleanup logs", err.Error())
		}
	}

	s.logger.WithFields(logrus.Fields{
		"logs_deleted":   len(logs),
		"retention_days": retentionDays,
	}).Info("Database cleanup completed")
	return nil
}

// logsOlderThan returns the IDs of log entries created before cutoff
func (s *sqlStore) logsOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.query(ctx, `SELECT id, created_at FROM logs`)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan logs", err.Error())
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var (
			id      string
			created time.Time
		)
		if err := rows.Scan(&id, &created); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan logs", err.Error())
		}
		if created.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}

func normalizeOptional(address string) string {
	if address == "" {
		return ""
	}
	return utils.NormalizeAddress(address)
}
