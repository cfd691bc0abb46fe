package storage

// Migration is one schema step. Steps are idempotent and applied in order.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create assets table",
			SQL: `
				CREATE TABLE IF NOT EXISTS assets (
					id TEXT PRIMARY KEY,
					bot TEXT NOT NULL,
					kind TEXT NOT NULL,
					address TEXT NOT NULL,
					pricer TEXT NOT NULL,
					aggregator TEXT NOT NULL DEFAULT '',
					underlying TEXT NOT NULL DEFAULT '',
					collateral TEXT NOT NULL DEFAULT '',
					source TEXT NOT NULL,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_assets_bot_address ON assets(bot, address);
				CREATE INDEX IF NOT EXISTS idx_assets_kind ON assets(kind);
			`,
		},
		{
			Version:     "002",
			Description: "Create price submissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS price_submissions (
					id TEXT PRIMARY KEY,
					run_id TEXT NOT NULL,
					bot TEXT NOT NULL,
					kind TEXT NOT NULL,
					asset TEXT NOT NULL,
					pricer TEXT NOT NULL,
					expiry INTEGER NOT NULL,
					round_id TEXT NOT NULL DEFAULT '',
					tx_hash TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL,
					error TEXT,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_submissions_asset_expiry ON price_submissions(asset, expiry);
				CREATE INDEX IF NOT EXISTS idx_submissions_status ON price_submissions(status);
				CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON price_submissions(created_at);
			`,
		},
		{
			Version:     "003",
			Description: "Create deployments and migration journal tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS deployments (
					network TEXT NOT NULL,
					name TEXT NOT NULL,
					address TEXT NOT NULL,
					tx_hash TEXT NOT NULL DEFAULT '',
					migration INTEGER NOT NULL,
					created_at DATETIME NOT NULL,
					PRIMARY KEY (network, name)
				);

				CREATE TABLE IF NOT EXISTS migration_journal (
					network TEXT NOT NULL,
					number INTEGER NOT NULL,
					name TEXT NOT NULL,
					status TEXT NOT NULL,
					started_at DATETIME NOT NULL,
					completed_at DATETIME,
					error TEXT,
					PRIMARY KEY (network, number)
				);
			`,
		},
		{
			Version:     "004",
			Description: "Create logs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS logs (
					id TEXT PRIMARY KEY,
					type TEXT NOT NULL,
					data TEXT NOT NULL,
					created_at DATETIME NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_logs_type ON logs(type);
				CREATE INDEX IF NOT EXISTS idx_logs_created_at ON logs(created_at);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create assets table",
			SQL: `
				CREATE TABLE IF NOT EXISTS assets (
					id VARCHAR(36) PRIMARY KEY,
					bot VARCHAR(100) NOT NULL,
					kind VARCHAR(20) NOT NULL,
					address VARCHAR(42) NOT NULL,
					pricer VARCHAR(42) NOT NULL,
					aggregator VARCHAR(42) NOT NULL DEFAULT '',
					underlying VARCHAR(42) NOT NULL DEFAULT '',
					collateral VARCHAR(42) NOT NULL DEFAULT '',
					source VARCHAR(20) NOT NULL,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_assets_bot_address ON assets(bot, address);
				CREATE INDEX IF NOT EXISTS idx_assets_kind ON assets(kind);
			`,
		},
		{
			Version:     "002",
			Description: "Create price submissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS price_submissions (
					id VARCHAR(36) PRIMARY KEY,
					run_id VARCHAR(36) NOT NULL,
					bot VARCHAR(100) NOT NULL,
					kind VARCHAR(20) NOT NULL,
					asset VARCHAR(42) NOT NULL,
					pricer VARCHAR(42) NOT NULL,
					expiry BIGINT NOT NULL,
					round_id VARCHAR(80) NOT NULL DEFAULT '',
					tx_hash VARCHAR(66) NOT NULL DEFAULT '',
					status VARCHAR(20) NOT NULL,
					error TEXT,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_submissions_asset_expiry ON price_submissions(asset, expiry);
				CREATE INDEX IF NOT EXISTS idx_submissions_status ON price_submissions(status);
				CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON price_submissions(created_at);
			`,
		},
		{
			Version:     "003",
			Description: "Create deployments and migration journal tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS deployments (
					network VARCHAR(100) NOT NULL,
					name VARCHAR(100) NOT NULL,
					address VARCHAR(42) NOT NULL,
					tx_hash VARCHAR(66) NOT NULL DEFAULT '',
					migration INTEGER NOT NULL,
					created_at TIMESTAMPTZ NOT NULL,
					PRIMARY KEY (network, name)
				);

				CREATE TABLE IF NOT EXISTS migration_journal (
					network VARCHAR(100) NOT NULL,
					number INTEGER NOT NULL,
					name VARCHAR(100) NOT NULL,
					status VARCHAR(20) NOT NULL,
					started_at TIMESTAMPTZ NOT NULL,
					completed_at TIMESTAMPTZ,
					error TEXT,
					PRIMARY KEY (network, number)
				);
			`,
		},
		{
			Version:     "004",
			Description: "Create logs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS logs (
					id VARCHAR(36) PRIMARY KEY,
					type VARCHAR(100) NOT NULL,
					data TEXT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_logs_type ON logs(type);
				CREATE INDEX IF NOT EXISTS idx_logs_created_at ON logs(created_at);
			`,
		},
	}
}
