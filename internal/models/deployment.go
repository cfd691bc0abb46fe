package models

import "time"

// Deployment is a contract address produced by a migration
type Deployment struct {
	Network   string    `json:"network" db:"network"`
	Name      string    `json:"name" db:"name"`
	Address   string    `json:"address" db:"address"`
	TxHash    string    `json:"tx_hash,omitempty" db:"tx_hash"`
	Migration int       `json:"migration" db:"migration"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Migration journal statuses
const (
	MigrationRunning   = "running"
	MigrationCompleted = "completed"
	MigrationFailed    = "failed"
)

// MigrationRecord journals one migration run on a network
type MigrationRecord struct {
	Network     string     `json:"network" db:"network"`
	Number      int        `json:"number" db:"number"`
	Name        string     `json:"name" db:"name"`
	Status      string     `json:"status" db:"status"`
	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	Error       *string    `json:"error,omitempty" db:"error"`
}
