package models

import "time"

// Submission statuses
const (
	SubmissionPending   = "pending"
	SubmissionConfirmed = "confirmed"
	SubmissionFailed    = "failed"
	SubmissionDryRun    = "dry_run"
)

// PriceSubmission records one setExpiryPriceInOracle transaction
type PriceSubmission struct {
	ID        string    `json:"id" db:"id"`
	RunID     string    `json:"run_id" db:"run_id"`
	Bot       string    `json:"bot" db:"bot"`
	Kind      string    `json:"kind" db:"kind"`
	Asset     string    `json:"asset" db:"asset"`
	Pricer    string    `json:"pricer" db:"pricer"`
	Expiry    int64     `json:"expiry" db:"expiry"`
	RoundID   string    `json:"round_id,omitempty" db:"round_id"`
	TxHash    string    `json:"tx_hash,omitempty" db:"tx_hash"`
	Status    string    `json:"status" db:"status"`
	Error     *string   `json:"error,omitempty" db:"error"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SubmissionFilter filters submission listings
type SubmissionFilter struct {
	Asset  string `json:"asset,omitempty"`
	Status string `json:"status,omitempty"`
	Expiry int64  `json:"expiry,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}
