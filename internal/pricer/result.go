package pricer

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/gamma-ops/internal/models"
)

// Actions taken for an asset during a run
const (
	ActionSubmitted      = "submitted"
	ActionDryRun         = "dry_run"
	ActionFailed         = "failed"
	ActionSkipPriced     = "skip_priced"
	ActionSkipLocked     = "skip_locked"
	ActionSkipRound      = "skip_round"
	ActionSkipUnderlying = "skip_underlying"
	ActionSkipPending    = "skip_pending"
)

// Outcome is what a run did for one asset
type Outcome struct {
	Asset  *models.Asset `json:"asset"`
	Action string        `json:"action"`
	Reason string        `json:"reason,omitempty"`
	Round  *big.Int      `json:"round_id,omitempty"`
	TxHash common.Hash   `json:"tx_hash,omitempty"`
	Err    error         `json:"-"`
}

// Result summarizes a run
type Result struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Skipped    bool           `json:"skipped"`
	Expiry     time.Time      `json:"expiry"`
	Oracle     common.Address `json:"oracle"`
	Outcomes   []Outcome      `json:"outcomes"`
}

// Count returns the number of outcomes with action
func (r *Result) Count(action string) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Action == action {
			n++
		}
	}
	return n
}

// Outcome returns the outcome for the asset address, if any
func (r *Result) Outcome(asset string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Asset != nil && o.Asset.Address == asset {
			return o, true
		}
	}
	return Outcome{}, false
}
