package pricer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

// DefaultMaxRoundLookback bounds the walk back from the latest round
const DefaultMaxRoundLookback = 500

var (
	// ErrRoundNotPastExpiry means the aggregator has not reported since expiry
	ErrRoundNotPastExpiry = errors.New("latest round is not past expiry")
	// ErrLookbackExhausted means no round before expiry was found within the lookback bound
	ErrLookbackExhausted = errors.New("round lookback exhausted")
)

// RoundReader reads Chainlink round data
type RoundReader interface {
	LatestRound(ctx context.Context) (*big.Int, error)
	GetTimestamp(ctx context.Context, roundID *big.Int) (*big.Int, error)
}

// FindExpiryRound returns the earliest round whose timestamp is at or after
// expiry, together with the number of rounds walked back. Rounds with a zero
// timestamp are skipped.
func FindExpiryRound(ctx context.Context, agg RoundReader, expiry *big.Int, maxLookback int) (*big.Int, int, error) {
	if maxLookback <= 0 {
		maxLookback = DefaultMaxRoundLookback
	}

	round, err := agg.LatestRound(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("latest round: %w", err)
	}
	ts, err := agg.GetTimestamp(ctx, round)
	if err != nil {
		return nil, 0, fmt.Errorf("round %s timestamp: %w", round, err)
	}
	if ts.Cmp(expiry) < 0 {
		return nil, 0, fmt.Errorf("%w: round %s at %s, expiry %s", ErrRoundNotPastExpiry, round, ts, expiry)
	}

	one := big.NewInt(1)
	depth := 0
	for j := new(big.Int).Sub(round, one); j.Sign() > 0; j.Sub(j, one) {
		if depth == maxLookback {
			return nil, depth, fmt.Errorf("%w: %d rounds back from %s", ErrLookbackExhausted, depth, round)
		}
		depth++

		if err := ctx.Err(); err != nil {
			return nil, depth, err
		}
		tsj, err := agg.GetTimestamp(ctx, j)
		if err != nil {
			return nil, depth, fmt.Errorf("round %s timestamp: %w", j, err)
		}
		if tsj.Sign() == 0 {
			continue
		}
		if tsj.Cmp(expiry) < 0 {
			break
		}
		round = new(big.Int).Set(j)
	}
	return round, depth, nil
}
