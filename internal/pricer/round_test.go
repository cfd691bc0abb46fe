package pricer

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rounds struct {
	latest uint64
	ts     map[uint64]uint64
	reads  int
}

func (r *rounds) LatestRound(ctx context.Context) (*big.Int, error) {
	return new(big.Int).SetUint64(r.latest), nil
}

func (r *rounds) GetTimestamp(ctx context.Context, id *big.Int) (*big.Int, error) {
	r.reads++
	return new(big.Int).SetUint64(r.ts[id.Uint64()]), nil
}

func TestFindExpiryRound(t *testing.T) {
	const expiry = 1000

	tests := []struct {
		name      string
		rounds    *rounds
		lookback  int
		wantRound uint64
		wantDepth int
		wantErr   error
	}{
		{
			name:      "latest is first round past expiry",
			rounds:    &rounds{latest: 5, ts: map[uint64]uint64{4: 990, 5: 1010}},
			wantRound: 5,
			wantDepth: 1,
		},
		{
			name:      "walks back to earliest round past expiry",
			rounds:    &rounds{latest: 5, ts: map[uint64]uint64{1: 900, 2: 999, 3: 1000, 4: 1200, 5: 1300}},
			wantRound: 3,
			wantDepth: 3,
		},
		{
			name:      "skips rounds without timestamp",
			rounds:    &rounds{latest: 6, ts: map[uint64]uint64{2: 950, 3: 1001, 5: 1100, 6: 1200}},
			wantRound: 3,
			wantDepth: 4,
		},
		{
			name:      "stops at round one",
			rounds:    &rounds{latest: 3, ts: map[uint64]uint64{1: 1001, 2: 1002, 3: 1003}},
			wantRound: 1,
			wantDepth: 2,
		},
		{
			name:    "latest round before expiry",
			rounds:  &rounds{latest: 3, ts: map[uint64]uint64{3: 999}},
			wantErr: ErrRoundNotPastExpiry,
		},
		{
			name:     "lookback exhausted",
			rounds:   &rounds{latest: 10, ts: map[uint64]uint64{1: 1, 6: 1006, 7: 1007, 8: 1008, 9: 1009, 10: 1010}},
			lookback: 3,
			wantErr:  ErrLookbackExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			round, depth, err := FindExpiryRound(context.Background(), tt.rounds, big.NewInt(expiry), tt.lookback)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRound, round.Uint64())
			assert.Equal(t, tt.wantDepth, depth)
		})
	}
}

func TestFindExpiryRoundHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &rounds{latest: 3, ts: map[uint64]uint64{2: 1001, 3: 1002}}
	_, _, err := FindExpiryRound(ctx, r, big.NewInt(1000), 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, r.reads)
}
