package keeper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/smartdevs17/gamma-ops/internal/metrics"
	"github.com/smartdevs17/gamma-ops/internal/models"
	"github.com/smartdevs17/gamma-ops/internal/pricer"
)

type fakeRunner struct {
	runs   int32
	result func() *pricer.Result
	err    error
	block  bool
	seen   [][]*models.Asset
	mu     sync.Mutex
}

func (r *fakeRunner) Run(ctx context.Context, assets []*models.Asset) (*pricer.Result, error) {
	atomic.AddInt32(&r.runs, 1)
	r.mu.Lock()
	r.seen = append(r.seen, assets)
	r.mu.Unlock()
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.result == nil {
		return &pricer.Result{Skipped: true}, r.err
	}
	return r.result(), r.err
}

func (r *fakeRunner) Runs() int {
	return int(atomic.LoadInt32(&r.runs))
}

type staticAssets struct {
	assets []*models.Asset
	err    error
}

func (s *staticAssets) ListAssets(ctx context.Context, filter models.AssetFilter) ([]*models.Asset, error) {
	return s.assets, s.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingNotifier) Notify(ctx context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, n.Event)
	return nil
}

var testAssets = []*models.Asset{
	{Bot: "chainlink", Kind: models.AssetKindBase, Address: "0xweth"},
	{Bot: "chainlink", Kind: models.AssetKindBase, Address: "0xwbtc"},
	{Bot: "yearn", Kind: models.AssetKindDerived, Address: "0xyvweth"},
}

func TestRunOnceRecordsStats(t *testing.T) {
	expiry := time.Date(2024, time.March, 29, 8, 0, 0, 0, time.UTC)
	runner := &fakeRunner{result: func() *pricer.Result {
		return &pricer.Result{
			Expiry: expiry,
			Outcomes: []pricer.Outcome{
				{Asset: testAssets[0], Action: pricer.ActionSubmitted},
				{Asset: testAssets[1], Action: pricer.ActionSkipLocked},
				{Asset: testAssets[2], Action: pricer.ActionSkipUnderlying},
			},
		}
	}}
	m := metrics.NewManager().GetPrometheusMetrics()
	k := New(runner, &staticAssets{assets: testAssets}, time.Minute, WithMetrics(m))

	result, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count(pricer.ActionSubmitted))
	assert.Len(t, runner.seen[0], 3)

	stats := k.GetStats()
	assert.Equal(t, uint64(1), stats.TotalRuns)
	assert.Equal(t, uint64(1), stats.Submissions)
	assert.Equal(t, uint64(2), stats.AssetsSkipped)
	require.NotNil(t, stats.LastExpiry)
	assert.Equal(t, expiry, *stats.LastExpiry)
	assert.Same(t, result, k.LastResult())
	assert.True(t, k.GetHealth().Healthy)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.KeeperRunsTotal.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AssetsTracked.WithLabelValues(models.AssetKindBase)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AssetsTracked.WithLabelValues(models.AssetKindDerived)))
}

func TestRunOnceFailureMarksUnhealthy(t *testing.T) {
	runner := &fakeRunner{err: errors.New("asset 0xweth: nonce too low")}
	notifier := &recordingNotifier{}
	m := metrics.NewManager().GetPrometheusMetrics()
	k := New(runner, &staticAssets{assets: testAssets}, time.Minute, WithNotifier(notifier), WithMetrics(m))

	_, err := k.RunOnce(context.Background())
	require.Error(t, err)

	health := k.GetHealth()
	assert.False(t, health.Healthy)
	require.Len(t, health.Issues, 1)
	assert.Contains(t, health.Issues[0], "nonce too low")
	assert.Equal(t, uint64(1), k.GetStats().FailedRuns)
	assert.Equal(t, []string{models.EventKeeperRunFailed}, notifier.events)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.KeeperRunsTotal.WithLabelValues("failed")))

	// A later good run clears the failure
	runner.err = nil
	_, err = k.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, k.GetHealth().Healthy)
	assert.Equal(t, uint64(2), k.GetStats().SkippedRuns)
}

func TestRunOnceAssetSourceError(t *testing.T) {
	runner := &fakeRunner{}
	k := New(runner, &staticAssets{err: errors.New("database is locked")}, time.Minute)

	_, err := k.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list assets")
	assert.Equal(t, 0, runner.Runs())
	assert.False(t, k.GetHealth().Healthy)
}

func TestStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := &fakeRunner{}
	k := New(runner, &staticAssets{assets: testAssets}, 10*time.Millisecond)

	require.NoError(t, k.Start(context.Background()))
	assert.True(t, k.IsRunning())
	assert.Error(t, k.Start(context.Background()))

	assert.Eventually(t, func() bool { return runner.Runs() >= 3 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, k.Stop())
	assert.False(t, k.IsRunning())
	require.NoError(t, k.Stop())

	runs := runner.Runs()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, runs, runner.Runs())
}

func TestStopCancelsRunInFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := &fakeRunner{block: true}
	k := New(runner, &staticAssets{}, time.Hour)

	require.NoError(t, k.Start(context.Background()))
	assert.Eventually(t, func() bool { return runner.Runs() == 1 }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		k.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, uint64(1), k.GetStats().FailedRuns)
}

func TestLoopStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	k := New(&fakeRunner{}, &staticAssets{}, 10*time.Millisecond)
	require.NoError(t, k.Start(ctx))

	cancel()
	require.NoError(t, k.Stop())
}
