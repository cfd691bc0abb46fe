package pricer

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/gamma-ops/internal/contracts/contractstest"
	"github.com/smartdevs17/gamma-ops/internal/metrics"
	"github.com/smartdevs17/gamma-ops/internal/models"
	"github.com/smartdevs17/gamma-ops/internal/schedule"
	"github.com/smartdevs17/gamma-ops/internal/storage"
	"github.com/smartdevs17/gamma-ops/internal/storage/storagetest"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

var (
	addressBook = common.HexToAddress("0x1000000000000000000000000000000000000001")
	oracleAddr  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	botAddr     = common.HexToAddress("0x5000000000000000000000000000000000000005")

	weth       = common.HexToAddress("0x3000000000000000000000000000000000000003")
	wethPricer = common.HexToAddress("0x3100000000000000000000000000000000000003")
	wethAgg    = common.HexToAddress("0x3200000000000000000000000000000000000003")

	wbtc       = common.HexToAddress("0x4000000000000000000000000000000000000004")
	wbtcPricer = common.HexToAddress("0x4100000000000000000000000000000000000004")
	wbtcAgg    = common.HexToAddress("0x4200000000000000000000000000000000000004")

	yvweth       = common.HexToAddress("0x6000000000000000000000000000000000000006")
	yvwethPricer = common.HexToAddress("0x6100000000000000000000000000000000000006")
)

// Friday 2024-03-29, one hour after the 08:00 UTC expiry
var (
	friday = time.Date(2024, time.March, 29, 9, 0, 0, 0, time.UTC)
	expiry = uint64(1711699200)
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []*models.Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, n)
	return nil
}

func (r *recordingNotifier) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.events {
		out = append(out, n.Event)
	}
	return out
}

type fixture struct {
	chain   *contractstest.FakeChain
	oracle  *contractstest.Oracle
	wethAgg *contractstest.Aggregator
	wbtcAgg *contractstest.Aggregator
	store   storage.Storage
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	chain := contractstest.NewFakeChain(botAddr)
	chain.Return(addressBook, contractstest.GetOracle, oracleAddr)

	oracle := chain.NewOracle(oracleAddr)
	f := &fixture{
		chain:   chain,
		oracle:  oracle,
		wethAgg: chain.NewAggregator(wethAgg),
		wbtcAgg: chain.NewAggregator(wbtcAgg),
		store:   storagetest.New(t),
		now:     friday,
	}
	chain.NewChainlinkPricer(wethPricer, weth, botAddr, f.wethAgg, oracle)
	chain.NewChainlinkPricer(wbtcPricer, wbtc, botAddr, f.wbtcAgg, oracle)
	chain.NewDerivedPricer(yvwethPricer, yvweth, weth, 2, oracle)

	// Rounds around expiry; round 3 never reported
	f.wethAgg.AddRound(1, expiry-3600, 3400)
	f.wethAgg.AddRound(2, expiry-60, 3450)
	f.wethAgg.AddRound(3, 0, 0)
	f.wethAgg.AddRound(4, expiry+30, 3500)
	f.wethAgg.AddRound(5, expiry+120, 3510)

	f.wbtcAgg.AddRound(10, expiry-10, 70000)
	f.wbtcAgg.AddRound(11, expiry+10, 70100)
	return f
}

func (f *fixture) job(cfg Config, opts ...Option) *Job {
	opts = append(opts, WithClock(func() time.Time { return f.now }))
	return NewJob(cfg, addressBook, f.chain, f.chain, f.store, opts...)
}

func baseAsset(asset, pricer, agg common.Address) *models.Asset {
	return &models.Asset{
		Bot:        "chainlink",
		Kind:       models.AssetKindBase,
		Address:    utils.NormalizeAddress(asset.Hex()),
		Pricer:     utils.NormalizeAddress(pricer.Hex()),
		Aggregator: utils.NormalizeAddress(agg.Hex()),
	}
}

func derivedAsset() *models.Asset {
	return &models.Asset{
		Bot:        "yearn",
		Kind:       models.AssetKindDerived,
		Address:    utils.NormalizeAddress(yvweth.Hex()),
		Pricer:     utils.NormalizeAddress(yvwethPricer.Hex()),
		Underlying: utils.NormalizeAddress(weth.Hex()),
	}
}

func wethAsset() *models.Asset { return baseAsset(weth, wethPricer, wethAgg) }
func wbtcAsset() *models.Asset { return baseAsset(wbtc, wbtcPricer, wbtcAgg) }

func TestRunOutsideWindow(t *testing.T) {
	f := newFixture(t)
	f.oracle.SetLockingPeriodOver(weth, true)

	for _, now := range []time.Time{
		friday.Add(-2 * time.Hour),  // Friday 07:00
		friday.Add(-24 * time.Hour), // Thursday
		friday.Add(24 * time.Hour),  // Saturday
	} {
		f.now = now
		result, err := f.job(Config{}).Run(context.Background(), []*models.Asset{wethAsset()})
		require.NoError(t, err)
		assert.True(t, result.Skipped, now.String())
		assert.Empty(t, result.Outcomes)
	}
	assert.Empty(t, f.chain.Sent())
}

func TestRunSubmitsEarliestRoundAfterExpiry(t *testing.T) {
	f := newFixture(t)
	f.oracle.SetLockingPeriodOver(weth, true)
	notifier := &recordingNotifier{}
	m := metrics.NewManager().GetPrometheusMetrics()

	result, err := f.job(Config{}, WithNotifier(notifier), WithMetrics(m)).Run(context.Background(), []*models.Asset{wethAsset()})
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, int64(expiry), result.Expiry.Unix())
	assert.Equal(t, oracleAddr, result.Oracle)

	out, ok := result.Outcome(wethAsset().Address)
	require.True(t, ok)
	assert.Equal(t, ActionSubmitted, out.Action)
	assert.Equal(t, uint64(4), out.Round.Uint64())

	sent := f.chain.SentTo(wethPricer, contractstest.SetExpiryPriceWithRound)
	require.Len(t, sent, 1)
	assert.Equal(t, DefaultGasLimit, sent[0].GasLimit)
	assert.Equal(t, out.TxHash, sent[0].Tx.Hash())
	assert.Equal(t, int64(3500), f.oracle.Price(weth, expiry).Int64())

	subs, err := f.store.GetSubmissions(context.Background(), models.SubmissionFilter{Asset: wethAsset().Address})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, models.SubmissionPending, subs[0].Status)
	assert.Equal(t, "4", subs[0].RoundID)
	assert.Equal(t, int64(expiry), subs[0].Expiry)
	assert.Equal(t, sent[0].Tx.Hash().Hex(), subs[0].TxHash)
	assert.Equal(t, result.RunID, subs[0].RunID)

	assert.Equal(t, []string{models.EventPriceSubmitted}, notifier.Events())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AssetChecksTotal.WithLabelValues(models.AssetKindBase, ActionSubmitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PriceSubmissionsTotal.WithLabelValues(wethAsset().Address, models.AssetKindBase, models.SubmissionPending)))
}

func TestRunSkips(t *testing.T) {
	t.Run("locking period not over", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.job(Config{}).Run(context.Background(), []*models.Asset{wethAsset()})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Count(ActionSkipLocked))
		assert.Empty(t, f.chain.Sent())
	})

	t.Run("latest round not past expiry", func(t *testing.T) {
		f := newFixture(t)
		f.oracle.SetLockingPeriodOver(wbtc, true)
		f.wbtcAgg = f.chain.NewAggregator(wbtcAgg)
		f.wbtcAgg.AddRound(1, expiry-1, 69000)

		result, err := f.job(Config{}).Run(context.Background(), []*models.Asset{wbtcAsset()})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Count(ActionSkipRound))
		assert.Empty(t, f.chain.Sent())
	})

	t.Run("underlying price not found", func(t *testing.T) {
		f := newFixture(t)
		f.oracle.SetLockingPeriodOver(yvweth, true)

		result, err := f.job(Config{}).Run(context.Background(), []*models.Asset{derivedAsset()})
		require.NoError(t, err)
		out, ok := result.Outcome(derivedAsset().Address)
		require.True(t, ok)
		assert.Equal(t, ActionSkipUnderlying, out.Action)
		assert.Equal(t, "underlying price not found", out.Reason)
		assert.Empty(t, f.chain.Sent())
	})
}

func TestRunConfirmsPendingOncePriced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.oracle.SetLockingPeriodOver(weth, true)

	pending := &models.PriceSubmission{
		Bot:    "chainlink",
		Kind:   models.AssetKindBase,
		Asset:  wethAsset().Address,
		Pricer: wethAsset().Pricer,
		Expiry: int64(expiry),
		TxHash: "0xabc",
		Status: models.SubmissionPending,
	}
	require.NoError(t, f.store.SaveSubmission(ctx, pending))
	f.oracle.SetPrice(weth, expiry, big.NewInt(3500))

	result, err := f.job(Config{}).Run(ctx, []*models.Asset{wethAsset()})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count(ActionSkipPriced))
	assert.Empty(t, f.chain.Sent())

	subs, err := f.store.GetSubmissions(ctx, models.SubmissionFilter{Asset: wethAsset().Address})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, models.SubmissionConfirmed, subs[0].Status)
	assert.Equal(t, "0xabc", subs[0].TxHash)
}

func TestRunPricesDerivedAfterBase(t *testing.T) {
	f := newFixture(t)
	f.oracle.SetLockingPeriodOver(weth, true)
	f.oracle.SetLockingPeriodOver(yvweth, true)

	// Derived listed first; base assets still go first
	result, err := f.job(Config{}).Run(context.Background(), []*models.Asset{derivedAsset(), wethAsset()})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Count(ActionSubmitted))
	assert.Equal(t, wethAsset().Address, result.Outcomes[0].Asset.Address)

	require.Len(t, f.chain.SentTo(yvwethPricer, contractstest.SetExpiryPrice), 1)
	assert.Equal(t, int64(7000), f.oracle.Price(yvweth, expiry).Int64())
}

func TestRunPendingGuard(t *testing.T) {
	f := newFixture(t)
	f.oracle.SetLockingPeriodOver(weth, true)
	// Transactions are accepted but never land
	f.chain.OnSend(wethPricer, contractstest.SetExpiryPriceWithRound, func([]byte) error { return nil })

	cfg := Config{PendingTimeout: 30 * time.Minute}
	assets := []*models.Asset{wethAsset()}

	result, err := f.job(cfg).Run(context.Background(), assets)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count(ActionSubmitted))

	f.now = f.now.Add(5 * time.Minute)
	result, err = f.job(cfg).Run(context.Background(), assets)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count(ActionSkipPending))
	assert.Len(t, f.chain.Sent(), 1)

	f.now = f.now.Add(time.Hour)
	result, err = f.job(cfg).Run(context.Background(), assets)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count(ActionSubmitted))
	assert.Len(t, f.chain.Sent(), 2)
}

func TestRunPendingGuardDefaultTimeout(t *testing.T) {
	f := newFixture(t)
	f.oracle.SetLockingPeriodOver(weth, true)
	f.chain.OnSend(wethPricer, contractstest.SetExpiryPriceWithRound, func([]byte) error { return nil })
	assets := []*models.Asset{wethAsset()}

	_, err := f.job(Config{}).Run(context.Background(), assets)
	require.NoError(t, err)

	f.now = f.now.Add(DefaultPendingTimeout - time.Minute)
	result, err := f.job(Config{}).Run(context.Background(), assets)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count(ActionSkipPending))
	assert.Len(t, f.chain.Sent(), 1)
}

func TestRunJoinsPerAssetFailures(t *testing.T) {
	f := newFixture(t)
	f.oracle.SetLockingPeriodOver(weth, true)
	f.oracle.SetLockingPeriodOver(wbtc, true)
	f.chain.FailSends(wethPricer, errors.New("replacement transaction underpriced"))
	notifier := &recordingNotifier{}

	result, err := f.job(Config{}, WithNotifier(notifier)).Run(context.Background(), []*models.Asset{wethAsset(), wbtcAsset()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), wethAsset().Address)
	assert.Contains(t, err.Error(), "replacement transaction underpriced")

	wethOut, _ := result.Outcome(wethAsset().Address)
	wbtcOut, _ := result.Outcome(wbtcAsset().Address)
	assert.Equal(t, ActionFailed, wethOut.Action)
	assert.Equal(t, ActionSubmitted, wbtcOut.Action)
	assert.Equal(t, uint64(11), wbtcOut.Round.Uint64())
	assert.Equal(t, int64(70100), f.oracle.Price(wbtc, expiry).Int64())

	failed, err := f.store.GetSubmissions(context.Background(), models.SubmissionFilter{Status: models.SubmissionFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.NotNil(t, failed[0].Error)
	assert.Contains(t, *failed[0].Error, "underpriced")

	assert.ElementsMatch(t, []string{models.EventSubmissionFailed, models.EventPriceSubmitted}, notifier.Events())
}

func TestRunRevertedRoundIsFailure(t *testing.T) {
	f := newFixture(t)
	f.oracle.SetLockingPeriodOver(weth, true)
	// The pricer rejects every round
	f.chain.OnSend(wethPricer, contractstest.SetExpiryPriceWithRound, func([]byte) error {
		return errors.New("ChainLinkPricer: invalid roundId")
	})

	result, err := f.job(Config{}).Run(context.Background(), []*models.Asset{wethAsset()})
	require.Error(t, err)
	assert.Equal(t, 1, result.Count(ActionFailed))
	assert.True(t, f.oracle.Price(weth, expiry).Sign() == 0)
}

func TestRunDryRun(t *testing.T) {
	f := newFixture(t)
	f.oracle.SetLockingPeriodOver(weth, true)

	result, err := f.job(Config{DryRun: true}).Run(context.Background(), []*models.Asset{wethAsset()})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count(ActionDryRun))
	assert.Empty(t, f.chain.Sent())

	subs, err := f.store.GetSubmissions(context.Background(), models.SubmissionFilter{Status: models.SubmissionDryRun})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "4", subs[0].RoundID)
}

func TestRunWaitsForReceipt(t *testing.T) {
	f := newFixture(t)
	f.oracle.SetLockingPeriodOver(weth, true)

	_, err := f.job(Config{WaitReceipt: true}, WithWaiter(f.chain)).Run(context.Background(), []*models.Asset{wethAsset()})
	require.NoError(t, err)

	subs, err := f.store.GetSubmissions(context.Background(), models.SubmissionFilter{Asset: wethAsset().Address})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, models.SubmissionConfirmed, subs[0].Status)
}

func TestRunReadsAggregatorFromPricer(t *testing.T) {
	f := newFixture(t)
	f.oracle.SetLockingPeriodOver(weth, true)
	asset := wethAsset()
	asset.Aggregator = ""

	result, err := f.job(Config{}).Run(context.Background(), []*models.Asset{asset})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count(ActionSubmitted))
}

func TestRunFailsWithoutOracle(t *testing.T) {
	f := newFixture(t)
	job := NewJob(Config{Window: schedule.DefaultWindow}, common.HexToAddress("0xdead"), f.chain, f.chain, f.store,
		WithClock(func() time.Time { return friday }))

	_, err := job.Run(context.Background(), []*models.Asset{wethAsset()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve oracle")
	assert.True(t, utils.HasCode(err, utils.ErrCodeBlockchain))
}
