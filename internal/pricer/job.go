// Package pricer pushes oToken expiry prices into the Gamma Oracle.
//
// A run checks every configured asset once. Base assets are priced from a
// Chainlink round through their pricer; derived assets are priced once the
// underlying asset has an expiry price. Reads for a phase are gathered
// concurrently, transactions are then sent one at a time.
package pricer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/smartdevs17/gamma-ops/internal/contracts"
	"github.com/smartdevs17/gamma-ops/internal/metrics"
	"github.com/smartdevs17/gamma-ops/internal/models"
	"github.com/smartdevs17/gamma-ops/internal/notification"
	"github.com/smartdevs17/gamma-ops/internal/schedule"
	"github.com/smartdevs17/gamma-ops/internal/storage"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

// DefaultGasLimit is the gas limit of setExpiryPriceInOracle transactions
const DefaultGasLimit uint64 = 1_000_000

// DefaultPendingTimeout is how long a pending submission blocks a resend
const DefaultPendingTimeout = 30 * time.Minute

// Waiter waits for a transaction receipt
type Waiter interface {
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Config controls a price push job
type Config struct {
	Window           schedule.Window
	GasLimit         uint64
	MaxRoundLookback int
	PendingTimeout   time.Duration
	Concurrency      int
	DryRun           bool
	WaitReceipt      bool
}

// Job is one expiry price bot run over a set of assets
type Job struct {
	config      Config
	addressBook *contracts.AddressBook
	caller      contracts.Caller
	sender      contracts.Transactor
	storage     storage.Storage

	notifier notification.Notifier
	metrics  *metrics.PrometheusMetrics
	waiter   Waiter
	now      func() time.Time
	logger   *logrus.Entry
}

// Option configures a Job
type Option func(*Job)

// WithNotifier announces submissions and failures
func WithNotifier(n notification.Notifier) Option {
	return func(j *Job) { j.notifier = n }
}

// WithMetrics records job metrics
func WithMetrics(m *metrics.PrometheusMetrics) Option {
	return func(j *Job) { j.metrics = m }
}

// WithWaiter is used to wait for receipts when Config.WaitReceipt is set
func WithWaiter(w Waiter) Option {
	return func(j *Job) { j.waiter = w }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(j *Job) { j.now = now }
}

// NewJob creates a job reading the Oracle through addressBook
func NewJob(cfg Config, addressBook common.Address, caller contracts.Caller, sender contracts.Transactor, store storage.Storage, opts ...Option) *Job {
	if cfg.GasLimit == 0 {
		cfg.GasLimit = DefaultGasLimit
	}
	if cfg.MaxRoundLookback <= 0 {
		cfg.MaxRoundLookback = DefaultMaxRoundLookback
	}
	if cfg.PendingTimeout <= 0 {
		cfg.PendingTimeout = DefaultPendingTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Window == (schedule.Window{}) {
		cfg.Window = schedule.DefaultWindow
	}

	j := &Job{
		config:      cfg,
		addressBook: contracts.NewAddressBook(addressBook, caller),
		caller:      caller,
		sender:      sender,
		storage:     store,
		now:         time.Now,
		logger:      utils.ComponentLogger("pricer"),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run checks every asset for the current expiry and submits the prices that are due.
// Outside the expiry window it does nothing. Per-asset failures do not stop the
// run; they are joined into the returned error.
func (j *Job) Run(ctx context.Context, assets []*models.Asset) (*Result, error) {
	now := j.now().UTC()
	result := &Result{RunID: utils.GenerateID(), StartedAt: now}

	if !j.config.Window.Contains(now) {
		result.Skipped = true
		j.logger.WithFields(logrus.Fields{
			"now":         now,
			"next_expiry": j.config.Window.Next(now),
		}).Debug("Outside expiry window")
		return result, nil
	}

	expiry := j.config.Window.Expiry(now)
	result.Expiry = expiry

	oracleAddr, err := j.addressBook.GetOracle(ctx)
	if err != nil {
		return result, fmt.Errorf("resolve oracle: %w", err)
	}
	result.Oracle = oracleAddr
	oracle := contracts.NewOracle(oracleAddr, j.caller)

	logger := j.logger.WithFields(logrus.Fields{
		"run_id": result.RunID,
		"expiry": expiry.Unix(),
		"oracle": oracleAddr.Hex(),
	})
	logger.WithField("assets", len(assets)).Info("Checking expiry prices")

	var base, derived []*models.Asset
	for _, a := range assets {
		if a.Kind == models.AssetKindDerived {
			derived = append(derived, a)
		} else {
			base = append(base, a)
		}
	}

	// Derived prices depend on base prices, so base assets go first
	var errs []error
	for _, phase := range [][]*models.Asset{base, derived} {
		if len(phase) == 0 {
			continue
		}
		checks, err := j.gather(ctx, oracle, phase, expiry)
		if err != nil {
			return result, err
		}
		for _, c := range checks {
			outcome := j.act(ctx, logger, result.RunID, c)
			result.Outcomes = append(result.Outcomes, outcome)
			if outcome.Err != nil {
				errs = append(errs, fmt.Errorf("asset %s: %w", c.asset.Address, outcome.Err))
			}
		}
	}

	result.FinishedAt = j.now().UTC()
	logger.WithFields(logrus.Fields{
		"submitted": result.Count(ActionSubmitted),
		"failed":    result.Count(ActionFailed),
		"duration":  result.FinishedAt.Sub(now),
	}).Info("Expiry price check complete")

	return result, errors.Join(errs...)
}

// check is the on-chain state of one asset at expiry
type check struct {
	asset           *models.Asset
	expiry          *big.Int
	price           *big.Int
	locked          bool
	underlyingPrice *big.Int
	round           *big.Int
	depth           int
	err             error
}

// gather reads the state of every asset concurrently. Read errors are kept per asset;
// only context cancellation aborts the phase.
func (j *Job) gather(ctx context.Context, oracle *contracts.Oracle, assets []*models.Asset, expiry time.Time) ([]*check, error) {
	checks := make([]*check, len(assets))
	expiryBig := big.NewInt(expiry.Unix())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.Concurrency)
	for i, a := range assets {
		c := &check{asset: a, expiry: expiryBig}
		checks[i] = c
		g.Go(func() error {
			if a.Kind == models.AssetKindDerived {
				c.err = j.readDerived(gctx, oracle, c)
			} else {
				c.err = j.readBase(gctx, oracle, c)
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return checks, nil
}

func (j *Job) readPrice(ctx context.Context, oracle *contracts.Oracle, c *check) error {
	asset := common.HexToAddress(c.asset.Address)
	price, _, err := oracle.GetExpiryPrice(ctx, asset, c.expiry)
	if err != nil {
		return err
	}
	locked, err := oracle.IsLockingPeriodOver(ctx, asset, c.expiry)
	if err != nil {
		return err
	}
	c.price, c.locked = price, locked
	return nil
}

func (j *Job) readBase(ctx context.Context, oracle *contracts.Oracle, c *check) error {
	if err := j.readPrice(ctx, oracle, c); err != nil {
		return err
	}
	if c.price.Sign() != 0 || !c.locked {
		return nil
	}

	aggAddr := common.HexToAddress(c.asset.Aggregator)
	if c.asset.Aggregator == "" {
		var err error
		aggAddr, err = contracts.NewChainlinkPricer(common.HexToAddress(c.asset.Pricer), j.caller).Aggregator(ctx)
		if err != nil {
			return fmt.Errorf("pricer aggregator: %w", err)
		}
	}

	round, depth, err := FindExpiryRound(ctx, contracts.NewAggregator(aggAddr, j.caller), c.expiry, j.config.MaxRoundLookback)
	c.depth = depth
	if errors.Is(err, ErrRoundNotPastExpiry) {
		// Not a failure; the aggregator has not updated since expiry yet
		return nil
	}
	if err != nil {
		return err
	}
	c.round = round
	return nil
}

func (j *Job) readDerived(ctx context.Context, oracle *contracts.Oracle, c *check) error {
	underlying, _, err := oracle.GetExpiryPrice(ctx, common.HexToAddress(c.asset.Underlying), c.expiry)
	if err != nil {
		return fmt.Errorf("underlying price: %w", err)
	}
	c.underlyingPrice = underlying
	if underlying.Sign() == 0 {
		return nil
	}
	return j.readPrice(ctx, oracle, c)
}

// act decides what to do with one asset and, if due, submits its price
func (j *Job) act(ctx context.Context, logger *logrus.Entry, runID string, c *check) Outcome {
	a := c.asset
	out := Outcome{Asset: a, Round: c.round}
	logger = logger.WithFields(logrus.Fields{"asset": a.Address, "kind": a.Kind, "bot": a.Bot})

	defer func() {
		if j.metrics != nil {
			j.metrics.RecordAssetCheck(a.Kind, out.Action)
			if c.depth > 0 {
				j.metrics.RecordRoundLookback(c.depth)
			}
		}
	}()

	switch {
	case c.err != nil:
		out.Action, out.Err = ActionFailed, c.err
		logger.WithError(c.err).Error("Failed to read asset state")
		return out
	case a.Kind == models.AssetKindDerived && c.underlyingPrice.Sign() == 0:
		out.Action, out.Reason = ActionSkipUnderlying, "underlying price not found"
		logger.WithField("underlying", a.Underlying).Info("Underlying price not found")
		return out
	case c.price.Sign() != 0:
		out.Action, out.Reason = ActionSkipPriced, "price already set"
		logger.WithField("price", c.price.String()).Debug("Expiry price already set")
		j.reconcile(ctx, logger, a, c.expiry.Int64())
		return out
	case !c.locked:
		out.Action, out.Reason = ActionSkipLocked, "locking period not over"
		logger.Info("Locking period not over")
		return out
	case a.Kind != models.AssetKindDerived && c.round == nil:
		out.Action, out.Reason = ActionSkipRound, "latest round not past expiry"
		logger.Info("Latest round is not past expiry")
		return out
	}

	recent, err := j.storage.FindRecentSubmission(ctx, a.Address, c.expiry.Int64(), j.now().Add(-j.config.PendingTimeout))
	if err != nil {
		out.Action, out.Err = ActionFailed, fmt.Errorf("check pending submissions: %w", err)
		return out
	}
	if recent != nil {
		out.Action, out.Reason = ActionSkipPending, "submission "+recent.TxHash+" still "+recent.Status
		logger.WithField("tx_hash", recent.TxHash).Info("Submission already in flight")
		return out
	}

	sub := &models.PriceSubmission{
		RunID:     runID,
		Bot:       a.Bot,
		Kind:      a.Kind,
		Asset:     a.Address,
		Pricer:    a.Pricer,
		Expiry:    c.expiry.Int64(),
		Status:    models.SubmissionPending,
		CreatedAt: j.now().UTC(),
	}
	if c.round != nil {
		sub.RoundID = c.round.String()
	}

	if j.config.DryRun {
		sub.Status = models.SubmissionDryRun
		out.Action = ActionDryRun
		logger.WithField("round_id", sub.RoundID).Info("Dry run, not submitting expiry price")
		if err := j.storage.SaveSubmission(ctx, sub); err != nil {
			logger.WithError(err).Warn("Failed to record dry run")
		}
		return out
	}

	tx, err := j.submit(ctx, c)
	if err == nil {
		out.TxHash = tx.Hash()
		sub.TxHash = tx.Hash().Hex()
		err = j.confirm(ctx, tx, sub)
	}
	if err != nil {
		msg := err.Error()
		sub.Status = models.SubmissionFailed
		sub.Error = &msg
		out.Action, out.Err = ActionFailed, err
	} else {
		out.Action = ActionSubmitted
	}

	if saveErr := j.storage.SaveSubmission(ctx, sub); saveErr != nil {
		logger.WithError(saveErr).Error("Failed to record submission")
		if out.Err == nil {
			out.Err = fmt.Errorf("record submission %s: %w", sub.TxHash, saveErr)
		}
	}
	if j.metrics != nil {
		j.metrics.RecordPriceSubmission(a.Address, a.Kind, sub.Status)
		if sub.Status == models.SubmissionConfirmed {
			j.metrics.UpdateLastPricedExpiry(a.Address, sub.Expiry)
		}
	}
	j.announce(ctx, logger, sub)

	if out.Err != nil {
		logger.WithError(out.Err).Error("Expiry price submission failed")
	} else {
		logger.WithFields(logrus.Fields{
			"tx_hash":  sub.TxHash,
			"round_id": sub.RoundID,
			"status":   sub.Status,
		}).Info("Expiry price submitted")
	}
	return out
}

func (j *Job) submit(ctx context.Context, c *check) (*types.Transaction, error) {
	pricer := common.HexToAddress(c.asset.Pricer)
	if c.asset.Kind == models.AssetKindDerived {
		return contracts.NewDerivedPricer(pricer, j.caller).SetExpiryPriceInOracle(ctx, j.sender, c.expiry, j.config.GasLimit)
	}
	return contracts.NewChainlinkPricer(pricer, j.caller).SetExpiryPriceInOracle(ctx, j.sender, c.expiry, c.round, j.config.GasLimit)
}

// confirm waits for the receipt when configured; otherwise the submission stays pending
// until a later run sees the price in the Oracle.
func (j *Job) confirm(ctx context.Context, tx *types.Transaction, sub *models.PriceSubmission) error {
	if !j.config.WaitReceipt || j.waiter == nil {
		return nil
	}
	receipt, err := j.waiter.WaitMined(ctx, tx)
	if err != nil {
		return fmt.Errorf("wait for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return utils.NewAppError(utils.ErrCodeTransaction, "Expiry price transaction reverted", tx.Hash().Hex())
	}
	sub.Status = models.SubmissionConfirmed
	return nil
}

// reconcile marks pending submissions confirmed once the Oracle holds the price
func (j *Job) reconcile(ctx context.Context, logger *logrus.Entry, a *models.Asset, expiry int64) {
	if j.metrics != nil {
		j.metrics.UpdateLastPricedExpiry(a.Address, expiry)
	}
	pending, err := j.storage.GetSubmissions(ctx, models.SubmissionFilter{
		Asset:  a.Address,
		Status: models.SubmissionPending,
		Expiry: expiry,
	})
	if err != nil {
		logger.WithError(err).Warn("Failed to load pending submissions")
		return
	}
	for _, sub := range pending {
		if err := j.storage.UpdateSubmissionStatus(ctx, sub.ID, models.SubmissionConfirmed, sub.TxHash, nil); err != nil {
			logger.WithError(err).WithField("submission_id", sub.ID).Warn("Failed to confirm submission")
		}
	}
}

func (j *Job) announce(ctx context.Context, logger *logrus.Entry, sub *models.PriceSubmission) {
	if j.notifier == nil {
		return
	}
	n := &models.Notification{
		Event:   models.EventPriceSubmitted,
		Title:   "Expiry price submitted",
		Message: fmt.Sprintf("%s expiry price for %s submitted", sub.Kind, sub.Asset),
		Data: map[string]interface{}{
			"asset":    sub.Asset,
			"pricer":   sub.Pricer,
			"bot":      sub.Bot,
			"expiry":   sub.Expiry,
			"round_id": sub.RoundID,
			"tx_hash":  sub.TxHash,
			"status":   sub.Status,
		},
	}
	if sub.Status == models.SubmissionFailed {
		n.Event = models.EventSubmissionFailed
		n.Title = "Expiry price submission failed"
		n.Message = fmt.Sprintf("%s expiry price for %s failed: %s", sub.Kind, sub.Asset, *sub.Error)
	}
	if err := j.notifier.Notify(ctx, n); err != nil {
		logger.WithError(err).Warn("Failed to send notification")
	}
}
