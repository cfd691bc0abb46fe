// File: internal/keeper/keeper.go
package keeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/gamma-ops/internal/metrics"
	"github.com/smartdevs17/gamma-ops/internal/models"
	"github.com/smartdevs17/gamma-ops/internal/notification"
	"github.com/smartdevs17/gamma-ops/internal/pricer"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

// Runner runs one expiry price check. *pricer.Job satisfies it.
type Runner interface {
	Run(ctx context.Context, assets []*models.Asset) (*pricer.Result, error)
}

// AssetSource lists the assets to check. storage.Storage satisfies it.
type AssetSource interface {
	ListAssets(ctx context.Context, filter models.AssetFilter) ([]*models.Asset, error)
}

// Keeper runs the expiry price bots on an interval
type Keeper struct {
	runner   Runner
	assets   AssetSource
	interval time.Duration
	notifier notification.Notifier
	metrics  *metrics.PrometheusMetrics
	logger   *logrus.Entry

	// runMu serializes runs between the loop and manual triggers
	runMu sync.Mutex

	mu         sync.RWMutex
	running    bool
	stopOnce   sync.Once
	stopChan   chan struct{}
	wg         sync.WaitGroup
	stats      *KeeperStats
	lastResult *pricer.Result
}

// KeeperStats provides keeper statistics
type KeeperStats struct {
	StartTime     time.Time  `json:"start_time"`
	IsRunning     bool       `json:"is_running"`
	TotalRuns     uint64     `json:"total_runs"`
	SkippedRuns   uint64     `json:"skipped_runs"`
	FailedRuns    uint64     `json:"failed_runs"`
	Submissions   uint64     `json:"submissions"`
	AssetsSkipped uint64     `json:"assets_skipped"`
	ErrorCount    uint64     `json:"error_count"`
	LastRunTime   *time.Time `json:"last_run_time,omitempty"`
	LastExpiry    *time.Time `json:"last_expiry,omitempty"`
	LastError     *string    `json:"last_error,omitempty"`
	LastErrorTime *time.Time `json:"last_error_time,omitempty"`
}

// HealthStatus provides health information
type HealthStatus struct {
	Healthy     bool       `json:"healthy"`
	Running     bool       `json:"running"`
	LastRunTime *time.Time `json:"last_run_time,omitempty"`
	Issues      []string   `json:"issues,omitempty"`
}

// Option configures a Keeper
type Option func(*Keeper)

// WithNotifier announces failed runs
func WithNotifier(n notification.Notifier) Option {
	return func(k *Keeper) { k.notifier = n }
}

// WithMetrics records run metrics
func WithMetrics(m *metrics.PrometheusMetrics) Option {
	return func(k *Keeper) { k.metrics = m }
}

// New creates a keeper running runner over the assets in source every interval
func New(runner Runner, source AssetSource, interval time.Duration, opts ...Option) *Keeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	k := &Keeper{
		runner:   runner,
		assets:   source,
		interval: interval,
		logger:   utils.ComponentLogger("keeper"),
		stopChan: make(chan struct{}),
		stats:    &KeeperStats{},
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// RunOnce runs every bot once
func (k *Keeper) RunOnce(ctx context.Context) (*pricer.Result, error) {
	k.runMu.Lock()
	defer k.runMu.Unlock()

	startTime := time.Now()
	assets, err := k.assets.ListAssets(ctx, models.AssetFilter{})
	if err != nil {
		err = fmt.Errorf("list assets: %w", err)
		k.record(startTime, nil, err)
		return nil, err
	}
	if k.metrics != nil {
		k.metrics.UpdateAssetsTracked(models.AssetKindBase, countKind(assets, models.AssetKindBase))
		k.metrics.UpdateAssetsTracked(models.AssetKindDerived, countKind(assets, models.AssetKindDerived))
	}

	result, err := k.runner.Run(ctx, assets)
	k.record(startTime, result, err)
	return result, err
}

func countKind(assets []*models.Asset, kind string) int {
	n := 0
	for _, a := range assets {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

func (k *Keeper) record(startTime time.Time, result *pricer.Result, err error) {
	now := time.Now()
	outcome := "success"

	k.mu.Lock()
	k.stats.TotalRuns++
	k.stats.LastRunTime = &now
	if result != nil {
		k.lastResult = result
		if result.Skipped {
			k.stats.SkippedRuns++
			outcome = "skipped"
		} else {
			expiry := result.Expiry
			k.stats.LastExpiry = &expiry
		}
		k.stats.Submissions += uint64(result.Count(pricer.ActionSubmitted))
		for _, o := range result.Outcomes {
			if o.Action != pricer.ActionSubmitted && o.Action != pricer.ActionFailed && o.Action != pricer.ActionDryRun {
				k.stats.AssetsSkipped++
			}
		}
	}
	if err != nil {
		outcome = "failed"
		k.stats.FailedRuns++
		k.stats.ErrorCount++
		errorStr := err.Error()
		k.stats.LastError = &errorStr
		k.stats.LastErrorTime = &now
	} else {
		k.stats.LastError = nil
	}
	k.mu.Unlock()

	if k.metrics != nil {
		k.metrics.RecordKeeperRun(outcome, time.Since(startTime))
		k.metrics.UpdateComponentHealth("keeper", err == nil)
	}
	if err != nil {
		k.logger.WithError(err).Error("Keeper run failed")
		k.announceFailure(err)
	}
}

func (k *Keeper) announceFailure(err error) {
	if k.notifier == nil {
		return
	}
	n := &models.Notification{
		Event:   models.EventKeeperRunFailed,
		Title:   "Expiry price run failed",
		Message: err.Error(),
	}
	// The run context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if nerr := k.notifier.Notify(ctx, n); nerr != nil {
		k.logger.WithError(nerr).Warn("Failed to send notification")
	}
}

// Start starts the keeper loop. The first run happens immediately.
func (k *Keeper) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Keeper already running", "")
	}

	k.running = true
	k.stats.StartTime = time.Now()
	k.stats.IsRunning = true

	k.wg.Add(1)
	go k.loop(ctx)

	k.logger.WithField("interval", k.interval).Info("Keeper started")
	return nil
}

// Stop stops the keeper loop and waits for the current run to finish
func (k *Keeper) Stop() error {
	k.mu.Lock()
	if !k.running {
		k.mu.Unlock()
		return nil
	}
	k.running = false
	k.stats.IsRunning = false
	k.stopOnce.Do(func() {
		close(k.stopChan)
	})
	k.mu.Unlock()

	k.wg.Wait()
	k.logger.Info("Keeper stopped")
	return nil
}

// IsRunning returns whether the keeper loop is running
func (k *Keeper) IsRunning() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.running
}

func (k *Keeper) loop(ctx context.Context) {
	defer k.wg.Done()

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	// Errors are recorded by RunOnce; the loop keeps going
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-k.stopChan:
			cancel()
		case <-runCtx.Done():
		}
	}()

	k.RunOnce(runCtx)
	for {
		select {
		case <-ctx.Done():
			k.logger.Info("Keeper loop stopped by context")
			return
		case <-k.stopChan:
			k.logger.Info("Keeper loop stopped by stop signal")
			return
		case <-ticker.C:
			k.RunOnce(runCtx)
		}
	}
}

// GetStats returns a copy of the keeper statistics
func (k *Keeper) GetStats() KeeperStats {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return *k.stats
}

// LastResult returns the result of the latest run, nil before the first run
func (k *Keeper) LastResult() *pricer.Result {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.lastResult
}

// GetHealth is healthy until a run fails; the next successful run clears it
func (k *Keeper) GetHealth() *HealthStatus {
	k.mu.RLock()
	defer k.mu.RUnlock()

	health := &HealthStatus{
		Healthy:     true,
		Running:     k.running,
		LastRunTime: k.stats.LastRunTime,
	}
	if k.stats.LastError != nil {
		health.Healthy = false
		health.Issues = append(health.Issues, "last run failed: "+*k.stats.LastError)
	}
	return health
}
