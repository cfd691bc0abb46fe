// Package migration deploys and configures the Gamma protocol from compiled
// artifacts.
//
// Migrations run in a fixed order. The number of the last completed
// migration is journaled per network, so Up only applies what has not run
// yet. Every transaction is waited for; a revert fails the migration and
// stops the run.
package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/gamma-ops/internal/config"
	"github.com/smartdevs17/gamma-ops/internal/contracts"
	"github.com/smartdevs17/gamma-ops/internal/metrics"
	"github.com/smartdevs17/gamma-ops/internal/models"
	"github.com/smartdevs17/gamma-ops/internal/notification"
	"github.com/smartdevs17/gamma-ops/internal/storage"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

// StatusPending marks a migration that has not been journaled
const StatusPending = "pending"

// Migration is one ordered deployment step
type Migration struct {
	Number int
	Name   string
	run    func(ctx context.Context, m *Migrator, number int) error
}

// Config controls a migrator
type Config struct {
	Network    string
	Deployment config.NetworkDeployment
	// GasLimit is used for configuration transactions
	GasLimit uint64
	// DeployGasLimit is used for contract creations
	DeployGasLimit uint64
}

// Migrator applies the migrations of one network
type Migrator struct {
	executor
	config     Config
	migrations []Migration
	notifier   notification.Notifier
}

// Option configures a Migrator
type Option func(*Migrator)

// WithNotifier announces applied migrations
func WithNotifier(n notification.Notifier) Option {
	return func(m *Migrator) { m.notifier = n }
}

// WithMetrics records migration and transaction metrics
func WithMetrics(pm *metrics.PrometheusMetrics) Option {
	return func(m *Migrator) { m.metrics = pm }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Migrator) { m.now = now }
}

// NewMigrator creates a migrator for cfg.Network
func NewMigrator(cfg Config, artifacts ArtifactSource, caller contracts.Caller, deployer Deployer, store storage.Storage, opts ...Option) *Migrator {
	if cfg.GasLimit == 0 {
		cfg.GasLimit = 1_000_000
	}
	if cfg.DeployGasLimit == 0 {
		cfg.DeployGasLimit = 8_000_000
	}
	if cfg.Deployment.LargeDeployGasLimit == 0 {
		cfg.Deployment.LargeDeployGasLimit = cfg.DeployGasLimit
	}

	m := &Migrator{
		executor: executor{
			network:   cfg.Network,
			artifacts: artifacts,
			caller:    caller,
			deployer:  deployer,
			storage:   store,
			gasLimit:  cfg.GasLimit,
			deployGas: cfg.DeployGasLimit,
			now:       time.Now,
			logger:    utils.ComponentLogger("migration").WithField("network", cfg.Network),
		},
		config:     cfg,
		migrations: Migrations(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Status is the journal state of one migration
type Status struct {
	Number      int        `json:"number" yaml:"number"`
	Name        string     `json:"name" yaml:"name"`
	Status      string     `json:"status" yaml:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty" yaml:"error,omitempty"`
}

// Status lists every migration with its journaled state
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	records, err := m.storage.GetMigrations(ctx, m.network)
	if err != nil {
		return nil, err
	}
	byNumber := make(map[int]*models.MigrationRecord, len(records))
	for _, r := range records {
		byNumber[r.Number] = r
	}

	out := make([]Status, 0, len(m.migrations))
	for _, mig := range m.migrations {
		s := Status{Number: mig.Number, Name: mig.Name, Status: StatusPending}
		if r, ok := byNumber[mig.Number]; ok {
			started := r.StartedAt
			s.Status = r.Status
			s.StartedAt = &started
			s.CompletedAt = r.CompletedAt
			if r.Error != nil {
				s.Error = *r.Error
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// Up applies every migration after the last completed one, up to and
// including target. A target of zero applies all of them. It returns the
// numbers applied.
func (m *Migrator) Up(ctx context.Context, target int) ([]int, error) {
	last, err := m.storage.LastCompletedMigration(ctx, m.network)
	if err != nil {
		return nil, err
	}

	var applied []int
	for _, mig := range m.migrations {
		if mig.Number <= last {
			continue
		}
		if target > 0 && mig.Number > target {
			break
		}
		if err := m.apply(ctx, mig); err != nil {
			return applied, err
		}
		applied = append(applied, mig.Number)
	}

	if len(applied) == 0 {
		m.logger.WithField("last", last).Info("No migrations to apply")
	}
	return applied, nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	logger := m.logger.WithFields(logrus.Fields{"migration": mig.Number, "name": mig.Name})
	logger.Info("Applying migration")

	if err := m.storage.StartMigration(ctx, &models.MigrationRecord{
		Network:   m.network,
		Number:    mig.Number,
		Name:      mig.Name,
		StartedAt: m.now().UTC(),
	}); err != nil {
		return err
	}

	start := time.Now()
	runErr := mig.run(ctx, m, mig.Number)

	status := models.MigrationCompleted
	var errMsg *string
	if runErr != nil {
		status = models.MigrationFailed
		msg := runErr.Error()
		errMsg = &msg
	}
	if m.metrics != nil {
		m.metrics.RecordMigration(m.network, mig.Name, status)
	}

	// the journal is written even when ctx was cancelled mid-migration
	if err := m.storage.FinishMigration(context.WithoutCancel(ctx), m.network, mig.Number, status, errMsg); err != nil {
		logger.WithError(err).Error("Failed to journal migration outcome")
		if runErr == nil {
			return err
		}
	}

	if runErr != nil {
		logger.WithError(runErr).Error("Migration failed")
		return fmt.Errorf("migration %d %s: %w", mig.Number, mig.Name, runErr)
	}

	logger.WithField("duration", time.Since(start)).Info("Migration applied")
	m.announce(ctx, mig)
	return nil
}

func (m *Migrator) announce(ctx context.Context, mig Migration) {
	if m.notifier == nil {
		return
	}
	n := &models.Notification{
		Event:   models.EventMigrationApplied,
		Title:   "Migration applied",
		Message: fmt.Sprintf("Migration %d %s applied on %s", mig.Number, mig.Name, m.network),
		Data: map[string]interface{}{
			"network":   m.network,
			"migration": mig.Number,
			"name":      mig.Name,
		},
	}
	if err := m.notifier.Notify(ctx, n); err != nil {
		m.logger.WithError(err).Warn("Failed to send notification")
	}
}

// optional parses a configured address, reporting false when it is empty
func (m *Migrator) optional(field, value string) (common.Address, bool, error) {
	if value == "" {
		return common.Address{}, false, nil
	}
	addr, err := parseAddress(field, value)
	if err != nil {
		return common.Address{}, false, err
	}
	return addr, true, nil
}
