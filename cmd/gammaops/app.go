package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smartdevs17/gamma-ops/internal/config"
	"github.com/smartdevs17/gamma-ops/internal/connection"
	"github.com/smartdevs17/gamma-ops/internal/contracts"
	"github.com/smartdevs17/gamma-ops/internal/metrics"
	"github.com/smartdevs17/gamma-ops/internal/migration"
	"github.com/smartdevs17/gamma-ops/internal/notification"
	"github.com/smartdevs17/gamma-ops/internal/storage"
	"github.com/smartdevs17/gamma-ops/internal/subgraph"
	"github.com/smartdevs17/gamma-ops/internal/txmgr"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

// Application holds the components shared by the commands
type Application struct {
	config       *config.Config
	logger       *logrus.Entry
	metrics      *metrics.Manager
	connection   *connection.ConnectionManager
	client       *connection.ChainClient
	signer       *txmgr.Manager
	storage      storage.Storage
	notification *notification.NotificationManager
}

// loadConfig reads the configuration and applies the persistent flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if cmd.Flags().Changed("network") {
		cfg.Network.Name = viper.GetString("network")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = viper.GetString("log-level")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logCfg := cfg.Logging
	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// Signer requirements of a command
type signerMode int

const (
	signerNone signerMode = iota
	signerOptional
	signerRequired
)

// NewApplication connects storage, notifications and the node. The signer is
// created according to mode; signerOptional skips it when no key is configured.
func NewApplication(ctx context.Context, cfg *config.Config, mode signerMode) (*Application, error) {
	app := &Application{
		config:  cfg,
		logger:  utils.ComponentLogger("app").WithField("network", cfg.Network.Name),
		metrics: metrics.NewManager(),
	}
	pm := app.metrics.GetPrometheusMetrics()

	store, err := storage.Open(&cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.storage = storage.NewStorageWithMetrics(store, pm)

	app.notification = notification.NewNotificationManager(&cfg.Notifications)
	app.notification.SetMetrics(pm)
	if err := app.notification.Start(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to start notifications: %w", err)
	}

	app.connection = connection.NewConnectionManager(&cfg.Network)
	app.connection.SetMetrics(pm)
	if err := app.connection.HealthCheck(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to connect to node: %w", err)
	}
	app.client = connection.NewChainClient(app.connection, pm)

	if mode == signerRequired || (mode == signerOptional && cfg.Signer.PrivateKey != "") {
		app.signer, err = txmgr.NewManager(app.client, cfg.Network.ChainID, &cfg.Signer)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to initialize signer: %w", err)
		}
		app.logger.WithField("from", app.signer.From().Hex()).Info("Signer ready")
	}

	app.logger.WithFields(logrus.Fields{
		"endpoint": app.connection.Endpoint(),
		"storage":  cfg.Storage.Type,
	}).Info("Application initialized")
	return app, nil
}

// transactor returns the signer, or nil when none was created
func (app *Application) transactor() contracts.Transactor {
	if app.signer == nil {
		return nil
	}
	return app.signer
}

// addressBook returns the protocol AddressBook, from gamma config or the
// network's deployment record
func (app *Application) addressBook(ctx context.Context) (common.Address, error) {
	if app.config.Gamma.AddressBook != "" {
		return common.HexToAddress(app.config.Gamma.AddressBook), nil
	}
	d, err := app.storage.GetDeployment(ctx, app.config.Network.Name, migration.AddressBookName)
	if err != nil {
		return common.Address{}, fmt.Errorf("address book is not configured and not deployed: %w", err)
	}
	return common.HexToAddress(d.Address), nil
}

func (app *Application) artifacts() *migration.DirArtifacts {
	return migration.NewDirArtifacts(app.config.Migrations.ArtifactsDir)
}

func (app *Application) subgraph() *subgraph.Client {
	client := subgraph.NewClient(&app.config.Subgraph)
	client.SetMetrics(app.metrics.GetPrometheusMetrics())
	return client
}

// Close releases every component that was opened
func (app *Application) Close() {
	if app.notification != nil {
		if err := app.notification.Stop(); err != nil {
			app.logger.WithError(err).Warn("Failed to stop notifications")
		}
	}
	if app.connection != nil {
		if err := app.connection.Close(); err != nil {
			app.logger.WithError(err).Warn("Failed to close connection")
		}
	}
	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.WithError(err).Warn("Failed to close storage")
		}
	}
}

// withApp loads config, builds the application and closes it after fn
func withApp(cmd *cobra.Command, mode signerMode, fn func(ctx context.Context, app *Application) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	app, err := NewApplication(ctx, cfg, mode)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}
