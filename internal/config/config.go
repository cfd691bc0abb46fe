// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Bot types
const (
	BotTypeBase    = "base"
	BotTypeDerived = "derived"
)

// Config holds all configuration for the application
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Network       NetworkConfig      `mapstructure:"network"`
	Signer        SignerConfig       `mapstructure:"signer"`
	Gamma         GammaConfig        `mapstructure:"gamma"`
	Keeper        KeeperConfig       `mapstructure:"keeper"`
	Migrations    MigrationsConfig   `mapstructure:"migrations"`
	Subgraph      SubgraphConfig     `mapstructure:"subgraph"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Server        ServerConfig       `mapstructure:"server"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// NetworkConfig contains the RPC connection configuration
type NetworkConfig struct {
	Name           string        `mapstructure:"name"`
	NodeURL        string        `mapstructure:"node_url"`
	ChainID        int64         `mapstructure:"chain_id"`
	BackupNodes    []string      `mapstructure:"backup_nodes"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

// SignerConfig configures the key that signs keeper and migration transactions
type SignerConfig struct {
	PrivateKey     string        `mapstructure:"private_key"`
	From           string        `mapstructure:"from"`
	Speed          string        `mapstructure:"speed"` // safeLow, average, fast, fastest
	GasLimit       uint64        `mapstructure:"gas_limit"`
	DeployGasLimit uint64        `mapstructure:"deploy_gas_limit"`
	MaxFeeGwei     int64         `mapstructure:"max_fee_gwei"`
	WaitReceipt    bool          `mapstructure:"wait_receipt"`
	ReceiptTimeout time.Duration `mapstructure:"receipt_timeout"`
}

// GammaConfig holds protocol-level addresses shared by every bot
type GammaConfig struct {
	AddressBook string `mapstructure:"address_book"`
	StrikeAsset string `mapstructure:"strike_asset"`
}

// KeeperConfig contains expiry price bot configuration
type KeeperConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	ExpiryHour       int           `mapstructure:"expiry_hour"`
	ExpiryWeekday    string        `mapstructure:"expiry_weekday"`
	MaxRoundLookback int           `mapstructure:"max_round_lookback"`
	PendingTimeout   time.Duration `mapstructure:"pending_timeout"`
	Concurrency      int           `mapstructure:"concurrency"`
	DryRun           bool          `mapstructure:"dry_run"`
	Bots             []BotConfig   `mapstructure:"bots"`
}

// BotConfig describes one pricer bot and the assets it serves
type BotConfig struct {
	Name   string        `mapstructure:"name"`
	Type   string        `mapstructure:"type"` // base, derived
	Assets []AssetConfig `mapstructure:"assets"`
}

// AssetConfig is a statically configured asset of a bot
type AssetConfig struct {
	Asset      string `mapstructure:"asset"`
	Pricer     string `mapstructure:"pricer"`
	Aggregator string `mapstructure:"aggregator"`
	Underlying string `mapstructure:"underlying"`
}

// MigrationsConfig contains deployment configuration per network
type MigrationsConfig struct {
	ArtifactsDir string                       `mapstructure:"artifacts_dir"`
	Networks     map[string]NetworkDeployment `mapstructure:"networks"`
}

// NetworkDeployment holds the addresses a network's migrations depend on
type NetworkDeployment struct {
	AddressBook         string `mapstructure:"address_book"`
	Multisig            string `mapstructure:"multisig"`
	WETH                string `mapstructure:"weth"`
	WBTC                string `mapstructure:"wbtc"`
	USDC                string `mapstructure:"usdc"`
	CUSDC               string `mapstructure:"cusdc"`
	ChainlinkETHUSDC    string `mapstructure:"chainlink_ethusdc_aggregator"`
	LargeDeployGasLimit uint64 `mapstructure:"large_deploy_gas_limit"`
}

// SubgraphConfig configures the GraphQL endpoint used to find expired oTokens
type SubgraphConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	First   int           `mapstructure:"first"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// NotificationConfig contains notification configuration
type NotificationConfig struct {
	Enabled       bool              `mapstructure:"enabled"`
	WebhookURL    string            `mapstructure:"webhook_url"`
	WebhookMethod string            `mapstructure:"webhook_method"`
	Headers       map[string]string `mapstructure:"headers"`
	Timeout       time.Duration     `mapstructure:"timeout"`
	RetryAttempts int               `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration     `mapstructure:"retry_delay"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix("GAMMA_OPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Secrets are usually injected through the environment
	if nodeURL := os.Getenv("GAMMA_NODE_URL"); nodeURL != "" {
		config.Network.NodeURL = nodeURL
	}
	if key := os.Getenv("GAMMA_PRIVATE_KEY"); key != "" {
		config.Signer.PrivateKey = key
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "gamma-ops")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	v.SetDefault("network.name", "development")
	v.SetDefault("network.node_url", "http://127.0.0.1:8545")
	v.SetDefault("network.chain_id", 1337)
	v.SetDefault("network.request_timeout", "30s")
	v.SetDefault("network.retry_attempts", 3)
	v.SetDefault("network.retry_delay", "5s")

	v.SetDefault("signer.speed", "fast")
	v.SetDefault("signer.gas_limit", 1000000)
	v.SetDefault("signer.deploy_gas_limit", 8000000)
	v.SetDefault("signer.max_fee_gwei", 500)
	v.SetDefault("signer.wait_receipt", false)
	v.SetDefault("signer.receipt_timeout", "10m")

	// Otoken expiries settle on Fridays at 08:00 UTC
	v.SetDefault("keeper.interval", "5m")
	v.SetDefault("keeper.expiry_hour", 8)
	v.SetDefault("keeper.expiry_weekday", "Friday")
	v.SetDefault("keeper.max_round_lookback", 500)
	v.SetDefault("keeper.pending_timeout", "30m")
	v.SetDefault("keeper.concurrency", 4)
	v.SetDefault("keeper.dry_run", false)

	v.SetDefault("migrations.artifacts_dir", "./build/contracts")

	v.SetDefault("subgraph.url", "https://api.thegraph.com/subgraphs/name/opynfinance/gamma-mainnet")
	v.SetDefault("subgraph.timeout", "30s")
	v.SetDefault("subgraph.first", 500)

	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.connection_string", "./data/gamma-ops.db")
	v.SetDefault("storage.max_connections", 10)
	v.SetDefault("storage.max_idle_time", "15m")

	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.webhook_method", "POST")
	v.SetDefault("notifications.timeout", "10s")
	v.SetDefault("notifications.retry_attempts", 3)
	v.SetDefault("notifications.retry_delay", "2s")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.enable_metrics", true)
	v.SetDefault("server.enable_health", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Network.NodeURL == "" {
		return fmt.Errorf("network node URL is required")
	}
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	if c.Keeper.Interval <= 0 {
		return fmt.Errorf("keeper interval must be positive")
	}
	if c.Keeper.PendingTimeout <= 0 {
		return fmt.Errorf("keeper pending timeout must be positive")
	}
	if c.Keeper.ExpiryHour < 0 || c.Keeper.ExpiryHour > 23 {
		return fmt.Errorf("keeper expiry hour must be between 0 and 23, got %d", c.Keeper.ExpiryHour)
	}
	if _, err := ParseWeekday(c.Keeper.ExpiryWeekday); err != nil {
		return err
	}
	if c.Gamma.AddressBook != "" && !common.IsHexAddress(c.Gamma.AddressBook) {
		return fmt.Errorf("gamma address book %q is not a valid address", c.Gamma.AddressBook)
	}

	for _, bot := range c.Keeper.Bots {
		if bot.Type != BotTypeBase && bot.Type != BotTypeDerived {
			return fmt.Errorf("bot %q has unknown type %q", bot.Name, bot.Type)
		}
		for _, asset := range bot.Assets {
			if err := asset.validate(bot.Type); err != nil {
				return fmt.Errorf("bot %q: %w", bot.Name, err)
			}
		}
	}
	return nil
}

func (a AssetConfig) validate(botType string) error {
	required := map[string]string{"asset": a.Asset, "pricer": a.Pricer}
	if botType == BotTypeBase {
		required["aggregator"] = a.Aggregator
	} else {
		required["underlying"] = a.Underlying
	}

	for field, value := range required {
		if !common.IsHexAddress(value) {
			return fmt.Errorf("asset %s: %s %q is not a valid address", a.Asset, field, value)
		}
	}
	return nil
}

// Deployment returns the migration settings for the named network
func (c *Config) Deployment(network string) (NetworkDeployment, bool) {
	d, ok := c.Migrations.Networks[strings.ToLower(network)]
	return d, ok
}

// ParseWeekday parses an English weekday name
func ParseWeekday(name string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), name) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", name)
}
