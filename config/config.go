package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"insightquest/database"
	"insightquest/models"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string `env:"DATABASE_URL"`
	DatabaseName string `env:"DATABASE_NAME"`

	// Remembered session store; Postgres is used when empty
	RedisURL string `env:"REDIS_URL"`
	ClientID string `env:"CLIENT_ID" envDefault:"local"`

	// Wallet bridge
	WalletBridgeURL string `env:"WALLET_BRIDGE_URL"`

	// Token ledger
	LedgerRPCURL         string  `env:"LEDGER_RPC_URL"`
	TokenContractAddress string  `env:"TOKEN_CONTRACT_ADDRESS"`
	TokenDecimals        int     `env:"TOKEN_DECIMALS" envDefault:"18"`
	TokenSymbol          string  `env:"TOKEN_SYMBOL" envDefault:"TASK"`
	TokenImage           string  `env:"TOKEN_IMAGE"`
	LedgerRateLimit      float64 `env:"LEDGER_RATE_LIMIT" envDefault:"5"`

	// Required network
	RequiredChainID     string        `env:"REQUIRED_CHAIN_ID" envDefault:"0xaa36a7"`
	ChainName           string        `env:"CHAIN_NAME" envDefault:"Sepolia"`
	ChainRPCURL         string        `env:"CHAIN_RPC_URL" envDefault:"https://rpc.sepolia.org"`
	ChainExplorerURL    string        `env:"CHAIN_EXPLORER_URL" envDefault:"https://sepolia.etherscan.io"`
	ChainCurrencyName   string        `env:"CHAIN_CURRENCY_NAME" envDefault:"Sepolia Ether"`
	ChainCurrencySymbol string        `env:"CHAIN_CURRENCY_SYMBOL" envDefault:"ETH"`
	BalancePollInterval time.Duration `env:"BALANCE_POLL_INTERVAL" envDefault:"30s"`

	// NATS event forwarding; disabled when empty
	NATSServers string `env:"NATS_SERVERS"`

	// HTTP surface
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// OpenTelemetry
	OTelEnabled              bool   `env:"OTEL_ENABLED"`
	OTelExporterType         string `env:"OTEL_EXPORTER_TYPE" envDefault:"console"`
	OTelOTLPEndpoint         string `env:"OTEL_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTelServiceName          string `env:"OTEL_SERVICE_NAME" envDefault:"insightquest"`
	OTelExportIntervalMillis int    `env:"OTEL_EXPORT_INTERVAL_MILLIS" envDefault:"60000"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// Environment
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	// If instance is already set (e.g., by tests), return it
	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// Network returns the descriptor of the chain the session is bound to
func (c *Config) Network() models.NetworkDescriptor {
	network := models.NetworkDescriptor{
		ChainID:        strings.ToLower(c.RequiredChainID),
		ChainName:      c.ChainName,
		CurrencyName:   c.ChainCurrencyName,
		CurrencySymbol: c.ChainCurrencySymbol,
		Decimals:       18,
	}
	if c.ChainRPCURL != "" {
		network.RPCURLs = []string{c.ChainRPCURL}
	}
	if c.ChainExplorerURL != "" {
		network.ExplorerURLs = []string{c.ChainExplorerURL}
	}
	return network
}

// Token returns the reward token the wallet is asked to watch
func (c *Config) Token() models.TokenAsset {
	return models.TokenAsset{
		Address:  c.TokenContractAddress,
		Symbol:   c.TokenSymbol,
		Decimals: c.TokenDecimals,
		Image:    c.TokenImage,
	}
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if config.Environment != "test" {
		// Validate required configuration
		required := []struct {
			name  string
			value string
		}{
			{"DATABASE_URL", config.DatabaseURL},
			{"WALLET_BRIDGE_URL", config.WalletBridgeURL},
			{"LEDGER_RPC_URL", config.LedgerRPCURL},
			{"TOKEN_CONTRACT_ADDRESS", config.TokenContractAddress},
		}
		for _, r := range required {
			if strings.TrimSpace(r.value) == "" {
				return nil, fmt.Errorf("%s is required", r.name)
			}
		}
		// If DatabaseName is provided, ensure it's not empty
		if config.DatabaseName != "" && strings.TrimSpace(config.DatabaseName) == "" {
			return nil, fmt.Errorf("DATABASE_NAME cannot be empty when provided")
		}
	}

	if config.BalancePollInterval <= 0 {
		return nil, fmt.Errorf("BALANCE_POLL_INTERVAL must be positive, got %s", config.BalancePollInterval)
	}
	if !strings.HasPrefix(strings.ToLower(config.RequiredChainID), "0x") {
		return nil, fmt.Errorf("REQUIRED_CHAIN_ID must be hex, got %q", config.RequiredChainID)
	}

	return config, nil
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
// This should only be called from test files
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
// This should only be called from test files
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		ClientID:            "test",
		TokenDecimals:       18,
		TokenSymbol:         "TASK",
		RequiredChainID:     "0xaa36a7",
		ChainName:           "Sepolia",
		ChainCurrencyName:   "Sepolia Ether",
		ChainCurrencySymbol: "ETH",
		BalancePollInterval: 30 * time.Second,
		HTTPAddr:            ":8080",
		ShutdownTimeout:     10 * time.Second,
		OTelExporterType:    "none",
		OTelServiceName:     "insightquest-test",
		LogLevel:            "info",
		LogFormat:           "text",
		Environment:         "test",
	}
}
