package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	RPCUrl     string
	ChainID    int64
	PrivateKey string

	Pricing  PricingConfig
	Quote    QuoteConfig
	Swap     SwapConfig
	Chain    ChainConfig
	Payout   PayoutConfig
	Disperse DisperseConfig
	History  HistoryConfig
	OneClick OneClickConfig
	Metrics  MetricsConfig
}

// PricingConfig configures the remote swap-pricing service
type PricingConfig struct {
	BaseURL string
	APIKey  string
	Spender string // contract that receives the ERC-20 allowance
	Timeout time.Duration
}

// QuoteConfig configures the quote pipeline
type QuoteConfig struct {
	Debounce        time.Duration
	DisplayDecimals int // 0 means "use the token's decimals"
}

// SwapConfig configures the swap orchestration
type SwapConfig struct {
	ResetDelay time.Duration
}

// ChainConfig configures transaction building and confirmation polling
type ChainConfig struct {
	PollInterval   time.Duration
	ReceiptTimeout time.Duration
	GasLimit       *uint64
	GasPrice       *int64
}

// PayoutConfig configures the fiat-rail payout flow
type PayoutConfig struct {
	Token          string
	DepositAddress string
}

// DisperseConfig configures batch disperse
type DisperseConfig struct {
	Contract string
}

// HistoryConfig configures the run journal
type HistoryConfig struct {
	Path string
}

// OneClickConfig configures the 1Click token discovery API
type OneClickConfig struct {
	JWTToken string
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Addr string
}

const (
	DefaultPricingURL = "https://api.0x.org"
	// Permit2 is deployed at the same address on every supported chain.
	DefaultSpender  = "0x000000000022D473030F116dDEE9F6B43aC78BA3"
	DefaultDisperse = "0xD152f549545093347A162Dce210e7293f1452150"
	HistoryFileName = ".swapdash-history.json"
)

var globalConfig *Config

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetConfigName(".swapdash")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvPrefix("SWAPDASH")
	viper.AutomaticEnv()

	// Config file is optional
	_ = viper.ReadInConfig()

	cfg := &Config{
		RPCUrl:     viper.GetString("rpc_url"),
		ChainID:    viper.GetInt64("chain_id"),
		PrivateKey: viper.GetString("private_key"),
		Pricing: PricingConfig{
			BaseURL: viper.GetString("pricing.base_url"),
			APIKey:  viper.GetString("pricing.api_key"),
			Spender: viper.GetString("pricing.spender"),
			Timeout: viper.GetDuration("pricing.timeout"),
		},
		Quote: QuoteConfig{
			Debounce:        viper.GetDuration("quote.debounce"),
			DisplayDecimals: viper.GetInt("quote.display_decimals"),
		},
		Swap: SwapConfig{
			ResetDelay: viper.GetDuration("swap.reset_delay"),
		},
		Chain: ChainConfig{
			PollInterval:   viper.GetDuration("chain.poll_interval"),
			ReceiptTimeout: viper.GetDuration("chain.receipt_timeout"),
		},
		Payout: PayoutConfig{
			Token:          viper.GetString("payout.token"),
			DepositAddress: viper.GetString("payout.deposit_address"),
		},
		Disperse: DisperseConfig{
			Contract: viper.GetString("disperse.contract"),
		},
		History: HistoryConfig{
			Path: viper.GetString("history.path"),
		},
		OneClick: OneClickConfig{
			JWTToken: viper.GetString("oneclick.jwt_token"),
		},
		Metrics: MetricsConfig{
			Addr: viper.GetString("metrics.addr"),
		},
	}

	if viper.IsSet("chain.gas_limit") {
		v := viper.GetUint64("chain.gas_limit")
		cfg.Chain.GasLimit = &v
	}
	if viper.IsSet("chain.gas_price") {
		v := viper.GetInt64("chain.gas_price")
		cfg.Chain.GasPrice = &v
	}

	if cfg.History.Path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.History.Path = filepath.Join(home, HistoryFileName)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("chain_id", 1)
	viper.SetDefault("pricing.base_url", DefaultPricingURL)
	viper.SetDefault("pricing.spender", DefaultSpender)
	viper.SetDefault("pricing.timeout", 15*time.Second)
	viper.SetDefault("quote.debounce", 500*time.Millisecond)
	viper.SetDefault("swap.reset_delay", 3*time.Second)
	viper.SetDefault("chain.poll_interval", time.Second)
	viper.SetDefault("chain.receipt_timeout", 10*time.Minute)
	viper.SetDefault("payout.token", "USDC")
	viper.SetDefault("disperse.contract", DefaultDisperse)
}

// Validate checks values every command depends on
func (c *Config) Validate() error {
	if c.ChainID <= 0 {
		return fmt.Errorf("chain_id must be positive, got %d", c.ChainID)
	}
	if c.Quote.Debounce < 0 {
		return fmt.Errorf("quote.debounce must not be negative")
	}
	if c.Quote.DisplayDecimals < 0 {
		return fmt.Errorf("quote.display_decimals must not be negative")
	}
	if c.Chain.PollInterval <= 0 {
		return fmt.Errorf("chain.poll_interval must be positive")
	}
	return nil
}

// RequireWallet reports whether the settings needed to sign are present
func (c *Config) RequireWallet() error {
	if c.RPCUrl == "" {
		return fmt.Errorf("RPC URL not found. Please set SWAPDASH_RPC_URL or rpc_url in .swapdash.yaml")
	}
	if c.PrivateKey == "" {
		return fmt.Errorf("private key not found. Please set SWAPDASH_PRIVATE_KEY or private_key in .swapdash.yaml")
	}
	return nil
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
