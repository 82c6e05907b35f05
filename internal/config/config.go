// Package config loads the bot configuration from YAML with environment
// variable expansion.
package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Amount is a decimal YAML scalar given in whole-coin units (e.g. BNB).
type Amount struct {
	decimal.Decimal
}

// UnmarshalYAML parses the scalar as an exact decimal.
func (a *Amount) UnmarshalYAML(value *yaml.Node) error {
	d, err := decimal.NewFromString(value.Value)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", value.Value, err)
	}
	a.Decimal = d
	return nil
}

// Wei converts the whole-coin amount to wei.
func (a Amount) Wei() decimal.Decimal {
	return a.Shift(18)
}

// GweiWei converts the amount, read as gwei, to wei.
func (a Amount) GweiWei() decimal.Decimal {
	return a.Shift(9)
}

// Config is the root configuration structure.
type Config struct {
	General  GeneralConfig  `yaml:"general"`
	Chain    ChainConfig    `yaml:"chain"`
	Trade    TradeConfig    `yaml:"trade"`
	Checks   ChecksConfig   `yaml:"checks"`
	AutoSell AutoSellConfig `yaml:"autosell"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Balance  BalanceConfig  `yaml:"balance"`
	Storage  StorageConfig  `yaml:"storage"`
}

type GeneralConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json|text
	ChecksLog string `yaml:"checks_log"` // per-token decision trail file, empty disables
}

type ChainConfig struct {
	NodeURL   string `yaml:"node_url"` // ws:// endpoint, subscriptions required
	ChainID   int64  `yaml:"chain_id"`
	AccountPK string `yaml:"account_pk"` // hex private key, usually ${ACCOUNT_PK}
	Factory   string `yaml:"factory_address"`
	Router    string `yaml:"router_address"`
	Reference string `yaml:"reference_address"` // wrapped native asset (WBNB)
}

type TradeConfig struct {
	MinReserve Amount `yaml:"min_reserve"`    // minimum reference reserve to consider a pair
	BuyIn      Amount `yaml:"buy_in_amount"`  // reference asset spent per position
	GasPrice   Amount `yaml:"gas_price_gwei"` // gwei

	// Gas limits set on transactions vs. typical real usage; the latter
	// feeds fee estimation in the sell decision.
	SwapGasLimit    uint64 `yaml:"max_gas_swap_tx"`
	ApproveGasLimit uint64 `yaml:"max_gas_approve_tx"`
	SwapGasReal     int64  `yaml:"max_gas_swap_real"`
	ApproveGasReal  int64  `yaml:"max_gas_approve_real"`

	ReceiptMaxTries   int `yaml:"receipt_max_tries"`
	ReceiptTryDelayMs int `yaml:"receipt_try_delay_ms"`
}

type ChecksConfig struct {
	RepeatCount    int `yaml:"repeat_count"`
	InitialDelayMs int `yaml:"initial_delay_ms"`
	RepeatDelayMs  int `yaml:"repeat_delay_ms"`

	AwaitLiquidityLock AwaitLiquidityConfig `yaml:"await_liquidity_lock"`

	SourceCode SourceCodeConfig `yaml:"source_code"`
	Honeypot   HoneypotConfig   `yaml:"honeypot"`
	Suite      SuiteConfig      `yaml:"suite"`
}

// AwaitLiquidityConfig bounds the liquidity-lock polling loop entered when a
// token fails only its liquidity check.
type AwaitLiquidityConfig struct {
	Enabled   bool `yaml:"enabled"`
	MaxChecks int  `yaml:"max_checks"`
	DelayMs   int  `yaml:"delay_ms"`
}

type SourceCodeConfig struct {
	Enabled         bool   `yaml:"enabled"`
	APIURL          string `yaml:"api_url"`
	APIKey          string `yaml:"api_key"`
	AllowUnverified bool   `yaml:"allow_unverified"`
}

type HoneypotConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Simulator string `yaml:"simulator_address"`
	From      string `yaml:"from_address"`
	BuyProbe  Amount `yaml:"buy_probe"` // native value sent into the simulated buy
}

// SuiteConfig configures the HTTP safety-suite provider (ownership,
// liquidity lock, simulated buy, code analysis).
type SuiteConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Endpoint      string `yaml:"endpoint"`
	APIMaxTries   int    `yaml:"api_max_tries"`
	APITryDelayMs int    `yaml:"api_try_delay_ms"`

	OwnershipEnabled bool     `yaml:"ownership_enabled"`
	OwnershipTargets []string `yaml:"ownership_targets"` // owned|renounced|none

	LiquidityEnabled  bool     `yaml:"liquidity_enabled"`
	LiquidityMaxTries int      `yaml:"liquidity_max_tries"`
	LiquidityDelayMs  int      `yaml:"liquidity_try_delay_ms"`
	LiquidityRiskMax  float64  `yaml:"liquidity_risk_max"` // risk below this counts as locked
	LiquidityTargets  []string `yaml:"liquidity_targets"`  // locked|unlocked|nopool

	SimulateBuyEnabled bool    `yaml:"simulate_buy_enabled"`
	MaxBuyFee          float64 `yaml:"max_buy_fee"`
	MaxSellFee         float64 `yaml:"max_sell_fee"`

	CodeEnabled bool `yaml:"code_enabled"`
}

type AutoSellConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Percentage int64  `yaml:"percentage"` // portion of holdings sold per trigger
	MinProfit  Amount `yaml:"min_profit"`
	Attempts   int    `yaml:"attempts"`
}

type MonitorConfig struct {
	IntervalMs       int `yaml:"interval_ms"`
	StartupDelayMs   int `yaml:"startup_delay_ms"`
	StalenessMinutes int `yaml:"staleness_minutes"`

	// RugReservePct is the reserve-depletion threshold: a position whose
	// reference reserve falls to this percentage of its entry value (or
	// lower) with no offsetting profit is treated as a rug.
	RugReservePct float64 `yaml:"rug_reserve_pct"`
}

type BalanceConfig struct {
	CheckIntervalMs int    `yaml:"check_interval_ms"`
	MinBalance      Amount `yaml:"min_balance"`
}

type StorageConfig struct {
	// PostgresDSN selects the persistent store; empty runs in-memory.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Load reads and parses a YAML configuration file, expanding ${VAR}
// references from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "text"
	}
	if cfg.Trade.SwapGasLimit == 0 {
		cfg.Trade.SwapGasLimit = 500_000
	}
	if cfg.Trade.ApproveGasLimit == 0 {
		cfg.Trade.ApproveGasLimit = 100_000
	}
	if cfg.Trade.SwapGasReal == 0 {
		cfg.Trade.SwapGasReal = 200_000
	}
	if cfg.Trade.ApproveGasReal == 0 {
		cfg.Trade.ApproveGasReal = 50_000
	}
	if cfg.Trade.ReceiptMaxTries == 0 {
		cfg.Trade.ReceiptMaxTries = 10
	}
	if cfg.Trade.ReceiptTryDelayMs == 0 {
		cfg.Trade.ReceiptTryDelayMs = 3000
	}
	if cfg.Checks.RepeatCount == 0 {
		cfg.Checks.RepeatCount = 2
	}
	if cfg.Checks.AwaitLiquidityLock.MaxChecks == 0 {
		cfg.Checks.AwaitLiquidityLock.MaxChecks = 10
	}
	if cfg.Checks.AwaitLiquidityLock.DelayMs == 0 {
		cfg.Checks.AwaitLiquidityLock.DelayMs = 30_000
	}
	if cfg.Checks.Suite.APIMaxTries == 0 {
		cfg.Checks.Suite.APIMaxTries = 3
	}
	if cfg.Checks.Suite.APITryDelayMs == 0 {
		cfg.Checks.Suite.APITryDelayMs = 1000
	}
	if cfg.Checks.Suite.LiquidityMaxTries == 0 {
		cfg.Checks.Suite.LiquidityMaxTries = 5
	}
	if cfg.Checks.Suite.LiquidityRiskMax == 0 {
		cfg.Checks.Suite.LiquidityRiskMax = 10
	}
	if len(cfg.Checks.Suite.OwnershipTargets) == 0 {
		cfg.Checks.Suite.OwnershipTargets = []string{"renounced", "none"}
	}
	if len(cfg.Checks.Suite.LiquidityTargets) == 0 {
		cfg.Checks.Suite.LiquidityTargets = []string{"locked"}
	}
	if cfg.Checks.Suite.MaxBuyFee == 0 {
		cfg.Checks.Suite.MaxBuyFee = 10
	}
	if cfg.Checks.Suite.MaxSellFee == 0 {
		cfg.Checks.Suite.MaxSellFee = 10
	}
	if cfg.AutoSell.Percentage == 0 {
		cfg.AutoSell.Percentage = 100
	}
	if cfg.AutoSell.Attempts == 0 {
		cfg.AutoSell.Attempts = 3
	}
	if cfg.Monitor.IntervalMs == 0 {
		cfg.Monitor.IntervalMs = 60_000
	}
	if cfg.Monitor.StartupDelayMs == 0 {
		cfg.Monitor.StartupDelayMs = 1250
	}
	if cfg.Monitor.StalenessMinutes == 0 {
		cfg.Monitor.StalenessMinutes = 2
	}
	if cfg.Monitor.RugReservePct == 0 {
		cfg.Monitor.RugReservePct = 0.5
	}
	if cfg.Balance.CheckIntervalMs == 0 {
		cfg.Balance.CheckIntervalMs = 30_000
	}
}

func validate(cfg *Config) error {
	if cfg.Chain.NodeURL == "" {
		return fmt.Errorf("config: chain.node_url is required")
	}
	if cfg.Chain.Factory == "" || cfg.Chain.Router == "" || cfg.Chain.Reference == "" {
		return fmt.Errorf("config: chain factory/router/reference addresses are required")
	}
	if cfg.Chain.ChainID == 0 {
		return fmt.Errorf("config: chain.chain_id is required")
	}
	if !cfg.Trade.BuyIn.IsPositive() {
		return fmt.Errorf("config: trade.buy_in_amount must be positive")
	}
	return nil
}
