package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/DigoevR/4z-ape/internal/audit"
	"github.com/DigoevR/4z-ape/internal/balance"
	"github.com/DigoevR/4z-ape/internal/chain"
	"github.com/DigoevR/4z-ape/internal/config"
	"github.com/DigoevR/4z-ape/internal/position"
	"github.com/DigoevR/4z-ape/internal/position/memory"
	"github.com/DigoevR/4z-ape/internal/position/postgres"
	"github.com/DigoevR/4z-ape/internal/pricer"
	"github.com/DigoevR/4z-ape/internal/safety"
	"github.com/DigoevR/4z-ape/internal/trader"
	"github.com/DigoevR/4z-ape/internal/watcher"
)

func main() {
	// 1. Parse flags.
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	flag.Parse()

	// 2. Load .env (optional) and configuration.
	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	// 3. Setup logging.
	setupLogging(cfg.General)

	log.Info().Msg("=============================================")
	log.Info().Msg("4z-ape - new pair sniper starting")
	log.Info().Msg("WATCH -> CHECK -> BUY -> MONITOR -> SELL")
	log.Info().Msg("=============================================")
	log.Info().
		Int64("chain_id", cfg.Chain.ChainID).
		Str("buy_in", cfg.Trade.BuyIn.String()).
		Str("min_reserve", cfg.Trade.MinReserve.String()).
		Bool("autosell", cfg.AutoSell.Enabled).
		Int("check_repeats", cfg.Checks.RepeatCount).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Connect to the chain.
	key, err := crypto.HexToECDSA(cfg.Chain.AccountPK)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid account private key")
	}
	account := crypto.PubkeyToAddress(key.PublicKey)

	client, err := chain.Dial(ctx, cfg.Chain.NodeURL, account,
		common.HexToAddress(cfg.Chain.Factory))
	if err != nil {
		log.Fatal().Err(err).Str("node", cfg.Chain.NodeURL).Msg("Chain connection failed")
	}
	defer client.Close()
	log.Info().Str("account", account.Hex()).Str("node", cfg.Chain.NodeURL).Msg("Chain connected")

	// 5. Transaction submitter and exchange.
	submitter, err := chain.NewSubmitter(ctx, client.Eth(), key, chain.SubmitterConfig{
		ChainID:         big.NewInt(cfg.Chain.ChainID),
		GasPrice:        cfg.Trade.GasPrice.GweiWei().BigInt(),
		ReceiptMaxTries: cfg.Trade.ReceiptMaxTries,
		ReceiptDelay:    time.Duration(cfg.Trade.ReceiptTryDelayMs) * time.Millisecond,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Submitter init failed")
	}

	reference := common.HexToAddress(cfg.Chain.Reference)
	exchange := chain.NewExchange(client, submitter, chain.ExchangeConfig{
		Router:          common.HexToAddress(cfg.Chain.Router),
		Reference:       reference,
		SwapGasLimit:    cfg.Trade.SwapGasLimit,
		ApproveGasLimit: cfg.Trade.ApproveGasLimit,
	})

	// 6. Position store.
	store, closeStore := openStore(ctx, cfg.Storage)
	defer closeStore()

	// 7. Audit trail.
	trail := openTrail(cfg.General.ChecksLog)

	// 8. Safety gate.
	suite := safety.NewSuiteCheck(cfg.Checks.Suite, trail)
	checks := []safety.Check{
		suite,
		safety.NewSourceCodeCheck(cfg.Checks.SourceCode, trail),
		safety.NewHoneypotCheck(cfg.Checks.Honeypot, client, trail),
	}
	gate := safety.NewGate(safety.GateConfig{
		RepeatCount:    cfg.Checks.RepeatCount,
		InitialDelay:   time.Duration(cfg.Checks.InitialDelayMs) * time.Millisecond,
		RepeatDelay:    time.Duration(cfg.Checks.RepeatDelayMs) * time.Millisecond,
		AwaitLiquidity: cfg.Checks.AwaitLiquidityLock.Enabled,
		AwaitMaxChecks: cfg.Checks.AwaitLiquidityLock.MaxChecks,
		AwaitDelay:     time.Duration(cfg.Checks.AwaitLiquidityLock.DelayMs) * time.Millisecond,
	}, checks, trail)

	// 9. Trading core.
	sellCfg := trader.SellConfig{
		Reference:      reference,
		Enabled:        cfg.AutoSell.Enabled,
		Percentage:     cfg.AutoSell.Percentage,
		MinProfit:      cfg.AutoSell.MinProfit.Wei(),
		Attempts:       cfg.AutoSell.Attempts,
		GasPrice:       cfg.Trade.GasPrice.GweiWei(),
		SwapGasReal:    cfg.Trade.SwapGasReal,
		ApproveGasReal: cfg.Trade.ApproveGasReal,
	}
	engine := trader.NewEngine(sellCfg, store, exchange, trail)

	opener := trader.NewOpener(trader.OpenerConfig{
		Reference:  reference,
		MinReserve: cfg.Trade.MinReserve.Wei(),
		BuyIn:      cfg.Trade.BuyIn.Wei(),
	}, store, exchange, gate, trail)

	monitor := trader.NewMonitor(trader.MonitorConfig{
		Reference:     reference,
		Interval:      time.Duration(cfg.Monitor.IntervalMs) * time.Millisecond,
		StartupDelay:  time.Duration(cfg.Monitor.StartupDelayMs) * time.Millisecond,
		Staleness:     time.Duration(cfg.Monitor.StalenessMinutes) * time.Minute,
		RugReservePct: decimal.NewFromFloat(cfg.Monitor.RugReservePct),
	}, store, exchange, pricer.New(pricer.DefaultFeePerMille), suite, engine, trail)

	// 10. Pair watcher and balance watchdog.
	pairWatcher := watcher.New(watcher.Config{Reference: reference}, client, opener.Handle)

	watchdog := balance.New(balance.Config{
		Interval:   time.Duration(cfg.Balance.CheckIntervalMs) * time.Millisecond,
		MinBalance: cfg.Balance.MinBalance.Wei(),
	}, client, pairWatcher, monitor)

	// 11. Run until signalled.
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); pairWatcher.Run(ctx) }()
	go func() { defer wg.Done(); monitor.Run(ctx) }()
	go func() { defer wg.Done(); watchdog.Run(ctx) }()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")
	wg.Wait()
	log.Info().Msg("4z-ape stopped")
}

// openStore selects the configured position store.
func openStore(ctx context.Context, cfg config.StorageConfig) (position.Store, func()) {
	if cfg.PostgresDSN == "" {
		log.Info().Msg("Position store: in-memory")
		return memory.NewStore(), func() {}
	}

	store, err := postgres.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Postgres store init failed")
	}
	log.Info().Msg("Position store: postgres")
	return store, store.Close
}

// openTrail creates the per-token decision trail, or a no-op trail when no
// log file is configured.
func openTrail(path string) *audit.Trail {
	if path == "" {
		return audit.NewTrail(nil)
	}
	sink, err := audit.NewFileSink(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Checks log init failed")
	}
	return audit.NewTrail(sink)
}

func setupLogging(general config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if general.LogFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Str("service", "ape").Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).
			With().Timestamp().Str("service", "ape").Logger()
	}
}
