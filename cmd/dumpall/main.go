// Command dumpall force-sells every open position and exits. Emergency
// valve for when the bot should be flat now, not at the next profitable
// moment.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/DigoevR/4z-ape/internal/chain"
	"github.com/DigoevR/4z-ape/internal/config"
	"github.com/DigoevR/4z-ape/internal/position/postgres"
	"github.com/DigoevR/4z-ape/internal/pricer"
	"github.com/DigoevR/4z-ape/internal/trader"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	pair := flag.String("pair", "", "Dump only the position for this pair address")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("service", "dumpall").Logger()

	if cfg.Storage.PostgresDSN == "" {
		log.Fatal().Msg("dumpall needs storage.postgres_dsn: in-memory positions die with the bot")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	store, err := postgres.New(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Postgres store init failed")
	}
	defer store.Close()

	sellCfg := trader.SellConfig{
		Reference:      reference,
		Enabled:        true,
		Percentage:     100,
		MinProfit:      cfg.AutoSell.MinProfit.Wei(),
		Attempts:       cfg.AutoSell.Attempts,
		GasPrice:       cfg.Trade.GasPrice.GweiWei(),
		SwapGasReal:    cfg.Trade.SwapGasReal,
		ApproveGasReal: cfg.Trade.ApproveGasReal,
	}
	engine := trader.NewEngine(sellCfg, store, exchange, nil)
	liquidator := trader.NewLiquidator(sellCfg, store, exchange, pricer.New(pricer.DefaultFeePerMille), engine)

	if *pair != "" {
		liquidator.DumpSingle(ctx, common.HexToAddress(*pair))
	} else {
		liquidator.DumpAll(ctx)
	}
	log.Info().Msg("dumpall finished")
}
