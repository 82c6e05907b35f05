package trader

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/DigoevR/4z-ape/internal/chain"
	"github.com/DigoevR/4z-ape/internal/position"
	"github.com/DigoevR/4z-ape/internal/pricer"
)

// Liquidator forces full exits outside the normal monitor flow: the dumpall
// command and emergency exits. It only decides whether a forced sell is
// worth submitting at all; execution stays with the sell engine.
type Liquidator struct {
	cfg    SellConfig
	store  position.Store
	reader chain.Dex
	pricer pricer.Pricer
	engine *Engine
}

// NewLiquidator creates a liquidator sharing the engine's sell config.
func NewLiquidator(cfg SellConfig, store position.Store, reader chain.Dex,
	pr pricer.Pricer, engine *Engine) *Liquidator {
	return &Liquidator{cfg: cfg, store: store, reader: reader, pricer: pr, engine: engine}
}

// DumpAll force-sells every open position still holding tokens.
func (l *Liquidator) DumpAll(ctx context.Context) {
	positions, err := l.store.FindAll(ctx, position.Filter{
		Opened:          true,
		NotClosed:       true,
		TokensRemaining: true,
	})
	if err != nil {
		log.Error().Err(err).Msg("liquidator: position query failed")
		return
	}

	log.Info().Int("positions", len(positions)).Msg("liquidator: dumping all positions")
	for _, p := range positions {
		l.dump(ctx, p)
	}
}

// DumpSingle force-sells the position for one pair.
func (l *Liquidator) DumpSingle(ctx context.Context, pair common.Address) {
	p, err := l.store.FindByPair(ctx, pair)
	if err != nil {
		log.Error().Err(err).Str("pair", pair.Hex()).Msg("liquidator: position fetch failed")
		return
	}
	l.dump(ctx, p)
}

// dump submits a forced sell when the pool can still pay more than the gas
// it costs to exit.
func (l *Liquidator) dump(ctx context.Context, p *position.Position) {
	token := p.Token(l.cfg.Reference)

	reserve, err := l.reader.GetReserves(ctx, p.Pair)
	if err != nil {
		log.Error().Err(err).Str("pair", p.Pair.Hex()).Msg("liquidator: reserve read failed")
		return
	}
	if reserve.IsZero() {
		log.Info().Str("token", token.Hex()).Msg("liquidator: pool is empty, nothing to dump")
		return
	}

	var in0, in1 decimal.Decimal
	if p.ReferenceIsToken0(l.cfg.Reference) {
		in1 = p.TokenRemaining
	} else {
		in0 = p.TokenRemaining
	}
	proceeds := l.pricer.OutGivenIn(reserve, in0, in1)
	fees := estimateFees(l.cfg.GasPrice, l.cfg.SwapGasReal, l.cfg.ApproveGasReal)
	if proceeds.LessThanOrEqual(fees) {
		log.Info().Str("token", token.Hex()).
			Str("proceeds", proceeds.String()).
			Str("fees", fees.String()).
			Msg("liquidator: proceeds would not cover gas, skipping")
		return
	}

	l.engine.SellIfProfitable(ctx, p, true)
}
