// Package trader holds the money-moving core: opening positions on gate
// acceptance, the autosell engine, the profit/loss monitor, and bulk
// liquidation.
package trader

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/DigoevR/4z-ape/internal/audit"
	"github.com/DigoevR/4z-ape/internal/chain"
	"github.com/DigoevR/4z-ape/internal/position"
)

// Gate abstracts the safety gate for the opener.
type Gate interface {
	Evaluate(ctx context.Context, token common.Address) bool
}

// OpenerConfig tunes position entry.
type OpenerConfig struct {
	Reference common.Address

	// MinReserve is the smallest reference-asset reserve worth entering, in
	// wei. Thinner pools cannot absorb the buy without crippling slippage.
	MinReserve decimal.Decimal

	// BuyIn is the reference-asset amount spent per position, in wei.
	BuyIn decimal.Decimal

	// ApproveAttempts bounds the post-buy approval loop. Attempts run
	// back-to-back: approval failures are transient nonce or gas issues,
	// not economic ones.
	ApproveAttempts int
}

// Opener evaluates new pairs and opens positions on acceptance.
type Opener struct {
	cfg   OpenerConfig
	store position.Store
	dex   chain.Dex
	gate  Gate
	trail *audit.Trail
}

// NewOpener creates an opener.
func NewOpener(cfg OpenerConfig, store position.Store, dex chain.Dex, gate Gate, trail *audit.Trail) *Opener {
	if cfg.ApproveAttempts <= 0 {
		cfg.ApproveAttempts = 10
	}
	return &Opener{cfg: cfg, store: store, dex: dex, gate: gate, trail: trail}
}

// Handle is the watcher callback: filter, gate, open. The audit trail for
// the token is flushed once the decision is final.
func (o *Opener) Handle(ctx context.Context, ev chain.PairCreated, reserve chain.Reserve) {
	token := tradedToken(ev, o.cfg.Reference)
	defer o.trail.Flush(token)

	o.trail.Add(token, "new pair %s (token0 %s, token1 %s)",
		ev.Pair.Hex(), ev.Token0.Hex(), ev.Token1.Hex())

	refReserve := referenceReserve(ev, reserve, o.cfg.Reference)
	if refReserve.LessThan(o.cfg.MinReserve) {
		o.trail.Add(token, "reserve %s below minimum %s, skipping",
			refReserve.String(), o.cfg.MinReserve.String())
		return
	}

	if !o.gate.Evaluate(ctx, token) {
		return
	}

	o.Open(ctx, ev, refReserve)
}

// Open creates the position record and issues the buy. Creation is
// idempotent per pair: a second call for the same pair is a no-op.
func (o *Opener) Open(ctx context.Context, ev chain.PairCreated, refReserve decimal.Decimal) {
	token := tradedToken(ev, o.cfg.Reference)

	if _, err := o.store.FindByPair(ctx, ev.Pair); err == nil {
		o.trail.Add(token, "position for pair %s already exists, skipping", ev.Pair.Hex())
		return
	} else if !errors.Is(err, position.ErrNotFound) {
		log.Error().Err(err).Str("pair", ev.Pair.Hex()).Msg("opener: position lookup failed")
		return
	}

	p := &position.Position{
		Pair:         ev.Pair,
		Token0:       ev.Token0,
		Token1:       ev.Token1,
		ReserveEnter: refReserve,
	}
	if err := o.store.Create(ctx, p); err != nil {
		if errors.Is(err, position.ErrDuplicatePair) {
			o.trail.Add(token, "position for pair %s already exists, skipping", ev.Pair.Hex())
			return
		}
		log.Error().Err(err).Str("pair", ev.Pair.Hex()).Msg("opener: position create failed")
		return
	}

	o.trail.Add(token, "buying for %s", o.cfg.BuyIn.String())

	got, err := o.dex.Buy(ctx, token, o.cfg.BuyIn)
	if err != nil {
		log.Error().Err(err).Str("token", token.Hex()).Msg("opener: buy failed")
		o.trail.Add(token, "buy failed: %v", err)

		p.Close(position.CloseOpenError, time.Now())
		if uerr := o.store.Update(ctx, p); uerr != nil {
			log.Error().Err(uerr).Str("pair", ev.Pair.Hex()).Msg("opener: close update failed")
		}
		return
	}

	now := time.Now()
	p.Spent = o.cfg.BuyIn
	p.GotToken = got
	p.TokenRemaining = got
	p.OpenedAt = &now
	if err := o.store.Update(ctx, p); err != nil {
		log.Error().Err(err).Str("pair", ev.Pair.Hex()).Msg("opener: open update failed")
		return
	}

	log.Info().Str("token", token.Hex()).
		Str("spent", p.Spent.String()).
		Str("got", got.String()).
		Msg("opener: position opened")
	o.trail.Add(token, "bought %s tokens for %s", got.String(), p.Spent.String())

	o.approve(ctx, p, token)
}

// approve grants the router allowance, retrying back-to-back. A position
// left unapproved is not an error: the sell path re-attempts approval.
func (o *Opener) approve(ctx context.Context, p *position.Position, token common.Address) {
	for attempt := 1; attempt <= o.cfg.ApproveAttempts; attempt++ {
		err := o.dex.Approve(ctx, token)
		if err == nil {
			p.Approved = true
			if uerr := o.store.Update(ctx, p); uerr != nil {
				log.Error().Err(uerr).Str("pair", p.Pair.Hex()).Msg("opener: approved update failed")
			}
			o.trail.Add(token, "router approved")
			return
		}
		log.Warn().Err(err).Str("token", token.Hex()).Int("attempt", attempt).
			Msg("opener: approve failed")
	}
	o.trail.Add(token, "approval failed after %d attempts, deferring to sell path",
		o.cfg.ApproveAttempts)
}

// tradedToken returns the non-reference side of a new pair.
func tradedToken(ev chain.PairCreated, reference common.Address) common.Address {
	if ev.Token0 == reference {
		return ev.Token1
	}
	return ev.Token0
}

// referenceReserve returns the reference-asset side of the pool reserves.
func referenceReserve(ev chain.PairCreated, reserve chain.Reserve, reference common.Address) decimal.Decimal {
	if ev.Token0 == reference {
		return reserve.Reserve0
	}
	return reserve.Reserve1
}
