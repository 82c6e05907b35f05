package trader

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/DigoevR/4z-ape/internal/audit"
	"github.com/DigoevR/4z-ape/internal/chain"
	"github.com/DigoevR/4z-ape/internal/position"
)

var hundred = decimal.NewFromInt(100)

// SellConfig tunes the autosell engine.
type SellConfig struct {
	Reference common.Address

	// Enabled gates every sell, forced liquidations included; the dump-all
	// binary runs with it forced on.
	Enabled bool

	// Percentage of the current holding sold per trigger.
	Percentage int64

	// MinProfit is the proceeds floor for a first sell, in wei. Partial
	// sells after it must beat the already-realized proceeds instead.
	MinProfit decimal.Decimal

	// Attempts bounds the sell retry state machine.
	Attempts int

	// GasPrice (wei) with the typical real gas usage of the two
	// transaction kinds feeds the fee estimate in the sell decision.
	GasPrice       decimal.Decimal
	SwapGasReal    int64
	ApproveGasReal int64
}

// Engine executes sells with at most one in-flight sell per token.
type Engine struct {
	cfg   SellConfig
	store position.Store
	dex   chain.Dex
	trail *audit.Trail

	mu       sync.Mutex
	inFlight map[common.Address]struct{}
}

// NewEngine creates the sell engine.
func NewEngine(cfg SellConfig, store position.Store, dex chain.Dex, trail *audit.Trail) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    store,
		dex:      dex,
		trail:    trail,
		inFlight: make(map[common.Address]struct{}),
	}
}

// tryAcquire test-and-sets the in-flight marker for token.
func (e *Engine) tryAcquire(token common.Address) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[token]; busy {
		return false
	}
	e.inFlight[token] = struct{}{}
	return true
}

func (e *Engine) release(token common.Address) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, token)
}

// SellIfProfitable evaluates and, when warranted, executes a sell for the
// position. A second call for the same token while one is in flight is a
// no-op. dumpAll forces a full liquidation, bypassing the profitability
// gate; the enabled flag and the attempt budget still apply.
//
// Failures are handled internally: the retry budget either produces a
// successful swap or closes the position with a sell error.
func (e *Engine) SellIfProfitable(ctx context.Context, p *position.Position, dumpAll bool) {
	token := p.Token(e.cfg.Reference)
	if !e.tryAcquire(token) {
		log.Debug().Str("token", token.Hex()).Msg("seller: sell already in flight, skipping")
		return
	}
	defer e.release(token)

	if !e.cfg.Enabled || e.cfg.Attempts <= 0 {
		return
	}

	// Work against the store's latest snapshot, not the caller's copy.
	fresh, err := e.store.FindByPair(ctx, p.Pair)
	if err != nil {
		log.Error().Err(err).Str("pair", p.Pair.Hex()).Msg("seller: position fetch failed")
		return
	}
	p = fresh
	if !p.IsOpen() || p.TokenRemaining.IsZero() {
		return
	}

	pct := e.cfg.Percentage
	if dumpAll {
		pct = 100
	}

	if !dumpAll && !e.worthSelling(token, p, pct) {
		return
	}

	e.sell(ctx, p, token, pct, dumpAll)
	e.trail.Flush(token)
}

// worthSelling applies the profitability gate: expected proceeds after fees
// must reach the floor. The floor is the already-realized proceeds when the
// position has sold before (partial sells must improve monotonically),
// otherwise the configured minimum profit.
func (e *Engine) worthSelling(token common.Address, p *position.Position, pct int64) bool {
	fees := estimateFees(e.cfg.GasPrice, e.cfg.SwapGasReal, e.cfg.ApproveGasReal)
	expected := p.ProfitLoss.Mul(decimal.NewFromInt(pct)).Div(hundred).Sub(fees)

	floor := e.cfg.MinProfit
	if p.SoldFor.Valid {
		floor = p.SoldFor.Decimal
	}

	if expected.LessThan(floor) {
		log.Debug().Str("token", token.Hex()).
			Str("expected", expected.String()).
			Str("floor", floor.String()).
			Msg("seller: not profitable enough")
		return false
	}

	e.trail.Add(token, "selling %d%%: expected proceeds %s reach floor %s",
		pct, expected.String(), floor.String())
	return true
}

// sell runs the bounded approval/swap state machine. Approval is re-checked
// on every attempt: a previous approval may itself have failed mid-flight.
func (e *Engine) sell(ctx context.Context, p *position.Position, token common.Address, pct int64, dumpAll bool) {
	maxAttempts := e.cfg.Attempts

	for attempt := 0; ; attempt++ {
		if attempt >= maxAttempts {
			log.Error().Str("token", token.Hex()).Int("attempts", attempt).
				Msg("seller: sell attempts exhausted, closing position")
			e.trail.Add(token, "sell failed after %d attempts", attempt)

			p.Close(position.CloseSellError, time.Now())
			if err := e.store.Update(ctx, p); err != nil {
				log.Error().Err(err).Str("pair", p.Pair.Hex()).Msg("seller: close update failed")
			}
			return
		}

		if !p.Approved {
			if err := e.dex.Approve(ctx, token); err != nil {
				log.Warn().Err(err).Str("token", token.Hex()).Int("attempt", attempt+1).
					Msg("seller: approve failed")
				continue
			}
			p.Approved = true
			if err := e.store.Update(ctx, p); err != nil {
				log.Error().Err(err).Str("pair", p.Pair.Hex()).Msg("seller: approved update failed")
			}
		}

		sellTokens := p.TokenRemaining.Mul(decimal.NewFromInt(pct)).Div(hundred).Floor()

		proceeds, err := e.dex.Sell(ctx, token, sellTokens)
		if err != nil {
			log.Warn().Err(err).Str("token", token.Hex()).Int("attempt", attempt+1).
				Msg("seller: swap failed")
			continue
		}

		e.settle(ctx, p, token, sellTokens, proceeds, pct, dumpAll)
		return
	}
}

// settle persists the outcome of a successful swap.
func (e *Engine) settle(ctx context.Context, p *position.Position, token common.Address,
	sold, proceeds decimal.Decimal, pct int64, dumpAll bool) {

	// The pre-swap estimate is not authoritative: fee-on-transfer tokens
	// move less than asked. Re-read the balance; on failure leave the old
	// value for the next monitor cycle to reconcile.
	if balance, err := e.dex.TokenBalance(ctx, token); err == nil {
		p.TokenRemaining = balance
	} else {
		log.Warn().Err(err).Str("token", token.Hex()).
			Msg("seller: post-swap balance read failed")
	}

	realized := proceeds
	if p.SoldFor.Valid {
		realized = p.SoldFor.Decimal.Add(proceeds)
	}
	p.SoldFor = decimal.NewNullDecimal(realized)

	if pct == 100 {
		reason := position.CloseSellAll
		if dumpAll {
			reason = position.CloseDumpAll
		}
		p.Close(reason, time.Now())
	}

	if err := e.store.Update(ctx, p); err != nil {
		log.Error().Err(err).Str("pair", p.Pair.Hex()).Msg("seller: settle update failed")
		return
	}

	log.Info().Str("token", token.Hex()).
		Str("sold", sold.String()).
		Str("proceeds", proceeds.String()).
		Str("remaining", p.TokenRemaining.String()).
		Msg("seller: sold")
	e.trail.Add(token, "sold %s tokens for %s (total realized %s)",
		sold.String(), proceeds.String(), realized.String())
}

// estimateFees prices the approve+swap pair at typical real gas usage.
func estimateFees(gasPrice decimal.Decimal, swapGas, approveGas int64) decimal.Decimal {
	return gasPrice.Mul(decimal.NewFromInt(swapGas + approveGas))
}
