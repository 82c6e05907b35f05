package trader

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/DigoevR/4z-ape/internal/audit"
	"github.com/DigoevR/4z-ape/internal/chain"
	"github.com/DigoevR/4z-ape/internal/position"
	"github.com/DigoevR/4z-ape/internal/pricer"
	"github.com/DigoevR/4z-ape/internal/safety"
)

// MonitorConfig tunes the position monitor loop.
type MonitorConfig struct {
	Reference common.Address

	Interval     time.Duration
	StartupDelay time.Duration

	// Staleness is the minimum age of a position's last profit/loss check
	// before this cycle touches it again. Together with the sell mutex it
	// keeps cycles from overlapping on the same position.
	Staleness time.Duration

	// RugReservePct is the reserve-depletion rug threshold, in percent of
	// the entry reserve.
	RugReservePct decimal.Decimal
}

// Monitor periodically re-values open positions and reacts: closes emptied
// or rugged positions, forces liquidation on liquidity unlock, and hands
// healthy positions to the sell engine.
type Monitor struct {
	cfg    MonitorConfig
	store  position.Store
	reader chain.Dex
	pricer pricer.Pricer
	lock   safety.LockChecker
	engine *Engine
	trail  *audit.Trail

	suppressed atomic.Bool
}

// Suppress pauses monitor cycles. Positions keep their state and are picked
// up again once suppression lifts.
func (m *Monitor) Suppress(on bool) {
	if m.suppressed.Swap(on) != on {
		log.Warn().Bool("suppressed", on).Msg("monitor: suppression toggled")
	}
}

// NewMonitor creates the monitor.
func NewMonitor(cfg MonitorConfig, store position.Store, reader chain.Dex,
	pr pricer.Pricer, lock safety.LockChecker, engine *Engine, trail *audit.Trail) *Monitor {
	return &Monitor{
		cfg:    cfg,
		store:  store,
		reader: reader,
		pricer: pr,
		lock:   lock,
		engine: engine,
		trail:  trail,
	}
}

// Run executes monitor cycles until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(m.cfg.StartupDelay):
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		m.cycle(ctx)
		select {
		case <-ctx.Done():
			log.Info().Msg("monitor: stopped")
			return
		case <-ticker.C:
		}
	}
}

// cycle processes every stale open position concurrently. A failure in one
// position never blocks the others.
func (m *Monitor) cycle(ctx context.Context) {
	if m.suppressed.Load() {
		return
	}
	cutoff := time.Now().Add(-m.cfg.Staleness)
	positions, err := m.store.FindAll(ctx, position.Filter{
		Opened:        true,
		NotClosed:     true,
		CheckedBefore: &cutoff,
	})
	if err != nil {
		log.Error().Err(err).Msg("monitor: position query failed")
		return
	}
	if len(positions) == 0 {
		return
	}

	log.Debug().Int("positions", len(positions)).Msg("monitor: cycle started")

	var wg sync.WaitGroup
	for _, p := range positions {
		wg.Add(1)
		go func(p *position.Position) {
			defer wg.Done()
			m.process(ctx, p)
		}(p)
	}
	wg.Wait()
}

func (m *Monitor) process(ctx context.Context, p *position.Position) {
	token := p.Token(m.cfg.Reference)

	balance, err := m.reader.TokenBalance(ctx, token)
	if err != nil {
		log.Error().Err(err).Str("token", token.Hex()).Msg("monitor: balance read failed")
		return
	}
	if balance.IsZero() {
		// The tokens left without us selling them. Nothing to monitor.
		log.Info().Str("token", token.Hex()).Msg("monitor: token balance is zero, closing")
		m.trail.Add(token, "token balance is zero, closing position")
		m.close(ctx, p, position.CloseZeroTokens)
		m.trail.Flush(token)
		return
	}

	reserve, err := m.reader.GetReserves(ctx, p.Pair)
	if err != nil {
		log.Error().Err(err).Str("pair", p.Pair.Hex()).Msg("monitor: reserve read failed")
		return
	}

	var in0, in1 decimal.Decimal
	if p.ReferenceIsToken0(m.cfg.Reference) {
		in1 = balance
	} else {
		in0 = balance
	}
	out := m.pricer.OutGivenIn(reserve, in0, in1)

	p.TokenRemaining = balance
	p.ProfitLoss = out.Sub(p.Spent)
	p.ProfitLossCheckedAt = time.Now()
	if err := m.store.Update(ctx, p); err != nil {
		log.Error().Err(err).Str("pair", p.Pair.Hex()).Msg("monitor: valuation update failed")
		return
	}

	log.Debug().Str("token", token.Hex()).
		Str("profit_loss", p.ProfitLoss.String()).
		Str("remaining", p.TokenRemaining.String()).
		Msg("monitor: position valued")

	if !m.lock.LiquidityLocked(ctx, token) {
		log.Warn().Str("token", token.Hex()).Msg("monitor: liquidity no longer locked, dumping")
		m.trail.Add(token, "liquidity no longer locked, dumping position")
		m.engine.SellIfProfitable(ctx, p, true)
		m.closeFresh(ctx, p.Pair, position.CloseRug)
		m.trail.Flush(token)
		return
	}

	refReserve := reserve.Reserve1
	if p.ReferenceIsToken0(m.cfg.Reference) {
		refReserve = reserve.Reserve0
	}
	remainingPct := refReserve.Mul(hundred).Div(p.ReserveEnter)

	if remainingPct.LessThanOrEqual(m.cfg.RugReservePct) {
		if p.ProfitLoss.LessThanOrEqual(decimal.Zero) {
			// Near-total reserve depletion with nothing to show for it is
			// abandonment, not a drawdown.
			log.Warn().Str("token", token.Hex()).
				Str("reserve_pct", remainingPct.String()).
				Msg("monitor: reserve drained, closing as rug")
			m.trail.Add(token, "reserve down to %s%% with no profit, closing as rug",
				remainingPct.StringFixed(2))
			m.close(ctx, p, position.CloseRug)
			m.trail.Flush(token)
		}
		// In profit on a drained reserve: too thin to act on safely, wait.
		return
	}

	m.engine.SellIfProfitable(ctx, p, false)
}

func (m *Monitor) close(ctx context.Context, p *position.Position, reason position.CloseReason) {
	p.Close(reason, time.Now())
	if err := m.store.Update(ctx, p); err != nil {
		log.Error().Err(err).Str("pair", p.Pair.Hex()).Msg("monitor: close update failed")
	}
}

// closeFresh re-reads the record before closing: the sell engine may have
// updated it since our snapshot.
func (m *Monitor) closeFresh(ctx context.Context, pair common.Address, reason position.CloseReason) {
	p, err := m.store.FindByPair(ctx, pair)
	if err != nil {
		log.Error().Err(err).Str("pair", pair.Hex()).Msg("monitor: close fetch failed")
		return
	}
	m.close(ctx, p, reason)
}
