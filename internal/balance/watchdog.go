// Package balance pauses position entry while the account cannot fund it.
package balance

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/DigoevR/4z-ape/internal/chain"
)

// Suppressible is anything whose intake can be paused. The pair watcher
// satisfies it.
type Suppressible interface {
	Suppress(on bool)
}

// Config tunes the watchdog.
type Config struct {
	// Interval between balance reads.
	Interval time.Duration

	// MinBalance is the native-asset floor in wei. Below it, new buys are
	// pointless: they would fail on insufficient funds after burning a
	// nonce attempt.
	MinBalance decimal.Decimal
}

// Watchdog polls the account balance and toggles intake suppression on the
// registered targets.
type Watchdog struct {
	cfg     Config
	reader  chain.Reader
	targets []Suppressible
}

// New creates a watchdog over the given targets.
func New(cfg Config, reader chain.Reader, targets ...Suppressible) *Watchdog {
	return &Watchdog{cfg: cfg, reader: reader, targets: targets}
}

// Run polls until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	suppressed := false
	for {
		suppressed = w.check(ctx, suppressed)
		select {
		case <-ctx.Done():
			log.Info().Msg("balance: watchdog stopped")
			return
		case <-ticker.C:
		}
	}
}

// check reads the balance once and reconciles the suppression state.
// Transient read failures keep the previous state.
func (w *Watchdog) check(ctx context.Context, suppressed bool) bool {
	bal, err := w.reader.AccountBalance(ctx)
	if err != nil {
		log.Error().Err(err).Msg("balance: account balance read failed")
		return suppressed
	}

	low := bal.LessThan(w.cfg.MinBalance)
	if low == suppressed {
		return suppressed
	}

	if low {
		log.Warn().Str("balance", bal.String()).Str("min", w.cfg.MinBalance.String()).
			Msg("balance: below minimum, pausing position entry")
	} else {
		log.Info().Str("balance", bal.String()).
			Msg("balance: recovered, resuming position entry")
	}
	for _, t := range w.targets {
		t.Suppress(low)
	}
	return low
}
