package safety

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/DigoevR/4z-ape/internal/audit"
)

// GateConfig tunes the repeat-and-delay policy.
type GateConfig struct {
	// RepeatCount is how many times the full check set runs; a single
	// failing repeat rejects the token. Repeats defend against flaky
	// detectors and contracts that turn malicious a few blocks in.
	RepeatCount int

	// InitialDelay runs before the first repeat, RepeatDelay between them.
	InitialDelay time.Duration
	RepeatDelay  time.Duration

	// AwaitLiquidity enables the liquidity-await fallback: when the
	// aggregate fails, re-run everything except the liquidity verdict once,
	// and if that reduced set passes, poll the lock status up to
	// AwaitMaxChecks times at AwaitDelay intervals.
	AwaitLiquidity bool
	AwaitMaxChecks int
	AwaitDelay     time.Duration
}

// Gate aggregates the external safety checks into a single accept/reject
// verdict.
type Gate struct {
	cfg    GateConfig
	checks []Check
	trail  *audit.Trail
}

// NewGate creates a gate over the given providers.
func NewGate(cfg GateConfig, checks []Check, trail *audit.Trail) *Gate {
	return &Gate{cfg: cfg, checks: checks, trail: trail}
}

// Evaluate runs the full repeat policy for token and returns the aggregate
// verdict. The caller flushes the audit trail after acting on the result.
func (g *Gate) Evaluate(ctx context.Context, token common.Address) bool {
	g.trail.Add(token, "check repeats to perform: %d", g.cfg.RepeatCount)
	g.trail.Add(token, "initial delay: %s, delay between repeats: %s",
		g.cfg.InitialDelay, g.cfg.RepeatDelay)

	if !sleep(ctx, g.cfg.InitialDelay) {
		return false
	}

	good := true
	for attempt := 0; attempt < g.cfg.RepeatCount; attempt++ {
		log.Info().Str("token", token.Hex()).Int("repeat", attempt+1).
			Msg("gate: started check repeat")
		g.trail.Add(token, "started check repeat #%d", attempt+1)

		r := g.runOnce(ctx, token)

		g.trail.Add(token, "check repeat #%d is %v", attempt+1, r)
		good = good && r

		if attempt+1 < g.cfg.RepeatCount {
			if !sleep(ctx, g.cfg.RepeatDelay) {
				return false
			}
		}
	}

	if !good && g.cfg.AwaitLiquidity {
		good = g.awaitLiquidity(ctx, token)
	}

	if good {
		log.Info().Str("token", token.Hex()).Msg("gate: token passed all checks")
	} else {
		log.Info().Str("token", token.Hex()).Msg("gate: token rejected")
	}
	g.trail.Add(token, "checks result: %v", good)

	return good
}

// runOnce runs every provider concurrently and ANDs their verdicts.
func (g *Gate) runOnce(ctx context.Context, token common.Address) bool {
	results := make([]bool, len(g.checks))

	var wg sync.WaitGroup
	for i, c := range g.checks {
		wg.Add(1)
		go func(i int, c Check) {
			defer wg.Done()
			results[i] = c.Check(ctx, token)
		}(i, c)
	}
	wg.Wait()

	good := true
	for i, c := range g.checks {
		g.trail.Add(token, "%s: %v", c.Name(), results[i])
		good = good && results[i]
	}
	return good
}

// awaitLiquidity runs the reduced check set (everything except the liquidity
// verdict) once; if that passes, polls the lock status until it confirms or
// the budget runs out.
func (g *Gate) awaitLiquidity(ctx context.Context, token common.Address) bool {
	var awaiter LiquidityAwaiter

	for _, c := range g.checks {
		if a, ok := c.(LiquidityAwaiter); ok {
			awaiter = a
			if !a.CheckExceptLiquidity(ctx, token) {
				return false
			}
			continue
		}
		if !c.Check(ctx, token) {
			return false
		}
	}

	if awaiter == nil {
		return false
	}

	log.Info().Str("token", token.Hex()).
		Msg("gate: all checks passed except liquidity, waiting for lock")
	g.trail.Add(token, "waiting for liquidity to lock")

	for i := 0; i < g.cfg.AwaitMaxChecks; i++ {
		if awaiter.LiquidityLocked(ctx, token) {
			log.Info().Str("token", token.Hex()).Msg("gate: liquidity locked")
			g.trail.Add(token, "liquidity has been locked")
			return true
		}
		if !sleep(ctx, g.cfg.AwaitDelay) {
			return false
		}
	}

	log.Info().Str("token", token.Hex()).Msg("gate: liquidity never locked")
	g.trail.Add(token, "liquidity has not been locked")
	return false
}

// sleep waits for d unless ctx is cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
