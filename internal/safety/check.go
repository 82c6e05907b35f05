// Package safety gates candidate tokens through external scam checks before
// any money moves.
package safety

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Check is one external safety verdict provider. Implementations retry
// against their own backends internally but always resolve to a boolean:
// an unreachable or uninterpretable backend is a failing check (fail-closed),
// never a skipped one — unless the provider itself is configured off, in
// which case it reports pass.
type Check interface {
	// Name identifies the provider in logs and the audit trail.
	Name() string

	// Check reports whether the token passed this provider's verdict.
	Check(ctx context.Context, token common.Address) bool
}

// LockChecker reports whether a token's liquidity is currently locked. The
// monitor re-checks this on every cycle to catch post-entry unlocks.
type LockChecker interface {
	LiquidityLocked(ctx context.Context, token common.Address) bool
}

// LiquidityAwaiter is a Check whose verdict can be split into "everything
// but liquidity" and the liquidity-lock question itself. The gate uses it
// for the liquidity-await loop: locking frequently happens moments after
// pair creation, not atomically with it.
type LiquidityAwaiter interface {
	Check
	LockChecker

	// CheckExceptLiquidity runs the provider's reduced set (ownership,
	// simulated buy, code), excluding the liquidity-lock verdict.
	CheckExceptLiquidity(ctx context.Context, token common.Address) bool
}
