// Package chain talks to the blockchain node: balances, reserves, event
// subscriptions, and signed transaction submission with nonce bookkeeping.
package chain

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Reserve is an immutable snapshot of a pair's reserves at a point in time.
// Produced fresh per query, never persisted.
type Reserve struct {
	Reserve0 decimal.Decimal
	Reserve1 decimal.Decimal
}

// IsZero reports whether both sides of the pair are empty.
func (r Reserve) IsZero() bool {
	return r.Reserve0.IsZero() && r.Reserve1.IsZero()
}

// PairCreated is a decoded factory pair-creation event.
type PairCreated struct {
	Pair   common.Address
	Token0 common.Address
	Token1 common.Address
}

// Reader is the read-only chain surface: balances and reserves.
type Reader interface {
	// AccountBalance returns the native-asset balance of the bot account.
	AccountBalance(ctx context.Context) (decimal.Decimal, error)

	// TokenBalance returns the bot account's balance of an ERC-20 token.
	TokenBalance(ctx context.Context, token common.Address) (decimal.Decimal, error)

	// GetReserves returns the current reserve snapshot of a pair.
	GetReserves(ctx context.Context, pair common.Address) (Reserve, error)
}

// Dex executes swaps and approvals against the router. All amounts are in
// wei. Implemented by Exchange; stubbed in tests.
type Dex interface {
	Reader

	// Buy swaps amountIn of the reference asset for token. Returns the token
	// amount received, decoded from the pair Swap event.
	Buy(ctx context.Context, token common.Address, amountIn decimal.Decimal) (decimal.Decimal, error)

	// Sell swaps amount of token back to the reference asset. Returns the
	// proceeds in reference-asset wei.
	Sell(ctx context.Context, token common.Address, amount decimal.Decimal) (decimal.Decimal, error)

	// Approve grants the router an unlimited allowance for token.
	Approve(ctx context.Context, token common.Address) error
}

// Subscriber delivers factory pair-creation events.
type Subscriber interface {
	// SubscribePairCreated invokes arrive for each decoded PairCreated event
	// until the subscription fails or ctx is cancelled.
	SubscribePairCreated(ctx context.Context, arrive func(PairCreated)) (ethereum.Subscription, error)
}
