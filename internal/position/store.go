package position

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrNotFound is returned when no position exists for the given key.
	ErrNotFound = errors.New("position: not found")

	// ErrDuplicatePair is returned when creating a position for a pair that
	// already has one. Positions are created at most once per pair.
	ErrDuplicatePair = errors.New("position: duplicate pair")
)

// Filter selects positions in FindAll queries. Zero value matches everything.
type Filter struct {
	// Opened matches only positions with OpenedAt set.
	Opened bool

	// NotClosed matches only positions with ClosedAt unset.
	NotClosed bool

	// TokensRemaining matches only positions with TokenRemaining > 0.
	TokensRemaining bool

	// CheckedBefore matches only positions whose ProfitLossCheckedAt is
	// strictly older than the given instant.
	CheckedBefore *time.Time
}

// Store persists position records. Implementations must be safe for
// concurrent use; the monitor, the watcher callback, and sell retries all
// touch the store from independent goroutines.
type Store interface {
	// Create inserts a new position. Returns ErrDuplicatePair if a record
	// for the same pair already exists.
	Create(ctx context.Context, p *Position) error

	// FindByPair returns the position for a pair, or ErrNotFound.
	FindByPair(ctx context.Context, pair common.Address) (*Position, error)

	// FindAll returns every position matching the filter.
	FindAll(ctx context.Context, f Filter) ([]*Position, error)

	// Update overwrites the stored record for p.Pair. Returns ErrNotFound
	// if the position was never created.
	Update(ctx context.Context, p *Position) error
}
