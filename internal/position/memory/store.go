// Package memory is an in-memory implementation of position.Store, used by
// tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DigoevR/4z-ape/internal/position"
)

// Store keeps positions in a map keyed by pair address.
type Store struct {
	mu   sync.RWMutex
	data map[common.Address]*position.Position
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{data: make(map[common.Address]*position.Position)}
}

// Create inserts a new position. Returns ErrDuplicatePair if the pair exists.
func (s *Store) Create(_ context.Context, p *position.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.Pair]; exists {
		return position.ErrDuplicatePair
	}

	// Store a copy to prevent external mutation.
	cp := *p
	s.data[p.Pair] = &cp
	return nil
}

// FindByPair returns a copy of the position for a pair, or ErrNotFound.
func (s *Store) FindByPair(_ context.Context, pair common.Address) (*position.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[pair]
	if !exists {
		return nil, position.ErrNotFound
	}

	cp := *p
	return &cp, nil
}

// FindAll returns copies of every position matching the filter.
func (s *Store) FindAll(_ context.Context, f position.Filter) ([]*position.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*position.Position
	for _, p := range s.data {
		if f.Opened && p.OpenedAt == nil {
			continue
		}
		if f.NotClosed && p.ClosedAt != nil {
			continue
		}
		if f.TokensRemaining && !p.TokenRemaining.IsPositive() {
			continue
		}
		if f.CheckedBefore != nil && !p.ProfitLossCheckedAt.Before(*f.CheckedBefore) {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	return result, nil
}

// Update overwrites the stored record for p.Pair.
func (s *Store) Update(_ context.Context, p *position.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.Pair]; !exists {
		return position.ErrNotFound
	}

	cp := *p
	s.data[p.Pair] = &cp
	return nil
}
