package position

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// CloseReason explains why a position was closed. Once set, the position is
// terminal: it is excluded from monitoring and no further sells are issued.
type CloseReason string

const (
	// CloseOpenError marks a position whose buy transaction failed; the
	// position is stillborn and never entered monitoring.
	CloseOpenError CloseReason = "open-error"

	// CloseSellError marks a position abandoned after exhausting sell attempts.
	CloseSellError CloseReason = "sell_error"

	// CloseZeroTokens marks a position whose on-chain token balance read zero.
	CloseZeroTokens CloseReason = "zero_tokens"

	// CloseRug marks a rug pull: liquidity unlocked or reserve drained.
	CloseRug CloseReason = "rug"

	// CloseDumpAll marks a forced full liquidation.
	CloseDumpAll CloseReason = "dump-all"

	// CloseSellAll marks a regular full (100%) autosell.
	CloseSellAll CloseReason = "sell-all"
)

// Position is the record of one traded pair, keyed by the pair contract
// address. Exactly one of Token0/Token1 is the reference asset for the
// lifetime of the record. All monetary fields use shopspring/decimal in wei
// units; floating point would silently truncate 18-decimal amounts.
type Position struct {
	Pair   common.Address
	Token0 common.Address
	Token1 common.Address

	// ReserveEnter is the reference-asset reserve observed at discovery.
	ReserveEnter decimal.Decimal

	// Spent is the amount of reference asset paid into the buy.
	Spent decimal.Decimal

	// GotToken is the token amount received from the buy; TokenRemaining is
	// the current holding, refreshed from authoritative on-chain reads.
	GotToken       decimal.Decimal
	TokenRemaining decimal.Decimal

	// SoldFor accumulates realized proceeds across partial sells. Invalid
	// until the first successful sell.
	SoldFor decimal.NullDecimal

	// ProfitLoss is the signed unrealized profit computed by the monitor.
	ProfitLoss          decimal.Decimal
	ProfitLossCheckedAt time.Time

	Approved    bool
	OpenedAt    *time.Time
	ClosedAt    *time.Time
	CloseReason CloseReason
}

// Token returns the traded (non-reference) token of the pair.
func (p *Position) Token(reference common.Address) common.Address {
	if p.Token0 == reference {
		return p.Token1
	}
	return p.Token0
}

// ReferenceIsToken0 reports which side of the pair holds the reference asset.
func (p *Position) ReferenceIsToken0(reference common.Address) bool {
	return p.Token0 == reference
}

// IsOpen reports whether the position is live: bought and not yet closed.
func (p *Position) IsOpen() bool {
	return p.OpenedAt != nil && p.ClosedAt == nil
}

// Close marks the position terminal with the given reason. No-op fields are
// left untouched so callers can persist a partial update.
func (p *Position) Close(reason CloseReason, at time.Time) {
	p.ClosedAt = &at
	p.CloseReason = reason
}
