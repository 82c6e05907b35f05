// Package pricer computes constant-product AMM swap outputs.
package pricer

import (
	"github.com/shopspring/decimal"

	"github.com/DigoevR/4z-ape/internal/chain"
)

// DefaultFeePerMille is the PancakeSwap V2 proportional fee (0.2%).
const DefaultFeePerMille = 2

var thousand = decimal.NewFromInt(1000)

// Pricer prices swaps against a reserve snapshot. All arithmetic is exact
// decimal; 18-decimal wei amounts would drift under floating point.
type Pricer struct {
	feeNumerator decimal.Decimal // 1000 - feePerMille
}

// New creates a Pricer with the given proportional fee in per-mille units.
func New(feePerMille int64) Pricer {
	return Pricer{feeNumerator: decimal.NewFromInt(1000 - feePerMille)}
}

// OutGivenIn returns the output amount for swapping into a pair holding
// reserve. Exactly one of amountIn0/amountIn1 is nonzero by contract of the
// caller; the nonzero side is the input, the opposite side is the output:
//
//	out = in_net * reserveOut / (reserveIn + in_net)
//	in_net = in * (1000 - fee) / 1000
func (p Pricer) OutGivenIn(reserve chain.Reserve, amountIn0, amountIn1 decimal.Decimal) decimal.Decimal {
	reserveIn, reserveOut := reserve.Reserve0, reserve.Reserve1
	amountIn := amountIn0
	if amountIn0.IsZero() {
		reserveIn, reserveOut = reserve.Reserve1, reserve.Reserve0
		amountIn = amountIn1
	}

	if amountIn.IsZero() {
		return decimal.Zero
	}

	net := amountIn.Mul(p.feeNumerator).Div(thousand)
	denominator := reserveIn.Add(net)
	if denominator.IsZero() {
		return decimal.Zero
	}
	return net.Mul(reserveOut).Div(denominator)
}
