package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ExchangeConfig binds the router surface to concrete contracts and gas
// limits.
type ExchangeConfig struct {
	Router    common.Address
	Reference common.Address // wrapped native asset all positions are quoted in

	// Transaction gas limits.
	SwapGasLimit    uint64
	ApproveGasLimit uint64

	// SwapDeadline is how far in the future the router deadline is set.
	SwapDeadline time.Duration
}

// Exchange executes buys, sells, and approvals through the router, decoding
// swap proceeds from receipt logs. It embeds the Client's read surface so it
// satisfies Dex.
type Exchange struct {
	*Client
	submitter *Submitter
	cfg       ExchangeConfig
}

// NewExchange wires the router surface over a client and submitter.
func NewExchange(client *Client, submitter *Submitter, cfg ExchangeConfig) *Exchange {
	if cfg.SwapDeadline == 0 {
		cfg.SwapDeadline = 30 * time.Second
	}
	return &Exchange{Client: client, submitter: submitter, cfg: cfg}
}

// Buy swaps amountIn wei of the reference asset for token via
// swapExactETHForTokens. Returns the token amount received.
func (x *Exchange) Buy(ctx context.Context, token common.Address, amountIn decimal.Decimal) (decimal.Decimal, error) {
	data, err := routerABI.Pack("swapExactETHForTokens",
		new(big.Int),
		[]common.Address{x.cfg.Reference, token},
		x.submitter.Account(),
		x.deadline(),
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pack buy swap: %w", err)
	}

	receipt, err := x.submitter.Submit(ctx, Call{
		To:       x.cfg.Router,
		Data:     data,
		Value:    amountIn.BigInt(),
		GasLimit: x.cfg.SwapGasLimit,
	})
	if err != nil {
		return decimal.Zero, err
	}

	received, ok := swappedAmount(receipt)
	if !ok {
		return decimal.Zero, fmt.Errorf("no Swap event in receipt %s", receipt.TxHash.Hex())
	}
	return received, nil
}

// Sell swaps amount of token back to the reference asset via the
// fee-on-transfer-tolerant router method. Returns the proceeds.
func (x *Exchange) Sell(ctx context.Context, token common.Address, amount decimal.Decimal) (decimal.Decimal, error) {
	data, err := routerABI.Pack("swapExactTokensForETHSupportingFeeOnTransferTokens",
		amount.BigInt(),
		new(big.Int),
		[]common.Address{token, x.cfg.Reference},
		x.submitter.Account(),
		x.deadline(),
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pack sell swap: %w", err)
	}

	receipt, err := x.submitter.Submit(ctx, Call{
		To:       x.cfg.Router,
		Data:     data,
		GasLimit: x.cfg.SwapGasLimit,
	})
	if err != nil {
		return decimal.Zero, err
	}

	proceeds, ok := swappedAmount(receipt)
	if !ok {
		return decimal.Zero, fmt.Errorf("no Swap event in receipt %s", receipt.TxHash.Hex())
	}
	return proceeds, nil
}

// Approve grants the router an unlimited allowance for token.
func (x *Exchange) Approve(ctx context.Context, token common.Address) error {
	data, err := erc20ABI.Pack("approve", x.cfg.Router, maxApproval)
	if err != nil {
		return fmt.Errorf("pack approve: %w", err)
	}

	_, err = x.submitter.Submit(ctx, Call{
		To:       token,
		Data:     data,
		GasLimit: x.cfg.ApproveGasLimit,
	})
	if err != nil {
		return err
	}

	log.Info().Str("token", token.Hex()).Msg("exchange: router approved")
	return nil
}

func (x *Exchange) deadline() *big.Int {
	return big.NewInt(time.Now().Add(x.cfg.SwapDeadline).Unix())
}

// swappedAmount extracts the output amount from the receipt's Swap event:
// whichever side had zero input is the side we received.
func swappedAmount(receipt *types.Receipt) (decimal.Decimal, bool) {
	for _, lg := range receipt.Logs {
		if len(lg.Topics) == 0 || lg.Topics[0] != swapTopic {
			continue
		}
		vals, err := pairABI.Events["Swap"].Inputs.NonIndexed().Unpack(lg.Data)
		if err != nil || len(vals) != 4 {
			continue
		}
		amount0In := vals[0].(*big.Int)
		amount0Out := vals[2].(*big.Int)
		amount1Out := vals[3].(*big.Int)

		if amount0In.Sign() == 0 {
			return decimal.NewFromBigInt(amount0Out, 0), true
		}
		return decimal.NewFromBigInt(amount1Out, 0), true
	}
	return decimal.Zero, false
}
