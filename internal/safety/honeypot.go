package safety

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/DigoevR/4z-ape/internal/audit"
	"github.com/DigoevR/4z-ape/internal/config"
)

// ContractCaller executes a read-only eth_call.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// honeypotSelector is the simulator contract's buy-then-sell entry point.
var honeypotSelector = [4]byte{0xd6, 0x63, 0x83, 0xcb}

// HoneypotCheck simulates a buy-and-sell round trip through an on-chain
// simulator contract. A revert means the token blocks selling.
type HoneypotCheck struct {
	cfg    config.HoneypotConfig
	caller ContractCaller
	trail  *audit.Trail
}

// NewHoneypotCheck creates the honeypot simulator check.
func NewHoneypotCheck(cfg config.HoneypotConfig, caller ContractCaller, trail *audit.Trail) *HoneypotCheck {
	return &HoneypotCheck{cfg: cfg, caller: caller, trail: trail}
}

// Name identifies the provider.
func (c *HoneypotCheck) Name() string { return "honeypot" }

// Check runs the simulated round trip. A successful call is a pass; a revert
// or transport failure is a fail.
func (c *HoneypotCheck) Check(ctx context.Context, token common.Address) bool {
	if !c.cfg.Enabled {
		c.trail.Add(token, "honeypot: skipped")
		return true
	}

	// calldata: selector + abi-encoded token address.
	data := make([]byte, 4+32)
	copy(data, honeypotSelector[:])
	copy(data[4+12:], token.Bytes())

	simulator := common.HexToAddress(c.cfg.Simulator)
	msg := ethereum.CallMsg{
		From:  common.HexToAddress(c.cfg.From),
		To:    &simulator,
		Value: c.cfg.BuyProbe.Wei().BigInt(),
		Gas:   45_000_000,
		Data:  data,
	}

	if _, err := c.caller.CallContract(ctx, msg); err != nil {
		log.Info().Err(err).Str("token", token.Hex()).
			Msg("honeypot: simulated round trip failed")
		c.trail.Add(token, "honeypot: %v", err)
		return false
	}

	c.trail.Add(token, "honeypot: OK")
	return true
}
