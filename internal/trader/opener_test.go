package trader

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DigoevR/4z-ape/internal/chain"
	"github.com/DigoevR/4z-ape/internal/position"
)

func openerConfig() OpenerConfig {
	return OpenerConfig{
		Reference:       refAddr,
		MinReserve:      dec("1000"),
		BuyIn:           dec("500"),
		ApproveAttempts: 3,
	}
}

func pairEvent() chain.PairCreated {
	return chain.PairCreated{Pair: pairAddr, Token0: refAddr, Token1: tokenAddr}
}

func TestOpenerOpensPosition(t *testing.T) {
	store := newMemoryStore()
	dex := newStubDex()
	dex.buyReturn = dec("50000")
	gate := &stubGate{verdict: true}
	o := NewOpener(openerConfig(), store, dex, gate, nil)

	o.Handle(context.Background(), pairEvent(), chain.Reserve{
		Reserve0: dec("2000"),
		Reserve1: dec("900000"),
	})

	p := storedPosition(t, store)
	require.True(t, p.IsOpen())
	assert.Equal(t, "500", p.Spent.String())
	assert.Equal(t, "50000", p.GotToken.String())
	assert.Equal(t, "50000", p.TokenRemaining.String())
	assert.Equal(t, "2000", p.ReserveEnter.String())
	assert.True(t, p.Approved)
	assert.Equal(t, 1, gate.calls)
}

func TestOpenerSkipsThinReserve(t *testing.T) {
	store := newMemoryStore()
	dex := newStubDex()
	gate := &stubGate{verdict: true}
	o := NewOpener(openerConfig(), store, dex, gate, nil)

	o.Handle(context.Background(), pairEvent(), chain.Reserve{
		Reserve0: dec("999"),
		Reserve1: dec("900000"),
	})

	_, err := store.FindByPair(context.Background(), pairAddr)
	assert.ErrorIs(t, err, position.ErrNotFound)
	assert.Zero(t, gate.calls)
	assert.Zero(t, dex.buys)
}

func TestOpenerSkipsRejectedToken(t *testing.T) {
	store := newMemoryStore()
	dex := newStubDex()
	o := NewOpener(openerConfig(), store, dex, &stubGate{verdict: false}, nil)

	o.Handle(context.Background(), pairEvent(), chain.Reserve{
		Reserve0: dec("2000"),
		Reserve1: dec("900000"),
	})

	_, err := store.FindByPair(context.Background(), pairAddr)
	assert.ErrorIs(t, err, position.ErrNotFound)
	assert.Zero(t, dex.buys)
}

func TestOpenerIdempotentPerPair(t *testing.T) {
	store := newMemoryStore()
	dex := newStubDex()
	dex.buyReturn = dec("50000")
	o := NewOpener(openerConfig(), store, dex, &stubGate{verdict: true}, nil)

	o.Open(context.Background(), pairEvent(), dec("2000"))
	o.Open(context.Background(), pairEvent(), dec("2000"))

	all, err := store.FindAll(context.Background(), position.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, 1, dex.buys)
}

func TestOpenerBuyFailureIsStillborn(t *testing.T) {
	store := newMemoryStore()
	dex := newStubDex()
	dex.buyErr = errors.New("execution reverted")
	o := NewOpener(openerConfig(), store, dex, &stubGate{verdict: true}, nil)

	o.Open(context.Background(), pairEvent(), dec("2000"))

	p := storedPosition(t, store)
	assert.False(t, p.IsOpen())
	assert.Nil(t, p.OpenedAt)
	assert.NotNil(t, p.ClosedAt)
	assert.Equal(t, position.CloseOpenError, p.CloseReason)
	assert.Zero(t, dex.approves)
}

func TestOpenerApprovalFailureDefersToSellPath(t *testing.T) {
	store := newMemoryStore()
	dex := newStubDex()
	dex.buyReturn = dec("50000")
	dex.approveErr = errors.New("nonce too low")
	o := NewOpener(openerConfig(), store, dex, &stubGate{verdict: true}, nil)

	o.Open(context.Background(), pairEvent(), dec("2000"))

	p := storedPosition(t, store)
	require.True(t, p.IsOpen())
	assert.False(t, p.Approved)
	assert.Equal(t, 3, dex.approves)
}

func TestOpenerTokenOnSideZero(t *testing.T) {
	store := newMemoryStore()
	dex := newStubDex()
	dex.buyReturn = decimal.NewFromInt(1)
	o := NewOpener(openerConfig(), store, dex, &stubGate{verdict: true}, nil)

	// Reference on side 1; the reserve filter must read side 1.
	o.Handle(context.Background(), chain.PairCreated{
		Pair:   pairAddr,
		Token0: tokenAddr,
		Token1: refAddr,
	}, chain.Reserve{Reserve0: dec("900000"), Reserve1: dec("2000")})

	p := storedPosition(t, store)
	assert.Equal(t, "2000", p.ReserveEnter.String())
	assert.Equal(t, tokenAddr, p.Token(refAddr))
}
