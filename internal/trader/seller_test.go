package trader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DigoevR/4z-ape/internal/position"
)

func sellConfig() SellConfig {
	return SellConfig{
		Reference:      refAddr,
		Enabled:        true,
		Percentage:     50,
		MinProfit:      dec("100"),
		Attempts:       3,
		GasPrice:       dec("5"),
		SwapGasReal:    20,
		ApproveGasReal: 10,
	}
}

func TestSellMutexExclusivity(t *testing.T) {
	store := newMemoryStore()
	p := openPosition(t, store)
	p.ProfitLoss = dec("10000")
	require.NoError(t, store.Update(context.Background(), p))

	dex := newStubDex()
	dex.sellReturn = dec("4000")
	dex.balances[tokenAddr] = dec("25000")
	dex.sellStarted = make(chan struct{})
	dex.sellRelease = make(chan struct{})
	e := NewEngine(sellConfig(), store, dex, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.SellIfProfitable(context.Background(), p, false)
	}()
	<-dex.sellStarted // first sell is now in flight

	// A second call must bounce off the in-flight marker without selling.
	e.SellIfProfitable(context.Background(), p, false)
	assert.Equal(t, 1, dex.sellCount())

	dex.sellRelease <- struct{}{}
	wg.Wait()

	// After release the token is sellable again.
	dex.mu.Lock()
	dex.sellStarted, dex.sellRelease = nil, nil
	dex.mu.Unlock()
	fresh := storedPosition(t, store)
	fresh.ProfitLoss = dec("10000")
	fresh.SoldFor = decimal.NullDecimal{}
	require.NoError(t, store.Update(context.Background(), fresh))

	e.SellIfProfitable(context.Background(), fresh, false)
	assert.Equal(t, 2, dex.sellCount())
}

func TestSellDisabledIsNoop(t *testing.T) {
	store := newMemoryStore()
	p := openPosition(t, store)
	dex := newStubDex()
	cfg := sellConfig()
	cfg.Enabled = false
	e := NewEngine(cfg, store, dex, nil)

	e.SellIfProfitable(context.Background(), p, false)
	assert.Zero(t, dex.sellCount())
}

func TestSellNotProfitableEnough(t *testing.T) {
	store := newMemoryStore()
	p := openPosition(t, store)
	// 50% of 300 minus fees 150 = 0, below the 100 floor.
	p.ProfitLoss = dec("300")
	require.NoError(t, store.Update(context.Background(), p))

	dex := newStubDex()
	e := NewEngine(sellConfig(), store, dex, nil)

	e.SellIfProfitable(context.Background(), p, false)
	assert.Zero(t, dex.sellCount())
}

func TestSellAtExactFloor(t *testing.T) {
	store := newMemoryStore()
	p := openPosition(t, store)
	// 50% of 500 minus fees 150 = 100, exactly the minimum profit.
	p.ProfitLoss = dec("500")
	require.NoError(t, store.Update(context.Background(), p))

	dex := newStubDex()
	dex.sellReturn = dec("100")
	e := NewEngine(sellConfig(), store, dex, nil)

	// Proceeds that land on the floor are good enough to take.
	e.SellIfProfitable(context.Background(), p, false)
	assert.Equal(t, 1, dex.sellCount())
}

func TestSellFloorUsesRealizedProceeds(t *testing.T) {
	store := newMemoryStore()
	p := openPosition(t, store)
	p.ProfitLoss = dec("1000") // expected 500-150 = 350, beats MinProfit 100
	p.SoldFor = decimal.NewNullDecimal(dec("400"))
	require.NoError(t, store.Update(context.Background(), p))

	dex := newStubDex()
	e := NewEngine(sellConfig(), store, dex, nil)

	// A partial sell must improve on what was already realized.
	e.SellIfProfitable(context.Background(), p, false)
	assert.Zero(t, dex.sellCount())
}

func TestSellPartialSuccess(t *testing.T) {
	store := newMemoryStore()
	p := openPosition(t, store)
	p.ProfitLoss = dec("10000")
	require.NoError(t, store.Update(context.Background(), p))

	dex := newStubDex()
	dex.sellReturn = dec("4800")
	dex.balances[tokenAddr] = dec("25000") // authoritative post-swap holding
	e := NewEngine(sellConfig(), store, dex, nil)

	e.SellIfProfitable(context.Background(), p, false)

	saved := storedPosition(t, store)
	require.True(t, saved.IsOpen())
	assert.Equal(t, "25000", saved.TokenRemaining.String())
	require.True(t, saved.SoldFor.Valid)
	assert.Equal(t, "4800", saved.SoldFor.Decimal.String())
	assert.Equal(t, 1, dex.sellCount())
	assert.Zero(t, dex.approves) // already approved at open
}

func TestSellAllClosesPosition(t *testing.T) {
	store := newMemoryStore()
	p := openPosition(t, store)
	p.ProfitLoss = dec("10000")
	require.NoError(t, store.Update(context.Background(), p))

	dex := newStubDex()
	dex.sellReturn = dec("9000")
	cfg := sellConfig()
	cfg.Percentage = 100
	e := NewEngine(cfg, store, dex, nil)

	e.SellIfProfitable(context.Background(), p, false)

	saved := storedPosition(t, store)
	assert.False(t, saved.IsOpen())
	assert.Equal(t, position.CloseSellAll, saved.CloseReason)
}

func TestSellDumpAllBypassesGate(t *testing.T) {
	store := newMemoryStore()
	p := openPosition(t, store)
	p.ProfitLoss = dec("-900") // deeply under water
	require.NoError(t, store.Update(context.Background(), p))

	dex := newStubDex()
	dex.sellReturn = dec("50")
	e := NewEngine(sellConfig(), store, dex, nil)

	e.SellIfProfitable(context.Background(), p, true)

	saved := storedPosition(t, store)
	assert.False(t, saved.IsOpen())
	assert.Equal(t, position.CloseDumpAll, saved.CloseReason)
	assert.Equal(t, 1, dex.sellCount())
}

func TestSellDumpAllHonorsDisabledEngine(t *testing.T) {
	store := newMemoryStore()
	p := openPosition(t, store)
	dex := newStubDex()
	cfg := sellConfig()
	cfg.Enabled = false
	e := NewEngine(cfg, store, dex, nil)

	// A forced liquidation skips the profitability gate, not the kill switch.
	e.SellIfProfitable(context.Background(), p, true)

	saved := storedPosition(t, store)
	assert.True(t, saved.IsOpen())
	assert.Zero(t, dex.sellCount())
}

func TestSellDumpAllHonorsZeroAttemptBudget(t *testing.T) {
	store := newMemoryStore()
	p := openPosition(t, store)
	dex := newStubDex()
	cfg := sellConfig()
	cfg.Attempts = 0
	e := NewEngine(cfg, store, dex, nil)

	e.SellIfProfitable(context.Background(), p, true)

	saved := storedPosition(t, store)
	assert.True(t, saved.IsOpen())
	assert.Zero(t, dex.sellCount())
}

func TestSellRetryTermination(t *testing.T) {
	store := newMemoryStore()
	p := openPosition(t, store)
	p.ProfitLoss = dec("10000")
	require.NoError(t, store.Update(context.Background(), p))

	dex := newStubDex()
	dex.sellErr = errors.New("execution reverted")
	e := NewEngine(sellConfig(), store, dex, nil)

	e.SellIfProfitable(context.Background(), p, false)

	saved := storedPosition(t, store)
	assert.False(t, saved.IsOpen())
	assert.Equal(t, position.CloseSellError, saved.CloseReason)
	assert.Equal(t, 3, dex.sellCount())
}

func TestSellApprovesBeforeSwap(t *testing.T) {
	store := newMemoryStore()
	p := openPosition(t, store)
	p.Approved = false
	p.ProfitLoss = dec("10000")
	require.NoError(t, store.Update(context.Background(), p))

	dex := newStubDex()
	dex.sellReturn = dec("4800")
	e := NewEngine(sellConfig(), store, dex, nil)

	e.SellIfProfitable(context.Background(), p, false)

	saved := storedPosition(t, store)
	assert.True(t, saved.Approved)
	assert.Equal(t, 1, dex.approves)
	assert.Equal(t, 1, dex.sellCount())
}

func TestSellApproveFailureConsumesAttempt(t *testing.T) {
	store := newMemoryStore()
	p := openPosition(t, store)
	p.Approved = false
	p.ProfitLoss = dec("10000")
	require.NoError(t, store.Update(context.Background(), p))

	dex := newStubDex()
	dex.approveErr = errors.New("nonce too low")
	cfg := sellConfig()
	cfg.Attempts = 2
	e := NewEngine(cfg, store, dex, nil)

	e.SellIfProfitable(context.Background(), p, false)

	saved := storedPosition(t, store)
	assert.Equal(t, position.CloseSellError, saved.CloseReason)
	assert.Equal(t, 2, dex.approves)
	assert.Zero(t, dex.sellCount())
}

func TestSellSkipsClosedPosition(t *testing.T) {
	store := newMemoryStore()
	p := openPosition(t, store)
	p.Close(position.CloseRug, time.Now())
	require.NoError(t, store.Update(context.Background(), p))

	dex := newStubDex()
	e := NewEngine(sellConfig(), store, dex, nil)

	e.SellIfProfitable(context.Background(), p, true)
	assert.Zero(t, dex.sellCount())
}
