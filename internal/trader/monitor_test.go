package trader

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DigoevR/4z-ape/internal/chain"
	"github.com/DigoevR/4z-ape/internal/position"
	"github.com/DigoevR/4z-ape/internal/pricer"
)

// stubLock scripts the liquidity lock verdict.
type stubLock struct {
	locked bool
}

func (s *stubLock) LiquidityLocked(ctx context.Context, token common.Address) bool {
	return s.locked
}

func monitorConfig() MonitorConfig {
	return MonitorConfig{
		Reference:     refAddr,
		Interval:      time.Minute,
		Staleness:     time.Minute,
		RugReservePct: dec("0.5"),
	}
}

func newTestMonitor(store position.Store, dex *stubDex, lock *stubLock, cfg SellConfig) *Monitor {
	engine := NewEngine(cfg, store, dex, nil)
	return NewMonitor(monitorConfig(), store, dex, pricer.New(pricer.DefaultFeePerMille), lock, engine, nil)
}

func TestMonitorZeroBalanceCloses(t *testing.T) {
	store := newMemoryStore()
	openPosition(t, store)
	dex := newStubDex() // token balance defaults to zero
	m := newTestMonitor(store, dex, &stubLock{locked: true}, sellConfig())

	m.cycle(context.Background())

	saved := storedPosition(t, store)
	assert.False(t, saved.IsOpen())
	assert.Equal(t, position.CloseZeroTokens, saved.CloseReason)
	assert.Zero(t, dex.sellCount())
}

func TestMonitorRugOnDrainedReserve(t *testing.T) {
	store := newMemoryStore()
	openPosition(t, store) // ReserveEnter 1e6, Spent 1000

	dex := newStubDex()
	dex.balances[tokenAddr] = dec("50000")
	// Reference side down to 0.3% of entry; selling everything cannot
	// recover the spend.
	dex.reserves[pairAddr] = chain.Reserve{
		Reserve0: dec("3000"),
		Reserve1: dec("900000"),
	}
	m := newTestMonitor(store, dex, &stubLock{locked: true}, sellConfig())

	m.cycle(context.Background())

	saved := storedPosition(t, store)
	assert.False(t, saved.IsOpen())
	assert.Equal(t, position.CloseRug, saved.CloseReason)
	assert.True(t, saved.ProfitLoss.IsNegative())
	assert.Zero(t, dex.sellCount())
}

func TestMonitorNoRugWhenInProfit(t *testing.T) {
	store := newMemoryStore()
	p := openPosition(t, store)
	p.Spent = dec("10") // tiny entry: even a drained pool pays it back
	require.NoError(t, store.Update(context.Background(), p))

	dex := newStubDex()
	dex.balances[tokenAddr] = dec("50000")
	dex.reserves[pairAddr] = chain.Reserve{
		Reserve0: dec("3000"),
		Reserve1: dec("900000"),
	}
	m := newTestMonitor(store, dex, &stubLock{locked: true}, sellConfig())

	m.cycle(context.Background())

	// Profitable positions on a drained reserve are left alone: not a rug,
	// not safe to trade either.
	saved := storedPosition(t, store)
	assert.True(t, saved.IsOpen())
	assert.True(t, saved.ProfitLoss.IsPositive())
	assert.Zero(t, dex.sellCount())
}

func TestMonitorLiquidityUnlockDumps(t *testing.T) {
	store := newMemoryStore()
	openPosition(t, store)

	dex := newStubDex()
	dex.balances[tokenAddr] = dec("50000")
	dex.sellReturn = dec("700")
	dex.reserves[pairAddr] = chain.Reserve{
		Reserve0: dec("800000"),
		Reserve1: dec("900000"),
	}
	m := newTestMonitor(store, dex, &stubLock{locked: false}, sellConfig())

	m.cycle(context.Background())

	saved := storedPosition(t, store)
	assert.False(t, saved.IsOpen())
	assert.Equal(t, position.CloseRug, saved.CloseReason)
	assert.Equal(t, 1, dex.sellCount())
	require.True(t, saved.SoldFor.Valid)
	assert.Equal(t, "700", saved.SoldFor.Decimal.String())
}

func TestMonitorHealthyPositionGoesToSellEngine(t *testing.T) {
	store := newMemoryStore()
	openPosition(t, store)

	dex := newStubDex()
	dex.balances[tokenAddr] = dec("50000")
	dex.sellReturn = dec("20000")
	// Healthy pool: the holding values well above the 1000 spent.
	dex.reserves[pairAddr] = chain.Reserve{
		Reserve0: dec("800000"),
		Reserve1: dec("100000"),
	}
	m := newTestMonitor(store, dex, &stubLock{locked: true}, sellConfig())

	m.cycle(context.Background())

	saved := storedPosition(t, store)
	assert.Equal(t, 1, dex.sellCount())
	require.True(t, saved.SoldFor.Valid)
	assert.True(t, saved.ProfitLoss.IsPositive())
}

func TestMonitorStalenessFilterSkipsFreshPositions(t *testing.T) {
	store := newMemoryStore()
	p := openPosition(t, store)
	p.ProfitLossCheckedAt = time.Now() // just checked
	require.NoError(t, store.Update(context.Background(), p))

	dex := newStubDex()
	dex.balances[tokenAddr] = dec("50000")
	m := newTestMonitor(store, dex, &stubLock{locked: true}, sellConfig())

	m.cycle(context.Background())

	saved := storedPosition(t, store)
	assert.True(t, saved.IsOpen())
	assert.Zero(t, dex.sellCount())
}

func TestMonitorSuppressionSkipsCycle(t *testing.T) {
	store := newMemoryStore()
	openPosition(t, store)
	dex := newStubDex() // zero balance would close the position if processed
	m := newTestMonitor(store, dex, &stubLock{locked: true}, sellConfig())

	m.Suppress(true)
	m.cycle(context.Background())
	saved := storedPosition(t, store)
	assert.True(t, saved.IsOpen())

	m.Suppress(false)
	m.cycle(context.Background())
	saved = storedPosition(t, store)
	assert.False(t, saved.IsOpen())
}
