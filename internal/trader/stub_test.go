package trader

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/DigoevR/4z-ape/internal/chain"
	"github.com/DigoevR/4z-ape/internal/position"
	"github.com/DigoevR/4z-ape/internal/position/memory"
)

var (
	refAddr   = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	tokenAddr = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	pairAddr  = common.HexToAddress("0x00000000000000000000000000000000000000f9")
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// stubDex is a scripted chain.Dex.
type stubDex struct {
	mu sync.Mutex

	account  decimal.Decimal
	balances map[common.Address]decimal.Decimal
	reserves map[common.Address]chain.Reserve

	buyReturn  decimal.Decimal
	buyErr     error
	sellReturn decimal.Decimal
	sellErr    error
	approveErr error

	buys, sells, approves int

	// sellGate, when set, blocks Sell between started and release. Used to
	// hold a sell in flight.
	sellStarted chan struct{}
	sellRelease chan struct{}
}

func newStubDex() *stubDex {
	return &stubDex{
		balances: make(map[common.Address]decimal.Decimal),
		reserves: make(map[common.Address]chain.Reserve),
	}
}

func (d *stubDex) AccountBalance(ctx context.Context) (decimal.Decimal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.account, nil
}

func (d *stubDex) TokenBalance(ctx context.Context, token common.Address) (decimal.Decimal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.balances[token], nil
}

func (d *stubDex) GetReserves(ctx context.Context, pair common.Address) (chain.Reserve, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reserves[pair], nil
}

func (d *stubDex) Buy(ctx context.Context, token common.Address, amountIn decimal.Decimal) (decimal.Decimal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buys++
	if d.buyErr != nil {
		return decimal.Zero, d.buyErr
	}
	return d.buyReturn, nil
}

func (d *stubDex) Sell(ctx context.Context, token common.Address, amount decimal.Decimal) (decimal.Decimal, error) {
	d.mu.Lock()
	d.sells++
	started, release := d.sellStarted, d.sellRelease
	err := d.sellErr
	ret := d.sellReturn
	d.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-release
	}
	if err != nil {
		return decimal.Zero, err
	}
	return ret, nil
}

func (d *stubDex) Approve(ctx context.Context, token common.Address) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.approves++
	return d.approveErr
}

func (d *stubDex) sellCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sells
}

// stubGate scripts the safety verdict.
type stubGate struct {
	verdict bool
	calls   int
}

func (g *stubGate) Evaluate(ctx context.Context, token common.Address) bool {
	g.calls++
	return g.verdict
}

// openPosition seeds the store with a live position holding tokens.
func openPosition(t *testing.T, store position.Store) *position.Position {
	t.Helper()
	opened := time.Now().Add(-time.Hour)
	p := &position.Position{
		Pair:           pairAddr,
		Token0:         refAddr,
		Token1:         tokenAddr,
		ReserveEnter:   dec("1000000"),
		Spent:          dec("1000"),
		GotToken:       dec("50000"),
		TokenRemaining: dec("50000"),
		Approved:       true,
		OpenedAt:       &opened,
	}
	if err := store.Create(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p
}

func storedPosition(t *testing.T, store position.Store) *position.Position {
	t.Helper()
	p, err := store.FindByPair(context.Background(), pairAddr)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func newMemoryStore() *memory.Store {
	return memory.NewStore()
}
