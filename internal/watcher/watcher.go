// Package watcher turns the factory's PairCreated event stream into
// buy candidates.
package watcher

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/DigoevR/4z-ape/internal/chain"
)

// Source is the chain surface the watcher needs. chain.Client satisfies it.
// arrive is invoked on the source's delivery goroutine, once per decoded
// event, with no buffering in between.
type Source interface {
	SubscribePairCreated(ctx context.Context, arrive func(chain.PairCreated)) (ethereum.Subscription, error)
	GetReserves(ctx context.Context, pair common.Address) (chain.Reserve, error)
}

// Handler receives each accepted candidate. It runs on its own goroutine, so
// a slow evaluation never stalls the event stream.
type Handler func(ctx context.Context, ev chain.PairCreated, reserve chain.Reserve)

// Config tunes the watcher.
type Config struct {
	// Reference is the wrapped native asset; pairs not quoted against it
	// are ignored.
	Reference common.Address

	// ReconnectDelay spaces resubscription attempts after a dropped
	// subscription. Reconnecting never gives up: a dead subscription means
	// missed launches, not a fatal bot.
	ReconnectDelay time.Duration
}

// Watcher subscribes to new-pair events and dispatches candidates.
type Watcher struct {
	cfg        Config
	source     Source
	handler    Handler
	suppressed atomic.Bool
}

// New creates a watcher. Events are dropped until Run starts.
func New(cfg Config, source Source, handler Handler) *Watcher {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	return &Watcher{cfg: cfg, source: source, handler: handler}
}

// Suppress toggles candidate intake. While suppressed, events are dropped on
// arrival rather than buffered: a launch observed during a funding gap is
// already too old to snipe by the time funds return.
func (w *Watcher) Suppress(on bool) {
	if w.suppressed.Swap(on) != on {
		log.Info().Bool("suppressed", on).Msg("watcher: intake toggled")
	}
}

// Run subscribes and processes events until ctx is cancelled, resubscribing
// with a fixed delay whenever the subscription drops.
func (w *Watcher) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := w.watch(ctx); err != nil {
			log.Error().Err(err).Msg("watcher: subscription lost, reconnecting")
		}

		select {
		case <-ctx.Done():
		case <-time.After(w.cfg.ReconnectDelay):
		}
	}
	log.Info().Msg("watcher: stopped")
}

// watch runs one subscription to completion. The subscription gets its own
// context so the source's delivery goroutine dies with this iteration instead
// of piling up across reconnects.
func (w *Watcher) watch(ctx context.Context) error {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Dispatch work runs on the outer context: a dropped subscription must
	// not cancel a buy already in flight.
	sub, err := w.source.SubscribePairCreated(wctx, func(ev chain.PairCreated) {
		w.arrive(ctx, ev)
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	log.Info().Msg("watcher: subscribed to pair creation events")

	select {
	case <-ctx.Done():
		return nil
	case err := <-sub.Err():
		return err
	}
}

// arrive runs on the source's delivery goroutine. Suppression is decided
// here, at arrival: an event observed while suppressed never outlives the
// suppression window.
func (w *Watcher) arrive(ctx context.Context, ev chain.PairCreated) {
	if w.suppressed.Load() {
		log.Debug().Str("pair", ev.Pair.Hex()).Msg("watcher: intake suppressed, dropping pair")
		return
	}
	if ev.Token0 != w.cfg.Reference && ev.Token1 != w.cfg.Reference {
		log.Debug().Str("pair", ev.Pair.Hex()).
			Str("token0", ev.Token0.Hex()).Str("token1", ev.Token1.Hex()).
			Msg("watcher: pair not quoted against reference, dropping")
		return
	}

	// The reserve read is a network call; keep it off the delivery goroutine.
	go w.evaluate(ctx, ev)
}

func (w *Watcher) evaluate(ctx context.Context, ev chain.PairCreated) {
	reserve, err := w.source.GetReserves(ctx, ev.Pair)
	if err != nil {
		log.Error().Err(err).Str("pair", ev.Pair.Hex()).
			Msg("watcher: reserve fetch failed, dropping pair")
		return
	}

	log.Info().
		Str("pair", ev.Pair.Hex()).
		Str("token0", ev.Token0.Hex()).
		Str("token1", ev.Token1.Hex()).
		Str("reserve0", reserve.Reserve0.String()).
		Str("reserve1", reserve.Reserve1.String()).
		Msg("watcher: new pair detected")

	w.handler(ctx, ev, reserve)
}
