// Package reaper implements the scheduled eviction of expired payloads
// described in spec.md §4.7.
package reaper

import (
	"context"
	"time"

	"gossipcore/internal/clock"
)

// Store is the subset of datastore.Store the reaper depends on.
type Store interface {
	ReapExpired(nowMs int64) (perNodeReaped, sharedReaped int)
}

// Reaper periodically scans a Store for expired entries and removes
// them. It owns its own goroutine lifecycle via Start/Stop, in the
// style of a convergence loop.
type Reaper struct {
	store  Store
	clk    clock.Clock
	period time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Reaper that scans store every period.
func New(store Store, clk clock.Clock, period time.Duration) *Reaper {
	return &Reaper{store: store, clk: clk, period: period}
}

// Start launches the reap loop in a background goroutine.
func (r *Reaper) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		r.run(ctx)
	}()
	return nil
}

// Stop cancels the reap loop and waits for it to exit.
func (r *Reaper) Stop() error {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
	return nil
}

func (r *Reaper) run(ctx context.Context) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.store.ReapExpired(r.clk.NowMs())
		}
	}
}
