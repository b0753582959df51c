// Package refresher implements the StateRefresher described in
// spec.md §4.8: it recomputes each peer's UP/DOWN state from the
// failure detector's phi score at a fixed cadence.
package refresher

import (
	"context"
	"time"

	"gossipcore"
	"gossipcore/internal/clock"
)

// Detector is the subset of fd.Detector the refresher depends on.
type Detector interface {
	Phi(peerID string, nowNs int64) float64
}

// Table is the subset of membership.Table the refresher depends on.
type Table interface {
	Keys() []string
	Get(key string) (gossipcore.Member, gossipcore.PeerState, bool)
	SetState(key string, newState gossipcore.PeerState)
}

// Refresher periodically classifies every known peer's state from the
// failure detector's phi score and applies transitions to the
// membership table.
type Refresher struct {
	table     Table
	detector  Detector
	clk       clock.Clock
	period    time.Duration
	threshold float64

	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Refresher that scans table every period, marking a
// peer UP when its phi score is below threshold and DOWN otherwise.
func New(table Table, detector Detector, clk clock.Clock, period time.Duration, threshold float64) *Refresher {
	return &Refresher{table: table, detector: detector, clk: clk, period: period, threshold: threshold}
}

// Start launches the refresh loop in a background goroutine.
func (r *Refresher) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		r.run(ctx)
	}()
	return nil
}

// Stop cancels the refresh loop and waits for it to exit.
func (r *Refresher) Stop() error {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
	return nil
}

func (r *Refresher) run(ctx context.Context) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshOnce()
		}
	}
}

// refreshOnce classifies every known peer sequentially, so state
// changes fan out to listeners in a deterministic order, per §4.8.
func (r *Refresher) refreshOnce() {
	nowNs := r.clk.NowNs()
	for _, key := range r.table.Keys() {
		_, _, ok := r.table.Get(key)
		if !ok {
			continue
		}
		phi := r.detector.Phi(key, nowNs)
		if phi < r.threshold {
			r.table.SetState(key, gossipcore.StateUp)
		} else {
			r.table.SetState(key, gossipcore.StateDown)
		}
	}
}
