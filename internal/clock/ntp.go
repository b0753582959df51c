package clock

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/beevik/ntp"
)

// NTP is a Clock whose wall-clock reading is periodically corrected
// against an NTP server, so ExpireAt/Timestamp comparisons stay
// meaningful across machines with drifted local clocks. Its monotonic
// reading (NowNs) is never corrected — NTP has no opinion on elapsed
// time, only on the current instant.
//
// It owns its own goroutine lifecycle via Start/Stop, the same pattern
// convergence.Loop uses for its registry-watch goroutine.
type NTP struct {
	server string
	resync time.Duration
	offset atomic.Int64 // nanoseconds to add to time.Now()

	cancel context.CancelFunc
	done   chan struct{}
}

// NewNTP returns an NTP clock that resyncs against server every resync
// interval. If server is empty, NowMs behaves exactly like System and
// Start is a no-op.
func NewNTP(server string, resync time.Duration) *NTP {
	return &NTP{server: server, resync: resync}
}

func (n *NTP) NowNs() int64 { return time.Now().UnixNano() }

func (n *NTP) NowMs() int64 {
	return time.Now().Add(time.Duration(n.offset.Load())).UnixMilli()
}

// Start launches the background resync loop. It is a no-op when no
// server was configured.
func (n *NTP) Start(ctx context.Context) {
	if n.server == "" {
		return
	}
	ctx, n.cancel = context.WithCancel(ctx)
	n.done = make(chan struct{})

	go func() {
		defer close(n.done)
		n.resyncOnce()
		ticker := time.NewTicker(n.resync)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n.resyncOnce()
			}
		}
	}()
}

// Stop cancels the resync loop and waits for it to exit. Safe to call
// even if Start was never called or was a no-op.
func (n *NTP) Stop() {
	if n.cancel != nil {
		n.cancel()
		<-n.done
	}
}

func (n *NTP) resyncOnce() {
	resp, err := ntp.Query(n.server)
	if err != nil {
		slog.Warn("ntp query failed, keeping previous offset", "server", n.server, "err", err)
		return
	}
	if err := resp.Validate(); err != nil {
		slog.Warn("ntp response invalid, keeping previous offset", "server", n.server, "err", err)
		return
	}
	n.offset.Store(int64(resp.ClockOffset))
	slog.Debug("ntp resync", "server", n.server, "offset", resp.ClockOffset)
}
