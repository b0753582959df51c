// Package fd implements a phi-accrual failure detector: a per-peer
// sliding window of heartbeat inter-arrival times that reports a
// continuous suspicion level instead of a boolean up/down.
package fd

import (
	"math"
	"sync"
)

// Distribution is the inter-arrival distribution assumed when computing
// phi.
type Distribution int

const (
	DistributionNormal Distribution = iota
	DistributionExponential
)

// Config configures a Detector.
type Config struct {
	WindowSize       int
	MinimumSamples   int
	Distribution     Distribution
	ConvictThreshold float64
}

// Detector tracks inter-arrival statistics for any number of peers,
// identified by an opaque string key. It never blocks and never
// panics: a peer with no samples yet simply reports phi 0.
type Detector struct {
	cfg Config

	mu    sync.Mutex
	peers map[string]*window
}

// New returns a Detector configured with cfg.
func New(cfg Config) *Detector {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 100
	}
	if cfg.MinimumSamples <= 0 {
		cfg.MinimumSamples = 8
	}
	return &Detector{cfg: cfg, peers: make(map[string]*window)}
}

// ConvictThreshold returns the configured conviction threshold: a peer
// is UP iff Phi(peer, now) < ConvictThreshold.
func (d *Detector) ConvictThreshold() float64 { return d.cfg.ConvictThreshold }

// Report records a heartbeat arrival for peerID at nowNs. If a prior
// arrival exists, the inter-arrival interval is appended to the peer's
// window, evicting the oldest sample if the window is full.
func (d *Detector) Report(peerID string, nowNs int64) {
	w := d.windowFor(peerID)
	w.report(nowNs, d.cfg.WindowSize)
}

// Phi returns the current suspicion level for peerID at nowNs. With
// fewer than MinimumSamples recorded, it returns 0 (cannot yet
// convict). A peer never reported to this detector also returns 0.
func (d *Detector) Phi(peerID string, nowNs int64) float64 {
	d.mu.Lock()
	w, ok := d.peers[peerID]
	d.mu.Unlock()
	if !ok {
		return 0
	}
	return w.phi(nowNs, d.cfg)
}

// Forget drops all tracked state for peerID. Not required by callers
// that never remove members, but kept for completeness against future
// reconfiguration paths.
func (d *Detector) Forget(peerID string) {
	d.mu.Lock()
	delete(d.peers, peerID)
	d.mu.Unlock()
}

func (d *Detector) windowFor(peerID string) *window {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.peers[peerID]
	if !ok {
		w = &window{}
		d.peers[peerID] = w
	}
	return w
}

// window is a bounded ring buffer of inter-arrival samples for one
// peer, guarded by its own mutex so phi reads for one peer never
// contend with report() on another.
type window struct {
	mu sync.Mutex

	samples []int64
	head    int
	count   int

	lastArrival int64
	hasArrival  bool
}

func (w *window) report(nowNs int64, size int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.samples == nil {
		w.samples = make([]int64, size)
	}

	if w.hasArrival {
		interval := nowNs - w.lastArrival
		if interval < 0 {
			interval = 0
		}
		w.samples[w.head] = interval
		w.head = (w.head + 1) % size
		if w.count < size {
			w.count++
		}
	}
	w.lastArrival = nowNs
	w.hasArrival = true
}

func (w *window) phi(nowNs int64, cfg Config) float64 {
	w.mu.Lock()
	count := w.count
	hasArrival := w.hasArrival
	lastArrival := w.lastArrival
	var mean, variance float64
	if count > 0 {
		mean, variance = meanAndVariance(w.samples, count)
	}
	w.mu.Unlock()

	if !hasArrival || count < cfg.MinimumSamples {
		return 0
	}

	elapsed := float64(nowNs - lastArrival)
	if elapsed < 0 {
		elapsed = 0
	}
	if mean <= 0 {
		mean = 1
	}

	switch cfg.Distribution {
	case DistributionExponential:
		return elapsed / (mean * math.Ln10)
	default:
		return phiNormal(elapsed, mean, variance)
	}
}

// phiNormal computes -log10(P(X >= elapsed)) for X ~ Normal(mean,
// variance), using the complementary error function for the Gaussian
// tail.
func phiNormal(elapsed, mean, variance float64) float64 {
	stddev := math.Sqrt(variance)
	if stddev <= 0 {
		stddev = mean / 4
		if stddev <= 0 {
			stddev = 1
		}
	}
	z := (elapsed - mean) / (stddev * math.Sqrt2)
	p := 0.5 * math.Erfc(z)
	const floor = 1e-300
	if p < floor {
		p = floor
	}
	return -math.Log10(p)
}

func meanAndVariance(samples []int64, count int) (mean, variance float64) {
	var sum float64
	for i := 0; i < count; i++ {
		sum += float64(samples[i])
	}
	mean = sum / float64(count)

	var sqDiff float64
	for i := 0; i < count; i++ {
		d := float64(samples[i]) - mean
		sqDiff += d * d
	}
	variance = sqDiff / float64(count)
	return mean, variance
}
