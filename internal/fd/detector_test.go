package fd

import "testing"

func TestPhiZeroBelowMinimumSamples(t *testing.T) {
	d := New(Config{WindowSize: 100, MinimumSamples: 8, ConvictThreshold: 8, Distribution: DistributionNormal})
	var now int64 = 1_000_000_000
	for i := 0; i < 5; i++ {
		d.Report("peerA", now)
		now += 100 * 1_000_000
	}
	if phi := d.Phi("peerA", now); phi != 0 {
		t.Fatalf("phi = %v, want 0 with fewer than MinimumSamples", phi)
	}
}

func TestPhiUnknownPeerIsZero(t *testing.T) {
	d := New(Config{WindowSize: 100, MinimumSamples: 8, ConvictThreshold: 8})
	if phi := d.Phi("ghost", 0); phi != 0 {
		t.Fatalf("phi = %v, want 0 for unreported peer", phi)
	}
}

// TestSteadyHeartbeatsStayBelowThreshold covers Testable Property 5:
// with heartbeats at a steady period and no loss, phi stays below the
// convict threshold.
func TestSteadyHeartbeatsStayBelowThreshold(t *testing.T) {
	for _, dist := range []Distribution{DistributionNormal, DistributionExponential} {
		d := New(Config{WindowSize: 100, MinimumSamples: 8, ConvictThreshold: 8, Distribution: dist})
		const periodNs = 100 * 1_000_000
		var now int64
		for i := 0; i < 200; i++ {
			d.Report("peerA", now)
			now += periodNs
			if i >= 10 {
				if phi := d.Phi("peerA", now); phi >= d.ConvictThreshold() {
					t.Fatalf("dist=%v: phi=%v crossed threshold during steady heartbeats at i=%d", dist, phi, i)
				}
			}
		}
	}
}

// TestCessationCrossesThreshold covers the second half of Property 5:
// after heartbeats stop, phi eventually crosses the threshold.
func TestCessationCrossesThreshold(t *testing.T) {
	for _, dist := range []Distribution{DistributionNormal, DistributionExponential} {
		d := New(Config{WindowSize: 100, MinimumSamples: 8, ConvictThreshold: 8, Distribution: dist})
		const periodNs = 100 * 1_000_000
		var now int64
		for i := 0; i < 50; i++ {
			d.Report("peerA", now)
			now += periodNs
		}

		crossed := false
		for i := 0; i < 100; i++ {
			now += periodNs
			if d.Phi("peerA", now) >= d.ConvictThreshold() {
				crossed = true
				break
			}
		}
		if !crossed {
			t.Fatalf("dist=%v: phi never crossed threshold after heartbeats stopped", dist)
		}
	}
}

func TestReportEvictsOldestWhenWindowFull(t *testing.T) {
	d := New(Config{WindowSize: 4, MinimumSamples: 1, ConvictThreshold: 8})
	var now int64
	// Four huge intervals, then several tiny ones: once the window has
	// rolled over, phi should reflect the tiny recent intervals, not
	// the stale huge ones.
	for i := 0; i < 4; i++ {
		now += 10_000 * 1_000_000
		d.Report("p", now)
	}
	for i := 0; i < 4; i++ {
		now += 1_000_000
		d.Report("p", now)
	}
	phi := d.Phi("p", now+1_000_000)
	if phi > 2 {
		t.Fatalf("phi = %v, want small value once window holds only tight recent intervals", phi)
	}
}
