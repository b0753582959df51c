package membership

import (
	"testing"

	"gossipcore"
)

type fakeReporter struct {
	reported []string
}

func (f *fakeReporter) Report(peerID string, nowNs int64) {
	f.reported = append(f.reported, peerID)
}

func testMember(node string) gossipcore.Member {
	return gossipcore.Member{ClusterName: "c", NodeID: gossipcore.NodeID(node)}
}

func TestUpsertInsertsAsDown(t *testing.T) {
	r := &fakeReporter{}
	tbl := New(testMember("self"), r)

	tbl.UpsertFromHeartbeat(testMember("b"), 1, 100)

	_, state, ok := tbl.Get(testMember("b").Key())
	if !ok || state != gossipcore.StateDown {
		t.Fatalf("got ok=%v state=%v, want ok=true state=DOWN", ok, state)
	}
	if len(r.reported) != 1 {
		t.Fatalf("reported %d times, want 1", len(r.reported))
	}
}

func TestUpsertIgnoresLocalMember(t *testing.T) {
	r := &fakeReporter{}
	self := testMember("self")
	tbl := New(self, r)

	tbl.UpsertFromHeartbeat(self, 1, 100)

	if len(tbl.SnapshotAll()) != 0 {
		t.Fatalf("local member leaked into table")
	}
}

// TestHeartbeatMonotonic covers Testable Property 1.
func TestHeartbeatMonotonic(t *testing.T) {
	r := &fakeReporter{}
	tbl := New(testMember("self"), r)
	b := testMember("b")

	tbl.UpsertFromHeartbeat(b, 5, 100)
	tbl.UpsertFromHeartbeat(b, 3, 200) // stale, must be ignored
	m, _, _ := tbl.Get(b.Key())
	if m.HeartbeatCounter != 5 {
		t.Fatalf("heartbeat = %d, want 5 (stale update must be ignored)", m.HeartbeatCounter)
	}

	tbl.UpsertFromHeartbeat(b, 9, 300)
	m, _, _ = tbl.Get(b.Key())
	if m.HeartbeatCounter != 9 {
		t.Fatalf("heartbeat = %d, want 9", m.HeartbeatCounter)
	}

	if len(r.reported) != 2 {
		t.Fatalf("reported %d times, want 2 (insert + one accepted update)", len(r.reported))
	}
}

func TestSetStateFansOutToListeners(t *testing.T) {
	r := &fakeReporter{}
	tbl := New(testMember("self"), r)
	b := testMember("b")
	tbl.UpsertFromHeartbeat(b, 1, 100)

	var events []Event
	tbl.RegisterListener(func(ev Event) { events = append(events, ev) })

	tbl.SetState(b.Key(), gossipcore.StateUp)
	if len(events) != 1 || events[0].New != gossipcore.StateUp {
		t.Fatalf("events = %+v, want one UP transition", events)
	}

	// No-op transition to the same state must not notify again.
	tbl.SetState(b.Key(), gossipcore.StateUp)
	if len(events) != 1 {
		t.Fatalf("got %d events, want still 1 after no-op SetState", len(events))
	}
}

func TestListenerPanicDoesNotStopOthers(t *testing.T) {
	r := &fakeReporter{}
	tbl := New(testMember("self"), r)
	b := testMember("b")
	tbl.UpsertFromHeartbeat(b, 1, 100)

	var secondCalled bool
	tbl.RegisterListener(func(Event) { panic("boom") })
	tbl.RegisterListener(func(Event) { secondCalled = true })

	tbl.SetState(b.Key(), gossipcore.StateUp)

	if !secondCalled {
		t.Fatalf("second listener was not invoked after first panicked")
	}
}

func TestUnregisterListenerStopsNotification(t *testing.T) {
	r := &fakeReporter{}
	tbl := New(testMember("self"), r)
	b := testMember("b")
	tbl.UpsertFromHeartbeat(b, 1, 100)

	var count int
	id := tbl.RegisterListener(func(Event) { count++ })
	tbl.UnregisterListener(id)

	tbl.SetState(b.Key(), gossipcore.StateUp)
	if count != 0 {
		t.Fatalf("count = %d, want 0 after unregister", count)
	}
}

func TestSnapshotsAreOrderedAndFiltered(t *testing.T) {
	r := &fakeReporter{}
	tbl := New(testMember("self"), r)
	tbl.UpsertFromHeartbeat(testMember("c"), 1, 1)
	tbl.UpsertFromHeartbeat(testMember("a"), 1, 1)
	tbl.UpsertFromHeartbeat(testMember("b"), 1, 1)
	tbl.SetState(testMember("b").Key(), gossipcore.StateUp)

	all := tbl.SnapshotAll()
	if len(all) != 3 || all[0].NodeID != "a" || all[1].NodeID != "b" || all[2].NodeID != "c" {
		t.Fatalf("SnapshotAll not lexicographically ordered: %+v", all)
	}

	live := tbl.SnapshotLive()
	if len(live) != 1 || live[0].NodeID != "b" {
		t.Fatalf("SnapshotLive = %+v, want only b", live)
	}

	dead := tbl.SnapshotDead()
	if len(dead) != 2 {
		t.Fatalf("SnapshotDead = %+v, want 2 entries", dead)
	}
}
