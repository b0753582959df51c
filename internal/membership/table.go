// Package membership implements the ordered peer -> UP/DOWN mapping
// described in spec.md §3/§4.3: MembershipTable.
package membership

import (
	"log/slog"
	"maps"
	"sort"
	"sync"

	"gossipcore"
)

// Reporter is the subset of fd.Detector that MembershipTable depends
// on: every accepted heartbeat is reported to the failure detector.
type Reporter interface {
	Report(peerID string, nowNs int64)
}

// Listener is notified when a peer's PeerState changes.
type Listener func(Event)

// Event describes one UP/DOWN transition.
type Event struct {
	Member gossipcore.Member
	Old    gossipcore.PeerState
	New    gossipcore.PeerState
}

type entry struct {
	member gossipcore.Member
	state  gossipcore.PeerState
}

// Table is the ordered mapping of Member -> PeerState. The local member
// is never present in it (§3 Invariants); callers carry it separately.
type Table struct {
	localKey string

	mu      sync.RWMutex
	entries map[string]*entry

	reporter Reporter

	listenersMu    sync.Mutex
	listeners      map[uint64]Listener
	nextListenerID uint64
}

// New returns an empty Table for local (excluded from the table) that
// reports accepted heartbeats to reporter.
func New(local gossipcore.Member, reporter Reporter) *Table {
	return &Table{
		localKey:  local.Key(),
		entries:   make(map[string]*entry),
		reporter:  reporter,
		listeners: make(map[uint64]Listener),
	}
}

// UpsertFromHeartbeat applies one inbound heartbeat observation. A peer
// absent from the table is inserted as DOWN. A present peer is updated,
// and the failure detector is notified, only if heartbeat strictly
// exceeds the stored HeartbeatCounter — otherwise the call is a no-op,
// which is what makes HeartbeatCounter non-decreasing (Testable
// Property 1). The local member is never inserted.
func (t *Table) UpsertFromHeartbeat(member gossipcore.Member, heartbeat int64, nowNs int64) {
	key := member.Key()
	if key == t.localKey {
		return
	}

	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok {
		member.HeartbeatCounter = heartbeat
		t.entries[key] = &entry{member: member, state: gossipcore.StateDown}
		t.mu.Unlock()
		t.reporter.Report(key, nowNs)
		return
	}

	if heartbeat <= e.member.HeartbeatCounter {
		t.mu.Unlock()
		return
	}

	e.member.HeartbeatCounter = heartbeat
	if !maps.Equal(e.member.Properties, member.Properties) {
		e.member.Properties = member.Properties
	}
	e.member.Endpoint = member.Endpoint
	t.mu.Unlock()

	t.reporter.Report(key, nowNs)
}

// SetState transitions the peer identified by key to newState. If the
// peer is unknown or already in newState, it is a no-op. Changed state
// fans out to registered listeners sequentially; a listener that panics
// is logged and does not prevent the remaining listeners from running.
func (t *Table) SetState(key string, newState gossipcore.PeerState) {
	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok || e.state == newState {
		t.mu.Unlock()
		return
	}
	old := e.state
	e.state = newState
	member := e.member
	t.mu.Unlock()

	t.fanOut(Event{Member: member, Old: old, New: newState})
}

// ForceDown transitions key to DOWN immediately, bypassing the failure
// detector. Used by MessageDispatcher on an inbound Shutdown message
// (§4.5); optimistic, not required for correctness.
func (t *Table) ForceDown(key string) {
	t.SetState(key, gossipcore.StateDown)
}

// Get returns the member and state stored for key, if any.
func (t *Table) Get(key string) (gossipcore.Member, gossipcore.PeerState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[key]
	if !ok {
		return gossipcore.Member{}, gossipcore.StateDown, false
	}
	return e.member, e.state, true
}

// Keys returns every known peer key in deterministic order.
func (t *Table) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sortedKeysLocked()
}

// SnapshotLive returns every UP member in deterministic order.
func (t *Table) SnapshotLive() []gossipcore.Member {
	return t.snapshotFiltered(gossipcore.StateUp)
}

// SnapshotDead returns every DOWN member in deterministic order.
func (t *Table) SnapshotDead() []gossipcore.Member {
	return t.snapshotFiltered(gossipcore.StateDown)
}

// SnapshotAll returns every known member in deterministic order,
// regardless of state.
func (t *Table) SnapshotAll() []gossipcore.Member {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := t.sortedKeysLocked()
	out := make([]gossipcore.Member, 0, len(keys))
	for _, k := range keys {
		out = append(out, t.entries[k].member)
	}
	return out
}

func (t *Table) snapshotFiltered(state gossipcore.PeerState) []gossipcore.Member {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := t.sortedKeysLocked()
	out := make([]gossipcore.Member, 0, len(keys))
	for _, k := range keys {
		if e := t.entries[k]; e.state == state {
			out = append(out, e.member)
		}
	}
	return out
}

func (t *Table) sortedKeysLocked() []string {
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RegisterListener registers l to be invoked on every UP/DOWN
// transition and returns a token for UnregisterListener.
func (t *Table) RegisterListener(l Listener) uint64 {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()
	id := t.nextListenerID
	t.nextListenerID++
	t.listeners[id] = l
	return id
}

// UnregisterListener removes a listener previously registered with
// RegisterListener. Unknown ids are ignored.
func (t *Table) UnregisterListener(id uint64) {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()
	delete(t.listeners, id)
}

func (t *Table) fanOut(ev Event) {
	t.listenersMu.Lock()
	ids := make([]uint64, 0, len(t.listeners))
	for id := range t.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	listeners := make([]Listener, len(ids))
	for i, id := range ids {
		listeners[i] = t.listeners[id]
	}
	t.listenersMu.Unlock()

	for _, l := range listeners {
		invokeListener(l, ev)
	}
}

func invokeListener(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("membership listener panicked", "panic", r, "node", ev.Member.NodeID)
		}
	}()
	l(ev)
}
