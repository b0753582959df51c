// Package datastore implements the per-node and shared payload maps
// described in spec.md §4.4: last-writer-wins merge for plain data,
// CRDT merge for convergent payloads, TTL-aware lookup, and change
// subscribers.
package datastore

import (
	"log/slog"
	"sort"
	"sync"

	"gossipcore"
	"gossipcore/internal/clock"
)

// PerNodeListener is notified after a per-node entry is created,
// replaced, or reaped. new is nil when the entry was removed.
type PerNodeListener func(nodeID gossipcore.NodeID, key string, old, new *gossipcore.PerNodeDatum)

// SharedListener is notified after a shared entry is created, merged,
// replaced, or reaped. new is nil when the entry was removed.
type SharedListener func(key string, old, new *gossipcore.SharedDatum)

// Store holds per-node and shared payloads for one process.
type Store struct {
	clk clock.Clock

	perNodeLocks *keyedMutex
	perNodeMu    sync.RWMutex
	perNode      map[gossipcore.NodeID]map[string]*gossipcore.PerNodeDatum

	sharedLocks *keyedMutex
	sharedMu    sync.RWMutex
	shared      map[string]*gossipcore.SharedDatum

	subsMu      sync.Mutex
	perNodeSubs map[uint64]PerNodeListener
	sharedSubs  map[uint64]SharedListener
	nextSubID   uint64
}

// New returns an empty Store using clk for expiry comparisons.
func New(clk clock.Clock) *Store {
	return &Store{
		clk:          clk,
		perNodeLocks: newKeyedMutex(),
		perNode:      make(map[gossipcore.NodeID]map[string]*gossipcore.PerNodeDatum),
		sharedLocks:  newKeyedMutex(),
		shared:       make(map[string]*gossipcore.SharedDatum),
		perNodeSubs:  make(map[uint64]PerNodeListener),
		sharedSubs:   make(map[uint64]SharedListener),
	}
}

// AddPerNode stores datum if it wins last-writer-wins over whatever is
// currently stored for (datum.NodeID, datum.Key), per §3/§4.4.
func (s *Store) AddPerNode(datum gossipcore.PerNodeDatum) {
	lockKey := string(datum.NodeID) + "/" + datum.Key
	unlock := s.perNodeLocks.Lock(lockKey)
	defer unlock()

	current := s.getPerNodeLocked(datum.NodeID, datum.Key)
	if current != nil && !gossipcore.LastWriterWins(current.Timestamp, current.Payload, datum.Timestamp, datum.Payload) {
		return
	}

	stored := datum
	s.perNodeMu.Lock()
	nodeMap, ok := s.perNode[datum.NodeID]
	if !ok {
		nodeMap = make(map[string]*gossipcore.PerNodeDatum)
		s.perNode[datum.NodeID] = nodeMap
	}
	nodeMap[datum.Key] = &stored
	s.perNodeMu.Unlock()

	s.notifyPerNode(datum.NodeID, datum.Key, current, &stored)
}

func (s *Store) getPerNodeLocked(nodeID gossipcore.NodeID, key string) *gossipcore.PerNodeDatum {
	s.perNodeMu.RLock()
	defer s.perNodeMu.RUnlock()
	nodeMap, ok := s.perNode[nodeID]
	if !ok {
		return nil
	}
	return nodeMap[key]
}

// AddShared stores or merges datum into the shared map. When
// datum.Payload is a Crdt, the stored value becomes the merge of every
// observed value for that key (§4.4's merge path) and the merged Crdt
// is returned. Otherwise last-writer-wins applies, as for per-node data.
func (s *Store) AddShared(datum gossipcore.SharedDatum) gossipcore.Crdt {
	if incoming, ok := datum.Payload.(gossipcore.Crdt); ok {
		return s.mergeShared(datum, incoming)
	}
	s.addSharedLWW(datum)
	return nil
}

func (s *Store) addSharedLWW(datum gossipcore.SharedDatum) {
	unlock := s.sharedLocks.Lock(datum.Key)
	defer unlock()

	current := s.getSharedLocked(datum.Key)
	if current != nil && !gossipcore.LastWriterWins(current.Timestamp, current.Payload, datum.Timestamp, datum.Payload) {
		return
	}

	stored := datum
	s.sharedMu.Lock()
	s.shared[datum.Key] = &stored
	s.sharedMu.Unlock()

	s.notifyShared(datum.Key, current, &stored)
}

// Merge applies the CRDT merge path directly, for callers (Engine.Merge)
// that need the resulting Crdt back.
func (s *Store) Merge(datum gossipcore.SharedDatum, incoming gossipcore.Crdt) gossipcore.Crdt {
	return s.mergeShared(datum, incoming)
}

func (s *Store) mergeShared(datum gossipcore.SharedDatum, incoming gossipcore.Crdt) gossipcore.Crdt {
	unlock := s.sharedLocks.Lock(datum.Key)
	defer unlock()

	current := s.getSharedLocked(datum.Key)

	merged := incoming
	ts := datum.Timestamp
	expire := datum.ExpireAt
	if current != nil {
		if curCrdt, ok := current.Payload.(gossipcore.Crdt); ok {
			merged = curCrdt.Merge(incoming)
		}
		ts = maxInt64(current.Timestamp, datum.Timestamp)
		expire = maxExpire(current.ExpireAt, datum.ExpireAt)
	}

	stored := &gossipcore.SharedDatum{
		Key:       datum.Key,
		NodeID:    datum.NodeID,
		Timestamp: ts,
		ExpireAt:  expire,
		Payload:   merged,
	}

	s.sharedMu.Lock()
	s.shared[datum.Key] = stored
	s.sharedMu.Unlock()

	s.notifyShared(datum.Key, current, stored)
	return merged
}

func (s *Store) getSharedLocked(key string) *gossipcore.SharedDatum {
	s.sharedMu.RLock()
	defer s.sharedMu.RUnlock()
	return s.shared[key]
}

// FindPerNode returns the live (non-expired) datum for (nodeID, key).
func (s *Store) FindPerNode(nodeID gossipcore.NodeID, key string) (gossipcore.PerNodeDatum, bool) {
	d := s.getPerNodeLocked(nodeID, key)
	if d == nil || d.Expired(s.clk.NowMs()) {
		return gossipcore.PerNodeDatum{}, false
	}
	return *d, true
}

// FindShared returns the live (non-expired) datum for key.
func (s *Store) FindShared(key string) (gossipcore.SharedDatum, bool) {
	d := s.getSharedLocked(key)
	if d == nil || d.Expired(s.clk.NowMs()) {
		return gossipcore.SharedDatum{}, false
	}
	return *d, true
}

// FindCrdt returns the live Crdt payload stored for key, if any.
func (s *Store) FindCrdt(key string) (gossipcore.Crdt, bool) {
	d, ok := s.FindShared(key)
	if !ok {
		return nil, false
	}
	c, ok := d.Payload.(gossipcore.Crdt)
	return c, ok
}

// SnapshotPerNode returns every live per-node datum, for ActiveGossiper
// pushes.
func (s *Store) SnapshotPerNode() []gossipcore.PerNodeDatum {
	s.perNodeMu.RLock()
	defer s.perNodeMu.RUnlock()
	nowMs := s.clk.NowMs()
	var out []gossipcore.PerNodeDatum
	for _, byKey := range s.perNode {
		for _, d := range byKey {
			if !d.Expired(nowMs) {
				out = append(out, *d)
			}
		}
	}
	return out
}

// SnapshotShared returns every live shared datum, for ActiveGossiper
// pushes.
func (s *Store) SnapshotShared() []gossipcore.SharedDatum {
	s.sharedMu.RLock()
	defer s.sharedMu.RUnlock()
	nowMs := s.clk.NowMs()
	out := make([]gossipcore.SharedDatum, 0, len(s.shared))
	for _, d := range s.shared {
		if !d.Expired(nowMs) {
			out = append(out, *d)
		}
	}
	return out
}

// ReapExpired deletes every per-node and shared entry whose ExpireAt is
// at or before nowMs, notifying subscribers with (old, nil), and
// returns the counts removed.
func (s *Store) ReapExpired(nowMs int64) (perNodeReaped, sharedReaped int) {
	s.perNodeMu.Lock()
	var toNotifyPerNode []struct {
		node gossipcore.NodeID
		key  string
		old  *gossipcore.PerNodeDatum
	}
	for nodeID, byKey := range s.perNode {
		for key, d := range byKey {
			if d.Expired(nowMs) {
				toNotifyPerNode = append(toNotifyPerNode, struct {
					node gossipcore.NodeID
					key  string
					old  *gossipcore.PerNodeDatum
				}{nodeID, key, d})
				delete(byKey, key)
			}
		}
	}
	s.perNodeMu.Unlock()
	for _, n := range toNotifyPerNode {
		s.notifyPerNode(n.node, n.key, n.old, nil)
	}

	s.sharedMu.Lock()
	var toNotifyShared []struct {
		key string
		old *gossipcore.SharedDatum
	}
	for key, d := range s.shared {
		if d.Expired(nowMs) {
			toNotifyShared = append(toNotifyShared, struct {
				key string
				old *gossipcore.SharedDatum
			}{key, d})
			delete(s.shared, key)
		}
	}
	s.sharedMu.Unlock()
	for _, n := range toNotifyShared {
		s.notifyShared(n.key, n.old, nil)
	}

	return len(toNotifyPerNode), len(toNotifyShared)
}

// RegisterPerNodeSubscriber registers h and returns a token for
// UnregisterPerNodeSubscriber.
func (s *Store) RegisterPerNodeSubscriber(h PerNodeListener) uint64 {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.perNodeSubs[id] = h
	return id
}

// UnregisterPerNodeSubscriber removes a subscriber. Unknown ids are
// ignored.
func (s *Store) UnregisterPerNodeSubscriber(id uint64) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	delete(s.perNodeSubs, id)
}

// RegisterSharedSubscriber registers h and returns a token for
// UnregisterSharedSubscriber.
func (s *Store) RegisterSharedSubscriber(h SharedListener) uint64 {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.sharedSubs[id] = h
	return id
}

// UnregisterSharedSubscriber removes a subscriber. Unknown ids are
// ignored.
func (s *Store) UnregisterSharedSubscriber(id uint64) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	delete(s.sharedSubs, id)
}

func (s *Store) notifyPerNode(nodeID gossipcore.NodeID, key string, old, new *gossipcore.PerNodeDatum) {
	s.subsMu.Lock()
	ids := sortedSubIDs(s.perNodeSubs)
	handlers := make([]PerNodeListener, len(ids))
	for i, id := range ids {
		handlers[i] = s.perNodeSubs[id]
	}
	s.subsMu.Unlock()

	for _, h := range handlers {
		invokePerNode(h, nodeID, key, old, new)
	}
}

func (s *Store) notifyShared(key string, old, new *gossipcore.SharedDatum) {
	s.subsMu.Lock()
	ids := sortedSubIDs(s.sharedSubs)
	handlers := make([]SharedListener, len(ids))
	for i, id := range ids {
		handlers[i] = s.sharedSubs[id]
	}
	s.subsMu.Unlock()

	for _, h := range handlers {
		invokeShared(h, key, old, new)
	}
}

func invokePerNode(h PerNodeListener, nodeID gossipcore.NodeID, key string, old, new *gossipcore.PerNodeDatum) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("per-node data subscriber panicked", "panic", r, "node", nodeID, "key", key)
		}
	}()
	h(nodeID, key, old, new)
}

func invokeShared(h SharedListener, key string, old, new *gossipcore.SharedDatum) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("shared data subscriber panicked", "panic", r, "key", key)
		}
	}()
	h(key, old, new)
}

func sortedSubIDs[V any](m map[uint64]V) []uint64 {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// maxExpire implements §4.4's "ExpireAt = max" for the CRDT merge path
// under Open Question (b)'s decision that a nil ExpireAt means "never
// expires": nil outranks any concrete value.
func maxExpire(a, b *int64) *int64 {
	if a == nil || b == nil {
		return nil
	}
	if *a > *b {
		return a
	}
	return b
}
