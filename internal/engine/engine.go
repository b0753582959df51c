// Package engine is the GossipEngine composition root described in
// spec.md §4.9: it wires MembershipTable, DataStore, FailureDetector,
// MessageDispatcher, ActiveGossiper, Reaper, and StateRefresher
// together and exposes the public API named in §6. It lives under
// internal rather than the root gossipcore package because it is the
// only piece that depends on every internal/* package; putting it in
// the root package would create an import cycle.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gossipcore"
	"gossipcore/internal/check"
	"gossipcore/internal/clock"
	"gossipcore/internal/datastore"
	"gossipcore/internal/dispatch"
	"gossipcore/internal/fd"
	"gossipcore/internal/gossiper"
	"gossipcore/internal/membership"
	"gossipcore/internal/reaper"
	"gossipcore/internal/refresher"
)

// Config holds everything Engine needs beyond its collaborators:
// periods, thresholds, and the local member identity.
type Config struct {
	Local gossipcore.Member

	FailureDetector fd.Config

	Gossiper gossiper.Config

	ReaperPeriod    time.Duration
	RefresherPeriod time.Duration

	PersistEvery time.Duration // 0 disables scheduled persistence
}

// DefaultConfig returns Config populated with the defaults named in
// spec.md, for the given local member.
func DefaultConfig(local gossipcore.Member) Config {
	return Config{
		Local: local,
		FailureDetector: fd.Config{
			WindowSize:       100,
			MinimumSamples:   8,
			Distribution:     fd.DistributionNormal,
			ConvictThreshold: 8,
		},
		Gossiper:        gossiper.DefaultConfig(),
		ReaperPeriod:    500 * time.Millisecond,
		RefresherPeriod: 100 * time.Millisecond,
		PersistEvery:    60 * time.Second,
	}
}

// Engine is the GossipEngine composition root.
type Engine struct {
	cfg Config
	clk clock.Clock

	transport gossipcore.Transport
	protocol  gossipcore.Protocol
	persister gossipcore.Persister
	lockMgr   gossipcore.LockManager

	detector   *fd.Detector
	table      *membership.Table
	store      *datastore.Store
	dispatcher *dispatch.Dispatcher
	gossip     *gossiper.Gossiper
	reap       *reaper.Reaper
	refresh    *refresher.Refresher

	running atomic.Bool

	mu            sync.Mutex
	persistCancel context.CancelFunc
	persistDone   chan struct{}
}

// New constructs an Engine. transport, protocol, and persister are
// required; lockManager may be nil.
func New(cfg Config, clk clock.Clock, transport gossipcore.Transport, protocol gossipcore.Protocol, persister gossipcore.Persister, lockManager gossipcore.LockManager) *Engine {
	check.Assert(transport != nil, "engine.New: transport must not be nil")
	check.Assert(protocol != nil, "engine.New: protocol must not be nil")
	check.Assert(persister != nil, "engine.New: persister must not be nil")

	detector := fd.New(cfg.FailureDetector)
	table := membership.New(cfg.Local, detector)
	store := datastore.New(clk)
	dispatcher := dispatch.New(cfg.Local, table, store, clk)
	gossip := gossiper.New(cfg.Local, table, store, transport, protocol, clk, cfg.Gossiper)
	reap := reaper.New(store, clk, cfg.ReaperPeriod)
	refresh := refresher.New(table, detector, clk, cfg.RefresherPeriod, cfg.FailureDetector.ConvictThreshold)

	return &Engine{
		cfg:        cfg,
		clk:        clk,
		transport:  transport,
		protocol:   protocol,
		persister:  persister,
		lockMgr:    lockManager,
		detector:   detector,
		table:      table,
		store:      store,
		dispatcher: dispatcher,
		gossip:     gossip,
		reap:       reap,
		refresh:    refresh,
	}
}

// Start begins accepting inbound connections, periodic pushes, reap
// scans, state refreshes, and (if a persister was configured with a
// nonzero PersistEvery) scheduled persistence, per §4.9's init().
func (e *Engine) Start(ctx context.Context) error {
	if err := e.loadPersisted(ctx); err != nil {
		return fmt.Errorf("engine: load persisted state: %w", err)
	}

	if err := e.transport.StartEndpoint(ctx, e.dispatcher.Dispatch); err != nil {
		return fmt.Errorf("engine: start endpoint: %w", err)
	}
	if err := e.transport.StartActiveGossiper(); err != nil {
		return fmt.Errorf("engine: start active gossiper transport: %w", err)
	}
	if err := e.gossip.Start(ctx); err != nil {
		return fmt.Errorf("engine: start gossiper: %w", err)
	}
	if err := e.reap.Start(ctx); err != nil {
		return fmt.Errorf("engine: start reaper: %w", err)
	}
	if err := e.refresh.Start(ctx); err != nil {
		return fmt.Errorf("engine: start refresher: %w", err)
	}
	if e.lockMgr != nil {
		if err := e.lockMgr.Start(ctx); err != nil {
			return fmt.Errorf("engine: start lock manager: %w", err)
		}
	}

	e.startPersistence(ctx)
	e.running.Store(true)
	return nil
}

func (e *Engine) loadPersisted(ctx context.Context) error {
	state, err := e.persister.Load(ctx)
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}
	nowNs := e.clk.NowNs()
	for _, m := range state.Members {
		e.table.UpsertFromHeartbeat(m, m.HeartbeatCounter, nowNs)
	}
	for _, d := range state.PerNode {
		e.store.AddPerNode(d)
	}
	for _, d := range state.Shared {
		e.store.AddShared(d)
	}
	return nil
}

func (e *Engine) startPersistence(ctx context.Context) {
	if e.cfg.PersistEvery <= 0 {
		return
	}
	ctx, e.persistCancel = context.WithCancel(ctx)
	e.persistDone = make(chan struct{})

	go func() {
		defer close(e.persistDone)
		ticker := time.NewTicker(e.cfg.PersistEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.persistOnce(ctx)
			}
		}
	}()
}

func (e *Engine) persistOnce(ctx context.Context) {
	state := gossipcore.PersistedState{
		Members: e.table.SnapshotAll(),
		PerNode: e.store.SnapshotPerNode(),
		Shared:  e.store.SnapshotShared(),
	}
	if err := e.persister.Snapshot(ctx, state); err != nil {
		slog.Warn("engine: persist snapshot failed", "err", err)
	}
}

// Stop is idempotent: it flips the running flag false, cancels scheduled
// persistence and waits up to one second for it to exit, then stops the
// lock manager, transport, reaper, refresher, and gossiper, and writes
// one final snapshot.
func (e *Engine) Stop(ctx context.Context) error {
	if !e.running.CompareAndSwap(true, false) {
		return nil
	}

	e.mu.Lock()
	cancel, done := e.persistCancel, e.persistDone
	e.mu.Unlock()
	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}

	if e.lockMgr != nil {
		_ = e.lockMgr.Stop(ctx)
	}
	_ = e.transport.Shutdown(ctx)
	_ = e.reap.Stop()
	_ = e.refresh.Stop()
	_ = e.gossip.Stop(ctx)

	e.persistOnce(ctx)
	return nil
}

// GossipPerNodeData stamps datum.NodeId with the local identity and
// inserts it into the DataStore, per §6. A zero Timestamp is stamped
// with the engine's own clock; callers that already have one are
// preserved as given.
func (e *Engine) GossipPerNodeData(datum gossipcore.PerNodeDatum) error {
	if !e.running.Load() {
		return gossipcore.ErrNotRunning
	}
	if datum.Key == "" {
		return &gossipcore.InvalidPayloadError{Field: "Key", Reason: "must not be empty"}
	}
	if datum.Payload == nil {
		return &gossipcore.InvalidPayloadError{Field: "Payload", Reason: "must not be nil"}
	}
	datum.NodeID = e.cfg.Local.NodeID
	if datum.Timestamp == 0 {
		datum.Timestamp = e.clk.NowMs()
	}
	e.store.AddPerNode(datum)
	return nil
}

// GossipSharedData stamps datum.NodeId with the local identity and
// inserts or merges it into the DataStore, per §6. A zero Timestamp is
// stamped with the engine's own clock; callers that already have one
// are preserved as given.
func (e *Engine) GossipSharedData(datum gossipcore.SharedDatum) error {
	if !e.running.Load() {
		return gossipcore.ErrNotRunning
	}
	if datum.Key == "" {
		return &gossipcore.InvalidPayloadError{Field: "Key", Reason: "must not be empty"}
	}
	if datum.Payload == nil {
		return &gossipcore.InvalidPayloadError{Field: "Payload", Reason: "must not be nil"}
	}
	datum.NodeID = e.cfg.Local.NodeID
	if datum.Timestamp == 0 {
		datum.Timestamp = e.clk.NowMs()
	}
	e.store.AddShared(datum)
	return nil
}

// FindCrdt returns the live Crdt payload stored for key, if any.
func (e *Engine) FindCrdt(key string) (gossipcore.Crdt, bool) {
	return e.store.FindCrdt(key)
}

// FindPerNodeGossipData returns the live per-node datum for
// (nodeID, key), if any.
func (e *Engine) FindPerNodeGossipData(nodeID gossipcore.NodeID, key string) (gossipcore.PerNodeDatum, bool) {
	return e.store.FindPerNode(nodeID, key)
}

// FindSharedGossipData returns the live shared datum for key, if any.
func (e *Engine) FindSharedGossipData(key string) (gossipcore.SharedDatum, bool) {
	return e.store.FindShared(key)
}

// Merge applies the CRDT merge path directly. It fails with
// InvalidPayloadError if datum.Payload is not a Crdt.
func (e *Engine) Merge(datum gossipcore.SharedDatum) (gossipcore.Crdt, error) {
	incoming, ok := datum.Payload.(gossipcore.Crdt)
	if !ok {
		return nil, &gossipcore.InvalidPayloadError{Field: "Payload", Reason: "not a Crdt"}
	}
	return e.store.Merge(datum, incoming), nil
}

// RegisterPerNodeDataSubscriber registers h and returns a token for
// UnregisterPerNodeDataSubscriber.
func (e *Engine) RegisterPerNodeDataSubscriber(h datastore.PerNodeListener) uint64 {
	return e.store.RegisterPerNodeSubscriber(h)
}

// UnregisterPerNodeDataSubscriber removes a subscriber.
func (e *Engine) UnregisterPerNodeDataSubscriber(id uint64) {
	e.store.UnregisterPerNodeSubscriber(id)
}

// RegisterSharedDataSubscriber registers h and returns a token for
// UnregisterSharedDataSubscriber.
func (e *Engine) RegisterSharedDataSubscriber(h datastore.SharedListener) uint64 {
	return e.store.RegisterSharedSubscriber(h)
}

// UnregisterSharedDataSubscriber removes a subscriber.
func (e *Engine) UnregisterSharedDataSubscriber(id uint64) {
	e.store.UnregisterSharedSubscriber(id)
}

// RegisterGossipListener registers l for membership UP/DOWN events and
// returns a token for UnregisterGossipListener.
func (e *Engine) RegisterGossipListener(l membership.Listener) uint64 {
	return e.table.RegisterListener(l)
}

// UnregisterGossipListener removes a listener.
func (e *Engine) UnregisterGossipListener(id uint64) {
	e.table.UnregisterListener(id)
}

// LiveMembers returns every peer currently UP, lexicographically
// ordered.
func (e *Engine) LiveMembers() []gossipcore.Member {
	return e.table.SnapshotLive()
}

// DeadMembers returns every peer currently DOWN, lexicographically
// ordered.
func (e *Engine) DeadMembers() []gossipcore.Member {
	return e.table.SnapshotDead()
}

// Self returns the local member record.
func (e *Engine) Self() gossipcore.Member {
	return e.cfg.Local
}

// Seed introduces bootstrap peers into the membership table by
// replaying them through the same path an inbound membership-list
// message takes, so a freshly started node with no inbound traffic yet
// still has gossip partners to push to.
func (e *Engine) Seed(peers []gossipcore.Member) {
	if len(peers) == 0 {
		return
	}
	e.dispatcher.Dispatch(gossipcore.DecodedMessage{
		Kind: gossipcore.KindMembershipList,
		MembershipList: &gossipcore.MembershipListMessage{
			Self:   e.cfg.Local,
			Others: peers,
		},
	})
}
