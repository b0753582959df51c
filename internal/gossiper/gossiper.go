// Package gossiper implements the ActiveGossiper described in
// spec.md §4.6: topology-aware periodic push of membership and data
// state to a randomly chosen partner per tier, offloaded to a bounded
// worker pool with drop-oldest overflow.
package gossiper

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"gossipcore"
	"gossipcore/internal/clock"
)

// MembershipTable is the subset of membership.Table the gossiper
// depends on.
type MembershipTable interface {
	SnapshotLive() []gossipcore.Member
	SnapshotDead() []gossipcore.Member
}

// DataStore is the subset of datastore.Store the gossiper depends on.
type DataStore interface {
	SnapshotPerNode() []gossipcore.PerNodeDatum
	SnapshotShared() []gossipcore.SharedDatum
}

// Transport is the subset of gossipcore.Transport the gossiper depends
// on.
type Transport interface {
	Send(ctx context.Context, endpoint gossipcore.Endpoint, payload []byte) error
}

// Protocol is the subset of gossipcore.Protocol the gossiper depends
// on.
type Protocol interface {
	Encode(msg gossipcore.DecodedMessage) ([]byte, error)
}

// Config configures the gossiper's push periods and worker pool, per
// spec.md §4.6.
type Config struct {
	RackPeriod    time.Duration
	DCPeriod      time.Duration
	RemotePeriod  time.Duration
	DeadPeriod    time.Duration
	QueueCapacity int
	MaxWorkers    int
	ShutdownGrace time.Duration
}

// DefaultConfig returns the periods and pool sizing named in §4.6.
func DefaultConfig() Config {
	return Config{
		RackPeriod:    100 * time.Millisecond,
		DCPeriod:      500 * time.Millisecond,
		RemotePeriod:  1000 * time.Millisecond,
		DeadPeriod:    250 * time.Millisecond,
		QueueCapacity: 1024,
		MaxWorkers:    30,
		ShutdownGrace: 5 * time.Second,
	}
}

// Gossiper drives the periodic push schedule.
type Gossiper struct {
	localMu sync.Mutex
	local   gossipcore.Member

	table     MembershipTable
	store     DataStore
	transport Transport
	protocol  Protocol
	clk       clock.Clock
	cfg       Config

	pool *workerPool

	rngMu sync.Mutex
	rng   *rand.Rand

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Gossiper that pushes state on behalf of local.
func New(local gossipcore.Member, table MembershipTable, store DataStore, transport Transport, protocol Protocol, clk clock.Clock, cfg Config) *Gossiper {
	return &Gossiper{
		local:     local,
		table:     table,
		store:     store,
		transport: transport,
		protocol:  protocol,
		clk:       clk,
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(clk.NowNs())),
	}
}

type tier int

const (
	tierRack tier = iota
	tierDC
	tierRemote
)

// Start schedules the ten repeating push tasks described in §4.6.
func (g *Gossiper) Start(ctx context.Context) error {
	ctx, g.cancel = context.WithCancel(ctx)
	g.pool = newWorkerPool(g.cfg.QueueCapacity, g.cfg.MaxWorkers)

	type scheduled struct {
		period time.Duration
		fn     func()
	}
	tasks := []scheduled{
		{g.cfg.RackPeriod, func() { g.pushTier(tierRack, gossipcore.KindMembershipList) }},
		{g.cfg.RackPeriod, func() { g.pushTier(tierRack, gossipcore.KindPerNodeData) }},
		{g.cfg.RackPeriod, func() { g.pushTier(tierRack, gossipcore.KindSharedData) }},
		{g.cfg.DCPeriod, func() { g.pushTier(tierDC, gossipcore.KindMembershipList) }},
		{g.cfg.DCPeriod, func() { g.pushTier(tierDC, gossipcore.KindPerNodeData) }},
		{g.cfg.DCPeriod, func() { g.pushTier(tierDC, gossipcore.KindSharedData) }},
		{g.cfg.RemotePeriod, func() { g.pushTier(tierRemote, gossipcore.KindMembershipList) }},
		{g.cfg.RemotePeriod, func() { g.pushTier(tierRemote, gossipcore.KindPerNodeData) }},
		{g.cfg.RemotePeriod, func() { g.pushTier(tierRemote, gossipcore.KindSharedData) }},
		{g.cfg.DeadPeriod, g.pushDeadPeerPing},
	}

	for _, task := range tasks {
		g.wg.Add(1)
		go g.schedule(ctx, task.period, task.fn)
	}
	return nil
}

func (g *Gossiper) schedule(ctx context.Context, period time.Duration, fn func()) {
	defer g.wg.Done()
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// Stop cancels the scheduler, drains the worker pool with a grace
// period, then sends an optimistic Shutdown message to a fraction of
// live peers, per §4.6.
func (g *Gossiper) Stop(ctx context.Context) error {
	if g.cancel == nil {
		return nil
	}
	g.cancel()
	g.wg.Wait()
	g.pool.drain(g.cfg.ShutdownGrace)
	g.sendShutdownNotices(ctx)
	return nil
}

func (g *Gossiper) pushTier(t tier, kind gossipcore.MessageKind) {
	candidates := g.tierCandidates(t)
	if len(candidates) == 0 {
		return
	}
	partner := candidates[g.randIndex(len(candidates))]
	g.submitPush(partner.Endpoint, kind)
}

// tierCandidates computes a tier's candidate set fresh from the live
// snapshot. If the local member lacks either reserved property tag,
// every tier is empty and its tasks become no-ops (§4.6).
func (g *Gossiper) tierCandidates(t tier) []gossipcore.Member {
	local := g.localMember()
	localDC, hasDC := local.Property(gossipcore.PropertyDatacenter)
	localRack, hasRack := local.Property(gossipcore.PropertyRack)
	if !hasDC || !hasRack {
		return nil
	}

	var out []gossipcore.Member
	for _, m := range g.table.SnapshotLive() {
		dc, _ := m.Property(gossipcore.PropertyDatacenter)
		rack, _ := m.Property(gossipcore.PropertyRack)

		switch t {
		case tierRack:
			if dc == localDC && rack == localRack {
				out = append(out, m)
			}
		case tierDC:
			if dc == localDC && rack != localRack {
				out = append(out, m)
			}
		case tierRemote:
			if dc != localDC {
				out = append(out, m)
			}
		}
	}
	return out
}

func (g *Gossiper) pushDeadPeerPing() {
	dead := g.table.SnapshotDead()
	if len(dead) == 0 {
		return
	}
	partner := dead[g.randIndex(len(dead))]
	g.submitPush(partner.Endpoint, gossipcore.KindMembershipList)
}

func (g *Gossiper) submitPush(endpoint gossipcore.Endpoint, kind gossipcore.MessageKind) {
	msg := g.buildMessage(kind)
	g.pool.submit(func() {
		payload, err := g.protocol.Encode(msg)
		if err != nil {
			slog.Debug("gossiper: encode push failed", "kind", kind, "err", err)
			return
		}
		if err := g.transport.Send(context.Background(), endpoint, payload); err != nil {
			slog.Debug("gossiper: push send failed", "endpoint", endpoint, "kind", kind, "err", err)
		}
	})
}

// buildMessage advances the local heartbeat to Clock.NowNs() and
// assembles the payload for kind, per §4.6.
func (g *Gossiper) buildMessage(kind gossipcore.MessageKind) gossipcore.DecodedMessage {
	self := g.advanceLocalHeartbeat()

	switch kind {
	case gossipcore.KindMembershipList:
		return gossipcore.DecodedMessage{
			Kind:           gossipcore.KindMembershipList,
			MembershipList: &gossipcore.MembershipListMessage{Self: self},
		}
	case gossipcore.KindPerNodeData:
		return gossipcore.DecodedMessage{
			Kind:        gossipcore.KindPerNodeData,
			PerNodeData: &gossipcore.PerNodeDataMessage{Data: g.store.SnapshotPerNode()},
		}
	default:
		return gossipcore.DecodedMessage{
			Kind:       gossipcore.KindSharedData,
			SharedData: &gossipcore.SharedDataMessage{Data: g.store.SnapshotShared()},
		}
	}
}

func (g *Gossiper) advanceLocalHeartbeat() gossipcore.Member {
	g.localMu.Lock()
	defer g.localMu.Unlock()
	g.local.HeartbeatCounter = g.clk.NowNs()
	return g.local
}

func (g *Gossiper) localMember() gossipcore.Member {
	g.localMu.Lock()
	defer g.localMu.Unlock()
	return g.local
}

func (g *Gossiper) randIndex(n int) int {
	g.rngMu.Lock()
	defer g.rngMu.Unlock()
	return g.rng.Intn(n)
}

// sendShutdownNotices pushes an optimistic Shutdown message to
// max(1, liveCount/3) randomly picked live peers.
func (g *Gossiper) sendShutdownNotices(ctx context.Context) {
	live := g.table.SnapshotLive()
	if len(live) == 0 {
		return
	}
	n := len(live) / 3
	if n < 1 {
		n = 1
	}
	if n > len(live) {
		n = len(live)
	}

	g.rngMu.Lock()
	perm := g.rng.Perm(len(live))
	g.rngMu.Unlock()

	msg := gossipcore.DecodedMessage{
		Kind:     gossipcore.KindShutdown,
		Shutdown: &gossipcore.ShutdownMessage{NodeID: g.localMember().NodeID},
	}
	payload, err := g.protocol.Encode(msg)
	if err != nil {
		return
	}
	for i := 0; i < n; i++ {
		_ = g.transport.Send(ctx, live[perm[i]].Endpoint, payload)
	}
}
