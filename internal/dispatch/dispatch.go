// Package dispatch implements the MessageDispatcher described in
// spec.md §4.5: it routes a decoded inbound message to the
// MembershipTable or DataStore, performing no I/O of its own.
package dispatch

import (
	"gossipcore"
	"gossipcore/internal/clock"
)

// MembershipTable is the subset of membership.Table the dispatcher
// depends on.
type MembershipTable interface {
	UpsertFromHeartbeat(member gossipcore.Member, heartbeat int64, nowNs int64)
	ForceDown(key string)
}

// DataStore is the subset of datastore.Store the dispatcher depends
// on.
type DataStore interface {
	AddPerNode(datum gossipcore.PerNodeDatum)
	AddShared(datum gossipcore.SharedDatum) gossipcore.Crdt
}

// Dispatcher routes decoded inbound messages. It holds no lock of its
// own: MembershipTable and DataStore are each independently
// thread-safe, so Dispatch is reentrant and safe for concurrent calls,
// per §4.5.
type Dispatcher struct {
	local gossipcore.Member
	table MembershipTable
	store DataStore
	clk   clock.Clock
}

// New returns a Dispatcher for the given local member, routing into
// table and store.
func New(local gossipcore.Member, table MembershipTable, store DataStore, clk clock.Clock) *Dispatcher {
	return &Dispatcher{local: local, table: table, store: store, clk: clk}
}

// Dispatch routes msg by its Kind. Unrecognized or malformed messages
// (a nil payload pointer inconsistent with Kind) are silently ignored:
// the dispatcher performs no I/O and has no caller to report to.
func (d *Dispatcher) Dispatch(msg gossipcore.DecodedMessage) {
	switch msg.Kind {
	case gossipcore.KindMembershipList:
		d.dispatchMembershipList(msg.MembershipList)
	case gossipcore.KindPerNodeData:
		d.dispatchPerNodeData(msg.PerNodeData)
	case gossipcore.KindSharedData:
		d.dispatchSharedData(msg.SharedData)
	case gossipcore.KindShutdown:
		d.dispatchShutdown(msg.Shutdown)
	}
}

func (d *Dispatcher) dispatchMembershipList(m *gossipcore.MembershipListMessage) {
	if m == nil {
		return
	}
	nowNs := d.clk.NowNs()
	d.upsert(m.Self, nowNs)
	for _, other := range m.Others {
		d.upsert(other, nowNs)
	}
}

func (d *Dispatcher) upsert(member gossipcore.Member, nowNs int64) {
	if member.NodeID == d.local.NodeID {
		return
	}
	d.table.UpsertFromHeartbeat(member, member.HeartbeatCounter, nowNs)
}

func (d *Dispatcher) dispatchPerNodeData(m *gossipcore.PerNodeDataMessage) {
	if m == nil {
		return
	}
	for _, datum := range m.Data {
		d.store.AddPerNode(datum)
	}
}

func (d *Dispatcher) dispatchSharedData(m *gossipcore.SharedDataMessage) {
	if m == nil {
		return
	}
	for _, datum := range m.Data {
		d.store.AddShared(datum)
	}
}

func (d *Dispatcher) dispatchShutdown(m *gossipcore.ShutdownMessage) {
	if m == nil || m.NodeID == d.local.NodeID {
		return
	}
	key := gossipcore.Member{ClusterName: d.local.ClusterName, NodeID: m.NodeID}.Key()
	d.table.ForceDown(key)
}
