// Package gossipcore implements the core of a peer-to-peer cluster
// membership and data-dissemination service based on epidemic gossip
// protocols: an accrual-style failure detector, an ordered membership
// table, a CRDT-capable data store, and a topology-aware active
// gossiper, composed by Engine.
//
// Wire encoding, transport, on-disk persistence, and distributed-lock
// voting are external collaborators (see Transport, Protocol, Persister,
// LockManager) and are not implemented by this package.
package gossipcore
