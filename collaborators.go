package gossipcore

import "context"

// Transport is the external collaborator responsible for moving bytes
// between peers. gossipcore never encodes or decodes bytes itself; it
// hands Protocol-encoded payloads to Transport.Send and receives decoded
// messages back through the deliver callback passed to StartEndpoint.
type Transport interface {
	// StartEndpoint begins accepting inbound connections, delivering
	// each decoded message to deliver. It must not block.
	StartEndpoint(ctx context.Context, deliver func(DecodedMessage)) error

	// StartActiveGossiper signals the transport that periodic outbound
	// pushes are about to begin, for transports that need to warm up
	// connection pools or similar. It is invoked once by Engine.Start.
	StartActiveGossiper() error

	// Send delivers an already-encoded payload to endpoint. It may
	// return an error built with NewTransportUnavailableError on
	// unrecoverable send failures; transient failures should be
	// retried internally rather than surfaced.
	Send(ctx context.Context, endpoint Endpoint, payload []byte) error

	// Shutdown stops accepting connections and releases resources.
	// It must be safe to call more than once.
	Shutdown(ctx context.Context) error
}

// Protocol encodes and decodes the four message kinds to and from
// bytes. Wire compatibility is not specified by gossipcore.
type Protocol interface {
	Encode(msg DecodedMessage) ([]byte, error)
	Decode(data []byte) (DecodedMessage, error)
}

// PersistedState is the snapshot shape handed to a Persister.
type PersistedState struct {
	Members []Member
	PerNode []PerNodeDatum
	Shared  []SharedDatum
}

// Persister is the external collaborator responsible for durable
// storage of ring and user data. Engine invokes it at a fixed cadence
// and at startup; gossipcore owns no global serializer.
type Persister interface {
	Snapshot(ctx context.Context, state PersistedState) error
	Load(ctx context.Context) (*PersistedState, error)
}

// LockManager is the external collaborator implementing distributed-lock
// voting atop shared data. It observes shared-data updates via
// RegisterSharedDataSubscriber and reports VoteFailedError when
// consensus on a key cannot be established. gossipcore only manages its
// lifecycle; voting semantics live entirely in the collaborator.
type LockManager interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
