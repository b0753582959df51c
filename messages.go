package gossipcore

// MessageKind identifies which of the four inbound message shapes a
// decoded message carries.
type MessageKind int

const (
	KindMembershipList MessageKind = iota
	KindPerNodeData
	KindSharedData
	KindShutdown
)

func (k MessageKind) String() string {
	switch k {
	case KindMembershipList:
		return "membership-list"
	case KindPerNodeData:
		return "per-node-data"
	case KindSharedData:
		return "shared-data"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// MembershipListMessage carries a peer's own Member advertisement and,
// optionally, a small list of other members it has learned of.
type MembershipListMessage struct {
	Self   Member
	Others []Member
}

// PerNodeDataMessage carries a snapshot of per-node data entries.
type PerNodeDataMessage struct {
	Data []PerNodeDatum
}

// SharedDataMessage carries a snapshot of shared data entries.
type SharedDataMessage struct {
	Data []SharedDatum
}

// ShutdownMessage is an optimistic, best-effort notice that NodeID is
// going away.
type ShutdownMessage struct {
	NodeID NodeID
}

// DecodedMessage is the fully decoded form of one inbound protocol
// message, as produced by a Protocol implementation and consumed by the
// MessageDispatcher. Exactly one of the payload fields is set,
// consistent with Kind.
type DecodedMessage struct {
	Kind MessageKind

	MembershipList *MembershipListMessage
	PerNodeData    *PerNodeDataMessage
	SharedData     *SharedDataMessage
	Shutdown       *ShutdownMessage
}
