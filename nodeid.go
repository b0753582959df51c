package gossipcore

import "github.com/google/uuid"

// NewNodeID mints a random NodeID for a process that was not given one
// explicitly at construction.
func NewNodeID() NodeID {
	return NodeID(uuid.NewString())
}
