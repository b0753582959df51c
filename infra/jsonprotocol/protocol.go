// Package jsonprotocol is the default gossipcore.Protocol
// implementation: it encodes DecodedMessage values as JSON, the same
// serialization already relied on elsewhere in this module (see
// crdt.go's payload fingerprinting) rather than a binary wire format.
package jsonprotocol

import (
	"encoding/json"
	"fmt"

	"gossipcore"
)

// wireMessage is the JSON envelope written to the wire. Exactly one
// payload field is populated, matching DecodedMessage.Kind.
type wireMessage struct {
	Kind gossipcore.MessageKind `json:"kind"`

	MembershipList *gossipcore.MembershipListMessage `json:"membership_list,omitempty"`
	PerNodeData    *gossipcore.PerNodeDataMessage     `json:"per_node_data,omitempty"`
	SharedData     *gossipcore.SharedDataMessage      `json:"shared_data,omitempty"`
	Shutdown       *gossipcore.ShutdownMessage        `json:"shutdown,omitempty"`
}

// Protocol implements gossipcore.Protocol over JSON.
type Protocol struct{}

// New returns a ready-to-use Protocol. It holds no state.
func New() Protocol { return Protocol{} }

// Encode serializes msg to JSON.
func (Protocol) Encode(msg gossipcore.DecodedMessage) ([]byte, error) {
	w := wireMessage{
		Kind:           msg.Kind,
		MembershipList: msg.MembershipList,
		PerNodeData:    msg.PerNodeData,
		SharedData:     msg.SharedData,
		Shutdown:       msg.Shutdown,
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("jsonprotocol: encode %s message: %w", msg.Kind, err)
	}
	return data, nil
}

// Decode deserializes data back into a DecodedMessage, validating that
// the payload field matching Kind was actually present.
func (Protocol) Decode(data []byte) (gossipcore.DecodedMessage, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return gossipcore.DecodedMessage{}, fmt.Errorf("jsonprotocol: decode message: %w", err)
	}

	msg := gossipcore.DecodedMessage{Kind: w.Kind}
	switch w.Kind {
	case gossipcore.KindMembershipList:
		if w.MembershipList == nil {
			return gossipcore.DecodedMessage{}, fmt.Errorf("jsonprotocol: %s message missing membership_list payload", w.Kind)
		}
		msg.MembershipList = w.MembershipList
	case gossipcore.KindPerNodeData:
		if w.PerNodeData == nil {
			return gossipcore.DecodedMessage{}, fmt.Errorf("jsonprotocol: %s message missing per_node_data payload", w.Kind)
		}
		msg.PerNodeData = w.PerNodeData
	case gossipcore.KindSharedData:
		if w.SharedData == nil {
			return gossipcore.DecodedMessage{}, fmt.Errorf("jsonprotocol: %s message missing shared_data payload", w.Kind)
		}
		msg.SharedData = w.SharedData
	case gossipcore.KindShutdown:
		if w.Shutdown == nil {
			return gossipcore.DecodedMessage{}, fmt.Errorf("jsonprotocol: %s message missing shutdown payload", w.Kind)
		}
		msg.Shutdown = w.Shutdown
	default:
		return gossipcore.DecodedMessage{}, fmt.Errorf("jsonprotocol: unknown message kind %d", w.Kind)
	}
	return msg, nil
}
