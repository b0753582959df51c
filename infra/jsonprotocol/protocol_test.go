package jsonprotocol

import (
	"testing"

	"gossipcore"
)

func TestEncodeDecodeMembershipList(t *testing.T) {
	p := New()
	want := gossipcore.DecodedMessage{
		Kind: gossipcore.KindMembershipList,
		MembershipList: &gossipcore.MembershipListMessage{
			Self:   gossipcore.Member{ClusterName: "prod", NodeID: "node-a"},
			Others: []gossipcore.Member{{ClusterName: "prod", NodeID: "node-b"}},
		},
	}

	data, err := p.Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := p.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Kind != gossipcore.KindMembershipList || got.MembershipList == nil {
		t.Fatalf("got = %+v", got)
	}
	if got.MembershipList.Self.NodeID != "node-a" || len(got.MembershipList.Others) != 1 {
		t.Fatalf("MembershipList = %+v", got.MembershipList)
	}
}

func TestEncodeDecodePerNodeData(t *testing.T) {
	p := New()
	want := gossipcore.DecodedMessage{
		Kind: gossipcore.KindPerNodeData,
		PerNodeData: &gossipcore.PerNodeDataMessage{
			Data: []gossipcore.PerNodeDatum{{NodeID: "node-a", Key: "load", Timestamp: 100, Payload: 3.5}},
		},
	}

	data, err := p.Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := p.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.PerNodeData == nil || len(got.PerNodeData.Data) != 1 || got.PerNodeData.Data[0].Key != "load" {
		t.Fatalf("PerNodeData = %+v", got.PerNodeData)
	}
}

func TestEncodeDecodeSharedData(t *testing.T) {
	p := New()
	expireAt := int64(500)
	want := gossipcore.DecodedMessage{
		Kind: gossipcore.KindSharedData,
		SharedData: &gossipcore.SharedDataMessage{
			Data: []gossipcore.SharedDatum{{Key: "config", NodeID: "node-a", Timestamp: 1, ExpireAt: &expireAt}},
		},
	}

	data, err := p.Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := p.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.SharedData == nil || len(got.SharedData.Data) != 1 || got.SharedData.Data[0].ExpireAt == nil || *got.SharedData.Data[0].ExpireAt != 500 {
		t.Fatalf("SharedData = %+v", got.SharedData)
	}
}

func TestEncodeDecodeShutdown(t *testing.T) {
	p := New()
	want := gossipcore.DecodedMessage{
		Kind:     gossipcore.KindShutdown,
		Shutdown: &gossipcore.ShutdownMessage{NodeID: "node-a"},
	}

	data, err := p.Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := p.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Shutdown == nil || got.Shutdown.NodeID != "node-a" {
		t.Fatalf("Shutdown = %+v", got.Shutdown)
	}
}

func TestDecodeRejectsMismatchedPayload(t *testing.T) {
	p := New()
	if _, err := p.Decode([]byte(`{"kind":0}`)); err == nil {
		t.Fatalf("expected an error decoding a membership-list message with no payload")
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	p := New()
	if _, err := p.Decode([]byte(`not json`)); err == nil {
		t.Fatalf("expected an error decoding malformed JSON")
	}
}
