package main

import (
	"strings"
	"testing"

	"gossipcore"
)

func TestRenderMemberTableEmpty(t *testing.T) {
	got := renderMemberTable(nil)
	if !strings.Contains(got, "no members") {
		t.Fatalf("renderMemberTable(nil) = %q, want an empty-snapshot message", got)
	}
}

func TestRenderMemberTableIncludesNodeIDAndHeartbeat(t *testing.T) {
	members := []gossipcore.Member{{
		ClusterName:      "prod",
		NodeID:           "node-a",
		Endpoint:         gossipcore.Endpoint{Host: "10.0.0.1", Port: 7946},
		Properties:       map[string]string{gossipcore.PropertyDatacenter: "dc1", gossipcore.PropertyRack: "r1"},
		HeartbeatCounter: 42,
	}}

	got := renderMemberTable(members)
	for _, want := range []string{"node-a", "10.0.0.1", "dc1", "r1", "42"} {
		if !strings.Contains(got, want) {
			t.Fatalf("renderMemberTable() missing %q in:\n%s", want, got)
		}
	}
}
