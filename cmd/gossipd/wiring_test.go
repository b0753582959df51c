package main

import (
	"testing"

	"gossipcore/config"
	"gossipcore/infra/jsonprotocol"
)

func TestNewProtocolRegistryBuildsJSON(t *testing.T) {
	protocol, err := newProtocolRegistry().Build("json", nil)
	if err != nil {
		t.Fatalf("Build(json): %v", err)
	}
	if _, ok := protocol.(jsonprotocol.Protocol); !ok {
		t.Fatalf("Build(json) = %T, want jsonprotocol.Protocol", protocol)
	}
}

func TestNewProtocolRegistryRejectsUnknownName(t *testing.T) {
	if _, err := newProtocolRegistry().Build("xml", nil); err == nil {
		t.Fatal("Build(xml) error = nil, want unknown-factory error")
	}
}

func TestNewTransportRegistryRejectsInvalidPort(t *testing.T) {
	reg := newTransportRegistry(jsonprotocol.New())
	_, err := reg.Build("grpc", map[string]string{"host": "127.0.0.1", "port": "not-a-number"})
	if err == nil {
		t.Fatal("Build(grpc) with invalid port error = nil, want error")
	}
}

func TestEndpointSettingsRoundTrip(t *testing.T) {
	es := config.EndpointSettings{Scheme: "grpc", Host: "127.0.0.1", Port: 7946}
	got := endpointSettings(es)
	want := map[string]string{"scheme": "grpc", "host": "127.0.0.1", "port": "7946"}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("endpointSettings()[%q] = %q, want %q", k, got[k], v)
		}
	}
}
