package grpctransport

import (
	"context"
	"net"
	"testing"
	"time"

	"gossipcore"
)

type echoProtocol struct{}

func (echoProtocol) Encode(msg gossipcore.DecodedMessage) ([]byte, error) {
	return []byte(msg.Shutdown.NodeID), nil
}

func (echoProtocol) Decode(data []byte) (gossipcore.DecodedMessage, error) {
	return gossipcore.DecodedMessage{
		Kind:     gossipcore.KindShutdown,
		Shutdown: &gossipcore.ShutdownMessage{NodeID: gossipcore.NodeID(data)},
	}, nil
}

func TestSendDeliversDecodedMessage(t *testing.T) {
	server := New(gossipcore.Endpoint{Host: "127.0.0.1", Port: 0}, echoProtocol{}, nil)

	received := make(chan gossipcore.DecodedMessage, 1)
	if err := server.StartEndpoint(context.Background(), func(msg gossipcore.DecodedMessage) {
		received <- msg
	}); err != nil {
		t.Fatalf("StartEndpoint: %v", err)
	}
	defer server.Shutdown(context.Background())

	addr := server.Addr()
	if addr == nil {
		t.Fatalf("Addr() returned nil after successful StartEndpoint")
	}
	tcpAddr := addr.(*net.TCPAddr)

	client := New(gossipcore.Endpoint{}, echoProtocol{}, nil)
	defer client.Shutdown(context.Background())

	target := gossipcore.Endpoint{Host: "127.0.0.1", Port: tcpAddr.Port}
	payload, err := echoProtocol{}.Encode(gossipcore.DecodedMessage{
		Kind:     gossipcore.KindShutdown,
		Shutdown: &gossipcore.ShutdownMessage{NodeID: "peer-a"},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if err := client.Send(context.Background(), target, payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Shutdown == nil || msg.Shutdown.NodeID != "peer-a" {
			t.Fatalf("delivered = %+v, want Shutdown NodeID peer-a", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for delivery")
	}
}
