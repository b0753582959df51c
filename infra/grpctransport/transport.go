// Package grpctransport is the default gossipcore.Transport
// collaborator: a gRPC server and client pair carrying
// already-encoded gossip messages as opaque byte frames (via
// rawCodec), instrumented with OpenTelemetry.
package grpctransport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"gossipcore"
)

func init() {
	encoding.RegisterCodec(rawCodec{})
}

// Transport implements gossipcore.Transport over gRPC. protocol
// decodes inbound frames before handing them to the deliver callback;
// outbound frames are assumed already encoded by the caller
// (ActiveGossiper encodes with the same Protocol before calling Send).
type Transport struct {
	endpoint gossipcore.Endpoint
	protocol gossipcore.Protocol
	tp       trace.TracerProvider

	listener net.Listener
	server   *grpc.Server

	deliverMu sync.RWMutex
	deliver   func(gossipcore.DecodedMessage)

	connsMu sync.Mutex
	conns   map[gossipcore.Endpoint]*grpc.ClientConn
}

// New returns a Transport bound to endpoint, decoding inbound frames
// with protocol. tp may be nil, in which case OpenTelemetry's global
// TracerProvider is used implicitly by the stats handler.
func New(endpoint gossipcore.Endpoint, protocol gossipcore.Protocol, tp trace.TracerProvider) *Transport {
	return &Transport{
		endpoint: endpoint,
		protocol: protocol,
		tp:       tp,
		conns:    make(map[gossipcore.Endpoint]*grpc.ClientConn),
	}
}

// StartEndpoint begins accepting inbound connections and decoding
// every pushed frame with protocol before handing it to deliver. It
// returns once the listener is bound; serving happens in a background
// goroutine, per the Transport contract's "must not block".
func (t *Transport) StartEndpoint(ctx context.Context, deliver func(gossipcore.DecodedMessage)) error {
	t.deliverMu.Lock()
	t.deliver = deliver
	t.deliverMu.Unlock()

	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", t.endpoint.Host, t.endpoint.Port))
	if err != nil {
		return fmt.Errorf("grpctransport: listen on %s: %w", t.endpoint, err)
	}
	t.listener = lis

	srv := grpc.NewServer(grpc.StatsHandler(t.serverStatsHandler()))
	srv.RegisterService(&pushServiceDesc, t)
	t.server = srv

	go func() {
		_ = srv.Serve(lis)
	}()
	return nil
}

// push implements pushServer: it is invoked once per inbound gRPC
// call, decodes the frame with protocol, and hands the result to the
// registered deliver callback.
func (t *Transport) push(ctx context.Context, frame *rawFrame) (*rawFrame, error) {
	msg, err := t.protocol.Decode(frame.data)
	if err != nil {
		return &rawFrame{}, fmt.Errorf("grpctransport: decode inbound frame: %w", err)
	}

	t.deliverMu.RLock()
	deliver := t.deliver
	t.deliverMu.RUnlock()
	if deliver != nil {
		deliver(msg)
	}
	return &rawFrame{}, nil
}

// Addr returns the bound listener address. It is only valid after
// StartEndpoint returns successfully; used by callers that bind to
// port 0 and need to discover the assigned port.
func (t *Transport) Addr() net.Addr {
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// StartActiveGossiper signals that periodic outbound pushes are about
// to begin. gRPC connections are dialed lazily on first Send, so this
// is a no-op.
func (t *Transport) StartActiveGossiper() error { return nil }

// Send delivers payload to endpoint over a cached or newly dialed
// gRPC connection.
func (t *Transport) Send(ctx context.Context, endpoint gossipcore.Endpoint, payload []byte) error {
	conn, err := t.dial(endpoint)
	if err != nil {
		return gossipcore.NewTransportUnavailableError(endpoint, err)
	}

	in := &rawFrame{data: payload}
	out := new(rawFrame)
	if err := conn.Invoke(ctx, "/gossipcore.Push/Send", in, out, grpc.CallContentSubtype(rawCodec{}.Name())); err != nil {
		return gossipcore.NewTransportUnavailableError(endpoint, err)
	}
	return nil
}

func (t *Transport) dial(endpoint gossipcore.Endpoint) (*grpc.ClientConn, error) {
	t.connsMu.Lock()
	defer t.connsMu.Unlock()

	if conn, ok := t.conns[endpoint]; ok {
		return conn, nil
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(t.clientStatsHandler()),
	}
	conn, err := grpc.NewClient(fmt.Sprintf("%s:%d", endpoint.Host, endpoint.Port), opts...)
	if err != nil {
		return nil, err
	}
	t.conns[endpoint] = conn
	return conn, nil
}

func (t *Transport) clientStatsHandler() *otelgrpc.ClientHandler {
	if t.tp == nil {
		return otelgrpc.NewClientHandler()
	}
	return otelgrpc.NewClientHandler(otelgrpc.WithTracerProvider(t.tp))
}

func (t *Transport) serverStatsHandler() *otelgrpc.ServerHandler {
	if t.tp == nil {
		return otelgrpc.NewServerHandler()
	}
	return otelgrpc.NewServerHandler(otelgrpc.WithTracerProvider(t.tp))
}

// Shutdown stops the server and closes cached client connections. It
// is safe to call more than once.
func (t *Transport) Shutdown(ctx context.Context) error {
	if t.server != nil {
		t.server.GracefulStop()
		t.server = nil
	}

	t.connsMu.Lock()
	for ep, conn := range t.conns {
		_ = conn.Close()
		delete(t.conns, ep)
	}
	t.connsMu.Unlock()
	return nil
}
