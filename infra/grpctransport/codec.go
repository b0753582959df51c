package grpctransport

import "fmt"

// rawFrame wraps an already-encoded payload so rawCodec can pass it
// through the gRPC wire format without ever invoking a protobuf
// marshaler. gossipcore's own Protocol implementation controls the
// actual wire format; gRPC here is only a transport.
type rawFrame struct {
	data []byte
}

// rawCodec implements grpc's encoding.Codec for *rawFrame messages:
// Marshal and Unmarshal are byte-for-byte passthroughs. This is the
// technique siderolabs/grpc-proxy uses to proxy arbitrary gRPC traffic
// without decoding it: register a named codec and force every call on
// the connection to use it via grpc.CallContentSubtype / ForceCodec
// server options instead of the registered default.
type rawCodec struct{}

// Name returns the codec's content-subtype name; calls made with it
// carry the content type application/grpc+gossipcore-raw.
func (rawCodec) Name() string { return "gossipcore-raw" }

func (rawCodec) Marshal(v any) ([]byte, error) {
	f, ok := v.(*rawFrame)
	if !ok {
		return nil, fmt.Errorf("grpctransport: rawCodec cannot marshal %T", v)
	}
	return f.data, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*rawFrame)
	if !ok {
		return fmt.Errorf("grpctransport: rawCodec cannot unmarshal into %T", v)
	}
	f.data = append([]byte(nil), data...)
	return nil
}
