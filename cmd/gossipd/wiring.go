package main

import (
	"fmt"
	"strconv"

	"gossipcore"
	"gossipcore/config"
	"gossipcore/infra/grpctransport"
	"gossipcore/infra/jsonprotocol"
	"gossipcore/internal/registry"
)

// newProtocolRegistry returns the name -> Protocol factory table. New
// wire formats are added here without touching engine wiring.
func newProtocolRegistry() *registry.Registry[gossipcore.Protocol] {
	r := registry.New[gossipcore.Protocol]()
	r.Register("json", func(map[string]string) (gossipcore.Protocol, error) {
		return jsonprotocol.New(), nil
	})
	return r
}

// newTransportRegistry returns the name -> Transport factory table.
// Factories read their endpoint from settings rather than closing over
// config.Settings directly, so a factory can be swapped in isolation.
func newTransportRegistry(protocol gossipcore.Protocol) *registry.Registry[gossipcore.Transport] {
	r := registry.New[gossipcore.Transport]()
	r.Register("grpc", func(settings map[string]string) (gossipcore.Transport, error) {
		port, err := strconv.Atoi(settings["port"])
		if err != nil {
			return nil, fmt.Errorf("grpc transport: invalid port %q: %w", settings["port"], err)
		}
		endpoint := gossipcore.Endpoint{Scheme: settings["scheme"], Host: settings["host"], Port: port}
		return grpctransport.New(endpoint, protocol, nil), nil
	})
	return r
}

func endpointSettings(e config.EndpointSettings) map[string]string {
	return map[string]string{
		"scheme": e.Scheme,
		"host":   e.Host,
		"port":   strconv.Itoa(e.Port),
	}
}
