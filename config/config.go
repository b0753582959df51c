// Package config loads the YAML settings that parameterize a
// GossipEngine: node identity, seed peers, and the periods and
// thresholds for the failure detector, active gossiper, reaper, and
// state refresher.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"gossipcore"
)

// Settings is the full set of engine construction parameters, as read
// from a YAML file.
type Settings struct {
	ClusterName string             `yaml:"cluster_name"`
	NodeID      string             `yaml:"node_id,omitempty"`
	Endpoint    EndpointSettings   `yaml:"endpoint"`
	Properties  map[string]string  `yaml:"properties,omitempty"`
	Seeds       []EndpointSettings `yaml:"seeds,omitempty"`

	FailureDetector FailureDetectorSettings `yaml:"failure_detector"`
	Gossiper        GossiperSettings        `yaml:"gossiper"`
	Reaper          PeriodSettings          `yaml:"reaper"`
	Refresher       RefresherSettings       `yaml:"refresher"`

	TransportName string `yaml:"transport,omitempty"`
	ProtocolName  string `yaml:"protocol,omitempty"`

	SQLitePath string `yaml:"sqlite_path,omitempty"`
}

// EndpointSettings is the YAML shape of a gossipcore.Endpoint.
type EndpointSettings struct {
	Scheme string `yaml:"scheme,omitempty"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
}

// Endpoint converts to a gossipcore.Endpoint.
func (e EndpointSettings) Endpoint() gossipcore.Endpoint {
	return gossipcore.Endpoint{Scheme: e.Scheme, Host: e.Host, Port: e.Port}
}

// FailureDetectorSettings configures the phi-accrual window.
type FailureDetectorSettings struct {
	WindowSize       int     `yaml:"window_size"`
	MinimumSamples   int     `yaml:"minimum_samples"`
	Distribution     string  `yaml:"distribution"` // "normal" or "exponential"
	ConvictThreshold float64 `yaml:"convict_threshold"`
}

// GossiperSettings configures the ActiveGossiper's push periods and
// worker pool sizing.
type GossiperSettings struct {
	RackPeriodMs   int64 `yaml:"rack_period_ms"`
	DCPeriodMs     int64 `yaml:"dc_period_ms"`
	RemotePeriodMs int64 `yaml:"remote_period_ms"`
	DeadPeriodMs   int64 `yaml:"dead_period_ms"`
	QueueCapacity  int   `yaml:"queue_capacity"`
	MaxWorkers     int   `yaml:"max_workers"`
}

// PeriodSettings is a bare scan period, used by the Reaper.
type PeriodSettings struct {
	PeriodMs int64 `yaml:"period_ms"`
}

// RefresherSettings configures the StateRefresher's cadence.
type RefresherSettings struct {
	PeriodMs int64 `yaml:"period_ms"`
}

// Load reads and validates Settings from path. Malformed or
// out-of-range configuration is rejected here, at load time, rather
// than discovered partway through engine startup.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(&s)
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &s, nil
}

func applyDefaults(s *Settings) {
	if s.NodeID == "" {
		s.NodeID = string(gossipcore.NewNodeID())
	}
	if s.FailureDetector.WindowSize == 0 {
		s.FailureDetector.WindowSize = 100
	}
	if s.FailureDetector.MinimumSamples == 0 {
		s.FailureDetector.MinimumSamples = 8
	}
	if s.FailureDetector.Distribution == "" {
		s.FailureDetector.Distribution = "normal"
	}
	if s.FailureDetector.ConvictThreshold == 0 {
		s.FailureDetector.ConvictThreshold = 8
	}
	if s.Gossiper.RackPeriodMs == 0 {
		s.Gossiper.RackPeriodMs = 100
	}
	if s.Gossiper.DCPeriodMs == 0 {
		s.Gossiper.DCPeriodMs = 500
	}
	if s.Gossiper.RemotePeriodMs == 0 {
		s.Gossiper.RemotePeriodMs = 1000
	}
	if s.Gossiper.DeadPeriodMs == 0 {
		s.Gossiper.DeadPeriodMs = 250
	}
	if s.Gossiper.QueueCapacity == 0 {
		s.Gossiper.QueueCapacity = 1024
	}
	if s.Gossiper.MaxWorkers == 0 {
		s.Gossiper.MaxWorkers = 30
	}
	if s.Reaper.PeriodMs == 0 {
		s.Reaper.PeriodMs = s.Gossiper.DCPeriodMs
	}
	if s.Refresher.PeriodMs == 0 {
		s.Refresher.PeriodMs = int64(s.FailureDetector.WindowSize)
	}
	if s.TransportName == "" {
		s.TransportName = "grpc"
	}
	if s.ProtocolName == "" {
		s.ProtocolName = "json"
	}
	if s.SQLitePath == "" {
		s.SQLitePath = "gossipcore.db"
	}
}

func (s *Settings) validate() error {
	if s.ClusterName == "" {
		return fmt.Errorf("cluster_name is required")
	}
	if s.Endpoint.Host == "" {
		return fmt.Errorf("endpoint.host is required")
	}
	if s.Endpoint.Port <= 0 {
		return fmt.Errorf("endpoint.port must be positive, got %d", s.Endpoint.Port)
	}
	if s.FailureDetector.Distribution != "normal" && s.FailureDetector.Distribution != "exponential" {
		return fmt.Errorf("failure_detector.distribution must be \"normal\" or \"exponential\", got %q", s.FailureDetector.Distribution)
	}
	if s.FailureDetector.WindowSize <= 0 {
		return fmt.Errorf("failure_detector.window_size must be positive")
	}
	if s.FailureDetector.ConvictThreshold <= 0 {
		return fmt.Errorf("failure_detector.convict_threshold must be positive")
	}
	if s.Gossiper.MaxWorkers <= 0 || s.Gossiper.QueueCapacity <= 0 {
		return fmt.Errorf("gossiper.max_workers and gossiper.queue_capacity must be positive")
	}
	return nil
}

// RackPeriod returns the rack-tier push period.
func (s GossiperSettings) RackPeriod() time.Duration {
	return time.Duration(s.RackPeriodMs) * time.Millisecond
}

// DCPeriod returns the same-datacenter push period.
func (s GossiperSettings) DCPeriod() time.Duration {
	return time.Duration(s.DCPeriodMs) * time.Millisecond
}

// RemotePeriod returns the cross-datacenter push period.
func (s GossiperSettings) RemotePeriod() time.Duration {
	return time.Duration(s.RemotePeriodMs) * time.Millisecond
}

// DeadPeriod returns the dead-peer ping period.
func (s GossiperSettings) DeadPeriod() time.Duration {
	return time.Duration(s.DeadPeriodMs) * time.Millisecond
}

// Period returns p as a time.Duration.
func (p PeriodSettings) Period() time.Duration { return time.Duration(p.PeriodMs) * time.Millisecond }

// Period returns r as a time.Duration.
func (r RefresherSettings) Period() time.Duration { return time.Duration(r.PeriodMs) * time.Millisecond }
