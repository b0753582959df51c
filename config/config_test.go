package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gossipcore.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTemp(t, "cluster_name: test\nendpoint:\n  host: 127.0.0.1\n  port: 7000\n")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.FailureDetector.WindowSize != 100 {
		t.Fatalf("window_size = %d, want default 100", s.FailureDetector.WindowSize)
	}
	if s.Gossiper.RackPeriodMs != 100 || s.Gossiper.DeadPeriodMs != 250 {
		t.Fatalf("gossiper defaults not applied: %+v", s.Gossiper)
	}
	if s.NodeID == "" {
		t.Fatalf("node_id should be generated when absent")
	}
}

func TestLoadRejectsMissingClusterName(t *testing.T) {
	path := writeTemp(t, "endpoint:\n  host: 127.0.0.1\n  port: 7000\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for missing cluster_name")
	}
}

func TestLoadRejectsInvalidDistribution(t *testing.T) {
	path := writeTemp(t, "cluster_name: test\nendpoint:\n  host: 127.0.0.1\n  port: 7000\nfailure_detector:\n  distribution: bogus\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for an invalid distribution")
	}
}

func TestLoadRejectsNonPositivePort(t *testing.T) {
	path := writeTemp(t, "cluster_name: test\nendpoint:\n  host: 127.0.0.1\n  port: 0\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for a non-positive port")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}
