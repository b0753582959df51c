package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gossipcore"
	"gossipcore/config"
	"gossipcore/infra/sqlite"
	"gossipcore/internal/clock"
	"gossipcore/internal/engine"
	"gossipcore/internal/fd"
)

func runCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the gossip engine and block until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd.Context(), *configPath)
		},
	}
}

func runEngine(ctx context.Context, configPath string) error {
	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}

	protocol, err := newProtocolRegistry().Build(settings.ProtocolName, nil)
	if err != nil {
		return fmt.Errorf("gossipd: build protocol: %w", err)
	}

	transport, err := newTransportRegistry(protocol).Build(settings.TransportName, endpointSettings(settings.Endpoint))
	if err != nil {
		return fmt.Errorf("gossipd: build transport: %w", err)
	}

	store, err := sqlite.Open(settings.SQLitePath)
	if err != nil {
		return fmt.Errorf("gossipd: open persistence store: %w", err)
	}
	defer store.Close()

	local := gossipcore.Member{
		ClusterName: settings.ClusterName,
		NodeID:      gossipcore.NodeID(settings.NodeID),
		Endpoint:    settings.Endpoint.Endpoint(),
		Properties:  settings.Properties,
	}

	cfg := engine.DefaultConfig(local)
	cfg.FailureDetector.WindowSize = settings.FailureDetector.WindowSize
	cfg.FailureDetector.MinimumSamples = settings.FailureDetector.MinimumSamples
	cfg.FailureDetector.ConvictThreshold = settings.FailureDetector.ConvictThreshold
	if settings.FailureDetector.Distribution == "exponential" {
		cfg.FailureDetector.Distribution = fd.DistributionExponential
	}
	cfg.Gossiper.RackPeriod = settings.Gossiper.RackPeriod()
	cfg.Gossiper.DCPeriod = settings.Gossiper.DCPeriod()
	cfg.Gossiper.RemotePeriod = settings.Gossiper.RemotePeriod()
	cfg.Gossiper.DeadPeriod = settings.Gossiper.DeadPeriod()
	cfg.Gossiper.QueueCapacity = settings.Gossiper.QueueCapacity
	cfg.Gossiper.MaxWorkers = settings.Gossiper.MaxWorkers
	cfg.ReaperPeriod = settings.Reaper.Period()
	cfg.RefresherPeriod = settings.Refresher.Period()

	eng := engine.New(cfg, clock.System{}, transport, protocol, store, nil)

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("gossipd: start engine: %w", err)
	}

	seedMembership(eng, settings, local)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return eng.Stop(stopCtx)
}

// seedMembership introduces the configured seed endpoints as DOWN
// peers so a freshly started node has gossip partners before any
// inbound traffic arrives (spec.md §9's "startup state of seeded
// peers is DOWN").
func seedMembership(eng *engine.Engine, settings *config.Settings, local gossipcore.Member) {
	if len(settings.Seeds) == 0 {
		return
	}
	peers := make([]gossipcore.Member, 0, len(settings.Seeds))
	for i, seed := range settings.Seeds {
		peers = append(peers, gossipcore.Member{
			ClusterName: local.ClusterName,
			NodeID:      gossipcore.NodeID(fmt.Sprintf("seed-%d", i)),
			Endpoint:    seed.Endpoint(),
		})
	}
	eng.Seed(peers)
}
