package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"gossipcore/config"
	"gossipcore/infra/sqlite"
)

func statusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last persisted membership and data snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(cmd.Context(), *configPath)
		},
	}
}

// showStatus reads the engine's last persisted snapshot and renders
// it. It does not require the daemon to be running: the sqlite
// Persister is the same 60-second snapshot the engine writes per
// spec.md §4.9, so a stopped node still has something to show.
func showStatus(ctx context.Context, configPath string) error {
	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := sqlite.Open(settings.SQLitePath)
	if err != nil {
		return fmt.Errorf("gossipd: open persistence store: %w", err)
	}
	defer store.Close()

	state, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("gossipd: load snapshot: %w", err)
	}
	if state == nil {
		fmt.Println(statusMuted("no snapshot persisted yet"))
		return nil
	}

	fmt.Println(renderMemberTable(state.Members))
	fmt.Printf("%s %d   %s %d\n",
		statusLabel("per-node entries:"), len(state.PerNode),
		statusLabel("shared entries:"), len(state.Shared))
	return nil
}
