package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"flickrheat/internal/refresh"
	"flickrheat/pkg/snapshot"
	"flickrheat/pkg/ui"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Read and refresh stored snapshots",
	Long: `Read and refresh heatmap snapshots kept in the configured store.

The store is selected with snapshot.backend (file, http, sqlite, redis or
dynamodb). 'snapshot refresh' recomputes the current year for every user
listed under refresh.usernames, exactly as the scheduled job in 'serve' does.`,
}

var snapshotGetCmd = &cobra.Command{
	Use:   "get <username>",
	Short: "Print the stored snapshot for a user",
	Args:  cobra.ExactArgs(1),
	Run:   runSnapshotGet,
}

var snapshotRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Recompute snapshots for the configured users now",
	Run:   runSnapshotRefresh,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotGetCmd)
	snapshotCmd.AddCommand(snapshotRefreshCmd)
}

func openStore(ctx context.Context, a *app) snapshot.Store {
	store, err := snapshot.Open(ctx, a.cfg, a.log)
	if err != nil {
		ui.PrintError("Failed to open snapshot store", err.Error())
		os.Exit(1)
	}
	if store == nil {
		ui.PrintError("No snapshot store configured", "set snapshot.backend or FLICKRHEAT_SNAPSHOT_BACKEND")
		os.Exit(1)
	}
	return store
}

func runSnapshotGet(cmd *cobra.Command, args []string) {
	a := mustApp(nil)
	ctx, cancel := signalContext()
	defer cancel()

	store := openStore(ctx, a)
	defer store.Close()

	snap, err := store.Get(ctx, snapshot.Key(args[0]))
	if errors.Is(err, snapshot.ErrNotFound) {
		ui.PrintError("Snapshot not found", args[0])
		os.Exit(1)
	}
	if err != nil {
		ui.PrintError("Failed to read snapshot", err.Error())
		os.Exit(1)
	}
	printJSON(snap)
}

func runSnapshotRefresh(cmd *cobra.Command, args []string) {
	a := mustApp(nil)
	tok := a.mustToken()
	ctx, cancel := signalContext()
	defer cancel()

	store := openStore(ctx, a)
	defer store.Close()

	sched, err := refresh.NewSchedulerFromConfig(a.cfg, a.service, store, tok, a.log)
	if err != nil {
		ui.PrintError("Cannot refresh", err.Error())
		os.Exit(1)
	}

	ui.PrintInfo("Refreshing", fmt.Sprintf("%d users", len(sched.Usernames())))
	summary, err := sched.RunOnce(ctx)
	if err != nil {
		ui.PrintError("Refresh failed", err.Error())
		os.Exit(1)
	}

	for username, msg := range summary.Errors {
		ui.PrintWarning(username, msg)
	}
	ui.PrintSuccess(fmt.Sprintf("Refreshed %d of %d users in %s",
		summary.Succeeded, summary.Succeeded+summary.Failed, summary.Duration.Round(time.Millisecond)))
	if summary.Failed > 0 {
		os.Exit(1)
	}
}
