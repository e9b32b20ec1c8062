package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"flickrheat/internal/refresh"
	"flickrheat/internal/server"
	"flickrheat/pkg/snapshot"
	"flickrheat/pkg/ui"
)

const shutdownTimeout = 15 * time.Second

var (
	serveAddr        string
	snapshotBackend  string
	withoutScheduler bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web service",
	Long: `Run the HTTP service: Flickr sign-in, heatmap and monthly endpoints,
share links backed by the snapshot store, a progress websocket and
Prometheus metrics on /metrics.

When refresh.enabled is set, snapshots for refresh.usernames are
recomputed on refresh.schedule (cron syntax, UTC).`,
	Example: `  # Listen on :8080 with sqlite snapshots
  flickrheat serve --addr :8080 --snapshot-backend sqlite`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default :3000)")
	serveCmd.Flags().StringVar(&snapshotBackend, "snapshot-backend", "", "snapshot store: none, file, http, sqlite, redis, dynamodb")
	serveCmd.Flags().BoolVar(&withoutScheduler, "no-refresh", false, "do not start the refresh schedule")
}

func runServe(cmd *cobra.Command, args []string) {
	flags := make(map[string]interface{})
	if serveAddr != "" {
		flags["addr"] = serveAddr
	}
	if snapshotBackend != "" {
		flags["snapshot-backend"] = snapshotBackend
	}
	a := mustApp(flags)

	ctx, cancel := signalContext()
	defer cancel()

	store, err := snapshot.Open(ctx, a.cfg, a.log)
	if err != nil {
		ui.PrintError("Failed to open snapshot store", err.Error())
		os.Exit(1)
	}
	if store != nil {
		defer store.Close()
	} else {
		a.log.Warn("No snapshot store configured; share links are disabled")
	}

	deps := server.Deps{Activity: a.service, Logger: a.log}
	if store != nil {
		deps.Store = store
	}
	if a.oauth != nil {
		deps.OAuth = a.oauth
	} else {
		a.log.Warn("Consumer credentials missing; sign-in is disabled")
	}

	srv, err := server.NewServer(a.cfg, deps)
	if err != nil {
		ui.PrintError("Failed to create server", err.Error())
		os.Exit(1)
	}

	var sched *refresh.Scheduler
	if a.cfg.Refresh.Enabled && !withoutScheduler {
		if store == nil {
			ui.PrintError("Refresh is enabled but no snapshot store is configured")
			os.Exit(1)
		}
		tok, err := a.token()
		if err != nil {
			a.log.WithError(err).Warn("Refreshing anonymously")
		}
		sched, err = refresh.NewSchedulerFromConfig(a.cfg, a.service, store, tok, a.log)
		if err != nil {
			ui.PrintError("Invalid refresh configuration", err.Error())
			os.Exit(1)
		}
		sched.Start()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()
	a.log.WithField("addr", a.cfg.Server.Addr).Info("Listening")

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Error("Server failed")
			os.Exit(1)
		}
	case <-ctx.Done():
		a.log.Info("Shutting down")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if sched != nil {
		sched.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.WithError(err).Error("Graceful shutdown failed")
	}
}
