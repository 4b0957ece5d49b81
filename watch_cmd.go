package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/feedsync/feedsync/internal/connectivity"
)

// backgroundTickInterval is how often the scheduler runs a push -> pull ->
// prune cycle while watch is idle and connected, independent of the
// connectivity-triggered push.
const backgroundTickInterval = 5 * time.Minute

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run in the foreground: push on reconnect, pull, and tick on a timer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			pidPath := filepath.Join(filepath.Dir(cc.Cfg.Storage.DatabasePath), "feedsync.pid")

			cleanup, err := writePIDFile(pidPath, cc.Logger)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runWatch(ctx, cc)
		},
	}
}

// runWatch drives the scheduler until ctx is canceled: a connectivity
// monitor triggers push-then-pull on reconnect, a ticker runs the full
// push/pull/prune cycle on a fixed interval as a floor for offline-capable
// clients that rarely see a connectivity transition, and SIGHUP (sent by
// sendSIGHUP) runs that cycle immediately.
func runWatch(ctx context.Context, cc *CLIContext) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	defer signal.Stop(hup)

	monitor := connectivity.New(cc.Cfg.Sync.ConnectivityTarget, cc.Logger)

	go monitor.Run(ctx, func(handlerCtx context.Context, connected bool) {
		cc.Logger.Info("connectivity transition", slog.Bool("connected", connected))
		cc.Sched.OnConnectivityChange(handlerCtx, connected)
	})

	ticker := time.NewTicker(backgroundTickInterval)
	defer ticker.Stop()

	cc.Logger.Info("feedsync watch started", slog.String("connectivity_target", cc.Cfg.Sync.ConnectivityTarget))

	for {
		select {
		case <-ctx.Done():
			cc.Logger.Info("feedsync watch stopping")
			return nil
		case <-ticker.C:
			cc.Sched.BackgroundTick(ctx)
		case <-hup:
			cc.Logger.Info("SIGHUP received, running an immediate cycle")
			cc.Sched.BackgroundTick(ctx)
		}
	}
}
