package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ontime/internal/app"
	"ontime/internal/eventbus"
	"ontime/pkg/logx"
	"ontime/pkg/systemd"
)

func addSync(topLevel *cobra.Command, ro *rootOptions) {
	var stopTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the sync daemon until interrupted.",
		Long: `Run the sync daemon: keep the active sheet loaded, reconcile on the
configured schedule, deliver failure notifications, mirror entries to Google
Calendar when enabled, and apply config edits live.

Under systemd (Type=notify) readiness, status and watchdog pings are sent over
sd_notify.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.NewApp(ro.configPath())
			if err != nil {
				return err
			}
			log := a.Log()
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigs)

			if err := a.Start(ctx); err != nil {
				_ = a.Stop(context.Background(), app.StopFatalError)
				return err
			}

			sd := systemd.NewNotifier()
			if ok, err := sd.Ready(); err != nil {
				log.Warn("sd_notify ready failed", logx.Err(err))
			} else if ok {
				log.Debug("systemd notified ready")
			}
			go reportStatus(ctx, a.Bus(), sd, log)
			go func() {
				if err := sd.Watchdog(ctx, func() bool { return a.Err() == nil }); err != nil {
					log.Warn("watchdog stopped", logx.Err(err))
				}
			}()

			reason := app.StopUnknown
			select {
			case sig := <-sigs:
				reason = app.StopSIGTERM
				if sig == os.Interrupt {
					reason = app.StopSIGINT
				}
			case <-a.Done():
				reason = app.StopFatalError
			}
			_, _ = sd.Stopping()
			cancel()

			stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
			defer stopCancel()
			_ = a.Stop(stopCtx, reason)
			return a.Err()
		},
	}
	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 10*time.Second, "Upper bound for graceful shutdown.")
	topLevel.AddCommand(cmd)
}

// reportStatus mirrors entry refreshes into the systemd status line.
func reportStatus(ctx context.Context, bus eventbus.Bus, sd *systemd.Notifier, log logx.Logger) {
	ch, unsub := bus.Subscribe(1, eventbus.EntriesRefreshed)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			r, _ := e.Data.(eventbus.Refreshed)
			if _, err := sd.Status(fmt.Sprintf("sheet %s: %d entries", r.ScopeID, r.Count)); err != nil {
				log.Debug("sd_notify status failed", logx.Err(err))
			}
		}
	}
}
