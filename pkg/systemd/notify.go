// Package systemd integrates the sync daemon with systemd: readiness and
// watchdog notifications over sd_notify, and unit status/restart over D-Bus.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify states. Outside systemd (no NOTIFY_SOCKET) every
// call is a no-op.
type Notifier struct {
	unsetEnv bool
}

func NewNotifier() *Notifier { return &Notifier{} }

// Ready reports startup complete. It returns false when no socket is set.
func (n *Notifier) Ready() (bool, error) {
	return daemon.SdNotify(n.unsetEnv, daemon.SdNotifyReady)
}

func (n *Notifier) Stopping() (bool, error) {
	return daemon.SdNotify(n.unsetEnv, daemon.SdNotifyStopping)
}

func (n *Notifier) Reloading() (bool, error) {
	return daemon.SdNotify(n.unsetEnv, daemon.SdNotifyReloading)
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(text string) (bool, error) {
	return daemon.SdNotify(n.unsetEnv, "STATUS="+text)
}

// Watchdog pings the watchdog at half the configured interval until ctx is
// done. healthy gates each ping; a nil healthy always pings. It returns
// immediately when the unit has no WatchdogSec.
func (n *Notifier) Watchdog(ctx context.Context, healthy func() bool) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return err
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy != nil && !healthy() {
				continue
			}
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
