// Package systemd talks to the service manager over sd_notify.
// Every call is a no-op outside systemd (NOTIFY_SOCKET unset).
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "moviebot/pkg/logx"
)

// notify is swapped in tests.
var notify = daemon.SdNotify

// Ready reports READY=1. It returns false when not running under systemd.
func Ready() (bool, error) { return notify(false, daemon.SdNotifyReady) }

// Stopping reports STOPPING=1.
func Stopping() (bool, error) { return notify(false, daemon.SdNotifyStopping) }

// Status sets the free-form STATUS= line shown by systemctl status.
func Status(s string) (bool, error) { return notify(false, "STATUS="+s) }

// WatchdogInterval returns the keepalive period (half of WATCHDOG_USEC),
// or 0 when the watchdog is not enabled for this process.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// Watchdog pings WATCHDOG=1 every interval until ctx is done. alive gates
// each ping; a false result skips it so systemd restarts a wedged process.
func Watchdog(ctx context.Context, interval time.Duration, alive func() bool, log logx.Logger) error {
	if interval <= 0 {
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if alive != nil && !alive() {
				log.Warn("watchdog ping skipped: not alive")
				continue
			}
			if _, err := notify(false, daemon.SdNotifyWatchdog); err != nil {
				log.Debug("watchdog notify failed", logx.Err(err))
			}
		}
	}
}
