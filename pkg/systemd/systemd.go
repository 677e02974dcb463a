// Package systemd reports service state to systemd (Type=notify units).
// Outside systemd every call is a no-op.
package systemd

import (
	"fmt"
	"os"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Ready tells systemd startup finished.
func Ready() (bool, error) { return notify(daemon.SdNotifyReady) }

// Stopping tells systemd shutdown began.
func Stopping() (bool, error) { return notify(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func Status(format string, args ...any) (bool, error) {
	return notify("STATUS=" + fmt.Sprintf(format, args...))
}

// UnderSystemd reports whether NOTIFY_SOCKET is set.
func UnderSystemd() bool { return os.Getenv("NOTIFY_SOCKET") != "" }

func notify(state string) (bool, error) {
	return daemon.SdNotify(false, state)
}
