//go:build !windows

package sessions

import (
	"os"
	"strings"
)

// platformTerminalID names the session after the controlling terminal, so
// every invocation from the same terminal window resolves to the same id.
// Without a tty it falls back to hostname-pid.
func platformTerminalID() string {
	// /proc/self/fd/0 resolves to the tty device on Linux.
	if link, err := os.Readlink("/proc/self/fd/0"); err == nil && strings.HasPrefix(link, "/dev/") {
		return sanitizeID(strings.TrimPrefix(link, "/dev/"))
	}
	return hostPIDID()
}
