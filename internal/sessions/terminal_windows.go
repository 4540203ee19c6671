//go:build windows

package sessions

// platformTerminalID falls back to hostname-pid on Windows, which has no
// stable per-terminal device name. Set CODEV_SESSION for a durable identity.
func platformTerminalID() string {
	return hostPIDID()
}
