package sessions

import (
	"fmt"
	"os"
	"strings"
)

// EnvSession overrides terminal identity derivation when set.
const EnvSession = "CODEV_SESSION"

// TerminalID resolves the identity of the calling terminal. An explicit id
// wins, then the CODEV_SESSION environment variable, then a name derived
// from the platform. The result is always safe to use as a document id.
func TerminalID(explicit string) string {
	if explicit != "" {
		return sanitizeID(explicit)
	}
	if env := os.Getenv(EnvSession); env != "" {
		return sanitizeID(env)
	}
	return platformTerminalID()
}

// sanitizeID maps an arbitrary string to a filesystem-safe document id.
func sanitizeID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

// hostPIDID is the last-resort identity: unique per process, not per
// terminal, so pausing and resuming across invocations needs CODEV_SESSION.
func hostPIDID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "local"
	}
	return sanitizeID(fmt.Sprintf("%s-%d", host, os.Getpid()))
}
