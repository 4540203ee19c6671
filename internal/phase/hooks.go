package phase

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/codevcli/codev/internal/models"
)

// HookEvent distinguishes entering a phase from leaving it.
type HookEvent string

const (
	HookEnter HookEvent = "enter"
	HookExit  HookEvent = "exit"
)

// Hook runs around phase transitions. Hooks are advisory: Run reports
// failure so callers can log it, but a transition never blocks on a hook.
type Hook interface {
	Run(ctx context.Context, sessionID string, p models.Phase, event HookEvent) error
}

// NopHooks runs nothing.
type NopHooks struct{}

func (NopHooks) Run(context.Context, string, models.Phase, HookEvent) error {
	return nil
}

// ScriptHooks executes `<dir>/<phase>-<event>` when present, e.g. P3-enter.
// The session id and phase are exported as CODEV_SESSION and CODEV_PHASE.
// A missing script is not an error.
type ScriptHooks struct {
	Dir string
}

func (h ScriptHooks) Run(ctx context.Context, sessionID string, p models.Phase, event HookEvent) error {
	if h.Dir == "" {
		return nil
	}
	script := filepath.Join(h.Dir, fmt.Sprintf("%s-%s", p, event))
	info, err := os.Stat(script)
	if err != nil || info.IsDir() {
		return nil
	}

	cmd := exec.CommandContext(ctx, script)
	cmd.Env = append(os.Environ(),
		"CODEV_SESSION="+sessionID,
		"CODEV_PHASE="+p.String(),
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s hook for %s: %s", event, p, msg)
		}
		return fmt.Errorf("%s hook for %s: %w", event, p, err)
	}
	return nil
}
