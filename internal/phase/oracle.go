package phase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/codevcli/codev/internal/models"
)

// GateResult reports the outcome of a quality-gate check for one phase.
type GateResult struct {
	Phase  models.Phase
	Passed bool
	Detail string
}

// GateOracle answers whether the quality gates for a phase currently pass.
// Gate scoring itself (coverage, lint, security scans) happens outside this
// program; the oracle is the boundary to those externally computed results.
type GateOracle interface {
	CheckGates(ctx context.Context, p models.Phase) (GateResult, error)
}

// NoopOracle passes every gate. Default when no gate command is configured.
type NoopOracle struct{}

func (NoopOracle) CheckGates(_ context.Context, p models.Phase) (GateResult, error) {
	return GateResult{Phase: p, Passed: true, Detail: "no gate command configured"}, nil
}

// CommandOracle runs a configured command with the phase appended as the
// final argument and exported as CODEV_PHASE. Exit status zero means the
// gates pass, non-zero means they fail; any other execution failure is an
// error.
type CommandOracle struct {
	Command string
	Dir     string
}

func (o CommandOracle) CheckGates(ctx context.Context, p models.Phase) (GateResult, error) {
	fields := strings.Fields(o.Command)
	if len(fields) == 0 {
		return GateResult{}, fmt.Errorf("gate command is empty")
	}

	cmd := exec.CommandContext(ctx, fields[0], append(fields[1:], p.String())...)
	cmd.Dir = o.Dir
	cmd.Env = append(os.Environ(), "CODEV_PHASE="+p.String())

	out, err := cmd.CombinedOutput()
	detail := strings.TrimSpace(string(out))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return GateResult{Phase: p, Passed: false, Detail: detail}, nil
		}
		return GateResult{}, fmt.Errorf("run gate command %q: %w", fields[0], err)
	}
	return GateResult{Phase: p, Passed: true, Detail: detail}, nil
}
