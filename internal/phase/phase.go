// Package phase implements the ordered P0..P7 lifecycle for sessions: gated
// forward transitions, advisory backward moves, per-phase deliverable
// checklists, and best-effort enter/exit hooks.
package phase

import (
	"context"
	"fmt"
	"time"

	"github.com/codevcli/codev/internal/models"
)

// SessionStore is the subset of store.Store the machine needs.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	UpdateSession(ctx context.Context, id string, mutate func(*models.Session) error) (*models.Session, error)
}

// Logger receives advisory output from the machine. *output.UI satisfies it.
type Logger interface {
	Info(format string, a ...any)
	Warning(format string, a ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any) {}

func (nopLogger) Warning(string, ...any) {}

// GateError reports a failed quality gate blocking a forward transition.
type GateError struct {
	Phase  models.Phase
	Detail string
}

func (e *GateError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("gates for %s (%s) did not pass", e.Phase, e.Phase.Name())
	}
	return fmt.Sprintf("gates for %s (%s) did not pass: %s", e.Phase, e.Phase.Name(), e.Detail)
}

// Config wires the machine's collaborators. Zero values fall back to a
// passing oracle, no hooks, silent logging, and the built-in checklists.
type Config struct {
	Root      string // repository root, used for deliverable checks
	Oracle    GateOracle
	Hooks     Hook
	Logger    Logger
	Checklist *Checklist
}

// Machine drives phase transitions for sessions, persisting every move
// through the store.
type Machine struct {
	store     SessionStore
	root      string
	oracle    GateOracle
	hooks     Hook
	logger    Logger
	checklist *Checklist
}

// NewMachine creates a Machine bound to the given store.
func NewMachine(s SessionStore, cfg Config) *Machine {
	m := &Machine{
		store:     s,
		root:      cfg.Root,
		oracle:    cfg.Oracle,
		hooks:     cfg.Hooks,
		logger:    cfg.Logger,
		checklist: cfg.Checklist,
	}
	if m.oracle == nil {
		m.oracle = NoopOracle{}
	}
	if m.hooks == nil {
		m.hooks = NopHooks{}
	}
	if m.logger == nil {
		m.logger = nopLogger{}
	}
	if m.checklist == nil {
		m.checklist = DefaultChecklist()
	}
	return m
}

// Current returns the session's phase.
func (m *Machine) Current(ctx context.Context, sessionID string) (models.Phase, error) {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return sess.Phase, nil
}

// Transition moves a session to target. Forward moves require the gates of
// the session's current phase to pass; backward moves and multi-phase skips
// are allowed but warn. Every move is appended to the session's phase
// history. Transitioning to the current phase is a no-op.
func (m *Machine) Transition(ctx context.Context, sessionID string, target models.Phase) (*models.Session, error) {
	if !target.Valid() {
		return nil, &models.ValidationError{Field: "phase", Reason: fmt.Sprintf("index %d is out of range", int(target))}
	}
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	current := sess.Phase

	switch {
	case target == current:
		m.logger.Info("session %s is already in %s (%s)", sessionID, current, current.Name())
		return sess, nil
	case target > current:
		res, err := m.oracle.CheckGates(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("check gates for %s: %w", current, err)
		}
		if !res.Passed {
			return nil, &GateError{Phase: current, Detail: res.Detail}
		}
		if target > current+1 {
			m.logger.Warning("skipping from %s to %s: deliverables from skipped phases may be missing", current, target)
		}
	default:
		m.logger.Warning("moving backward from %s to %s: changes applied since %s may need undoing", current, target, target)
	}

	if err := m.hooks.Run(ctx, sessionID, current, HookExit); err != nil {
		m.logger.Warning("%v", err)
	}

	now := time.Now().UTC()
	updated, err := m.store.UpdateSession(ctx, sessionID, func(s *models.Session) error {
		s.RecordPhase(target, now)
		s.LastActivity = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := m.hooks.Run(ctx, sessionID, target, HookEnter); err != nil {
		m.logger.Warning("%v", err)
	}
	return updated, nil
}

// Next advances the session one phase forward.
func (m *Machine) Next(ctx context.Context, sessionID string) (*models.Session, error) {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Phase == models.PhaseMonitoring {
		return nil, fmt.Errorf("session %s is already at the final phase %s (%s)", sessionID, sess.Phase, sess.Phase.Name())
	}
	return m.Transition(ctx, sessionID, sess.Phase+1)
}

// Previous moves the session one phase back.
func (m *Machine) Previous(ctx context.Context, sessionID string) (*models.Session, error) {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Phase == models.PhaseDiscovery {
		return nil, fmt.Errorf("session %s is already at the first phase %s (%s)", sessionID, sess.Phase, sess.Phase.Name())
	}
	return m.Transition(ctx, sessionID, sess.Phase-1)
}

// CheckGates asks the oracle whether the gates for p currently pass.
func (m *Machine) CheckGates(ctx context.Context, p models.Phase) (GateResult, error) {
	return m.oracle.CheckGates(ctx, p)
}

// Checklist evaluates the deliverables expected for p against the repository.
func (m *Machine) Checklist(p models.Phase) []Check {
	return m.checklist.Evaluate(m.root, p)
}

// Progress summarizes advisory completion of a phase: passing gates count
// for half, present deliverables for the other half.
type Progress struct {
	Phase      models.Phase
	GatePassed bool
	GateDetail string
	Checks     []Check
	Percent    int
}

// Progress reports how complete a phase looks. It is UI-facing advisory
// data, not a correctness signal.
func (m *Machine) Progress(ctx context.Context, p models.Phase) (*Progress, error) {
	if !p.Valid() {
		return nil, &models.ValidationError{Field: "phase", Reason: fmt.Sprintf("index %d is out of range", int(p))}
	}
	res, err := m.oracle.CheckGates(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("check gates for %s: %w", p, err)
	}

	pr := &Progress{
		Phase:      p,
		GatePassed: res.Passed,
		GateDetail: res.Detail,
		Checks:     m.checklist.Evaluate(m.root, p),
	}
	if pr.GatePassed {
		pr.Percent += 50
	}
	present := true
	for _, c := range pr.Checks {
		if !c.Passed {
			present = false
			break
		}
	}
	if present {
		pr.Percent += 50
	}
	return pr, nil
}
