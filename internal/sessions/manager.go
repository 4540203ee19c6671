// Package sessions manages the lifecycle of terminal sessions: registration,
// activity tracking, pause/resume, close, and stale sweeps. All durable state
// lives in the store; the manager adds the lifecycle rules.
package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/codevcli/codev/internal/models"
	"github.com/codevcli/codev/internal/store"
)

// Logger receives lifecycle notices. *output.UI satisfies it.
type Logger interface {
	Info(format string, a ...any)
	Warning(format string, a ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)    {}
func (nopLogger) Warning(string, ...any) {}

// Config wires optional manager collaborators.
type Config struct {
	Logger Logger
	Now    func() time.Time
}

// Manager orchestrates session lifecycle over the store.
type Manager struct {
	store  store.Store
	logger Logger
	now    func() time.Time
}

// NewManager creates a session manager over the given store.
func NewManager(s store.Store, cfg Config) *Manager {
	m := &Manager{
		store:  s,
		logger: cfg.Logger,
		now:    cfg.Now,
	}
	if m.logger == nil {
		m.logger = nopLogger{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Register creates a new active session for the terminal id on the given
// branch and adds it to the global active set. Registering an id that is
// already active fails with store.ErrSessionExists.
func (m *Manager) Register(ctx context.Context, id, branch string) (*models.Session, error) {
	if id == "" {
		return nil, &models.ValidationError{Field: "session_id", Reason: "must not be empty"}
	}
	if branch == "" {
		return nil, &models.ValidationError{Field: "branch", Reason: "must not be empty"}
	}
	session := models.NewSession(id, branch, m.now().UTC())
	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	m.logger.Info("registered session %s on %s", id, branch)
	return session, nil
}

// Get reads one session document.
func (m *Manager) Get(ctx context.Context, id string) (*models.Session, error) {
	return m.store.GetSession(ctx, id)
}

// List reads every live session, ordered by id.
func (m *Manager) List(ctx context.Context) ([]*models.Session, error) {
	return m.store.ListSessions(ctx)
}

// Touch merges repo-relative paths into the session's modified set and
// refreshes its activity timestamp.
func (m *Manager) Touch(ctx context.Context, id string, files ...string) (*models.Session, error) {
	return m.store.UpdateSession(ctx, id, func(s *models.Session) error {
		s.TouchFiles(files...)
		s.LastActivity = m.now().UTC()
		return nil
	})
}

// RecordCommit adds one commit's line and test counts to the session's
// metrics and refreshes its activity timestamp.
func (m *Manager) RecordCommit(ctx context.Context, id string, added, removed, tests int) (*models.Session, error) {
	if added < 0 || removed < 0 || tests < 0 {
		return nil, &models.ValidationError{Field: "metrics", Reason: "counts must not be negative"}
	}
	return m.store.UpdateSession(ctx, id, func(s *models.Session) error {
		s.Metrics.Commits++
		s.Metrics.LinesAdded += added
		s.Metrics.LinesRemoved += removed
		s.Metrics.TestsAdded += tests
		s.LastActivity = m.now().UTC()
		return nil
	})
}

// RecordQuality stores externally reported coverage and lint figures.
func (m *Manager) RecordQuality(ctx context.Context, id string, coverage float64, lintErrors int) (*models.Session, error) {
	if coverage < 0 || coverage > 100 {
		return nil, &models.ValidationError{Field: "coverage", Reason: "must be between 0 and 100"}
	}
	return m.store.UpdateSession(ctx, id, func(s *models.Session) error {
		s.Quality.Coverage = coverage
		s.Quality.LintErrors = lintErrors
		s.LastActivity = m.now().UTC()
		return nil
	})
}

// Pause suspends an active session. The session keeps its branch, files, and
// phase; only its status changes.
func (m *Manager) Pause(ctx context.Context, id string) (*models.Session, error) {
	return m.store.UpdateSession(ctx, id, func(s *models.Session) error {
		if s.Status != models.SessionStatusActive {
			return fmt.Errorf("session %s is %s, only active sessions can be paused", id, s.Status)
		}
		s.Status = models.SessionStatusPaused
		s.LastActivity = m.now().UTC()
		return nil
	})
}

// Resume reactivates a paused session.
func (m *Manager) Resume(ctx context.Context, id string) (*models.Session, error) {
	return m.store.UpdateSession(ctx, id, func(s *models.Session) error {
		if s.Status != models.SessionStatusPaused {
			return fmt.Errorf("session %s is %s, only paused sessions can be resumed", id, s.Status)
		}
		s.Status = models.SessionStatusActive
		s.LastActivity = m.now().UTC()
		return nil
	})
}

// Close archives the session document under history/ and removes the id
// from the global active set.
func (m *Manager) Close(ctx context.Context, id string) error {
	if err := m.store.CloseSession(ctx, id); err != nil {
		return err
	}
	m.logger.Info("closed session %s", id)
	return nil
}

// Sweep closes sessions whose last activity is older than the threshold.
// With DryRun set it only reports the candidates.
func (m *Manager) Sweep(ctx context.Context, opts store.SweepOptions) ([]store.SweepResult, error) {
	results, err := m.store.SweepStale(ctx, opts)
	for _, r := range results {
		if r.Closed {
			m.logger.Info("swept stale session %s (last active %s)", r.SessionID, r.LastActivity.Format(time.RFC3339))
		}
	}
	return results, err
}
