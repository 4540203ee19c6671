package sessions

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codevcli/codev/internal/lockdir"
	"github.com/codevcli/codev/internal/models"
	"github.com/codevcli/codev/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	root := filepath.Join(t.TempDir(), ".codev")
	locker := lockdir.NewDirLocker(store.LocksDir(root), lockdir.Config{PollInterval: time.Millisecond})
	s := store.NewFileStore(root, locker, store.Config{})
	require.NoError(t, s.Init(context.Background()))
	return s
}

// fixedClock steps forward one second per call.
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestManager(t *testing.T) (*Manager, store.Store, *fixedClock) {
	t.Helper()
	s := newTestStore(t)
	clock := &fixedClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	return NewManager(s, Config{Now: clock.Now}), s, clock
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	m, s, _ := newTestManager(t)

	session, err := m.Register(ctx, "term-1", "feature/login")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, session.Status)
	assert.Equal(t, models.PhaseDiscovery, session.Phase)

	state, err := s.LoadState(ctx)
	require.NoError(t, err)
	assert.Contains(t, state.ActiveTerminals, "term-1")
	assert.Contains(t, state.ActiveBranches, "feature/login")
	assert.Equal(t, 1, state.Stats.TotalSessions)
}

func TestRegister_DuplicateID(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	_, err := m.Register(ctx, "term-1", "feature/a")
	require.NoError(t, err)
	_, err = m.Register(ctx, "term-1", "feature/b")
	assert.ErrorIs(t, err, store.ErrSessionExists)
}

func TestRegister_Validation(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	var verr *models.ValidationError
	_, err := m.Register(ctx, "", "feature/a")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "session_id", verr.Field)

	_, err = m.Register(ctx, "term-1", "")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "branch", verr.Field)
}

func TestTouch(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	created, err := m.Register(ctx, "term-1", "feature/a")
	require.NoError(t, err)

	session, err := m.Touch(ctx, "term-1", "src/b.go", "src/a.go", "src/b.go")
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.go", "src/b.go"}, session.FilesModified)
	assert.True(t, session.LastActivity.After(created.LastActivity))

	session, err = m.Touch(ctx, "term-1", "src/a.go", "src/c.go")
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.go", "src/b.go", "src/c.go"}, session.FilesModified)
}

func TestTouch_UnknownSession(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.Touch(context.Background(), "ghost", "a.go")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestRecordCommit(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	_, err := m.Register(ctx, "term-1", "feature/a")
	require.NoError(t, err)

	_, err = m.RecordCommit(ctx, "term-1", 120, 30, 2)
	require.NoError(t, err)
	session, err := m.RecordCommit(ctx, "term-1", 10, 0, 1)
	require.NoError(t, err)

	assert.Equal(t, 2, session.Metrics.Commits)
	assert.Equal(t, 130, session.Metrics.LinesAdded)
	assert.Equal(t, 30, session.Metrics.LinesRemoved)
	assert.Equal(t, 3, session.Metrics.TestsAdded)

	_, err = m.RecordCommit(ctx, "term-1", -1, 0, 0)
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRecordQuality(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	_, err := m.Register(ctx, "term-1", "feature/a")
	require.NoError(t, err)

	session, err := m.RecordQuality(ctx, "term-1", 87.5, 3)
	require.NoError(t, err)
	assert.Equal(t, 87.5, session.Quality.Coverage)
	assert.Equal(t, 3, session.Quality.LintErrors)

	_, err = m.RecordQuality(ctx, "term-1", 101, 0)
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestPauseAndResume(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	_, err := m.Register(ctx, "term-1", "feature/a")
	require.NoError(t, err)

	session, err := m.Pause(ctx, "term-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusPaused, session.Status)

	_, err = m.Pause(ctx, "term-1")
	require.Error(t, err, "pausing a paused session must fail")
	assert.Contains(t, err.Error(), "only active sessions")

	session, err = m.Resume(ctx, "term-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, session.Status)

	_, err = m.Resume(ctx, "term-1")
	require.Error(t, err, "resuming an active session must fail")
	assert.Contains(t, err.Error(), "only paused sessions")
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	m, s, _ := newTestManager(t)

	_, err := m.Register(ctx, "term-1", "feature/a")
	require.NoError(t, err)
	require.NoError(t, m.Close(ctx, "term-1"))

	_, err = m.Get(ctx, "term-1")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)

	state, err := s.LoadState(ctx)
	require.NoError(t, err)
	assert.NotContains(t, state.ActiveTerminals, "term-1")
	assert.NotContains(t, state.ActiveBranches, "feature/a")

	archives, err := filepath.Glob(filepath.Join(s.Root(), "history", "term-1-*.json"))
	require.NoError(t, err)
	assert.Len(t, archives, 1)
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	m, s, _ := newTestManager(t)

	_, err := m.Register(ctx, "old", "feature/old")
	require.NoError(t, err)
	_, err = m.Register(ctx, "fresh", "feature/fresh")
	require.NoError(t, err)

	stale := time.Now().UTC().Add(-8 * 24 * time.Hour)
	_, err = s.UpdateSession(ctx, "old", func(sess *models.Session) error {
		sess.LastActivity = stale
		return nil
	})
	require.NoError(t, err)

	results, err := m.Sweep(ctx, store.SweepOptions{DryRun: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "old", results[0].SessionID)
	assert.False(t, results[0].Closed)

	_, err = m.Get(ctx, "old")
	require.NoError(t, err, "dry run must not close anything")

	results, err = m.Sweep(ctx, store.SweepOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Closed)

	_, err = m.Get(ctx, "old")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
	_, err = m.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestTerminalID(t *testing.T) {
	assert.Equal(t, "term-1", TerminalID("term-1"))
	assert.Equal(t, "my-id", TerminalID("my id"), "explicit ids are sanitized")

	t.Setenv(EnvSession, "env-term")
	assert.Equal(t, "env-term", TerminalID(""))

	t.Setenv(EnvSession, "")
	id := TerminalID("")
	assert.NotEmpty(t, id)
	assert.NotContains(t, id, "/")
	assert.NotContains(t, id, "\\")
}

func TestSanitizeID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"pts/3", "pts-3"},
		{"dev tty 001", "dev-tty-001"},
		{"mac.local-42", "mac-local-42"},
		{"--edge--", "edge"},
		{"ok_name-9", "ok_name-9"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeID(tt.in), "input %q", tt.in)
	}
}
