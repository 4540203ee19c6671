package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSession_Defaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewSession("t1", "feature/auth", now)

	assert.Equal(t, "t1", s.SessionID)
	assert.Equal(t, "feature/auth", s.Branch)
	assert.Equal(t, PhaseDiscovery, s.Phase)
	assert.Equal(t, SessionStatusActive, s.Status)
	assert.Equal(t, now, s.StartedAt)
	assert.Equal(t, now, s.LastActivity)
	assert.NotNil(t, s.FilesModified)
	assert.NotNil(t, s.LocksHeld)
	require.Len(t, s.PhaseHistory, 1)
	assert.Equal(t, PhaseDiscovery, s.PhaseHistory[0].Phase)
	require.NoError(t, s.Validate())
}

func TestSession_TouchFiles_SortedUnique(t *testing.T) {
	s := NewSession("t1", "main", time.Now())
	s.TouchFiles("src/auth.js", "README.md")
	s.TouchFiles("src/auth.js", "src/db.js", "")

	assert.Equal(t, []string{"README.md", "src/auth.js", "src/db.js"}, s.FilesModified)
}

func TestSession_RecordPhase_MonotonicHistory(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewSession("t1", "main", start)

	s.RecordPhase(PhasePlanning, start.Add(time.Hour))
	// Wall clock stepping backward must not produce a backward timestamp.
	s.RecordPhase(PhaseDiscovery, start.Add(30*time.Minute))

	require.Len(t, s.PhaseHistory, 3)
	assert.Equal(t, PhaseDiscovery, s.Phase)
	for i := 1; i < len(s.PhaseHistory); i++ {
		prev := s.PhaseHistory[i-1].Timestamp
		cur := s.PhaseHistory[i].Timestamp
		assert.False(t, cur.Before(prev), "history entry %d went backward", i)
	}
}

func TestSession_HoldAndDropLock(t *testing.T) {
	s := NewSession("t1", "main", time.Now())
	s.HoldLock("state")
	s.HoldLock("deploy")
	s.HoldLock("state")

	assert.Equal(t, []string{"deploy", "state"}, s.LocksHeld)

	s.DropLock("state")
	assert.Equal(t, []string{"deploy"}, s.LocksHeld)

	s.DropLock("missing")
	assert.Equal(t, []string{"deploy"}, s.LocksHeld)
}

func TestSession_Validate(t *testing.T) {
	s := NewSession("", "main", time.Now())
	assert.Error(t, s.Validate())

	s = NewSession("t1", "main", time.Now())
	s.Status = SessionStatus("zombie")
	assert.Error(t, s.Validate())

	s = NewSession("t1", "main", time.Now())
	s.Phase = Phase(99)
	assert.Error(t, s.Validate())
}
