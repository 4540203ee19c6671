package models

import (
	"sort"
	"time"
)

// SessionStatus represents the lifecycle state of a terminal session.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusPaused SessionStatus = "paused"
	SessionStatusClosed SessionStatus = "closed"
)

// SessionMetrics aggregates work counters for a session.
type SessionMetrics struct {
	Commits      int `json:"commits"`
	LinesAdded   int `json:"lines_added"`
	LinesRemoved int `json:"lines_removed"`
	TestsAdded   int `json:"tests_added"`
}

// QualitySnapshot holds externally reported quality figures for a session.
// The values are recorded as-is; how they are computed is up to the caller.
type QualitySnapshot struct {
	Coverage   float64 `json:"coverage"`
	LintErrors int     `json:"lint_errors"`
}

// PhaseRecord is one entry in a session's phase history.
type PhaseRecord struct {
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the durable record of one terminal working on the repository.
type Session struct {
	SessionID     string          `json:"session_id"`
	Branch        string          `json:"branch"`
	Phase         Phase           `json:"phase"`
	Status        SessionStatus   `json:"status"`
	StartedAt     time.Time       `json:"started_at"`
	LastActivity  time.Time       `json:"last_activity"`
	FilesModified []string        `json:"files_modified"`
	LocksHeld     []string        `json:"locks_held"`
	Metrics       SessionMetrics  `json:"metrics"`
	Quality       QualitySnapshot `json:"quality"`
	PhaseHistory  []PhaseRecord   `json:"phase_history"`
}

// NewSession creates an active session starting at P0 Discovery.
func NewSession(id, branch string, now time.Time) *Session {
	return &Session{
		SessionID:     id,
		Branch:        branch,
		Phase:         PhaseDiscovery,
		Status:        SessionStatusActive,
		StartedAt:     now,
		LastActivity:  now,
		FilesModified: []string{},
		LocksHeld:     []string{},
		PhaseHistory:  []PhaseRecord{{Phase: PhaseDiscovery, Timestamp: now}},
	}
}

// TouchFiles merges repo-relative paths into the modified set, keeping it
// sorted and unique.
func (s *Session) TouchFiles(paths ...string) {
	s.FilesModified = mergeSorted(s.FilesModified, paths)
}

// HoldLock records ownership of a named resource lock.
func (s *Session) HoldLock(name string) {
	s.LocksHeld = mergeSorted(s.LocksHeld, []string{name})
}

// DropLock removes a named resource lock from the held set.
func (s *Session) DropLock(name string) {
	s.LocksHeld = removeString(s.LocksHeld, name)
}

// RecordPhase appends a history entry for phase at the given time. The
// recorded timestamp never moves backward relative to the previous entry,
// so history stays monotonic even if the wall clock steps back.
func (s *Session) RecordPhase(phase Phase, now time.Time) {
	if n := len(s.PhaseHistory); n > 0 {
		if last := s.PhaseHistory[n-1].Timestamp; now.Before(last) {
			now = last
		}
	}
	s.Phase = phase
	s.PhaseHistory = append(s.PhaseHistory, PhaseRecord{Phase: phase, Timestamp: now})
}

// Validate checks the structural integrity of a loaded session document.
func (s *Session) Validate() error {
	if s.SessionID == "" {
		return &ValidationError{Field: "session_id", Reason: "must not be empty"}
	}
	if !s.Phase.Valid() {
		return &ValidationError{Field: "phase", Reason: "out of range"}
	}
	switch s.Status {
	case SessionStatusActive, SessionStatusPaused, SessionStatusClosed:
	default:
		return &ValidationError{Field: "status", Reason: "unknown value " + string(s.Status)}
	}
	return nil
}

// Normalize replaces nil collections with empty ones after unmarshalling.
func (s *Session) Normalize() {
	if s.FilesModified == nil {
		s.FilesModified = []string{}
	}
	if s.LocksHeld == nil {
		s.LocksHeld = []string{}
	}
	if s.PhaseHistory == nil {
		s.PhaseHistory = []PhaseRecord{}
	}
}

// mergeSorted returns the sorted union of set and additions.
func mergeSorted(set []string, additions []string) []string {
	seen := make(map[string]bool, len(set)+len(additions))
	for _, v := range set {
		seen[v] = true
	}
	out := append([]string{}, set...)
	for _, v := range additions {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// removeString returns set without v, preserving order.
func removeString(set []string, v string) []string {
	out := set[:0]
	for _, s := range set {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
