package models

import (
	"fmt"
	"time"
)

// GlobalStateVersion is the schema version written to new state documents.
const GlobalStateVersion = 1

// LockClaim records which session claims a named resource.
type LockClaim struct {
	SessionID  string    `json:"session_id"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// GlobalStats aggregates activity counters across all sessions.
type GlobalStats struct {
	TotalSessions int `json:"total_sessions"`
	TotalBranches int `json:"total_branches"`
	TotalMerges   int `json:"total_merges"`
}

// GlobalState is the repository-wide coordination document. Every mutation
// goes through the store's atomic write path.
type GlobalState struct {
	Version         int                  `json:"version"`
	ActiveTerminals []string             `json:"active_terminals"`
	ActiveBranches  []string             `json:"active_branches"`
	ResourceLocks   map[string]LockClaim `json:"resource_locks"`
	Stats           GlobalStats          `json:"stats"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// NewGlobalState returns an empty state document at the current schema version.
func NewGlobalState(now time.Time) *GlobalState {
	return &GlobalState{
		Version:         GlobalStateVersion,
		ActiveTerminals: []string{},
		ActiveBranches:  []string{},
		ResourceLocks:   map[string]LockClaim{},
		UpdatedAt:       now,
	}
}

// AddTerminal inserts a session id into the active set.
func (g *GlobalState) AddTerminal(id string) {
	g.ActiveTerminals = mergeSorted(g.ActiveTerminals, []string{id})
}

// RemoveTerminal drops a session id from the active set.
func (g *GlobalState) RemoveTerminal(id string) {
	g.ActiveTerminals = removeString(g.ActiveTerminals, id)
}

// HasTerminal reports whether a session id is in the active set.
func (g *GlobalState) HasTerminal(id string) bool {
	for _, t := range g.ActiveTerminals {
		if t == id {
			return true
		}
	}
	return false
}

// AddBranch inserts a branch into the active set.
func (g *GlobalState) AddBranch(branch string) {
	g.ActiveBranches = mergeSorted(g.ActiveBranches, []string{branch})
}

// HasBranch reports whether a branch is in the active set.
func (g *GlobalState) HasBranch(branch string) bool {
	for _, b := range g.ActiveBranches {
		if b == branch {
			return true
		}
	}
	return false
}

// RemoveBranch drops a branch from the active set.
func (g *GlobalState) RemoveBranch(branch string) {
	g.ActiveBranches = removeString(g.ActiveBranches, branch)
}

// Validate checks required fields of a loaded state document.
func (g *GlobalState) Validate() error {
	if g.Version < 1 || g.Version > GlobalStateVersion {
		return &ValidationError{Field: "version", Reason: fmt.Sprintf("unsupported schema version %d", g.Version)}
	}
	if g.Stats.TotalSessions < 0 || g.Stats.TotalBranches < 0 || g.Stats.TotalMerges < 0 {
		return &ValidationError{Field: "stats", Reason: "counters must not be negative"}
	}
	return nil
}

// Normalize replaces nil collections with empty ones after unmarshalling.
func (g *GlobalState) Normalize() {
	if g.ActiveTerminals == nil {
		g.ActiveTerminals = []string{}
	}
	if g.ActiveBranches == nil {
		g.ActiveBranches = []string{}
	}
	if g.ResourceLocks == nil {
		g.ResourceLocks = map[string]LockClaim{}
	}
}
