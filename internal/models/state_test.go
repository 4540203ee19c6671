package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGlobalState(t *testing.T) {
	g := NewGlobalState(time.Now())

	assert.Equal(t, GlobalStateVersion, g.Version)
	assert.NotNil(t, g.ActiveTerminals)
	assert.NotNil(t, g.ActiveBranches)
	assert.NotNil(t, g.ResourceLocks)
	require.NoError(t, g.Validate())
}

func TestGlobalState_TerminalSet(t *testing.T) {
	g := NewGlobalState(time.Now())
	g.AddTerminal("t2")
	g.AddTerminal("t1")
	g.AddTerminal("t2")

	assert.Equal(t, []string{"t1", "t2"}, g.ActiveTerminals)
	assert.True(t, g.HasTerminal("t1"))
	assert.False(t, g.HasTerminal("t3"))

	g.RemoveTerminal("t1")
	assert.Equal(t, []string{"t2"}, g.ActiveTerminals)
}

func TestGlobalState_Validate(t *testing.T) {
	g := NewGlobalState(time.Now())
	g.Version = 0
	assert.Error(t, g.Validate())

	g = NewGlobalState(time.Now())
	g.Stats.TotalSessions = -1
	assert.Error(t, g.Validate())
}

func TestGlobalState_NormalizeAfterUnmarshal(t *testing.T) {
	var g GlobalState
	require.NoError(t, json.Unmarshal([]byte(`{"version":1,"updated_at":"2026-03-01T10:00:00Z"}`), &g))

	g.Normalize()
	assert.NotNil(t, g.ActiveTerminals)
	assert.NotNil(t, g.ActiveBranches)
	assert.NotNil(t, g.ResourceLocks)
	require.NoError(t, g.Validate())
}
