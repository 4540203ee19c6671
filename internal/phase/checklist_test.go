package phase

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codevcli/codev/internal/models"
)

func TestDefaultChecklist(t *testing.T) {
	c := DefaultChecklist()
	assert.Equal(t, []string{"docs/discovery.md"}, c.Items(models.PhaseDiscovery))
	assert.Empty(t, c.Items(models.PhaseImplementation))
}

func TestLoadChecklist_MissingFileFallsBack(t *testing.T) {
	c, err := LoadChecklist(filepath.Join(t.TempDir(), "checklists.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultChecklist().Items(models.PhasePlanning), c.Items(models.PhasePlanning))
}

func TestLoadChecklist_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checklists.yaml")
	override := "P1:\n  - docs/roadmap.md\n  - docs/estimates.md\n"
	require.NoError(t, os.WriteFile(path, []byte(override), 0o644))

	c, err := LoadChecklist(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/roadmap.md", "docs/estimates.md"}, c.Items(models.PhasePlanning))
	assert.Empty(t, c.Items(models.PhaseDiscovery), "override replaces the defaults entirely")
}

func TestLoadChecklist_RejectsBadPhaseKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checklists.yaml")
	require.NoError(t, os.WriteFile(path, []byte("P9:\n  - nope.md\n"), 0o644))

	_, err := LoadChecklist(path)
	assert.Error(t, err)
}

func TestChecklist_Evaluate(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "CHANGELOG.md"), []byte("# changes"), 0o644))

	checks := DefaultChecklist().Evaluate(root, models.PhaseRelease)
	require.Len(t, checks, 1)
	assert.True(t, checks[0].Passed)
	assert.Equal(t, "CHANGELOG.md", checks[0].Path)

	checks = DefaultChecklist().Evaluate(root, models.PhaseDiscovery)
	require.Len(t, checks, 1)
	assert.False(t, checks[0].Passed)
	assert.Contains(t, checks[0].Detail, "missing")
}
