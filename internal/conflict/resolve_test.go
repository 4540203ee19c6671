package conflict

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoResolveTrivial(t *testing.T) {
	git := &fakeGit{
		root:     "/repo",
		unmerged: []string{"package-lock.json", "src/auth.js", "backend/go.sum"},
	}
	e := NewEngine(git, &fakeStore{}, Config{})

	outcomes, err := e.AutoResolveTrivial(context.Background())
	require.NoError(t, err)

	require.Len(t, outcomes, 2, "only lock artifacts are auto-resolved")
	for _, res := range outcomes {
		assert.True(t, res.Resolved)
		assert.Equal(t, ChoiceTheirs, res.Choice)
		assert.Equal(t, "took theirs", res.Detail)
	}
	assert.Equal(t, []string{"theirs:package-lock.json", "theirs:backend/go.sum"}, git.checkedOut)
	assert.Equal(t, []string{"package-lock.json", "backend/go.sum"}, git.staged)
}

func TestAutoResolveTrivial_NoLockArtifacts(t *testing.T) {
	git := &fakeGit{root: "/repo", unmerged: []string{"src/auth.js", "api/routes.go"}}
	e := NewEngine(git, &fakeStore{}, Config{})

	outcomes, err := e.AutoResolveTrivial(context.Background())
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Empty(t, git.checkedOut)
	assert.Empty(t, git.staged)
}

func TestResolveInteractive_AppliesChoices(t *testing.T) {
	git := &fakeGit{
		root:     "/repo",
		unmerged: []string{"a.go", "b.go", "c.go", "d.go"},
	}
	e := NewEngine(git, &fakeStore{}, Config{})

	choices := map[string]Choice{
		"a.go": ChoiceOurs,
		"b.go": ChoiceTheirs,
		"c.go": ChoiceManual,
		"d.go": ChoiceSkip,
	}
	outcomes, err := e.ResolveInteractive(context.Background(), ChooserFunc(func(path string) (Choice, error) {
		return choices[path], nil
	}))
	require.NoError(t, err)
	require.Len(t, outcomes, 4)

	assert.True(t, outcomes[0].Resolved)
	assert.Equal(t, "took ours", outcomes[0].Detail)
	assert.True(t, outcomes[1].Resolved)
	assert.Equal(t, "took theirs", outcomes[1].Detail)
	assert.False(t, outcomes[2].Resolved)
	assert.Equal(t, "left for manual edit", outcomes[2].Detail)
	assert.False(t, outcomes[3].Resolved)
	assert.Equal(t, "skipped", outcomes[3].Detail)

	assert.Equal(t, []string{"ours:a.go", "theirs:b.go"}, git.checkedOut)
	assert.Equal(t, []string{"a.go", "b.go"}, git.staged)
}

func TestResolveInteractive_ChooserErrorStops(t *testing.T) {
	git := &fakeGit{root: "/repo", unmerged: []string{"a.go", "b.go", "c.go"}}
	e := NewEngine(git, &fakeStore{}, Config{})

	outcomes, err := e.ResolveInteractive(context.Background(), ChooserFunc(func(path string) (Choice, error) {
		if path == "b.go" {
			return "", fmt.Errorf("stdin closed")
		}
		return ChoiceOurs, nil
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.go")
	require.Len(t, outcomes, 1, "files decided before the failure are kept")
	assert.True(t, outcomes[0].Resolved)
}

func TestResolveInteractive_UnknownChoice(t *testing.T) {
	git := &fakeGit{root: "/repo", unmerged: []string{"a.go"}}
	e := NewEngine(git, &fakeStore{}, Config{})

	outcomes, err := e.ResolveInteractive(context.Background(), ChooserFunc(func(string) (Choice, error) {
		return Choice("bogus"), nil
	}))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Resolved)
	assert.Contains(t, outcomes[0].Detail, "unknown choice")
}

func TestResolveInteractive_CheckoutFailureLeavesUnresolved(t *testing.T) {
	git := &fakeGit{
		root:        "/repo",
		unmerged:    []string{"a.go"},
		checkoutErr: fmt.Errorf("pathspec did not match"),
	}
	e := NewEngine(git, &fakeStore{}, Config{})

	outcomes, err := e.ResolveInteractive(context.Background(), ChooserFunc(func(string) (Choice, error) {
		return ChoiceTheirs, nil
	}))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Resolved)
	assert.Contains(t, outcomes[0].Detail, "pathspec")
	assert.Empty(t, git.staged, "a failed checkout must not be staged")
}

func TestResolveInteractive_StageFailureLeavesUnresolved(t *testing.T) {
	git := &fakeGit{
		root:     "/repo",
		unmerged: []string{"a.go"},
		stageErr: fmt.Errorf("index locked"),
	}
	e := NewEngine(git, &fakeStore{}, Config{})

	outcomes, err := e.ResolveInteractive(context.Background(), ChooserFunc(func(string) (Choice, error) {
		return ChoiceOurs, nil
	}))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Resolved)
	assert.Contains(t, outcomes[0].Detail, "index locked")
}
