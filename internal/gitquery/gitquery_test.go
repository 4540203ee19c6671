package gitquery

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	fullArgs := append([]string{"-C", dir}, args...)
	out, err := exec.Command("git", fullArgs...).CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
	return strings.TrimSpace(string(out))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// initConflictRepo builds a repo where main and feature both rewrote file.txt
// since their common ancestor, so merging them conflicts.
func initConflictRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	mustGit(t, dir, "init", "-b", "main")
	mustGit(t, dir, "config", "user.email", "test@test.com")
	mustGit(t, dir, "config", "user.name", "Test")

	writeFile(t, dir, "file.txt", "line one\n")
	mustGit(t, dir, "add", ".")
	mustGit(t, dir, "commit", "-m", "initial")

	mustGit(t, dir, "checkout", "-b", "feature")
	writeFile(t, dir, "file.txt", "line one changed by feature\n")
	writeFile(t, dir, "extra.txt", "feature only\n")
	mustGit(t, dir, "add", ".")
	mustGit(t, dir, "commit", "-m", "feature change")

	mustGit(t, dir, "checkout", "main")
	writeFile(t, dir, "file.txt", "line one changed by main\n")
	mustGit(t, dir, "add", ".")
	mustGit(t, dir, "commit", "-m", "main change")

	return dir
}

func TestNew_NotARepository(t *testing.T) {
	_, err := New(t.TempDir())
	assert.ErrorIs(t, err, ErrNotRepository)
}

func TestClient_Revisions(t *testing.T) {
	dir := initConflictRepo(t)
	c, err := New(dir)
	require.NoError(t, err)

	assert.Equal(t, dir, c.RepoRoot())

	branch, err := c.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, "main", branch)

	head, err := c.ResolveCommit("HEAD")
	require.NoError(t, err)
	assert.Equal(t, mustGit(t, dir, "rev-parse", "HEAD"), head)

	exists, err := c.BranchExists("feature")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = c.BranchExists("no-such-branch")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestClient_MergeBaseAndChangedPaths(t *testing.T) {
	dir := initConflictRepo(t)
	c, err := New(dir)
	require.NoError(t, err)

	base, err := c.MergeBase("main", "feature")
	require.NoError(t, err)
	assert.Equal(t, mustGit(t, dir, "merge-base", "main", "feature"), base)

	paths, err := c.ChangedPaths(base, "feature")
	require.NoError(t, err)
	assert.Equal(t, []string{"extra.txt", "file.txt"}, paths)

	paths, err = c.ChangedPaths(base, "main")
	require.NoError(t, err)
	assert.Equal(t, []string{"file.txt"}, paths)

	_, err = c.ChangedPaths(base, "no-such-branch")
	assert.Error(t, err)
}

func TestClient_MergeTreeReportsConflict(t *testing.T) {
	dir := initConflictRepo(t)
	c, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	base, err := c.MergeBase("main", "feature")
	require.NoError(t, err)

	out, err := c.MergeTree(ctx, base, "main", "feature")
	require.NoError(t, err)
	assert.Greater(t, CountConflictMarkers(out), 0)

	ahead, err := c.CommitsAhead(ctx, "main", "feature")
	require.NoError(t, err)
	assert.Equal(t, 1, ahead)
}

func TestClient_WorktreeMergeCycle(t *testing.T) {
	dir := initConflictRepo(t)
	c, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	wt := filepath.Join(t.TempDir(), "sim")
	require.NoError(t, c.AddWorktree(ctx, wt, "main"))

	err = c.MergeNoCommit(ctx, wt, "feature")
	assert.Error(t, err)

	unmerged, err := c.UnmergedPaths(ctx, wt)
	require.NoError(t, err)
	assert.Equal(t, []string{"file.txt"}, unmerged)

	require.NoError(t, c.CheckoutTheirs(ctx, wt, "file.txt"))
	require.NoError(t, c.StageFile(ctx, wt, "file.txt"))

	unmerged, err = c.UnmergedPaths(ctx, wt)
	require.NoError(t, err)
	assert.Empty(t, unmerged)

	require.NoError(t, c.AbortMerge(ctx, wt))
	require.NoError(t, c.RemoveWorktree(ctx, wt))
	_, statErr := os.Stat(wt)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCountConflictMarkers(t *testing.T) {
	mergeTreeOutput := `changed in both
  base   100644 4f2e364 file.txt
  our    100644 9daeafb file.txt
  their  100644 dec2cbe file.txt
@@ -1 +1,5 @@
+<<<<<<< .our
 line one changed by main
+=======
+line one changed by feature
+>>>>>>> .their
`

	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"empty", "", 0},
		{"clean merge", "added in remote\n  their  100644 abc123 extra.txt\n", 0},
		{"merge-tree diff form", mergeTreeOutput, 1},
		{"bare markers", "<<<<<<< HEAD\nours\n=======\ntheirs\n>>>>>>> feature\n", 1},
		{"two conflicts", mergeTreeOutput + mergeTreeOutput, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountConflictMarkers(tt.input))
		})
	}
}

func TestSplitPaths(t *testing.T) {
	assert.Nil(t, SplitPaths(""))
	assert.Equal(t, []string{"a.txt", "b/c.txt"}, SplitPaths("a.txt\nb/c.txt\n"))
	assert.Equal(t, []string{"a.txt"}, SplitPaths("  a.txt  \n\n"))
}
