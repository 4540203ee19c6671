package conflict

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// cleanupTimeout bounds the post-simulation abort and worktree removal,
// which run on a fresh context so cleanup still happens when the caller's
// context is already cancelled.
const cleanupTimeout = 30 * time.Second

// SimulationResult reports the outcome of a disposable-worktree merge.
type SimulationResult struct {
	Branch    string
	Base      string
	Clean     bool
	Conflicts []string
}

// SimulateMerge checks out base in a throwaway worktree, attempts a real
// no-commit merge of branch there, and reports the conflicted paths. The
// worktree is aborted and removed on every exit path; the caller's working
// tree and index are never touched.
func (e *Engine) SimulateMerge(ctx context.Context, branch, base string) (*SimulationResult, error) {
	dir := filepath.Join(os.TempDir(), "codev-sim-"+uuid.New().String())
	if err := e.git.AddWorktree(ctx, dir, base); err != nil {
		return nil, fmt.Errorf("create simulation worktree: %w", err)
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		_ = e.git.AbortMerge(cleanupCtx, dir) // fails when no merge is in progress
		if err := e.git.RemoveWorktree(cleanupCtx, dir); err != nil {
			e.logger.Warning("remove simulation worktree %s: %v", dir, err)
			_ = os.RemoveAll(dir)
		}
	}()

	mergeErr := e.git.MergeNoCommit(ctx, dir, branch)
	conflicts, err := e.git.UnmergedPaths(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("list unmerged paths: %w", err)
	}
	if mergeErr != nil && len(conflicts) == 0 {
		// The merge failed for a reason other than content conflicts.
		return nil, fmt.Errorf("simulate merge of %s into %s: %w", branch, base, mergeErr)
	}

	return &SimulationResult{
		Branch:    branch,
		Base:      base,
		Clean:     mergeErr == nil && len(conflicts) == 0,
		Conflicts: conflicts,
	}, nil
}
