// Package gitquery answers repository questions for session tracking and
// conflict analysis. History queries go through go-git; merge previews,
// worktrees, and index operations shell out to the git binary, which go-git
// does not model.
package gitquery

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNotRepository is returned by New when the path is not a git repository.
var ErrNotRepository = errors.New("not a git repository")

// Querier defines the git operations consumed by conflict detection and
// session tracking. Worktree-scoped methods take an explicit dir so the same
// client can drive throwaway worktrees under temporary paths.
type Querier interface {
	RepoRoot() string
	CurrentBranch() (string, error)
	BranchExists(name string) (bool, error)
	ResolveCommit(rev string) (string, error)
	MergeBase(rev1, rev2 string) (string, error)
	ChangedPaths(from, to string) ([]string, error)
	MergeTree(ctx context.Context, ancestor, ours, theirs string) (string, error)
	CommitsAhead(ctx context.Context, base, branch string) (int, error)
	AddWorktree(ctx context.Context, dir, commit string) error
	RemoveWorktree(ctx context.Context, dir string) error
	MergeNoCommit(ctx context.Context, dir, branch string) error
	AbortMerge(ctx context.Context, dir string) error
	UnmergedPaths(ctx context.Context, dir string) ([]string, error)
	CheckoutOurs(ctx context.Context, dir, path string) error
	CheckoutTheirs(ctx context.Context, dir, path string) error
	StageFile(ctx context.Context, dir, path string) error
}

// Client implements Querier against a single repository root.
type Client struct {
	root string
	repo *gogit.Repository
}

// New opens the repository at root.
func New(root string) (*Client, error) {
	repo, err := gogit.PlainOpen(root)
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%s: %w", root, ErrNotRepository)
		}
		return nil, fmt.Errorf("open repository %s: %w", root, err)
	}
	return &Client{root: root, repo: repo}, nil
}

// DiscoverRoot resolves the top-level directory of the repository containing dir.
func DiscoverRoot(ctx context.Context, dir string) (string, error) {
	return gitCmd(ctx, dir, "rev-parse", "--show-toplevel")
}

func gitCmd(ctx context.Context, dir string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", dir}, args...)
	out, err := exec.CommandContext(ctx, "git", fullArgs...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *Client) RepoRoot() string {
	return c.root
}

func (c *Client) CurrentBranch() (string, error) {
	ref, err := c.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return strings.TrimPrefix(ref.Name().String(), "refs/heads/"), nil
}

func (c *Client) BranchExists(name string) (bool, error) {
	_, err := c.repo.Reference(plumbing.NewBranchReferenceName(name), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("lookup branch %s: %w", name, err)
	}
	return true, nil
}

func (c *Client) ResolveCommit(rev string) (string, error) {
	hash, err := c.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", rev, err)
	}
	return hash.String(), nil
}

// MergeBase returns the best common ancestor of two revisions. Revisions on
// unrelated histories have no ancestor and yield an error.
func (c *Client) MergeBase(rev1, rev2 string) (string, error) {
	a, err := c.commitFor(rev1)
	if err != nil {
		return "", err
	}
	b, err := c.commitFor(rev2)
	if err != nil {
		return "", err
	}
	bases, err := a.MergeBase(b)
	if err != nil {
		return "", fmt.Errorf("merge-base %s %s: %w", rev1, rev2, err)
	}
	if len(bases) == 0 {
		return "", fmt.Errorf("merge-base %s %s: no common ancestor", rev1, rev2)
	}
	return bases[0].Hash.String(), nil
}

// ChangedPaths lists the paths that differ between two commits, typically a
// merge base and a branch tip. Paths are sorted and deduplicated.
func (c *Client) ChangedPaths(from, to string) ([]string, error) {
	fromCommit, err := c.commitFor(from)
	if err != nil {
		return nil, err
	}
	toCommit, err := c.commitFor(to)
	if err != nil {
		return nil, err
	}
	fromTree, err := fromCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("load tree %s: %w", from, err)
	}
	toTree, err := toCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("load tree %s: %w", to, err)
	}
	changes, err := object.DiffTree(fromTree, toTree)
	if err != nil {
		return nil, fmt.Errorf("diff %s..%s: %w", from, to, err)
	}

	seen := make(map[string]bool, len(changes))
	var paths []string
	for _, ch := range changes {
		name := ch.To.Name
		if name == "" {
			name = ch.From.Name
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		paths = append(paths, name)
	}
	sort.Strings(paths)
	return paths, nil
}

func (c *Client) commitFor(rev string) (*object.Commit, error) {
	hash, err := c.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", rev, err)
	}
	commit, err := c.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", rev, err)
	}
	return commit, nil
}

// MergeTree runs the bare three-argument form of git merge-tree, which prints
// the merged result without touching the index or any worktree. Conflicted
// hunks carry standard conflict markers.
func (c *Client) MergeTree(ctx context.Context, ancestor, ours, theirs string) (string, error) {
	return gitCmd(ctx, c.root, "merge-tree", ancestor, ours, theirs)
}

func (c *Client) CommitsAhead(ctx context.Context, base, branch string) (int, error) {
	out, err := gitCmd(ctx, c.root, "rev-list", "--count", base+".."+branch)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("rev-list --count returned %q: %w", out, err)
	}
	return n, nil
}

func (c *Client) AddWorktree(ctx context.Context, dir, commit string) error {
	_, err := gitCmd(ctx, c.root, "worktree", "add", "--detach", dir, commit)
	return err
}

func (c *Client) RemoveWorktree(ctx context.Context, dir string) error {
	_, err := gitCmd(ctx, c.root, "worktree", "remove", "--force", dir)
	return err
}

// MergeNoCommit attempts a real merge in dir without creating a commit. A
// conflicted merge returns an error and leaves unmerged entries in the index;
// callers inspect UnmergedPaths and finish with AbortMerge.
func (c *Client) MergeNoCommit(ctx context.Context, dir, branch string) error {
	_, err := gitCmd(ctx, dir, "merge", "--no-commit", "--no-ff", branch)
	return err
}

func (c *Client) AbortMerge(ctx context.Context, dir string) error {
	_, err := gitCmd(ctx, dir, "merge", "--abort")
	return err
}

func (c *Client) UnmergedPaths(ctx context.Context, dir string) ([]string, error) {
	out, err := gitCmd(ctx, dir, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	return SplitPaths(out), nil
}

func (c *Client) CheckoutOurs(ctx context.Context, dir, path string) error {
	_, err := gitCmd(ctx, dir, "checkout", "--ours", "--", path)
	return err
}

func (c *Client) CheckoutTheirs(ctx context.Context, dir, path string) error {
	_, err := gitCmd(ctx, dir, "checkout", "--theirs", "--", path)
	return err
}

func (c *Client) StageFile(ctx context.Context, dir, path string) error {
	_, err := gitCmd(ctx, dir, "add", "--", path)
	return err
}

// CountConflictMarkers counts conflict openers in merge-tree output. The bare
// merge-tree form prints merged files as a diff against the ancestor, so
// marker lines usually arrive prefixed with "+"; markers from conflicted
// files on disk arrive bare. Both are counted.
func CountConflictMarkers(mergeTree string) int {
	count := 0
	for _, line := range strings.Split(mergeTree, "\n") {
		line = strings.TrimPrefix(line, "+")
		if strings.HasPrefix(line, "<<<<<<<") {
			count++
		}
	}
	return count
}

// SplitPaths splits newline-separated git output into a path list.
func SplitPaths(out string) []string {
	if out == "" {
		return nil
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths
}
