// Package conflict computes advisory conflict reports for branch pairs and
// drives resolution of conflicted files. Detection never locks repository
// content: two sessions can always edit the same file, the engine just makes
// sure they hear about it early.
package conflict

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/codevcli/codev/internal/gitquery"
	"github.com/codevcli/codev/internal/models"
)

// SessionStore is the subset of store.Store the engine needs: session
// records for cross-terminal overlap and report persistence for audit.
type SessionStore interface {
	ListSessions(ctx context.Context) ([]*models.Session, error)
	SaveReport(ctx context.Context, report *models.ConflictReport) (string, error)
}

// SemanticAnalyzer is an extension point for language-aware conflict checks
// such as signature or interface changes.
type SemanticAnalyzer interface {
	Analyze(ctx context.Context, paths []string) ([]models.SemanticFinding, error)
}

// NoopAnalyzer reports nothing. Default until a language-specific analyzer
// is plugged in.
type NoopAnalyzer struct{}

func (NoopAnalyzer) Analyze(context.Context, []string) ([]models.SemanticFinding, error) {
	return nil, nil
}

// Logger receives advisory output from the engine. *output.UI satisfies it.
type Logger interface {
	Warning(format string, a ...any)
}

type nopLogger struct{}

func (nopLogger) Warning(string, ...any) {}

// Config wires optional engine collaborators.
type Config struct {
	Analyzer SemanticAnalyzer
	Logger   Logger
}

// Engine detects conflicts between a branch and its base, and across
// concurrently active sessions.
type Engine struct {
	git      gitquery.Querier
	store    SessionStore
	analyzer SemanticAnalyzer
	logger   Logger
}

// NewEngine creates an Engine over the given git boundary and session store.
func NewEngine(git gitquery.Querier, store SessionStore, cfg Config) *Engine {
	e := &Engine{
		git:      git,
		store:    store,
		analyzer: cfg.Analyzer,
		logger:   cfg.Logger,
	}
	if e.analyzer == nil {
		e.analyzer = NoopAnalyzer{}
	}
	if e.logger == nil {
		e.logger = nopLogger{}
	}
	return e
}

// Detect compares branch against base and produces a full conflict report:
// files changed on both sides since their common ancestor, an approximate
// conflicting-region count from a merge preview, per-file categories, a
// severity score, and overlaps with other active sessions.
func (e *Engine) Detect(ctx context.Context, branch, base string) (*models.ConflictReport, error) {
	ancestor, err := e.git.MergeBase(base, branch)
	if err != nil {
		return nil, fmt.Errorf("find common ancestor of %s and %s: %w", base, branch, err)
	}
	branchPaths, err := e.git.ChangedPaths(ancestor, branch)
	if err != nil {
		return nil, err
	}
	basePaths, err := e.git.ChangedPaths(ancestor, base)
	if err != nil {
		return nil, err
	}
	candidates := intersect(branchPaths, basePaths)

	markers := 0
	if len(candidates) > 0 {
		preview, err := e.git.MergeTree(ctx, ancestor, base, branch)
		if err != nil {
			return nil, fmt.Errorf("preview merge of %s into %s: %w", branch, base, err)
		}
		markers = gitquery.CountConflictMarkers(preview)
	}

	report := &models.ConflictReport{
		Branch:      branch,
		Base:        base,
		MergeBase:   ancestor,
		Files:       make([]models.ConflictFile, 0, len(candidates)),
		MarkerCount: markers,
		Categories:  make(map[models.Category]int),
		GeneratedAt: time.Now().UTC(),
	}
	for _, path := range candidates {
		cat := Categorize(path)
		report.Files = append(report.Files, models.ConflictFile{Path: path, Category: cat})
		report.Categories[cat]++
	}
	report.Score = Score(len(candidates), markers)
	report.Severity = Level(report.Score)

	findings, err := e.analyzer.Analyze(ctx, candidates)
	if err != nil {
		e.logger.Warning("semantic analysis failed: %v", err)
	} else {
		report.Findings = findings
	}

	report.Overlaps = e.overlapsForBranch(ctx, branch)
	return report, nil
}

// overlapsForBranch reports files the branch's session shares with other
// active sessions. Store failures degrade to no overlap data rather than
// blocking detection.
func (e *Engine) overlapsForBranch(ctx context.Context, branch string) []models.Overlap {
	sessions, err := e.store.ListSessions(ctx)
	if err != nil {
		e.logger.Warning("cross-session check skipped: %v", err)
		return nil
	}

	var subject *models.Session
	for _, s := range sessions {
		if s.Branch == branch && s.Status == models.SessionStatusActive {
			subject = s
			break
		}
	}
	if subject == nil {
		return nil
	}

	var overlaps []models.Overlap
	for _, other := range sessions {
		if other.SessionID == subject.SessionID || other.Status != models.SessionStatusActive {
			continue
		}
		if shared := intersect(subject.FilesModified, other.FilesModified); len(shared) > 0 {
			overlaps = append(overlaps, models.Overlap{SessionID: other.SessionID, Files: shared})
		}
	}
	return overlaps
}

// CrossSessionCheck intersects the modified-file sets of every pair of
// active sessions. Each overlapping pair is reported exactly once, in
// session-id order.
func (e *Engine) CrossSessionCheck(ctx context.Context) ([]models.OverlapPair, error) {
	sessions, err := e.store.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var active []*models.Session
	for _, s := range sessions {
		if s.Status == models.SessionStatusActive {
			active = append(active, s)
		}
	}

	var pairs []models.OverlapPair
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			shared := intersect(active[i].FilesModified, active[j].FilesModified)
			if len(shared) == 0 {
				continue
			}
			pairs = append(pairs, models.OverlapPair{
				SessionA: active[i].SessionID,
				SessionB: active[j].SessionID,
				Files:    shared,
			})
		}
	}
	return pairs, nil
}

// SuggestStrategy recommends how to land branch on base from the size of the
// divergence: small work squashes, medium work rebases for linear history,
// anything larger keeps a merge commit.
func (e *Engine) SuggestStrategy(ctx context.Context, branch, base string) (models.Strategy, error) {
	commits, err := e.git.CommitsAhead(ctx, base, branch)
	if err != nil {
		return "", err
	}
	ancestor, err := e.git.MergeBase(base, branch)
	if err != nil {
		return "", err
	}
	paths, err := e.git.ChangedPaths(ancestor, branch)
	if err != nil {
		return "", err
	}

	switch {
	case commits <= 5 && len(paths) <= 10:
		return models.StrategySquash, nil
	case commits <= 20 && len(paths) <= 50:
		return models.StrategyRebase, nil
	default:
		return models.StrategyMergeCommit, nil
	}
}

// SaveReport persists a report as a JSON artifact for later audit and
// returns its storage path.
func (e *Engine) SaveReport(ctx context.Context, report *models.ConflictReport) (string, error) {
	return e.store.SaveReport(ctx, report)
}

// Score computes the 0-100 severity score from the file-overlap count and
// the conflict-marker estimate.
func Score(files, markers int) int {
	score := 10*files + 5*markers
	if score > 100 {
		score = 100
	}
	return score
}

// Level maps a score to its qualitative severity: LOW up to 30, MEDIUM up
// to 70, HIGH above.
func Level(score int) models.Severity {
	switch {
	case score <= 30:
		return models.SeverityLow
	case score <= 70:
		return models.SeverityMedium
	default:
		return models.SeverityHigh
	}
}

// intersect returns the sorted intersection of two path sets.
func intersect(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, p := range a {
		seen[p] = true
	}
	var out []string
	for _, p := range b {
		if seen[p] {
			out = append(out, p)
			seen[p] = false
		}
	}
	sort.Strings(out)
	return out
}
