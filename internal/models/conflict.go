package models

import "time"

// Severity classifies overall conflict risk for a branch pair.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Category classifies a conflicting file by expected resolution difficulty.
type Category string

const (
	CategoryTrivial  Category = "trivial"
	CategorySimple   Category = "simple"
	CategoryComplex  Category = "complex"
	CategoryBreaking Category = "breaking"
)

// Strategy is a suggested approach for landing a branch on its base.
type Strategy string

const (
	StrategySquash      Strategy = "squash"
	StrategyRebase      Strategy = "rebase"
	StrategyMergeCommit Strategy = "merge-commit"
)

// ConflictFile is one path modified on both sides since divergence.
type ConflictFile struct {
	Path     string   `json:"path"`
	Category Category `json:"category"`
}

// Overlap reports files a branch's session shares with another active session.
type Overlap struct {
	SessionID string   `json:"session_id"`
	Files     []string `json:"files"`
}

// OverlapPair reports files two active sessions have both modified.
type OverlapPair struct {
	SessionA string   `json:"session_a"`
	SessionB string   `json:"session_b"`
	Files    []string `json:"files"`
}

// SemanticFinding is an advisory note produced by a semantic analyzer.
type SemanticFinding struct {
	Path   string `json:"path"`
	Detail string `json:"detail"`
}

// ConflictReport is the advisory result of conflict detection between a
// branch and its base. MarkerCount approximates the number of conflicting
// regions by counting conflict-marker lines in a merge preview; it is an
// estimate, not an exact region count.
type ConflictReport struct {
	ID          string            `json:"id"`
	Branch      string            `json:"branch"`
	Base        string            `json:"base"`
	MergeBase   string            `json:"merge_base"`
	Files       []ConflictFile    `json:"files"`
	MarkerCount int               `json:"marker_count"`
	Score       int               `json:"score"`
	Severity    Severity          `json:"severity"`
	Categories  map[Category]int  `json:"categories"`
	Overlaps    []Overlap         `json:"overlaps,omitempty"`
	Findings    []SemanticFinding `json:"findings,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Clean reports whether detection found no overlapping files at all.
func (r *ConflictReport) Clean() bool {
	return len(r.Files) == 0
}
