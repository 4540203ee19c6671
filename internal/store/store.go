package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codevcli/codev/internal/models"
)

// Sentinel errors for session lookups and corrupt documents.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrCorruptState    = errors.New("corrupt state")
	ErrNoBackups       = errors.New("no backups available")
)

// CorruptStateError reports a state document that failed to parse or
// validate on load. Mutations are refused until the document is repaired
// or restored from a backup.
type CorruptStateError struct {
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt state document %s: %v (restore from a backup or repair it by hand)", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

// Is lets errors.Is match against ErrCorruptState.
func (e *CorruptStateError) Is(target error) bool { return target == ErrCorruptState }

// BackupInfo describes one archived copy of the global state document.
type BackupInfo struct {
	Name      string
	Path      string
	Size      int64
	CreatedAt time.Time
}

// ValidationReport summarizes a state validation pass.
type ValidationReport struct {
	Valid           bool
	Problems        []string
	PrunedTerminals []string
}

// SweepOptions controls stale-session sweeping.
type SweepOptions struct {
	OlderThan     time.Duration // inactivity threshold; 0 uses DefaultSweepAfter
	IncludePaused bool          // also sweep paused sessions
	DryRun        bool          // report candidates without closing them
}

// SweepResult describes one session considered by a sweep.
type SweepResult struct {
	SessionID    string
	LastActivity time.Time
	Closed       bool
}

// Store is the persistence boundary for coordination state. All documents
// live under one state directory and every write is atomic, so a reader
// never observes a partially written document.
type Store interface {
	// Global document
	LoadState(ctx context.Context) (*models.GlobalState, error)
	SaveState(ctx context.Context, mutate func(*models.GlobalState) error) (*models.GlobalState, error)
	Get(ctx context.Context, path string) (any, error)
	Set(ctx context.Context, path string, value any) error

	// Session documents
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	UpdateSession(ctx context.Context, id string, mutate func(*models.Session) error) (*models.Session, error)
	ListSessions(ctx context.Context) ([]*models.Session, error)
	CloseSession(ctx context.Context, id string) error
	SweepStale(ctx context.Context, opts SweepOptions) ([]SweepResult, error)

	// Maintenance
	Validate(ctx context.Context) (*ValidationReport, error)
	Backup(ctx context.Context) (string, error)
	ListBackups(ctx context.Context) ([]BackupInfo, error)
	Restore(ctx context.Context, name string) error

	// Artifacts
	SaveReport(ctx context.Context, report *models.ConflictReport) (string, error)

	// Lifecycle
	Init(ctx context.Context) error
	Root() string
}
