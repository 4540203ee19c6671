package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/codevcli/codev/internal/lockdir"
	"github.com/codevcli/codev/internal/models"
)

// Defaults for tunable store behavior.
const (
	DefaultLockTimeout   = 10 * time.Second
	DefaultRetention     = 10
	DefaultCompressAfter = 30 * 24 * time.Hour
	DefaultSweepAfter    = 7 * 24 * time.Hour
)

const (
	stateFile   = "state.json"
	sessionsDir = "sessions"
	historyDir  = "history"
	backupsDir  = "backups"
	locksSubdir = "locks"
	reportsDir  = "reports"

	stateLockName = "state"

	// Nanosecond precision keeps back-to-back archive names unique while
	// still sorting lexically in creation order.
	tsFormat = "20060102-150405.000000000"
)

// LocksDir returns the lock-token directory under a state root.
func LocksDir(root string) string { return filepath.Join(root, locksSubdir) }

// Config tunes optional store behavior. Zero values use the defaults.
type Config struct {
	LockTimeout   time.Duration
	Retention     int
	CompressAfter time.Duration
}

// FileStore implements Store with JSON documents under a single state
// directory. Every write goes through a write-temp-validate-rename
// sequence, so readers can skip locking entirely.
type FileStore struct {
	root          string
	locker        lockdir.Locker
	lockTimeout   time.Duration
	retention     int
	compressAfter time.Duration
}

// NewFileStore creates a store rooted at the given directory.
func NewFileStore(root string, locker lockdir.Locker, cfg Config) *FileStore {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.CompressAfter <= 0 {
		cfg.CompressAfter = DefaultCompressAfter
	}
	return &FileStore{
		root:          root,
		locker:        locker,
		lockTimeout:   cfg.LockTimeout,
		retention:     cfg.Retention,
		compressAfter: cfg.CompressAfter,
	}
}

// Root returns the state directory.
func (f *FileStore) Root() string { return f.root }

// Init creates the directory layout and an empty state document on first
// use. It is idempotent and safe to race.
func (f *FileStore) Init(ctx context.Context) error {
	dirs := []string{
		f.root,
		f.sessionsPath(),
		filepath.Join(f.root, historyDir),
		filepath.Join(f.root, backupsDir),
		LocksDir(f.root),
		filepath.Join(f.root, reportsDir),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state directory: %w", err)
		}
	}
	return f.withStateLock(ctx, func() error {
		if _, err := os.Stat(f.statePath()); err == nil {
			return nil
		}
		return f.writeState(models.NewGlobalState(time.Now().UTC()))
	})
}

// LoadState reads the global document. Reads take no lock: the rename on
// the write side guarantees a complete document.
func (f *FileStore) LoadState(ctx context.Context) (*models.GlobalState, error) {
	return f.readState()
}

// SaveState applies mutate to the current document and persists the result
// while holding the state lock.
func (f *FileStore) SaveState(ctx context.Context, mutate func(*models.GlobalState) error) (*models.GlobalState, error) {
	var out *models.GlobalState
	err := f.withStateLock(ctx, func() error {
		state, err := f.readState()
		if err != nil {
			return err
		}
		if err := mutate(state); err != nil {
			return err
		}
		if err := state.Validate(); err != nil {
			return err
		}
		if err := f.writeState(state); err != nil {
			return err
		}
		out = state
		return nil
	})
	return out, err
}

// Get returns the value at a dotted path within the global document, e.g.
// "stats.total_sessions".
func (f *FileStore) Get(ctx context.Context, path string) (any, error) {
	state, err := f.readState()
	if err != nil {
		return nil, err
	}
	doc, err := stateToMap(state)
	if err != nil {
		return nil, err
	}
	var cur any = doc
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, &models.ValidationError{Field: path, Reason: "path does not address an object"}
		}
		next, ok := obj[key]
		if !ok {
			return nil, &models.ValidationError{Field: path, Reason: fmt.Sprintf("unknown key %q", key)}
		}
		cur = next
	}
	return cur, nil
}

// Set replaces the value at a dotted path, then re-decodes the whole
// document into its typed form. A write that does not fit the schema is
// rejected before anything touches disk.
func (f *FileStore) Set(ctx context.Context, path string, value any) error {
	keys := strings.Split(path, ".")
	for _, key := range keys {
		if key == "" {
			return &models.ValidationError{Field: "path", Reason: "empty key segment"}
		}
	}
	return f.withStateLock(ctx, func() error {
		state, err := f.readState()
		if err != nil {
			return err
		}
		doc, err := stateToMap(state)
		if err != nil {
			return err
		}
		parent := doc
		for _, key := range keys[:len(keys)-1] {
			next, ok := parent[key].(map[string]any)
			if !ok {
				return &models.ValidationError{Field: path, Reason: fmt.Sprintf("key %q does not address an object", key)}
			}
			parent = next
		}
		parent[keys[len(keys)-1]] = value

		updated, err := mapToState(doc)
		if err != nil {
			return &models.ValidationError{Field: path, Reason: err.Error()}
		}
		if err := updated.Validate(); err != nil {
			return err
		}
		return f.writeState(updated)
	})
}

// CreateSession persists a new session document and registers it in the
// global active set.
func (f *FileStore) CreateSession(ctx context.Context, session *models.Session) error {
	if session == nil {
		return &models.ValidationError{Field: "session", Reason: "must not be nil"}
	}
	if err := validDocumentID(session.SessionID); err != nil {
		return err
	}
	if err := session.Validate(); err != nil {
		return err
	}
	return f.withStateLock(ctx, func() error {
		state, err := f.readState()
		if err != nil {
			return err
		}
		if state.HasTerminal(session.SessionID) {
			return fmt.Errorf("session %q: %w", session.SessionID, ErrSessionExists)
		}
		if _, err := os.Stat(f.sessionPath(session.SessionID)); err == nil {
			return fmt.Errorf("session %q: %w", session.SessionID, ErrSessionExists)
		}
		if err := f.writeSession(session); err != nil {
			return err
		}
		state.AddTerminal(session.SessionID)
		if session.Branch != "" && !state.HasBranch(session.Branch) {
			state.AddBranch(session.Branch)
			state.Stats.TotalBranches++
		}
		state.Stats.TotalSessions++
		return f.writeState(state)
	})
}

// GetSession reads one session document.
func (f *FileStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	if err := validDocumentID(id); err != nil {
		return nil, err
	}
	return f.readSession(id)
}

// UpdateSession applies mutate to the session document under its own lock.
// The session id cannot be changed.
func (f *FileStore) UpdateSession(ctx context.Context, id string, mutate func(*models.Session) error) (*models.Session, error) {
	if err := validDocumentID(id); err != nil {
		return nil, err
	}
	var out *models.Session
	err := lockdir.WithLock(ctx, f.locker, sessionLockName(id), f.lockTimeout, func() error {
		session, err := f.readSession(id)
		if err != nil {
			return err
		}
		if err := mutate(session); err != nil {
			return err
		}
		if session.SessionID != id {
			return &models.ValidationError{Field: "session_id", Reason: "cannot be changed"}
		}
		if err := session.Validate(); err != nil {
			return err
		}
		if err := f.writeSession(session); err != nil {
			return err
		}
		out = session
		return nil
	})
	return out, err
}

// ListSessions reads every live session document, ordered by id.
func (f *FileStore) ListSessions(ctx context.Context) ([]*models.Session, error) {
	entries, err := os.ReadDir(f.sessionsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sessions directory: %w", err)
	}
	var sessions []*models.Session
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		session, err := f.readSession(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].SessionID < sessions[j].SessionID })
	return sessions, nil
}

// CloseSession marks the session closed, archives its document under
// history/, and removes it from the global active set.
func (f *FileStore) CloseSession(ctx context.Context, id string) error {
	if err := validDocumentID(id); err != nil {
		return err
	}
	return f.withStateLock(ctx, func() error {
		return lockdir.WithLock(ctx, f.locker, sessionLockName(id), f.lockTimeout, func() error {
			session, err := f.readSession(id)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			session.Status = models.SessionStatusClosed
			session.LastActivity = now

			data, err := json.MarshalIndent(session, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal session %s: %w", id, err)
			}
			archive := filepath.Join(f.root, historyDir, fmt.Sprintf("%s-%s.json", id, now.Format(tsFormat)))
			if err := writeDocAtomic(archive, append(data, '\n')); err != nil {
				return err
			}
			if err := os.Remove(f.sessionPath(id)); err != nil {
				return fmt.Errorf("remove session document: %w", err)
			}

			state, err := f.readState()
			if err != nil {
				return err
			}
			state.RemoveTerminal(id)
			if session.Branch != "" {
				// The branch stays active while any other session works on it.
				others, err := f.ListSessions(ctx)
				if err != nil {
					return err
				}
				inUse := false
				for _, other := range others {
					if other.Branch == session.Branch {
						inUse = true
						break
					}
				}
				if !inUse {
					state.RemoveBranch(session.Branch)
				}
			}
			if err := f.writeState(state); err != nil {
				return err
			}

			f.compressHistory()
			return nil
		})
	})
}

// SweepStale closes sessions whose last activity is older than the
// threshold. Active sessions qualify; paused ones only when requested.
func (f *FileStore) SweepStale(ctx context.Context, opts SweepOptions) ([]SweepResult, error) {
	olderThan := opts.OlderThan
	if olderThan <= 0 {
		olderThan = DefaultSweepAfter
	}
	sessions, err := f.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	var results []SweepResult
	for _, session := range sessions {
		if !session.LastActivity.Before(cutoff) {
			continue
		}
		switch session.Status {
		case models.SessionStatusActive:
		case models.SessionStatusPaused:
			if !opts.IncludePaused {
				continue
			}
		default:
			continue
		}
		result := SweepResult{SessionID: session.SessionID, LastActivity: session.LastActivity}
		if !opts.DryRun {
			if err := f.CloseSession(ctx, session.SessionID); err != nil {
				return results, err
			}
			result.Closed = true
		}
		results = append(results, result)
	}
	return results, nil
}

// Validate checks every document parses and heals the global active set:
// terminal ids with no session document are pruned. Session documents are
// diagnosed but never healed automatically.
func (f *FileStore) Validate(ctx context.Context) (*ValidationReport, error) {
	report := &ValidationReport{Valid: true}
	err := f.withStateLock(ctx, func() error {
		state, err := f.readState()
		if err != nil {
			return err
		}
		var pruned []string
		for _, id := range append([]string{}, state.ActiveTerminals...) {
			if _, statErr := os.Stat(f.sessionPath(id)); os.IsNotExist(statErr) {
				state.RemoveTerminal(id)
				pruned = append(pruned, id)
			}
		}
		if len(pruned) > 0 {
			if err := f.writeState(state); err != nil {
				return err
			}
			report.PrunedTerminals = pruned
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(f.sessionsPath())
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read sessions directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if _, err := f.readSession(strings.TrimSuffix(entry.Name(), ".json")); err != nil {
			report.Valid = false
			report.Problems = append(report.Problems, err.Error())
		}
	}

	f.removeStaleTemps()
	return report, nil
}

// Backup copies the current state document into backups/ and applies the
// retention policy.
func (f *FileStore) Backup(ctx context.Context) (string, error) {
	var path string
	err := f.withStateLock(ctx, func() error {
		p, err := f.backupLocked()
		path = p
		return err
	})
	return path, err
}

// ListBackups returns available backups, newest first.
func (f *FileStore) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	dir := filepath.Join(f.root, backupsDir)
	names := f.backupNames()
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	var infos []BackupInfo
	for _, name := range names {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		infos = append(infos, BackupInfo{Name: name, Path: path, Size: info.Size(), CreatedAt: info.ModTime()})
	}
	return infos, nil
}

// Restore replaces the state document with a backup. Whatever is current
// is preserved first, so a bad restore can itself be undone. An empty name
// restores the most recent backup.
func (f *FileStore) Restore(ctx context.Context, name string) error {
	return f.withStateLock(ctx, func() error {
		names := f.backupNames()
		if len(names) == 0 {
			return ErrNoBackups
		}
		if name == "" {
			sort.Strings(names)
			name = names[len(names)-1]
		}
		path := filepath.Join(f.root, backupsDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("backup %q not found", name)
			}
			return fmt.Errorf("read backup: %w", err)
		}

		// Refuse to restore a document that would immediately load corrupt.
		var state models.GlobalState
		if err := json.Unmarshal(data, &state); err != nil {
			return &CorruptStateError{Path: path, Err: err}
		}
		state.Normalize()
		if err := state.Validate(); err != nil {
			return &CorruptStateError{Path: path, Err: err}
		}

		// Preserve the current document. A corrupt one is saved aside
		// instead of entering the backup rotation.
		if cur, readErr := os.ReadFile(f.statePath()); readErr == nil {
			if json.Valid(cur) {
				if _, err := f.backupLocked(); err != nil {
					return err
				}
			} else {
				aside := filepath.Join(f.root, backupsDir, fmt.Sprintf("corrupt-%s.json", time.Now().UTC().Format(tsFormat)))
				_ = os.WriteFile(aside, cur, 0o644)
			}
		}
		return writeDocAtomic(f.statePath(), data)
	})
}

// SaveReport persists a conflict report as a JSON artifact under reports/.
func (f *FileStore) SaveReport(ctx context.Context, report *models.ConflictReport) (string, error) {
	if report == nil {
		return "", &models.ValidationError{Field: "report", Reason: "must not be nil"}
	}
	if report.ID == "" {
		report.ID = NewULID()
	}
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	path := filepath.Join(f.root, reportsDir, fmt.Sprintf("report-%s.json", report.ID))
	if err := writeDocAtomic(path, append(data, '\n')); err != nil {
		return "", err
	}
	return path, nil
}

// NewULID generates a lexically sortable unique id.
func NewULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

func (f *FileStore) statePath() string { return filepath.Join(f.root, stateFile) }

func (f *FileStore) sessionsPath() string { return filepath.Join(f.root, sessionsDir) }

func (f *FileStore) sessionPath(id string) string {
	return filepath.Join(f.sessionsPath(), id+".json")
}

func sessionLockName(id string) string { return "session-" + id }

func (f *FileStore) withStateLock(ctx context.Context, fn func() error) error {
	return lockdir.WithLock(ctx, f.locker, stateLockName, f.lockTimeout, fn)
}

func (f *FileStore) readState() (*models.GlobalState, error) {
	path := f.statePath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("state not initialized at %s: %w", f.root, err)
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var state models.GlobalState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, &CorruptStateError{Path: path, Err: err}
	}
	state.Normalize()
	if err := state.Validate(); err != nil {
		return nil, &CorruptStateError{Path: path, Err: err}
	}
	return &state, nil
}

func (f *FileStore) writeState(state *models.GlobalState) error {
	state.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return writeDocAtomic(f.statePath(), append(data, '\n'))
}

func (f *FileStore) readSession(id string) (*models.Session, error) {
	path := f.sessionPath(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session %q: %w", id, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, &CorruptStateError{Path: path, Err: err}
	}
	session.Normalize()
	if err := session.Validate(); err != nil {
		return nil, &CorruptStateError{Path: path, Err: err}
	}
	return &session, nil
}

func (f *FileStore) writeSession(session *models.Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", session.SessionID, err)
	}
	return writeDocAtomic(f.sessionPath(session.SessionID), append(data, '\n'))
}

func (f *FileStore) backupLocked() (string, error) {
	data, err := os.ReadFile(f.statePath())
	if err != nil {
		return "", fmt.Errorf("read state: %w", err)
	}
	if !json.Valid(data) {
		return "", &CorruptStateError{Path: f.statePath(), Err: fmt.Errorf("not valid JSON")}
	}
	name := fmt.Sprintf("state-%s.json", time.Now().UTC().Format(tsFormat))
	path := filepath.Join(f.root, backupsDir, name)
	if err := writeDocAtomic(path, data); err != nil {
		return "", err
	}
	f.enforceRetention()
	return path, nil
}

// enforceRetention keeps only the newest backups. Names embed a sortable
// timestamp, so lexical order is creation order.
func (f *FileStore) enforceRetention() {
	names := f.backupNames()
	if len(names) <= f.retention {
		return
	}
	sort.Strings(names)
	for _, name := range names[:len(names)-f.retention] {
		_ = os.Remove(filepath.Join(f.root, backupsDir, name))
	}
}

func (f *FileStore) backupNames() []string {
	entries, err := os.ReadDir(filepath.Join(f.root, backupsDir))
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "state-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, name)
	}
	return names
}

// compressHistory gzips archived session documents older than the
// compression window. Best effort.
func (f *FileStore) compressHistory() {
	dir := filepath.Join(f.root, historyDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-f.compressAfter)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		_ = gzipFile(filepath.Join(dir, entry.Name()))
	}
}

func gzipFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if err := os.WriteFile(path+".gz", buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Remove(path)
}

// removeStaleTemps deletes temp files abandoned by interrupted writers.
// Fresh temps are left alone in case a writer is mid-rename right now.
func (f *FileStore) removeStaleTemps() {
	cutoff := time.Now().Add(-time.Hour)
	for _, dir := range []string{f.root, f.sessionsPath()} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.Contains(entry.Name(), ".tmp-") {
				continue
			}
			info, err := entry.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			_ = os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
}

// writeDocAtomic writes data through a uniquely named sibling temp file,
// fsyncs it, re-reads it to confirm it parses as JSON, then renames it
// over the target. A crash at any point leaves either the old document or
// a stray temp file, never a torn document.
func writeDocAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create document directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, fmt.Sprintf("%s.tmp-%d-*", filepath.Base(path), os.Getpid()))
	if err != nil {
		return fmt.Errorf("create temp document: %w", err)
	}
	tmpPath := tmp.Name()
	keep := false
	defer func() {
		if !keep {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp document: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp document: %w", err)
	}

	verify, err := os.ReadFile(tmpPath)
	if err != nil {
		return fmt.Errorf("verify temp document: %w", err)
	}
	if !json.Valid(verify) {
		return fmt.Errorf("verify temp document %s: not valid JSON", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace document: %w", err)
	}
	keep = true
	return nil
}

func stateToMap(state *models.GlobalState) (map[string]any, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return doc, nil
}

func mapToState(doc map[string]any) (*models.GlobalState, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var state models.GlobalState
	if err := dec.Decode(&state); err != nil {
		return nil, err
	}
	state.Normalize()
	return &state, nil
}

func validDocumentID(id string) error {
	if id == "" {
		return &models.ValidationError{Field: "session_id", Reason: "must not be empty"}
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return &models.ValidationError{Field: "session_id", Reason: "must not contain path elements"}
	}
	return nil
}
