package lockdir

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default timing for lock acquisition. Staleness is judged from the owner
// metadata's acquisition time, falling back to the token's mtime.
const (
	DefaultStaleAfter   = 5 * time.Minute
	DefaultPollInterval = 500 * time.Millisecond
)

const ownerFile = "owner.json"

// Owner describes the process holding a lock.
type Owner struct {
	PID        int       `json:"pid"`
	Host       string    `json:"host"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Handle represents a held lock.
type Handle struct {
	Name       string
	Path       string
	AcquiredAt time.Time

	release func() error
}

// Release frees the lock. Releasing twice is harmless.
func (h *Handle) Release() error {
	if h.release == nil {
		return nil
	}
	r := h.release
	h.release = nil
	return r()
}

// LockTimeoutError reports a failed acquisition after the caller's wait
// budget was exhausted. It is never retried internally.
type LockTimeoutError struct {
	Name     string
	Waited   time.Duration
	Attempts int
	Timeout  time.Duration
	Holder   *Owner
}

func (e *LockTimeoutError) Error() string {
	msg := fmt.Sprintf("lock %q: timed out after %s (attempts=%d timeout=%s)",
		e.Name, e.Waited.Truncate(time.Millisecond), e.Attempts, e.Timeout)
	if e.Holder != nil {
		msg += fmt.Sprintf(", held by pid %d on %s since %s",
			e.Holder.PID, e.Holder.Host, e.Holder.AcquiredAt.Format(time.RFC3339))
	}
	return msg
}

// Locker provides named mutual exclusion between processes.
type Locker interface {
	Acquire(ctx context.Context, name string, timeout time.Duration) (*Handle, error)
	Release(name string) error
}

// Config tunes lock acquisition behavior. Zero values use the defaults.
type Config struct {
	StaleAfter   time.Duration
	PollInterval time.Duration
}

// DirLocker implements Locker with directory tokens under a locks root.
// Creating the token is a single mkdir, which the OS makes atomic, so at
// most one process can hold a name at a time.
type DirLocker struct {
	root         string
	staleAfter   time.Duration
	pollInterval time.Duration
}

// NewDirLocker creates a locker rooted at the given directory.
func NewDirLocker(root string, cfg Config) *DirLocker {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &DirLocker{
		root:         root,
		staleAfter:   cfg.StaleAfter,
		pollInterval: cfg.PollInterval,
	}
}

// Acquire blocks until the named lock is obtained, the timeout elapses, or
// ctx is cancelled. Tokens older than the staleness threshold are reclaimed.
func (d *DirLocker) Acquire(ctx context.Context, name string, timeout time.Duration) (*Handle, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return nil, fmt.Errorf("create locks directory: %w", err)
	}

	path := d.lockPath(name)
	start := time.Now()
	attempts := 0
	for {
		attempts++
		err := os.Mkdir(path, 0o755)
		if err == nil {
			now := time.Now().UTC()
			d.writeOwner(path, now)
			return &Handle{
				Name:       name,
				Path:       path,
				AcquiredAt: now,
				release:    func() error { return d.Release(name) },
			}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("acquire lock %q: %w", name, err)
		}

		holder, age := d.inspect(path)
		if age > d.staleAfter {
			d.reclaim(path)
			continue
		}

		if waited := time.Since(start); waited >= timeout {
			return nil, &LockTimeoutError{
				Name:     name,
				Waited:   waited,
				Attempts: attempts,
				Timeout:  timeout,
				Holder:   holder,
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.pollInterval):
		}
	}
}

// Release removes the named lock token. Releasing a lock that is not held
// is not an error.
func (d *DirLocker) Release(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := os.RemoveAll(d.lockPath(name)); err != nil {
		return fmt.Errorf("release lock %q: %w", name, err)
	}
	return nil
}

func (d *DirLocker) lockPath(name string) string {
	return filepath.Join(d.root, name+".lock")
}

// writeOwner records holder metadata inside the token. Best effort: the
// staleness check falls back to the token's mtime when it is unreadable.
func (d *DirLocker) writeOwner(path string, now time.Time) {
	host, _ := os.Hostname()
	data, err := json.Marshal(Owner{PID: os.Getpid(), Host: host, AcquiredAt: now})
	if err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(path, ownerFile), append(data, '\n'), 0o644)
}

// inspect returns the current holder (when readable) and the token's age.
func (d *DirLocker) inspect(path string) (*Owner, time.Duration) {
	if data, err := os.ReadFile(filepath.Join(path, ownerFile)); err == nil {
		var owner Owner
		if jsonErr := json.Unmarshal(data, &owner); jsonErr == nil && !owner.AcquiredAt.IsZero() {
			return &owner, time.Since(owner.AcquiredAt)
		}
	}
	if info, err := os.Stat(path); err == nil {
		return nil, time.Since(info.ModTime())
	}
	// Token vanished between mkdir failing and the stat; treat as fresh
	// and let the next mkdir attempt settle it.
	return nil, 0
}

// reclaim removes a stale token. The token is renamed aside first; rename
// is atomic, so concurrent waiters cannot remove a lock that a faster
// waiter has already reacquired.
func (d *DirLocker) reclaim(path string) {
	aside := fmt.Sprintf("%s.reclaimed-%d-%d", path, os.Getpid(), time.Now().UnixNano())
	if err := os.Rename(path, aside); err != nil {
		return
	}
	_ = os.RemoveAll(aside)
}

// WithLock runs fn while holding the named lock.
func WithLock(ctx context.Context, l Locker, name string, timeout time.Duration, fn func() error) error {
	handle, err := l.Acquire(ctx, name, timeout)
	if err != nil {
		return err
	}
	defer func() { _ = handle.Release() }()
	return fn()
}

func validName(name string) error {
	if name == "" {
		return fmt.Errorf("lock name must not be empty")
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("lock name %q must not contain path elements", name)
	}
	return nil
}
