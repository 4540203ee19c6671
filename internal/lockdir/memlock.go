package lockdir

import (
	"context"
	"os"
	"sync"
	"time"
)

// MemLocker implements Locker with an in-process table. It provides no
// cross-process exclusion and exists for tests and dry runs.
type MemLocker struct {
	mu   sync.Mutex
	held map[string]Owner
}

// NewMemLocker creates an empty in-process locker.
func NewMemLocker() *MemLocker {
	return &MemLocker{held: make(map[string]Owner)}
}

// Acquire obtains the named lock, polling until the timeout elapses.
func (m *MemLocker) Acquire(ctx context.Context, name string, timeout time.Duration) (*Handle, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	start := time.Now()
	attempts := 0
	for {
		attempts++
		m.mu.Lock()
		if _, taken := m.held[name]; !taken {
			now := time.Now().UTC()
			m.held[name] = Owner{PID: os.Getpid(), AcquiredAt: now}
			m.mu.Unlock()
			return &Handle{
				Name:       name,
				AcquiredAt: now,
				release:    func() error { return m.Release(name) },
			}, nil
		}
		holder := m.held[name]
		m.mu.Unlock()

		if waited := time.Since(start); waited >= timeout {
			return nil, &LockTimeoutError{
				Name:     name,
				Waited:   waited,
				Attempts: attempts,
				Timeout:  timeout,
				Holder:   &holder,
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

// Release frees the named lock. Releasing an unheld name is not an error.
func (m *MemLocker) Release(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.held, name)
	m.mu.Unlock()
	return nil
}
