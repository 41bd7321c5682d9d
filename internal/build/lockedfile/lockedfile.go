// Package lockedfile provides a process-exclusive advisory lock on a file.
package lockedfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danjacques/gofslock/fslock"
)

var (
	// ErrContended is returned when the lock stays held past the timeout.
	ErrContended = errors.New("lock contended")
)

// pollInterval is how often a held lock is retried.
const pollInterval = 50 * time.Millisecond

// A Mutex is an exclusive lock held on a file path. It works across
// processes and across goroutines of the same process.
type Mutex struct {
	Path string
}

// MutexAt returns a Mutex locking path.
func MutexAt(path string) *Mutex {
	return &Mutex{Path: path}
}

// Lock acquires the lock without waiting. It returns ErrContended if another
// holder has it.
func (mu *Mutex) Lock() (unlock func(), err error) {
	return mu.LockContext(context.Background(), 0)
}

// LockContext acquires the lock, retrying until timeout elapses. A zero
// timeout tries once. If ctx ends first, the context error is returned.
func (mu *Mutex) LockContext(ctx context.Context, timeout time.Duration) (unlock func(), err error) {
	if err := os.MkdirAll(filepath.Dir(mu.Path), 0o755); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	blocker := func() error {
		if time.Now().After(deadline) {
			return fslock.ErrLockHeld
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
			return nil
		}
	}

	h, err := fslock.LockBlocking(mu.Path, blocker)
	switch {
	case errors.Is(err, fslock.ErrLockHeld):
		return nil, fmt.Errorf("%s: %w after %v", mu.Path, ErrContended, timeout)
	case err != nil:
		return nil, err
	}
	return func() { h.Unlock() }, nil
}
