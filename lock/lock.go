// Package lock provides exclusive ownership of a store for the lifetime of
// an open handle.
//
// Local stores are guarded by an advisory lock on a sibling "<name>.lock"
// file. Remote stores can use a lease held in DynamoDB (see
// blobstore/s3.DynamoLock). A second owner fails with ErrLocked instead of
// blocking.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrLocked is returned when another owner holds the lock.
var ErrLocked = errors.New("resource is locked by another owner")

// Locker acquires and releases exclusive ownership.
type Locker interface {
	// Lock acquires the lock without blocking. It fails with ErrLocked when
	// the lock is held elsewhere.
	Lock(ctx context.Context) error
	// Unlock releases the lock. Unlocking a lock that is not held is a no-op.
	Unlock(ctx context.Context) error
}

// Nop is a Locker that never contends. Used for in-memory stores.
type Nop struct{}

func (Nop) Lock(context.Context) error   { return nil }
func (Nop) Unlock(context.Context) error { return nil }

// FileLock is an advisory, non-blocking, exclusive lock on a file.
type FileLock struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// NewFileLock returns a lock on path. The file is created on Lock.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.path }

// Lock acquires the lock.
func (l *FileLock) Lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f != nil {
		return fmt.Errorf("%w: %s already held by this handle", ErrLocked, l.path)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600) //nolint:gosec // G304: caller supplied path
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("%s: %w", l.path, err)
	}
	l.f = f
	return nil
}

// Unlock releases the lock and removes the lock file.
func (l *FileLock) Unlock(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil

	// Unlink while still holding the lock so no other owner can lock the
	// file we are about to remove.
	rmErr := removeLocked(l.path)
	if errors.Is(rmErr, os.ErrNotExist) {
		rmErr = nil
	}
	return errors.Join(rmErr, unlockFile(f), f.Close())
}
