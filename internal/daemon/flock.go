package daemon

import (
	"context"
	"errors"
	"os"
	"time"
)

// ErrLockHeld is returned by AcquireLock when another process holds the lock.
var ErrLockHeld = errors.New("lock held by another process")

// FileLock holds an exclusive file lock that auto-releases on process death.
// It serializes `alfred daemon start` so concurrent starts spawn one daemon.
type FileLock struct {
	path string
	file *os.File
}

// LockPath returns the path to the lock file.
func (l *FileLock) LockPath() string {
	return l.path
}

// AcquireLockWait retries AcquireLock until it succeeds or ctx is done.
func AcquireLockWait(ctx context.Context, path string, retry time.Duration) (*FileLock, error) {
	for {
		lock, err := AcquireLock(path)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrLockHeld) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retry):
		}
	}
}
