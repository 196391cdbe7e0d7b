package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// lockRetryDelay is how often a blocked AcquireSnapshotLock polls the lock file
const lockRetryDelay = 100 * time.Millisecond

// SnapshotLock serializes snapshot replacement for one user across processes.
//
// ReplaceSnapshot clears and rewrites a user's snapshot; two concurrent syncs for
// the same user could otherwise interleave with readers and leave a partial cache.
// The lock is an advisory file lock beside the database, released by the kernel if
// the holder dies.
type SnapshotLock struct {
	path string
	fl   *flock.Flock
}

// SnapshotLockPath returns the lock file used for userID's snapshot
func SnapshotLockPath(dbPath, userID string) string {
	return filepath.Join(filepath.Dir(dbPath), ".snapshot-"+sanitizeLockName(userID)+".lock")
}

// AcquireSnapshotLock blocks until it holds the snapshot lock for userID or ctx ends.
func AcquireSnapshotLock(ctx context.Context, dbPath, userID string) (*SnapshotLock, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	path := SnapshotLockPath(dbPath, userID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	fl := flock.New(path)
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire snapshot lock for %s: %w", userID, err)
	}
	if !locked {
		return nil, fmt.Errorf("snapshot lock for %s is held by another process", userID)
	}

	return &SnapshotLock{path: path, fl: fl}, nil
}

// TryAcquireSnapshotLock takes the lock only if it is free.
// Returns (nil, nil) when another process holds it.
func TryAcquireSnapshotLock(dbPath, userID string) (*SnapshotLock, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	path := SnapshotLockPath(dbPath, userID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire snapshot lock for %s: %w", userID, err)
	}
	if !locked {
		return nil, nil
	}
	return &SnapshotLock{path: path, fl: fl}, nil
}

// Path returns the lock file path
func (l *SnapshotLock) Path() string {
	return l.path
}

// Release unlocks the snapshot. The lock file itself is left in place; removing it
// would race with a process about to lock the same path.
func (l *SnapshotLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("failed to release snapshot lock: %w", err)
	}
	return nil
}

// sanitizeLockName keeps user ids (often email addresses) safe as file names
func sanitizeLockName(userID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, userID)
}
