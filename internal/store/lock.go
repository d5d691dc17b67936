package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Error variables for file locking operations
var (
	// ErrLockNotHeld is returned when attempting to release a lock that isn't held
	ErrLockNotHeld = errors.New("lock not held")
)

// LockFileName is the lock file kept inside the vault directory.
const LockFileName = ".lock"

// FileLock is an exclusive advisory lock on a vault directory. It is held
// for the whole session so two processes never interleave mutations.
type FileLock struct {
	path     string
	lockFile *os.File
	locked   bool
}

// NewFileLock creates a new file lock at lockPath
func NewFileLock(lockPath string) *FileLock {
	return &FileLock{
		path: lockPath,
	}
}

// Lock acquires the lock, retrying until timeout. It returns ErrVaultLocked
// when another process keeps holding it. A lock file left behind by a dead
// process carries no OS lock and is simply taken over.
func (fl *FileLock) Lock(timeout time.Duration) error {
	if fl.locked {
		return errors.New("lock already held")
	}

	if err := os.MkdirAll(filepath.Dir(fl.path), 0o700); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	start := time.Now()
	for {
		file, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open lock file: %w", err)
		}

		if err := platformLock(file); err == nil {
			fl.lockFile = file
			fl.locked = true

			// Record the holder for diagnostics.
			if err := file.Truncate(0); err == nil {
				_, _ = file.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0)
			}
			return nil
		}
		file.Close()

		if time.Since(start) >= timeout {
			return fmt.Errorf("%w: %s", ErrVaultLocked, fl.path)
		}

		// Wait before retrying
		time.Sleep(50 * time.Millisecond)
	}
}

// Unlock releases the file lock
func (fl *FileLock) Unlock() error {
	if !fl.locked {
		return ErrLockNotHeld
	}

	// The lock file itself stays in place; removing it would let a waiter
	// lock an unlinked inode while a newcomer locks a fresh file.
	var err error
	if fl.lockFile != nil {
		if unlockErr := platformUnlock(fl.lockFile); unlockErr != nil {
			err = unlockErr
		}

		if closeErr := fl.lockFile.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		fl.lockFile = nil
	}

	fl.locked = false
	return err
}

// IsLocked returns true if the lock is currently held
func (fl *FileLock) IsLocked() bool {
	return fl.locked
}
