// Package store provides shared JSON state file persistence for LEGION.
// State files are written atomically (write-then-rename) and guarded by
// advisory file locks so concurrent processes sharing a session directory
// cannot interleave partial writes.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mrz1836/legion/internal/ctxutil"
	legionerrors "github.com/mrz1836/legion/internal/errors"
	"github.com/mrz1836/legion/internal/flock"
)

// LockTimeout is the maximum duration to wait for acquiring a file lock.
const LockTimeout = 5 * time.Second

// Directory and file permission constants.
const (
	DirPerm  = 0o750 // Secure directory permissions
	FilePerm = 0o600 // Secure file permissions
)

// File wraps one JSON state file and its sibling advisory lock file.
// All access goes through the lock, so two processes pointed at the same
// session directory serialize their reads and writes.
type File struct {
	path string
}

// NewFile returns a File for the given state file path. The parent
// directory is created on first write.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the state file path.
func (f *File) Path() string {
	return f.path
}

// Exists returns true if the state file exists on disk.
func (f *File) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// Load reads the state file into v under the lock.
// A missing file is reported as os.ErrNotExist so callers can start from
// empty state. A file that exists but cannot be parsed is reported as
// ErrStoreCorrupt.
func (f *File) Load(ctx context.Context, v any) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	lockFile, err := f.acquireLock(ctx)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", filepath.Base(f.path), err)
	}
	defer func() { _ = releaseLock(lockFile) }()

	return f.loadLocked(v)
}

// Save marshals v and writes it atomically under the lock.
func (f *File) Save(ctx context.Context, v any) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	lockFile, err := f.acquireLock(ctx)
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", filepath.Base(f.path), err)
	}
	defer func() { _ = releaseLock(lockFile) }()

	return f.saveLocked(v)
}

// loadLocked reads and unmarshals the state file. Caller holds the lock.
func (f *File) loadLocked(v any) error {
	data, err := os.ReadFile(f.path) //#nosec G304 -- path is constructed internally
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("state file %s: %w", filepath.Base(f.path), os.ErrNotExist)
		}
		return fmt.Errorf("failed to read %s: %w", filepath.Base(f.path), err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w: %s", filepath.Base(f.path), legionerrors.ErrStoreCorrupt, err)
	}

	return nil
}

// saveLocked marshals and atomically writes the state file. Caller holds
// the lock.
func (f *File) saveLocked(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(f.path), err)
	}

	if err := atomicWrite(f.path, data, FilePerm); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(f.path), err)
	}

	return nil
}

// Update runs fn on the current state while holding the exclusive lock,
// then persists whatever fn leaves in state. When the state file does not
// exist yet, fn receives the zero value of T. When fn returns an error,
// nothing is persisted and the error is returned unchanged.
func Update[T any](ctx context.Context, f *File, fn func(state *T) error) (*T, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	lockFile, err := f.acquireLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", filepath.Base(f.path), err)
	}
	defer func() { _ = releaseLock(lockFile) }()

	var state T
	if f.Exists() {
		if err := f.loadLocked(&state); err != nil {
			return nil, err
		}
	}

	if err := fn(&state); err != nil {
		return nil, err
	}

	if err := f.saveLocked(&state); err != nil {
		return nil, err
	}

	return &state, nil
}

// lockFilePath returns the path to the sibling lock file.
func (f *File) lockFilePath() string {
	return f.path + ".lock"
}

// acquireLock acquires an exclusive file lock for the state file.
// It respects context cancellation during the lock acquisition retry loop.
func (f *File) acquireLock(ctx context.Context) (*os.File, error) {
	// Ensure parent directory exists for lock file
	if err := os.MkdirAll(filepath.Dir(f.path), DirPerm); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	lf, err := os.OpenFile(f.lockFilePath(), os.O_CREATE|os.O_RDWR, FilePerm) //#nosec G302,G304 -- lock file needs write access, path is constructed internally
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	// Try to acquire lock with timeout
	deadline := time.Now().Add(LockTimeout)
	for {
		// Check for context cancellation
		select {
		case <-ctx.Done():
			_ = lf.Close()
			return nil, ctx.Err()
		default:
		}

		// Attempt to acquire exclusive non-blocking lock
		err := flock.Exclusive(lf.Fd())
		if err == nil {
			return lf, nil
		}

		if time.Now().After(deadline) {
			_ = lf.Close()
			return nil, fmt.Errorf("failed to acquire lock: %w", legionerrors.ErrLockTimeout)
		}

		// Wait a bit before retrying
		time.Sleep(50 * time.Millisecond)
	}
}

// releaseLock releases a file lock.
func releaseLock(f *os.File) error {
	if f == nil {
		return nil
	}

	// Release the lock
	if err := flock.Unlock(f.Fd()); err != nil {
		// Still try to close the file
		_ = f.Close()
		return fmt.Errorf("failed to release lock: %w", err)
	}

	return f.Close()
}

// atomicWrite writes data to a file atomically using write-then-rename.
func atomicWrite(path string, data []byte, perm os.FileMode) error {
	// Write to temp file
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm) //#nosec G304 -- path is constructed internally
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	// Write data
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write data: %w", err)
	}

	// Sync to disk (ensure data is persisted before rename)
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync file: %w", err)
	}

	// Close file before rename
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}
