package fpcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objsync/internal/localfs"
)

// Lock is an exclusive lock guarding one local root against concurrent
// sync runs.
type Lock struct {
	fs    *localfs.FS
	path  string
	flock *flock.Flock
}

// AcquireLock takes the lock at path on fs without blocking.
// It returns an error matching errors.ErrLocked if the lock is held.
//
// On the host filesystem the lock is an advisory flock, which also guards
// against other processes. Other filesystems get a marker file created
// exclusively through fs, which only guards users of that filesystem.
func AcquireLock(fs *localfs.FS, path string) (*Lock, error) {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	host, ok := fs.HostPath(path)
	if !ok {
		if err := fs.CreateExclusive(path); err != nil {
			if errors.Is(err, os.ErrExist) {
				return nil, objerrors.NewError("lock", objerrors.ErrLocked).WithPath(path)
			}
			return nil, fmt.Errorf("failed to acquire lock %s: %w", path, err)
		}
		return &Lock{fs: fs, path: path}, nil
	}

	fl := flock.New(host)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", path, err)
	}
	if !locked {
		return nil, objerrors.NewError("lock", objerrors.ErrLocked).WithPath(path)
	}

	return &Lock{fs: fs, path: path, flock: fl}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Unlock releases the lock and removes the lock file.
func (l *Lock) Unlock() error {
	if l.flock != nil {
		// not ours to remove
		if !l.flock.Locked() {
			return nil
		}
		if err := l.flock.Unlock(); err != nil {
			return fmt.Errorf("failed to release lock: %w", err)
		}
	}

	return l.fs.Remove(l.path)
}
