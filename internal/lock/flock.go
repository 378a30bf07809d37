//go:build unix

package locking

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrLocked means another process holds the directory lock.
var ErrLocked = errors.New("lock: directory is locked by another process")

// DirLock is an exclusive advisory flock on a LOCK file inside a directory.
type DirLock struct {
	f *os.File
}

// LockDir takes the lock without blocking.
func LockDir(dir string) (*DirLock, error) {
	path := filepath.Join(dir, "LOCK")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, errors.Wrapf(ErrLocked, "%s", path)
		}
		return nil, errors.Wrapf(err, "flock %s", path)
	}
	return &DirLock{f: f}, nil
}

func (l *DirLock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	defer func() {
		_ = l.f.Close()
		l.f = nil
	}()
	return unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
}
