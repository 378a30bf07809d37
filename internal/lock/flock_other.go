//go:build !unix

package locking

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

var ErrLocked = errors.New("lock: directory is locked by another process")

// DirLock falls back to an O_EXCL lock file where flock is unavailable. A
// crashed holder leaves the file behind and it must be removed by hand.
type DirLock struct {
	path string
}

func LockDir(dir string) (*DirLock, error) {
	path := filepath.Join(dir, "LOCK")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, errors.Wrapf(ErrLocked, "%s", path)
		}
		return nil, errors.Wrapf(err, "open %s", path)
	}
	_ = f.Close()
	return &DirLock{path: path}, nil
}

func (l *DirLock) Unlock() error {
	if l == nil || l.path == "" {
		return nil
	}
	err := os.Remove(l.path)
	l.path = ""
	return err
}
