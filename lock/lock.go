// Package lock provides an exclusive advisory lock on a file, used to keep
// a second process from opening the same store directory.
package lock

import (
	"errors"
	"fmt"
	"os"
)

// ErrLocked is returned by TryAcquire when another holder owns the lock.
var ErrLocked = errors.New("lock: already held")

// File is a held lock. Release it to let other holders in.
type File struct {
	path string
	f    *os.File
}

// TryAcquire takes the lock at path without waiting, creating the file when needed.
func TryAcquire(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lock: open %s: %w", path, err)
	}
	if err := tryLockExclusive(f); err != nil {
		_ = f.Close()
		if errors.Is(err, errWouldBlock) {
			return nil, fmt.Errorf("lock: %s: %w", path, ErrLocked)
		}
		return nil, fmt.Errorf("lock: %s: %w", path, err)
	}
	return &File{path: path, f: f}, nil
}

// Path returns the lock file path.
func (l *File) Path() string {
	return l.path
}

// Release drops the lock. The lock file itself is left in place.
func (l *File) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlockFile(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
