// Package lock provides the advisory, cross-instance lock file spec §5/§8
// requires at <root>/.lock: taken at Open, released at Close, so a second
// Engine instance opening the same store root fails fast with
// AlreadyLocked instead of corrupting shared state.
package lock

import (
	"fmt"

	"github.com/gofrs/flock"
)

// FileName is the advisory lock's name under the store root, per spec §6.
const FileName = ".lock"

// Lock wraps a single advisory file lock.
type Lock struct {
	fl *flock.Flock
}

// Acquire attempts to take the advisory lock at path without blocking. It
// returns ErrLocked if another process already holds it.
func Acquire(path string) (*Lock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock: %s: %w", path, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &Lock{fl: fl}, nil
}

// Release unlocks and closes the underlying lock file handle.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}

// ErrLocked is returned by Acquire when another instance already holds the
// store root's advisory lock.
var ErrLocked = fmt.Errorf("store root is locked by another instance")
