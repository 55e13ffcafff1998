package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFile is the name of the lock taken inside the state directory.
const LockFile = "gtrans.lock"

// ErrLocked is returned when another process holds the state directory.
var ErrLocked = errors.New("another gtrans run holds the state directory")

// Lock takes an exclusive, non-blocking lock on stateDir so only one batch
// run discovers and dispatches at a time. Release it with Unlock.
func Lock(stateDir string) (*flock.Flock, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("ensure state directory: %w", err)
	}

	lock := flock.New(filepath.Join(stateDir, LockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return lock, nil
}
