package indexer

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// dirLock is the cross-process exclusive advisory lock over the output
// directory (spec.md §4.3 "Concurrency"): a second backend instance pointed
// at the same data directory must refuse to start a job while this one holds
// the lock.
type dirLock struct {
	fl *flock.Flock
}

// newDirLock builds (without acquiring) a lock file under dataDir.
func newDirLock(dataDir string) *dirLock {
	return &dirLock{fl: flock.New(filepath.Join(dataDir, ".kg-backend.lock"))}
}

// TryLock attempts to acquire the lock without blocking. ok is false if
// another process already holds it; calling it again on a dirLock that
// already holds the lock reports true.
func (d *dirLock) TryLock() (ok bool, err error) {
	locked, err := d.fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire output directory lock: %w", err)
	}
	return locked, nil
}

// Unlock releases the lock. Safe to call even if TryLock never succeeded.
func (d *dirLock) Unlock() error {
	if !d.fl.Locked() {
		return nil
	}
	return d.fl.Unlock()
}
