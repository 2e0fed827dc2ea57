//go:build !windows

// pkg/lakehouse/lock_unix.go
package lakehouse

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockFile takes an exclusive lock on the lakehouse lock file. Returns
// ErrLakehouseLocked if another process holds it.
func lockFile(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		if err == unix.EWOULDBLOCK {
			return ErrLakehouseLocked
		}
		return err
	}
	return nil
}

// unlockFile releases the lock.
func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
