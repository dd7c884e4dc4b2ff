package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Path returns the PID-file path guarding a host's backup.
func Path(lockdir, host string) string {
	return filepath.Join(lockdir, host+".pid")
}

// Acquire takes the per-host lock on behalf of pid. It returns 0 when
// the lock was taken (including reclaiming a stale lock) and the
// foreign holder's PID when a live process already holds it. The lock
// directory is created idempotently so parallel workers can race on it
// safely.
func Acquire(lockdir, host string, pid int) (int, error) {
	if err := os.MkdirAll(lockdir, 0o755); err != nil {
		return 0, fmt.Errorf("create lock dir %s: %w", lockdir, err)
	}
	path := Path(lockdir, host)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		holder, perr := strconv.Atoi(strings.TrimSpace(string(data)))
		// An unparsable PID file is treated as stale and reclaimed.
		if perr == nil && holder != pid && alive(holder) {
			return holder, nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return 0, fmt.Errorf("read lock file %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return 0, fmt.Errorf("write lock file %s: %w", path, err)
	}
	return 0, nil
}

// Release drops the per-host lock. Removing an absent file is a no-op,
// so Release is safe to call even when Acquire was refused.
func Release(lockdir, host string) error {
	err := os.Remove(Path(lockdir, host))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// alive probes the process table without delivering a signal. EPERM
// still means the process exists.
func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
