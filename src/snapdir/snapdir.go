package snapdir

import (
	"fmt"
	"os"
	"path/filepath"
)

// DataSubdir is the nested directory that receives transferred data
// inside a slot, unless the host opts out of nesting.
const DataSubdir = "data"

// HostDir returns the host-scoped snapshot directory under root.
func HostDir(root, host string) string {
	return filepath.Join(root, host)
}

// Slot returns the directory for one snapshot slot. Index 0 is the
// newest slot of the tier.
func Slot(root, host, tier string, idx int) string {
	return filepath.Join(root, host, fmt.Sprintf("%s.%d", tier, idx))
}

// DataDir returns the directory inside a slot that the sync tool
// writes into: the slot itself when nesting is disabled, otherwise the
// data subdirectory.
func DataDir(slot string, nodata bool) string {
	if nodata {
		return slot
	}
	return filepath.Join(slot, DataSubdir)
}

// Exists reports whether the path exists on disk. A missing slot means
// "never populated", never an error.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureHostDirs creates the snapshot root and the host subdirectory.
// Both creations are idempotent.
func EnsureHostDirs(root, host string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create snapshot root %s: %w", root, err)
	}
	if err := os.MkdirAll(HostDir(root, host), 0o755); err != nil {
		return fmt.Errorf("create host dir for %s: %w", host, err)
	}
	return nil
}
