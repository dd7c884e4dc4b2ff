package rotate

import (
	"context"
	"os"
	"os/exec"
)

// ProbeReflink reports whether reflink copies work inside dir. The
// probe performs a real `cp --reflink=always` on a throwaway file pair
// and inspects the exit code; filesystems without copy-on-write support
// make cp fail. Probe files are removed on the way out.
func ProbeReflink(ctx context.Context, dir string) bool {
	src, err := os.CreateTemp(dir, ".reflink-probe-*")
	if err != nil {
		return false
	}
	srcPath := src.Name()
	dstPath := srcPath + ".clone"
	defer os.Remove(srcPath)
	defer os.Remove(dstPath)

	if _, err := src.WriteString("probe"); err != nil {
		src.Close()
		return false
	}
	if err := src.Close(); err != nil {
		return false
	}
	return exec.CommandContext(ctx, "cp", "--reflink=always", srcPath, dstPath).Run() == nil
}
