package transfer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"time"
)

// Info describes the detected synchronization tool binary.
type Info struct {
	Path    string
	Version string
}

var versionRegexp = regexp.MustCompile(`rsync\s+version\s+([0-9]+\.[0-9]+\.[0-9]+)`)

// Detect locates the rsync binary and queries its version. When path is
// empty the tool is looked up on PATH. The context bounds the version
// subprocess.
func Detect(ctx context.Context, path string) (Info, error) {
	exe := path
	if exe == "" {
		found, err := exec.LookPath("rsync")
		if err != nil {
			return Info{}, fmt.Errorf("rsync binary not found on PATH: %w", err)
		}
		exe = found
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, exe, "--version")
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return Info{}, fmt.Errorf("query rsync version: %w", err)
	}
	ver, err := ExtractVersion(out.String())
	if err != nil {
		return Info{}, err
	}
	return Info{Path: exe, Version: ver}, nil
}

// ExtractVersion parses the version number out of `rsync --version`
// output.
func ExtractVersion(output string) (string, error) {
	m := versionRegexp.FindStringSubmatch(output)
	if m == nil {
		return "", fmt.Errorf("could not parse rsync version from %q", firstLine(output))
	}
	return m[1], nil
}

func firstLine(s string) string {
	if i := bytes.IndexByte([]byte(s), '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
