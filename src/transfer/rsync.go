package transfer

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"snaprot/src/config"
	"snaprot/src/runctx"
)

// Sync runs the rsync invocation for one source path of a host,
// retrying up to the host's budget on failure. On the final attempt, an
// exit code in the host's exception list is remapped to success; rsync
// reports conditions like vanished source files through well-known
// non-zero codes that are not real failures.
func Sync(rc *runctx.Context, h config.Host, src, dst string) error {
	args := BuildArgs(rc, h, src, dst)
	if rc.DryRun {
		rc.Log.Info("dry-run: would sync", "host", h.Name, "source", src, "args", strings.Join(args, " "))
		return nil
	}

	attempts := h.Retry + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		stdout, stderr, err := run(rc, args)
		if stats, ok := ExtractStats(stdout); ok {
			rc.Log.Info("transfer stats", "host", h.Name, "source", src, "stats", stats)
		}
		if err == nil {
			return nil
		}
		code := exitCode(err)
		if attempt < attempts {
			rc.Log.Warn("sync attempt failed, retrying",
				"host", h.Name, "source", src, "attempt", attempt, "exit_code", code)
			continue
		}
		if excepted(code, h.ExitOK) {
			rc.Log.Warn("sync exit code remapped to success",
				"host", h.Name, "source", src, "exit_code", code)
			return nil
		}
		return fmt.Errorf("sync %s from %s failed after %d attempt(s) (exit code %d): %w: %s",
			src, h.Name, attempts, code, err, strings.TrimSpace(stderr))
	}
	return nil
}

// BuildArgs assembles the rsync argument list for one source path.
func BuildArgs(rc *runctx.Context, h config.Host, src, dst string) []string {
	args := strings.Fields(h.Options)
	for _, pat := range h.Excludes() {
		args = append(args, "--exclude", pat)
	}

	var remote string
	switch h.Mode {
	case config.ModeRsyncd:
		url := "rsync://" + h.Address
		if h.Port != 0 {
			url += ":" + strconv.Itoa(h.Port)
		}
		remote = url + "/" + strings.TrimPrefix(src, "/")
		if h.PwdFile != "" {
			args = append(args, "--password-file", h.PwdFile)
		}
	default: // ssh
		sh := "ssh"
		if h.Port != 0 && h.Port != 22 {
			sh += " -p " + strconv.Itoa(h.Port)
		}
		if rc.NoStrictHostKey {
			sh += " -o StrictHostKeyChecking=no"
		}
		args = append(args, "-e", sh)
		remote = h.Address + ":" + src
	}

	return append(args, remote, dst)
}

func run(rc *runctx.Context, args []string) (string, string, error) {
	exe := rc.RsyncPath
	if exe == "" {
		exe = "rsync"
	}
	cmd := exec.CommandContext(rc.Ctx, exe, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// ExtractStats pulls the transfer-statistics trailer out of rsync's
// stdout: the terminal line starting with "sent". Extraction is purely
// observational and never affects the success decision.
func ExtractStats(stdout string) (string, bool) {
	var stats string
	for _, line := range strings.Split(stdout, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "sent ") {
			stats = trimmed
		}
	}
	return stats, stats != ""
}

func exitCode(err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

func excepted(code int, exceptions []int) bool {
	if code < 0 {
		return false
	}
	for _, ok := range exceptions {
		if code == ok {
			return true
		}
	}
	return false
}
