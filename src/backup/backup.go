package backup

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"time"

	"snaprot/src/config"
	"snaprot/src/lockfile"
	"snaprot/src/logging"
	"snaprot/src/rotate"
	"snaprot/src/runctx"
	"snaprot/src/snapdir"
	"snaprot/src/transfer"
)

// ErrFatal marks failures that must abort the whole run, not just the
// host: the snapshot tree itself could not be created.
var ErrFatal = errors.New("fatal backup error")

// Result is the outcome of one host's backup.
type Result struct {
	Host     string
	OK       bool
	Err      error
	Duration time.Duration
}

// Eligible decides whether the host enters the backup state machine
// for this run, returning the reason when it is skipped. A disabled
// host runs only when explicitly included.
func Eligible(rc *runctx.Context, h config.Host) (bool, string) {
	if slices.Contains(rc.ExcludeHosts, h.Name) {
		return false, "explicitly excluded"
	}
	included := slices.Contains(rc.IncludeHosts, h.Name)
	if len(rc.IncludeHosts) > 0 && !included {
		return false, "not in include list"
	}
	if !h.Enabled && !included {
		return false, "disabled"
	}
	if h.Retention(rc.Tier) <= 0 {
		return false, fmt.Sprintf("tier %s has zero retention", rc.Tier)
	}
	return true, ""
}

// RunHost drives one host through lock, prepare, rotate, transfer and
// finalize. Host-level failures are reported in the Result and never
// propagate to sibling hosts; only ErrFatal-wrapped errors do.
func RunHost(rc *runctx.Context, h config.Host) Result {
	start := time.Now()
	log := rc.Log

	// LockCheck. Dry-run takes no lock: writing the PID file would be
	// a filesystem mutation.
	if !rc.DryRun {
		holder, err := lockfile.Acquire(rc.Cfg.LockDir, h.Name, os.Getpid())
		if err != nil {
			return Result{Host: h.Name, Err: err, Duration: time.Since(start)}
		}
		if holder != 0 {
			return Result{
				Host:     h.Name,
				Err:      fmt.Errorf("host %s is locked by live process %d", h.Name, holder),
				Duration: time.Since(start),
			}
		}
		// Release must follow every transfer and hook, success or not.
		defer func() {
			if err := lockfile.Release(rc.Cfg.LockDir, h.Name); err != nil {
				log.Error("release lock", "host", h.Name, "error", err)
			}
		}()
	}

	// Preparing.
	if !rc.DryRun {
		if err := snapdir.EnsureHostDirs(h.SnapDir, h.Name); err != nil {
			return Result{Host: h.Name, Err: fmt.Errorf("%w: %v", ErrFatal, err), Duration: time.Since(start)}
		}
	}

	if rc.HostLogs && !rc.DryRun {
		mirrored, closeLog, err := logging.OpenHostLog(log, rc.LogOut, snapdir.HostDir(h.SnapDir, h.Name), rc.Verbosity)
		if err != nil {
			log.Warn("host log unavailable", "host", h.Name, "error", err)
		} else {
			defer func() {
				if err := closeLog(); err != nil {
					rc.Log.Error("close host log", "host", h.Name, "error", err)
				}
			}()
			log = mirrored
			rc = rc.WithLog(mirrored)
		}
	}

	// Reflink capability is probed once per host per run with a real
	// throwaway copy. Dry-run trusts the configured flag instead.
	reflink := h.Reflink
	if reflink && !rc.DryRun {
		reflink = rotate.ProbeReflink(rc.Ctx, snapdir.HostDir(h.SnapDir, h.Name))
		if !reflink {
			log.Debug("reflink probe failed, falling back to hardlink clone", "host", h.Name)
		}
	}

	// Rotating.
	outcome, err := rotate.Rotate(rc, h, reflink)
	switch outcome {
	case rotate.Failed:
		log.Error("rotation failed", "host", h.Name, "tier", rc.Tier, "error", err)
		return Result{Host: h.Name, Err: err}
	case rotate.RotatedOnly:
		log.Info("rotation complete, no transfer needed", "host", h.Name, "tier", rc.Tier)
		return Result{Host: h.Name, OK: true, Duration: time.Since(start)}
	}

	// Transferring: best-effort over hooks and source paths. A failure
	// marks the host failed but does not stop the remaining steps.
	failed := false
	if h.Before != "" {
		if err := runHook(rc, h, "before", h.Before); err != nil {
			log.Error("before hook failed", "host", h.Name, "error", err)
			failed = true
		}
	}
	slot0 := snapdir.Slot(h.SnapDir, h.Name, rc.Tier, 0)
	dest := snapdir.DataDir(slot0, h.NoData)
	for _, src := range h.SourcePaths() {
		if err := transfer.Sync(rc, h, src, dest); err != nil {
			log.Error("transfer failed", "host", h.Name, "source", src, "error", err)
			failed = true
		}
	}
	if h.After != "" {
		if err := runHook(rc, h, "after", h.After); err != nil {
			log.Error("after hook failed", "host", h.Name, "error", err)
			failed = true
		}
	}

	// Finalizing.
	res := Result{Host: h.Name, OK: !failed, Duration: time.Since(start)}
	if failed {
		res.Err = fmt.Errorf("host %s: one or more transfer steps failed", h.Name)
	}
	return res
}

// runHook executes a before/after command through the shell.
func runHook(rc *runctx.Context, h config.Host, phase, cmdline string) error {
	if rc.DryRun {
		rc.Log.Info("dry-run: would run hook", "host", h.Name, "phase", phase, "command", cmdline)
		return nil
	}
	rc.Log.Debug("running hook", "host", h.Name, "phase", phase, "command", cmdline)
	cmd := exec.CommandContext(rc.Ctx, "sh", "-c", cmdline)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s hook: %w: %s", phase, err, stderr.String())
	}
	return nil
}
