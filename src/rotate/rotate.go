package rotate

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"time"

	"snaprot/src/config"
	"snaprot/src/runctx"
	"snaprot/src/snapdir"
)

// Outcome is the result of one rotation pass for a (host, tier) pair.
type Outcome int

const (
	// Failed: a delete/rename/clone step errored; the tree is left in
	// whatever partially rotated state resulted. The next run treats
	// out-of-place slots as unpopulated.
	Failed Outcome = iota
	// RotatedOnly: slot 0 was filled by promotion from the finer tier,
	// or there was nothing to promote. No transfer happens this cycle.
	RotatedOnly
	// TransferNeeded: slot 0 is ready to receive fresh data.
	TransferNeeded
)

func (o Outcome) String() string {
	switch o {
	case Failed:
		return "failed"
	case RotatedOnly:
		return "rotated-only"
	case TransferNeeded:
		return "transfer-needed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Rotate frees slot 0 of rc.Tier for the host. Slots are aged strictly
// oldest to newest so a rename never clobbers a slot that has not moved
// yet; slots absent on disk are skipped as never populated. The reflink
// flag is the host's probe result and selects the clone strategy on the
// finest tier.
func Rotate(rc *runctx.Context, h config.Host, reflink bool) (Outcome, error) {
	tier := rc.Tier
	if !rc.Ladder.Contains(tier) {
		return Failed, fmt.Errorf("tier %q is not in the ladder", tier)
	}
	root := h.SnapDir
	slot0 := snapdir.Slot(root, h.Name, tier, 0)
	fs := newFsView(rc)

	// Forced resync skips rotation entirely: the current slot 0 is
	// simply refreshed in place.
	if rc.Resync {
		if err := fs.ensureDir(snapdir.DataDir(slot0, h.NoData)); err != nil {
			return Failed, err
		}
		return TransferNeeded, nil
	}

	curr := h.Retention(tier)
	if curr <= 0 {
		return Failed, fmt.Errorf("host %s: tier %s has zero retention", h.Name, tier)
	}

	// Every tier but the finest is refilled by promoting the oldest
	// slot of the next-finer tier. When that slot is absent there is
	// nothing to do this cycle.
	finer, hasFiner := rc.Ladder.Finer(tier)
	var promoSrc string
	if hasFiner {
		finerCount := h.Retention(finer)
		if finerCount <= 0 {
			rc.Log.Info("promotion source tier disabled, nothing to rotate",
				"host", h.Name, "tier", tier, "source_tier", finer)
			return RotatedOnly, nil
		}
		promoSrc = snapdir.Slot(root, h.Name, finer, finerCount-1)
		if !fs.exists(promoSrc) {
			rc.Log.Info("nothing to promote", "host", h.Name, "tier", tier, "source", promoSrc)
			return RotatedOnly, nil
		}
	}

	// Age existing slots oldest to newest: drop the oldest outright,
	// shift the rest one index up.
	oldest := snapdir.Slot(root, h.Name, tier, curr-1)
	if fs.exists(oldest) {
		if err := fs.removeTree(oldest); err != nil {
			return Failed, err
		}
	}
	for i := curr - 2; i >= 0; i-- {
		src := snapdir.Slot(root, h.Name, tier, i)
		if !fs.exists(src) {
			continue
		}
		if err := fs.rename(src, snapdir.Slot(root, h.Name, tier, i+1)); err != nil {
			return Failed, err
		}
	}

	if hasFiner {
		if err := fs.rename(promoSrc, slot0); err != nil {
			return Failed, err
		}
		rc.Log.Info("promoted snapshot", "host", h.Name, "tier", tier, "from", promoSrc)
		return RotatedOnly, nil
	}

	// Finest tier: seed slot 0 from slot 1 so the coming transfer only
	// moves deltas. First run has no slot 1 and starts empty.
	slot1 := snapdir.Slot(root, h.Name, tier, 1)
	if fs.exists(slot1) {
		if err := fs.clone(slot1, slot0, reflink); err != nil {
			return Failed, err
		}
		if err := fs.touch(slot0); err != nil {
			return Failed, err
		}
	} else {
		if err := fs.ensureDir(snapdir.DataDir(slot0, h.NoData)); err != nil {
			return Failed, err
		}
	}
	return TransferNeeded, nil
}

// fsView executes rotation steps. In dry-run mode nothing touches the
// disk; an existence overlay keeps the simulated tree consistent so the
// reported outcome matches what a real run would do.
type fsView struct {
	rc      *runctx.Context
	overlay map[string]bool
}

func newFsView(rc *runctx.Context) *fsView {
	v := &fsView{rc: rc}
	if rc.DryRun {
		v.overlay = make(map[string]bool)
	}
	return v
}

func (v *fsView) exists(path string) bool {
	if v.overlay != nil {
		if present, ok := v.overlay[path]; ok {
			return present
		}
	}
	return snapdir.Exists(path)
}

func (v *fsView) removeTree(path string) error {
	if v.rc.DryRun {
		v.rc.Log.Info("dry-run: would delete", "path", path)
		v.overlay[path] = false
		return nil
	}
	v.rc.Log.Debug("deleting slot", "path", path)
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func (v *fsView) rename(src, dst string) error {
	if v.rc.DryRun {
		v.rc.Log.Info("dry-run: would rename", "from", src, "to", dst)
		v.overlay[src] = false
		v.overlay[dst] = true
		return nil
	}
	v.rc.Log.Debug("renaming slot", "from", src, "to", dst)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("rename %s to %s: %w", src, dst, err)
	}
	return nil
}

func (v *fsView) ensureDir(path string) error {
	if v.rc.DryRun {
		v.rc.Log.Info("dry-run: would create", "path", path)
		v.overlay[path] = true
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return nil
}

// clone copies src to dst preserving hardlinks, or as a reflink clone
// when the host's filesystem supports it.
func (v *fsView) clone(src, dst string, reflink bool) error {
	args := []string{"-al", src, dst}
	if reflink {
		args = []string{"--reflink=always", "-a", src, dst}
	}
	if v.rc.DryRun {
		v.rc.Log.Info("dry-run: would clone", "from", src, "to", dst, "reflink", reflink)
		v.overlay[dst] = true
		return nil
	}
	v.rc.Log.Debug("cloning slot", "from", src, "to", dst, "reflink", reflink)
	cmd := exec.CommandContext(v.rc.Ctx, "cp", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("clone %s to %s: %w: %s", src, dst, err, stderr.String())
	}
	return nil
}

// touch refreshes the slot's modification time so slot ages can be read
// off the directory listing.
func (v *fsView) touch(path string) error {
	if v.rc.DryRun {
		return nil
	}
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		return fmt.Errorf("touch %s: %w", path, err)
	}
	return nil
}
