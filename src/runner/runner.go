package runner

import (
	"errors"

	"golang.org/x/sync/errgroup"

	"snaprot/src/backup"
	"snaprot/src/config"
	"snaprot/src/runctx"
)

// Run executes the backup pipeline for every eligible host and folds
// the per-host results into one exit status: 0 when all hosts
// succeeded, 1 when at least one failed. Sequential mode walks hosts in
// configuration order; parallel mode runs one task per host, each
// owning its own subprocess tree, and waits for all of them.
func Run(rc *runctx.Context, hosts []config.Host) int {
	var eligible []config.Host
	for _, h := range hosts {
		ok, reason := backup.Eligible(rc, h)
		if !ok {
			rc.Log.Info("skipping host", "host", h.Name, "reason", reason)
			continue
		}
		eligible = append(eligible, h)
	}
	if len(eligible) == 0 {
		rc.Log.Info("no eligible hosts for this run", "tier", rc.Tier)
		return 0
	}

	results := make([]backup.Result, len(eligible))
	if rc.Parallel {
		// A fatal result cancels the group context, killing the other
		// hosts' in-flight subprocesses; host-local failures do not.
		g, ctx := errgroup.WithContext(rc.Ctx)
		for i, h := range eligible {
			i, h := i, h // per-iteration copies; go directive is 1.21
			g.Go(func() error {
				hostRC := *rc
				hostRC.Ctx = ctx
				results[i] = backup.RunHost(&hostRC, h)
				if errors.Is(results[i].Err, backup.ErrFatal) {
					return results[i].Err
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			rc.Log.Error("aborting run", "error", err)
		}
	} else {
		for i, h := range eligible {
			results[i] = backup.RunHost(rc, h)
			if errors.Is(results[i].Err, backup.ErrFatal) {
				rc.Log.Error("aborting run", "error", results[i].Err)
				break
			}
		}
	}

	var failed []string
	for _, res := range results {
		if res.Host == "" {
			continue // host never started (run aborted)
		}
		if res.OK {
			rc.Log.Info("host backed up", "host", res.Host, "duration", res.Duration)
			continue
		}
		rc.Log.Error("host failed", "host", res.Host, "error", res.Err, "duration", res.Duration)
		failed = append(failed, res.Host)
	}
	if len(failed) > 0 {
		rc.Log.Error("run finished with failures", "failed_hosts", failed)
		return 1
	}
	rc.Log.Info("run finished", "hosts", len(eligible))
	return 0
}
