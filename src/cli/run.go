package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"snaprot/src/config"
	"snaprot/src/ladder"
	"snaprot/src/logging"
	"snaprot/src/runctx"
	"snaprot/src/runner"
	"snaprot/src/transfer"
)

func newRunCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		includeHosts []string
		excludeHosts []string
		group        string
		resync       bool
		parallel     bool
		noStrictKey  bool
		hostLogs     bool
	)
	cmd := &cobra.Command{
		Use:   "run <tier>",
		Short: "Rotate snapshots and back up every eligible host for the tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier := args[0]
			opts := getGlobalOptions(cmd)
			logger := logging.New(stderr, opts.Verbosity)

			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			lad, err := ladder.New(cfg.Ladder)
			if err != nil {
				return err
			}
			if !lad.Contains(tier) {
				return fmt.Errorf("unknown tier %q (ladder: %s)", tier, strings.Join(lad.Names(), ", "))
			}
			hosts, err := cfg.SelectGroup(group)
			if err != nil {
				return err
			}

			base := cmd.Context()
			if base == nil {
				base = context.Background()
			}
			// A signal kills the in-flight subprocess and leaves the
			// lock file behind; the next run reclaims it via the
			// stale-lock liveness check.
			ctx, stop := signal.NotifyContext(base, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			tool, err := transfer.Detect(ctx, cfg.Rsync)
			if err != nil {
				return err
			}
			logger.Debug("sync tool detected", "path", tool.Path, "version", tool.Version)

			rc := &runctx.Context{
				Ctx:             ctx,
				Cfg:             cfg,
				Ladder:          lad,
				Log:             logger,
				LogOut:          stderr,
				Tier:            tier,
				RsyncPath:       tool.Path,
				Verbosity:       opts.Verbosity,
				IncludeHosts:    includeHosts,
				ExcludeHosts:    excludeHosts,
				DryRun:          opts.DryRun,
				Resync:          resync,
				Parallel:        parallel,
				NoStrictHostKey: noStrictKey,
				HostLogs:        hostLogs,
			}

			if status := runner.Run(rc, hosts); status != 0 {
				return fmt.Errorf("at least one host failed")
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&includeHosts, "host", nil, "Only back up the named host (repeatable)")
	cmd.Flags().StringSliceVar(&excludeHosts, "exclude-host", nil, "Skip the named host (repeatable)")
	cmd.Flags().StringVar(&group, "group", "", "Restrict the run to a configured host group")
	cmd.Flags().BoolVar(&resync, "resync", false, "Refresh slot 0 in place without rotating")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "Back up hosts in parallel")
	cmd.Flags().BoolVar(&noStrictKey, "no-strict-hostkey", false, "Disable ssh strict host key checking")
	cmd.Flags().BoolVar(&hostLogs, "host-logs", false, "Mirror each host's log into its snapshot directory")

	return cmd
}
