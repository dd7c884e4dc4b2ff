package runner_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"snaprot/src/config"
	"snaprot/src/ladder"
	"snaprot/src/logging"
	"snaprot/src/runctx"
	"snaprot/src/runner"
	"snaprot/src/snapdir"
)

func testRC(t *testing.T, tier string) *runctx.Context {
	t.Helper()
	l, err := ladder.New([]string{"hourly", "daily"})
	if err != nil {
		t.Fatalf("build ladder: %v", err)
	}
	return &runctx.Context{
		Ctx:    context.Background(),
		Cfg:    &config.Config{LockDir: filepath.Join(t.TempDir(), "locks")},
		Ladder: l,
		Log:    logging.New(io.Discard, 0),
		LogOut: io.Discard,
		Tier:   tier,
	}
}

func fakeTool(t *testing.T, exitCode string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-rsync")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit "+exitCode+"\n"), 0o755); err != nil {
		t.Fatalf("write fake tool: %v", err)
	}
	return path
}

func host(name, root string) config.Host {
	return config.Host{
		Name: name, Enabled: true, SnapDir: root,
		Tiers:  map[string]int{"hourly": 4, "daily": 3},
		Folder: "/etc",
		Sep:    ":",
	}
}

func TestSequentialRunAllSucceed(t *testing.T) {
	rc := testRC(t, "hourly")
	rc.RsyncPath = fakeTool(t, "0")
	root := t.TempDir()

	status := runner.Run(rc, []config.Host{host("web1", root), host("db1", root)})
	if status != 0 {
		t.Fatalf("expected status 0, got %d", status)
	}
	for _, name := range []string{"web1", "db1"} {
		if !snapdir.Exists(snapdir.Slot(root, name, "hourly", 0)) {
			t.Fatalf("expected slot 0 for %s", name)
		}
	}
}

func TestFailingHostDoesNotAbortSiblings(t *testing.T) {
	rc := testRC(t, "hourly")
	rc.RsyncPath = fakeTool(t, "23")
	root := t.TempDir()

	status := runner.Run(rc, []config.Host{host("web1", root), host("db1", root)})
	if status != 1 {
		t.Fatalf("expected status 1, got %d", status)
	}
	// Both hosts were attempted: rotation created both slot trees.
	for _, name := range []string{"web1", "db1"} {
		if !snapdir.Exists(snapdir.Slot(root, name, "hourly", 0)) {
			t.Fatalf("expected host %s to be processed despite sibling failure", name)
		}
	}
}

func TestParallelRunAggregatesStatus(t *testing.T) {
	rc := testRC(t, "hourly")
	rc.Parallel = true
	rc.RsyncPath = fakeTool(t, "0")
	root := t.TempDir()

	hosts := []config.Host{host("web1", root), host("db1", root), host("app1", root)}
	if status := runner.Run(rc, hosts); status != 0 {
		t.Fatalf("expected status 0, got %d", status)
	}
	for _, h := range hosts {
		if !snapdir.Exists(snapdir.Slot(root, h.Name, "hourly", 0)) {
			t.Fatalf("expected slot 0 for %s", h.Name)
		}
	}

	rc.RsyncPath = fakeTool(t, "30")
	if status := runner.Run(rc, hosts); status != 1 {
		t.Fatalf("expected status 1 with failing transfers")
	}
}

func TestIneligibleHostsSkipped(t *testing.T) {
	rc := testRC(t, "daily")
	root := t.TempDir()
	h := host("web1", root)
	h.Tiers = map[string]int{"hourly": 4, "daily": 0}

	if status := runner.Run(rc, []config.Host{h}); status != 0 {
		t.Fatalf("a fully skipped run must succeed")
	}
	if snapdir.Exists(snapdir.HostDir(root, "web1")) {
		t.Fatalf("skipped host must not be touched")
	}
}

func TestEmptyHostListSucceeds(t *testing.T) {
	rc := testRC(t, "hourly")
	if status := runner.Run(rc, nil); status != 0 {
		t.Fatalf("empty host list must exit 0")
	}
}
