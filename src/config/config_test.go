package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"snaprot/src/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snaprot.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesGlobalDefaults(t *testing.T) {
	path := writeConfig(t, `
snapdir: /srv/snaps
tiers: {hourly: 6, daily: 7}
options: "-aH --delete"
hosts:
  - name: web1
    enabled: true
    folder: "/etc:/home"
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	h, ok := cfg.HostByName("web1")
	if !ok {
		t.Fatalf("host web1 missing")
	}
	if h.Address != "web1" {
		t.Fatalf("expected address to default to name, got %q", h.Address)
	}
	if h.SnapDir != "/srv/snaps" {
		t.Fatalf("expected global snapdir, got %q", h.SnapDir)
	}
	if h.Mode != config.ModeSSH {
		t.Fatalf("expected ssh mode default, got %q", h.Mode)
	}
	if h.Retention("hourly") != 6 || h.Retention("daily") != 7 {
		t.Fatalf("tier merge wrong: %v", h.Tiers)
	}
	if h.Options != "-aH --delete" {
		t.Fatalf("expected global options, got %q", h.Options)
	}
	if len(h.ExitOK) != 1 || h.ExitOK[0] != 24 {
		t.Fatalf("expected default exitok [24], got %v", h.ExitOK)
	}
}

func TestOptionsPlusPrefixAppends(t *testing.T) {
	path := writeConfig(t, `
options: "-aH"
hosts:
  - name: web1
    options: "+ --bwlimit=2000"
  - name: db1
    options: "--archive"
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	web, _ := cfg.HostByName("web1")
	if web.Options != "-aH --bwlimit=2000" {
		t.Fatalf("expected appended options, got %q", web.Options)
	}
	db, _ := cfg.HostByName("db1")
	if db.Options != "--archive" {
		t.Fatalf("expected replaced options, got %q", db.Options)
	}
}

func TestTierOverlayAllowsExplicitZero(t *testing.T) {
	path := writeConfig(t, `
tiers: {hourly: 4, daily: 7}
hosts:
  - name: web1
    tiers: {hourly: 0}
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	h, _ := cfg.HostByName("web1")
	if h.Retention("hourly") != 0 {
		t.Fatalf("expected explicit zero to disable hourly, got %d", h.Retention("hourly"))
	}
	if h.Retention("daily") != 7 {
		t.Fatalf("expected global daily count, got %d", h.Retention("daily"))
	}
}

func TestSplitListsRespectSepAndStripws(t *testing.T) {
	path := writeConfig(t, `
hosts:
  - name: web1
    sep: ";"
    stripws: true
    folder: " /etc ; /home ;"
    exclude: "*.tmp ; cache/"
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	h, _ := cfg.HostByName("web1")
	paths := h.SourcePaths()
	if len(paths) != 2 || paths[0] != "/etc" || paths[1] != "/home" {
		t.Fatalf("unexpected source paths: %v", paths)
	}
	excl := h.Excludes()
	if len(excl) != 2 || excl[0] != "*.tmp" || excl[1] != "cache/" {
		t.Fatalf("unexpected excludes: %v", excl)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}

	dup := writeConfig(t, `
hosts:
  - name: web1
  - name: web1
`)
	if _, err := config.Load(dup); err == nil {
		t.Fatalf("expected error for duplicate host")
	}

	badMode := writeConfig(t, `
hosts:
  - name: web1
    mode: carrier-pigeon
`)
	if _, err := config.Load(badMode); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestSelectGroup(t *testing.T) {
	path := writeConfig(t, `
hosts:
  - name: web1
  - name: db1
  - name: backup1
groups:
  fast: [db1, web1]
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	sel, err := cfg.SelectGroup("fast")
	if err != nil {
		t.Fatalf("SelectGroup failed: %v", err)
	}
	// Configuration order is preserved, not group-member order.
	if len(sel) != 2 || sel[0].Name != "web1" || sel[1].Name != "db1" {
		t.Fatalf("unexpected selection: %+v", sel)
	}
	if _, err := cfg.SelectGroup("nope"); err == nil {
		t.Fatalf("expected error for unknown group")
	}
	all, err := cfg.SelectGroup("")
	if err != nil || len(all) != 3 {
		t.Fatalf("empty group must select all hosts: %v len=%d", err, len(all))
	}
}
