package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is where the configuration is looked up when --config is
// not given.
const DefaultPath = "/etc/snaprot/snaprot.yaml"

// Host modes for the sync-tool invocation.
const (
	ModeSSH    = "ssh"
	ModeRsyncd = "rsyncd"
)

// Config is the merged process-wide configuration, immutable after
// Load returns.
type Config struct {
	SnapDir string              `koanf:"snapdir"`
	LockDir string              `koanf:"lockdir"`
	Ladder  []string            `koanf:"ladder"`
	Tiers   map[string]int      `koanf:"tiers"`
	Options string              `koanf:"options"`
	Rsync   string              `koanf:"rsync"`
	Hosts   []Host              `koanf:"hosts"`
	Groups  map[string][]string `koanf:"groups"`
}

// Host is one backup target. After Load the per-host fields have the
// global defaults already folded in.
type Host struct {
	Name    string         `koanf:"name"`
	Enabled bool           `koanf:"enabled"`
	Address string         `koanf:"address"`
	Tiers   map[string]int `koanf:"tiers"`
	Options string         `koanf:"options"`
	Reflink bool           `koanf:"reflink"`
	Before  string         `koanf:"before"`
	After   string         `koanf:"after"`
	Sep     string         `koanf:"sep"`
	Folder  string         `koanf:"folder"`
	Exclude string         `koanf:"exclude"`
	StripWS bool           `koanf:"stripws"`
	Retry   int            `koanf:"retry"`
	Mode    string         `koanf:"mode"`
	Port    int            `koanf:"port"`
	PwdFile string         `koanf:"pwdfile"`
	SnapDir string         `koanf:"snapdir"`
	NoData  bool           `koanf:"nodata"`
	ExitOK  []int          `koanf:"exitok"`
}

func defaults() Config {
	return Config{
		SnapDir: "/srv/snapshots",
		LockDir: "/var/run/snaprot",
		Ladder:  []string{"hourly", "daily", "weekly", "monthly"},
		Tiers:   map[string]int{"hourly": 4, "daily": 7, "weekly": 4, "monthly": 3},
		Options: "-aH --delete --numeric-ids",
	}
}

// Load reads the YAML configuration at path, layering it over the
// built-in defaults, and resolves each host record. Any failure here is
// fatal to the run: no host processing may start on a broken config.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	k := koanf.New(".")
	def := defaults()
	if err := k.Load(structs.Provider(def, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolve folds the global defaults into every host record and
// validates the result.
func (c *Config) resolve() error {
	seen := make(map[string]struct{}, len(c.Hosts))
	for i := range c.Hosts {
		h := &c.Hosts[i]
		if h.Name == "" {
			return fmt.Errorf("host entry %d has no name", i)
		}
		if _, dup := seen[h.Name]; dup {
			return fmt.Errorf("duplicate host %q", h.Name)
		}
		seen[h.Name] = struct{}{}

		if h.Address == "" {
			h.Address = h.Name
		}
		if h.SnapDir == "" {
			h.SnapDir = c.SnapDir
		}
		if h.Sep == "" {
			h.Sep = ":"
		}
		switch h.Mode {
		case "":
			h.Mode = ModeSSH
		case ModeSSH, ModeRsyncd:
		default:
			return fmt.Errorf("host %s: unknown mode %q", h.Name, h.Mode)
		}
		if h.Retry < 0 {
			return fmt.Errorf("host %s: retry must be non-negative", h.Name)
		}
		if h.ExitOK == nil {
			// rsync exit 24: source files vanished mid-transfer.
			h.ExitOK = []int{24}
		}

		// Per-host tier counts overlay the global map. An explicit 0
		// disables the tier for this host.
		merged := make(map[string]int, len(c.Tiers))
		for tier, n := range c.Tiers {
			merged[tier] = n
		}
		for tier, n := range h.Tiers {
			if n < 0 {
				return fmt.Errorf("host %s: tier %s retention must be non-negative", h.Name, tier)
			}
			merged[tier] = n
		}
		h.Tiers = merged

		// A "+ …" option string appends to the global options instead
		// of replacing them.
		switch {
		case h.Options == "":
			h.Options = c.Options
		case strings.HasPrefix(h.Options, "+"):
			h.Options = strings.TrimSpace(c.Options + " " + strings.TrimSpace(strings.TrimPrefix(h.Options, "+")))
		}
	}
	return nil
}

// Retention returns the host's slot count for the tier, 0 when the
// tier is disabled or unknown.
func (h Host) Retention(tier string) int {
	return h.Tiers[tier]
}

// SourcePaths returns the host's folder list split on its separator.
func (h Host) SourcePaths() []string {
	return h.splitList(h.Folder)
}

// Excludes returns the host's exclusion patterns split on its separator.
func (h Host) Excludes() []string {
	return h.splitList(h.Exclude)
}

func (h Host) splitList(joined string) []string {
	if joined == "" {
		return nil
	}
	var out []string
	for _, tok := range strings.Split(joined, h.Sep) {
		if h.StripWS {
			tok = strings.TrimSpace(tok)
		}
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// HostByName looks a host up in the resolved table.
func (c *Config) HostByName(name string) (Host, bool) {
	for _, h := range c.Hosts {
		if h.Name == name {
			return h, true
		}
	}
	return Host{}, false
}

// SelectGroup narrows the host table to the named group, preserving
// configuration order. An unknown group is a fatal configuration error.
func (c *Config) SelectGroup(name string) ([]Host, error) {
	if name == "" {
		return c.Hosts, nil
	}
	members, ok := c.Groups[name]
	if !ok {
		return nil, fmt.Errorf("unknown group %q", name)
	}
	want := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, exists := c.HostByName(m); !exists {
			return nil, fmt.Errorf("group %q references unknown host %q", name, m)
		}
		want[m] = struct{}{}
	}
	var out []Host
	for _, h := range c.Hosts {
		if _, ok := want[h.Name]; ok {
			out = append(out, h)
		}
	}
	return out, nil
}
