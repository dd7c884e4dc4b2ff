package runctx

import (
	"context"
	"io"

	"github.com/charmbracelet/log"

	"snaprot/src/config"
	"snaprot/src/ladder"
)

// Context carries everything a single invocation needs: the resolved
// configuration, the tier being refreshed, run flags, and the log sink.
// It is built once at startup and read-only thereafter; components must
// not stash derived state on it.
type Context struct {
	Ctx    context.Context
	Cfg    *config.Config
	Ladder *ladder.Ladder
	Log    *log.Logger
	LogOut io.Writer // sink the logger writes to, for per-host mirrors

	Tier      string
	RsyncPath string
	Verbosity int

	IncludeHosts []string
	ExcludeHosts []string

	DryRun          bool
	Resync          bool
	Parallel        bool
	NoStrictHostKey bool
	HostLogs        bool
}

// WithLog returns a shallow copy whose log sink is replaced. Used to
// scope a host's mirror logger without mutating the shared context.
func (rc *Context) WithLog(l *log.Logger) *Context {
	cp := *rc
	cp.Log = l
	return &cp
}
