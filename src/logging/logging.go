package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// New builds the run logger. Verbosity is the count of -v flags:
// 0 logs info and up, 1 adds debug, 2 and above also reports callers.
func New(w io.Writer, verbosity int) *log.Logger {
	opts := log.Options{
		Level:           log.InfoLevel,
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02 15:04:05",
	}
	if verbosity >= 1 {
		opts.Level = log.DebugLevel
	}
	if verbosity >= 2 {
		opts.ReportCaller = true
	}
	return log.NewWithOptions(w, opts)
}

// HostLogName is the per-host mirror file created inside the host's
// snapshot directory when host logs are enabled.
const HostLogName = "backup.log"

// OpenHostLog returns a logger that mirrors base's output into
// <hostDir>/backup.log, plus a close function for the file. The caller
// must invoke close when the host's run finishes.
func OpenHostLog(base *log.Logger, baseOut io.Writer, hostDir string, verbosity int) (*log.Logger, func() error, error) {
	path := filepath.Join(hostDir, HostLogName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open host log %s: %w", path, err)
	}
	mirrored := New(io.MultiWriter(baseOut, f), verbosity)
	mirrored.SetPrefix(base.GetPrefix())
	return mirrored, f.Close, nil
}
