// Package logging builds the process-wide structured logger: text to
// stderr for interactive use, optional JSON file, and the systemd
// journal when the process runs as a service.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// Options selects the log sinks.
type Options struct {
	// Verbose lowers the level to debug.
	Verbose bool

	// File, when set, mirrors logs as JSON lines to this path.
	File string

	// Journal mirrors logs to the systemd journal. Skipped silently
	// when the journal socket is unavailable.
	Journal bool
}

// New assembles the logger and returns a cleanup function that closes
// the log file, if any.
func New(opts Options) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	cleanup := func() {}

	// Under systemd the journal already captures stderr; skip the text
	// handler to avoid duplicate lines.
	if !runningUnderSystemd() {
		handlers = append(handlers, slog.NewTextHandler(os.Stderr, handlerOpts))
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0700); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, handlerOpts))
		cleanup = func() { _ = f.Close() }
	}

	if opts.Journal {
		journalHandler, err := slogjournal.NewHandler(&slogjournal.Options{
			ReplaceGroup: toJournalKey,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				a.Key = toJournalKey(a.Key)
				return a
			},
		})
		if err == nil {
			handlers = append(handlers, journalHandler)
		}
	}

	if len(handlers) == 0 {
		handlers = append(handlers, slog.NewTextHandler(os.Stderr, handlerOpts))
	}
	return slog.New(slogmulti.Fanout(handlers...)), cleanup, nil
}

// toJournalKey maps an attribute key to the journald field charset.
func toJournalKey(str string) string {
	str = strings.ToUpper(str)
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, str)
}

// runningUnderSystemd checks the process cgroup for a .service slice.
func runningUnderSystemd() bool {
	content, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return false
	}
	parts := strings.Split(string(content), ":")
	if len(parts) < 3 {
		return false
	}
	return strings.HasSuffix(path.Dir(parts[2]), ".service")
}
