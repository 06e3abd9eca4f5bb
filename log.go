package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/caption-router/internal/config"
	gap "github.com/muesli/go-app-paths"
)

// setupLog routes the default logger. The TUI owns the terminal, so it
// logs to a file; plain mode logs to stderr. The returned func closes the
// file, if any.
func setupLog(toStderr, debug bool) (func() error, error) {
	env, err := config.ParseEnv()
	if err != nil {
		return nil, err
	}

	level, err := log.ParseLevel(env.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	if debug {
		level = log.DebugLevel
	}
	log.SetLevel(level)
	log.SetReportTimestamp(true)

	if toStderr {
		log.SetOutput(os.Stderr)
		return func() error { return nil }, nil
	}

	path := env.LogFile
	if path == "" {
		dir, err := gap.NewScope(gap.User, "caption-router").CacheDir()
		if err != nil {
			log.SetOutput(io.Discard)
			return func() error { return nil }, nil
		}
		path = filepath.Join(dir, "caption-router.log")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("could not create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("could not open log file: %w", err)
	}
	log.SetOutput(f)
	log.SetFormatter(log.LogfmtFormatter)
	return f.Close, nil
}
