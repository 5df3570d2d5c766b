package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// SetupLogger builds the process logger from the log settings and installs it
// as the slog default. If LogPath is set every record is also appended to
// that file; the returned cleanup closes it.
func SetupLogger(c Config) (*slog.Logger, func(), error) {
	cleanup := func() {}

	w := io.Writer(os.Stdout)
	if c.LogPath != "" {
		f, err := os.OpenFile(c.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		w = io.MultiWriter(os.Stdout, f)
	}

	logger := slog.New(newHandler(w, c))
	slog.SetDefault(logger)
	return logger, cleanup, nil
}

func newHandler(w io.Writer, c Config) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(c.LogLevel)}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
