package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates a JSON slog logger at the given level tagged with the
// service name and environment. An invalid level falls back to info.
func New(level, service, env string) *slog.Logger {
	return newLogger(os.Stdout, level).With(
		slog.String("service", service),
		slog.String("env", env),
	)
}

func newLogger(w io.Writer, level string) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
