package observability

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger builds the JSON logger used by both binaries and installs it as
// slog's default. Records carry trace_id/span_id when a span is active.
func NewLogger(env string) *slog.Logger {
	return newLogger(os.Stdout, env)
}

func newLogger(w io.Writer, env string) *slog.Logger {
	level := slog.LevelInfo
	if env == "dev" {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	log := slog.New(NewTraceHandler(handler))
	slog.SetDefault(log)
	return log
}
