package main

import (
	"context"
	"log/slog"
)

// debugHandler lets debug records through regardless of the configured level.
type debugHandler struct {
	slog.Handler
}

func (h debugHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelDebug
}

func (h debugHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return debugHandler{h.Handler.WithAttrs(attrs)}
}

func (h debugHandler) WithGroup(name string) slog.Handler {
	return debugHandler{h.Handler.WithGroup(name)}
}

// enableDebug wraps the default logger so the verbose output is printed.
func enableDebug() {
	slog.SetDefault(slog.New(debugHandler{slog.Default().Handler()}))
}
