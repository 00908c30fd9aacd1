// Package logger настраивает slog в зависимости от окружения.
package logger

import (
	"io"
	"log/slog"
	"os"
)

const (
	envLocal = "local"
	envDev   = "dev"
)

// Setup создаёт логгер: текстовый вывод для local, JSON для остальных окружений.
func Setup(env string) *slog.Logger {
	return New(env, os.Stdout)
}

// New создаёт логгер с выводом в w.
func New(env string, w io.Writer) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
}
