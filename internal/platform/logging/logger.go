package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/hazixroland-ai/tiktoklive/internal/platform/correlation"
)

// New builds a correlation-aware logger writing to w.
// level: "debug", "info", "warn", "error" (unknown values mean "info").
// format: "json" or "text" (unknown values mean "text").
func New(w io.Writer, level, format string) *slog.Logger {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(correlation.NewHandler(handler))
}

// InitLogger installs a stdout logger as the slog default.
func InitLogger(level, format string) *slog.Logger {
	logger := New(os.Stdout, level, format)
	slog.SetDefault(logger)
	return logger
}
