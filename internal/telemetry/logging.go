package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// InitLogger installs a JSON or text slog handler as the default logger.
func InitLogger(service, level string, json bool) *slog.Logger {
	return initLogger(os.Stdout, service, level, json)
}

func initLogger(w io.Writer, service, level string, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
