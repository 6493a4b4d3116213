package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/lumberjack.v2"

	"chat-relay/internal/config"
)

// Init installs the process-wide JSON logger. Every value in secrets is
// scrubbed from log output.
func Init(cfg config.LogConfig, secrets ...string) {
	slog.SetDefault(New(cfg, secrets...))
	slog.Info("logger initialized", "level", cfg.Level, "file", cfg.File)
}

// New builds a JSON logger writing to stdout and, when cfg.File is set, to a
// rotating file.
func New(cfg config.LogConfig, secrets ...string) *slog.Logger {
	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, os.Stdout)
	}
	if cfg.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			LocalTime:  true,
		})
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}
	return newLogger(io.MultiWriter(writers...), parseLevel(cfg.Level), secrets)
}

func newLogger(w io.Writer, level slog.Level, secrets []string) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(NewRedactHandler(h, secrets...))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
