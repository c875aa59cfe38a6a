package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/gray-logic-valve/internal/infrastructure/config"
)

// serviceName tags every record so valve logs can be told apart once they
// are shipped off the device.
const serviceName = "valvecore"

// Logger is the process logger. Components take a child from With so their
// records carry component=actuator, component=mqtt and so on. Safe for
// concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds the logger described by the logging section of config.yaml.
// Unknown formats fall back to JSON and unknown outputs to stdout.
func New(cfg config.LoggingConfig, version string) *Logger {
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	return newLogger(w, cfg, version)
}

func newLogger(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	return &Logger{Logger: slog.New(h.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	}))}
}

// parseLevel maps a configured level name onto slog. "warning" is accepted
// as an alias; anything unrecognised means info.
func parseLevel(name string) slog.Level {
	if strings.EqualFold(name, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// With returns a child logger carrying args on every record.
//
//	log := logger.With("component", "control")
//	log.Info("actuation dispatched", "op", "open") // component=control op=open
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the bootstrap logger used until config.yaml has been read:
// JSON on stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

// Discard returns a logger that drops every record.
// Tests and optional components use it in place of a nil logger.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
