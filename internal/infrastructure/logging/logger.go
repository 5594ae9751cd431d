package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/panamawriter/panama-core/internal/infrastructure/config"
)

const serviceName = "panama"

// Logger is the application logger. Its Debug, Info, Warn and Error methods
// satisfy database.Logger, so the controller logs through it directly.
type Logger struct {
	*slog.Logger
}

// New builds a logger from the logging section of the configuration.
// Every entry carries the service name and the given version.
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriter(cfg, version, writerFor(cfg.Output))
}

// NewWithWriter is like New but writes to w regardless of cfg.Output.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	h = h.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(h)}
}

// Default is the pre-configuration logger: text on stderr at info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "text", Output: "stderr"}, "dev")
}

// With returns a child logger carrying the extra attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component tags every entry of the returned logger with component=name.
//
//	db := log.Component("database")
//	db.Info("schema attached", "schema", "panama")
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// writerFor resolves the configured output. Only an explicit "stdout" logs
// there; stdout carries the tool's report.
func writerFor(output string) io.Writer {
	if strings.EqualFold(strings.TrimSpace(output), "stdout") {
		return os.Stdout
	}
	return os.Stderr
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// parseLevel maps a configured level name to slog; unknown names mean info.
func parseLevel(level string) slog.Level {
	if l, ok := levels[strings.ToLower(strings.TrimSpace(level))]; ok {
		return l
	}
	return slog.LevelInfo
}
