// Package logging provides structured logging for envforge.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Format selects the log line encoding.
type Format string

const (
	// FormatConsole writes human-readable lines.
	FormatConsole Format = "console"
	// FormatJSON writes one JSON object per line.
	FormatJSON Format = "json"
	// FormatAuto picks console on a terminal and JSON otherwise.
	FormatAuto Format = "auto"
)

// ParseLevel parses a level name. Unknown names yield info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "off", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Config configures the logger.
type Config struct {
	// Level is the minimum level name ("debug", "info", ...).
	Level string
	// Format is console, json or auto.
	Format Format
	// Output is where logs are written. Defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: FormatAuto,
		Output: os.Stderr,
	}
}

// Logger wraps a zerolog.Logger.
type Logger struct {
	zlog zerolog.Logger
}

type loggerContextKey struct{}

// New creates a logger with the given configuration.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if resolveFormat(cfg.Format, out) == FormatConsole {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	zlog := zerolog.New(out).With().Timestamp().Logger().Level(ParseLevel(cfg.Level))
	return &Logger{zlog: zlog}
}

func resolveFormat(f Format, out io.Writer) Format {
	if f != FormatAuto && f != "" {
		return f
	}
	if file, ok := out.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return FormatConsole
	}
	return FormatJSON
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Zerolog returns the underlying logger for event-style logging.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zlog
}

// WithField returns a logger with one additional field.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{zlog: l.zlog.With().Interface(key, value).Logger()}
}

// WithFields returns a logger with the given fields added.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger()}
}

// WithComponent returns a logger with the component field set.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", component).Logger()}
}

// WithRunID stamps every line with the invocation id.
func (l *Logger) WithRunID(id string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("run_id", id).Logger()}
}

// WithError returns a logger carrying err.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zlog: l.zlog.With().Err(err).Logger()}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...any) { l.log(l.zlog.Debug(), msg, args) }

// Info logs an info message.
func (l *Logger) Info(msg string, args ...any) { l.log(l.zlog.Info(), msg, args) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...any) { l.log(l.zlog.Warn(), msg, args) }

// Error logs an error message.
func (l *Logger) Error(msg string, args ...any) { l.log(l.zlog.Error(), msg, args) }

func (l *Logger) log(e *zerolog.Event, msg string, args []any) {
	if len(args) > 0 {
		e.Msgf(msg, args...)
		return
	}
	e.Msg(msg)
}

// WithContext stores l in ctx.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// FromContext returns the logger stored in ctx, or a no-op logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		return l
	}
	return Nop()
}
