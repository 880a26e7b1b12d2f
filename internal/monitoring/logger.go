// Package monitoring - logger.go provides structured logging via zerolog.
//
// DESIGN: Thin wrapper around zerolog with:
//   - Configurable level, format (auto/json/console), output (stdout/file)
//   - "auto" picks the console writer when the output is a terminal
//   - Global() sets the default logger for the entire application
//   - Request ID context helpers for request tracing
package monitoring

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Context keys for request tracking.
type contextKey string

const RequestIDKey contextKey = "request_id"

// Logger wraps zerolog.Logger.
type Logger struct {
	zl zerolog.Logger
}

// New creates a new Logger with the given configuration.
func New(cfg LoggerConfig) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var writer io.Writer
	switch cfg.Output {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			writer = os.Stdout
		} else {
			writer = f
		}
	}

	if useConsole(cfg.Format, writer) {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05"}
	}

	zl := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// NewWithWriter creates a JSON logger writing to w. Used by tests.
func NewWithWriter(w io.Writer, level zerolog.Level) *Logger {
	return &Logger{zl: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// useConsole resolves the "auto" format against the writer.
func useConsole(format string, w io.Writer) bool {
	switch format {
	case "console":
		return true
	case "json":
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Global sets the global zerolog logger and returns it.
func Global(cfg LoggerConfig) *Logger {
	logger := New(cfg)
	log.Logger = logger.zl
	return logger
}

// Debug returns a debug event.
func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }

// Info returns an info event.
func (l *Logger) Info() *zerolog.Event { return l.zl.Info() }

// Warn returns a warn event.
func (l *Logger) Warn() *zerolog.Event { return l.zl.Warn() }

// Error returns an error event.
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// RequestIDFromContext retrieves the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRequestIDContext returns a new context with the request ID.
func WithRequestIDContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}
