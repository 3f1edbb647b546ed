package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/pangeacyber/pangea-aws-sdk-go/pkg/correlation"
)

// Logger is an interface for logging
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
}

// ZeroLogger implements Logger using zerolog
type ZeroLogger struct {
	logger zerolog.Logger
	output io.Writer
	level  zerolog.Level
}

// Option configures a ZeroLogger
type Option func(*ZeroLogger)

// New creates a new ZeroLogger writing human-readable output to stdout at info level
func New(options ...Option) *ZeroLogger {
	l := &ZeroLogger{
		output: zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339},
		level:  zerolog.InfoLevel,
	}

	for _, option := range options {
		option(l)
	}

	l.logger = zerolog.New(l.output).Level(l.level).With().Timestamp().Logger()
	return l
}

// NewNop creates a logger that discards everything
func NewNop() *ZeroLogger {
	return &ZeroLogger{logger: zerolog.Nop(), output: io.Discard, level: zerolog.Disabled}
}

// WithLevel sets the minimum level ("debug", "info", "warn", "error")
func WithLevel(level string) Option {
	return func(l *ZeroLogger) {
		l.level = ParseLevel(level)
	}
}

// WithOutput sets the writer log lines are written to. The writer receives JSON lines.
func WithOutput(w io.Writer) Option {
	return func(l *ZeroLogger) {
		l.output = w
	}
}

// ParseLevel maps a level name to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Info logs an info message
func (l *ZeroLogger) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	l.write(ctx, l.logger.Info(), msg, fields)
}

// Warn logs a warning message
func (l *ZeroLogger) Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	l.write(ctx, l.logger.Warn(), msg, fields)
}

// Error logs an error message
func (l *ZeroLogger) Error(ctx context.Context, msg string, fields map[string]interface{}) {
	l.write(ctx, l.logger.Error(), msg, fields)
}

// Debug logs a debug message
func (l *ZeroLogger) Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	l.write(ctx, l.logger.Debug(), msg, fields)
}

func (l *ZeroLogger) write(ctx context.Context, event *zerolog.Event, msg string, fields map[string]interface{}) {
	// nil when the level is disabled
	if event == nil {
		return
	}

	if ctx != nil {
		if requestID, err := correlation.GetRequestID(ctx); err == nil {
			event = event.Str("request_id", requestID)
		}
	}

	for k, v := range fields {
		event = event.Interface(k, v)
	}

	event.Msg(msg)
}
