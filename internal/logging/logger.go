// Package logging is the structured logger shared by every bundlr
// component. It wraps log/slog behind a small interface that always takes a
// context, so the id of the running build travels with the call.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Levels accepted by ParseLevel.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError

	levelOff = slog.LevelError + 8
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ParseLevel maps a flag value (debug, info, warn, error) to a level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// ParseFormat validates a flag value for the output format.
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown log format %q", s)
	}
}

// Logger interface for structured logging
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...interface{})
	Info(ctx context.Context, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
	Error(ctx context.Context, err error, msg string, fields ...interface{})

	With(fields ...interface{}) Logger
	WithComponent(component string) Logger
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level     slog.Level
	Format    string
	Output    io.Writer
	AddSource bool
}

// DefaultConfig returns info-level text logging to stderr.
func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:  LevelInfo,
		Format: FormatText,
		Output: os.Stderr,
	}
}

// BundlrLogger is the slog-backed Logger.
type BundlrLogger struct {
	logger    *slog.Logger
	component string
}

// NewLogger creates a logger from config; nil means DefaultConfig.
func NewLogger(config *LoggerConfig) *BundlrLogger {
	if config == nil {
		config = DefaultConfig()
	}
	out := config.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: config.Level, AddSource: config.AddSource}

	var handler slog.Handler = slog.NewTextHandler(out, opts)
	if config.Format == FormatJSON {
		handler = slog.NewJSONHandler(out, opts)
	}
	return &BundlrLogger{logger: slog.New(handler)}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *BundlrLogger {
	return NewLogger(&LoggerConfig{Level: levelOff, Output: io.Discard})
}

func (l *BundlrLogger) Debug(ctx context.Context, msg string, fields ...interface{}) {
	l.log(ctx, LevelDebug, nil, msg, fields)
}

func (l *BundlrLogger) Info(ctx context.Context, msg string, fields ...interface{}) {
	l.log(ctx, LevelInfo, nil, msg, fields)
}

func (l *BundlrLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.log(ctx, LevelWarn, err, msg, fields)
}

func (l *BundlrLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.log(ctx, LevelError, err, msg, fields)
}

// With returns a logger that adds fields to every record.
func (l *BundlrLogger) With(fields ...interface{}) Logger {
	return &BundlrLogger{logger: l.logger.With(fields...), component: l.component}
}

// WithComponent returns a logger tagged with component. It replaces, not
// nests, a previous component.
func (l *BundlrLogger) WithComponent(component string) Logger {
	return &BundlrLogger{logger: l.logger, component: component}
}

func (l *BundlrLogger) log(ctx context.Context, level slog.Level, err error, msg string, fields []interface{}) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.logger.Enabled(ctx, level) {
		return
	}
	attrs := make([]interface{}, 0, len(fields)+6)
	if l.component != "" {
		attrs = append(attrs, "component", l.component)
	}
	if id := BuildIDFrom(ctx); id != "" {
		attrs = append(attrs, "build_id", id)
	}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
	}
	attrs = append(attrs, fields...)
	l.logger.Log(ctx, level, msg, attrs...)
}

type buildIDKey struct{}

// ContextWithBuildID tags ctx with the id of the running build. Records logged
// with the returned context carry it as build_id.
func ContextWithBuildID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, buildIDKey{}, id)
}

// BuildIDFrom returns the build id carried by ctx, if any.
func BuildIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(buildIDKey{}).(string)
	return id
}

// PerfLogger times one operation and logs its duration when it ends.
type PerfLogger struct {
	Logger
	start time.Time
}

// StartOperation begins timing operation.
func StartOperation(logger Logger, operation string) *PerfLogger {
	return &PerfLogger{Logger: logger.With("operation", operation), start: time.Now()}
}

// Elapsed returns the time since the operation started.
func (p *PerfLogger) Elapsed() time.Duration {
	return time.Since(p.start)
}

// End logs the duration at debug level and returns it.
func (p *PerfLogger) End(ctx context.Context, fields ...interface{}) time.Duration {
	d := p.Elapsed()
	p.Debug(ctx, "Operation completed", append(fields, "duration_ms", d.Milliseconds())...)
	return d
}

// EndWithError logs the failure with its duration and returns the duration.
func (p *PerfLogger) EndWithError(ctx context.Context, err error) time.Duration {
	d := p.Elapsed()
	p.Error(ctx, err, "Operation failed", "duration_ms", d.Milliseconds())
	return d
}
