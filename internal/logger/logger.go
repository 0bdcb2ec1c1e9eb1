// Package logger provides ombud's process-wide structured logger. It wraps
// log/slog with two output formats (text/json), five severities, and
// optional file rotation via lumberjack, mirroring the teacher's own
// logging package.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity levels. slog natively only has Debug/Info/Warn/Error; Trace and
// Off are modeled as offsets the same way the teacher's logger does it, so
// that a single slog.LevelVar can still gate all five.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(12)
)

var severityNames = map[slog.Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARNING",
	LevelError: "ERROR",
}

// Config controls how the default logger is constructed.
type Config struct {
	Format      string // "text" or "json"
	Severity    string // trace|debug|info|warning|error|off
	FilePath    string // empty means stderr
	MaxSizeMB   int
	BackupCount int
	Compress    bool
}

type loggerFactory struct {
	out    io.Writer
	file   *lumberjack.Logger
	level  *slog.LevelVar
	format string
}

var (
	defaultLoggerFactory = &loggerFactory{out: os.Stderr, level: new(slog.LevelVar), format: "text"}
	defaultLogger        = slog.New(defaultLoggerFactory.createHandler())
)

// Init (re)configures the default logger according to cfg. Called once at
// worker/supervisor startup, after flags have been parsed.
func Init(cfg Config) error {
	f := &loggerFactory{level: new(slog.LevelVar), format: cfg.Format}
	if f.format == "" {
		f.format = "json"
	}

	if cfg.FilePath != "" {
		f.file = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.BackupCount,
			Compress:   cfg.Compress,
		}
		f.out = f.file
	} else {
		f.out = os.Stderr
	}

	setLoggingLevel(cfg.Severity, f.level)
	defaultLoggerFactory = f
	defaultLogger = slog.New(f.createHandler())
	return nil
}

func setLoggingLevel(severity string, v *slog.LevelVar) {
	switch strings.ToUpper(severity) {
	case "TRACE":
		v.Set(LevelTrace)
	case "DEBUG":
		v.Set(LevelDebug)
	case "WARNING", "WARN":
		v.Set(LevelWarn)
	case "ERROR":
		v.Set(LevelError)
	case "OFF":
		v.Set(LevelOff)
	default:
		v.Set(LevelInfo)
	}
}

func (f *loggerFactory) createHandler() slog.Handler {
	replace := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.LevelKey {
			lvl := a.Value.Any().(slog.Level)
			name, ok := severityNames[lvl]
			if !ok {
				name = lvl.String()
			}
			a.Key = "severity"
			a.Value = slog.StringValue(name)
		}
		if a.Key == slog.TimeKey {
			a.Value = slog.StringValue(a.Value.Time().Format("2006/01/02 15:04:05.000000"))
		}
		return a
	}

	opts := &slog.HandlerOptions{Level: f.level, ReplaceAttr: replace}
	if f.format == "json" {
		return slog.NewJSONHandler(f.out, opts)
	}
	return slog.NewTextHandler(f.out, opts)
}

// Close flushes and closes the rotated log file, if any.
func Close() error {
	if defaultLoggerFactory.file != nil {
		return defaultLoggerFactory.file.Close()
	}
	return nil
}

func logf(level slog.Level, format string, v ...interface{}) {
	if !defaultLogger.Enabled(context.Background(), level) {
		return
	}
	defaultLogger.Log(context.Background(), level, fmt.Sprintf(format, v...))
}

func Tracef(format string, v ...interface{}) { logf(LevelTrace, format, v...) }
func Debugf(format string, v ...interface{}) { logf(LevelDebug, format, v...) }
func Infof(format string, v ...interface{})  { logf(LevelInfo, format, v...) }
func Warnf(format string, v ...interface{})  { logf(LevelWarn, format, v...) }
func Errorf(format string, v ...interface{}) { logf(LevelError, format, v...) }

// With returns a logger scoped to the given key/value pairs (e.g. worker
// index, connection fd), used so interleaved worker output stays
// attributable.
func With(args ...interface{}) *slog.Logger {
	return defaultLogger.With(args...)
}
