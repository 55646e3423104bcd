// Package logger provides a lightweight, centralized logging facility
// with configurable verbosity levels.
//
// Verbosity levels (in increasing order):
//
//	Error < Info < Debug < Trace
//
// Records are written through log/slog. By default they go to stderr;
// Configure can redirect them to a size-rotated file.
//
// Example usage:
//
//	logger.SetVerbosity(2) // Debug
//	logger.Infof("building grids")
//	logger.Debugf("spot=%f vol=%f", spot, vol)
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents a logging verbosity level.
// Higher values mean more verbose logging.
type Level int

const (
	Error Level = iota // Error logs only critical failures.
	Info               // Info logs high-level application progress.
	Debug              // Debug logs detailed diagnostic information.
	Trace              // Trace logs very fine-grained execution details.
)

const levelTrace = slog.LevelDebug - 4

// Options selects where records go.
type Options struct {
	// File is the log file path; empty keeps stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var (
	// current holds the active verbosity level.
	// Only messages with level <= current are logged.
	current atomic.Int32

	sink atomic.Pointer[slog.Logger]
)

func init() {
	current.Store(int32(Info))
	sink.Store(newSlog(os.Stderr))
}

// SetVerbosity sets the global logging verbosity.
// Typically called once during application startup
// (e.g. after parsing CLI flags). Out of range values are clamped.
func SetVerbosity(v int) {
	switch {
	case v < int(Error):
		v = int(Error)
	case v > int(Trace):
		v = int(Trace)
	}
	current.Store(int32(v))
}

// Verbosity returns the active level.
func Verbosity() Level {
	return Level(current.Load())
}

// Configure redirects output according to opts. The returned closer must be
// closed on shutdown when a file is used.
func Configure(opts Options) (io.Closer, error) {
	if opts.File == "" {
		sink.Store(newSlog(os.Stderr))
		return nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	w := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	sink.Store(newSlog(w))
	return w, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// SetOutput sends records to w. Mostly useful in tests.
func SetOutput(w io.Writer) {
	sink.Store(newSlog(w))
}

func newSlog(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: levelTrace,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == levelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}))
}

// logf is the internal logging helper.
// It checks verbosity and delegates formatting to fmt and output to slog.
func logf(l Level, sl slog.Level, format string, args ...any) {
	if Level(current.Load()) >= l {
		sink.Load().Log(context.Background(), sl, fmt.Sprintf(format, args...))
	}
}

// Errorf logs an error-level message.
// Use this for failures that require attention.
func Errorf(format string, args ...any) {
	logf(Error, slog.LevelError, format, args...)
}

// Infof logs an informational message.
// Use this for major lifecycle events.
func Infof(format string, args ...any) {
	logf(Info, slog.LevelInfo, format, args...)
}

// Debugf logs debugging information.
func Debugf(format string, args ...any) {
	logf(Debug, slog.LevelDebug, format, args...)
}

// Tracef logs very detailed execution traces.
// Use this sparingly due to high volume.
func Tracef(format string, args ...any) {
	logf(Trace, levelTrace, format, args...)
}
