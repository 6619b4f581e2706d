// Package logger wraps logrus with request-scoped fields carried in a context.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type contextKey struct{}

var base = logrus.New()

// Setup configures the process logger. An empty file logs to stderr only.
func Setup(level, format, file string) error {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	base.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q", format)
	}

	var out io.Writer = os.Stderr
	if file != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
	}
	base.SetOutput(out)
	return nil
}

// SetOutput redirects the process logger, used by tests to capture output.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

// Base returns the underlying logrus logger.
func Base() *logrus.Logger {
	return base
}

// WithField returns a context whose logger carries an extra field.
func WithField(ctx context.Context, key string, value interface{}) context.Context {
	return context.WithValue(ctx, contextKey{}, GetLogger(ctx).WithField(key, value))
}

// WithFields returns a context whose logger carries extra fields.
func WithFields(ctx context.Context, fields logrus.Fields) context.Context {
	return context.WithValue(ctx, contextKey{}, GetLogger(ctx).WithFields(fields))
}

// GetLogger returns the logger stored in ctx, or the process logger.
func GetLogger(ctx context.Context) *logrus.Entry {
	if ctx != nil {
		if entry, ok := ctx.Value(contextKey{}).(*logrus.Entry); ok {
			return entry
		}
	}
	return logrus.NewEntry(base)
}

func Debugf(ctx context.Context, format string, args ...interface{}) {
	GetLogger(ctx).Debugf(format, args...)
}

func Info(ctx context.Context, args ...interface{}) {
	GetLogger(ctx).Info(args...)
}

func Infof(ctx context.Context, format string, args ...interface{}) {
	GetLogger(ctx).Infof(format, args...)
}

func Warnf(ctx context.Context, format string, args ...interface{}) {
	GetLogger(ctx).Warnf(format, args...)
}

func Errorf(ctx context.Context, format string, args ...interface{}) {
	GetLogger(ctx).Errorf(format, args...)
}
