package logging

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the process logger. Unknown levels fall back to info.
func New(level, format string) *logrus.Logger {
	return NewWithOutput(os.Stdout, level, format)
}

// NewWithOutput is New with an explicit writer.
func NewWithOutput(out io.Writer, level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// Discard returns a logger that drops every entry. Used by tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type contextKey struct{}

// ContextWithLogger returns a derived context that carries the request scoped logger.
func ContextWithLogger(ctx context.Context, logger logrus.FieldLogger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored in ctx, or fallback when there is none.
func FromContext(ctx context.Context, fallback logrus.FieldLogger) logrus.FieldLogger {
	if ctx != nil {
		if logger, ok := ctx.Value(contextKey{}).(logrus.FieldLogger); ok && logger != nil {
			return logger
		}
	}
	if fallback != nil {
		return fallback
	}
	return logrus.StandardLogger()
}

// ServiceLogger scopes a logger to one service operation.
func ServiceLogger(ctx context.Context, base logrus.FieldLogger, service, operation string) logrus.FieldLogger {
	fields := logrus.Fields{"service": service}
	if operation != "" {
		fields["operation"] = operation
	}
	return FromContext(ctx, base).WithFields(fields)
}
