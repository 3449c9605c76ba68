// Copyright 2026 Cloudgate Authors.
// SPDX-License-Identifier: AGPL-3.0

package logging

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

type loggerContextKey struct{}

var logLevel = logrus.InfoLevel

// NewLogger builds the process-wide base logger: JSON-formatted, RFC3339Nano
// timestamps, at the given level.
func NewLogger(level logrus.Level) logrus.FieldLogger {
	logLevel = level
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
	})
	l.SetLevel(level)
	return l
}

// FromRequest returns the logger carried by the request's context, falling
// back to a fresh base logger if none was attached.
func FromRequest(r *http.Request) logrus.FieldLogger {
	return FromContext(r.Context())
}

// FromContext returns the logger carried by ctx, falling back to a fresh
// base logger if none was attached.
func FromContext(ctx context.Context) logrus.FieldLogger {
	if v := ctx.Value(loggerContextKey{}); v != nil {
		if l, ok := v.(logrus.FieldLogger); ok && l != nil {
			return l
		}
	}
	return NewLogger(logLevel)
}

// IntoRequest attaches l to r's context.
func IntoRequest(r *http.Request, l logrus.FieldLogger) *http.Request {
	return r.WithContext(IntoContext(r.Context(), l))
}

// IntoContext attaches l to ctx.
func IntoContext(ctx context.Context, l logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// Debug reports whether the process-wide log level is at or above debug.
func Debug() bool {
	return logLevel >= logrus.DebugLevel
}
