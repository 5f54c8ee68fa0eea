// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// NewCorrelationID returns a short unique id for tying together the log
// lines of one logical operation (a sweep run, an ops request).
func NewCorrelationID() string {
	return uuid.New().String()[:8]
}

// WithCorrelationID returns a context carrying the given correlation id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// WithNewCorrelationID returns a context carrying a fresh correlation id.
func WithNewCorrelationID(ctx context.Context) context.Context {
	return WithCorrelationID(ctx, NewCorrelationID())
}

// CorrelationID extracts the correlation id, or "" when absent.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns the global logger enriched with the context's correlation id,
// when one is present.
func Ctx(ctx context.Context) zerolog.Logger {
	l := Logger()
	if id := CorrelationID(ctx); id != "" {
		l = l.With().Str("correlation_id", id).Logger()
	}
	return l
}
