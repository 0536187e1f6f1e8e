// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ctxKey int

const (
	correlationIDKey ctxKey = iota
	requestIDKey
	userIDKey
)

// SystemUserID is the actor for work nobody asked for, such as scheduled
// backups and retention.
const SystemUserID = "system"

func stringValue(ctx context.Context, key ctxKey) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// GenerateCorrelationID returns the first 8 chars of a random uuid. Short
// enough to grep for, unique enough within one process run.
func GenerateCorrelationID() string {
	return uuid.NewString()[:8]
}

// GenerateRequestID returns a full uuid for X-Request-ID.
func GenerateRequestID() string {
	return uuid.NewString()
}

// ContextWithCorrelationID ties every log line of one backup or restore
// together.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// ContextWithNewCorrelationID is ContextWithCorrelationID with a fresh id.
func ContextWithNewCorrelationID(ctx context.Context) context.Context {
	return ContextWithCorrelationID(ctx, GenerateCorrelationID())
}

// CorrelationIDFromContext returns "" when none is set.
func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationIDKey)
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// ContextWithUserID records who triggered an operation. The backup service
// passes it to the activity log.
//
//	ctx = logging.ContextWithUserID(ctx, "admin")
//	svc.RestoreBackup(ctx, id)
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns SystemUserID when no user is set.
func UserIDFromContext(ctx context.Context) string {
	if id := stringValue(ctx, userIDKey); id != "" {
		return id
	}
	return SystemUserID
}

// CtxWith starts a child of the process logger carrying correlation_id,
// request_id and user_id, each only when present in ctx.
//
//	log := logging.CtxWith(ctx).Str("backup_id", id).Logger()
func CtxWith(ctx context.Context) zerolog.Context {
	zctx := With()
	if id := CorrelationIDFromContext(ctx); id != "" {
		zctx = zctx.Str("correlation_id", id)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		zctx = zctx.Str("request_id", id)
	}
	if id := stringValue(ctx, userIDKey); id != "" {
		zctx = zctx.Str("user_id", id)
	}
	return zctx
}

// Ctx is CtxWith(ctx).Logger().
//
//	logging.Ctx(ctx).Warn().Err(err).Msg("Remote sync failed, backup kept locally")
func Ctx(ctx context.Context) *zerolog.Logger {
	l := CtxWith(ctx).Logger()
	return &l
}

// WithComponent returns a child logger tagged with component.
func WithComponent(component string) zerolog.Logger {
	return With().Str("component", component).Logger()
}
