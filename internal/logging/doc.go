// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

// Package logging provides centralized zerolog-based structured logging for Wikivault.
//
// JSON output is the production default; console output is available for
// local development. The process logger sits behind an atomic pointer, so
// Init can reconfigure it after the config file is read while background
// services are already logging. Every line carries service=wikivault.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json", Timestamp: true})
//
//	logging.Info().Str("backup_id", id).Msg("Backup created")
//	logging.Error().Err(err).Msg("Remote sync failed")
//
// # Context-Aware Logging
//
// Operations carry a correlation ID and the acting user through
// context.Context. Ctx attaches both to every event:
//
//	ctx = logging.ContextWithNewCorrelationID(ctx)
//	ctx = logging.ContextWithUserID(ctx, "admin")
//	logging.Ctx(ctx).Info().Msg("Restore started")
//	// {"level":"info","service":"wikivault","correlation_id":"a1b2c3d4","user_id":"admin","message":"Restore started"}
//
// UserIDFromContext falls back to SystemUserID for scheduled work.
//
// # Activity Log
//
// ActivityLog records administrative actions (backup_created,
// backup_restored, backup_deleted, backup_settings_updated) as structured
// events with component=activity, separate from operational logging.
//
// # Secrets
//
// SanitizeToken and SanitizeValue mask credentials before they are logged,
// for example when the effective remote configuration is reported at startup.
//
// # slog Adapter
//
// The supervisor tree logs through sutureslog, which needs an *slog.Logger:
//
//	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
//
// # Testing
//
//	var buf bytes.Buffer
//	logging.SetLogger(logging.NewTestLogger(&buf))
package logging
