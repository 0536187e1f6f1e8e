// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

/*
Package services provides suture.Service wrappers for Wikivault components.

HTTPServerService runs an *http.Server as a suture service. Each Serve binds
its own listener and shuts the server down, bounded by a timeout, when the
supervisor cancels it.

NewObservabilityRouter builds the chi router the server exposes:

	GET /metrics       Prometheus exposition
	GET /healthz       200 with the newest backup time, 503 if the catalog is unreadable
	GET /healthz/live  always 200

Requests are limited per client IP with go-chi/httprate when a RateLimit
is given.

The backup scheduler is itself a suture.Service (backup.Scheduler) and needs
no wrapper.
*/
package services
