// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

/*
Package supervisor provides process supervision for Wikivault using suture v4.

# Overview

	RootSupervisor ("wikivault")
	├── BackupSupervisor ("backup-layer")
	│   └── backup.Scheduler ("backup-scheduler")
	└── APISupervisor ("api-layer")
	    └── HTTPServerService ("metrics-server")

A scheduler that keeps failing backs off on its own without restarting the
metrics server, so /healthz and /metrics stay reachable while an operator
investigates.

Supervisor events (service failures, restarts, backoff) are logged through
sutureslog using the zerolog bridge from internal/logging:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddBackupService(scheduler)
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	errCh := tree.ServeBackground(ctx)

# Configuration

Zero values in TreeConfig fall back to suture's defaults:
  - FailureThreshold: 5 failures
  - FailureDecay: 30 seconds
  - FailureBackoff: 15 seconds
  - ShutdownTimeout: 10 seconds

On shutdown, UnstoppedServiceReport lists services that ignored context
cancellation past ShutdownTimeout.
*/
package supervisor
