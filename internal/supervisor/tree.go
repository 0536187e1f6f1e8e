// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// Supervisor names as they appear in suture events
const (
	RootName        = "wikivault"
	BackupLayerName = "backup-layer"
	APILayerName    = "api-layer"
)

// TreeConfig is the restart policy shared by every supervisor in the tree.
// Zero fields take the DefaultTreeConfig value.
type TreeConfig struct {
	// Failures tolerated before the supervisor backs off
	FailureThreshold float64
	// Seconds for the failure count to decay
	FailureDecay float64
	// Pause once FailureThreshold is crossed
	FailureBackoff time.Duration
	// How long Serve waits for each child on shutdown
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig mirrors suture's own defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

func (c TreeConfig) withDefaults() TreeConfig {
	d := DefaultTreeConfig()
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureDecay == 0 {
		c.FailureDecay = d.FailureDecay
	}
	if c.FailureBackoff == 0 {
		c.FailureBackoff = d.FailureBackoff
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

func (c TreeConfig) spec() suture.Spec {
	return suture.Spec{
		FailureThreshold: c.FailureThreshold,
		FailureDecay:     c.FailureDecay,
		FailureBackoff:   c.FailureBackoff,
		Timeout:          c.ShutdownTimeout,
	}
}

// SupervisorTree is the process supervisor:
//
//	wikivault
//	├── backup-layer  (backup scheduler)
//	└── api-layer     (metrics and health server)
//
// Each layer restarts its own children, so a scheduler crash loop leaves
// /healthz answering.
type SupervisorTree struct {
	root   *suture.Supervisor
	backup *suture.Supervisor
	api    *suture.Supervisor
	config TreeConfig
}

// NewSupervisorTree builds the tree. Supervisor events (restarts, backoff,
// stop timeouts) are written to logger through sutureslog.
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) (*SupervisorTree, error) {
	config = config.withDefaults()

	hook := &sutureslog.Handler{Logger: logger}
	rootSpec := config.spec()
	rootSpec.EventHook = hook.MustHook()

	t := &SupervisorTree{
		root:   suture.New(RootName, rootSpec),
		backup: suture.New(BackupLayerName, config.spec()),
		api:    suture.New(APILayerName, config.spec()),
		config: config,
	}
	// Layers pick up the root's event hook when added
	t.root.Add(t.backup)
	t.root.Add(t.api)
	return t, nil
}

// AddBackupService supervises svc in the backup layer.
func (t *SupervisorTree) AddBackupService(svc suture.Service) suture.ServiceToken {
	return t.backup.Add(svc)
}

// AddAPIService supervises svc in the api layer.
func (t *SupervisorTree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve blocks until ctx is canceled and every child has stopped or timed out.
func (t *SupervisorTree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs Serve in a goroutine. The channel yields its result
// once.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport names children still running after ShutdownTimeout.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
