// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package backup

import (
	"context"
	"time"

	"github.com/tomtom215/wikivault/internal/logging"
)

const (
	// DefaultPollInterval caps every sleep so config edits take effect promptly
	DefaultPollInterval = 5 * time.Minute

	// DefaultRetryDelay is the wait after a failed automatic backup
	DefaultRetryDelay = time.Hour
)

// SchedulerOptions tunes the automatic backup loop
type SchedulerOptions struct {
	PollInterval time.Duration
	RetryDelay   time.Duration
}

// Scheduler creates automatic backups. It re-reads BackupConfig on every
// tick and runs as a suture service.
type Scheduler struct {
	svc  *Service
	opts SchedulerOptions

	// lastFailure is only touched from Serve's goroutine
	lastFailure time.Time
}

// NewScheduler creates a scheduler for svc. Zero options take the defaults.
func NewScheduler(svc *Service, opts SchedulerOptions) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	return &Scheduler{svc: svc, opts: opts}
}

// Serve implements suture.Service. It returns only when ctx is canceled.
func (s *Scheduler) Serve(ctx context.Context) error {
	log := logging.WithComponent("scheduler")
	log.Info().
		Dur("poll_interval", s.opts.PollInterval).
		Dur("retry_delay", s.opts.RetryDelay).
		Msg("Backup scheduler started")

	for {
		wait := s.tick(ctx)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("Backup scheduler stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// String implements fmt.Stringer for suture logging
func (s *Scheduler) String() string {
	return "backup-scheduler"
}

// tick makes one scheduling decision and returns how long to sleep
func (s *Scheduler) tick(ctx context.Context) time.Duration {
	cfg := s.svc.GetConfig()
	if !cfg.AutoBackupEnabled {
		return s.opts.PollInterval
	}

	now := s.svc.now()
	due, err := s.nextDue(cfg)
	if err != nil {
		logging.Error().Err(err).Msg("Backup scheduler cannot read catalog")
		return s.opts.PollInterval
	}
	if now.Before(due) {
		return s.capped(due.Sub(now))
	}

	ctx = logging.ContextWithNewCorrelationID(ctx)
	record, err := s.svc.CreateScheduledBackup(ctx)
	if err != nil {
		s.lastFailure = now
		logging.Ctx(ctx).Error().Err(err).Dur("retry_in", s.opts.RetryDelay).Msg("Scheduled backup failed")
		return s.capped(s.opts.RetryDelay)
	}

	s.lastFailure = time.Time{}
	logging.Ctx(ctx).Info().Str("backup_id", record.ID).Msg("Scheduled backup completed")
	return s.capped(time.Duration(cfg.IntervalHours) * time.Hour)
}

// nextDue is interval_hours after the newest record, pushed back by
// RetryDelay after a failure. With no records a backup is due now.
func (s *Scheduler) nextDue(cfg BackupConfig) (time.Time, error) {
	latest, err := s.svc.LatestBackupTime()
	if err != nil {
		return time.Time{}, err
	}

	var due time.Time
	if !latest.IsZero() {
		due = latest.Add(time.Duration(cfg.IntervalHours) * time.Hour)
	}
	if !s.lastFailure.IsZero() {
		if retry := s.lastFailure.Add(s.opts.RetryDelay); retry.After(due) {
			due = retry
		}
	}
	return due, nil
}

func (s *Scheduler) capped(d time.Duration) time.Duration {
	if d > s.opts.PollInterval {
		return s.opts.PollInterval
	}
	if d < time.Second {
		return time.Second
	}
	return d
}
