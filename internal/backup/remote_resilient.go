// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/wikivault/internal/logging"
	"github.com/tomtom215/wikivault/internal/metrics"
)

// ResilientOptions tunes the protection applied around a RemoteClient
type ResilientOptions struct {
	// Timeout bounds every single remote call
	Timeout time.Duration

	// RetryAttempts is the total number of tries for Upload and Download
	RetryAttempts uint

	// InitialBackoff is the first retry delay; it grows exponentially
	InitialBackoff time.Duration

	// RatePerSecond limits remote calls; Burst allows short spikes
	RatePerSecond float64
	Burst         int

	// BreakerFailures consecutive failures open the circuit
	BreakerFailures uint32

	// BreakerTimeout is how long the circuit stays open before probing
	BreakerTimeout time.Duration

	// BreakerInterval resets the closed-state counts
	BreakerInterval time.Duration

	// BreakerMaxRequests are allowed through while half-open
	BreakerMaxRequests uint32
}

// DefaultResilientOptions returns production defaults
func DefaultResilientOptions() ResilientOptions {
	return ResilientOptions{
		Timeout:            2 * time.Minute,
		RetryAttempts:      3,
		InitialBackoff:     time.Second,
		RatePerSecond:      5,
		Burst:              5,
		BreakerFailures:    5,
		BreakerTimeout:     2 * time.Minute,
		BreakerInterval:    5 * time.Minute,
		BreakerMaxRequests: 1,
	}
}

// ResilientClient wraps a RemoteClient with a per-call timeout, a rate
// limiter, a circuit breaker and retries. Delete and List are tried once.
type ResilientClient struct {
	inner   RemoteClient
	opts    ResilientOptions
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[interface{}]
}

// NewResilientClient wraps inner. Zero option fields take their defaults.
func NewResilientClient(inner RemoteClient, opts ResilientOptions) *ResilientClient {
	opts = withResilientDefaults(opts)
	provider := inner.Name()

	metrics.SetRemoteCircuitState(provider, "", stateToString(gobreaker.StateClosed), 0)

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "remote-" + provider,
		MaxRequests: opts.BreakerMaxRequests,
		Interval:    opts.BreakerInterval,
		Timeout:     opts.BreakerTimeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= opts.BreakerFailures
			if trip {
				logging.Warn().Str("provider", provider).Uint32("consecutive_failures", counts.ConsecutiveFailures).Msg("[CIRCUIT BREAKER] Opening remote circuit")
			}
			return trip
		},

		// A missing object proves the store is reachable
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errRemoteNotFound)
		},

		OnStateChange: func(_ string, from, to gobreaker.State) {
			logging.Info().Str("provider", provider).Str("from", stateToString(from)).Str("to", stateToString(to)).Msg("[CIRCUIT BREAKER] State transition")
			metrics.SetRemoteCircuitState(provider, stateToString(from), stateToString(to), stateToFloat(to))
		},
	})

	return &ResilientClient{
		inner:   inner,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		cb:      cb,
	}
}

func withResilientDefaults(opts ResilientOptions) ResilientOptions {
	def := DefaultResilientOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = def.RetryAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = def.InitialBackoff
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = def.RatePerSecond
	}
	if opts.Burst <= 0 {
		opts.Burst = def.Burst
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = def.BreakerFailures
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = def.BreakerTimeout
	}
	if opts.BreakerInterval <= 0 {
		opts.BreakerInterval = def.BreakerInterval
	}
	if opts.BreakerMaxRequests == 0 {
		opts.BreakerMaxRequests = def.BreakerMaxRequests
	}
	return opts
}

func (c *ResilientClient) Name() string { return c.inner.Name() }

func (c *ResilientClient) IsConfigured() bool { return c.inner.IsConfigured() }

// SetFolderID forwards to the wrapped client when it supports pinning
func (c *ResilientClient) SetFolderID(id string) {
	if fr, ok := c.inner.(FolderResolver); ok {
		fr.SetFolderID(id)
	}
}

// State returns the current breaker state name (closed, half-open, open)
func (c *ResilientClient) State() string {
	return stateToString(c.cb.State())
}

func (c *ResilientClient) Upload(ctx context.Context, localPath, displayName string) (string, error) {
	res, err := c.call(ctx, "upload", c.opts.RetryAttempts, func(ctx context.Context) (interface{}, error) {
		return c.inner.Upload(ctx, localPath, displayName)
	})
	if err != nil {
		return "", err
	}
	id, ok := res.(string)
	if !ok {
		return "", fmt.Errorf("%w: unexpected upload result type %T", ErrRemoteSync, res)
	}
	return id, nil
}

func (c *ResilientClient) Download(ctx context.Context, remoteID, destPath string) error {
	_, err := c.call(ctx, "download", c.opts.RetryAttempts, func(ctx context.Context) (interface{}, error) {
		return nil, c.inner.Download(ctx, remoteID, destPath)
	})
	return err
}

func (c *ResilientClient) Delete(ctx context.Context, remoteID string) error {
	_, err := c.call(ctx, "delete", 1, func(ctx context.Context) (interface{}, error) {
		return nil, c.inner.Delete(ctx, remoteID)
	})
	return err
}

func (c *ResilientClient) List(ctx context.Context) ([]RemoteObject, error) {
	res, err := c.call(ctx, "list", 1, func(ctx context.Context) (interface{}, error) {
		return c.inner.List(ctx)
	})
	if err != nil {
		return nil, err
	}
	objects, ok := res.([]RemoteObject)
	if !ok && res != nil {
		return nil, fmt.Errorf("%w: unexpected list result type %T", ErrRemoteSync, res)
	}
	return objects, nil
}

// call runs fn through the limiter and breaker, retrying up to tries times.
// Rejections by an open circuit, a missing object and a cancelled context
// end the retries at once.
func (c *ResilientClient) call(ctx context.Context, operation string, tries uint, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	provider := c.inner.Name()

	attempt := func() (interface{}, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("%w: rate limiter: %v", ErrRemoteSync, err))
		}

		start := time.Now()
		res, err := c.cb.Execute(func() (interface{}, error) {
			callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
			defer cancel()
			return fn(callCtx)
		})

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.RecordRemoteRequest(provider, operation, metrics.ResultRejected, 0)
			return nil, backoff.Permanent(fmt.Errorf("%w: %s circuit open: %v", ErrRemoteSync, provider, err))
		}

		result := metrics.ResultSuccess
		if err != nil {
			result = metrics.ResultFailure
		}
		metrics.RecordRemoteRequest(provider, operation, result, time.Since(start))

		if err != nil {
			if errors.Is(err, errRemoteNotFound) || ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			logging.Debug().Err(err).Str("provider", provider).Str("operation", operation).Msg("Remote call failed")
		}
		return res, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialBackoff

	res, err := backoff.Retry(ctx, attempt, backoff.WithBackOff(b), backoff.WithMaxTries(tries))
	if err != nil && !errors.Is(err, ErrRemoteSync) {
		err = fmt.Errorf("%w: %s %s: %v", ErrRemoteSync, provider, operation, err)
	}
	return res, err
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
