// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/tomtom215/wikivault/internal/logging"
)

// DefaultShutdownTimeout bounds http.Server.Shutdown when none is given
const DefaultShutdownTimeout = 10 * time.Second

// HTTPServerService runs the metrics and health server under suture. Each
// Serve call binds a fresh listener, so a restart after a bind failure
// retries the address.
//
//	server := &http.Server{Addr: "127.0.0.1:9464", Handler: services.NewObservabilityRouter(svc, services.RateLimit{})}
//	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
type HTTPServerService struct {
	server          *http.Server
	shutdownTimeout time.Duration

	mu   sync.Mutex
	addr net.Addr
}

func NewHTTPServerService(server *http.Server, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout}
}

// Addr is the bound address while Serve runs, nil otherwise. With port 0
// in server.Addr this is how callers learn the port.
func (h *HTTPServerService) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.addr
}

func (h *HTTPServerService) setAddr(a net.Addr) {
	h.mu.Lock()
	h.addr = a
	h.mu.Unlock()
}

// Serve implements suture.Service. Cancellation shuts the server down
// gracefully and returns ctx.Err(); a bind or accept failure is returned
// wrapped so the supervisor restarts the service.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("metrics server listen on %s: %w", h.server.Addr, err)
	}
	h.setAddr(ln.Addr())
	defer h.setAddr(nil)

	logging.Info().Str("addr", ln.Addr().String()).Msg("Metrics server listening")

	served := make(chan error, 1)
	go func() {
		served <- h.server.Serve(ln)
	}()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		<-served
		logging.Info().Msg("Metrics server stopped")
		return ctx.Err()
	}
}

func (h *HTTPServerService) String() string {
	return "metrics-server"
}
