// Package server coordinates graceful shutdown of the partprune service.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ShutdownManager drains in-flight requests and closes registered
// resources once shutdown begins.
type ShutdownManager struct {
	drainTimeout time.Duration
	logger       zerolog.Logger

	shutdownCh     chan struct{}
	shutdownOnce   sync.Once
	shutdownErr    error
	inFlight       atomic.Int64
	isShuttingDown atomic.Bool

	// Closers run in reverse registration order.
	closers   []io.Closer
	closersMu sync.Mutex
}

// NewShutdownManager creates a shutdown manager. drainTimeout bounds the
// wait for in-flight requests; zero means 15 seconds.
func NewShutdownManager(drainTimeout time.Duration, logger zerolog.Logger) *ShutdownManager {
	if drainTimeout <= 0 {
		drainTimeout = 15 * time.Second
	}
	return &ShutdownManager{
		drainTimeout: drainTimeout,
		logger:       logger,
		shutdownCh:   make(chan struct{}),
	}
}

// RegisterCloser adds a resource to close during shutdown.
func (sm *ShutdownManager) RegisterCloser(closer io.Closer) {
	sm.closersMu.Lock()
	defer sm.closersMu.Unlock()
	sm.closers = append(sm.closers, closer)
}

// Shutdown stops admitting requests, waits for in-flight ones and closes
// every registered resource. Only the first call does any work; later
// calls return its result.
func (sm *ShutdownManager) Shutdown(ctx context.Context, reason string) error {
	sm.shutdownOnce.Do(func() {
		sm.isShuttingDown.Store(true)
		close(sm.shutdownCh)
		sm.logger.Info().Str("reason", reason).Int64("in_flight", sm.InFlightCount()).Msg("shutting down")

		if err := sm.drainInFlight(ctx); err != nil {
			sm.shutdownErr = fmt.Errorf("drain failed: %w", err)
		}

		sm.closersMu.Lock()
		closers := sm.closers
		sm.closersMu.Unlock()

		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				sm.logger.Error().Err(err).Msg("close failed during shutdown")
				if sm.shutdownErr == nil {
					sm.shutdownErr = fmt.Errorf("close failed: %w", err)
				}
			}
		}
	})
	return sm.shutdownErr
}

func (sm *ShutdownManager) drainInFlight(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, sm.drainTimeout)
	defer cancel()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		if sm.InFlightCount() == 0 {
			return nil
		}
		select {
		case <-drainCtx.Done():
			if remaining := sm.InFlightCount(); remaining > 0 {
				return fmt.Errorf("timeout waiting for %d in-flight requests", remaining)
			}
			return nil
		case <-ticker.C:
		}
	}
}

// TrackRequest counts a request as in flight. It returns false once
// shutdown has begun.
func (sm *ShutdownManager) TrackRequest() bool {
	if sm.isShuttingDown.Load() {
		return false
	}
	sm.inFlight.Add(1)
	return true
}

// UntrackRequest ends a request counted by TrackRequest.
func (sm *ShutdownManager) UntrackRequest() {
	sm.inFlight.Add(-1)
}

// IsShuttingDown reports whether shutdown has begun.
func (sm *ShutdownManager) IsShuttingDown() bool {
	return sm.isShuttingDown.Load()
}

// InFlightCount returns the number of requests in flight.
func (sm *ShutdownManager) InFlightCount() int64 {
	return sm.inFlight.Load()
}

// ShutdownCh is closed when shutdown begins.
func (sm *ShutdownManager) ShutdownCh() <-chan struct{} {
	return sm.shutdownCh
}

// ShutdownMiddleware tracks in-flight requests and rejects new ones during
// shutdown.
func ShutdownMiddleware(sm *ShutdownManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sm.TrackRequest() {
				w.Header().Set("Connection", "close")
				http.Error(w, "service unavailable: shutting down", http.StatusServiceUnavailable)
				return
			}
			defer sm.UntrackRequest()
			next.ServeHTTP(w, r)
		})
	}
}

// CloserFunc is an adapter to allow ordinary functions to be used as io.Closer.
type CloserFunc func() error

// Close calls the underlying function.
func (f CloserFunc) Close() error {
	return f()
}
