// Package app wires the partprune service together and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	grpcapi "github.com/arkilian/partprune/internal/api/grpc"
	httpapi "github.com/arkilian/partprune/internal/api/http"
	"github.com/arkilian/partprune/internal/config"
	"github.com/arkilian/partprune/internal/logging"
	"github.com/arkilian/partprune/internal/manifest"
	"github.com/arkilian/partprune/internal/observability"
	"github.com/arkilian/partprune/internal/query/planner"
	"github.com/arkilian/partprune/internal/router"
	"github.com/arkilian/partprune/internal/server"
	"github.com/arkilian/partprune/internal/storage"
)

const (
	statsWindow        = 24 * time.Hour
	statsPruneInterval = time.Minute
	changeBufferSize   = 256
)

// App owns the catalog, planner and servers of one partprune process.
type App struct {
	cfg    *config.Config
	logger zerolog.Logger

	catalog  *manifest.SQLiteCatalog
	cache    *manifest.CachedRepository
	changes  *router.Subscriber
	repo     manifest.SchemeRepository
	planner  *planner.Planner
	stats    *observability.PruneStats
	shutdown *server.ShutdownManager
}

// New resolves and validates cfg, opens the catalog and builds the planner.
func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	catalog, err := manifest.NewCatalog(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		catalog:  catalog,
		repo:     catalog,
		stats:    observability.NewPruneStats(statsWindow),
		shutdown: server.NewShutdownManager(cfg.HTTP.WriteTimeout, logging.WithComponent(logger, "shutdown")),
	}
	a.shutdown.RegisterCloser(catalog)

	if cfg.Catalog.SnapshotTTL > 0 {
		a.cache = manifest.NewCachedRepository(catalog, cfg.Catalog.SnapshotTTL, cfg.Catalog.CacheCapacity)
		a.repo = a.cache

		notifier := router.NewNotifier(changeBufferSize)
		catalog.SetNotifier(notifier)
		a.changes = notifier.Subscribe("snapshot-cache")
	}

	a.planner = planner.NewPlanner(a.repo, planner.Options{
		Enabled:          cfg.Planner.Enabled,
		StrictInvariants: cfg.Planner.StrictInvariants,
		MaxInList:        cfg.Planner.MaxInList,
	}, logging.WithComponent(logger, "planner"))
	a.planner.SetStats(a.stats)

	return a, nil
}

// OpenStorage opens the object storage named by cfg.
func OpenStorage(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStorage, error) {
	switch cfg.Type {
	case "local":
		return storage.NewLocalStorage(cfg.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if cfg.S3.Region != "" {
			s3Cfg.Region = cfg.S3.Region
		}
		s3Cfg.Endpoint = cfg.S3.Endpoint
		s3Cfg.UsePathStyle = cfg.S3.UsePathStyle
		return storage.NewS3Storage(ctx, cfg.S3.Bucket, s3Cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// Catalog returns the catalog database.
func (a *App) Catalog() *manifest.SQLiteCatalog { return a.catalog }

// Repository returns the scheme repository the planner reads.
func (a *App) Repository() manifest.SchemeRepository { return a.repo }

// Planner returns the planner.
func (a *App) Planner() *planner.Planner { return a.planner }

// Stats returns the pruning statistics.
func (a *App) Stats() *observability.PruneStats { return a.stats }

// Invalidate drops cached snapshots after a catalog change.
func (a *App) Invalidate() {
	if a.cache != nil {
		a.cache.Purge()
	}
}

// Run serves HTTP and, when enabled, gRPC until ctx ends or a server fails,
// then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	if a.shutdown.IsShuttingDown() {
		return nil
	}
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	httpLogger := logging.WithComponent(a.logger, "http")
	handler := httpapi.NewHandler(a.planner, a.repo, a.stats)
	httpServer := &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      handler.Router(httpLogger, server.ShutdownMiddleware(a.shutdown)),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}
	httpListener, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.HTTP.Addr, err)
	}
	var grpcListener net.Listener
	if a.cfg.GRPC.Enabled {
		if grpcListener, err = net.Listen("tcp", a.cfg.GRPC.Addr); err != nil {
			httpListener.Close()
			return fmt.Errorf("failed to listen on %s: %w", a.cfg.GRPC.Addr, err)
		}
	}

	a.shutdown.RegisterCloser(server.CloserFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(ctx)
	}))
	g.Go(func() error {
		httpLogger.Info().Str("addr", httpListener.Addr().String()).Msg("http server listening")
		if err := httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if grpcListener != nil {
		grpcLogger := logging.WithComponent(a.logger, "grpc")
		grpcServer, health := grpcapi.NewServer(grpcapi.NewPruneServer(a.planner, a.repo), grpcLogger)
		a.shutdown.RegisterCloser(server.CloserFunc(func() error {
			health.Shutdown()
			grpcServer.GracefulStop()
			return nil
		}))
		g.Go(func() error {
			grpcLogger.Info().Str("addr", grpcListener.Addr().String()).Msg("grpc server listening")
			if err := grpcServer.Serve(grpcListener); err != nil {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	if a.cache != nil {
		a.shutdown.RegisterCloser(server.CloserFunc(func() error {
			a.cache.Stop()
			return nil
		}))
		g.Go(func() error {
			a.cache.Start()
			return nil
		})
		g.Go(func() error {
			a.cache.Watch(gctx, a.changes.Ch)
			return nil
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(statsPruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				a.stats.Prune()
			}
		}
	})

	// Close from another goroutine stops the servers; stop ends the rest.
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-a.shutdown.ShutdownCh():
			stop()
		}
		return a.shutdown.Shutdown(context.Background(), "context done")
	})

	return g.Wait()
}

// Close releases the catalog. Called while Run is active it makes Run
// return. It is a no-op after Run has returned.
func (a *App) Close() error {
	return a.shutdown.Shutdown(context.Background(), "close")
}
