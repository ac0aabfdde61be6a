// Package app wires storage, the upload pipeline, the live listing and
// the HTTP surface into one runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"dropzone/internal/api"
	"dropzone/internal/config"
	"dropzone/internal/engine"
	"dropzone/internal/logging"
	"dropzone/internal/metrics"
	"dropzone/internal/storage"
	"dropzone/internal/upload"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

type App struct {
	cfg    *config.Config
	logger logging.Logger

	provider    *storage.FileSystemProvider
	broadcaster *engine.Broadcaster
	watcher     *engine.Watcher
	api         *api.Server
	httpServer  *http.Server
}

// New prepares the storage directory and every component. Nothing runs
// until Run is called.
func New(cfg *config.Config, logger logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	provider, err := storage.NewFileSystemProvider(afero.NewOsFs(), cfg.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	swept, err := provider.SweepTemp()
	if err != nil {
		return nil, fmt.Errorf("failed to clean up storage: %w", err)
	}
	if swept > 0 {
		logger.Info(context.Background(), "removed leftover partial uploads", "count", swept, "dir", provider.GetPath())
	}

	m := metrics.New()
	broadcaster := engine.NewBroadcaster(provider, engine.BroadcasterOptions{
		Workers: cfg.FanoutWorkers,
		Metrics: m,
		Logger:  logger.With("component", "broadcaster"),
	})

	watcher, err := engine.NewWatcher(provider.GetPath(), cfg.DebounceInterval,
		broadcaster.OnDirectoryChanged, logger.With("component", "watcher"))
	if err != nil {
		broadcaster.Close()
		return nil, err
	}

	decoder := upload.NewDecoder(provider, upload.Options{
		MaxSize: cfg.MaxUploadSize,
		Metrics: m,
		Logger:  logger.With("component", "upload"),
	})

	server := api.NewServer(api.Options{
		Provider:      provider,
		Decoder:       decoder,
		Broadcaster:   broadcaster,
		Metrics:       m,
		Logger:        logger.With("component", "api"),
		MaxUploadSize: cfg.MaxUploadSize,
		Heartbeat:     cfg.HeartbeatInterval,
	})

	return &App{
		cfg:         cfg,
		logger:      logger,
		provider:    provider,
		broadcaster: broadcaster,
		watcher:     watcher,
		api:         server,
		httpServer: &http.Server{
			Handler:           server.Handler(),
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}, nil
}

// Run listens on the configured port and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		a.broadcaster.Close()
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.Addr(), err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln together with the directory watcher.
// When ctx is cancelled, or either of them fails, open listing streams
// are ended and the server is shut down gracefully.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	files, _ := storage.Snapshot(a.provider)
	a.logger.Info(ctx, "server ready",
		"addr", ln.Addr().String(),
		"dir", a.provider.GetPath(),
		"files", len(files),
		"maxUploadSize", humanize.IBytes(uint64(a.cfg.MaxUploadSize)))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.watcher.Run(gctx)
	})

	g.Go(func() error {
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info(ctx, "shutting down")

		a.api.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := a.httpServer.Shutdown(shutdownCtx)
		a.broadcaster.Close()
		if err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
