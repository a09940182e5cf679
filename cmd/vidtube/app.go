package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/nkiryanov/vidtube/internal/db"
	"github.com/nkiryanov/vidtube/internal/handlers"
	"github.com/nkiryanov/vidtube/internal/handlers/middleware"
	"github.com/nkiryanov/vidtube/internal/logger"
	"github.com/nkiryanov/vidtube/internal/metrics"
	"github.com/nkiryanov/vidtube/internal/repository"
	"github.com/nkiryanov/vidtube/internal/repository/memory"
	"github.com/nkiryanov/vidtube/internal/repository/postgres"
	"github.com/nkiryanov/vidtube/internal/service/auth"
	"github.com/nkiryanov/vidtube/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/vidtube/internal/service/media"
	"github.com/nkiryanov/vidtube/internal/service/ratelimit"
	"github.com/nkiryanov/vidtube/internal/service/user"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger  logger.Logger
	closers []func()

	// Background jobs, run along with the server
	workers []func(ctx context.Context) <-chan struct{}
}

func NewServerApp(ctx context.Context, c *Config) (_ *ServerApp, err error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app := &ServerApp{ListenAddr: c.ListenAddr, logger: l}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	// Storage: postgres, or memory if database is not set
	var (
		storage repository.Storage
		health  interface{ Ping(context.Context) error }
	)
	switch c.DatabaseDSN {
	case "":
		l.Warn("database is not set, users are kept in memory and lost on restart")
		storage = memory.NewStorage()
	default:
		pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
		}
		app.closers = append(app.closers, pool.Close)
		storage = postgres.NewStorage(pool)
		health = pool
	}

	tokens, err := tokenmanager.New(tokenmanager.Config{
		AccessSecret:  c.AccessSecret,
		RefreshSecret: c.RefreshSecret,
		AccessTTL:     c.AccessTTL,
		RefreshTTL:    c.RefreshTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	m := metrics.New(prometheus.NewRegistry())
	authOpts := []auth.Option{auth.WithEventRecorder(m), auth.WithLogger(l)}

	switch c.RedisURL {
	case "":
		l.Warn("redis is not set, login attempts are not throttled")
	default:
		client, err := ratelimit.Connect(ctx, c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
		}
		app.closers = append(app.closers, func() { _ = client.Close() })
		authOpts = append(authOpts, auth.WithLimiter(ratelimit.NewLoginLimiter(client, ratelimit.LoginLimiterConfig{})))
	}

	authService, err := auth.NewService(auth.Config{CookieInsecure: c.CookieInsecure}, tokens, storage.User(), authOpts...)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	// Store stays nil interface if uploads are off
	var (
		store    media.Store
		userOpts []user.Option
	)
	switch c.S3.Bucket {
	case "":
		l.Warn("s3 bucket is not set, image uploads are disabled")
	default:
		s3Store, err := media.NewS3Store(ctx, media.S3Config{
			Bucket:    c.S3.Bucket,
			Region:    c.S3.Region,
			Endpoint:  c.S3.Endpoint,
			AccessKey: c.S3.AccessKey,
			SecretKey: c.S3.SecretKey,
			PublicURL: c.S3.PublicURL,
		})
		if err != nil {
			return nil, fmt.Errorf("error while creating media store. Err: %w", err)
		}
		store = s3Store

		cleaner := media.NewCleaner(s3Store, l)
		userOpts = append(userOpts, user.WithCleaner(cleaner))
		app.workers = append(app.workers, cleaner.Run)
	}

	userService := user.NewService(auth.DefaultHasher, storage, store, l, userOpts...)

	app.Handler = handlers.NewRouter(authService, userService, health, m, l)
	if len(c.CORSOrigins) > 0 {
		app.Handler = middleware.CORSMiddleware(c.CORSOrigins)(app.Handler)
	}

	return app, nil
}

// Release connections. Safe to call many times
func (s *ServerApp) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Listen and serve until context is cancelled
	g.Go(func() error {
		s.logger.Info("starting server", "address", s.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	for _, worker := range s.workers {
		g.Go(func() error {
			<-worker(gCtx)
			return nil
		})
	}

	// Close gracefully connections
	g.Go(func() error {
		<-gCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err != nil {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown", "error", err)
			return err
		}

		s.logger.Info("HTTP server stopped")
		return nil
	})

	return g.Wait()
}
