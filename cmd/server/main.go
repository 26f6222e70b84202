package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/example/carpool-matching/internal/config"
	"github.com/example/carpool-matching/internal/dispatch"
	httpapi "github.com/example/carpool-matching/internal/http"
	"github.com/example/carpool-matching/internal/ingest"
	"github.com/example/carpool-matching/internal/logging"
	"github.com/example/carpool-matching/internal/matcher"
	"github.com/example/carpool-matching/internal/storage"
	"github.com/example/carpool-matching/internal/trips"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger("carpool-matching", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("match store unavailable", "error", err)
		os.Exit(1)
	}
	if closeStore != nil {
		closers = append(closers, closeStore)
	}

	provider, closeCache := tripsProvider(ctx, cfg, logger)
	if closeCache != nil {
		closers = append(closers, closeCache)
	}

	wsreg := dispatch.NewWSRegistry(logger)
	notifiers := dispatch.Fanout{dispatch.LogNotifier{Logger: logger}, wsreg}
	if cfg.NotificationsURL != "" {
		notifiers = append(notifiers, dispatch.NewHTTPNotifier(cfg.NotificationsURL, cfg.NotifyTimeout))
	}
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaMatchTopic)
		notifiers = append(notifiers, kp)
		closers = append(closers, kp.Close)
	}

	svc := &matcher.Service{
		Trips:         provider,
		Store:         store,
		Notify:        notifiers,
		Logger:        logger,
		NotifyTimeout: cfg.NotifyTimeout,
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(svc, wsreg, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("carpool-matching listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}
}

// openStore returns Postgres when PG_DSN is set and the in-memory store otherwise.
func openStore(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (storage.MatchStore, func() error, error) {
	if cfg.PGDSN == "" {
		logger.Warn("PG_DSN not set, matches are kept in memory")
		return storage.NewMemoryStore(), nil, nil
	}
	ps, err := storage.NewPostgresStore(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	if cfg.RunMigrations {
		script, err := os.ReadFile(filepath.Join("migrations", "001_create_matches.sql"))
		if err != nil {
			ps.Close()
			return nil, nil, err
		}
		if err := ps.Migrate(ctx, string(script)); err != nil {
			ps.Close()
			return nil, nil, err
		}
		logger.Info("migration applied", "file", "001_create_matches.sql")
	}
	return ps, ps.Close, nil
}

func tripsProvider(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (matcher.TripsProvider, func() error) {
	if cfg.TripsServiceURL == "" {
		logger.Warn("TRIPS_SERVICE_URL not set, searches return no candidates")
		return trips.Static{}, nil
	}
	next := trips.NewHTTPClient(cfg.TripsServiceURL, cfg.TripsTimeout)
	if cfg.TripsCacheTTL <= 0 {
		return next, nil
	}

	if cfg.RedisAddr != "" {
		rc := trips.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
		err := rc.Ping(ctx)
		if err == nil {
			return &trips.CachedProvider{Next: next, Cache: rc, TTL: cfg.TripsCacheTTL, Logger: logger}, rc.Close
		}
		logger.Warn("redis unreachable, using in-process trips cache", "addr", cfg.RedisAddr, "error", err)
		rc.Close()
	}
	return &trips.CachedProvider{Next: next, Cache: trips.NewMemoryCache(), TTL: cfg.TripsCacheTTL, Logger: logger}, nil
}
