package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/SaddleSum/internal/api"
	"github.com/MikeSquared-Agency/SaddleSum/internal/config"
	"github.com/MikeSquared-Agency/SaddleSum/internal/hermes"
	"github.com/MikeSquared-Agency/SaddleSum/internal/metrics"
	"github.com/MikeSquared-Agency/SaddleSum/internal/resultcache"
	"github.com/MikeSquared-Agency/SaddleSum/internal/service"
	"github.com/MikeSquared-Agency/SaddleSum/internal/store"
)

const (
	requestsPerMinute = 120
	shutdownTimeout   = 10 * time.Second
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the enrichment HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := a.logger(os.Stdout)
			slog.SetDefault(logger)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a.cfg, logger)
		},
	}
}

// backends holds the connections shared by serve and import.
type backends struct {
	store  *store.PostgresStore
	events hermes.Client
}

func openBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backends, error) {
	db, err := store.NewPostgresStore(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	logger.Info("connected to database")

	b := &backends{store: db}
	// Hermes (optional)
	if cfg.Hermes.URL != "" {
		hc, err := hermes.NewNATSClient(ctx, cfg.Hermes.URL, logger)
		if err != nil {
			logger.Warn("failed to connect to hermes, running without events", "error", err)
		} else {
			b.events = hc
			logger.Info("connected to hermes")
		}
	}
	return b, nil
}

func (b *backends) Close() {
	if b.events != nil {
		b.events.Close()
	}
	b.store.Close()
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	// Redis (optional)
	var results resultcache.Cache
	if cfg.Redis.Addr != "" {
		rc, err := resultcache.NewRedisCache(ctx, resultcache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.ResultTTL(),
		})
		if err != nil {
			logger.Warn("failed to connect to redis, running without result cache", "error", err)
		} else {
			results = rc
			defer rc.Close()
			logger.Info("connected to redis", "ttl", cfg.ResultTTL())
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	defaults, err := cfg.EnrichOptions()
	if err != nil {
		return err
	}
	svc, err := service.New(b.store, b.events, results, m, defaults, cfg.Cache.Databases, logger)
	if err != nil {
		return err
	}
	if err := svc.WatchDatabases(); err != nil {
		logger.Warn("failed to watch database events", "error", err)
	}

	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(svc, cfg.Server.AdminToken, requestsPerMinute, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           api.NewMetricsRouter(reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range []struct {
		name string
		s    *http.Server
	}{{"API", apiServer}, {"metrics", metricsServer}} {
		srv := srv
		g.Go(func() error {
			logger.Info(srv.name+" server starting", "addr", srv.s.Addr)
			if err := srv.s.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server: %w", srv.name, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(apiServer.Shutdown(shutdownCtx), metricsServer.Shutdown(shutdownCtx))
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}
