package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/ride-search/internal/cache"
	"github.com/example/ride-search/internal/config"
	httpapi "github.com/example/ride-search/internal/http"
	"github.com/example/ride-search/internal/ingest"
	"github.com/example/ride-search/internal/listing"
	"github.com/example/ride-search/internal/logging"
	"github.com/example/ride-search/internal/search"
	"github.com/example/ride-search/internal/session"
	"github.com/example/ride-search/internal/stats"
	"github.com/example/ride-search/internal/storage"
	"github.com/example/ride-search/migrations"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:           "ride-search-server",
		Short:         "Serve the rides search API and live search sessions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.New(configFile)
			if err != nil {
				return err
			}
			if err := bindFlags(v, cmd); err != nil {
				return err
			}
			cfg, err := config.LoadServerConfig(v)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "optional config file (yaml, toml or json)")
	cmd.Flags().String("addr", ":8080", "HTTP listen address")
	cmd.Flags().String("log-level", "info", "debug, info, warn or error")
	cmd.Flags().Bool("migrate", false, "apply SQL migrations on start")
	return cmd
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for key, flag := range map[string]string{
		"http.addr":        "addr",
		"log.level":        "log-level",
		"postgres.migrate": "migrate",
	} {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

func run(ctx context.Context, cfg config.ServerConfig) error {
	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	svc := &listing.Service{PageSize: cfg.PageSize, Logger: logger.Named("listings")}
	var readiness []func(context.Context) error

	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer ps.Close()
		if cfg.RunMigrations {
			applied, err := ps.Migrate(ctx, migrations.FS)
			if err != nil {
				return err
			}
			logger.Info("migrations applied", zap.Strings("files", applied))
		}
		svc.Store = ps
		readiness = append(readiness, ps.Ping)
	} else {
		logger.Warn("postgres.dsn not set; using in-memory listing store")
		svc.Store = storage.NewMemoryStore()
	}

	var popular httpapi.PopularRoutes
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rc.Close()
		svc.Cache = cache.NewRedisCache(rc, cfg.CacheTTL)
		popular = stats.NewRouteStats(rc)
		readiness = append(readiness, func(ctx context.Context) error { return rc.Ping(ctx).Err() })
	} else {
		svc.Cache = cache.NewMemoryCache(cfg.CacheTTL)
	}

	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		svc.Events = kp
	}

	sessions := session.NewRegistry(func() *search.Coordinator {
		return search.New(svc,
			search.WithDebounce(cfg.Debounce),
			search.WithRequestTimeout(cfg.RequestTimeout),
			search.WithLogger(logger))
	}, logger)

	api := httpapi.NewServer(httpapi.Deps{
		Listings:  svc,
		Popular:   popular,
		Sessions:  sessions,
		AuthToken: cfg.AuthToken,
		Logger:    logger,
		Ready: func(ctx context.Context) error {
			for _, check := range readiness {
				if err := check(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("ride-search listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", zap.Int("sessions", sessions.Len()))
		sessions.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
