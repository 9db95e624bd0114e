package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"poscore/backend/internal/cache"
	"poscore/backend/internal/config"
	"poscore/backend/internal/httpapi"
	"poscore/backend/internal/lock"
	"poscore/backend/internal/logger"
	"poscore/backend/internal/metrics"
	"poscore/backend/internal/service"
	"poscore/backend/internal/store"
	"poscore/backend/internal/store/memory"
	pgstore "poscore/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	logCfg.Format = cfg.LogFormat
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	if err := validateSecurityConfig(cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var repo store.Repository
	var balanceCache cache.BalanceCache = cache.NoopBalanceCache{}
	closers := make([]func() error, 0, 2)
	defer func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				log.Warn("close error", zap.Error(err))
			}
		}
	}()

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback: %w", err)
		}
		closers = append(closers, pg.Close)
		if cfg.MigrateOnStart {
			if err := pgstore.Migrate(ctx, pg.DB()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info("migrations applied")
		}
		repo = pg
		log.Info("repository: postgres")
	} else {
		mem, err := memory.NewSeeded(log)
		if err != nil {
			return err
		}
		repo = mem
		balanceCache = cache.NewMemoryBalanceCache()
		log.Info("repository: in-memory")
	}

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.RedisAddr != "" {
		rdb := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		redisCache := cache.NewRedisBalanceCache(rdb)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("redis unavailable, using local cache and locks", zap.Error(err))
			_ = rdb.Close()
		} else {
			balanceCache = redisCache
			locker = lock.NewRedisLocker(rdb)
			closers = append(closers, rdb.Close)
			log.Info("cache: redis")
		}
	} else {
		log.Info("cache: redis disabled")
	}

	taxPercent, err := cfg.TaxPercent()
	if err != nil {
		return err
	}

	m := metrics.New()
	svc := service.New(repo, service.Options{
		DefaultTaxPercent: taxPercent,
		Metrics:           m,
		Logger:            log,
		Cache:             balanceCache,
		Locker:            locker,
		BalanceTTL:        cfg.BalanceCacheTTL(),
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo, log)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, m, log)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("POS backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case <-sig:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", zap.Error(err))
	}
	log.Info("server stopped")
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AllowedOrigin == "*" && cfg.DatabaseURL != "" {
		return fmt.Errorf("ALLOWED_ORIGIN must name an origin when running against a database")
	}
	return nil
}
