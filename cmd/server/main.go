// Command carebridge-server starts the CareBridge HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/carebridge/carebridge/internal/config"
	"github.com/carebridge/carebridge/internal/limiter"
	"github.com/carebridge/carebridge/internal/migrate"
	"github.com/carebridge/carebridge/internal/notify"
	"github.com/carebridge/carebridge/internal/presence"
	"github.com/carebridge/carebridge/internal/repository/postgres"
	httpserver "github.com/carebridge/carebridge/internal/server/http"
	"github.com/carebridge/carebridge/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations, and starts the HTTP server.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTPAddr),
	)

	if cfg.JWTKey == "" {
		logger.Fatal("missing JWT_KEY")
	}
	if cfg.PrivateKeyPEM == "" {
		logger.Fatal("missing CIPHER_PRIVATE_KEY")
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	// DB pool
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("pgxpool.New", zap.Error(err))
	}
	defer pool.Close()

	// Redis client for presence and live notification delivery
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, presence and live delivery degraded", zap.Error(err))
	}

	// Repositories
	db := &postgres.DB{Pool: pool}
	profileRepo := postgres.NewProfileRepo(db)
	notifRepo := postgres.NewNotificationRepo(db)

	lim := limiter.NewPG(pool, cfg.LoginWindow, cfg.LoginMaxFails, cfg.LoginBlockFor)

	// Services
	authSvc := service.NewAuthService(profileRepo, cfg.PrivateKeyPEM, []byte(cfg.JWTKey), cfg.AccessTTL, lim)
	profileSvc := service.NewProfileService(profileRepo)
	pres := presence.New(rdb, logger)
	dispatcher := notify.New(profileRepo, notifRepo, rdb, logger)

	app := httpserver.New(authSvc, profileSvc, notifRepo, dispatcher, pres, []byte(cfg.JWTKey), logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}
