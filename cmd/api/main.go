package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"nexusstore/internal/auth"
	"nexusstore/internal/config"
	"nexusstore/internal/database"
	"nexusstore/internal/httpserver"
	"nexusstore/internal/httpserver/handlers"
	"nexusstore/internal/httpserver/respond"
	"nexusstore/internal/logger"
	"nexusstore/internal/metrics"
	"nexusstore/internal/payment"
	"nexusstore/internal/ratelimit"
	"nexusstore/internal/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Sugar().Fatalw("config load failed", "error", err)
	}
	lg := logger.New(cfg.LogLevel, cfg.IsDevelopment())
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg, lg)
	if err != nil {
		lg.Fatalw("db connect failed", "error", err)
	}
	if err := database.Migrate(db); err != nil {
		lg.Fatalw("automigrate failed", "error", err)
	}
	if _, err := database.SeedAdmin(ctx, db, cfg.AdminEmail, cfg.AdminPassword, "", lg); err != nil {
		lg.Errorw("admin seed failed", "error", err)
	}

	files, err := storage.NewLocal(cfg.UploadDir)
	if err != nil {
		lg.Fatalw("storage init failed", "error", err)
	}
	if cfg.StripeSecretKey == "" {
		lg.Warnw("STRIPE_SECRET_KEY is empty, checkout calls will fail")
	}

	gateway := payment.NewStripe(payment.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		Currency:      cfg.Currency,
		ReturnURL:     cfg.FrontendURL,
	})
	d := &handlers.Deps{
		DB:       db,
		Log:      lg,
		Cfg:      cfg,
		Files:    files,
		Payments: gateway,
		Tokens:   auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL),
		Resp:     respond.New(lg, cfg.IsDevelopment()),
		Metrics:  metrics.New(),
		Started:  time.Now(),
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpserver.NewRouter(d, newLimiter(ctx, cfg, lg)),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		lg.Infow("listening", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	lg.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Errorw("graceful shutdown failed", "error", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// newLimiter shares the budget through Redis when configured and falls back
// to an in-process limiter otherwise.
func newLimiter(ctx context.Context, cfg *config.Config, lg *zap.SugaredLogger) ratelimit.Limiter {
	if cfg.RedisURL != "" {
		client, err := ratelimit.Connect(ctx, cfg.RedisURL)
		if err == nil {
			lg.Infow("rate limiting through redis")
			return ratelimit.NewRedis(client, cfg.RateLimitMax, cfg.RateLimitWindow)
		}
		lg.Warnw("redis unavailable, using in-process rate limiting", "error", err)
	}
	mem := ratelimit.NewMemory(cfg.RateLimitMax, cfg.RateLimitWindow)
	mem.StartPruning(ctx, cfg.RateLimitWindow)
	return mem
}
