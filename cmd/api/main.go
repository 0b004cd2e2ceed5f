// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

// Command api is the entry point for the Veyra identity API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Wire domain services and HTTP handlers.
//  7. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/veyralabs/veyra/internal/api"
	"github.com/veyralabs/veyra/internal/identity/auth"
	"github.com/veyralabs/veyra/internal/identity/authz"
	"github.com/veyralabs/veyra/internal/identity/event"
	"github.com/veyralabs/veyra/internal/identity/lockout"
	"github.com/veyralabs/veyra/internal/identity/principal"
	"github.com/veyralabs/veyra/internal/identity/ratelimit"
	"github.com/veyralabs/veyra/internal/identity/tenant"
	"github.com/veyralabs/veyra/internal/platform/config"
	"github.com/veyralabs/veyra/internal/platform/constants"
	"github.com/veyralabs/veyra/internal/platform/migration"
	pgstore "github.com/veyralabs/veyra/internal/platform/postgres"
	redisstore "github.com/veyralabs/veyra/internal/platform/redis"
	"github.com/veyralabs/veyra/internal/platform/sec"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("[Veyra] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Token Signer ───────────────────────────────────────────────────
	// A missing or unreadable key is a hard startup failure, never a
	// degraded mode: issuing unsigned tokens is not an option.
	jwtSvc, err := sec.NewTokenService(cfg.JWTPrivKeyPath, cfg.JWTPubKeyPath, constants.AuthIssuer)
	must(log, err, "initialize jwt service")

	// ── 7. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// ── 8. Domain Wiring ──────────────────────────────────────────────────
	tenantRepository := tenant.NewRepository(pool)
	accountRepository := principal.NewRepository(pool)
	sessionRepository := auth.NewSessionRepository(pool)
	resetTokenRepository := auth.NewResetTokenRepository(rdb)
	verificationTokenRepository := auth.NewVerificationTokenRepository(rdb)

	authorizer := authz.NewService(
		authz.NewAuthority(pool),
		authz.NewCache(rdb),
		cfg.PermissionCacheTTL,
		log,
	)

	limiter := ratelimit.NewLimiter(
		ratelimit.NewRedisCounterStore(rdb),
		ratelimit.Config{
			Policies: map[ratelimit.Category]ratelimit.Policy{
				ratelimit.CategoryGeneral:         {Limit: cfg.RateLimitGeneralLimit, Window: cfg.RateLimitGeneralWindow},
				ratelimit.CategoryAuthentication:  {Limit: cfg.RateLimitAuthLimit, Window: cfg.RateLimitAuthWindow},
				ratelimit.CategoryRegistration:    {Limit: cfg.RateLimitRegistrationLimit, Window: cfg.RateLimitRegistrationWindow},
				ratelimit.CategoryCredentialReset: {Limit: cfg.RateLimitResetLimit, Window: cfg.RateLimitResetWindow},
			},
			Allowlist: cfg.RateLimitAllowlist,
			FailOpen:  cfg.RateLimitFailOpen,
		},
		log,
	)

	emitter := event.NewLogEmitter(log.With(slog.String("channel", "security")), 256)
	defer emitter.Close()

	authService := auth.NewService(auth.Options{
		Tenants:            tenantRepository,
		Accounts:           accountRepository,
		Sessions:           sessionRepository,
		ResetTokens:        resetTokenRepository,
		VerificationTokens: verificationTokenRepository,
		Tokens:             jwtSvc,
		Authorizer:         authorizer,
		Guard:              lockout.NewGuard(accountRepository),
		Events:             emitter,
		Logger:             log,
		AccessTokenTTL:     cfg.AccessTokenTTL,
		SessionTTL:         cfg.SessionTTL,
	})
	authHandler := auth.NewHandler(authService, authorizer, limiter)

	// ── 9. HTTP Server ────────────────────────────────────────────────────
	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

	handlers := api.Handlers{
		Liveness:   liveness,
		Readiness:  readiness,
		Auth:       authHandler,
		SigningKey: api.NewSigningKeyHandler(jwtSvc.PublicKeyPEM()),
	}

	server := api.NewServer(serverCtx, cfg, log, jwtSvc, handlers)

	// ── 10. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
