package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tourbook/sessiond/internal/broadcast"
	"tourbook/sessiond/internal/cache"
	"tourbook/sessiond/internal/client"
	"tourbook/sessiond/internal/config"
	"tourbook/sessiond/internal/database"
	"tourbook/sessiond/internal/handlers"
	"tourbook/sessiond/internal/jobs"
	"tourbook/sessiond/internal/log"
	"tourbook/sessiond/internal/server"
	"tourbook/sessiond/internal/session"
	"tourbook/sessiond/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	var dbPool *pgxpool.Pool
	var persistent store.Store = store.NewRedis(redisClient, cfg.Session.Profile)
	if cfg.Postgres.DSN != "" {
		dbPool, err = database.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect postgres")
		}
		persistent = store.NewPostgres(dbPool, cfg.Session.Profile)
	}

	bus := broadcast.NewRedis(redisClient, cfg.Session.Channel, logger)
	identityAPI := client.NewIdentityClient(cfg.API.BaseURL, cfg.API.Timeout, logger)

	manager := session.New(persistent, bus, identityAPI, session.Config{
		RememberTTL:      cfg.Session.RememberTTL,
		InactivityWindow: cfg.Session.InactivityWindow,
	}, logger)

	// A 401 from the identity API means the platform revoked the token;
	// the registered handler tears the local session down.
	manager.SetUnauthorizedHandler(func() {
		logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		manager.Logout(logoutCtx)
	})

	if err := manager.Initialize(ctx); err != nil {
		logger.Fatal().Err(err).Msg("session manager init failed")
	}

	janitor := jobs.NewJanitor(persistent, logger)
	if err := janitor.Start(); err != nil {
		logger.Error().Err(err).Msg("janitor start failed")
	}

	handlerSet := handlers.NewHandlerSet(logger, manager, redisClient, dbPool, cfg)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, manager, janitor, bus, dbPool, redisClient)
}

func waitForShutdown(
	logger zerolog.Logger,
	srv *server.HTTPServer,
	manager *session.Manager,
	janitor *jobs.Janitor,
	bus *broadcast.Redis,
	db *pgxpool.Pool,
	redisClient *redis.Client,
) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	janitor.Stop()
	manager.Close()
	if err := bus.Close(); err != nil {
		logger.Error().Err(err).Msg("broadcast close error")
	}

	if db != nil {
		db.Close()
	}
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("sessiond exited cleanly")
}
