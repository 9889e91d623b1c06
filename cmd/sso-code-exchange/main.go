// Package main implements the SSO authorization code exchange server
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

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/wrale/sso-code-exchange/cmd/sso-code-exchange/handlers/health"
	"github.com/wrale/sso-code-exchange/internal/oauth"
	"github.com/wrale/sso-code-exchange/internal/querycache"
)

// Version is set by the build process
var Version = "dev"

func main() {
	// Load configuration from .env and the environment, failing fast
	cfg, err := loadConfig(".env")
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("Error loading configuration")
	}

	logger := newLogger(cfg)

	provider, err := oauth.NewSSOProvider(cfg.OAuth())
	if err != nil {
		logger.Fatal().Err(err).Msg("Error creating SSO provider")
	}

	checkers := make(map[string]health.Checker)

	// Redis is optional and only reported on by the health check
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Error parsing Redis URL")
		}
		redisClient = redis.NewClient(redisOpts)
		checkers["cache"] = querycache.NewRedisCache(redisClient)
	}

	srv, err := newServer(cfg, logger, provider, checkers)
	if err != nil {
		logger.Fatal().Err(err).Msg("Error creating server")
	}

	// No write timeout: the upstream exchange is bounded by the request only
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	// Channel to listen for errors coming from the server
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info().Int("port", cfg.Port).Str("version", Version).Msg("Server listening")
		serverErrors <- httpServer.ListenAndServe()
	}()

	// Channel to listen for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Error starting server")
		}

	case sig := <-shutdown:
		logger.Info().Stringer("signal", sig).Msg("Starting shutdown")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("Error shutting down server")
			if err := httpServer.Close(); err != nil {
				logger.Error().Err(err).Msg("Error closing server")
			}
		}

		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("Error closing Redis connection")
			}
		}
	}
}

// newLogger builds the process logger. Outside production it writes
// human readable console output.
func newLogger(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Production() {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Str("service", "sso-code-exchange").Logger()
}
