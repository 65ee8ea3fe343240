package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/junohealth/marketexplorer/internal/adapters/cache"
	"github.com/junohealth/marketexplorer/internal/adapters/database"
	"github.com/junohealth/marketexplorer/internal/adapters/events"
	"github.com/junohealth/marketexplorer/internal/api/handlers"
	"github.com/junohealth/marketexplorer/internal/api/routes"
	"github.com/junohealth/marketexplorer/internal/application/services"
	"github.com/junohealth/marketexplorer/internal/domain/providers"
	"github.com/junohealth/marketexplorer/internal/infrastructure/clients/claimsapi"
	"github.com/junohealth/marketexplorer/internal/infrastructure/clients/postgres"
	redisclient "github.com/junohealth/marketexplorer/internal/infrastructure/clients/redis"
	"github.com/junohealth/marketexplorer/internal/infrastructure/observability"
	"github.com/junohealth/marketexplorer/pkg/config"
	"github.com/junohealth/marketexplorer/pkg/secrets"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Vault values land in the environment before config is read
	vaultResult, vaultErr := secrets.ApplyVaultSecrets(ctx, secrets.LoadVaultConfigFromEnv())

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Server.Env)
	if vaultErr != nil {
		log.Warn().Err(vaultErr).Msg("Failed to load secrets from Vault")
	} else if vaultResult.Enabled {
		log.Info().Str("path", vaultResult.Path).Int("loaded", vaultResult.Loaded).Int("skipped", vaultResult.Skipped).Msg("Vault secrets applied")
	}

	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
			log.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	// Cache backend
	var (
		redisClient *redisclient.Client
		responses   providers.CacheProvider
		relations   providers.CacheProvider
	)
	switch cfg.Cache.Backend {
	case "redis":
		redisClient, err = redisclient.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.RedisAddr()).Msg("Failed to initialize Redis client")
		}
		defer redisClient.Close()
		responses = cache.NewRedisAdapter(redisClient, "explorer:responses")
		relations = cache.NewRedisAdapter(redisClient, "explorer:relations")
		log.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("Redis cache initialized")
	default:
		responses = cache.NewMemoryAdapter()
		relations = cache.NewMemoryAdapter()
		log.Info().Msg("In-memory cache initialized")
	}

	// Claims source
	var source providers.ClaimsSource
	switch cfg.ClaimsAPI.Source {
	case "postgres":
		pgClient, err := postgres.NewClient(ctx, &cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize PostgreSQL client")
		}
		defer pgClient.Close()
		source = database.NewClaimsAdapter(pgClient)
		log.Info().Str("database", cfg.Database.Database).Msg("Claims source: PostgreSQL")
	default:
		source = claimsapi.NewClient(claimsapi.Config{
			BaseURL:         cfg.ClaimsAPI.BaseURL,
			Timeout:         cfg.ClaimsAPI.Timeout,
			BreakerFailures: cfg.ClaimsAPI.BreakerFailures,
			BreakerTimeout:  cfg.ClaimsAPI.BreakerTimeout,
		})
		log.Info().Str("base_url", cfg.ClaimsAPI.BaseURL).Msg("Claims source: HTTP API")
	}

	dataService := services.NewDataProviderService(source, responses, relations, services.DataProviderConfig{
		ResponseTTL: cfg.Cache.ResponseTTL,
		RelationTTL: cfg.Cache.RelationTTL,
	}, metrics)

	// Reload notifications only travel over Redis
	var eventBus providers.EventBus
	var invalidation *services.CacheInvalidationService
	if redisClient != nil {
		eventBus = events.NewRedisEventBus(redisClient)
		invalidation = services.NewCacheInvalidationService(dataService, eventBus)
		if err := invalidation.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start cache invalidation service")
			invalidation = nil
		} else {
			log.Info().Str("channel", providers.EventChannelClaimsData).Msg("Cache invalidation service started")
		}
	} else {
		log.Info().Msg("Cache invalidation events disabled (Redis not configured)")
	}

	registry := services.NewSessionRegistry(dataService, services.SessionConfig{
		TTL:         cfg.Explorer.SessionTTL,
		PageSize:    cfg.Explorer.PageSize,
		EventBuffer: cfg.Explorer.EventBuffer,
	}, metrics)

	explorerHandler := handlers.NewExplorerHandler(registry, dataService)
	sseHandler := handlers.NewSSEHandler(registry, cfg.Explorer.Heartbeat)

	router := routes.NewRouter(explorerHandler, sseHandler, cfg.Server.AllowedOrigins, metrics)

	// No WriteTimeout: event streams stay open
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("Explorer server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Server shutting down...")

	// Closing sessions ends their event streams so Shutdown does not wait on them
	registry.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during server shutdown")
	}

	if invalidation != nil {
		invalidation.Stop()
	}
	if eventBus != nil {
		if err := eventBus.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing event bus")
		}
	}

	log.Info().Msg("Server exited")
}
