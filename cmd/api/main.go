package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shivam13669/CRMManagementt-sub003/internal/adapters/cache"
	"github.com/shivam13669/CRMManagementt-sub003/internal/adapters/database"
	"github.com/shivam13669/CRMManagementt-sub003/internal/adapters/events"
	"github.com/shivam13669/CRMManagementt-sub003/internal/adapters/providers/geolocation"
	"github.com/shivam13669/CRMManagementt-sub003/internal/api/handlers"
	"github.com/shivam13669/CRMManagementt-sub003/internal/api/middleware"
	"github.com/shivam13669/CRMManagementt-sub003/internal/api/routes"
	"github.com/shivam13669/CRMManagementt-sub003/internal/application/services"
	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/providers"
	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/repositories"
	"github.com/shivam13669/CRMManagementt-sub003/internal/infrastructure/clients/dispatchapi"
	"github.com/shivam13669/CRMManagementt-sub003/internal/infrastructure/clients/postgres"
	"github.com/shivam13669/CRMManagementt-sub003/internal/infrastructure/clients/redis"
	"github.com/shivam13669/CRMManagementt-sub003/internal/infrastructure/observability"
	"github.com/shivam13669/CRMManagementt-sub003/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Env)

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("error shutting down OpenTelemetry")
				}
			}()
			log.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	// Redis is optional: it backs the geocode cache and carries backend push events.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, continuing without cache and push events")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var cacheProvider providers.CacheProvider
	var eventBus providers.EventBus
	if redisClient != nil {
		cacheProvider = cache.NewRedisAdapter(redisClient, "dispatch:")
		eventBus = events.NewRedisEventBus(redisClient)
	} else {
		eventBus = events.NewMemoryEventBus()
	}

	health := handlers.NewHealthHandler(2 * time.Second)
	if redisClient != nil {
		health.Register("redis", true, redisClient.Ping)
	}

	// The audit journal is optional too.
	var auditRepo repositories.AuditRepository
	if cfg.Database.Enabled {
		pgClient, err := postgres.NewClient(ctx, &cfg.Database)
		if err != nil {
			log.Warn().Err(err).Msg("audit database unavailable, journal disabled")
		} else {
			defer pgClient.Close()
			health.Register("audit_db", false, pgClient.Ping)
			adapter := database.NewDispatchAuditAdapter(pgClient)
			if err := adapter.InitSchema(ctx); err != nil {
				log.Warn().Err(err).Msg("failed to init audit schema, journal disabled")
			} else {
				auditRepo = adapter
				log.Info().Msg("audit journal enabled")
			}
		}
	}

	geoProvider, breaker := buildGeolocationProvider(cfg, cacheProvider)
	if breaker != nil {
		health.Register("geocoder", false, breaker.Check)
	}
	log.Info().Strs("checks", health.CheckNames()).Msg("health checks registered")

	var sseHandler *handlers.SSEHandler
	var registry *services.SessionRegistry
	geoResolver := services.NewGeoResolver(geoProvider, services.GeoResolverOptions{
		Timeout: cfg.Geocoding.Timeout,
		Metrics: metrics,
		OnResolved: func(requestID int64, res services.Resolution) {
			registry.Notify(requestID, services.ReasonAddress)
		},
	})

	// The client reports refused tokens to the registry, which owns the sessions.
	var dispatchClient *dispatchapi.HTTPClient
	registry = services.NewSessionRegistry(ctx, func(actor entities.ActorContext) *services.DispatchCoordinator {
		return services.NewDispatchCoordinator(actor, dispatchClient, dispatchClient, geoResolver, services.CoordinatorOptions{
			PageSize:       cfg.Dispatch.PageSize,
			ForwardTimeout: cfg.Dispatch.ForwardTimeout,
			Audit:          auditRepo,
			Events:         eventBus,
			Metrics:        metrics,
		})
	}, services.SessionRegistryOptions{
		MaxSessions:  cfg.Sessions.MaxSessions,
		IdleTTL:      cfg.Sessions.IdleTTL,
		PollInterval: cfg.Dispatch.PollInterval,
		Metrics:      metrics,
		OnChange: func(inv entities.ViewInvalidation) {
			sseHandler.Publish(inv)
		},
	})
	dispatchClient = dispatchapi.NewClient(cfg.Dispatch.BaseURL, cfg.Dispatch.RequestTimeout, registry)
	sseHandler = handlers.NewSSEHandler(registry)

	listener := services.NewDispatchEventListener(eventBus, registry)
	if err := listener.Start(); err != nil {
		log.Warn().Err(err).Msg("push events disabled")
		listener = nil
	}

	router := routes.NewRouter(
		handlers.NewDispatchHandler(registry),
		sseHandler,
		health,
		middleware.AuthOptions{
			Secret:          []byte(cfg.Auth.JWTSecret),
			AllowUnverified: cfg.Auth.AllowUnverified,
		},
		cfg.Server.AllowedOrigins,
		metrics,
	)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     router.SetupRoutes(),
		ReadTimeout: 15 * time.Second,
		// No write timeout: the dispatch stream is long lived.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	if listener != nil {
		listener.Stop()
	}
	registry.Close()
	if err := eventBus.Close(); err != nil {
		log.Error().Err(err).Msg("error closing event bus")
	}

	log.Info().Msg("server stopped")
}

// buildGeolocationProvider picks the configured reverse geocoder and wraps
// it with rate limiting, a circuit breaker and, when Redis is up, a cache.
func buildGeolocationProvider(cfg *config.Config, cacheProvider providers.CacheProvider) (providers.GeolocationProvider, *geolocation.ResilientGeolocationProvider) {
	var base providers.GeolocationProvider
	switch cfg.Geocoding.Provider {
	case "http":
		base = geolocation.NewHTTPGeolocationProvider(cfg.Geocoding.BaseURL, cfg.Geocoding.Timeout)
	case "google":
		if cfg.Geocoding.APIKey == "" {
			log.Warn().Msg("GEOCODING_API_KEY is not set; using mock geolocation provider")
			return geolocation.NewMockGeolocationProvider(), nil
		}
		base = geolocation.NewGoogleGeolocationProvider(cfg.Geocoding.APIKey, cfg.Geocoding.Timeout)
	default:
		return geolocation.NewMockGeolocationProvider(), nil
	}

	resilient := geolocation.NewResilientGeolocationProvider(cfg.Geocoding.Provider, base, geolocation.ResilienceOptions{
		RatePerSecond: cfg.Geocoding.RatePerSecond,
		Burst:         cfg.Geocoding.Burst,
		MaxFailures:   cfg.Geocoding.BreakerFailures,
		OpenFor:       cfg.Geocoding.BreakerOpenFor,
	})
	var provider providers.GeolocationProvider = resilient
	if cacheProvider != nil {
		provider = geolocation.NewCachedGeolocationProvider(provider, cacheProvider, cfg.Geocoding.CacheTTLSeconds, cfg.Geocoding.CoordinatePlaces)
	}
	log.Info().Str("provider", cfg.Geocoding.Provider).Bool("cached", cacheProvider != nil).Msg("geolocation provider ready")
	return provider, resilient
}
