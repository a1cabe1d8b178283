// @title Feed Service API
// @version 1.0
// @description Internal API for importing tenant product feeds from XML, CSV and spreadsheet sources.
// @BasePath /internal
// @securityDefinitions.apikey InternalAPIKey
// @in header
// @name X-Internal-API-Key
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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/kosarica/feed-service/config"
	_ "github.com/kosarica/feed-service/docs"
	"github.com/kosarica/feed-service/internal/app"
	"github.com/kosarica/feed-service/internal/database"
	"github.com/kosarica/feed-service/internal/handlers"
	"github.com/kosarica/feed-service/internal/middleware"
	"github.com/kosarica/feed-service/internal/sweepers"
	"github.com/kosarica/feed-service/internal/telemetry"
)

var version = "dev"

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.Logging, "feed-service")

	logger.Info().Str("version", version).Msg("Starting feed service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}

	if cfg.Database.URL == "" {
		logger.Fatal().Msg("DATABASE_URL not set")
	}
	if err := database.Connect(ctx, database.PoolConfig{
		URL:             cfg.Database.URL,
		MaxConnections:  cfg.Database.MaxConnections,
		MinConnections:  cfg.Database.MinConnections,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	}); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()
	logger.Info().Msg("Database connected")

	if cfg.Database.AutoMigrate {
		if err := database.EnsureSchema(ctx, database.Pool()); err != nil {
			logger.Fatal().Err(err).Msg("Failed to apply schema")
		}
	}

	services, err := app.New(ctx, cfg, database.Pool(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize services")
	}

	limiter := middleware.NewKeyedRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.Burst,
		IdleTTL:           10 * time.Minute,
	})

	router := newRouter(cfg, logger, services, limiter)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(router, "feed-service"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		limiter.RunCleanup(gctx, time.Minute)
		return nil
	})

	if cfg.Refresh.Enabled {
		sweeper := sweepers.NewRefreshSweeper(
			services.Feeds,
			services.Pipeline,
			&logger,
			cfg.Refresh.Interval,
			cfg.Refresh.StaleAfter,
			cfg.Refresh.BatchSize,
		)
		g.Go(func() error {
			sweeper.Start(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Server forced to shutdown")
		}
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Server stopped with error")
		database.Close()
		os.Exit(1)
	}

	logger.Info().Msg("Server exited")
}

func newRouter(cfg *config.Config, logger zerolog.Logger, services *app.App, limiter *middleware.KeyedRateLimiter) *gin.Engine {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	health := handlers.HealthCheck(database.Status)
	router.GET("/health", health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	internal := router.Group("/internal")
	internal.Use(middleware.InternalAuthMiddleware(cfg.Auth.InternalAPIKey))
	{
		internal.GET("/health", health)

		tenant := internal.Group("", middleware.TenantMiddleware(), middleware.RateLimitMiddleware(limiter))
		handlers.NewFeedHandler(services.Pipeline, services.Feeds, services.Tasks).Register(tenant)
	}

	return router
}
