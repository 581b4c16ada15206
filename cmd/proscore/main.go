package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/proscore/internal/config"
	"github.com/ehr/proscore/internal/domain/definitions"
	"github.com/ehr/proscore/internal/domain/scoring"
	"github.com/ehr/proscore/internal/platform/cache"
	"github.com/ehr/proscore/internal/platform/db"
	"github.com/ehr/proscore/internal/platform/fhir"
	"github.com/ehr/proscore/internal/platform/middleware"
	"github.com/ehr/proscore/internal/platform/telemetry"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:          "proscore",
		Short:        "Patient-reported outcome scoring service",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(scoreCmd())
	rootCmd.AddCommand(deriveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(definitionsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scoring API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// backends holds the optional collaborators behind the definition loader.
type backends struct {
	pool   *pgxpool.Pool
	redis  *redis.Client
	store  *definitions.PGStore
	cache  *definitions.CachedLoader
	loader scoring.DefinitionLoader
}

func (b *backends) Close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}

// openBackends connects whatever the configuration names. The loader chain
// is Postgres then the remote FHIR server, with redis in front of both.
func openBackends(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backends, error) {
	b := &backends{}
	var chain []scoring.DefinitionLoader

	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		b.pool = pool
		b.store = definitions.NewPGStore(pool)
		chain = append(chain, b.store)
		logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")
	}

	if cfg.FHIRBaseURL != "" {
		chain = append(chain, definitions.NewRemoteLoader(cfg.FHIRBaseURL, nil))
		logger.Info().Str("base_url", cfg.FHIRBaseURL).Msg("remote definition source enabled")
	}

	b.loader = definitions.NewChain(chain...)

	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.redis = rdb
		if b.loader != nil {
			b.cache = definitions.NewCachedLoader(b.loader, rdb, cfg.DefinitionCacheTTL, logger)
			b.loader = b.cache
		}
		logger.Info().Dur("ttl", cfg.DefinitionCacheTTL).Msg("definition cache enabled")
	}

	return b, nil
}

func newEngine(cfg *config.Config, loader scoring.DefinitionLoader, logger zerolog.Logger) (*scoring.Engine, error) {
	reg, err := scoring.LoadRegistry(cfg.InstrumentsFile)
	if err != nil {
		return nil, err
	}
	return scoring.NewEngine(reg, loader, logger,
		scoring.WithLoaderTimeout(cfg.LoaderTimeout),
		scoring.WithCompletedOnly(cfg.CompletedOnly),
	), nil
}

func newServer(cfg *config.Config, logger zerolog.Logger, engine *scoring.Engine, b *backends) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = fhir.JSONSerializer{}
	e.HTTPErrorHandler = fhir.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(telemetry.Middleware())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost},
		AllowHeaders:  []string{"Content-Type", middleware.RequestIDHeader, "traceparent"},
		ExposeHeaders: []string{middleware.RequestIDHeader, telemetry.TraceIDHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if b != nil && b.pool != nil {
		e.GET("/health/db", db.HealthHandler(b.pool))
	}
	if b != nil && b.redis != nil {
		e.GET("/health/cache", cache.HealthHandler(b.redis))
	}

	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.BodyLimit(cfg.BodyLimit))

	scoring.NewHandler(engine).RegisterRoutes(apiV1)
	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	shutdownTracing, err := telemetry.Init(ctx, logger, telemetry.Config{
		Enabled:     cfg.OTelEnabled,
		ServiceName: cfg.OTelServiceName,
		Version:     version,
		Environment: cfg.Env,
		SampleRatio: cfg.OTelSampleRatio,
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
		Headers:     telemetry.ParseHeaders(cfg.OTelHeaders),
	})
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
	}

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open backends")
	}
	defer b.Close()

	engine, err := newEngine(cfg, b.loader, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load instrument registry")
	}
	e := newServer(cfg, logger, engine, b)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}
	logger.Info().Msg("server stopped")
	return nil
}
