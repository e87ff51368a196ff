package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/banking/compliance-sentinel/internal/api"
	"github.com/banking/compliance-sentinel/internal/config"
	"github.com/banking/compliance-sentinel/internal/events"
	"github.com/banking/compliance-sentinel/internal/generator"
	"github.com/banking/compliance-sentinel/internal/judgment"
	"github.com/banking/compliance-sentinel/internal/pipeline"
	"github.com/banking/compliance-sentinel/internal/pkg/logger"
	"github.com/banking/compliance-sentinel/internal/pkg/telemetry"
	"github.com/banking/compliance-sentinel/internal/rulebook"
	"github.com/banking/compliance-sentinel/internal/screening"
	"github.com/banking/compliance-sentinel/internal/store"
	"github.com/banking/compliance-sentinel/internal/store/postgres"
	"github.com/banking/compliance-sentinel/internal/store/rediscache"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New("compliance-sentinel", cfg.Telemetry.Environment, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
		if err != nil {
			log.Fatal("telemetry setup failed", logger.ErrorField(err))
		}
		defer shutdown(context.Background())
	}

	// Storage: Postgres when enabled, otherwise seeded in-memory. Redis
	// wraps either as a rulebook read cache.
	var st store.Store
	if cfg.Database.Enabled {
		pg, err := postgres.New(ctx, cfg.Database)
		if err != nil {
			log.Fatal("postgres connection failed", logger.ErrorField(err))
		}
		defer pg.Close()
		st = pg
	} else {
		mem := store.NewMemory()
		if err := store.Seed(ctx, mem); err != nil {
			log.Fatal("seed failed", logger.ErrorField(err))
		}
		st = mem
	}
	if cfg.Redis.Enabled {
		st = rediscache.New(st, cfg.Redis, log)
	}

	var publisher *events.Publisher
	if cfg.Kafka.Enabled {
		publisher, err = events.NewPublisher(cfg.Kafka, log)
		if err != nil {
			log.Fatal("kafka producer failed", logger.ErrorField(err))
		}
		defer publisher.Close()
	}

	client := judgment.NewGeminiClient(cfg.Judgment, log)

	orch := pipeline.NewOrchestrator(
		st,
		pipeline.NewEnricher(log),
		screening.NewScreener(log),
		pipeline.NewBaselineStage(client, st, cfg.Judgment.MaxSchemaRetries, log),
		pipeline.NewScorer(client, cfg.Judgment.MaxSchemaRetries, cfg.Pipeline.GeoHopMinKM, log),
		pipeline.NewValidator(client, cfg.Judgment.MaxSchemaRetries, cfg.Pipeline.MaxValidationLoops, log),
		rulebook.NewReviser(client, cfg.Judgment.MaxSchemaRetries, log),
		rulebook.NewEnforcer(cfg.Pipeline.PointMin, cfg.Pipeline.PointMax),
		publisher,
		log,
	)

	handler := api.NewHandler(orch, st, generator.New(), log)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Secure())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Security.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	apiGroup := e.Group("/api")
	protected := apiGroup
	if cfg.Security.JWTSecret != "" {
		protected = e.Group("/api", echojwt.JWT([]byte(cfg.Security.JWTSecret)))
	}
	handler.RegisterRoutes(apiGroup, protected)

	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		if err := e.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			log.Fatal("server stopped", logger.ErrorField(err))
		}
	}()
	log.Info("server started", logger.StringField("addr", serverAddr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Fatal("shutdown failed", logger.ErrorField(err))
	}
}
