package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/robfig/cron/v3"

	"github.com/medisutra/bridge/internal/domain/csvimport"
	"github.com/medisutra/bridge/internal/domain/terminology"
	"github.com/medisutra/bridge/internal/mcp"
	"github.com/medisutra/bridge/internal/platform/db"
	"github.com/medisutra/bridge/internal/platform/fhir"
	"github.com/medisutra/bridge/internal/platform/middleware"
)

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		return err
	}
	defer a.Close()

	e := newRouter(a)

	// Scheduled WHO ICD-11 sync
	if cfg.WHOSyncSchedule != "" {
		scheduler, err := a.scheduleSync(cfg.WHOSyncSchedule)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
		logger.Info().Str("schedule", cfg.WHOSyncSchedule).Msg("icd sync scheduled")
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("storage", cfg.Storage).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newRouter builds the echo instance with middleware and every route group.
func newRouter(a *app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.Logger(a.logger, "/health", "/metrics"))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit("1M", a.cfg.BodyLimit, defaultUploadPrefix))
	e.Use(middleware.RequestTimeout(a.cfg.RequestTimeout, defaultUploadPrefix, "/mcp"))
	e.Use(a.metrics.Middleware())

	// Ops
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(a.cfg.Storage, a.checks...))
	e.GET("/metrics", echo.WrapHandler(a.metrics.Handler()))

	apiV1 := e.Group("/api/v1")
	fhirGroup := e.Group("/fhir")

	termHandler := terminology.NewHandler(a.svc)
	termHandler.RegisterRoutes(apiV1, fhirGroup)

	// CapabilityStatement at /fhir/metadata
	capBuilder := fhir.NewCapabilityBuilder("", version, fmt.Sprintf("http://localhost:%s/fhir", a.cfg.Port))
	termHandler.DescribeCapabilities(capBuilder)
	capBuilder.RegisterRoutes(fhirGroup)

	csvimport.NewHandler(a.importer).RegisterRoutes(apiV1)

	// MCP over SSE
	mcpServer := a.mcpServer()
	sse := sdkmcp.NewSSEHandler(func(*http.Request) *sdkmcp.Server { return mcpServer }, nil)
	e.Any("/mcp/sse", echo.WrapHandler(sse))

	return e
}

func (a *app) mcpServer() *sdkmcp.Server {
	return mcp.CreateServer(mcp.ServerConfig{Version: version, Svc: a.svc})
}

// scheduleSync registers a cron job that fetches ICD-11 codes targeted by
// mappings but missing from the repository.
func (a *app) scheduleSync(spec string) (*cron.Cron, error) {
	client := a.whoClient()
	scheduler := cron.New()
	_, err := scheduler.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		a.logger.Info().Msg("running scheduled icd sync")
		if _, err := a.svc.SyncMissingICD(ctx, client); err != nil {
			a.logger.Error().Err(err).Msg("scheduled icd sync failed")
		}
	})
	if err != nil {
		return nil, err
	}
	return scheduler, nil
}
