package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/medisutra/bridge/internal/config"
	"github.com/medisutra/bridge/internal/domain/csvimport"
	"github.com/medisutra/bridge/internal/domain/terminology"
	"github.com/medisutra/bridge/internal/platform/db"
	"github.com/medisutra/bridge/internal/platform/fhir"
	"github.com/medisutra/bridge/internal/platform/metrics"
	"github.com/medisutra/bridge/internal/platform/search"
	"github.com/medisutra/bridge/internal/platform/whoicd"
)

const (
	version             = "0.1.0"
	activityRedisKey    = "bridge:search_activity"
	defaultUploadPrefix = "/api/v1/import"
)

// app holds the wired dependencies shared by every subcommand.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	policy   terminology.DuplicatePolicy
	repo     terminology.Repository
	svc      *terminology.Service
	importer *csvimport.Importer
	metrics  *metrics.Collector
	checks   []db.Check
	closers  []func()
}

// newLogger writes JSON to out, or console output in development.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	logger := zerolog.New(out).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// loadConfig reads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newApp connects storage and builds the terminology service and importer.
// Callers must call Close.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	policy, err := terminology.ParseDuplicatePolicy(cfg.DuplicatePolicy)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:     cfg,
		logger:  logger,
		policy:  policy,
		metrics: metrics.New(),
	}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	activity, err := a.openActivityLog(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.svc = terminology.NewService(a.repo, activity)
	a.svc.SetLogger(logger.With().Str("component", "terminology").Logger())
	a.svc.SetMetrics(a.metrics)
	a.svc.SetGenerator(fhir.NewGenerator(fhir.DefaultNamespaces().WithNamaste(cfg.NamasteSystemURI)))
	a.svc.SetCodeSystemVersion(cfg.CodeSystemVersion)

	a.importer = csvimport.NewImporter(a.repo, policy)
	a.importer.SetLogger(logger.With().Str("component", "import").Logger())
	a.importer.SetMetrics(a.metrics)

	if cfg.SeedData {
		n, err := terminology.Seed(ctx, a.repo)
		if err != nil {
			a.Close()
			return nil, err
		}
		if n > 0 {
			logger.Info().Int("records", n).Msg("loaded seed data")
		}
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Storage {
	case config.StoragePostgres:
		pool, err := db.NewPool(ctx, a.cfg.DatabaseURL, a.cfg.DBMaxConns, a.cfg.DBMinConns)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		repo := terminology.NewPGRepository(pool, a.policy)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		a.repo = repo
		a.checks = append(a.checks, db.PoolCheck(pool))
		a.logger.Info().Msg("connected to database")
	default:
		idx, err := search.NewMemIndex()
		if err != nil {
			return fmt.Errorf("create search index: %w", err)
		}
		a.closers = append(a.closers, func() { idx.Close() })
		repo := terminology.NewMemoryRepository(a.policy)
		repo.SetSearchIndex(idx)
		a.repo = repo
	}
	return nil
}

func (a *app) openActivityLog(ctx context.Context) (terminology.ActivityRepository, error) {
	if a.cfg.RedisURL == "" {
		return terminology.NewMemoryActivityLog(a.cfg.ActivityLimit), nil
	}
	client, err := db.NewRedis(ctx, a.cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { client.Close() })
	a.checks = append(a.checks, redisCheck(client))
	a.logger.Info().Msg("search activity kept in redis")
	return terminology.NewRedisActivityLog(client, activityRedisKey, a.cfg.ActivityLimit), nil
}

func redisCheck(client *redis.Client) db.Check {
	return db.Check{
		Name: "redis",
		Ping: func(ctx context.Context) error { return client.Ping(ctx).Err() },
	}
}

// whoClient builds the WHO ICD-11 API client from configuration.
func (a *app) whoClient() *whoicd.Client {
	return whoicd.NewClient(whoicd.Config{
		ClientID:     a.cfg.WHOClientID,
		ClientSecret: a.cfg.WHOClientSecret,
		TokenURL:     a.cfg.WHOTokenURL,
		BaseURL:      a.cfg.WHOBaseURL,
		Release:      a.cfg.WHORelease,
	})
}

// Close releases connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
