package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/wonny/aegis-screener/internal/api"
	"github.com/wonny/aegis-screener/internal/api/handlers"
	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/criteria"
	"github.com/wonny/aegis-screener/internal/external/provider"
	"github.com/wonny/aegis-screener/internal/metricview"
	"github.com/wonny/aegis-screener/internal/realtime"
	"github.com/wonny/aegis-screener/internal/s0_data"
	"github.com/wonny/aegis-screener/internal/s0_data/collector"
	"github.com/wonny/aegis-screener/internal/s0_data/quality"
	"github.com/wonny/aegis-screener/internal/screening"
	"github.com/wonny/aegis-screener/internal/selection"
	"github.com/wonny/aegis-screener/pkg/config"
	"github.com/wonny/aegis-screener/pkg/database"
	"github.com/wonny/aegis-screener/pkg/httputil"
	"github.com/wonny/aegis-screener/pkg/logger"
	"github.com/wonny/aegis-screener/pkg/redis"
)

// resultCache is a screening cache the retention job can purge
type resultCache interface {
	screening.Cache
	Purge(ctx context.Context, currentVersion string) (int, error)
}

// app holds the wired components shared by every command
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	db      *database.DB
	redis   *redis.Client
	cache   resultCache
	presets *criteria.Registry

	universe contracts.UniverseSource
	versions contracts.VersionSource
	view     *metricview.View
	engine   *screening.Engine
	gate     *quality.QualityGate
	hub      *realtime.Hub

	// nil when running from a fixture
	runs      *selection.Repository
	reports   *quality.Repository
	collector *collector.Collector
}

func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, logger.New(cfg), nil
}

// newApp wires the Postgres-backed stack: repositories, view, engine, cache,
// quality gate and collector
func newApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	log.Info("Connected to database")

	dataRepo := s0_data.NewRepository(db.Pool)
	if err := dataRepo.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	rdb, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	presets, err := criteria.LoadRegistry(cfg.Screening.PresetDir)
	if err != nil {
		db.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("load presets: %w", err)
	}

	viewRepo := s0_data.NewViewRepository(db.Pool)
	view := metricview.New(viewRepo, metricview.Config{HistoryYears: cfg.Screening.HistoryYears}, log)
	var cache resultCache
	if rdb.Enabled() {
		cache = redis.NewVersionedCache(rdb, "screen", cfg.Screening.CacheTTL)
	} else {
		mc := screening.NewMemoryCache(cfg.Screening.CacheTTL, log)
		mc.StartCleanup(ctx, cfg.Screening.CacheTTL)
		cache = mc
	}

	httpClient := httputil.New(cfg.Provider, log)
	if rdb.Enabled() {
		limit := redis.ProviderRateLimit
		limit.Limit = int(cfg.Provider.RatePerSec)
		if limit.Limit < 1 {
			limit.Limit = 1
		}
		httpClient = httpClient.WithFleetLimiter(redis.NewRateLimiter(rdb), limit)
	}
	source := provider.NewClient(httpClient, cfg.Provider.BaseURL, log)
	entities := s0_data.NewEntityRepository(db.Pool)
	col := collector.NewCollector(source, s0_data.NewSnapshotRepository(db.Pool), entities, collector.ConfigFrom(cfg.Provider), log)

	return &app{
		cfg:       cfg,
		log:       log,
		db:        db,
		redis:     rdb,
		cache:     cache,
		presets:   presets,
		universe:  viewRepo,
		versions:  viewRepo,
		view:      view,
		engine:    screening.NewEngine(view, viewRepo, viewRepo, cache, screening.ConfigFrom(cfg.Screening), log),
		gate:      quality.NewQualityGate(view, viewRepo, quality.DefaultConfig(), log),
		runs:      selection.NewRepository(db.Pool),
		reports:   quality.NewRepository(db.Pool),
		collector: col,
		hub:       realtime.NewHub(log),
	}, nil
}

// newFixtureApp wires the engine over an in-memory universe loaded from a JSON fixture
func newFixtureApp(ctx context.Context, path string) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()

	src, err := metricview.LoadFixture(f)
	if err != nil {
		return nil, fmt.Errorf("load fixture: %w", err)
	}

	presets, err := criteria.LoadRegistry(cfg.Screening.PresetDir)
	if err != nil {
		return nil, fmt.Errorf("load presets: %w", err)
	}

	view := metricview.New(src, metricview.Config{HistoryYears: cfg.Screening.HistoryYears}, log)
	cache := screening.NewMemoryCache(cfg.Screening.CacheTTL, log)
	cache.StartCleanup(ctx, cfg.Screening.CacheTTL)
	return &app{
		cfg:      cfg,
		log:      log,
		cache:    cache,
		presets:  presets,
		universe: src,
		versions: src,
		view:     view,
		engine:   screening.NewEngine(view, src, src, cache, screening.ConfigFrom(cfg.Screening), log),
		gate:     quality.NewQualityGate(view, src, quality.DefaultConfig(), log),
		hub:      realtime.NewHub(log),
	}, nil
}

// openApp picks the fixture stack when fixture is set, Postgres otherwise
func openApp(ctx context.Context, fixture string) (*app, error) {
	if fixture != "" {
		return newFixtureApp(ctx, fixture)
	}
	return newApp(ctx)
}

// handlers builds the router's handler set. Typed nil pointers must not reach
// the handlers' interfaces, so storage-backed pieces are only set when present.
func (a *app) handlers() api.Handlers {
	var runs handlers.RunStore
	var ingester handlers.Ingester
	h := api.Handlers{WS: a.hub}
	if a.runs != nil {
		runs = a.runs
	}
	if a.collector != nil {
		ingester = a.collector
	}
	if a.db != nil {
		h.DB = a.db
	}
	h.Screening = handlers.NewScreeningHandler(a.engine, a.presets, runs, a.log)
	h.Data = handlers.NewDataHandler(a.universe, a.versions, ingester, a.gate, a.hub, a.log)
	return h
}

// Close releases connections
func (a *app) Close() {
	a.hub.Close()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close redis")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
