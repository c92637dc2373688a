package cli

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lvonguyen/cdrforge/internal/analytics"
	"github.com/lvonguyen/cdrforge/internal/celllookup"
	"github.com/lvonguyen/cdrforge/internal/config"
	"github.com/lvonguyen/cdrforge/internal/countries"
	"github.com/lvonguyen/cdrforge/internal/normalization"
	"github.com/lvonguyen/cdrforge/internal/observability"
	"github.com/lvonguyen/cdrforge/internal/pipeline"
	"github.com/lvonguyen/cdrforge/internal/schema"
	"github.com/lvonguyen/cdrforge/internal/storage"
)

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	tel      *observability.Telemetry
	logger   *zap.Logger
	metrics  *observability.Metrics
	store    *storage.Store
	redis    *redis.Client
	resolver *celllookup.Resolver
	engine   *analytics.Engine
	pipeline *pipeline.Pipeline
}

func newApp(ctx context.Context, cfg *config.Config, info BuildInfo) (*app, error) {
	cfg.Telemetry.ServiceVersion = info.Version
	tel, err := observability.New(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a := &app{
		cfg:     cfg,
		tel:     tel,
		logger:  tel.Logger(),
		metrics: tel.Metrics(),
	}

	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	store, err := storage.Open(cfg.Storage, a.logger)
	if err != nil {
		return err
	}
	a.store = store

	if cfg.Redis.Enabled {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password(),
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.logger.Warn("Redis unreachable, continuing", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
	}

	profiles, err := schema.LoadProfiles(cfg.Ingest.ProfilesPath)
	if err != nil {
		return err
	}
	table, err := countries.Load(cfg.Ingest.CountriesPath)
	if err != nil {
		return err
	}

	if a.resolver, err = a.newResolver(); err != nil {
		return err
	}

	opts := analytics.Options{
		Countries: table,
		Logger:    a.logger,
		Metrics:   a.metrics,
		Tracer:    a.tel.Tracer(),
	}
	if a.resolver != nil {
		opts.Locator = a.resolver
	}
	a.engine = analytics.NewEngine(cfg.Analytics, opts)

	a.pipeline = pipeline.New(
		normalization.NewDetector(profiles, a.logger, a.metrics),
		normalization.NewNormalizer(table, a.logger, a.metrics),
		store,
		pipeline.Options{
			Reader:     cfg.Ingest.ReaderOptions(),
			SampleRows: cfg.Ingest.SampleRows,
			Logger:     a.logger,
			Metrics:    a.metrics,
		},
	)

	a.logger.Info("Components initialized",
		zap.String("storage", cfg.Storage.Path),
		zap.Int("profiles", profiles.Len()),
		zap.Int("countries", table.Len()),
		zap.Strings("lookup_sources", cfg.EnabledLookupSources()),
		zap.Bool("redis", a.redis != nil),
	)
	return nil
}

// newResolver chains the configured coordinate sources. It returns nil when
// lookups are disabled.
func (a *app) newResolver() (*celllookup.Resolver, error) {
	lc := a.cfg.CellLookup
	if !lc.Enabled {
		return nil, nil
	}

	var sources []celllookup.Source
	if lc.TablePath != "" {
		t, err := celllookup.LoadStaticTable(lc.TablePath)
		if err != nil {
			return nil, err
		}
		sources = append(sources, t)
	}
	if lc.UseStore {
		sources = append(sources, a.store)
	}
	if lc.OpenCellID.Enabled {
		ocid, err := celllookup.NewOpenCellID(lc.OpenCellID)
		if err != nil {
			a.logger.Warn("OpenCellID disabled", zap.Error(err))
		} else {
			sources = append(sources, ocid)
		}
	}

	var shared celllookup.Cache
	if lc.Redis.Enabled && a.redis != nil {
		shared = celllookup.NewRedisCache(a.redis, lc.Redis.KeyPrefix)
	}
	return celllookup.NewResolver(lc, shared, a.logger, a.metrics, sources...), nil
}

// Close releases everything newApp opened.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("Failed to close store", zap.Error(err))
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	a.tel.Shutdown(ctx)
}
