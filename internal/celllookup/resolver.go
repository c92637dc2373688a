package celllookup

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lvonguyen/cdrforge/internal/cdr"
	"github.com/lvonguyen/cdrforge/internal/observability"
)

// Resolver answers coordinate lookups from its caches, then from its
// sources in order. It implements analytics.Locator.
type Resolver struct {
	config  Config
	local   *MemoryCache
	shared  Cache // optional
	sources []Source
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewResolver creates a resolver over the given sources. shared may be nil.
func NewResolver(config Config, shared Cache, logger *zap.Logger, metrics *observability.Metrics, sources ...Source) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := DefaultConfig()
	if config.CacheTTL <= 0 {
		config.CacheTTL = d.CacheTTL
	}
	if config.NegativeTTL <= 0 {
		config.NegativeTTL = d.NegativeTTL
	}
	return &Resolver{
		config:  config,
		local:   NewMemoryCache(),
		shared:  shared,
		sources: sources,
		logger:  logger,
		metrics: metrics,
	}
}

// Cache returns the in-memory cache.
func (r *Resolver) Cache() *MemoryCache {
	return r.local
}

// Sources returns the source names in lookup order.
func (r *Resolver) Sources() []string {
	names := make([]string, len(r.sources))
	for i, s := range r.sources {
		names[i] = s.Name()
	}
	return names
}

// Resolve returns the coordinates of a cell. Misses, source errors and
// context expiry all come back as ok=false; errors are logged, never
// returned. Misses are cached for NegativeTTL; failures are not cached.
func (r *Resolver) Resolve(ctx context.Context, key cdr.CellKey) (cdr.Coordinate, bool) {
	if key.CellID == "" {
		return cdr.Coordinate{}, false
	}

	if coord, found, ok := r.local.Get(ctx, key); ok {
		r.metrics.ObserveLookup("memory", hitOrMiss(found), 0)
		return coord, found
	}
	if r.shared != nil {
		if coord, found, ok := r.shared.Get(ctx, key); ok {
			r.metrics.ObserveLookup("redis", hitOrMiss(found), 0)
			r.local.Set(ctx, key, coord, found, r.ttl(found))
			return coord, found
		}
	}

	failed := false
	for _, src := range r.sources {
		if ctx.Err() != nil {
			failed = true
			break
		}
		start := time.Now()
		coord, found, err := src.Locate(ctx, key)
		d := time.Since(start)
		if err != nil {
			failed = true
			r.metrics.ObserveLookup(src.Name(), "error", d)
			r.logger.Debug("Cell lookup failed",
				zap.String("source", src.Name()),
				zap.String("cell", key.String()),
				zap.Error(err),
			)
			continue
		}
		r.metrics.ObserveLookup(src.Name(), hitOrMiss(found), d)
		if found {
			r.store(ctx, key, coord, true)
			return coord, true
		}
	}

	if !failed {
		r.store(ctx, key, cdr.Coordinate{}, false)
	}
	return cdr.Coordinate{}, false
}

func (r *Resolver) store(ctx context.Context, key cdr.CellKey, coord cdr.Coordinate, found bool) {
	ttl := r.ttl(found)
	r.local.Set(ctx, key, coord, found, ttl)
	if r.shared != nil {
		r.shared.Set(ctx, key, coord, found, ttl)
	}
}

func (r *Resolver) ttl(found bool) time.Duration {
	if found {
		return r.config.CacheTTL
	}
	return r.config.NegativeTTL
}

func hitOrMiss(found bool) string {
	if found {
		return "hit"
	}
	return "miss"
}
