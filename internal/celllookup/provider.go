// Package celllookup resolves cell identities to tower coordinates. A
// Resolver fronts a chain of sources (static cell tables, the session
// store's cell table, the OpenCellID API) with an in-memory TTL cache and an
// optional Redis cache.
package celllookup

import (
	"context"
	"time"

	"github.com/lvonguyen/cdrforge/internal/cdr"
)

// Source is one upstream able to locate cells.
type Source interface {
	Name() string
	// Locate returns found=false when the source does not know the cell. An
	// error means the source could not answer.
	Locate(ctx context.Context, key cdr.CellKey) (coord cdr.Coordinate, found bool, err error)
}

// Cell is one row of a cell table.
type Cell struct {
	Key        cdr.CellKey    `json:"key"`
	Coordinate cdr.Coordinate `json:"coordinate"`
}

// Config holds the lookup configuration.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// CacheTTL applies to found cells, NegativeTTL to misses.
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	NegativeTTL time.Duration `yaml:"negative_ttl"`

	// TablePath is an optional CSV cell table loaded at start-up.
	TablePath string `yaml:"table_path"`

	// UseStore consults the session store's cell table.
	UseStore bool `yaml:"use_store"`

	Redis      RedisCacheConfig `yaml:"redis"`
	OpenCellID OpenCellIDConfig `yaml:"opencellid"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		CacheTTL:    24 * time.Hour,
		NegativeTTL: time.Hour,
		UseStore:    true,
		Redis:       RedisCacheConfig{KeyPrefix: "cdrforge:cell:"},
		OpenCellID:  DefaultOpenCellIDConfig(),
	}
}
