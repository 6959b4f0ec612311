package cache

import (
	"context"

	"github.com/AzielCF/az-compare/pkg/ttlcache"
)

// Store is the management surface every ttlcache instance offers.
type Store interface {
	Name() string
	Stats() ttlcache.Stats
	CleanupExpired() int
	Clear()
}

type CacheStats struct {
	Caches      []ttlcache.Stats `json:"caches"`
	TotalSize   int              `json:"total_size"`
	TotalHits   uint64           `json:"total_hits"`
	TotalMisses uint64           `json:"total_misses"`
	HumanHits   string           `json:"human_hits"`
	HumanMisses string           `json:"human_misses"`
}

type ICacheUsecase interface {
	Register(stores ...Store)
	GetStats(ctx context.Context) (CacheStats, error)
	Clear(ctx context.Context, name string) error
	ClearAll(ctx context.Context) error
	StartBackgroundCleanup(ctx context.Context)
}
