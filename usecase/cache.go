package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domainCache "github.com/AzielCF/az-compare/domains/cache"
	"github.com/AzielCF/az-compare/domains/reconcile"
	pkgError "github.com/AzielCF/az-compare/pkg/error"
	"github.com/AzielCF/az-compare/pkg/ttlcache"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

type cacheService struct {
	mu       sync.RWMutex
	stores   map[string]domainCache.Store
	interval time.Duration
	sink     reconcile.NotificationSink
}

// NewCacheService manages every registered cache. sink may be nil.
func NewCacheService(cleanupInterval time.Duration, sink reconcile.NotificationSink) domainCache.ICacheUsecase {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &cacheService{
		stores:   make(map[string]domainCache.Store),
		interval: cleanupInterval,
		sink:     sink,
	}
}

func (s *cacheService) Register(stores ...domainCache.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range stores {
		if _, dup := s.stores[st.Name()]; dup {
			logrus.Warnf("[CACHE] Cache %q registered twice, keeping the latest", st.Name())
		}
		s.stores[st.Name()] = st
	}
}

func (s *cacheService) GetStats(ctx context.Context) (domainCache.CacheStats, error) {
	stats := domainCache.CacheStats{Caches: s.snapshot()}
	for _, c := range stats.Caches {
		stats.TotalSize += c.Size
		stats.TotalHits += c.Hits
		stats.TotalMisses += c.Misses
	}
	stats.HumanHits = humanize.Comma(int64(stats.TotalHits))
	stats.HumanMisses = humanize.Comma(int64(stats.TotalMisses))
	return stats, nil
}

func (s *cacheService) Clear(ctx context.Context, name string) error {
	s.mu.RLock()
	st, ok := s.stores[name]
	s.mu.RUnlock()
	if !ok {
		return pkgError.NotFoundError(fmt.Sprintf("cache %q not found", name))
	}
	st.Clear()
	logrus.Infof("[CACHE] Cleared %s", name)
	return nil
}

func (s *cacheService) ClearAll(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.stores {
		st.Clear()
	}
	logrus.Infof("[CACHE] Cleared %d caches", len(s.stores))
	return nil
}

// StartBackgroundCleanup drops expired entries from every cache until ctx
// is done and reports the resulting stats.
func (s *cacheService) StartBackgroundCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runCleanup()
			}
		}
	}()
}

func (s *cacheService) runCleanup() {
	s.mu.RLock()
	removed := 0
	for _, st := range s.stores {
		removed += st.CleanupExpired()
	}
	s.mu.RUnlock()

	if removed > 0 {
		logrus.Debugf("[CACHE] Cleanup removed %s expired entries", humanize.Comma(int64(removed)))
	}
	if s.sink != nil {
		s.sink.Publish(reconcile.Event{
			Type:   reconcile.EventCacheStats,
			At:     time.Now().UTC(),
			Caches: s.snapshot(),
		})
	}
}

func (s *cacheService) snapshot() []ttlcache.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ttlcache.Stats, 0, len(s.stores))
	for _, st := range s.stores {
		out = append(out, st.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
