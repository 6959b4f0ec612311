package provider

import (
	"context"
	"fmt"
	"time"

	domainCache "github.com/AzielCF/az-compare/domains/cache"
	"github.com/AzielCF/az-compare/domains/vendor"
	pkgError "github.com/AzielCF/az-compare/pkg/error"
	"github.com/AzielCF/az-compare/pkg/ttlcache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// CacheConfig tunes each cache class independently.
type CacheConfig struct {
	VendorTTL        time.Duration
	VendorCapacity   int
	ListTTL          time.Duration
	StatsTTL         time.Duration
	ProductsTTL      time.Duration
	ProductsCapacity int
	// LoadTimeout bounds one shared upstream call, retries included.
	LoadTimeout time.Duration
}

const defaultLoadTimeout = 30 * time.Second

// CachedProvider memoizes a data provider. Identical concurrent lookups are
// coalesced into one upstream call and failures are never cached, except
// MappingAbsent which is a valid answer.
type CachedProvider struct {
	inner       vendor.IDataProvider
	group       singleflight.Group
	loadTimeout time.Duration

	mappings *ttlcache.Cache[string, mappingResult]
	lists    *ttlcache.Cache[string, []vendor.Mapping]
	stats    *ttlcache.Cache[string, vendor.Stats]
	products *ttlcache.Cache[string, []vendor.Product]
}

type mappingResult struct {
	mapping vendor.Mapping
	absent  string
}

func NewCachedProvider(inner vendor.IDataProvider, cfg CacheConfig, opts ...ttlcache.Option) *CachedProvider {
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}
	return &CachedProvider{
		inner:       inner,
		loadTimeout: cfg.LoadTimeout,
		mappings: ttlcache.New[string, mappingResult]("vendor_detail", cfg.VendorCapacity, cfg.VendorTTL, opts...),
		lists:    ttlcache.New[string, []vendor.Mapping]("vendor_list", 1, cfg.ListTTL, opts...),
		stats:    ttlcache.New[string, vendor.Stats]("aggregate_stats", 1, cfg.StatsTTL, opts...),
		products: ttlcache.New[string, []vendor.Product]("platform_products", cfg.ProductsCapacity, cfg.ProductsTTL, opts...),
	}
}

func (p *CachedProvider) FetchVendorMapping(ctx context.Context, platform vendor.Platform, code string) (vendor.Mapping, error) {
	key := fmt.Sprintf("%s:%s", platform, code)
	if hit, ok := p.mappings.Get(key); ok {
		return hit.result()
	}

	v, shared, err := p.coalesce(ctx, "mapping:"+key, func(ctx context.Context) (any, error) {
		m, err := p.inner.FetchVendorMapping(ctx, platform, code)
		if err != nil && !pkgError.IsMappingAbsent(err) {
			return nil, err
		}
		res := mappingResult{mapping: m}
		if err != nil {
			res.absent = err.Error()
		}
		p.mappings.Set(key, res)
		return res, nil
	})
	if err != nil {
		return vendor.Mapping{}, err
	}
	if shared {
		logrus.Debugf("[PROVIDER] coalesced vendor mapping lookup %s", key)
	}
	return v.(mappingResult).result()
}

func (r mappingResult) result() (vendor.Mapping, error) {
	if r.absent != "" {
		return r.mapping, pkgError.MappingAbsent(r.absent)
	}
	return r.mapping, nil
}

func (p *CachedProvider) FetchVendorList(ctx context.Context) ([]vendor.Mapping, error) {
	return cachedCall(ctx, p, p.lists, "list", p.inner.FetchVendorList)
}

func (p *CachedProvider) FetchStats(ctx context.Context) (vendor.Stats, error) {
	return cachedCall(ctx, p, p.stats, "stats", p.inner.FetchStats)
}

func (p *CachedProvider) FetchPlatformProducts(ctx context.Context, platform vendor.Platform, code string) ([]vendor.Product, error) {
	key := fmt.Sprintf("%s:%s", platform, code)
	return cachedCall(ctx, p, p.products, key, func(ctx context.Context) ([]vendor.Product, error) {
		return p.inner.FetchPlatformProducts(ctx, platform, code)
	})
}

// Caches exposes the underlying stores for stats and cleanup.
func (p *CachedProvider) Caches() []domainCache.Store {
	return []domainCache.Store{p.mappings, p.lists, p.stats, p.products}
}

// coalesce runs load once for all concurrent callers of key. The shared call
// is detached from the first caller's cancellation and bounded by loadTimeout;
// each caller still stops waiting when its own ctx is done.
func (p *CachedProvider) coalesce(ctx context.Context, key string, load func(ctx context.Context) (any, error)) (any, bool, error) {
	ch := p.group.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.loadTimeout)
		defer cancel()
		return load(lctx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func cachedCall[V any](ctx context.Context, p *CachedProvider, cache *ttlcache.Cache[string, V], key string, load func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := cache.Get(key); ok {
		return v, nil
	}

	v, _, err := p.coalesce(ctx, cache.Name()+":"+key, func(ctx context.Context) (any, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		cache.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}
