package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/AzielCF/az-compare/core/config"
	coreDB "github.com/AzielCF/az-compare/core/database"
	domainCache "github.com/AzielCF/az-compare/domains/cache"
	domainComparison "github.com/AzielCF/az-compare/domains/comparison"
	domainReconcile "github.com/AzielCF/az-compare/domains/reconcile"
	domainSearch "github.com/AzielCF/az-compare/domains/search"
	domainVendor "github.com/AzielCF/az-compare/domains/vendor"
	"github.com/AzielCF/az-compare/infrastructure/notify"
	"github.com/AzielCF/az-compare/infrastructure/page"
	"github.com/AzielCF/az-compare/infrastructure/provider"
	"github.com/AzielCF/az-compare/infrastructure/valkey"
	"github.com/AzielCF/az-compare/pkg/metrics"
	"github.com/AzielCF/az-compare/pkg/taskloop"
	"github.com/AzielCF/az-compare/pkg/ttlcache"
	"github.com/AzielCF/az-compare/pkg/utils"
	"github.com/AzielCF/az-compare/usecase"
	reconcileUsecase "github.com/AzielCF/az-compare/usecase/reconcile"
	"github.com/sirupsen/logrus"
)

// services is everything a command needs besides its own surface.
type services struct {
	serverID string
	provider *provider.CachedProvider
	comparer domainComparison.IComparisonUsecase
	search   domainSearch.ISearchUsecase
	cache    domainCache.ICacheUsecase
	ratings  *ttlcache.Cache[string, reconcileUsecase.Rating]
	valkey   *valkey.Client
	events   *notify.Recorder
	sinks    notify.Fanout
}

// buildServices wires the data provider, caches and use cases. extra sinks
// receive every event next to the log and, when enabled, Valkey.
func buildServices(ctx context.Context, cfg *config.Config, extra ...domainReconcile.NotificationSink) (*services, error) {
	upstream, err := newUpstream(ctx, cfg)
	if err != nil {
		return nil, err
	}

	withMetrics := ttlcache.WithMetrics(metrics.Cache{})
	s := &services{serverID: utils.ServerID(cfg.App.ServerID)}
	s.provider = provider.NewCachedProvider(upstream, provider.CacheConfig{
		VendorTTL:        cfg.Cache.VendorTTL,
		VendorCapacity:   cfg.Cache.VendorCapacity,
		ListTTL:          cfg.Cache.ListTTL,
		StatsTTL:         cfg.Cache.StatsTTL,
		ProductsTTL:      cfg.Cache.ProductsTTL,
		ProductsCapacity: cfg.Cache.ProductsCapacity,
		LoadTimeout:      sharedLoadTimeout(cfg.Provider),
	}, withMetrics)

	comparisons := ttlcache.New[string, domainComparison.Result]("comparisons", cfg.Cache.ComparisonCapacity, cfg.Cache.ComparisonTTL, withMetrics)
	results := ttlcache.New[domainSearch.Signature, []domainSearch.Result]("search_results", cfg.Cache.SearchCapacity, cfg.Cache.SearchTTL, withMetrics)
	windows := ttlcache.New[string, domainSearch.Window]("search_windows", cfg.Search.MaxWindows, cfg.Search.WindowTTL, withMetrics)
	s.ratings = ttlcache.New[string, reconcileUsecase.Rating]("ratings", cfg.Cache.RatingCapacity, cfg.Cache.RatingTTL, withMetrics)

	s.comparer = usecase.NewComparisonService(s.provider, comparisons)
	s.search = usecase.NewSearchService(usecase.SearchConfig{
		MinScore:   cfg.Search.MinScore,
		MaxResults: cfg.Search.MaxResults,
		PageSize:   cfg.Search.PageSize,
	}, results, windows)

	s.events = notify.NewRecorder(cfg.Reconcile.EventBuffer, cfg.Reconcile.EventTTL)
	s.sinks = notify.Fanout{notify.LogSink{}, s.events}
	if cfg.Valkey.Enabled {
		s.valkey, err = valkey.NewClient(valkey.Config{
			Address:        cfg.Valkey.Address,
			Password:       cfg.Valkey.Password,
			DB:             cfg.Valkey.DB,
			ChannelPrefix:  cfg.Valkey.ChannelPrefix,
			ConnectTimeout: cfg.Valkey.ConnectTimeout,
		})
		if err != nil {
			// Events stay local; nothing else depends on Valkey.
			logrus.Warnf("[VALKEY] Disabled: %v", err)
		} else {
			vs := notify.NewValkeySink(s.valkey, s.serverID, 0)
			vs.Start(ctx)
			s.sinks = append(s.sinks, vs)
			logrus.Infof("[VALKEY] Publishing events as %s", s.serverID)
		}
	}
	s.sinks = append(s.sinks, extra...)

	s.cache = usecase.NewCacheService(cfg.Cache.CleanupInterval, s.sinks)
	stores := append(s.provider.Caches(), comparisons, results, windows, s.ratings)
	s.cache.Register(stores...)
	s.cache.StartBackgroundCleanup(ctx)

	return s, nil
}

func newUpstream(ctx context.Context, cfg *config.Config) (domainVendor.IDataProvider, error) {
	switch cfg.Provider.Mode {
	case config.ProviderModeLocal:
		db, err := coreDB.NewDatabase(cfg)
		if err != nil {
			return nil, err
		}
		local := provider.NewGormProvider(db)
		if err := local.InitSchema(ctx); err != nil {
			return nil, fmt.Errorf("init provider schema: %w", err)
		}
		logrus.Infof("[PROVIDER] Using local %s database %s", cfg.Database.Driver, cfg.Database.Name)
		return local, nil
	case config.ProviderModeHTTP, "":
		logrus.Infof("[PROVIDER] Using upstream api %s", cfg.Provider.BaseURL)
		return provider.NewHTTPProvider(provider.HTTPConfig{
			BaseURL:        cfg.Provider.BaseURL,
			APIKey:         cfg.Provider.APIKey,
			Timeout:        cfg.Provider.Timeout,
			MaxRetries:     uint(max(cfg.Provider.MaxRetries, 0)),
			BackoffInitial: cfg.Provider.BackoffInitial,
			BackoffMax:     cfg.Provider.BackoffMax,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider mode %q, expected http or local", cfg.Provider.Mode)
	}
}

func (s *services) close() {
	if s.valkey != nil {
		s.valkey.Close()
	}
	if err := coreDB.Close(coreDB.GlobalDB); err != nil {
		logrus.Warnf("[DATABASE] close: %v", err)
	}
}

func reconcileConfig(cfg *config.Config) reconcileUsecase.Config {
	rc := reconcileUsecase.DefaultConfig()
	rc.ChunkSize = cfg.Reconcile.ChunkSize
	rc.RatingCap = cfg.Reconcile.RatingCap
	rc.HighRating = cfg.Reconcile.HighRating
	rc.Debounce = cfg.Reconcile.Debounce
	rc.PollInterval = cfg.Reconcile.PollInterval
	rc.LocationThrottle = cfg.Reconcile.LocationThrottle
	rc.SettleDelay = cfg.Reconcile.SettleDelay
	rc.ObserveRoot = cfg.Reconcile.ObserveRoot
	return rc
}

// startEngine runs the reconciliation engine over doc and reloads doc
// whenever its file changes.
func startEngine(ctx context.Context, cfg *config.Config, s *services, doc *page.Document) (*reconcileUsecase.Engine, *taskloop.Loop, error) {
	loop := taskloop.New(cfg.Reconcile.QueueSize)
	engine := reconcileUsecase.NewEngine(reconcileConfig(cfg), loop, doc, s.provider, s.comparer, s.ratings, s.sinks)
	if err := engine.Start(ctx); err != nil {
		return nil, nil, err
	}

	err := page.Watch(ctx, doc, func() {
		if err := engine.CheckLocation(ctx); err != nil {
			logrus.Debugf("[WATCHER] Location check skipped: %v", err)
		}
	})
	if err != nil {
		engine.Stop()
		return nil, nil, err
	}
	return engine, loop, nil
}

// sharedLoadTimeout covers every attempt the upstream client may make for one
// coalesced lookup.
func sharedLoadTimeout(p config.ProviderConfig) time.Duration {
	attempts := time.Duration(p.MaxRetries + 1)
	return p.Timeout*attempts + p.BackoffMax*time.Duration(p.MaxRetries)
}
