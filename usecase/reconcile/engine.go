package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AzielCF/az-compare/domains/comparison"
	domainReconcile "github.com/AzielCF/az-compare/domains/reconcile"
	"github.com/AzielCF/az-compare/domains/vendor"
	pkgError "github.com/AzielCF/az-compare/pkg/error"
	"github.com/AzielCF/az-compare/pkg/metrics"
	"github.com/AzielCF/az-compare/pkg/taskloop"
	"github.com/AzielCF/az-compare/pkg/ttlcache"
	"github.com/sirupsen/logrus"
)

// Engine owns one watched document: its session, scheduler and watcher all
// run on a single task loop.
type Engine struct {
	cfg      Config
	loop     *taskloop.Loop
	page     domainReconcile.PageAdapter
	provider vendor.IDataProvider
	comparer comparison.IComparisonUsecase
	sink     domainReconcile.NotificationSink

	session   *Session
	scheduler *Scheduler
	watcher   *Watcher

	// settle is only touched on the loop.
	settle *time.Timer

	ctxMu sync.Mutex
	ctx   context.Context
}

func NewEngine(
	cfg Config,
	loop *taskloop.Loop,
	page domainReconcile.PageAdapter,
	provider vendor.IDataProvider,
	comparer comparison.IComparisonUsecase,
	ratings *ttlcache.Cache[string, Rating],
	sink domainReconcile.NotificationSink,
) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:      cfg,
		loop:     loop,
		page:     page,
		provider: provider,
		comparer: comparer,
		sink:     sink,
		session:  NewSession(),
		ctx:      context.Background(),
	}
	e.scheduler = NewScheduler(cfg, loop, page, e.session, ratings, sink)
	e.watcher = NewWatcher(cfg, loop, page, e.scheduler.Request, e.navigate)
	return e
}

// Start runs the loop, opens the first epoch and begins watching the document.
func (e *Engine) Start(ctx context.Context) error {
	e.ctxMu.Lock()
	e.ctx = ctx
	e.ctxMu.Unlock()

	e.loop.Start(ctx)
	err := e.loop.Do(ctx, "engine.start", func(ctx context.Context) error {
		location := e.page.CurrentLocation()
		e.session.Reset(location)
		e.watcher.SetLocation(location)
		e.initialize()
		return nil
	})
	if err != nil {
		return fmt.Errorf("start reconcile engine: %w", err)
	}
	e.watcher.Start(ctx)
	logrus.Infof("[RECONCILE] Engine started at %s", e.page.CurrentLocation())
	return nil
}

func (e *Engine) Stop() {
	e.watcher.Stop()
	e.loop.Stop()
}

// navigate performs a full epoch reset and re-initializes once the new page
// has had time to settle. Runs on the loop.
func (e *Engine) navigate(location string) {
	if e.settle != nil {
		e.settle.Stop()
	}

	ended := e.session.Reset(location)
	metrics.CountEpochReset()
	e.publish(domainReconcile.Event{
		Type:  domainReconcile.EventEpochReset,
		Epoch: &ended,
	})

	epoch := e.session.Epoch()
	// Without this continuation the epoch never loads, so it cannot be dropped
	// by a full queue.
	e.settle = e.loop.YieldAfter(e.cfg.SettleDelay, taskloop.Task{
		Name: "engine.settle",
		Run: func(ctx context.Context) error {
			if e.session.Epoch() != epoch {
				return nil
			}
			e.initialize()
			return nil
		},
	})
}

type initResult struct {
	vendors    []vendor.Mapping
	vendorsErr error
	statsErr   error
	platform   vendor.Platform
	code       string
	comparison *comparison.Result
	compareErr error
}

// initialize loads the per-epoch data off the loop and applies it back on the
// loop, unless the epoch changed in between. Runs on the loop.
func (e *Engine) initialize() {
	epoch := e.session.Epoch()
	location := e.session.Location()
	e.publish(domainReconcile.Event{Type: domainReconcile.EventEpochStarted})

	ctx := e.context()
	go func() {
		res := e.load(ctx, location)
		e.loop.Yield(taskloop.Task{
			Name: "engine.loaded",
			Run: func(ctx context.Context) error {
				if e.session.Epoch() != epoch {
					logrus.Debugf("[RECONCILE] Dropping data loaded for a previous epoch")
					return nil
				}
				e.apply(res)
				return nil
			},
		})
	}()
}

func (e *Engine) load(ctx context.Context, location string) initResult {
	var res initResult
	res.vendors, res.vendorsErr = e.provider.FetchVendorList(ctx)
	_, res.statsErr = e.provider.FetchStats(ctx)

	platform, code, ok := e.cfg.vendorPage(location)
	if ok && e.comparer != nil {
		res.platform, res.code = platform, code
		cmp, err := e.comparer.Compare(ctx, platform, code)
		if err != nil {
			res.compareErr = err
		} else {
			res.comparison = &cmp
		}
	}
	return res
}

func (e *Engine) apply(res initResult) {
	s := e.session
	if res.vendorsErr != nil {
		e.warn(fmt.Sprintf("vendor list unavailable: %s", pkgError.StatusMessage(res.vendorsErr)))
		logrus.Warnf("[RECONCILE] Vendor list failed: %v", res.vendorsErr)
	} else {
		s.setVendors(res.vendors)
	}
	if res.statsErr != nil {
		e.warn(fmt.Sprintf("stats unavailable: %s", pkgError.StatusMessage(res.statsErr)))
	}

	if res.code != "" {
		s.vendorPage = fmt.Sprintf("%s/%s", res.platform, res.code)
		if res.compareErr != nil {
			s.status = pkgError.StatusMessage(res.compareErr)
			logrus.Infof("[RECONCILE] Comparison for %s: %s (%v)", s.vendorPage, s.status, res.compareErr)
		} else {
			s.comparison = res.comparison
			sum := res.comparison.Summary
			e.publish(domainReconcile.Event{
				Type:       domainReconcile.EventComparison,
				Message:    s.vendorPage,
				Comparison: &sum,
			})
		}
	}

	s.ready = true
	e.scheduler.Request()
}

func (e *Engine) warn(msg string) {
	e.session.warn(msg)
	e.publish(domainReconcile.Event{Type: domainReconcile.EventWarning, Message: msg})
}

func (e *Engine) publish(ev domainReconcile.Event) {
	if e.sink == nil {
		return
	}
	ev.EpochID = e.session.ID()
	ev.Location = e.session.Location()
	ev.At = time.Now().UTC()
	e.sink.Publish(ev)
}

func (e *Engine) context() context.Context {
	e.ctxMu.Lock()
	defer e.ctxMu.Unlock()
	return e.ctx
}

func (e *Engine) Snapshot(ctx context.Context) (domainReconcile.Snapshot, error) {
	var snap domainReconcile.Snapshot
	err := e.loop.Do(ctx, "engine.snapshot", func(context.Context) error {
		snap = e.session.Snapshot(e.scheduler.State())
		return nil
	})
	return snap, err
}

// Comparison returns the comparison of the current vendor page, or nil when
// the page is not a vendor page or the comparison is not ready.
func (e *Engine) Comparison(ctx context.Context) (*comparison.Result, error) {
	var out *comparison.Result
	err := e.loop.Do(ctx, "engine.comparison", func(context.Context) error {
		if e.session.comparison != nil {
			c := *e.session.comparison
			out = &c
		}
		return nil
	})
	return out, err
}

// Rescan requests a pass as if the document had mutated.
func (e *Engine) Rescan(ctx context.Context) error {
	return e.loop.Do(ctx, "engine.rescan", func(context.Context) error {
		e.scheduler.Request()
		return nil
	})
}

// CheckLocation forces a location poll, for document reloads.
func (e *Engine) CheckLocation(ctx context.Context) error {
	return e.loop.Do(ctx, "engine.location", func(context.Context) error {
		e.watcher.CheckLocation()
		return nil
	})
}

var _ domainReconcile.IReconcileUsecase = (*Engine)(nil)
