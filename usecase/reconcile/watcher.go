package reconcile

import (
	"context"
	"sync"
	"time"

	domainReconcile "github.com/AzielCF/az-compare/domains/reconcile"
	"github.com/AzielCF/az-compare/pkg/ratelimit"
	"github.com/AzielCF/az-compare/pkg/taskloop"
	"github.com/sirupsen/logrus"
)

// Watcher turns document mutations into debounced reconciliation requests
// and polls the location for client-side navigation.
type Watcher struct {
	cfg  Config
	loop *taskloop.Loop
	page domainReconcile.PageAdapter

	onMutation   func()
	onNavigation func(location string)

	debounce *ratelimit.Debouncer[struct{}]
	throttle *ratelimit.Throttler[struct{}]

	// lastKnownLocation is only touched on the loop.
	lastKnownLocation string

	mu     sync.Mutex
	stop   func()
	cancel context.CancelFunc
}

// NewWatcher wires mutation and navigation callbacks. Both callbacks run on the loop.
func NewWatcher(cfg Config, loop *taskloop.Loop, page domainReconcile.PageAdapter, onMutation func(), onNavigation func(location string)) *Watcher {
	w := &Watcher{
		cfg:          cfg.withDefaults(),
		loop:         loop,
		page:         page,
		onMutation:   onMutation,
		onNavigation: onNavigation,
	}
	w.debounce = ratelimit.NewDebouncer(w.cfg.Debounce, func(struct{}) {
		w.loop.Post(taskloop.Task{
			Name: "watcher.mutation",
			Run: func(ctx context.Context) error {
				w.onMutation()
				return nil
			},
		})
	})
	w.throttle = ratelimit.NewThrottler(w.cfg.LocationThrottle, func(struct{}) {
		w.loop.Post(taskloop.Task{
			Name: "watcher.location",
			Run: func(ctx context.Context) error {
				w.CheckLocation()
				return nil
			},
		})
	})
	return w
}

// SetLocation records the location the current epoch started at. Runs on the loop.
func (w *Watcher) SetLocation(location string) {
	w.lastKnownLocation = location
}

// Start subscribes to mutations and begins location polling until ctx is
// done or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	stop, scoped := w.page.Observe(w.cfg.ObserveRoot, w.HandleMutation)
	if !scoped {
		logrus.Warnf("[WATCHER] Root %q not found, observing the whole document", w.cfg.ObserveRoot)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.stop = stop
	w.cancel = cancel
	w.mu.Unlock()

	go func() {
		ticker := time.NewTicker(w.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.throttle.Call(struct{}{})
			}
		}
	}()
}

// HandleMutation triggers a debounced reconciliation when an added node has
// one of the target shapes. Other mutations are ignored.
func (w *Watcher) HandleMutation(record domainReconcile.MutationRecord) {
	for _, node := range record.Added {
		for _, shape := range w.cfg.TargetShapes {
			if node.Matches(shape) {
				w.debounce.Trigger(struct{}{})
				return
			}
		}
	}
}

// CheckLocation compares the current location with the last known one and
// reports a navigation on change. Runs on the loop.
func (w *Watcher) CheckLocation() {
	location := w.page.CurrentLocation()
	if location == w.lastKnownLocation {
		return
	}
	logrus.Infof("[WATCHER] Location changed: %s -> %s", w.lastKnownLocation, location)
	w.lastKnownLocation = location
	w.onNavigation(location)
}

func (w *Watcher) Stop() {
	w.mu.Lock()
	stop, cancel := w.stop, w.cancel
	w.stop, w.cancel = nil, nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stop != nil {
		stop()
	}
	w.debounce.Cancel()
	w.throttle.Cancel()
}
