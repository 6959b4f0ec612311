package notify

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/AzielCF/az-compare/domains/reconcile"
)

// RecorderStats is the recent event feed plus lifetime counters.
type RecorderStats struct {
	TotalPasses     int64             `json:"total_passes"`
	TotalResets     int64             `json:"total_resets"`
	TotalWarnings   int64             `json:"total_warnings"`
	TotalDecorated  int64             `json:"total_decorated"`
	TotalComparison int64             `json:"total_comparisons"`
	RecentEvents    []reconcile.Event `json:"recent_events"`
}

// Recorder keeps the last events in a ring buffer. Events older than ttl are
// hidden from Stats; a zero ttl keeps them until overwritten.
type Recorder struct {
	eventsMu sync.Mutex
	events   []reconcile.Event
	idx      int
	count    int
	ttl      time.Duration

	totalPasses     int64
	totalResets     int64
	totalWarnings   int64
	totalDecorated  int64
	totalComparison int64
}

func NewRecorder(size int, ttl time.Duration) *Recorder {
	if size <= 0 {
		size = 200
	}
	return &Recorder{events: make([]reconcile.Event, size), ttl: ttl}
}

func (r *Recorder) Publish(e reconcile.Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	switch e.Type {
	case reconcile.EventPassCompleted:
		atomic.AddInt64(&r.totalPasses, 1)
		if e.Pass != nil {
			atomic.AddInt64(&r.totalDecorated, int64(e.Pass.Decorated))
		}
	case reconcile.EventEpochReset:
		atomic.AddInt64(&r.totalResets, 1)
	case reconcile.EventWarning:
		atomic.AddInt64(&r.totalWarnings, 1)
	case reconcile.EventComparison:
		atomic.AddInt64(&r.totalComparison, 1)
	case reconcile.EventCacheStats:
		// periodic and noisy, counted nowhere and not kept
		return
	}

	r.eventsMu.Lock()
	r.events[r.idx] = e
	r.idx = (r.idx + 1) % len(r.events)
	if r.count < len(r.events) {
		r.count++
	}
	r.eventsMu.Unlock()
}

// Stats returns the retained events oldest first.
func (r *Recorder) Stats() RecorderStats {
	r.eventsMu.Lock()
	defer r.eventsMu.Unlock()

	res := make([]reconcile.Event, 0, r.count)
	var cutoff time.Time
	if r.ttl > 0 {
		cutoff = time.Now().UTC().Add(-r.ttl)
	}
	start := (r.idx - r.count) % len(r.events)
	if start < 0 {
		start += len(r.events)
	}
	for i := 0; i < r.count; i++ {
		e := r.events[(start+i)%len(r.events)]
		if !cutoff.IsZero() && e.At.Before(cutoff) {
			continue
		}
		res = append(res, e)
	}

	return RecorderStats{
		TotalPasses:     atomic.LoadInt64(&r.totalPasses),
		TotalResets:     atomic.LoadInt64(&r.totalResets),
		TotalWarnings:   atomic.LoadInt64(&r.totalWarnings),
		TotalDecorated:  atomic.LoadInt64(&r.totalDecorated),
		TotalComparison: atomic.LoadInt64(&r.totalComparison),
		RecentEvents:    res,
	}
}
