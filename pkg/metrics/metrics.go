// Package metrics holds the Prometheus collectors shared by the cache,
// provider and reconciliation layers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheEvents counts lookups, evictions and expirations per cache instance
	cacheEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "azcompare_cache_events_total",
		Help: "Cache events by cache name and event type",
	}, []string{"cache", "event"})

	providerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "azcompare_provider_requests_total",
		Help: "Data provider calls by operation and outcome",
	}, []string{"operation", "outcome"})

	providerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "azcompare_provider_request_duration_seconds",
		Help:    "Data provider call latency including retries",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
	}, []string{"operation"})

	reconcilePassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "azcompare_reconcile_pass_duration_seconds",
		Help:    "Wall time of one reconciliation pass, yields included",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	reconcileCandidates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "azcompare_reconcile_candidates_total",
		Help: "Candidates visited by outcome",
	}, []string{"outcome"})

	epochResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "azcompare_reconcile_epoch_resets_total",
		Help: "Full epoch resets caused by navigation",
	})
)

// Cache forwards ttlcache events to Prometheus.
type Cache struct{}

func (Cache) Hit(cache string)      { cacheEvents.WithLabelValues(cache, "hit").Inc() }
func (Cache) Miss(cache string)     { cacheEvents.WithLabelValues(cache, "miss").Inc() }
func (Cache) Eviction(cache string) { cacheEvents.WithLabelValues(cache, "eviction").Inc() }
func (Cache) Expire(cache string)   { cacheEvents.WithLabelValues(cache, "expire").Inc() }

func ObserveProvider(operation, outcome string, started time.Time) {
	providerRequests.WithLabelValues(operation, outcome).Inc()
	providerDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func ObservePass(d time.Duration) {
	reconcilePassDuration.Observe(d.Seconds())
}

// CountCandidate records one visited candidate: decorated, duplicate, no_code, no_container, failed.
func CountCandidate(outcome string) {
	reconcileCandidates.WithLabelValues(outcome).Inc()
}

func CountEpochReset() {
	epochResets.Inc()
}
