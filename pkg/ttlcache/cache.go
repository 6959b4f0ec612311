package ttlcache

import (
	"container/list"
	"sync"
	"time"
)

const defaultCapacity = 100

// Metrics receives cache events. Implementations must be safe for concurrent use.
type Metrics interface {
	Hit(cache string)
	Miss(cache string)
	Eviction(cache string)
	Expire(cache string)
}

type noopMetrics struct{}

func (noopMetrics) Hit(string)      {}
func (noopMetrics) Miss(string)     {}
func (noopMetrics) Eviction(string) {}
func (noopMetrics) Expire(string)   {}

type options struct {
	now     func() time.Time
	metrics Metrics
}

// Option customizes a Cache at construction time.
type Option func(*options)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMetrics forwards hit/miss/eviction/expiry events to m.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// Cache is a bounded key/value store where entries expire after a fixed TTL
// and the least recently used entry is evicted once capacity is reached.
// The list front is the LRU head, the back is the MRU tail.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	name     string
	capacity int
	ttl      time.Duration
	items    map[K]*list.Element
	order    *list.List

	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64

	now     func() time.Time
	metrics Metrics
}

// New creates a cache. Capacity and TTL are fixed for the lifetime of the instance.
func New[K comparable, V any](name string, capacity int, ttl time.Duration, opts ...Option) *Cache[K, V] {
	o := options{now: time.Now, metrics: noopMetrics{}}
	for _, opt := range opts {
		opt(&o)
	}
	if capacity <= 0 {
		capacity = defaultCapacity
	}

	return &Cache[K, V]{
		name:     name,
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
		now:      o.now,
		metrics:  o.metrics,
	}
}

// Name returns the label the cache reports in stats and metrics.
func (c *Cache[K, V]) Name() string {
	return c.name
}

// Get returns the value for key if it is present and not expired.
// An expired entry is dropped and counts as a miss.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.misses++
		c.metrics.Miss(c.name)
		return zero, false
	}

	e := el.Value.(*entry[K, V])
	if !c.now().Before(e.expiresAt) {
		c.removeElement(el)
		c.expirations++
		c.misses++
		c.metrics.Expire(c.name)
		c.metrics.Miss(c.name)
		return zero, false
	}

	c.order.MoveToBack(el)
	c.hits++
	c.metrics.Hit(c.name)
	return e.value, true
}

// Set inserts or replaces key, refreshing its expiry and recency.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[K, V])
		e.value = value
		e.expiresAt = expiresAt
		c.order.MoveToBack(el)
		return
	}

	if len(c.items) >= c.capacity {
		if head := c.order.Front(); head != nil {
			c.removeElement(head)
			c.evictions++
			c.metrics.Eviction(c.name)
		}
	}

	el := c.order.PushBack(&entry[K, V]{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = el
}

// Delete removes key and reports whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(el)
	return true
}

// Clear drops every entry. Counters are kept.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*list.Element, c.capacity)
	c.order.Init()
}

// CleanupExpired sweeps the whole store and returns how many entries it removed.
func (c *Cache[K, V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if e := el.Value.(*entry[K, V]); !now.Before(e.expiresAt) {
			c.removeElement(el)
			c.expirations++
			c.metrics.Expire(c.name)
			removed++
		}
		el = next
	}
	return removed
}

// Len returns the number of stored entries, expired ones included until swept.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Name:      c.name,
		Size:      len(c.items),
		Capacity:  c.capacity,
		TTL:       c.ttl,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expirations,
	}
}

func (c *Cache[K, V]) removeElement(el *list.Element) {
	e := c.order.Remove(el).(*entry[K, V])
	delete(c.items, e.key)
}
