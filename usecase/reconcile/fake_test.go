package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AzielCF/az-compare/domains/comparison"
	domainReconcile "github.com/AzielCF/az-compare/domains/reconcile"
	"github.com/AzielCF/az-compare/domains/vendor"
	"github.com/AzielCF/az-compare/pkg/taskloop"
	"github.com/AzielCF/az-compare/pkg/ttlcache"
	"github.com/stretchr/testify/require"
)

type fakeItem struct {
	id        string
	code      string
	rating    float64
	hasRating bool
	container string
	fp        string
}

type fakePage struct {
	mu          sync.Mutex
	location    string
	items       []*fakeItem
	decorations []domainReconcile.DecorationKey
	containers  []string
	ratingCalls int
	decorateErr error
	rootFound   bool
	observer    func(domainReconcile.MutationRecord)
}

func newFakePage(items ...*fakeItem) *fakePage {
	return &fakePage{location: "https://example.test/", items: items, rootFound: true}
}

func (p *fakePage) setLocation(l string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.location = l
}

func (p *fakePage) CurrentLocation() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.location
}

func (p *fakePage) QueryCandidates([]string) []domainReconcile.Item {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domainReconcile.Item, 0, len(p.items))
	for _, it := range p.items {
		out = append(out, domainReconcile.Item{Handle: it, Identity: it.id})
	}
	return out
}

func (p *fakePage) ExtractVendorCode(item domainReconcile.Item) (string, bool) {
	it := item.Handle.(*fakeItem)
	return it.code, it.code != ""
}

func (p *fakePage) ExtractRating(item domainReconcile.Item) (float64, bool) {
	p.mu.Lock()
	p.ratingCalls++
	p.mu.Unlock()
	it := item.Handle.(*fakeItem)
	return it.rating, it.hasRating
}

func (p *fakePage) Fingerprint(item domainReconcile.Item) string {
	it := item.Handle.(*fakeItem)
	if it.fp != "" {
		return it.fp
	}
	return it.id
}

func (p *fakePage) FindContainer(item domainReconcile.Item, _ []string) (domainReconcile.Handle, bool) {
	it := item.Handle.(*fakeItem)
	return it.container, it.container != ""
}

func (p *fakePage) ContainerIdentity(h domainReconcile.Handle) string {
	return h.(string)
}

func (p *fakePage) Decorate(container domainReconcile.Handle, key domainReconcile.DecorationKey) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.decorateErr != nil {
		return p.decorateErr
	}
	p.decorations = append(p.decorations, key)
	p.containers = append(p.containers, container.(string))
	return nil
}

func (p *fakePage) Observe(_ string, fn func(domainReconcile.MutationRecord)) (func(), bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observer = fn
	return func() {}, p.rootFound
}

func (p *fakePage) decorated() []domainReconcile.DecorationKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domainReconcile.DecorationKey(nil), p.decorations...)
}

func (p *fakePage) ratings() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ratingCalls
}

type fakeNode struct {
	shapes []string
}

func (n fakeNode) Matches(selector string) bool {
	for _, s := range n.shapes {
		if s == selector {
			return true
		}
	}
	return false
}

type recordingSink struct {
	mu     sync.Mutex
	events []domainReconcile.Event
}

func (s *recordingSink) Publish(e domainReconcile.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) passes() []domainReconcile.PassSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domainReconcile.PassSummary
	for _, e := range s.events {
		if e.Type == domainReconcile.EventPassCompleted {
			out = append(out, *e.Pass)
		}
	}
	return out
}

func (s *recordingSink) count(t domainReconcile.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type stubProvider struct {
	vendors    []vendor.Mapping
	vendorsErr error
	statsErr   error
}

func (p *stubProvider) FetchVendorMapping(context.Context, vendor.Platform, string) (vendor.Mapping, error) {
	return vendor.Mapping{}, errors.New("not used")
}

func (p *stubProvider) FetchVendorList(context.Context) ([]vendor.Mapping, error) {
	return p.vendors, p.vendorsErr
}

func (p *stubProvider) FetchStats(context.Context) (vendor.Stats, error) {
	return vendor.Stats{TotalVendors: len(p.vendors)}, p.statsErr
}

func (p *stubProvider) FetchPlatformProducts(context.Context, vendor.Platform, string) ([]vendor.Product, error) {
	return nil, errors.New("not used")
}

type comparerFunc func(ctx context.Context, p vendor.Platform, code string) (comparison.Result, error)

func (f comparerFunc) Compare(ctx context.Context, p vendor.Platform, code string) (comparison.Result, error) {
	return f(ctx, p, code)
}

func newRatings() *ttlcache.Cache[string, Rating] {
	return ttlcache.New[string, Rating]("ratings", 500, time.Minute)
}

func startLoop(t *testing.T) *taskloop.Loop {
	t.Helper()
	loop := taskloop.New(64)
	loop.Start(context.Background())
	t.Cleanup(loop.Stop)
	return loop
}

// onLoop runs fn as one task on the loop and waits for it.
func onLoop(t *testing.T, loop *taskloop.Loop, fn func()) {
	t.Helper()
	require.NoError(t, loop.Do(context.Background(), "test", func(context.Context) error {
		fn()
		return nil
	}))
}
