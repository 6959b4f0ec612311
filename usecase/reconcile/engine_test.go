package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/AzielCF/az-compare/domains/comparison"
	domainReconcile "github.com/AzielCF/az-compare/domains/reconcile"
	"github.com/AzielCF/az-compare/domains/vendor"
	pkgError "github.com/AzielCF/az-compare/pkg/error"
	"github.com/AzielCF/az-compare/pkg/taskloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		Debounce:         5 * time.Millisecond,
		PollInterval:     5 * time.Millisecond,
		LocationThrottle: 10 * time.Millisecond,
		SettleDelay:      10 * time.Millisecond,
	}
}

func startEngine(t *testing.T, page *fakePage, provider vendor.IDataProvider, comparer comparison.IComparisonUsecase, sink *recordingSink) *Engine {
	t.Helper()
	e := NewEngine(fastConfig(), taskloop.New(64), page, provider, comparer, newRatings(), sink)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, e.Start(ctx))
	t.Cleanup(func() {
		e.Stop()
		cancel()
	})
	return e
}

func TestEngine_DecoratesAfterLoadingVendors(t *testing.T) {
	page := newFakePage(
		&fakeItem{id: "a", code: "abc", container: "ca"},
		&fakeItem{id: "b", code: "solo", container: "cb"},
	)
	provider := &stubProvider{
		vendors:  []vendor.Mapping{{ID: "1", SfCode: "abc", TfCode: "xyz"}},
		statsErr: pkgError.TimeoutFailure("deadline"),
	}
	sink := &recordingSink{}
	e := startEngine(t, page, provider, nil, sink)

	require.Eventually(t, func() bool { return len(page.decorated()) == 2 }, time.Second, 5*time.Millisecond)
	keys := page.decorated()
	assert.True(t, keys[0].IsPaired)
	assert.False(t, keys[1].IsPaired)

	snap, err := e.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.VendorsLoaded)
	assert.Equal(t, []string{"stats unavailable: server unreachable"}, snap.Epoch.Warnings)
	assert.Equal(t, 2, snap.Epoch.Decorated)
	assert.Equal(t, 1, sink.count(domainReconcile.EventWarning))
}

func TestEngine_VendorListFailureIsAWarning(t *testing.T) {
	page := newFakePage(&fakeItem{id: "a", code: "abc", container: "ca"})
	provider := &stubProvider{vendorsErr: pkgError.ConnectionFailure("refused")}
	sink := &recordingSink{}
	e := startEngine(t, page, provider, nil, sink)

	require.Eventually(t, func() bool { return len(page.decorated()) == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, page.decorated()[0].IsPaired)

	snap, err := e.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Contains(t, snap.Epoch.Warnings, "vendor list unavailable: server unreachable")
}

func TestEngine_NavigationResetsEpochAndRedecorates(t *testing.T) {
	page := newFakePage(&fakeItem{id: "a", code: "abc", container: "ca"})
	sink := &recordingSink{}
	e := startEngine(t, page, &stubProvider{}, nil, sink)

	require.Eventually(t, func() bool { return len(page.decorated()) == 1 }, time.Second, 5*time.Millisecond)
	before, err := e.Snapshot(context.Background())
	require.NoError(t, err)

	page.setLocation("https://example.test/elsewhere")
	require.Eventually(t, func() bool { return len(page.decorated()) == 2 }, time.Second, 5*time.Millisecond)

	keys := page.decorated()
	assert.Equal(t, keys[0], keys[1])
	assert.Equal(t, 1, sink.count(domainReconcile.EventEpochReset))

	after, err := e.Snapshot(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, before.Epoch.EpochID, after.Epoch.EpochID)
	assert.Equal(t, "https://example.test/elsewhere", after.Epoch.Location)
	assert.Equal(t, 1, after.Epoch.Decorated)
}

func TestEngine_ComparesVendorPages(t *testing.T) {
	page := newFakePage()
	page.location = "https://sf.test/restaurant/menu/pizza-r-abc12/"

	var gotPlatform vendor.Platform
	var gotCode string
	comparer := comparerFunc(func(_ context.Context, p vendor.Platform, code string) (comparison.Result, error) {
		gotPlatform, gotCode = p, code
		return comparison.Result{BasePlatform: p, Summary: comparison.Summary{Total: 3, Cheaper: 2}}, nil
	})
	sink := &recordingSink{}
	e := startEngine(t, page, &stubProvider{}, comparer, sink)

	require.Eventually(t, func() bool { return sink.count(domainReconcile.EventComparison) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, vendor.PlatformSF, gotPlatform)
	assert.Equal(t, "abc12", gotCode)

	res, err := e.Comparison(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 2, res.Summary.Cheaper)

	snap, err := e.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sf/abc12", snap.VendorPage)
	require.NotNil(t, snap.Comparison)
	assert.Equal(t, 3, snap.Comparison.Total)
}

func TestEngine_ComparisonFailureBecomesStatus(t *testing.T) {
	page := newFakePage()
	page.location = "https://tf.test/vendor/q9z"

	comparer := comparerFunc(func(context.Context, vendor.Platform, string) (comparison.Result, error) {
		return comparison.Result{}, pkgError.MappingAbsent("no counterpart")
	})
	sink := &recordingSink{}
	e := startEngine(t, page, &stubProvider{}, comparer, sink)

	require.Eventually(t, func() bool {
		snap, err := e.Snapshot(context.Background())
		return err == nil && snap.Status != ""
	}, time.Second, 5*time.Millisecond)

	snap, _ := e.Snapshot(context.Background())
	assert.Equal(t, pkgError.StatusNoData, snap.Status)
	assert.Equal(t, "tf/q9z", snap.VendorPage)

	res, err := e.Comparison(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res)
}

// gatedProvider holds the vendor list until gate is closed.
type gatedProvider struct {
	stubProvider
	gate chan struct{}
}

func (p *gatedProvider) FetchVendorList(ctx context.Context) ([]vendor.Mapping, error) {
	<-p.gate
	return p.stubProvider.FetchVendorList(ctx)
}

func TestEngine_LoadedDataSurvivesFullQueue(t *testing.T) {
	page := newFakePage(&fakeItem{id: "a", code: "abc", container: "ca"})
	provider := &gatedProvider{gate: make(chan struct{})}
	loop := taskloop.New(1)
	e := NewEngine(fastConfig(), loop, page, provider, nil, newRatings(), &recordingSink{})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, e.Start(ctx))
	t.Cleanup(func() {
		e.Stop()
		cancel()
	})

	busy := make(chan struct{})
	release := make(chan struct{})
	loop.Yield(taskloop.Task{Name: "busy", Run: func(context.Context) error {
		close(busy)
		<-release
		return nil
	}})
	<-busy
	for loop.TryPost(taskloop.Task{Name: "filler"}) {
	}

	yielded := loop.Stats().TotalYielded
	close(provider.gate)
	require.Eventually(t, func() bool { return loop.Stats().TotalYielded > yielded }, time.Second, 5*time.Millisecond)

	close(release)
	require.Eventually(t, func() bool { return len(page.decorated()) == 1 }, time.Second, 5*time.Millisecond)
}
