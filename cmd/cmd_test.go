package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AzielCF/az-compare/core/config"
	coreDB "github.com/AzielCF/az-compare/core/database"
	domainReconcile "github.com/AzielCF/az-compare/domains/reconcile"
	"github.com/AzielCF/az-compare/domains/vendor"
	"github.com/AzielCF/az-compare/infrastructure/page"
	"github.com/AzielCF/az-compare/infrastructure/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedJSON = `{
  "vendors": [
    {"id": "1", "sf_code": "abc", "sf_name": "پیتزا رما", "tf_code": "x1", "tf_name": "Pizza Roma", "business_line": "restaurant"}
  ],
  "products": [
    {"platform": "sf", "vendor_code": "abc", "items": [{"id": "p1", "name": "مارگاریتا", "price": 250000}]},
    {"platform": "tf", "vendor_code": "x1", "items": [{"id": "q1", "name": "مارگاریتا", "price": 230000}]}
  ]
}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = filepath.Join(t.TempDir(), "compare.db")
	cfg.Valkey.Enabled = false
	return cfg
}

func TestRunMigration_SeedIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	seed := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte(seedJSON), 0o644))

	ctx := context.Background()
	require.NoError(t, runMigration(ctx, cfg, seed))
	require.NoError(t, runMigration(ctx, cfg, seed))

	db, err := coreDB.NewDatabase(cfg)
	require.NoError(t, err)
	local := provider.NewGormProvider(db)

	list, err := local.FetchVendorList(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	products, err := local.FetchPlatformProducts(ctx, vendor.PlatformTF, "x1")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, int64(230000), products[0].Price)
}

func TestRunMigration_BadSeed(t *testing.T) {
	cfg := testConfig(t)
	seed := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte("{not json"), 0o644))

	err := runMigration(context.Background(), cfg, seed)
	assert.ErrorContains(t, err, "failed to parse seed file")
}

func TestBuildServices_LocalProviderComparesSeededVendor(t *testing.T) {
	cfg := testConfig(t)
	cfg.Provider.Mode = config.ProviderModeLocal
	seed := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte(seedJSON), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, runMigration(ctx, cfg, seed))

	svc, err := buildServices(ctx, cfg)
	require.NoError(t, err)
	defer svc.close()

	result, err := svc.comparer.Compare(ctx, vendor.PlatformSF, "abc")
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, int64(20000), result.Records["p1"].PriceDiff)

	stats, err := svc.cache.GetStats(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(stats.Caches))
	for _, c := range stats.Caches {
		names = append(names, c.Name)
	}
	assert.Subset(t, names, []string{"vendor_detail", "comparisons", "search_results", "search_windows", "ratings"})
}

func TestNewUpstream_UnknownMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Provider.Mode = "ftp"
	_, err := newUpstream(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown provider mode")
}

func TestSharedLoadTimeout_CoversRetries(t *testing.T) {
	d := sharedLoadTimeout(config.ProviderConfig{Timeout: 2 * time.Second, MaxRetries: 2, BackoffMax: time.Second})
	assert.Equal(t, 8*time.Second, d)
}

func TestReconcileConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Reconcile.ChunkSize = 5
	cfg.Reconcile.RatingCap = 0
	cfg.Reconcile.ObserveRoot = "#listing"

	rc := reconcileConfig(cfg)
	assert.Equal(t, 5, rc.ChunkSize)
	assert.Zero(t, rc.RatingCap)
	assert.Equal(t, "#listing", rc.ObserveRoot)
	assert.NotEmpty(t, rc.CandidateSelectors)
}

func TestDocumentWriter_SavesAfterPasses(t *testing.T) {
	doc, err := page.Parse(strings.NewReader(`<html><body><main><a href="/x-r-abc">Roma</a></main></body></html>`), page.Options{Location: "https://sf.example/"})
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "decorated.html")
	w := newDocumentWriter(doc, out)

	w.Publish(domainReconcile.Event{Type: domainReconcile.EventPassCompleted, Pass: &domainReconcile.PassSummary{Abandoned: true}})
	assert.False(t, w.save.Pending())

	w.Publish(domainReconcile.Event{Type: domainReconcile.EventPassCompleted, Pass: &domainReconcile.PassSummary{Pass: 1}})
	assert.True(t, w.save.Pending())

	require.Eventually(t, func() bool {
		_, err := os.Stat(out)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
}
