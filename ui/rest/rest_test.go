package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domainComparison "github.com/AzielCF/az-compare/domains/comparison"
	domainReconcile "github.com/AzielCF/az-compare/domains/reconcile"
	domainSearch "github.com/AzielCF/az-compare/domains/search"
	domainVendor "github.com/AzielCF/az-compare/domains/vendor"
	"github.com/AzielCF/az-compare/infrastructure/notify"
	pkgError "github.com/AzielCF/az-compare/pkg/error"
	"github.com/AzielCF/az-compare/pkg/taskloop"
	"github.com/AzielCF/az-compare/pkg/ttlcache"
	"github.com/AzielCF/az-compare/ui/rest/middleware"
	"github.com/AzielCF/az-compare/usecase"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider answers from fixed data; a non-nil err fails every call.
type fakeProvider struct {
	vendors []domainVendor.Mapping
	stats   domainVendor.Stats
	err     error
}

func (f *fakeProvider) FetchVendorMapping(ctx context.Context, p domainVendor.Platform, code string) (domainVendor.Mapping, error) {
	for _, m := range f.vendors {
		if m.Code(p) == code {
			if m.Code(p.Counterpart()) == "" {
				return m, pkgError.MappingAbsent("no counterpart for " + code)
			}
			return m, nil
		}
	}
	if f.err != nil {
		return domainVendor.Mapping{}, f.err
	}
	return domainVendor.Mapping{}, pkgError.MappingAbsent("unknown vendor " + code)
}

func (f *fakeProvider) FetchVendorList(ctx context.Context) ([]domainVendor.Mapping, error) {
	return f.vendors, f.err
}

func (f *fakeProvider) FetchStats(ctx context.Context) (domainVendor.Stats, error) {
	return f.stats, f.err
}

func (f *fakeProvider) FetchPlatformProducts(ctx context.Context, p domainVendor.Platform, code string) ([]domainVendor.Product, error) {
	return nil, f.err
}

type comparerFunc func(ctx context.Context, p domainVendor.Platform, code string) (domainComparison.Result, error)

func (f comparerFunc) Compare(ctx context.Context, p domainVendor.Platform, code string) (domainComparison.Result, error) {
	return f(ctx, p, code)
}

type envelope struct {
	Status   int             `json:"status"`
	Code     string          `json:"code"`
	Message  string          `json:"message"`
	Results  json.RawMessage `json:"results"`
	Warnings []string        `json:"warnings"`
}

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(middleware.Recovery())
	return app
}

func do(t *testing.T, app *fiber.App, method, target, body string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var env envelope
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode response: %v, body=%s", err, string(raw))
		}
	}
	return resp.StatusCode, env
}

var vendors = []domainVendor.Mapping{
	{ID: "1", SfCode: "abc", SfName: "پیتزا رما", TfCode: "x1", TfName: "Pizza Roma", BusinessLine: "restaurant"},
	{ID: "2", SfCode: "def", SfName: "برگر کینگ", TfCode: "x2", TfName: "Burger King", BusinessLine: "restaurant"},
	{ID: "3", SfCode: "ghi", SfName: "کافه نادری", BusinessLine: "cafe"},
}

func TestVendorList(t *testing.T) {
	app := newApp()
	InitRestVendor(app, &fakeProvider{vendors: vendors})

	status, env := do(t, app, http.MethodGet, "/vendors", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "SUCCESS", env.Code)

	var results struct {
		Vendors []domainVendor.Mapping `json:"vendors"`
		Total   int                    `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Results, &results))
	assert.Equal(t, 3, results.Total)
	assert.Equal(t, "abc", results.Vendors[0].SfCode)
}

func TestVendorList_ProviderFailureIsStatusMessage(t *testing.T) {
	app := newApp()
	InitRestVendor(app, &fakeProvider{err: pkgError.ConnectionFailure("dial tcp: connection refused")})

	status, env := do(t, app, http.MethodGet, "/vendors", "")
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "CONNECTION_FAILURE", env.Code)
	assert.Equal(t, pkgError.StatusServerUnreachable, env.Message)
}

func TestVendorMapping(t *testing.T) {
	app := newApp()
	InitRestVendor(app, &fakeProvider{vendors: vendors})

	status, env := do(t, app, http.MethodGet, "/vendors/tf/x2", "")
	require.Equal(t, http.StatusOK, status)
	var m domainVendor.Mapping
	require.NoError(t, json.Unmarshal(env.Results, &m))
	assert.Equal(t, "def", m.SfCode)
	assert.Empty(t, env.Warnings)

	// known vendor without counterpart
	status, env = do(t, app, http.MethodGet, "/vendors/sf/ghi", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{pkgError.StatusNoData}, env.Warnings)

	status, env = do(t, app, http.MethodGet, "/vendors/sf/nope", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, pkgError.StatusNoData, env.Message)

	status, env = do(t, app, http.MethodGet, "/vendors/xx/abc", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)
}

func TestStats_FailureIsWarning(t *testing.T) {
	app := newApp()
	InitRestVendor(app, &fakeProvider{err: pkgError.TimeoutFailure("deadline exceeded")})

	status, env := do(t, app, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"stats unavailable: " + pkgError.StatusServerUnreachable}, env.Warnings)
	assert.Empty(t, env.Results)
}

func TestCompare(t *testing.T) {
	app := newApp()
	InitRestCompare(app, comparerFunc(func(ctx context.Context, p domainVendor.Platform, code string) (domainComparison.Result, error) {
		if code != "abc" {
			return domainComparison.Result{}, pkgError.MappingAbsent("no mapping")
		}
		records := domainComparison.Compare(
			map[string]domainVendor.Product{"1": {ID: "1", Name: "Margherita", Price: 100}},
			map[string]domainVendor.Product{"9": {ID: "9", Name: "Margherita", Price: 80}},
			map[string]string{"1": "9"},
		)
		return domainComparison.Result{
			Mapping:      vendors[0],
			BasePlatform: p,
			Records:      records,
			Summary:      domainComparison.Summarize(records),
		}, nil
	}))

	status, env := do(t, app, http.MethodGet, "/compare/sf/abc", "")
	require.Equal(t, http.StatusOK, status)
	var results struct {
		Records []domainComparison.Record `json:"records"`
		Summary domainComparison.Summary  `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(env.Results, &results))
	require.Len(t, results.Records, 1)
	assert.Equal(t, int64(20), results.Records[0].PriceDiff)
	assert.Equal(t, 1, results.Summary.Cheaper)

	status, env = do(t, app, http.MethodGet, "/compare/sf/zzz", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, pkgError.StatusNoData, env.Message)
}

func TestSearchFlow(t *testing.T) {
	app := newApp()
	cache := ttlcache.New[domainSearch.Signature, []domainSearch.Result]("search_results", 16, time.Minute)
	windows := ttlcache.New[string, domainSearch.Window]("search_windows", 16, time.Minute)
	service := usecase.NewSearchService(usecase.SearchConfig{PageSize: 1}, cache, windows)
	InitRestSearch(app, service, &fakeProvider{vendors: vendors}, nil)

	status, env := do(t, app, http.MethodPost, "/search/dataset", `{"source":"vendors"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Results), `"records":3`)

	status, env = do(t, app, http.MethodPost, "/search", `{"text":"پيتزا"}`)
	require.Equal(t, http.StatusOK, status)
	var page domainSearch.Page
	require.NoError(t, json.Unmarshal(env.Results, &page))
	require.Len(t, page.Results, 1)
	assert.Equal(t, "abc", page.Results[0].ID)

	status, _ = do(t, app, http.MethodPost, "/search", `{"sort":"cheapest"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	pizzaCursor := page.Cursor

	status, env = do(t, app, http.MethodPost, "/search", `{"text":"","category":"restaurant"}`)
	require.Equal(t, http.StatusOK, status)
	var browse domainSearch.Page
	require.NoError(t, json.Unmarshal(env.Results, &browse))
	assert.Equal(t, 2, browse.Total)
	assert.True(t, browse.HasMore)

	status, env = do(t, app, http.MethodPost, "/search/more", `{"cursor":"`+browse.Cursor+`"}`)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Results, &browse))
	assert.Len(t, browse.Results, 2)
	assert.False(t, browse.HasMore)

	// the earlier search still pages over its own results
	status, env = do(t, app, http.MethodPost, "/search/more", `{"cursor":"`+pizzaCursor+`"}`)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Results, &page))
	assert.Equal(t, "پيتزا", page.Query.Text)
	assert.Equal(t, "abc", page.Results[0].ID)

	status, env = do(t, app, http.MethodPost, "/search/more", "{}")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)

	status, env = do(t, app, http.MethodPost, "/search/more", `{"cursor":"8a0d2c57-3a4f-4e7b-9d1c-2f6b0e5a7c11"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND_ERROR", env.Code)
}

func TestSearchDataset_ComparisonRequiresCode(t *testing.T) {
	app := newApp()
	cache := ttlcache.New[domainSearch.Signature, []domainSearch.Result]("search_results", 16, time.Minute)
	windows := ttlcache.New[string, domainSearch.Window]("search_windows", 16, time.Minute)
	InitRestSearch(app, usecase.NewSearchService(usecase.SearchConfig{}, cache, windows), &fakeProvider{}, nil)

	status, env := do(t, app, http.MethodPost, "/search/dataset", `{"source":"comparison","platform":"sf"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)
}

func TestSearchDataset_PlatformReachesComparer(t *testing.T) {
	app := newApp()
	cache := ttlcache.New[domainSearch.Signature, []domainSearch.Result]("search_results", 16, time.Minute)
	windows := ttlcache.New[string, domainSearch.Window]("search_windows", 16, time.Minute)
	var got []domainVendor.Platform
	comparer := comparerFunc(func(ctx context.Context, p domainVendor.Platform, code string) (domainComparison.Result, error) {
		got = append(got, p)
		return domainComparison.Result{Mapping: vendors[0], BasePlatform: p}, nil
	})
	InitRestSearch(app, usecase.NewSearchService(usecase.SearchConfig{}, cache, windows), &fakeProvider{}, comparer)

	status, _ := do(t, app, http.MethodPost, "/search/dataset", `{"source":"comparison","platform":"TF","code":"x1"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []domainVendor.Platform{domainVendor.PlatformTF}, got)

	status, env := do(t, app, http.MethodPost, "/search/dataset", `{"source":"comparison","platform":"ftp","code":"x1"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)
	assert.Len(t, got, 1)
}

func TestCache_ClearUnknownAndAll(t *testing.T) {
	app := newApp()
	service := usecase.NewCacheService(time.Minute, nil)
	store := ttlcache.New[string, int]("vendor_list", 4, time.Minute)
	store.Set("k", 1)
	service.Register(store)
	InitRestCache(app, service)

	status, env := do(t, app, http.MethodGet, "/cache/stats", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Results), "vendor_list")

	status, env = do(t, app, http.MethodPost, "/cache/clear", `{"name":"nope"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND_ERROR", env.Code)

	status, _ = do(t, app, http.MethodPost, "/cache/clear", `{"name":"vendor_list"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Zero(t, store.Len())

	store.Set("k", 1)
	status, _ = do(t, app, http.MethodPost, "/cache/clear", "")
	require.Equal(t, http.StatusOK, status)
	assert.Zero(t, store.Len())
}

type fakeSession struct {
	snapshot domainReconcile.Snapshot
	rescans  int
}

func (f *fakeSession) Snapshot(ctx context.Context) (domainReconcile.Snapshot, error) {
	return f.snapshot, nil
}

func (f *fakeSession) Comparison(ctx context.Context) (*domainComparison.Result, error) {
	return nil, nil
}

func (f *fakeSession) Rescan(ctx context.Context) error {
	f.rescans++
	return nil
}

func TestSession(t *testing.T) {
	app := newApp()
	session := &fakeSession{snapshot: domainReconcile.Snapshot{
		Epoch: domainReconcile.EpochSummary{EpochID: "e-1", Location: "https://sf.example/r-abc", Warnings: []string{"stats unavailable: server unreachable"}},
		State: "idle",
	}}
	loop := taskloop.New(8)
	InitRestSession(app, session, loop)

	status, env := do(t, app, http.MethodGet, "/session", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Results), `"epoch_id":"e-1"`)
	assert.Equal(t, session.snapshot.Epoch.Warnings, env.Warnings)

	status, _ = do(t, app, http.MethodPost, "/session/rescan", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, session.rescans)

	status, env = do(t, app, http.MethodGet, "/session/comparison", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NO_COMPARISON", env.Code)

	status, _ = do(t, app, http.MethodGet, "/session/loop", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestSession_WithoutDocument(t *testing.T) {
	app := newApp()
	InitRestSession(app, nil, nil)

	status, env := do(t, app, http.MethodGet, "/session", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "NO_DOCUMENT", env.Code)
}

func TestMonitoring(t *testing.T) {
	app := newApp()
	events := notify.NewRecorder(4, 0)
	events.Publish(domainReconcile.Event{Type: domainReconcile.EventWarning, Message: "vendor list unavailable: server unreachable"})
	InitRestMonitoring(app, "test", events)

	status, env := do(t, app, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Results), `"version":"test"`)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "go_goroutines"))

	status, env = do(t, app, http.MethodGet, "/events", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Results), "vendor list unavailable")
	assert.Contains(t, string(env.Results), `"total_warnings":1`)
}
