package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/AzielCF/az-compare/domains/search"
	pkgError "github.com/AzielCF/az-compare/pkg/error"
	"github.com/AzielCF/az-compare/pkg/ttlcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSearch(cfg SearchConfig) (search.ISearchUsecase, *ttlcache.Cache[search.Signature, []search.Result]) {
	cache := ttlcache.New[search.Signature, []search.Result]("search_results", 50, time.Minute)
	windows := ttlcache.New[string, search.Window]("search_windows", 50, time.Minute)
	return NewSearchService(cfg, cache, windows), cache
}

func productDataset() []search.Record {
	return []search.Record{
		search.NewRecord(search.Record{ID: "1", Name: "چیز برگر مخصوص", Price: 300, PriceDiff: 30, PercentDiff: 10, Outcome: search.CategoryCheaper, HasComparison: true}),
		search.NewRecord(search.Record{ID: "2", Name: "پیتزا پپرونی", Price: 400, PriceDiff: -40, PercentDiff: 10, Outcome: search.CategoryPricier, HasComparison: true}),
		search.NewRecord(search.Record{ID: "3", Name: "برگر ذغالی", Price: 250, PriceDiff: 50, PercentDiff: 20, Outcome: search.CategoryCheaper, HasComparison: true}),
		search.NewRecord(search.Record{ID: "4", Name: "نوشابه", Price: 30, Outcome: search.CategorySame, HasComparison: true}),
	}
}

func ids(page search.Page) []string {
	out := make([]string, 0, len(page.Results))
	for _, r := range page.Results {
		out = append(out, r.ID)
	}
	return out
}

func TestSearchService_RanksWordMatches(t *testing.T) {
	svc, _ := newSearch(SearchConfig{})
	svc.SetDataset(productDataset(), true)

	page := svc.Search(context.Background(), search.Query{Text: "برگر"})
	assert.ElementsMatch(t, []string{"1", "3"}, ids(page))
	for _, r := range page.Results {
		assert.Greater(t, r.Score, 10.0)
	}
}

func TestSearchService_ArabicVariantsMatchPersianText(t *testing.T) {
	svc, _ := newSearch(SearchConfig{})
	svc.SetDataset([]search.Record{search.NewRecord(search.Record{ID: "k", Name: "کباب کوبیده"})}, false)

	page := svc.Search(context.Background(), search.Query{Text: "كباب"})
	assert.Equal(t, []string{"k"}, ids(page))
}

func TestSearchService_NoSharedCharactersIsAbsent(t *testing.T) {
	svc, _ := newSearch(SearchConfig{})
	svc.SetDataset(productDataset(), true)

	page := svc.Search(context.Background(), search.Query{Text: "xyz"})
	assert.Empty(t, page.Results)
	assert.False(t, page.HasMore)
}

func TestSearchService_IdenticalQueryHitsCache(t *testing.T) {
	svc, cache := newSearch(SearchConfig{})
	svc.SetDataset(productDataset(), true)
	ctx := context.Background()

	first := svc.Search(ctx, search.Query{Text: "برگر"})
	hits := cache.Stats().Hits
	second := svc.Search(ctx, search.Query{Text: "  برگر ", Category: "all", Sort: search.SortRelevance})

	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, hits+1, cache.Stats().Hits)
	assert.Equal(t, 1, cache.Len())
}

func TestSearchService_DatasetReplacementClearsCache(t *testing.T) {
	svc, cache := newSearch(SearchConfig{})
	ctx := context.Background()
	svc.SetDataset(productDataset(), true)
	svc.Search(ctx, search.Query{Text: "برگر"})
	require.Equal(t, 1, cache.Len())

	svc.SetDataset([]search.Record{search.NewRecord(search.Record{ID: "z", Name: "برگر"})}, true)
	assert.Equal(t, 0, cache.Len())

	page := svc.Search(ctx, search.Query{Text: "برگر"})
	assert.Equal(t, []string{"z"}, ids(page))
}

func TestSearchService_CategoryAndSort(t *testing.T) {
	svc, _ := newSearch(SearchConfig{})
	svc.SetDataset(productDataset(), true)
	ctx := context.Background()

	cheaper := svc.Search(ctx, search.Query{Category: search.CategoryCheaper, Sort: search.SortSavings})
	assert.Equal(t, []string{"3", "1"}, ids(cheaper))

	byPrice := svc.Search(ctx, search.Query{Sort: search.SortPrice})
	assert.Equal(t, []string{"4", "3", "1", "2"}, ids(byPrice))

	byPercent := svc.Search(ctx, search.Query{Sort: search.SortPercent})
	assert.Equal(t, "3", byPercent.Results[0].ID)
}

func TestSearchService_BusinessLineFilter(t *testing.T) {
	svc, _ := newSearch(SearchConfig{})
	svc.SetDataset([]search.Record{
		search.NewRecord(search.Record{ID: "a", Name: "Roma", BusinessLine: "Restaurant"}),
		search.NewRecord(search.Record{ID: "b", Name: "Lamiz", BusinessLine: "Cafe"}),
	}, false)

	page := svc.Search(context.Background(), search.Query{Category: "cafe"})
	assert.Equal(t, []string{"b"}, ids(page))
}

func TestSearchService_AlphaSortUsesPersianCollation(t *testing.T) {
	svc, _ := newSearch(SearchConfig{})
	svc.SetDataset([]search.Record{
		search.NewRecord(search.Record{ID: "3", Name: "پیتزا"}),
		search.NewRecord(search.Record{ID: "1", Name: "آش"}),
		search.NewRecord(search.Record{ID: "2", Name: "برگر"}),
	}, false)

	page := svc.Search(context.Background(), search.Query{Sort: search.SortAlpha})
	assert.Equal(t, []string{"1", "2", "3"}, ids(page))
}

func TestSearchService_VisibleWindowGrowsWithoutRecompute(t *testing.T) {
	svc, cache := newSearch(SearchConfig{PageSize: 2, MaxResults: 5})
	records := make([]search.Record, 0, 8)
	for i := 0; i < 8; i++ {
		records = append(records, search.NewRecord(search.Record{ID: fmt.Sprint(i), Name: fmt.Sprintf("burger %d", i)}))
	}
	svc.SetDataset(records, false)
	ctx := context.Background()

	page := svc.Search(ctx, search.Query{Text: "burger"})
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 2, page.Visible)
	assert.True(t, page.HasMore)

	misses := cache.Stats().Misses
	cursor := page.Cursor
	page, err := svc.More(ctx, cursor)
	require.NoError(t, err)
	assert.Equal(t, 4, page.Visible)
	page, err = svc.More(ctx, cursor)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Visible)
	assert.False(t, page.HasMore)
	assert.Equal(t, misses, cache.Stats().Misses)
	assert.Equal(t, []string{"0", "1", "2", "3", "4"}, ids(page))
}

func burgerAndPizza() []search.Record {
	records := make([]search.Record, 0, 10)
	for i := 0; i < 5; i++ {
		records = append(records,
			search.NewRecord(search.Record{ID: fmt.Sprintf("b%d", i), Name: fmt.Sprintf("burger %d", i)}),
			search.NewRecord(search.Record{ID: fmt.Sprintf("p%d", i), Name: fmt.Sprintf("pizza %d", i)}),
		)
	}
	return records
}

func TestSearchService_InterleavedCallersKeepTheirOwnWindow(t *testing.T) {
	svc, _ := newSearch(SearchConfig{PageSize: 2})
	svc.SetDataset(burgerAndPizza(), false)
	ctx := context.Background()

	burgers := svc.Search(ctx, search.Query{Text: "burger"})
	pizzas := svc.Search(ctx, search.Query{Text: "pizza"})
	require.NotEqual(t, burgers.Cursor, pizzas.Cursor)

	more, err := svc.More(ctx, burgers.Cursor)
	require.NoError(t, err)
	assert.Equal(t, "burger", more.Query.Text)
	assert.Equal(t, []string{"b0", "b1", "b2", "b3"}, ids(more))

	more, err = svc.More(ctx, pizzas.Cursor)
	require.NoError(t, err)
	assert.Equal(t, []string{"p0", "p1", "p2", "p3"}, ids(more))

	// a new search by one caller leaves the other window where it was
	svc.Search(ctx, search.Query{Text: "pizza"})
	more, err = svc.More(ctx, burgers.Cursor)
	require.NoError(t, err)
	assert.Equal(t, 5, more.Visible)
	assert.False(t, more.HasMore)
}

func TestSearchService_MoreAfterDatasetReplacement(t *testing.T) {
	svc, _ := newSearch(SearchConfig{PageSize: 2})
	svc.SetDataset(burgerAndPizza(), false)
	ctx := context.Background()

	page := svc.Search(ctx, search.Query{Text: "burger"})
	svc.SetDataset(productDataset(), true)

	_, err := svc.More(ctx, page.Cursor)
	var notFound pkgError.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	_, err = svc.More(ctx, "unknown")
	assert.Error(t, err)
}
