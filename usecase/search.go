package usecase

import (
	"context"
	"sort"
	"sync"

	"github.com/AzielCF/az-compare/domains/search"
	pkgError "github.com/AzielCF/az-compare/pkg/error"
	"github.com/AzielCF/az-compare/pkg/fuzzy"
	"github.com/AzielCF/az-compare/pkg/textnorm"
	"github.com/AzielCF/az-compare/pkg/ttlcache"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

type SearchConfig struct {
	MinScore   float64
	MaxResults int
	PageSize   int
	Weights    fuzzy.Weights
}

func (c SearchConfig) withDefaults() SearchConfig {
	if c.MinScore <= 0 {
		c.MinScore = 10
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 200
	}
	if c.PageSize <= 0 {
		c.PageSize = 20
	}
	if c.Weights == (fuzzy.Weights{}) {
		c.Weights = fuzzy.DefaultWeights()
	}
	return c
}

type searchService struct {
	cfg     SearchConfig
	results *ttlcache.Cache[search.Signature, []search.Result]
	windows *ttlcache.Cache[string, search.Window]

	mu             sync.Mutex
	records        []search.Record
	hasProductData bool
	collator       *collate.Collator
}

// NewSearchService ranks the current dataset against free-text queries.
// Ranked result sets are memoized in results by query signature and shared by
// every caller; windows keeps each caller's visible window by cursor.
func NewSearchService(cfg SearchConfig, results *ttlcache.Cache[search.Signature, []search.Result], windows *ttlcache.Cache[string, search.Window]) search.ISearchUsecase {
	return &searchService{
		cfg:      cfg.withDefaults(),
		results:  results,
		windows:  windows,
		collator: collate.New(language.Persian),
	}
}

// SetDataset replaces the searchable records. Cached result sets belong to
// the previous dataset and are dropped.
func (s *searchService) SetDataset(records []search.Record, hasProductData bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = records
	s.hasProductData = hasProductData
	s.results.Clear()
	s.windows.Clear()

	logrus.Debugf("[SEARCH] Dataset replaced: %d records, product data: %t", len(records), hasProductData)
}

func (s *searchService) Search(ctx context.Context, q search.Query) search.Page {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig := q.Signature(s.hasProductData)
	results, ok := s.results.Get(sig)
	if !ok {
		results = s.compute(sig)
		s.results.Set(sig, results)
	}

	cursor := uuid.NewString()
	w := search.Window{
		Query:   q,
		Results: results,
		Visible: min(s.cfg.PageSize, len(results)),
	}
	s.windows.Set(cursor, w)
	return windowPage(cursor, w)
}

// More grows the visible window of one earlier search without recomputing it.
// Windows are dropped with the dataset and when they expire.
func (s *searchService) More(ctx context.Context, cursor string) (search.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows.Get(cursor)
	if !ok {
		return search.Page{}, pkgError.NotFoundError("search window expired, search again")
	}
	w.Visible = min(w.Visible+s.cfg.PageSize, len(w.Results))
	s.windows.Set(cursor, w)
	return windowPage(cursor, w), nil
}

func windowPage(cursor string, w search.Window) search.Page {
	return search.Page{
		Cursor:  cursor,
		Query:   w.Query,
		Results: w.Results[:w.Visible],
		Total:   len(w.Results),
		Visible: w.Visible,
		HasMore: w.Visible < len(w.Results),
	}
}

func (s *searchService) compute(sig search.Signature) []search.Result {
	var results []search.Result
	if sig.Text == "" {
		// An empty query browses the whole dataset unranked.
		results = make([]search.Result, 0, len(s.records))
		for _, r := range s.records {
			results = append(results, search.Result{Record: r})
		}
	} else {
		ranked := fuzzy.Rank(s.cfg.Weights, sig.Text, s.records, search.Record.Text, s.cfg.MinScore)
		results = make([]search.Result, 0, len(ranked))
		for _, r := range ranked {
			results = append(results, search.Result{Record: r.Item, Score: r.Score})
		}
	}

	results = filterCategory(results, sig.Category)
	s.sortResults(results, sig.Sort)

	if len(results) > s.cfg.MaxResults {
		results = results[:s.cfg.MaxResults]
	}
	return results
}

// filterCategory keeps results of an outcome category, or of a business line
// when category is not an outcome.
func filterCategory(results []search.Result, category string) []search.Result {
	if category == "" {
		return results
	}

	out := results[:0]
	for _, r := range results {
		switch category {
		case search.CategoryCheaper, search.CategoryPricier, search.CategorySame:
			if r.Outcome != category {
				continue
			}
		default:
			if textnorm.Normalize(r.BusinessLine) != category {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

func (s *searchService) sortResults(results []search.Result, order search.SortOrder) {
	var less func(a, b search.Result) bool
	switch order {
	case search.SortPrice:
		less = func(a, b search.Result) bool { return a.Price < b.Price }
	case search.SortSavings:
		less = func(a, b search.Result) bool { return a.PriceDiff > b.PriceDiff }
	case search.SortPercent:
		less = func(a, b search.Result) bool { return a.PercentDiff > b.PercentDiff }
	case search.SortAlpha:
		less = func(a, b search.Result) bool { return s.collator.CompareString(a.Name, b.Name) < 0 }
	default:
		return
	}
	sort.SliceStable(results, func(i, j int) bool {
		return less(results[i], results[j])
	})
}
