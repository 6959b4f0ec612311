package search

import (
	"context"
	"strings"

	"github.com/AzielCF/az-compare/domains/comparison"
	"github.com/AzielCF/az-compare/domains/vendor"
	"github.com/AzielCF/az-compare/pkg/textnorm"
)

type SortOrder string

const (
	SortRelevance SortOrder = "relevance"
	SortPrice     SortOrder = "price"
	SortSavings   SortOrder = "savings"
	SortPercent   SortOrder = "percent"
	SortAlpha     SortOrder = "alpha"
)

var SortOrders = []SortOrder{SortRelevance, SortPrice, SortSavings, SortPercent, SortAlpha}

// Outcome categories only apply to datasets built from product comparisons.
const (
	CategoryAll     = "all"
	CategoryCheaper = "cheaper"
	CategoryPricier = "pricier"
	CategorySame    = "same"
)

type Query struct {
	Text     string    `json:"text"`
	Category string    `json:"category"`
	Sort     SortOrder `json:"sort"`
}

// Signature is the cache key of a ranked result set. Two logically identical
// queries produce equal signatures.
type Signature struct {
	Text           string
	Category       string
	Sort           SortOrder
	HasProductData bool
}

func (q Query) Signature(hasProductData bool) Signature {
	category := textnorm.Normalize(q.Category)
	if category == CategoryAll {
		category = ""
	}
	sort := q.Sort
	if sort == "" {
		sort = SortRelevance
	}
	return Signature{
		Text:           textnorm.Normalize(q.Text),
		Category:       category,
		Sort:           sort,
		HasProductData: hasProductData,
	}
}

// Record is one searchable row: a vendor, or a compared product.
type Record struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Subtitle      string `json:"subtitle,omitempty"`
	BusinessLine  string `json:"business_line,omitempty"`
	Price         int64  `json:"price,omitempty"`
	PriceDiff     int64  `json:"price_diff,omitempty"`
	PercentDiff   int    `json:"percent_diff,omitempty"`
	Outcome       string `json:"outcome,omitempty"`
	HasComparison bool   `json:"has_comparison"`

	text string
}

// Text returns the normalized searchable text.
func (r Record) Text() string {
	return r.text
}

// NewRecord precomputes the normalized text of r.
func NewRecord(r Record) Record {
	r.text = textnorm.Normalize(strings.Join([]string{r.Name, r.Subtitle, r.BusinessLine}, " "))
	return r
}

type Result struct {
	Record
	Score float64 `json:"score"`
}

// Page is the visible window over a cached result set. Cursor names the
// window for later More calls.
type Page struct {
	Cursor  string   `json:"cursor"`
	Query   Query    `json:"query"`
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Visible int      `json:"visible"`
	HasMore bool     `json:"has_more"`
}

// Window is one caller's view over a shared, immutable result set.
type Window struct {
	Query   Query
	Results []Result
	Visible int
}

type MoreRequest struct {
	Cursor string `json:"cursor"`
}

type ISearchUsecase interface {
	SetDataset(records []Record, hasProductData bool)
	Search(ctx context.Context, q Query) Page
	// More grows the window opened by the Search that returned cursor.
	More(ctx context.Context, cursor string) (Page, error)
}

func FromMappings(mappings []vendor.Mapping, base vendor.Platform) []Record {
	out := make([]Record, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, NewRecord(Record{
			ID:           m.Code(base),
			Name:         m.Name(base),
			Subtitle:     m.Name(base.Counterpart()),
			BusinessLine: m.BusinessLine,
		}))
	}
	return out
}

func FromComparison(result comparison.Result) []Record {
	out := make([]Record, 0, len(result.Records))
	for _, rec := range result.Sorted() {
		outcome := CategorySame
		switch {
		case rec.IsCheaper:
			outcome = CategoryCheaper
		case rec.IsMoreExpensive:
			outcome = CategoryPricier
		}
		out = append(out, NewRecord(Record{
			ID:            rec.BaseProduct.ID,
			Name:          rec.BaseProduct.Name,
			Subtitle:      rec.CounterpartProduct.Name,
			BusinessLine:  result.Mapping.BusinessLine,
			Price:         rec.BaseProduct.Price,
			PriceDiff:     rec.PriceDiff,
			PercentDiff:   rec.PercentDiff,
			Outcome:       outcome,
			HasComparison: true,
		}))
	}
	return out
}

// Dataset sources accepted by DatasetRequest.
const (
	SourceVendors    = "vendors"
	SourceComparison = "comparison"
)

// DatasetRequest selects what the search index is rebuilt from. Code is only
// read for the comparison source.
type DatasetRequest struct {
	Source   string `json:"source"`
	Platform string `json:"platform"`
	Code     string `json:"code"`
}
