package comparison

import (
	"context"
	"math"
	"sort"

	"github.com/AzielCF/az-compare/domains/vendor"
	"github.com/AzielCF/az-compare/pkg/textnorm"
)

// Record compares one base product with its counterpart. A positive
// PriceDiff means the counterpart is cheaper.
type Record struct {
	BaseProduct        vendor.Product `json:"base_product"`
	CounterpartProduct vendor.Product `json:"counterpart_product"`
	PriceDiff          int64          `json:"price_diff"`
	PercentDiff        int            `json:"percent_diff"`
	IsCheaper          bool           `json:"is_cheaper"`
	IsMoreExpensive    bool           `json:"is_more_expensive"`
	IsSamePrice        bool           `json:"is_same_price"`
}

type Summary struct {
	Total          int     `json:"total"`
	Cheaper        int     `json:"cheaper"`
	MoreExpensive  int     `json:"more_expensive"`
	SamePrice      int     `json:"same_price"`
	AvgPercentDiff float64 `json:"avg_percent_diff"`
	TotalSavings   int64   `json:"total_savings"`
}

// Result is the outcome of one comparison request for a vendor page.
type Result struct {
	Mapping      vendor.Mapping    `json:"mapping"`
	BasePlatform vendor.Platform   `json:"base_platform"`
	Records      map[string]Record `json:"records"`
	Summary      Summary           `json:"summary"`
	Unmatched    int               `json:"unmatched"`
}

// Sorted returns the records ordered by base product id.
func (r Result) Sorted() []Record {
	ids := make([]string, 0, len(r.Records))
	for id := range r.Records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.Records[id])
	}
	return out
}

type IComparisonUsecase interface {
	Compare(ctx context.Context, platform vendor.Platform, code string) (Result, error)
}

// Compare builds a record for every base id mapped to a present counterpart.
// Base products with a non-positive price produce no record. Inputs are not modified.
func Compare(base, counterpart map[string]vendor.Product, idMapping map[string]string) map[string]Record {
	out := make(map[string]Record, len(idMapping))
	for baseID, counterpartID := range idMapping {
		b, ok := base[baseID]
		if !ok || b.Price <= 0 {
			continue
		}
		c, ok := counterpart[counterpartID]
		if !ok {
			continue
		}

		diff := b.Price - c.Price
		out[baseID] = Record{
			BaseProduct:        b,
			CounterpartProduct: c,
			PriceDiff:          diff,
			PercentDiff:        int(math.Round(math.Abs(float64(diff)) / float64(b.Price) * 100)),
			IsCheaper:          diff > 0,
			IsMoreExpensive:    diff < 0,
			IsSamePrice:        diff == 0,
		}
	}
	return out
}

// MatchByName pairs products whose normalized names are equal. Names that
// appear more than once on either side are ambiguous and left unmatched.
func MatchByName(base, counterpart map[string]vendor.Product) map[string]string {
	byName := make(map[string]string, len(counterpart))
	dup := make(map[string]bool)
	for id, p := range counterpart {
		key := textnorm.Normalize(p.Name)
		if key == "" {
			continue
		}
		if _, seen := byName[key]; seen {
			dup[key] = true
			continue
		}
		byName[key] = id
	}

	seenBase := make(map[string]int, len(base))
	for _, p := range base {
		seenBase[textnorm.Normalize(p.Name)]++
	}

	out := make(map[string]string)
	for id, p := range base {
		key := textnorm.Normalize(p.Name)
		if key == "" || dup[key] || seenBase[key] > 1 {
			continue
		}
		if cid, ok := byName[key]; ok {
			out[id] = cid
		}
	}
	return out
}

func Summarize(records map[string]Record) Summary {
	s := Summary{Total: len(records)}
	if len(records) == 0 {
		return s
	}
	var pct int
	for _, r := range records {
		switch {
		case r.IsCheaper:
			s.Cheaper++
			s.TotalSavings += r.PriceDiff
		case r.IsMoreExpensive:
			s.MoreExpensive++
		default:
			s.SamePrice++
		}
		pct += r.PercentDiff
	}
	s.AvgPercentDiff = math.Round(float64(pct)/float64(len(records))*10) / 10
	return s
}
