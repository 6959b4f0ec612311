package usecase

import (
	"context"
	"fmt"

	"github.com/AzielCF/az-compare/domains/comparison"
	"github.com/AzielCF/az-compare/domains/vendor"
	"github.com/AzielCF/az-compare/pkg/ttlcache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type comparisonService struct {
	provider vendor.IDataProvider
	results  *ttlcache.Cache[string, comparison.Result]
}

// NewComparisonService compares a vendor's menu against its counterpart
// platform. Finished results are kept in results.
func NewComparisonService(provider vendor.IDataProvider, results *ttlcache.Cache[string, comparison.Result]) comparison.IComparisonUsecase {
	return &comparisonService{provider: provider, results: results}
}

func (s *comparisonService) Compare(ctx context.Context, platform vendor.Platform, code string) (comparison.Result, error) {
	key := fmt.Sprintf("%s:%s", platform, code)
	if hit, ok := s.results.Get(key); ok {
		return hit, nil
	}

	mapping, err := s.provider.FetchVendorMapping(ctx, platform, code)
	if err != nil {
		return comparison.Result{Mapping: mapping, BasePlatform: platform}, err
	}

	counterpart := platform.Counterpart()
	var base, other []vendor.Product

	// Both sides must load; a half-populated comparison is never returned.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		base, err = s.provider.FetchPlatformProducts(gctx, platform, mapping.Code(platform))
		return err
	})
	g.Go(func() error {
		var err error
		other, err = s.provider.FetchPlatformProducts(gctx, counterpart, mapping.Code(counterpart))
		return err
	})
	if err := g.Wait(); err != nil {
		logrus.Warnf("[COMPARE] %s/%s: %v", platform, code, err)
		return comparison.Result{Mapping: mapping, BasePlatform: platform}, err
	}

	baseIdx := vendor.Index(base)
	otherIdx := vendor.Index(other)

	idMapping := mapping.ProductMapFrom(platform)
	if len(idMapping) == 0 {
		idMapping = comparison.MatchByName(baseIdx, otherIdx)
	}

	records := comparison.Compare(baseIdx, otherIdx, idMapping)
	result := comparison.Result{
		Mapping:      mapping,
		BasePlatform: platform,
		Records:      records,
		Summary:      comparison.Summarize(records),
		Unmatched:    len(baseIdx) - len(records),
	}
	s.results.Set(key, result)

	logrus.Debugf("[COMPARE] %s/%s: %d records, %d unmatched", platform, code, len(records), result.Unmatched)
	return result, nil
}
