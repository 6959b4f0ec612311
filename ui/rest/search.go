package rest

import (
	domainComparison "github.com/AzielCF/az-compare/domains/comparison"
	domainSearch "github.com/AzielCF/az-compare/domains/search"
	domainVendor "github.com/AzielCF/az-compare/domains/vendor"
	pkgError "github.com/AzielCF/az-compare/pkg/error"
	"github.com/AzielCF/az-compare/pkg/utils"
	"github.com/AzielCF/az-compare/validations"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type Search struct {
	Service  domainSearch.ISearchUsecase
	Provider domainVendor.IDataProvider
	Comparer domainComparison.IComparisonUsecase
}

func InitRestSearch(app fiber.Router, service domainSearch.ISearchUsecase, provider domainVendor.IDataProvider, comparer domainComparison.IComparisonUsecase) Search {
	rest := Search{Service: service, Provider: provider, Comparer: comparer}
	app.Post("/search", rest.Search)
	app.Post("/search/more", rest.More)
	app.Post("/search/dataset", rest.Dataset)

	return rest
}

func (handler *Search) Search(c *fiber.Ctx) error {
	var request domainSearch.Query
	if err := c.BodyParser(&request); err != nil {
		return badRequest(c, err)
	}
	utils.PanicIfNeeded(validations.ValidateSearch(c.UserContext(), request))

	page := handler.Service.Search(c.UserContext(), request)
	return success(c, "Search results", page)
}

func (handler *Search) More(c *fiber.Ctx) error {
	var request domainSearch.MoreRequest
	if err := c.BodyParser(&request); err != nil {
		return badRequest(c, err)
	}
	utils.PanicIfNeeded(validations.ValidateMore(c.UserContext(), request))

	page, err := handler.Service.More(c.UserContext(), request.Cursor)
	utils.PanicIfNeeded(err)
	return success(c, "Search results", page)
}

// Dataset rebuilds the searchable records from the vendor list or from one
// vendor comparison. Replacing the dataset drops every cached ranking.
func (handler *Search) Dataset(c *fiber.Ctx) error {
	var request domainSearch.DatasetRequest
	if err := c.BodyParser(&request); err != nil {
		return badRequest(c, err)
	}
	utils.PanicIfNeeded(validations.ValidateDataset(c.UserContext(), request))

	platform := domainVendor.PlatformSF
	if request.Platform != "" {
		parsed, err := domainVendor.ParsePlatform(request.Platform)
		if err != nil {
			return failure(c, pkgError.ValidationError(err.Error()))
		}
		platform = parsed
	}

	var (
		records        []domainSearch.Record
		hasProductData bool
	)
	switch request.Source {
	case domainSearch.SourceComparison:
		result, err := handler.Comparer.Compare(c.UserContext(), platform, request.Code)
		if err != nil {
			return failure(c, err)
		}
		records = domainSearch.FromComparison(result)
		hasProductData = true
	default:
		vendors, err := handler.Provider.FetchVendorList(c.UserContext())
		if err != nil {
			return failure(c, err)
		}
		records = domainSearch.FromMappings(vendors, platform)
	}

	handler.Service.SetDataset(records, hasProductData)
	logrus.Debugf("[REST] search dataset rebuilt from %s: %d records", request.Source, len(records))

	return success(c, "Search dataset replaced", map[string]any{
		"source":           request.Source,
		"records":          len(records),
		"has_product_data": hasProductData,
	})
}
