package rest

import (
	domainComparison "github.com/AzielCF/az-compare/domains/comparison"
	domainVendor "github.com/AzielCF/az-compare/domains/vendor"
	pkgError "github.com/AzielCF/az-compare/pkg/error"
	"github.com/AzielCF/az-compare/pkg/utils"
	"github.com/AzielCF/az-compare/validations"
	"github.com/gofiber/fiber/v2"
)

type Compare struct {
	Service domainComparison.IComparisonUsecase
}

func InitRestCompare(app fiber.Router, service domainComparison.IComparisonUsecase) Compare {
	rest := Compare{Service: service}
	app.Get("/compare/:platform/:code", rest.Compare)

	return rest
}

func (handler *Compare) Compare(c *fiber.Ctx) error {
	params := validations.VendorParams{Platform: c.Params("platform"), Code: c.Params("code")}
	utils.PanicIfNeeded(validations.ValidateVendorParams(c.UserContext(), params))

	platform, err := domainVendor.ParsePlatform(params.Platform)
	if err != nil {
		return failure(c, pkgError.ValidationError(err.Error()))
	}
	result, err := handler.Service.Compare(c.UserContext(), platform, params.Code)
	if err != nil {
		return failure(c, err)
	}

	return success(c, "Comparison ready", map[string]any{
		"mapping":       result.Mapping,
		"base_platform": result.BasePlatform,
		"records":       result.Sorted(),
		"summary":       result.Summary,
		"unmatched":     result.Unmatched,
	})
}
