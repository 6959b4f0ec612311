package rest

import (
	domainVendor "github.com/AzielCF/az-compare/domains/vendor"
	pkgError "github.com/AzielCF/az-compare/pkg/error"
	"github.com/AzielCF/az-compare/pkg/utils"
	"github.com/AzielCF/az-compare/validations"
	"github.com/gofiber/fiber/v2"
)

type Vendor struct {
	Provider domainVendor.IDataProvider
}

func InitRestVendor(app fiber.Router, provider domainVendor.IDataProvider) Vendor {
	rest := Vendor{Provider: provider}
	app.Get("/vendors", rest.List)
	app.Get("/vendors/:platform/:code", rest.Mapping)
	app.Get("/stats", rest.Stats)

	return rest
}

func (handler *Vendor) List(c *fiber.Ctx) error {
	vendors, err := handler.Provider.FetchVendorList(c.UserContext())
	if err != nil {
		return failure(c, err)
	}

	return success(c, "Vendor list retrieved", map[string]any{
		"vendors": vendors,
		"total":   len(vendors),
	})
}

func (handler *Vendor) Mapping(c *fiber.Ctx) error {
	params := validations.VendorParams{Platform: c.Params("platform"), Code: c.Params("code")}
	utils.PanicIfNeeded(validations.ValidateVendorParams(c.UserContext(), params))

	platform, err := domainVendor.ParsePlatform(params.Platform)
	if err != nil {
		return failure(c, pkgError.ValidationError(err.Error()))
	}
	mapping, err := handler.Provider.FetchVendorMapping(c.UserContext(), platform, params.Code)
	if err != nil {
		// A known vendor without a counterpart is still worth showing.
		if mapping.ID != "" && pkgError.IsMappingAbsent(err) {
			return c.JSON(utils.ResponseData{
				Status:   200,
				Code:     "SUCCESS",
				Message:  "Vendor mapping retrieved",
				Results:  mapping,
				Warnings: []string{pkgError.StatusMessage(err)},
			})
		}
		return failure(c, err)
	}

	return success(c, "Vendor mapping retrieved", mapping)
}

// Stats never fails the request; an unavailable provider becomes a warning.
func (handler *Vendor) Stats(c *fiber.Ctx) error {
	stats, err := handler.Provider.FetchStats(c.UserContext())
	if err != nil {
		return c.JSON(utils.ResponseData{
			Status:   200,
			Code:     "SUCCESS",
			Message:  "Stats unavailable",
			Warnings: []string{"stats unavailable: " + pkgError.StatusMessage(err)},
		})
	}

	return success(c, "Stats retrieved", stats)
}
