package validations

import (
	"context"
	"regexp"

	domainSearch "github.com/AzielCF/az-compare/domains/search"
	domainVendor "github.com/AzielCF/az-compare/domains/vendor"
	pkgError "github.com/AzielCF/az-compare/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

var vendorCodePattern = regexp.MustCompile(`^[0-9a-zA-Z]+$`)

// platformRule accepts whatever domainVendor.ParsePlatform accepts.
var platformRule = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	_, err := domainVendor.ParsePlatform(s)
	return err
})

func sortOrders() []interface{} {
	out := make([]interface{}, 0, len(domainSearch.SortOrders))
	for _, s := range domainSearch.SortOrders {
		out = append(out, s)
	}
	return out
}

func ValidateSearch(ctx context.Context, request domainSearch.Query) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Text, validation.RuneLength(0, 200)),
		validation.Field(&request.Category, validation.RuneLength(0, 100)),
		validation.Field(&request.Sort, validation.In(sortOrders()...)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateDataset(ctx context.Context, request domainSearch.DatasetRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Source, validation.Required, validation.In(domainSearch.SourceVendors, domainSearch.SourceComparison)),
		validation.Field(&request.Platform, platformRule),
		validation.Field(&request.Code,
			validation.When(request.Source == domainSearch.SourceComparison, validation.Required),
			validation.Match(vendorCodePattern),
		),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateMore(ctx context.Context, request domainSearch.MoreRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Cursor, validation.Required, is.UUID),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

// VendorParams are the path parameters shared by vendor scoped routes.
type VendorParams struct {
	Platform string
	Code     string
}

func ValidateVendorParams(ctx context.Context, request VendorParams) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Platform, validation.Required, platformRule),
		validation.Field(&request.Code, validation.Required, validation.Length(1, 32), validation.Match(vendorCodePattern)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
