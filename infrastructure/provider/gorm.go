package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AzielCF/az-compare/domains/vendor"
	pkgError "github.com/AzielCF/az-compare/pkg/error"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type VendorMappingModel struct {
	ID           string    `gorm:"primaryKey;column:id"`
	SfCode       string    `gorm:"column:sf_code;index"`
	SfName       string    `gorm:"column:sf_name"`
	TfCode       string    `gorm:"column:tf_code;index"`
	TfName       string    `gorm:"column:tf_name"`
	BusinessLine string    `gorm:"column:business_line;index"`
	ProductMap   string    `gorm:"column:product_map"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (VendorMappingModel) TableName() string {
	return "vendor_mappings"
}

type ProductModel struct {
	Platform      string    `gorm:"primaryKey;column:platform"`
	VendorCode    string    `gorm:"primaryKey;column:vendor_code"`
	ProductID     string    `gorm:"primaryKey;column:product_id"`
	Name          string    `gorm:"column:name"`
	Price         int64     `gorm:"column:price"`
	OriginalPrice int64     `gorm:"column:original_price"`
	Discount      int       `gorm:"column:discount"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (ProductModel) TableName() string {
	return "platform_products"
}

// SeedData is the on-disk format accepted by the migrate command.
type SeedData struct {
	Vendors  []vendor.Mapping `json:"vendors"`
	Products []SeedProducts   `json:"products"`
}

type SeedProducts struct {
	Platform   vendor.Platform  `json:"platform"`
	VendorCode string           `json:"vendor_code"`
	Items      []vendor.Product `json:"items"`
}

// GormProvider serves vendor data from a local database, for offline use
// or as a snapshot of the upstream API.
type GormProvider struct {
	db *gorm.DB
}

func NewGormProvider(db *gorm.DB) *GormProvider {
	return &GormProvider{db: db}
}

func (r *GormProvider) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&VendorMappingModel{}, &ProductModel{})
}

func (r *GormProvider) FetchVendorMapping(ctx context.Context, platform vendor.Platform, code string) (vendor.Mapping, error) {
	column := "sf_code"
	if platform == vendor.PlatformTF {
		column = "tf_code"
	}

	var m VendorMappingModel
	if err := r.db.WithContext(ctx).Where(column+" = ?", code).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return vendor.Mapping{}, pkgError.MappingAbsent(fmt.Sprintf("no mapping for %s vendor %s", platform, code))
		}
		return vendor.Mapping{}, dbError("vendor mapping", err)
	}

	mapping := m.toDomain()
	if mapping.Code(platform.Counterpart()) == "" {
		return mapping, pkgError.MappingAbsent(fmt.Sprintf("%s vendor %s has no counterpart", platform, code))
	}
	return mapping, nil
}

func (r *GormProvider) FetchVendorList(ctx context.Context) ([]vendor.Mapping, error) {
	var models []VendorMappingModel
	if err := r.db.WithContext(ctx).Order("created_at DESC, id").Find(&models).Error; err != nil {
		return nil, dbError("vendor list", err)
	}
	out := make([]vendor.Mapping, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (r *GormProvider) FetchStats(ctx context.Context) (vendor.Stats, error) {
	db := r.db.WithContext(ctx)

	var vendors, items int64
	if err := db.Model(&VendorMappingModel{}).Count(&vendors).Error; err != nil {
		return vendor.Stats{}, dbError("stats", err)
	}
	if err := db.Model(&ProductModel{}).Count(&items).Error; err != nil {
		return vendor.Stats{}, dbError("stats", err)
	}

	var lines []struct {
		BusinessLine string
		Total        int
	}
	if err := db.Model(&VendorMappingModel{}).
		Select("business_line, COUNT(*) AS total").
		Group("business_line").
		Scan(&lines).Error; err != nil {
		return vendor.Stats{}, dbError("stats", err)
	}

	stats := vendor.Stats{
		TotalVendors:  int(vendors),
		TotalItems:    int(items),
		BusinessLines: make(map[string]int, len(lines)),
		UpdatedAt:     time.Now().UTC(),
	}
	for _, l := range lines {
		stats.BusinessLines[l.BusinessLine] = l.Total
	}
	return stats, nil
}

func (r *GormProvider) FetchPlatformProducts(ctx context.Context, platform vendor.Platform, code string) ([]vendor.Product, error) {
	var models []ProductModel
	err := r.db.WithContext(ctx).
		Where("platform = ? AND vendor_code = ?", string(platform), code).
		Order("product_id").
		Find(&models).Error
	if err != nil {
		return nil, dbError("platform products", err)
	}
	if len(models) == 0 {
		return nil, pkgError.MappingAbsent(fmt.Sprintf("no products for %s vendor %s", platform, code))
	}

	out := make([]vendor.Product, 0, len(models))
	for _, m := range models {
		out = append(out, vendor.Product{
			ID:            m.ProductID,
			Name:          m.Name,
			Price:         m.Price,
			OriginalPrice: m.OriginalPrice,
			Discount:      m.Discount,
		})
	}
	return out, nil
}

// Seed upserts vendors and products in one transaction and returns how many rows it wrote.
func (r *GormProvider) Seed(ctx context.Context, data SeedData) (int, error) {
	written := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, v := range data.Vendors {
			model, err := mappingModel(v)
			if err != nil {
				return err
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).Create(&model).Error; err != nil {
				return fmt.Errorf("upsert vendor %s: %w", v.ID, err)
			}
			written++
		}

		now := time.Now().UTC()
		for _, group := range data.Products {
			for _, p := range group.Items {
				model := ProductModel{
					Platform:      string(group.Platform),
					VendorCode:    group.VendorCode,
					ProductID:     p.ID,
					Name:          p.Name,
					Price:         p.Price,
					OriginalPrice: p.OriginalPrice,
					Discount:      p.Discount,
					UpdatedAt:     now,
				}
				if err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "platform"}, {Name: "vendor_code"}, {Name: "product_id"}},
					UpdateAll: true,
				}).Create(&model).Error; err != nil {
					return fmt.Errorf("upsert product %s/%s/%s: %w", group.Platform, group.VendorCode, p.ID, err)
				}
				written++
			}
		}
		return nil
	})
	return written, err
}

func mappingModel(v vendor.Mapping) (VendorMappingModel, error) {
	var productMap string
	if len(v.ProductMap) > 0 {
		raw, err := json.Marshal(v.ProductMap)
		if err != nil {
			return VendorMappingModel{}, fmt.Errorf("encode product map of %s: %w", v.ID, err)
		}
		productMap = string(raw)
	}
	createdAt := v.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return VendorMappingModel{
		ID:           v.ID,
		SfCode:       v.SfCode,
		SfName:       v.SfName,
		TfCode:       v.TfCode,
		TfName:       v.TfName,
		BusinessLine: v.BusinessLine,
		ProductMap:   productMap,
		CreatedAt:    createdAt,
	}, nil
}

func (m VendorMappingModel) toDomain() vendor.Mapping {
	out := vendor.Mapping{
		ID:           m.ID,
		SfCode:       m.SfCode,
		SfName:       m.SfName,
		TfCode:       m.TfCode,
		TfName:       m.TfName,
		BusinessLine: m.BusinessLine,
		CreatedAt:    m.CreatedAt,
	}
	if m.ProductMap != "" {
		_ = json.Unmarshal([]byte(m.ProductMap), &out.ProductMap)
	}
	return out
}

func dbError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgError.TimeoutFailure(fmt.Sprintf("%s: %v", op, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}
