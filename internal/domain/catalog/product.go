package catalog

import (
	"time"

	"github.com/google/uuid"

	"github.com/shopmargin/backend/internal/domain/shared"
)

// Product is a catalog product mirrored from the storefront platform.
// Identity is (merchant_id, shopify_product_id); platform-side fields are
// overwritten on every sync pass, last write wins.
type Product struct {
	shared.BaseEntity
	MerchantID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_products_merchant_external,priority:1"`
	ShopifyProductID int64      `gorm:"not null;uniqueIndex:idx_products_merchant_external,priority:2"`
	Title            string     `gorm:"type:varchar(255)"`
	ProductType      string     `gorm:"type:varchar(100)"`
	Vendor           string     `gorm:"type:varchar(100)"`
	Status           string     `gorm:"type:varchar(20)"`
	DeletedAt        *time.Time `gorm:"index"`
}

// TableName returns the table name for GORM
func (Product) TableName() string {
	return "products"
}

// NewProduct creates a product row for a merchant
func NewProduct(merchantID uuid.UUID, shopifyProductID int64, title string) *Product {
	return &Product{
		BaseEntity:       shared.NewBaseEntity(),
		MerchantID:       merchantID,
		ShopifyProductID: shopifyProductID,
		Title:            title,
	}
}

// SoftDelete marks the product as vanished from the external catalog.
// The row is kept so historical orders and margins still join against it.
func (p *Product) SoftDelete(at time.Time) {
	p.DeletedAt = &at
	p.UpdatedAt = at
}

// IsDeleted returns true when the product is soft-deleted
func (p *Product) IsDeleted() bool {
	return p.DeletedAt != nil
}
