package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopmargin/backend/internal/domain/shared"
)

// Variant is a sellable variation of a product. ShopifyProductID is a
// lookup relation, not an ownership pointer: products and variants may
// arrive in either order during a paginated sync, so the reference is
// resolved at read time rather than enforced at write time.
type Variant struct {
	shared.BaseEntity
	MerchantID             uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_variants_merchant_external,priority:1"`
	ShopifyVariantID       int64           `gorm:"not null;uniqueIndex:idx_variants_merchant_external,priority:2"`
	ShopifyProductID       int64           `gorm:"not null;index"`
	ShopifyInventoryItemID int64           `gorm:"index"`
	SKU                    string          `gorm:"type:varchar(100);index"`
	Title                  string          `gorm:"type:varchar(255)"`
	Barcode                string          `gorm:"type:varchar(100)"`
	Price                  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	DeletedAt              *time.Time      `gorm:"index"`
}

// TableName returns the table name for GORM
func (Variant) TableName() string {
	return "variants"
}

// NewVariant creates a variant row for a merchant
func NewVariant(merchantID uuid.UUID, shopifyVariantID, shopifyProductID int64) *Variant {
	return &Variant{
		BaseEntity:       shared.NewBaseEntity(),
		MerchantID:       merchantID,
		ShopifyVariantID: shopifyVariantID,
		ShopifyProductID: shopifyProductID,
		Price:            decimal.Zero,
	}
}

// SoftDelete marks the variant as vanished from the external catalog
func (v *Variant) SoftDelete(at time.Time) {
	v.DeletedAt = &at
	v.UpdatedAt = at
}
