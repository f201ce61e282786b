package catalog

import (
	"time"

	"github.com/google/uuid"

	"github.com/shopmargin/backend/internal/domain/shared"
)

// InventoryItem is the storefront platform's cost-bearing unit. Variants
// point at it by external ID; cost history entries reference it the same way.
type InventoryItem struct {
	shared.BaseEntity
	MerchantID             uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_inventory_items_merchant_external,priority:1"`
	ShopifyInventoryItemID int64      `gorm:"not null;uniqueIndex:idx_inventory_items_merchant_external,priority:2"`
	ShopifyVariantID       int64      `gorm:"index"`
	Tracked                bool       `gorm:"not null;default:false"`
	DeletedAt              *time.Time `gorm:"index"`
}

// TableName returns the table name for GORM
func (InventoryItem) TableName() string {
	return "inventory_items"
}

// NewInventoryItem creates an inventory item row for a merchant
func NewInventoryItem(merchantID uuid.UUID, shopifyInventoryItemID, shopifyVariantID int64) *InventoryItem {
	return &InventoryItem{
		BaseEntity:             shared.NewBaseEntity(),
		MerchantID:             merchantID,
		ShopifyInventoryItemID: shopifyInventoryItemID,
		ShopifyVariantID:       shopifyVariantID,
	}
}

// SoftDelete marks the item as vanished from the external catalog
func (i *InventoryItem) SoftDelete(at time.Time) {
	i.DeletedAt = &at
	i.UpdatedAt = at
}
