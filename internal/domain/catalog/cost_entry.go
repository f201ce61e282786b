package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopmargin/backend/internal/domain/shared"
)

// CostEntrySource identifies where a cost entry came from
type CostEntrySource string

const (
	CostEntrySourceShopify CostEntrySource = "shopify"
	CostEntrySourceManual  CostEntrySource = "manual"
)

// CostEntry is one row of the append-only per-item cost ledger. Entries are
// never updated or deleted; a correction is a new entry with a later
// effective_at. "Current cost" is therefore a query, not a field: the entry
// with the greatest effective_at not after the reference time.
type CostEntry struct {
	shared.BaseEntity
	MerchantID             uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_cost_entries_merchant_item_effective,priority:1"`
	ShopifyInventoryItemID int64           `gorm:"not null;uniqueIndex:idx_cost_entries_merchant_item_effective,priority:2"`
	Cost                   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency               string          `gorm:"type:varchar(3);not null"`
	EffectiveAt            time.Time       `gorm:"not null;uniqueIndex:idx_cost_entries_merchant_item_effective,priority:3"`
	Source                 CostEntrySource `gorm:"type:varchar(20);not null"`
}

// TableName returns the table name for GORM
func (CostEntry) TableName() string {
	return "inventory_cost_history"
}

// NewCostEntry creates a cost ledger entry
func NewCostEntry(merchantID uuid.UUID, itemID int64, cost decimal.Decimal, currency string, effectiveAt time.Time, source CostEntrySource) (*CostEntry, error) {
	if cost.IsNegative() {
		return nil, shared.NewDomainError("INVALID_COST", "Cost cannot be negative")
	}
	if currency == "" {
		return nil, shared.NewDomainError("INVALID_CURRENCY", "Cost entry currency cannot be empty")
	}
	return &CostEntry{
		BaseEntity:             shared.NewBaseEntity(),
		MerchantID:             merchantID,
		ShopifyInventoryItemID: itemID,
		Cost:                   cost,
		Currency:               currency,
		EffectiveAt:            effectiveAt,
		Source:                 source,
	}, nil
}
