package order

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopmargin/backend/internal/domain/catalog"
	"github.com/shopmargin/backend/internal/domain/shared"
)

// Order mirrors a storefront order. Identity is (merchant_id,
// shopify_order_id); financial fields are overwritten on every sync pass so
// a later cancellation or refund retracts what an earlier pass recorded.
type Order struct {
	shared.BaseEntity
	MerchantID      uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_orders_merchant_external,priority:1"`
	ShopifyOrderID  int64            `gorm:"not null;uniqueIndex:idx_orders_merchant_external,priority:2"`
	Name            string           `gorm:"type:varchar(50)"`
	ProcessedAt     *time.Time       `gorm:"index"`
	Currency        string           `gorm:"type:varchar(3)"`
	SubtotalPrice   *decimal.Decimal `gorm:"type:decimal(18,4)"`
	TotalPrice      *decimal.Decimal `gorm:"type:decimal(18,4)"`
	TotalDiscounts  *decimal.Decimal `gorm:"type:decimal(18,4)"`
	TotalShipping   *decimal.Decimal `gorm:"type:decimal(18,4)"`
	TotalTax        *decimal.Decimal `gorm:"type:decimal(18,4)"`
	FinancialStatus string           `gorm:"type:varchar(30)"`
	CancelledAt     *time.Time
	// SourceUpdatedAt is the platform's updated_at, the order sync watermark input
	SourceUpdatedAt time.Time `gorm:"not null;index"`

	Lines []Line `gorm:"foreignKey:OrderID;references:ID"`
}

// TableName returns the table name for GORM
func (Order) TableName() string {
	return "orders"
}

// IsCancelled reports whether the order has been cancelled on the platform.
// Cancelled orders stay in the store but are excluded from margin aggregation.
func (o *Order) IsCancelled() bool {
	return o.CancelledAt != nil
}

// Line is one order line, carrying the variant reference used to resolve
// the line's cost basis.
type Line struct {
	shared.BaseEntity
	OrderID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	MerchantID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_order_lines_merchant_external,priority:1"`
	ShopifyLineItemID int64           `gorm:"not null;uniqueIndex:idx_order_lines_merchant_external,priority:2"`
	ShopifyProductID  int64           `gorm:"index"`
	ShopifyVariantID  int64           `gorm:"index"`
	Title             string          `gorm:"type:varchar(255)"`
	SKU               string          `gorm:"type:varchar(100)"`
	Quantity          int             `gorm:"not null;default:0"`
	Price             decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (Line) TableName() string {
	return "order_lines"
}

// Repository defines order persistence
type Repository interface {
	// UpsertPage inserts or overwrites a page of orders with their lines,
	// keyed by (merchant_id, shopify_order_id). Cancelled orders are
	// upserted too, so cancellation observed later retracts earlier revenue.
	UpsertPage(ctx context.Context, merchantID uuid.UUID, orders []*Order) (catalog.UpsertResult, error)

	// FindForMargin returns non-deleted orders with processed_at inside the
	// window, lines preloaded, cancelled orders included (the calculator
	// excludes them and reports the exclusion).
	FindForMargin(ctx context.Context, merchantID uuid.UUID, from, to time.Time) ([]Order, error)

	FindByShopifyID(ctx context.Context, merchantID uuid.UUID, shopifyOrderID int64) (*Order, error)
}
