package margin

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RateProvider resolves a conversion rate from one currency to another.
// It is an external collaborator; ok=false means no rate is available and
// the order-level calculation fails, not the whole run.
type RateProvider func(from, to string) (decimal.Decimal, bool)

// OrderMargin is the per-order output of the calculator. Cost, Margin and
// MarginRatio are nil when the underlying value is unknown or undefined,
// never zero-by-accident.
type OrderMargin struct {
	OrderID        uuid.UUID        `json:"order_id"`
	ShopifyOrderID int64            `json:"shopify_order_id"`
	Name           string           `json:"name"`
	Currency       string           `json:"currency"`
	Revenue        decimal.Decimal  `json:"revenue"`
	Cost           *decimal.Decimal `json:"cost,omitempty"`
	Margin         *decimal.Decimal `json:"margin,omitempty"`
	// MarginRatio is margin / revenue; nil when revenue is zero or cost unknown
	MarginRatio     *decimal.Decimal `json:"margin_ratio,omitempty"`
	CostKnown       bool             `json:"cost_known"`
	FlaggedCurrency bool             `json:"flagged_currency"`
	Converted       bool             `json:"converted"`
	Error           string           `json:"error,omitempty"`
}

// Report aggregates margins over a merchant's window. Totals only sum
// orders with fully known cost; the unknown and flagged counts keep the
// shortfall visible instead of silently understating.
type Report struct {
	MerchantID   uuid.UUID       `json:"merchant_id"`
	WindowFrom   time.Time       `json:"window_from"`
	WindowTo     time.Time       `json:"window_to"`
	Orders       []OrderMargin   `json:"orders"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	TotalMargin  decimal.Decimal `json:"total_margin"`
	// OrdersCounted is the number of orders included in the totals,
	// which is exactly the orders with fully known cost
	OrdersCounted    int `json:"orders_counted"`
	UnknownCost      int `json:"unknown_cost"`
	FlaggedCurrency  int `json:"flagged_currency"`
	CancelledSkipped int `json:"cancelled_skipped"`
}
