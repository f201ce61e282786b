package shopify

import "time"

// Wire types for the platform Admin REST API. Monetary amounts travel as
// decimal strings and are parsed at the reconciler boundary, where a bad
// value becomes a recorded exception instead of a failed page.

// Product is a product as returned by GET /products.json
type Product struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Vendor      string    `json:"vendor"`
	ProductType string    `json:"product_type"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Variants    []Variant `json:"variants"`
}

// Variant is a product variant nested in a product payload
type Variant struct {
	ID              int64  `json:"id"`
	ProductID       int64  `json:"product_id"`
	Title           string `json:"title"`
	Price           string `json:"price"`
	SKU             string `json:"sku"`
	Barcode         string `json:"barcode"`
	InventoryItemID int64  `json:"inventory_item_id"`
}

// InventoryItem is the cost-bearing unit from GET /inventory_items.json.
// Cost is null when the merchant never recorded one.
type InventoryItem struct {
	ID        int64     `json:"id"`
	SKU       string    `json:"sku"`
	Cost      *string   `json:"cost"`
	Tracked   bool      `json:"tracked"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Order is an order as returned by GET /orders.json
type Order struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ProcessedAt     *time.Time `json:"processed_at"`
	Currency        string     `json:"currency"`
	SubtotalPrice   string     `json:"subtotal_price"`
	TotalPrice      string     `json:"total_price"`
	TotalDiscounts  string     `json:"total_discounts"`
	TotalShipping   PriceSet   `json:"total_shipping_price_set"`
	TotalTax        string     `json:"total_tax"`
	FinancialStatus string     `json:"financial_status"`
	CancelledAt     *time.Time `json:"cancelled_at"`
	LineItems       []LineItem `json:"line_items"`
}

// PriceSet wraps an amount in the shop's currency
type PriceSet struct {
	ShopMoney Money `json:"shop_money"`
}

// Money is an amount with its currency code
type Money struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currency_code"`
}

// LineItem is one order line. ProductID and VariantID are null for
// custom or deleted items.
type LineItem struct {
	ID        int64  `json:"id"`
	ProductID *int64 `json:"product_id"`
	VariantID *int64 `json:"variant_id"`
	Title     string `json:"title"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

// Response envelopes. The API wraps every list in a single-key object.
type productsEnvelope struct {
	Products []Product `json:"products"`
}

type ordersEnvelope struct {
	Orders []Order `json:"orders"`
}

type inventoryItemsEnvelope struct {
	InventoryItems []InventoryItem `json:"inventory_items"`
}

type errorEnvelope struct {
	Errors interface{} `json:"errors"`
}
