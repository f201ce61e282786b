package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shopmargin/backend/internal/domain/shared"
)

// ErrDuplicateCostEntry rejects a ledger append whose
// (merchant_id, item, effective_at) key already exists.
var ErrDuplicateCostEntry = shared.NewDomainError("DUPLICATE_COST_ENTRY", "A cost entry with this effective_at already exists for the item")

// UpsertResult reports how a page of external rows landed in the store.
// Updated counts rows whose stored fields actually changed; an unchanged
// row contributes to neither count, so repeated identical passes report
// zero activity.
type UpsertResult struct {
	Created int
	Updated int
}

// Add accumulates another result into this one
func (r *UpsertResult) Add(other UpsertResult) {
	r.Created += other.Created
	r.Updated += other.Updated
}

// Repository defines catalog persistence. Every method is merchant-scoped;
// passing rows belonging to another merchant is a programming error surfaced
// as shared.ErrMerchantMismatch.
type Repository interface {
	// UpsertProducts inserts or overwrites a page of products keyed by
	// (merchant_id, shopify_product_id). Mutable fields are last-write-wins;
	// a previously soft-deleted row observed again is revived.
	UpsertProducts(ctx context.Context, merchantID uuid.UUID, products []*Product) (UpsertResult, error)
	UpsertVariants(ctx context.Context, merchantID uuid.UUID, variants []*Variant) (UpsertResult, error)
	UpsertInventoryItems(ctx context.Context, merchantID uuid.UUID, items []*InventoryItem) (UpsertResult, error)

	// SoftDeleteProductsNotIn marks products absent from seen as deleted.
	// Only called after a complete, error-free full pass.
	SoftDeleteProductsNotIn(ctx context.Context, merchantID uuid.UUID, seen []int64, at time.Time) (int64, error)
	SoftDeleteVariantsNotIn(ctx context.Context, merchantID uuid.UUID, seen []int64, at time.Time) (int64, error)
	SoftDeleteInventoryItemsNotIn(ctx context.Context, merchantID uuid.UUID, seen []int64, at time.Time) (int64, error)

	// FindVariantsByShopifyIDs resolves variant external IDs to rows,
	// for joining order lines to inventory items.
	FindVariantsByShopifyIDs(ctx context.Context, merchantID uuid.UUID, ids []int64) (map[int64]*Variant, error)
}

// CostRepository defines the append-only cost ledger and its single
// non-trivial read: point-in-time resolution.
type CostRepository interface {
	// Append inserts a new ledger entry. A second entry with the same
	// (merchant_id, item, effective_at) key is a data-source anomaly and
	// is rejected with ErrDuplicateCostEntry, never overwritten.
	Append(ctx context.Context, entry *CostEntry) error

	// CostAt returns the entry with the greatest effective_at <= at for the
	// item, or (nil, nil) when no cost is known. Unknown cost is a value,
	// not an error: margin calculation reports it as an explicit gap.
	CostAt(ctx context.Context, merchantID uuid.UUID, itemID int64, at time.Time) (*CostEntry, error)
}
