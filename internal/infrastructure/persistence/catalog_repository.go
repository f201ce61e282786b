package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shopmargin/backend/internal/domain/catalog"
	"github.com/shopmargin/backend/internal/domain/shared"
)

// GormCatalogRepository implements catalog.Repository using GORM
type GormCatalogRepository struct {
	db *gorm.DB
}

// NewGormCatalogRepository creates a new GormCatalogRepository
func NewGormCatalogRepository(db *gorm.DB) *GormCatalogRepository {
	return &GormCatalogRepository{db: db}
}

// UpsertProducts inserts or overwrites a page of products keyed by
// (merchant_id, shopify_product_id)
func (r *GormCatalogRepository) UpsertProducts(ctx context.Context, merchantID uuid.UUID, products []*catalog.Product) (catalog.UpsertResult, error) {
	var result catalog.UpsertResult
	if len(products) == 0 {
		return result, nil
	}

	ids := make([]int64, 0, len(products))
	for _, p := range products {
		if p.MerchantID != merchantID {
			return result, shared.ErrMerchantMismatch
		}
		ids = append(ids, p.ShopifyProductID)
	}

	existing, err := r.findProducts(ctx, merchantID, ids)
	if err != nil {
		return result, err
	}

	// Only rows whose mirrored fields actually differ are written, so a
	// repeat pass over an unchanged catalog reports zero updates
	write := make([]*catalog.Product, 0, len(products))
	for _, p := range products {
		prev, ok := existing[p.ShopifyProductID]
		switch {
		case !ok:
			result.Created++
		case productChanged(prev, p):
			result.Updated++
		default:
			continue
		}
		write = append(write, p)
	}
	if len(write) == 0 {
		return result, nil
	}

	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "merchant_id"}, {Name: "shopify_product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "product_type", "vendor", "status", "deleted_at", "updated_at",
		}),
	}).Create(write).Error
	return result, err
}

// UpsertVariants inserts or overwrites a page of variants keyed by
// (merchant_id, shopify_variant_id)
func (r *GormCatalogRepository) UpsertVariants(ctx context.Context, merchantID uuid.UUID, variants []*catalog.Variant) (catalog.UpsertResult, error) {
	var result catalog.UpsertResult
	if len(variants) == 0 {
		return result, nil
	}

	ids := make([]int64, 0, len(variants))
	for _, v := range variants {
		if v.MerchantID != merchantID {
			return result, shared.ErrMerchantMismatch
		}
		ids = append(ids, v.ShopifyVariantID)
	}

	existing, err := r.FindVariantsByShopifyIDs(ctx, merchantID, ids)
	if err != nil {
		return result, err
	}

	write := make([]*catalog.Variant, 0, len(variants))
	for _, v := range variants {
		prev, ok := existing[v.ShopifyVariantID]
		switch {
		case !ok:
			result.Created++
		case variantChanged(prev, v):
			result.Updated++
		default:
			continue
		}
		write = append(write, v)
	}
	if len(write) == 0 {
		return result, nil
	}

	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "merchant_id"}, {Name: "shopify_variant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"shopify_product_id", "shopify_inventory_item_id", "sku", "title",
			"barcode", "price", "deleted_at", "updated_at",
		}),
	}).Create(write).Error
	return result, err
}

// UpsertInventoryItems inserts or overwrites a page of inventory items keyed
// by (merchant_id, shopify_inventory_item_id)
func (r *GormCatalogRepository) UpsertInventoryItems(ctx context.Context, merchantID uuid.UUID, items []*catalog.InventoryItem) (catalog.UpsertResult, error) {
	var result catalog.UpsertResult
	if len(items) == 0 {
		return result, nil
	}

	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if it.MerchantID != merchantID {
			return result, shared.ErrMerchantMismatch
		}
		ids = append(ids, it.ShopifyInventoryItemID)
	}

	existing, err := r.findInventoryItems(ctx, merchantID, ids)
	if err != nil {
		return result, err
	}

	write := make([]*catalog.InventoryItem, 0, len(items))
	for _, it := range items {
		prev, ok := existing[it.ShopifyInventoryItemID]
		switch {
		case !ok:
			result.Created++
		case inventoryItemChanged(prev, it):
			result.Updated++
		default:
			continue
		}
		write = append(write, it)
	}
	if len(write) == 0 {
		return result, nil
	}

	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "merchant_id"}, {Name: "shopify_inventory_item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"shopify_variant_id", "tracked", "deleted_at", "updated_at",
		}),
	}).Create(write).Error
	return result, err
}

// SoftDeleteProductsNotIn marks products absent from seen as deleted
func (r *GormCatalogRepository) SoftDeleteProductsNotIn(ctx context.Context, merchantID uuid.UUID, seen []int64, at time.Time) (int64, error) {
	return r.softDeleteNotIn(ctx, &catalog.Product{}, "shopify_product_id", merchantID, seen, at)
}

// SoftDeleteVariantsNotIn marks variants absent from seen as deleted
func (r *GormCatalogRepository) SoftDeleteVariantsNotIn(ctx context.Context, merchantID uuid.UUID, seen []int64, at time.Time) (int64, error) {
	return r.softDeleteNotIn(ctx, &catalog.Variant{}, "shopify_variant_id", merchantID, seen, at)
}

// SoftDeleteInventoryItemsNotIn marks inventory items absent from seen as deleted
func (r *GormCatalogRepository) SoftDeleteInventoryItemsNotIn(ctx context.Context, merchantID uuid.UUID, seen []int64, at time.Time) (int64, error) {
	return r.softDeleteNotIn(ctx, &catalog.InventoryItem{}, "shopify_inventory_item_id", merchantID, seen, at)
}

// FindVariantsByShopifyIDs resolves variant external IDs to rows
func (r *GormCatalogRepository) FindVariantsByShopifyIDs(ctx context.Context, merchantID uuid.UUID, ids []int64) (map[int64]*catalog.Variant, error) {
	out := make(map[int64]*catalog.Variant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var variants []catalog.Variant
	if err := r.db.WithContext(ctx).
		Where("merchant_id = ? AND shopify_variant_id IN ?", merchantID, ids).
		Find(&variants).Error; err != nil {
		return nil, err
	}
	for i := range variants {
		out[variants[i].ShopifyVariantID] = &variants[i]
	}
	return out, nil
}

// findProducts loads the merchant's current rows for the given external IDs
func (r *GormCatalogRepository) findProducts(ctx context.Context, merchantID uuid.UUID, ids []int64) (map[int64]*catalog.Product, error) {
	var rows []catalog.Product
	if err := r.db.WithContext(ctx).
		Where("merchant_id = ? AND shopify_product_id IN ?", merchantID, ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[int64]*catalog.Product, len(rows))
	for i := range rows {
		out[rows[i].ShopifyProductID] = &rows[i]
	}
	return out, nil
}

// findInventoryItems loads the merchant's current rows for the given external IDs
func (r *GormCatalogRepository) findInventoryItems(ctx context.Context, merchantID uuid.UUID, ids []int64) (map[int64]*catalog.InventoryItem, error) {
	var rows []catalog.InventoryItem
	if err := r.db.WithContext(ctx).
		Where("merchant_id = ? AND shopify_inventory_item_id IN ?", merchantID, ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[int64]*catalog.InventoryItem, len(rows))
	for i := range rows {
		out[rows[i].ShopifyInventoryItemID] = &rows[i]
	}
	return out, nil
}

// productChanged compares the columns an upsert would overwrite
func productChanged(prev, next *catalog.Product) bool {
	return prev.Title != next.Title ||
		prev.ProductType != next.ProductType ||
		prev.Vendor != next.Vendor ||
		prev.Status != next.Status ||
		!deletionEqual(prev.DeletedAt, next.DeletedAt)
}

// variantChanged compares the columns an upsert would overwrite
func variantChanged(prev, next *catalog.Variant) bool {
	return prev.ShopifyProductID != next.ShopifyProductID ||
		prev.ShopifyInventoryItemID != next.ShopifyInventoryItemID ||
		prev.SKU != next.SKU ||
		prev.Title != next.Title ||
		prev.Barcode != next.Barcode ||
		!prev.Price.Equal(next.Price) ||
		!deletionEqual(prev.DeletedAt, next.DeletedAt)
}

// inventoryItemChanged compares the columns an upsert would overwrite
func inventoryItemChanged(prev, next *catalog.InventoryItem) bool {
	return prev.ShopifyVariantID != next.ShopifyVariantID ||
		prev.Tracked != next.Tracked ||
		!deletionEqual(prev.DeletedAt, next.DeletedAt)
}

// deletionEqual treats two deletion markers as equal when both are unset
// or both point at the same instant
func deletionEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// softDeleteNotIn marks every live row whose external ID is not in seen as
// deleted. An empty seen set after a full pass deletes the whole catalog,
// which is the correct reading of an empty upstream.
func (r *GormCatalogRepository) softDeleteNotIn(ctx context.Context, model interface{}, idColumn string, merchantID uuid.UUID, seen []int64, at time.Time) (int64, error) {
	query := r.db.WithContext(ctx).Model(model).
		Where("merchant_id = ? AND deleted_at IS NULL", merchantID)
	if len(seen) > 0 {
		query = query.Where(idColumn+" NOT IN ?", seen)
	}
	result := query.Updates(map[string]interface{}{
		"deleted_at": at,
		"updated_at": at,
	})
	return result.RowsAffected, result.Error
}

// Ensure GormCatalogRepository implements catalog.Repository
var _ catalog.Repository = (*GormCatalogRepository)(nil)
