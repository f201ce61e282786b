package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shopmargin/backend/internal/domain/catalog"
	"github.com/shopmargin/backend/internal/domain/order"
	"github.com/shopmargin/backend/internal/domain/shared"
)

// GormOrderRepository implements order.Repository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// UpsertPage inserts or overwrites a page of orders with their lines.
// Line rows for an order are reconciled against the incoming set, so a
// line removed by an order edit upstream disappears here too. Orders whose
// source_updated_at matches the stored row are skipped and left uncounted.
func (r *GormOrderRepository) UpsertPage(ctx context.Context, merchantID uuid.UUID, orders []*order.Order) (catalog.UpsertResult, error) {
	var result catalog.UpsertResult
	if len(orders) == 0 {
		return result, nil
	}

	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		if o.MerchantID != merchantID {
			return result, shared.ErrMerchantMismatch
		}
		ids = append(ids, o.ShopifyOrderID)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []struct {
			ShopifyOrderID  int64
			SourceUpdatedAt time.Time
		}
		if err := tx.Model(&order.Order{}).
			Select("shopify_order_id", "source_updated_at").
			Where("merchant_id = ? AND shopify_order_id IN ?", merchantID, ids).
			Scan(&existing).Error; err != nil {
			return err
		}
		prevStamp := make(map[int64]time.Time, len(existing))
		for _, row := range existing {
			prevStamp[row.ShopifyOrderID] = row.SourceUpdatedAt
		}

		// The platform bumps updated_at on any order change, line edits
		// included, so an unchanged source_updated_at means the stored
		// aggregate is already current and the row is skipped outright
		write := make([]*order.Order, 0, len(orders))
		writeIDs := make([]int64, 0, len(orders))
		for _, o := range orders {
			prev, seen := prevStamp[o.ShopifyOrderID]
			switch {
			case !seen:
				result.Created++
			case !prev.Equal(o.SourceUpdatedAt):
				result.Updated++
			default:
				continue
			}
			write = append(write, o)
			writeIDs = append(writeIDs, o.ShopifyOrderID)
		}
		if len(write) == 0 {
			return nil
		}

		// Detach lines so GORM does not cascade-create them with stale
		// order UUIDs. They are written after internal IDs are resolved.
		detached := make(map[int64][]order.Line, len(write))
		byExternal := make(map[int64]*order.Order, len(write))
		for _, o := range write {
			byExternal[o.ShopifyOrderID] = o
			detached[o.ShopifyOrderID] = o.Lines
			o.Lines = nil
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "merchant_id"}, {Name: "shopify_order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "processed_at", "currency", "subtotal_price", "total_price",
				"total_discounts", "total_shipping", "total_tax", "financial_status",
				"cancelled_at", "source_updated_at", "updated_at",
			}),
		}).Create(write).Error; err != nil {
			return err
		}

		// Resolve the surviving internal order IDs; updated rows keep
		// their original UUID, not the one on the incoming struct.
		var rows []struct {
			ID             uuid.UUID
			ShopifyOrderID int64
		}
		if err := tx.Model(&order.Order{}).
			Select("id", "shopify_order_id").
			Where("merchant_id = ? AND shopify_order_id IN ?", merchantID, writeIDs).
			Scan(&rows).Error; err != nil {
			return err
		}

		internalIDs := make([]uuid.UUID, 0, len(rows))
		for _, row := range rows {
			internalIDs = append(internalIDs, row.ID)
			if o := byExternal[row.ShopifyOrderID]; o != nil {
				o.ID = row.ID
			}
		}

		// Re-attach and write lines with resolved parent IDs
		lines := make([]*order.Line, 0)
		lineIDs := make([]int64, 0)
		for _, o := range write {
			restored := detached[o.ShopifyOrderID]
			for i := range restored {
				restored[i].OrderID = o.ID
				lines = append(lines, &restored[i])
				lineIDs = append(lineIDs, restored[i].ShopifyLineItemID)
			}
			o.Lines = restored
		}

		if len(lines) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "merchant_id"}, {Name: "shopify_line_item_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"order_id", "shopify_product_id", "shopify_variant_id",
					"title", "sku", "quantity", "price", "updated_at",
				}),
			}).Create(lines).Error; err != nil {
				return err
			}
		}

		// Drop lines that vanished from their order upstream
		prune := tx.Where("merchant_id = ? AND order_id IN ?", merchantID, internalIDs)
		if len(lineIDs) > 0 {
			prune = prune.Where("shopify_line_item_id NOT IN ?", lineIDs)
		}
		return prune.Delete(&order.Line{}).Error
	})
	if err != nil {
		return catalog.UpsertResult{}, err
	}
	return result, nil
}

// FindForMargin returns orders with processed_at inside the window,
// lines preloaded, cancelled orders included
func (r *GormOrderRepository) FindForMargin(ctx context.Context, merchantID uuid.UUID, from, to time.Time) ([]order.Order, error) {
	var orders []order.Order
	if err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("merchant_id = ? AND processed_at >= ? AND processed_at < ?", merchantID, from, to).
		Order("processed_at ASC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// FindByShopifyID finds an order by its external ID within a merchant
func (r *GormOrderRepository) FindByShopifyID(ctx context.Context, merchantID uuid.UUID, shopifyOrderID int64) (*order.Order, error) {
	var o order.Order
	if err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("merchant_id = ? AND shopify_order_id = ?", merchantID, shopifyOrderID).
		First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// Ensure GormOrderRepository implements order.Repository
var _ order.Repository = (*GormOrderRepository)(nil)
