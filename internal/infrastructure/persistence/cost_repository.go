package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shopmargin/backend/internal/domain/catalog"
)

// GormCostRepository implements catalog.CostRepository using GORM.
// The ledger is insert-only: no Update or Delete exists on purpose.
type GormCostRepository struct {
	db *gorm.DB
}

// NewGormCostRepository creates a new GormCostRepository
func NewGormCostRepository(db *gorm.DB) *GormCostRepository {
	return &GormCostRepository{db: db}
}

// Append inserts a new ledger entry, rejecting duplicates on the
// (merchant_id, item, effective_at) key
func (r *GormCostRepository) Append(ctx context.Context, entry *catalog.CostEntry) error {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "merchant_id"},
			{Name: "shopify_inventory_item_id"},
			{Name: "effective_at"},
		},
		DoNothing: true,
	}).Create(entry)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return catalog.ErrDuplicateCostEntry
	}
	return nil
}

// CostAt returns the entry with the greatest effective_at not after the
// reference time, or (nil, nil) when the item has no cost history yet
func (r *GormCostRepository) CostAt(ctx context.Context, merchantID uuid.UUID, itemID int64, at time.Time) (*catalog.CostEntry, error) {
	var entry catalog.CostEntry
	err := r.db.WithContext(ctx).
		Where("merchant_id = ? AND shopify_inventory_item_id = ? AND effective_at <= ?", merchantID, itemID, at).
		Order("effective_at DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// Ensure GormCostRepository implements catalog.CostRepository
var _ catalog.CostRepository = (*GormCostRepository)(nil)
