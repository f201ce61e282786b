package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shopmargin/backend/internal/domain/shared"
	"github.com/shopmargin/backend/internal/domain/sync"
)

// GormSyncRunRepository implements sync.RunRepository using GORM
type GormSyncRunRepository struct {
	db *gorm.DB
}

// NewGormSyncRunRepository creates a new GormSyncRunRepository
func NewGormSyncRunRepository(db *gorm.DB) *GormSyncRunRepository {
	return &GormSyncRunRepository{db: db}
}

// Create persists a new run
func (r *GormSyncRunRepository) Create(ctx context.Context, run *sync.Run) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// Update persists run state changes along with any recorded exceptions
func (r *GormSyncRunRepository) Update(ctx context.Context, run *sync.Run) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// FindByID finds a run with its exceptions preloaded
func (r *GormSyncRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*sync.Run, error) {
	var run sync.Run
	if err := r.db.WithContext(ctx).
		Preload("Exceptions").
		First(&run, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

// FindRecent returns the merchant's most recent runs, newest first.
// An empty kind matches runs of every kind.
func (r *GormSyncRunRepository) FindRecent(ctx context.Context, merchantID uuid.UUID, kind sync.Kind, limit int) ([]sync.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := r.db.WithContext(ctx).Where("merchant_id = ?", merchantID)
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	var runs []sync.Run
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// LastWatermark returns the watermark of the most recent run that advanced
// one, or nil when the merchant has never fully synced this kind
func (r *GormSyncRunRepository) LastWatermark(ctx context.Context, merchantID uuid.UUID, kind sync.Kind) (*time.Time, error) {
	var run sync.Run
	err := r.db.WithContext(ctx).
		Where("merchant_id = ? AND kind = ? AND watermark IS NOT NULL", merchantID, kind).
		Order("completed_at DESC").
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return run.Watermark, nil
}

// MarkPublished flips the run's published flag after broker delivery
func (r *GormSyncRunRepository) MarkPublished(ctx context.Context, runID uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&sync.Run{}).
		Where("id = ?", runID).
		Update("published", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Ensure GormSyncRunRepository implements sync.RunRepository
var _ sync.RunRepository = (*GormSyncRunRepository)(nil)
