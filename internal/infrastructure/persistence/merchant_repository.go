package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shopmargin/backend/internal/domain/merchant"
	"github.com/shopmargin/backend/internal/domain/shared"
)

// GormMerchantRepository implements merchant.Repository using GORM
type GormMerchantRepository struct {
	db *gorm.DB
}

// NewGormMerchantRepository creates a new GormMerchantRepository
func NewGormMerchantRepository(db *gorm.DB) *GormMerchantRepository {
	return &GormMerchantRepository{db: db}
}

// FindByID finds a merchant by its ID
func (r *GormMerchantRepository) FindByID(ctx context.Context, id uuid.UUID) (*merchant.Merchant, error) {
	var m merchant.Merchant
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// FindByShopDomain finds a merchant by its storefront domain
func (r *GormMerchantRepository) FindByShopDomain(ctx context.Context, shopDomain string) (*merchant.Merchant, error) {
	var m merchant.Merchant
	if err := r.db.WithContext(ctx).
		Where("shop_domain = ?", strings.ToLower(shopDomain)).
		First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// FindAllActive finds all merchants that have not been deactivated
func (r *GormMerchantRepository) FindAllActive(ctx context.Context) ([]merchant.Merchant, error) {
	var merchants []merchant.Merchant
	if err := r.db.WithContext(ctx).
		Order("shop_domain ASC").
		Find(&merchants).Error; err != nil {
		return nil, err
	}
	return merchants, nil
}

// Save creates or updates a merchant
func (r *GormMerchantRepository) Save(ctx context.Context, m *merchant.Merchant) error {
	return r.db.WithContext(ctx).Save(m).Error
}

// GormSettingsRepository implements merchant.SettingsRepository using GORM
type GormSettingsRepository struct {
	db *gorm.DB
}

// NewGormSettingsRepository creates a new GormSettingsRepository
func NewGormSettingsRepository(db *gorm.DB) *GormSettingsRepository {
	return &GormSettingsRepository{db: db}
}

// FindByMerchant returns the merchant's settings, falling back to defaults
// when the merchant has never saved any
func (r *GormSettingsRepository) FindByMerchant(ctx context.Context, merchantID uuid.UUID) (*merchant.AppSettings, error) {
	var s merchant.AppSettings
	if err := r.db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return merchant.DefaultSettings(merchantID), nil
		}
		return nil, err
	}
	return &s, nil
}

// Save creates or updates the merchant's settings
func (r *GormSettingsRepository) Save(ctx context.Context, s *merchant.AppSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(s).Error
}

// Ensure implementations satisfy the domain interfaces
var _ merchant.Repository = (*GormMerchantRepository)(nil)
var _ merchant.SettingsRepository = (*GormSettingsRepository)(nil)
