package merchant

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shopmargin/backend/internal/domain/shared"
)

// Merchant is the tenant root. Its shop domain is immutable identity;
// everything else in the store hangs off its ID.
type Merchant struct {
	shared.BaseEntity
	ShopDomain  string         `gorm:"type:varchar(255);not null;uniqueIndex"`
	Name        string         `gorm:"type:varchar(200)"`
	Email       string         `gorm:"type:varchar(255)"`
	Timezone    string         `gorm:"type:varchar(64)"`
	AccessToken string         `gorm:"type:varchar(255)"` // storefront API token, opaque to the engine
	APIVersion  string         `gorm:"type:varchar(20)"`
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

// TableName returns the table name for GORM
func (Merchant) TableName() string {
	return "merchants"
}

// NewMerchant creates a new merchant for a shop domain
func NewMerchant(shopDomain, name string) (*Merchant, error) {
	shopDomain = strings.ToLower(strings.TrimSpace(shopDomain))
	if shopDomain == "" {
		return nil, shared.NewDomainError("INVALID_SHOP_DOMAIN", "Shop domain cannot be empty")
	}

	return &Merchant{
		BaseEntity: shared.NewBaseEntity(),
		ShopDomain: shopDomain,
		Name:       name,
	}, nil
}

// UpdateProfile updates the merchant's mutable profile fields
func (m *Merchant) UpdateProfile(name, email, timezone string) {
	m.Name = name
	m.Email = email
	m.Timezone = timezone
	m.UpdatedAt = time.Now()
}

// Repository defines merchant persistence
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Merchant, error)
	FindByShopDomain(ctx context.Context, shopDomain string) (*Merchant, error)
	FindAllActive(ctx context.Context) ([]Merchant, error)
	Save(ctx context.Context, m *Merchant) error
}
