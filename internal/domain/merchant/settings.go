package merchant

import (
	"context"

	"github.com/google/uuid"

	"github.com/shopmargin/backend/internal/domain/shared"
)

// RevenueBasis selects the base amount margin revenue starts from
type RevenueBasis string

const (
	RevenueBasisSubtotal RevenueBasis = "subtotal"
	RevenueBasisTotal    RevenueBasis = "total"
)

// MultiCurrencyMode controls how orders in a foreign currency are handled
type MultiCurrencyMode string

const (
	// MultiCurrencyWarn excludes foreign-currency orders from aggregates
	// and reports them as flagged exceptions.
	MultiCurrencyWarn MultiCurrencyMode = "warn"
	// MultiCurrencyConvert converts foreign-currency orders using a
	// supplied rate table before aggregation.
	MultiCurrencyConvert MultiCurrencyMode = "convert"
)

// AppSettings holds a merchant's accounting policy and sync configuration.
// One row per merchant. The sync/margin engine only reads it; mutation
// belongs to the merchant configuration surface.
type AppSettings struct {
	shared.BaseEntity
	MerchantID        uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex"`
	RevenueBasis      RevenueBasis      `gorm:"type:varchar(20);not null;default:'total'"`
	IncludeTaxes      bool              `gorm:"not null;default:false"`
	IncludeShipping   bool              `gorm:"not null;default:false"`
	DefaultCurrency   string            `gorm:"type:varchar(3);not null;default:'USD'"`
	MultiCurrencyMode MultiCurrencyMode `gorm:"type:varchar(10);not null;default:'warn'"`
	SyncLookbackDays  int               `gorm:"not null;default:30"`
	ProductsSyncCron  string            `gorm:"type:varchar(50)"` // empty = no scheduled catalog sync
	OrdersSyncCron    string            `gorm:"type:varchar(50)"` // empty = no scheduled order sync
}

// TableName returns the table name for GORM
func (AppSettings) TableName() string {
	return "app_settings"
}

// DefaultSettings returns the settings applied to a merchant that has not
// configured any policy yet.
func DefaultSettings(merchantID uuid.UUID) *AppSettings {
	return &AppSettings{
		BaseEntity:        shared.NewBaseEntity(),
		MerchantID:        merchantID,
		RevenueBasis:      RevenueBasisTotal,
		DefaultCurrency:   "USD",
		MultiCurrencyMode: MultiCurrencyWarn,
		SyncLookbackDays:  30,
	}
}

// Validate checks the settings for values the engine cannot act on
func (s *AppSettings) Validate() error {
	switch s.RevenueBasis {
	case RevenueBasisSubtotal, RevenueBasisTotal:
	default:
		return shared.NewDomainError("INVALID_REVENUE_BASIS", "Revenue basis must be subtotal or total")
	}
	switch s.MultiCurrencyMode {
	case MultiCurrencyWarn, MultiCurrencyConvert:
	default:
		return shared.NewDomainError("INVALID_CURRENCY_MODE", "Multi-currency mode must be warn or convert")
	}
	if s.SyncLookbackDays <= 0 {
		return shared.NewDomainError("INVALID_LOOKBACK", "Sync lookback days must be positive")
	}
	return nil
}

// SettingsRepository defines app settings persistence
type SettingsRepository interface {
	// FindByMerchant returns the merchant's settings, or defaults when
	// the merchant has not configured any.
	FindByMerchant(ctx context.Context, merchantID uuid.UUID) (*AppSettings, error)
	Save(ctx context.Context, s *AppSettings) error
}
