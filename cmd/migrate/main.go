package main

import (
	"context"
	"flag"
	"os"

	"github.com/shopmargin/backend/internal/domain/catalog"
	"github.com/shopmargin/backend/internal/domain/merchant"
	"github.com/shopmargin/backend/internal/domain/order"
	"github.com/shopmargin/backend/internal/domain/shared"
	"github.com/shopmargin/backend/internal/domain/sync"
	"github.com/shopmargin/backend/internal/infrastructure/config"
	"github.com/shopmargin/backend/internal/infrastructure/logger"
	"github.com/shopmargin/backend/internal/infrastructure/persistence"
	"go.uber.org/zap"
)

func main() {
	var (
		logLevel   string
		seedDomain string
		seedName   string
	)
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&seedDomain, "seed-shop", "", "Optionally seed a merchant with this shop domain")
	flag.StringVar(&seedName, "seed-name", "Development Store", "Display name for the seeded merchant")
	flag.Parse()

	log := logger.New(logLevel, "console", "stdout")
	defer func() {
		_ = log.Sync()
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	log.Info("Running schema migration",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.DBName),
	)

	if err := db.DB.AutoMigrate(
		&merchant.Merchant{},
		&merchant.AppSettings{},
		&catalog.Product{},
		&catalog.Variant{},
		&catalog.InventoryItem{},
		&catalog.CostEntry{},
		&order.Order{},
		&order.Line{},
		&sync.Run{},
		&sync.Exception{},
		&shared.OutboxEntry{},
	); err != nil {
		log.Fatal("Migration failed", zap.Error(err))
	}
	log.Info("Migration complete")

	if seedDomain != "" {
		if err := seedMerchant(log, db, seedDomain, seedName); err != nil {
			log.Fatal("Seeding failed", zap.Error(err))
		}
	}

	os.Exit(0)
}

// seedMerchant creates a merchant with default settings unless the shop
// domain is already registered
func seedMerchant(log *zap.Logger, db *persistence.Database, shopDomain, name string) error {
	ctx := context.Background()
	merchantRepo := persistence.NewGormMerchantRepository(db.DB)
	settingsRepo := persistence.NewGormSettingsRepository(db.DB)

	if existing, err := merchantRepo.FindByShopDomain(ctx, shopDomain); err == nil {
		log.Info("Merchant already exists, skipping seed",
			zap.String("shop_domain", existing.ShopDomain),
			zap.String("merchant_id", existing.ID.String()),
		)
		return nil
	}

	m, err := merchant.NewMerchant(shopDomain, name)
	if err != nil {
		return err
	}
	if err := merchantRepo.Save(ctx, m); err != nil {
		return err
	}
	if err := settingsRepo.Save(ctx, merchant.DefaultSettings(m.ID)); err != nil {
		return err
	}

	log.Info("Seeded merchant",
		zap.String("shop_domain", m.ShopDomain),
		zap.String("merchant_id", m.ID.String()),
	)
	return nil
}
