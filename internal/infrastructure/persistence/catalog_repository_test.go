package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/shopmargin/backend/internal/domain/catalog"
	"github.com/shopmargin/backend/internal/domain/shared"
)

func setupCatalogTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&catalog.Product{}, &catalog.Variant{}, &catalog.InventoryItem{}))
	return db
}

func snapshotProduct(merchantID uuid.UUID, externalID int64, title string) *catalog.Product {
	p := catalog.NewProduct(merchantID, externalID, title)
	p.ProductType = "gadget"
	p.Vendor = "Acme"
	p.Status = "active"
	return p
}

func TestCatalogUpsertProductsCountsOnlyChangedRows(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewGormCatalogRepository(db)
	ctx := context.Background()
	merchantID := uuid.New()

	first, err := repo.UpsertProducts(ctx, merchantID, []*catalog.Product{
		snapshotProduct(merchantID, 1001, "Widget"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)
	assert.Equal(t, 0, first.Updated)

	t.Run("identical snapshot reports nothing", func(t *testing.T) {
		again, err := repo.UpsertProducts(ctx, merchantID, []*catalog.Product{
			snapshotProduct(merchantID, 1001, "Widget"),
		})
		require.NoError(t, err)
		assert.Equal(t, 0, again.Created)
		assert.Equal(t, 0, again.Updated)
	})

	t.Run("a differing field counts as one update", func(t *testing.T) {
		renamed, err := repo.UpsertProducts(ctx, merchantID, []*catalog.Product{
			snapshotProduct(merchantID, 1001, "Widget Mk II"),
		})
		require.NoError(t, err)
		assert.Equal(t, 0, renamed.Created)
		assert.Equal(t, 1, renamed.Updated)

		stored, err := repo.findProducts(ctx, merchantID, []int64{1001})
		require.NoError(t, err)
		require.Contains(t, stored, int64(1001))
		assert.Equal(t, "Widget Mk II", stored[1001].Title)
	})

	t.Run("reappearing after soft delete counts as an update", func(t *testing.T) {
		deletedAt := time.Now().UTC().Truncate(time.Second)
		_, err := repo.SoftDeleteProductsNotIn(ctx, merchantID, []int64{}, deletedAt)
		require.NoError(t, err)

		back, err := repo.UpsertProducts(ctx, merchantID, []*catalog.Product{
			snapshotProduct(merchantID, 1001, "Widget Mk II"),
		})
		require.NoError(t, err)
		assert.Equal(t, 0, back.Created)
		assert.Equal(t, 1, back.Updated)
	})
}

func TestCatalogUpsertVariantsCountsOnlyChangedRows(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewGormCatalogRepository(db)
	ctx := context.Background()
	merchantID := uuid.New()

	snapshot := func(price string) *catalog.Variant {
		v := catalog.NewVariant(merchantID, 2001, 1001)
		v.ShopifyInventoryItemID = 3001
		v.SKU = "WID-1"
		v.Title = "Default"
		v.Price = decimal.RequireFromString(price)
		return v
	}

	first, err := repo.UpsertVariants(ctx, merchantID, []*catalog.Variant{snapshot("19.99")})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)
	assert.Equal(t, 0, first.Updated)

	again, err := repo.UpsertVariants(ctx, merchantID, []*catalog.Variant{snapshot("19.99")})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 0, again.Updated)

	repriced, err := repo.UpsertVariants(ctx, merchantID, []*catalog.Variant{snapshot("24.99")})
	require.NoError(t, err)
	assert.Equal(t, 0, repriced.Created)
	assert.Equal(t, 1, repriced.Updated)

	stored, err := repo.FindVariantsByShopifyIDs(ctx, merchantID, []int64{2001})
	require.NoError(t, err)
	require.Contains(t, stored, int64(2001))
	assert.True(t, stored[2001].Price.Equal(decimal.RequireFromString("24.99")))
}

func TestCatalogUpsertInventoryItemsCountsOnlyChangedRows(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewGormCatalogRepository(db)
	ctx := context.Background()
	merchantID := uuid.New()

	snapshot := func(tracked bool) *catalog.InventoryItem {
		it := catalog.NewInventoryItem(merchantID, 3001, 2001)
		it.Tracked = tracked
		return it
	}

	first, err := repo.UpsertInventoryItems(ctx, merchantID, []*catalog.InventoryItem{snapshot(true)})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)
	assert.Equal(t, 0, first.Updated)

	again, err := repo.UpsertInventoryItems(ctx, merchantID, []*catalog.InventoryItem{snapshot(true)})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 0, again.Updated)

	untracked, err := repo.UpsertInventoryItems(ctx, merchantID, []*catalog.InventoryItem{snapshot(false)})
	require.NoError(t, err)
	assert.Equal(t, 0, untracked.Created)
	assert.Equal(t, 1, untracked.Updated)
}

func TestCatalogUpsertRejectsForeignMerchantRows(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewGormCatalogRepository(db)
	ctx := context.Background()

	_, err := repo.UpsertProducts(ctx, uuid.New(), []*catalog.Product{
		snapshotProduct(uuid.New(), 1001, "Widget"),
	})
	assert.ErrorIs(t, err, shared.ErrMerchantMismatch)
}

func TestCatalogSoftDeleteNotIn(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewGormCatalogRepository(db)
	ctx := context.Background()
	merchantID := uuid.New()

	_, err := repo.UpsertProducts(ctx, merchantID, []*catalog.Product{
		snapshotProduct(merchantID, 1001, "Widget"),
		snapshotProduct(merchantID, 1002, "Gizmo"),
	})
	require.NoError(t, err)

	gone, err := repo.SoftDeleteProductsNotIn(ctx, merchantID, []int64{1001}, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), gone)

	stored, err := repo.findProducts(ctx, merchantID, []int64{1001, 1002})
	require.NoError(t, err)
	assert.Nil(t, stored[1001].DeletedAt)
	assert.NotNil(t, stored[1002].DeletedAt)
}
