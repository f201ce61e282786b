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
	"github.com/shopmargin/backend/internal/domain/sync"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&catalog.CostEntry{}, &sync.Run{}, &sync.Exception{}))
	return db
}

func appendEntry(t *testing.T, repo *GormCostRepository, merchantID uuid.UUID, itemID int64, cost string, effectiveAt time.Time) *catalog.CostEntry {
	t.Helper()
	entry, err := catalog.NewCostEntry(merchantID, itemID, decimal.RequireFromString(cost), "USD", effectiveAt, catalog.CostEntrySourceShopify)
	require.NoError(t, err)
	require.NoError(t, repo.Append(context.Background(), entry))
	return entry
}

func TestCostRepositoryCostAt(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewGormCostRepository(db)
	merchantID := uuid.New()

	day1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	day10 := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	appendEntry(t, repo, merchantID, 101, "10.00", day1)
	appendEntry(t, repo, merchantID, 101, "12.00", day10)

	t.Run("between entries picks the earlier one", func(t *testing.T) {
		entry, err := repo.CostAt(context.Background(), merchantID, 101, day1.AddDate(0, 0, 4))
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.True(t, entry.Cost.Equal(decimal.RequireFromString("10.00")))
	})

	t.Run("after the latest picks the latest", func(t *testing.T) {
		entry, err := repo.CostAt(context.Background(), merchantID, 101, day10.AddDate(0, 0, 5))
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.True(t, entry.Cost.Equal(decimal.RequireFromString("12.00")))
	})

	t.Run("exactly at an entry includes it", func(t *testing.T) {
		entry, err := repo.CostAt(context.Background(), merchantID, 101, day10)
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.True(t, entry.Cost.Equal(decimal.RequireFromString("12.00")))
	})

	t.Run("before any history returns nil", func(t *testing.T) {
		entry, err := repo.CostAt(context.Background(), merchantID, 101, day1.AddDate(0, 0, -1))
		require.NoError(t, err)
		assert.Nil(t, entry)
	})

	t.Run("unknown item returns nil", func(t *testing.T) {
		entry, err := repo.CostAt(context.Background(), merchantID, 999, day10)
		require.NoError(t, err)
		assert.Nil(t, entry)
	})

	t.Run("other merchant's ledger is invisible", func(t *testing.T) {
		entry, err := repo.CostAt(context.Background(), uuid.New(), 101, day10)
		require.NoError(t, err)
		assert.Nil(t, entry)
	})
}

func TestCostRepositoryAppendRejectsDuplicate(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewGormCostRepository(db)
	merchantID := uuid.New()

	effectiveAt := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	appendEntry(t, repo, merchantID, 101, "10.00", effectiveAt)

	dup, err := catalog.NewCostEntry(merchantID, 101, decimal.RequireFromString("11.00"), "USD", effectiveAt, catalog.CostEntrySourceShopify)
	require.NoError(t, err)
	err = repo.Append(context.Background(), dup)
	assert.ErrorIs(t, err, catalog.ErrDuplicateCostEntry)

	// The original entry is untouched
	entry, err := repo.CostAt(context.Background(), merchantID, 101, effectiveAt)
	require.NoError(t, err)
	assert.True(t, entry.Cost.Equal(decimal.RequireFromString("10.00")))
}

func TestCostRepositoryDifferentKeysCoexist(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewGormCostRepository(db)
	merchantID := uuid.New()
	effectiveAt := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	appendEntry(t, repo, merchantID, 101, "10.00", effectiveAt)
	appendEntry(t, repo, merchantID, 102, "10.00", effectiveAt)
	appendEntry(t, repo, uuid.New(), 101, "10.00", effectiveAt)
	appendEntry(t, repo, merchantID, 101, "10.00", effectiveAt.Add(time.Hour))
}

func TestSyncRunRepositoryOnSQLite(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewGormSyncRunRepository(db)
	ctx := context.Background()
	merchantID := uuid.New()

	t.Run("last watermark skips runs that did not advance one", func(t *testing.T) {
		early := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

		advanced := sync.NewRun(merchantID, sync.KindOrders, sync.TriggerCron)
		advanced.Start()
		advanced.Complete(2, 0, 0, 1, &early)
		require.NoError(t, repo.Create(ctx, advanced))

		failed := sync.NewRun(merchantID, sync.KindOrders, sync.TriggerCron)
		failed.Start()
		failed.Fail("platform unavailable")
		require.NoError(t, repo.Create(ctx, failed))

		got, err := repo.LastWatermark(ctx, merchantID, sync.KindOrders)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.Equal(early))
	})

	t.Run("last watermark is nil for a fresh merchant", func(t *testing.T) {
		got, err := repo.LastWatermark(ctx, uuid.New(), sync.KindOrders)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("find recent filters by kind", func(t *testing.T) {
		fresh := uuid.New()
		products := sync.NewRun(fresh, sync.KindProducts, sync.TriggerManual)
		orders := sync.NewRun(fresh, sync.KindOrders, sync.TriggerCron)
		require.NoError(t, repo.Create(ctx, products))
		require.NoError(t, repo.Create(ctx, orders))

		runs, err := repo.FindRecent(ctx, fresh, sync.KindOrders, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, orders.ID, runs[0].ID)

		runs, err = repo.FindRecent(ctx, fresh, "", 10)
		require.NoError(t, err)
		assert.Len(t, runs, 2)
	})

	t.Run("mark published flips the flag", func(t *testing.T) {
		run := sync.NewRun(merchantID, sync.KindOrders, sync.TriggerCron)
		require.NoError(t, repo.Create(ctx, run))

		require.NoError(t, repo.MarkPublished(ctx, run.ID))
		found, err := repo.FindByID(ctx, run.ID)
		require.NoError(t, err)
		assert.True(t, found.Published)

		err = repo.MarkPublished(ctx, uuid.New())
		assert.Error(t, err)
	})
}
