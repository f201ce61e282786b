package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shopmargin/backend/internal/domain/catalog"
	"github.com/shopmargin/backend/internal/domain/merchant"
	domainsync "github.com/shopmargin/backend/internal/domain/sync"
	"github.com/shopmargin/backend/internal/infrastructure/shopify"
)

// fakeCatalogSource pages products by since_id the way the platform does
type fakeCatalogSource struct {
	products    []shopify.Product
	items       map[int64]shopify.InventoryItem
	pageSize    int
	failOnPage  int // 1-based page number to fail on, 0 = never
	pagesServed int
	gotLimit    int
	itemsErr    error
}

func (f *fakeCatalogSource) ListProducts(_ context.Context, sinceID int64, limit int) ([]shopify.Product, error) {
	f.pagesServed++
	f.gotLimit = limit
	if f.failOnPage > 0 && f.pagesServed >= f.failOnPage {
		return nil, errors.New("upstream unavailable")
	}
	var page []shopify.Product
	for _, p := range f.products {
		if p.ID > sinceID {
			page = append(page, p)
			if len(page) == f.pageSize {
				break
			}
		}
	}
	return page, nil
}

func (f *fakeCatalogSource) ListInventoryItems(_ context.Context, ids []int64) ([]shopify.InventoryItem, error) {
	if f.itemsErr != nil {
		return nil, f.itemsErr
	}
	var out []shopify.InventoryItem
	for _, id := range ids {
		if item, ok := f.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// fakeCatalogRepo records upserts and soft deletes in memory
type fakeCatalogRepo struct {
	products        []*catalog.Product
	variants        []*catalog.Variant
	items           []*catalog.InventoryItem
	softDeleteCalls int
	seenProducts    []int64
	seenVariants    []int64
	seenItems       []int64
	upsertErr       error
}

func (f *fakeCatalogRepo) UpsertProducts(_ context.Context, _ uuid.UUID, products []*catalog.Product) (catalog.UpsertResult, error) {
	if f.upsertErr != nil {
		return catalog.UpsertResult{}, f.upsertErr
	}
	f.products = append(f.products, products...)
	return catalog.UpsertResult{Created: len(products)}, nil
}

func (f *fakeCatalogRepo) UpsertVariants(_ context.Context, _ uuid.UUID, variants []*catalog.Variant) (catalog.UpsertResult, error) {
	f.variants = append(f.variants, variants...)
	return catalog.UpsertResult{Created: len(variants)}, nil
}

func (f *fakeCatalogRepo) UpsertInventoryItems(_ context.Context, _ uuid.UUID, items []*catalog.InventoryItem) (catalog.UpsertResult, error) {
	f.items = append(f.items, items...)
	return catalog.UpsertResult{Created: len(items)}, nil
}

func (f *fakeCatalogRepo) SoftDeleteProductsNotIn(_ context.Context, _ uuid.UUID, seen []int64, _ time.Time) (int64, error) {
	f.softDeleteCalls++
	f.seenProducts = seen
	return 1, nil
}

func (f *fakeCatalogRepo) SoftDeleteVariantsNotIn(_ context.Context, _ uuid.UUID, seen []int64, _ time.Time) (int64, error) {
	f.softDeleteCalls++
	f.seenVariants = seen
	return 0, nil
}

func (f *fakeCatalogRepo) SoftDeleteInventoryItemsNotIn(_ context.Context, _ uuid.UUID, seen []int64, _ time.Time) (int64, error) {
	f.softDeleteCalls++
	f.seenItems = seen
	return 0, nil
}

func (f *fakeCatalogRepo) FindVariantsByShopifyIDs(_ context.Context, _ uuid.UUID, ids []int64) (map[int64]*catalog.Variant, error) {
	out := make(map[int64]*catalog.Variant)
	for _, v := range f.variants {
		for _, id := range ids {
			if v.ShopifyVariantID == id {
				out[id] = v
			}
		}
	}
	return out, nil
}

// fakeCostRepo is an in-memory append-only ledger
type fakeCostRepo struct {
	entries   []*catalog.CostEntry
	appendErr error
}

func (f *fakeCostRepo) Append(_ context.Context, entry *catalog.CostEntry) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	for _, e := range f.entries {
		if e.ShopifyInventoryItemID == entry.ShopifyInventoryItemID && e.EffectiveAt.Equal(entry.EffectiveAt) {
			return catalog.ErrDuplicateCostEntry
		}
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeCostRepo) CostAt(_ context.Context, _ uuid.UUID, itemID int64, at time.Time) (*catalog.CostEntry, error) {
	var best *catalog.CostEntry
	for _, e := range f.entries {
		if e.ShopifyInventoryItemID != itemID || e.EffectiveAt.After(at) {
			continue
		}
		if best == nil || e.EffectiveAt.After(best.EffectiveAt) {
			best = e
		}
	}
	return best, nil
}

func testMerchant(t *testing.T) (*merchant.Merchant, *merchant.AppSettings) {
	t.Helper()
	m, err := merchant.NewMerchant("demo.myshopify.com", "Demo")
	require.NoError(t, err)
	return m, merchant.DefaultSettings(m.ID)
}

func strPtr(s string) *string { return &s }

func catalogFixture() *fakeCatalogSource {
	updated := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return &fakeCatalogSource{
		pageSize: 2,
		products: []shopify.Product{
			{ID: 1, Title: "Shirt", Variants: []shopify.Variant{
				{ID: 11, ProductID: 1, Price: "25.00", InventoryItemID: 101},
			}},
			{ID: 2, Title: "Mug", Variants: []shopify.Variant{
				{ID: 21, ProductID: 2, Price: "10.00", InventoryItemID: 201},
			}},
			{ID: 3, Title: "Poster", Variants: []shopify.Variant{
				{ID: 31, ProductID: 3, Price: "15.00", InventoryItemID: 301},
			}},
		},
		items: map[int64]shopify.InventoryItem{
			101: {ID: 101, Cost: strPtr("12.50"), Tracked: true, UpdatedAt: updated},
			201: {ID: 201, Cost: strPtr("4.00"), Tracked: true, UpdatedAt: updated},
			301: {ID: 301, Cost: nil, Tracked: false, UpdatedAt: updated},
		},
	}
}

func TestCatalogReconcilerFullPass(t *testing.T) {
	m, settings := testMerchant(t)
	source := catalogFixture()
	repo := &fakeCatalogRepo{}
	costs := &fakeCostRepo{}
	r := NewCatalogReconciler(repo, costs, zap.NewNop())

	outcome := r.Reconcile(context.Background(), m, settings, source, 0)

	require.NoError(t, outcome.Err)
	assert.Equal(t, 2, outcome.Pages)
	assert.Len(t, repo.products, 3)
	assert.Len(t, repo.variants, 3)
	assert.Len(t, repo.items, 3)

	// Soft delete runs exactly once per table, scoped to the seen IDs
	assert.Equal(t, 3, repo.softDeleteCalls)
	assert.ElementsMatch(t, []int64{1, 2, 3}, repo.seenProducts)
	assert.ElementsMatch(t, []int64{11, 21, 31}, repo.seenVariants)
	assert.ElementsMatch(t, []int64{101, 201, 301}, repo.seenItems)
	assert.Equal(t, 1, outcome.SoftDeleted)

	// Items with a reported cost got ledger entries, the untracked one did not
	require.Len(t, costs.entries, 2)
	entry, err := costs.CostAt(context.Background(), m.ID, 101, time.Now())
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.Cost.Equal(decimal.RequireFromString("12.50")))
	assert.Equal(t, settings.DefaultCurrency, entry.Currency)
}

func TestCatalogReconcilerForwardsPageLimit(t *testing.T) {
	m, settings := testMerchant(t)
	source := catalogFixture()
	r := NewCatalogReconciler(&fakeCatalogRepo{}, &fakeCostRepo{}, zap.NewNop())

	outcome := r.Reconcile(context.Background(), m, settings, source, 25)

	require.NoError(t, outcome.Err)
	assert.Equal(t, 25, source.gotLimit)
}

func TestCatalogReconcilerNoSoftDeleteOnFailedPass(t *testing.T) {
	m, settings := testMerchant(t)
	source := catalogFixture()
	source.failOnPage = 2
	repo := &fakeCatalogRepo{}
	r := NewCatalogReconciler(repo, &fakeCostRepo{}, zap.NewNop())

	outcome := r.Reconcile(context.Background(), m, settings, source, 0)

	require.Error(t, outcome.Err)
	assert.Equal(t, 1, outcome.Pages)
	// The committed page stays, but nothing may be soft-deleted
	assert.Len(t, repo.products, 2)
	assert.Zero(t, repo.softDeleteCalls)
}

func TestCatalogReconcilerCancelledContext(t *testing.T) {
	m, settings := testMerchant(t)
	repo := &fakeCatalogRepo{}
	r := NewCatalogReconciler(repo, &fakeCostRepo{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome := r.Reconcile(ctx, m, settings, catalogFixture(), 0)

	require.ErrorIs(t, outcome.Err, context.Canceled)
	assert.Zero(t, repo.softDeleteCalls)
}

func TestCatalogReconcilerMalformedRecords(t *testing.T) {
	m, settings := testMerchant(t)
	source := &fakeCatalogSource{
		pageSize: 10,
		products: []shopify.Product{
			{ID: 1, Title: "Good", Variants: []shopify.Variant{
				{ID: 11, ProductID: 1, Price: "25.00"},
				{ID: 12, ProductID: 1, Price: "not-a-number"},
			}},
		},
	}
	repo := &fakeCatalogRepo{}
	r := NewCatalogReconciler(repo, &fakeCostRepo{}, zap.NewNop())

	outcome := r.Reconcile(context.Background(), m, settings, source, 0)

	require.NoError(t, outcome.Err)
	assert.Len(t, repo.variants, 1)
	require.Len(t, outcome.Exceptions, 1)
	assert.Equal(t, domainsync.ExceptionMalformedRecord, outcome.Exceptions[0].Kind)
	assert.Equal(t, "12", outcome.Exceptions[0].ExternalID)

	// A skipped variant is not part of the clean pass, so the pass still
	// soft-deletes against what it actually saw
	assert.Equal(t, 3, repo.softDeleteCalls)
	assert.ElementsMatch(t, []int64{11}, repo.seenVariants)
}

func TestCatalogReconcilerUnchangedCostNotAppended(t *testing.T) {
	m, settings := testMerchant(t)
	source := catalogFixture()
	costs := &fakeCostRepo{}
	r := NewCatalogReconciler(&fakeCatalogRepo{}, costs, zap.NewNop())

	outcome := r.Reconcile(context.Background(), m, settings, source, 0)
	require.NoError(t, outcome.Err)
	require.Len(t, costs.entries, 2)

	// Second pass reports the same costs; the ledger must not grow
	source.pagesServed = 0
	outcome = r.Reconcile(context.Background(), m, settings, source, 0)
	require.NoError(t, outcome.Err)
	assert.Len(t, costs.entries, 2)
	assert.Empty(t, outcome.Exceptions)
}

func TestCatalogReconcilerChangedCostAppendsEntry(t *testing.T) {
	m, settings := testMerchant(t)
	source := catalogFixture()
	costs := &fakeCostRepo{}
	r := NewCatalogReconciler(&fakeCatalogRepo{}, costs, zap.NewNop())

	outcome := r.Reconcile(context.Background(), m, settings, source, 0)
	require.NoError(t, outcome.Err)
	require.Len(t, costs.entries, 2)

	// Supplier price change with a later platform update time
	item := source.items[101]
	item.Cost = strPtr("13.75")
	item.UpdatedAt = item.UpdatedAt.Add(24 * time.Hour)
	source.items[101] = item
	source.pagesServed = 0

	outcome = r.Reconcile(context.Background(), m, settings, source, 0)
	require.NoError(t, outcome.Err)
	require.Len(t, costs.entries, 3)
	latest, err := costs.CostAt(context.Background(), m.ID, 101, time.Now())
	require.NoError(t, err)
	assert.True(t, latest.Cost.Equal(decimal.RequireFromString("13.75")))
}

func TestCatalogReconcilerDuplicateCostEntryRecorded(t *testing.T) {
	m, settings := testMerchant(t)
	source := catalogFixture()
	costs := &fakeCostRepo{appendErr: catalog.ErrDuplicateCostEntry}
	r := NewCatalogReconciler(&fakeCatalogRepo{}, costs, zap.NewNop())

	outcome := r.Reconcile(context.Background(), m, settings, source, 0)

	// Duplicate entries surface as exceptions, never as run failure
	require.NoError(t, outcome.Err)
	require.Len(t, outcome.Exceptions, 2)
	for _, ex := range outcome.Exceptions {
		assert.Equal(t, domainsync.ExceptionDuplicateCost, ex.Kind)
	}
}
