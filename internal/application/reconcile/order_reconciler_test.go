package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shopmargin/backend/internal/domain/catalog"
	"github.com/shopmargin/backend/internal/domain/order"
	domainsync "github.com/shopmargin/backend/internal/domain/sync"
	"github.com/shopmargin/backend/internal/infrastructure/shopify"
)

// fakeOrderSource pages orders by since_id
type fakeOrderSource struct {
	orders      []shopify.Order
	pageSize    int
	failOnPage  int
	pagesServed int
	gotOpts     []shopify.OrderListOptions
}

func (f *fakeOrderSource) ListOrders(_ context.Context, opts shopify.OrderListOptions) ([]shopify.Order, error) {
	f.pagesServed++
	f.gotOpts = append(f.gotOpts, opts)
	if f.failOnPage > 0 && f.pagesServed >= f.failOnPage {
		return nil, errors.New("upstream unavailable")
	}
	var page []shopify.Order
	for _, o := range f.orders {
		if o.ID > opts.SinceID {
			page = append(page, o)
			if len(page) == f.pageSize {
				break
			}
		}
	}
	return page, nil
}

// fakeOrderRepo records upserted pages
type fakeOrderRepo struct {
	pages      [][]*order.Order
	failOnPage int
}

func (f *fakeOrderRepo) UpsertPage(_ context.Context, _ uuid.UUID, orders []*order.Order) (catalog.UpsertResult, error) {
	if f.failOnPage > 0 && len(f.pages)+1 >= f.failOnPage {
		return catalog.UpsertResult{}, errors.New("write failed")
	}
	f.pages = append(f.pages, orders)
	return catalog.UpsertResult{Created: len(orders)}, nil
}

func (f *fakeOrderRepo) FindForMargin(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]order.Order, error) {
	return nil, nil
}

func (f *fakeOrderRepo) FindByShopifyID(_ context.Context, _ uuid.UUID, _ int64) (*order.Order, error) {
	return nil, nil
}

func wireOrder(id int64, total string, updatedAt time.Time) shopify.Order {
	processed := updatedAt.Add(-time.Hour)
	return shopify.Order{
		ID:              id,
		Name:            "#100" + string(rune('0'+id%10)),
		Currency:        "USD",
		SubtotalPrice:   total,
		TotalPrice:      total,
		ProcessedAt:     &processed,
		UpdatedAt:       updatedAt,
		FinancialStatus: "paid",
		LineItems: []shopify.LineItem{
			{ID: id * 10, Title: "item", Price: "10.00", Quantity: 1},
		},
	}
}

func TestOrderReconcilerWatermarkAdvancesOnSuccess(t *testing.T) {
	m, settings := testMerchant(t)
	t1 := time.Date(2026, 8, 10, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(2 * time.Hour)
	t3 := t1.Add(time.Hour) // later page can carry an earlier updated_at

	source := &fakeOrderSource{
		pageSize: 2,
		orders: []shopify.Order{
			wireOrder(1, "20.00", t1),
			wireOrder(2, "30.00", t2),
			wireOrder(3, "40.00", t3),
		},
	}
	repo := &fakeOrderRepo{}
	r := NewOrderReconciler(repo, zap.NewNop())

	outcome := r.Reconcile(context.Background(), m, settings, source, nil, 0)

	require.NoError(t, outcome.Err)
	assert.Equal(t, 2, outcome.Pages)
	assert.Equal(t, 3, outcome.Created)
	require.NotNil(t, outcome.Watermark)
	// Watermark is the max updated_at across committed pages, not the last seen
	assert.True(t, outcome.Watermark.Equal(t2))
}

func TestOrderReconcilerFirstSyncUsesLookback(t *testing.T) {
	m, settings := testMerchant(t)
	settings.SyncLookbackDays = 7
	source := &fakeOrderSource{pageSize: 10}
	r := NewOrderReconciler(&fakeOrderRepo{}, zap.NewNop())

	before := time.Now().AddDate(0, 0, -7)
	outcome := r.Reconcile(context.Background(), m, settings, source, nil, 0)
	after := time.Now().AddDate(0, 0, -7)

	require.NoError(t, outcome.Err)
	require.Len(t, source.gotOpts, 1)
	min := source.gotOpts[0].UpdatedAtMin
	require.NotNil(t, min)
	assert.False(t, min.Before(before))
	assert.False(t, min.After(after))
	// Nothing fetched, nothing incorporated
	assert.Nil(t, outcome.Watermark)
}

func TestOrderReconcilerResumesFromWatermark(t *testing.T) {
	m, settings := testMerchant(t)
	watermark := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	source := &fakeOrderSource{pageSize: 10}
	r := NewOrderReconciler(&fakeOrderRepo{}, zap.NewNop())

	outcome := r.Reconcile(context.Background(), m, settings, source, &watermark, 0)

	require.NoError(t, outcome.Err)
	require.Len(t, source.gotOpts, 1)
	require.NotNil(t, source.gotOpts[0].UpdatedAtMin)
	assert.True(t, source.gotOpts[0].UpdatedAtMin.Equal(watermark))
}

func TestOrderReconcilerForwardsPageLimit(t *testing.T) {
	m, settings := testMerchant(t)
	source := &fakeOrderSource{pageSize: 10}
	r := NewOrderReconciler(&fakeOrderRepo{}, zap.NewNop())

	outcome := r.Reconcile(context.Background(), m, settings, source, nil, 50)

	require.NoError(t, outcome.Err)
	require.Len(t, source.gotOpts, 1)
	assert.Equal(t, 50, source.gotOpts[0].Limit)
}

func TestOrderReconcilerPartialDoesNotAdvanceWatermark(t *testing.T) {
	m, settings := testMerchant(t)
	t1 := time.Date(2026, 8, 10, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(2 * time.Hour)
	// The unfetched order 3 has a higher id but an earlier updated_at
	// than committed order 2; a watermark taken from the committed pages
	// would filter it out of every future run
	t3 := t1.Add(time.Hour)

	source := &fakeOrderSource{
		pageSize: 2,
		orders: []shopify.Order{
			wireOrder(1, "20.00", t1),
			wireOrder(2, "30.00", t2),
			wireOrder(3, "40.00", t3),
		},
	}
	repo := &fakeOrderRepo{failOnPage: 2}
	r := NewOrderReconciler(repo, zap.NewNop())

	outcome := r.Reconcile(context.Background(), m, settings, source, nil, 0)

	require.Error(t, outcome.Err)
	assert.Equal(t, 1, outcome.Pages)
	// Committed rows stay, but the next run must re-filter from the
	// previous watermark so order 3 is still picked up
	assert.Nil(t, outcome.Watermark)
}

func TestOrderReconcilerFailureBeforeAnyPage(t *testing.T) {
	m, settings := testMerchant(t)
	source := &fakeOrderSource{pageSize: 2, failOnPage: 1}
	r := NewOrderReconciler(&fakeOrderRepo{}, zap.NewNop())

	outcome := r.Reconcile(context.Background(), m, settings, source, nil, 0)

	require.Error(t, outcome.Err)
	assert.Zero(t, outcome.Pages)
	assert.Nil(t, outcome.Watermark)
}

func TestOrderReconcilerMalformedOrderSkipsWholeOrder(t *testing.T) {
	m, settings := testMerchant(t)
	t1 := time.Date(2026, 8, 10, 10, 0, 0, 0, time.UTC)
	bad := wireOrder(2, "30.00", t1.Add(time.Hour))
	bad.TotalPrice = "thirty dollars"

	source := &fakeOrderSource{
		pageSize: 10,
		orders:   []shopify.Order{wireOrder(1, "20.00", t1), bad},
	}
	repo := &fakeOrderRepo{}
	r := NewOrderReconciler(repo, zap.NewNop())

	outcome := r.Reconcile(context.Background(), m, settings, source, nil, 0)

	require.NoError(t, outcome.Err)
	require.Len(t, repo.pages, 1)
	assert.Len(t, repo.pages[0], 1)
	require.Len(t, outcome.Exceptions, 1)
	assert.Equal(t, domainsync.ExceptionMalformedRecord, outcome.Exceptions[0].Kind)
	assert.Equal(t, "2", outcome.Exceptions[0].ExternalID)

	// The malformed order does not contribute to the watermark
	require.NotNil(t, outcome.Watermark)
	assert.True(t, outcome.Watermark.Equal(t1))
}

func TestOrderReconcilerBadLinePriceSkipsLineOnly(t *testing.T) {
	m, settings := testMerchant(t)
	t1 := time.Date(2026, 8, 10, 10, 0, 0, 0, time.UTC)
	o := wireOrder(1, "20.00", t1)
	o.LineItems = append(o.LineItems, shopify.LineItem{ID: 99, Title: "bad", Price: "free", Quantity: 1})

	source := &fakeOrderSource{pageSize: 10, orders: []shopify.Order{o}}
	repo := &fakeOrderRepo{}
	r := NewOrderReconciler(repo, zap.NewNop())

	outcome := r.Reconcile(context.Background(), m, settings, source, nil, 0)

	require.NoError(t, outcome.Err)
	require.Len(t, repo.pages, 1)
	require.Len(t, repo.pages[0], 1)
	assert.Len(t, repo.pages[0][0].Lines, 1)
	require.Len(t, outcome.Exceptions, 1)
	assert.Equal(t, "99", outcome.Exceptions[0].ExternalID)
}
