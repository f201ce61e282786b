package shopify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.Handler, mutate ...func(*Config)) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := Config{
		BaseURL:      server.URL,
		AccessToken:  "shpat_test",
		APIVersion:   "2025-10",
		PageSize:     2,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	client, err := NewClient(cfg)
	require.NoError(t, err)
	return client
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{AccessToken: "t", APIVersion: "v"}
	require.Error(t, cfg.Validate(), "store domain required")

	cfg = Config{StoreDomain: "demo", APIVersion: "v"}
	require.Error(t, cfg.Validate(), "access token required")

	cfg = Config{StoreDomain: "demo", AccessToken: "t", APIVersion: "v", PageSize: 9999}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, MaxPageSize, cfg.PageSize)
}

func TestBaseURLDerivation(t *testing.T) {
	client, err := NewClient(Config{StoreDomain: "demo", AccessToken: "t", APIVersion: "2025-10"})
	require.NoError(t, err)
	assert.Equal(t, "https://demo.myshopify.com/admin/api/2025-10", client.baseURL())

	client, err = NewClient(Config{StoreDomain: "demo.myshopify.com", AccessToken: "t", APIVersion: "2025-10"})
	require.NoError(t, err)
	assert.Equal(t, "https://demo.myshopify.com/admin/api/2025-10", client.baseURL())
}

func TestListProductsPagination(t *testing.T) {
	var requests []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.RawQuery)
		assert.Equal(t, "shpat_test", r.Header.Get("X-Shopify-Access-Token"))
		assert.Equal(t, "/products.json", r.URL.Path)

		sinceID, _ := strconv.ParseInt(r.URL.Query().Get("since_id"), 10, 64)
		all := []Product{{ID: 1, Title: "A"}, {ID: 2, Title: "B"}, {ID: 3, Title: "C"}}
		var page []Product
		for _, p := range all {
			if p.ID > sinceID && len(page) < 2 {
				page = append(page, p)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"products": page})
	})
	client := testClient(t, handler)

	page, err := client.ListProducts(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(2), page[1].ID)

	page, err = client.ListProducts(context.Background(), 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "C", page[0].Title)

	page, err = client.ListProducts(context.Background(), 3, 0)
	require.NoError(t, err)
	assert.Empty(t, page)

	require.Len(t, requests, 3)
	assert.Contains(t, requests[0], "limit=2")
	assert.NotContains(t, requests[0], "since_id")
	assert.Contains(t, requests[1], "since_id=2")
}

func TestPageLimitOverride(t *testing.T) {
	var queries []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)
		_ = json.NewEncoder(w).Encode(map[string]any{"products": []Product{}, "orders": []Order{}})
	})
	client := testClient(t, handler) // configured page size 2

	_, err := client.ListProducts(context.Background(), 0, 1)
	require.NoError(t, err)
	_, err = client.ListProducts(context.Background(), 0, MaxPageSize+50)
	require.NoError(t, err)
	_, err = client.ListOrders(context.Background(), OrderListOptions{Limit: 5})
	require.NoError(t, err)

	require.Len(t, queries, 3)
	assert.Contains(t, queries[0], "limit=1")
	// Oversized overrides clamp to the API's hard cap
	assert.Contains(t, queries[1], "limit="+strconv.Itoa(MaxPageSize))
	assert.Contains(t, queries[2], "limit=5")
}

func TestListOrdersQuery(t *testing.T) {
	var query string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		assert.Equal(t, "/orders.json", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"orders": []Order{}})
	})
	client := testClient(t, handler)

	watermark := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	_, err := client.ListOrders(context.Background(), OrderListOptions{
		SinceID:      7,
		UpdatedAtMin: &watermark,
	})
	require.NoError(t, err)

	// Cancelled orders must be observed, so status defaults to any
	assert.Contains(t, query, "status=any")
	assert.Contains(t, query, "since_id=7")
	assert.Contains(t, query, "updated_at_min=2026-08-20T12%3A00%3A00Z")
}

func TestListInventoryItemsChunks(t *testing.T) {
	var idParams []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/inventory_items.json", r.URL.Path)
		ids := r.URL.Query().Get("ids")
		idParams = append(idParams, ids)
		_ = json.NewEncoder(w).Encode(map[string]any{"inventory_items": []InventoryItem{{ID: 1}}})
	})
	client := testClient(t, handler) // page size 2

	items, err := client.ListInventoryItems(context.Background(), []int64{101, 102, 103})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	require.Equal(t, []string{"101,102", "103"}, idParams)
}

func TestRateLimitRetry(t *testing.T) {
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0.01")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"products": []Product{{ID: 1}}})
	})
	client := testClient(t, handler)

	page, err := client.ListProducts(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, page, 1)
	assert.Equal(t, 2, calls)
}

func TestRateLimitExhaustsRetries(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	client := testClient(t, handler)

	_, err := client.ListProducts(context.Background(), 0, 0)
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestUnauthorized(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	client := testClient(t, handler)

	_, err := client.ListProducts(context.Background(), 0, 0)
	require.ErrorIs(t, err, ErrAuthentication)
}

func TestAPIErrorCarriesBody(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":{"page":"not found"}}`))
	})
	client := testClient(t, handler)

	_, err := client.ListProducts(context.Background(), 0, 0)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "not found")
}

func TestContextCancelDuringBackoff(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	client := testClient(t, handler, func(cfg *Config) {
		cfg.RetryBackoff = time.Hour
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.ListProducts(ctx, 0, 0)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
