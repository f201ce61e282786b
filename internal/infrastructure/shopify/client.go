package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// maxResponseSize limits the response body size to prevent memory exhaustion
	maxResponseSize = 10 * 1024 * 1024 // 10MB max response
	// MaxPageSize is the API's hard limit on list page sizes
	MaxPageSize = 250
)

// Config holds connection settings for one store
type Config struct {
	// StoreDomain is either the bare store name or the full
	// *.myshopify.com domain
	StoreDomain  string
	AccessToken  string
	APIVersion   string
	PageSize     int
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	// BaseURL overrides the derived admin URL, for tests
	BaseURL string
}

// Validate checks that the config is usable and clamps the page size
func (c *Config) Validate() error {
	if c.StoreDomain == "" && c.BaseURL == "" {
		return fmt.Errorf("shopify: store domain is required")
	}
	if c.AccessToken == "" {
		return fmt.Errorf("shopify: access token is required")
	}
	if c.APIVersion == "" {
		return fmt.Errorf("shopify: API version is required")
	}
	if c.PageSize <= 0 || c.PageSize > MaxPageSize {
		c.PageSize = MaxPageSize
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	return nil
}

// Client talks to one store's Admin REST API. List endpoints paginate with
// since_id: every page is ordered by ID ascending, and the caller passes
// the last seen ID to get the next page.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a client for one store
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// PageSize returns the configured page size
func (c *Client) PageSize() int {
	return c.config.PageSize
}

// pageLimit resolves the effective page size for one request. A positive
// override wins over the configured size, capped at the API's hard limit.
func (c *Client) pageLimit(override int) int {
	if override <= 0 {
		return c.config.PageSize
	}
	if override > MaxPageSize {
		return MaxPageSize
	}
	return override
}

func (c *Client) baseURL() string {
	if c.config.BaseURL != "" {
		return strings.TrimSuffix(c.config.BaseURL, "/")
	}
	domain := c.config.StoreDomain
	if !strings.Contains(domain, ".") {
		domain += ".myshopify.com"
	}
	return fmt.Sprintf("https://%s/admin/api/%s", domain, c.config.APIVersion)
}

// ListProducts fetches one page of products with ID greater than sinceID.
// A positive limit overrides the configured page size for this request.
func (c *Client) ListProducts(ctx context.Context, sinceID int64, limit int) ([]Product, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.pageLimit(limit)))
	if sinceID > 0 {
		query.Set("since_id", strconv.FormatInt(sinceID, 10))
	}

	var envelope productsEnvelope
	if err := c.get(ctx, "/products.json", query, &envelope); err != nil {
		return nil, err
	}
	return envelope.Products, nil
}

// OrderListOptions narrows an order page request
type OrderListOptions struct {
	SinceID int64
	// UpdatedAtMin filters to orders updated at or after the watermark
	UpdatedAtMin *time.Time
	// Status defaults to "any" so cancelled orders are observed too
	Status string
	// Limit overrides the configured page size when positive
	Limit int
}

// ListOrders fetches one page of orders
func (c *Client) ListOrders(ctx context.Context, opts OrderListOptions) ([]Order, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.pageLimit(opts.Limit)))
	status := opts.Status
	if status == "" {
		status = "any"
	}
	query.Set("status", status)
	if opts.SinceID > 0 {
		query.Set("since_id", strconv.FormatInt(opts.SinceID, 10))
	}
	if opts.UpdatedAtMin != nil {
		query.Set("updated_at_min", opts.UpdatedAtMin.UTC().Format(time.RFC3339))
	}

	var envelope ordersEnvelope
	if err := c.get(ctx, "/orders.json", query, &envelope); err != nil {
		return nil, err
	}
	return envelope.Orders, nil
}

// ListInventoryItems fetches inventory items by ID, in chunks of the page
// size. This is where per-unit costs come from.
func (c *Client) ListInventoryItems(ctx context.Context, ids []int64) ([]InventoryItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	items := make([]InventoryItem, 0, len(ids))
	for start := 0; start < len(ids); start += c.config.PageSize {
		end := start + c.config.PageSize
		if end > len(ids) {
			end = len(ids)
		}

		chunk := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			chunk = append(chunk, strconv.FormatInt(id, 10))
		}

		query := url.Values{}
		query.Set("ids", strings.Join(chunk, ","))
		query.Set("limit", strconv.Itoa(c.config.PageSize))

		var envelope inventoryItemsEnvelope
		if err := c.get(ctx, "/inventory_items.json", query, &envelope); err != nil {
			return nil, err
		}
		items = append(items, envelope.InventoryItems...)
	}
	return items, nil
}

// get performs one GET with rate-limit retries
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	requestURL := c.baseURL() + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		body, retryAfter, err := c.doOnce(ctx, requestURL)
		if err == nil {
			if jsonErr := json.Unmarshal(body, out); jsonErr != nil {
				return fmt.Errorf("shopify: failed to parse response: %w", jsonErr)
			}
			return nil
		}

		if err != ErrRateLimited || attempt >= c.config.MaxRetries {
			return err
		}

		delay := c.config.RetryBackoff * time.Duration(1<<uint(attempt))
		if retryAfter > delay {
			delay = retryAfter
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// doOnce performs a single request. On 429 it returns ErrRateLimited and
// the server's Retry-After hint.
func (c *Client) doOnce(ctx context.Context, requestURL string) ([]byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("shopify: failed to create request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.config.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, 0, fmt.Errorf("shopify: failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, 0, ErrAuthentication
	case resp.StatusCode >= 400:
		return nil, 0, &APIError{StatusCode: resp.StatusCode, Body: apiErrorBody(body)}
	}

	return body, 0, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(header, 64)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func apiErrorBody(body []byte) string {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Errors != nil {
		if msg, err := json.Marshal(envelope.Errors); err == nil {
			return string(msg)
		}
	}
	return string(body)
}
