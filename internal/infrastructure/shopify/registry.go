package shopify

import (
	"sync"

	"github.com/google/uuid"

	"github.com/shopmargin/backend/internal/domain/merchant"
)

// Registry resolves per-merchant API clients. Each merchant carries its own
// store domain and access token; defaults fill in the operational knobs
// (page size, timeouts, retries) that merchants do not configure.
type Registry struct {
	defaults Config

	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
}

// NewRegistry creates a registry with the given default settings
func NewRegistry(defaults Config) *Registry {
	return &Registry{
		defaults: defaults,
		clients:  make(map[uuid.UUID]*Client),
	}
}

// ForMerchant returns the client for a merchant, building and caching it on
// first use. The cache is invalidated when credentials change via Evict.
func (r *Registry) ForMerchant(m *merchant.Merchant) (*Client, error) {
	r.mu.RLock()
	client, ok := r.clients[m.ID]
	r.mu.RUnlock()
	if ok {
		return client, nil
	}

	cfg := r.defaults
	cfg.StoreDomain = m.ShopDomain
	cfg.BaseURL = ""
	if m.AccessToken != "" {
		cfg.AccessToken = m.AccessToken
	}
	if m.APIVersion != "" {
		cfg.APIVersion = m.APIVersion
	}

	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.clients[m.ID] = client
	r.mu.Unlock()
	return client, nil
}

// Evict drops a cached client, forcing a rebuild on next use
func (r *Registry) Evict(merchantID uuid.UUID) {
	r.mu.Lock()
	delete(r.clients, merchantID)
	r.mu.Unlock()
}
