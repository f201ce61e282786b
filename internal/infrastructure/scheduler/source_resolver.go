package scheduler

import (
	"github.com/shopmargin/backend/internal/domain/merchant"
	"github.com/shopmargin/backend/internal/infrastructure/shopify"
)

// registryResolver adapts the shopify client registry to the scheduler's
// SourceResolver interface
type registryResolver struct {
	registry *shopify.Registry
}

// NewRegistryResolver wraps a shopify registry as a SourceResolver
func NewRegistryResolver(registry *shopify.Registry) SourceResolver {
	return &registryResolver{registry: registry}
}

func (r *registryResolver) ForMerchant(m *merchant.Merchant) (PlatformSource, error) {
	return r.registry.ForMerchant(m)
}
