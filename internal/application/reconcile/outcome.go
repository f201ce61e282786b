package reconcile

import (
	"context"
	"time"

	"github.com/shopmargin/backend/internal/domain/sync"
	"github.com/shopmargin/backend/internal/infrastructure/shopify"
)

// CatalogSource is the slice of the platform API the catalog reconciler
// consumes. Satisfied by *shopify.Client; tests substitute fakes.
type CatalogSource interface {
	// ListProducts fetches one id-ascending page; a positive limit
	// overrides the source's configured page size
	ListProducts(ctx context.Context, sinceID int64, limit int) ([]shopify.Product, error)
	ListInventoryItems(ctx context.Context, ids []int64) ([]shopify.InventoryItem, error)
}

// OrderSource is the slice of the platform API the order reconciler consumes
type OrderSource interface {
	ListOrders(ctx context.Context, opts shopify.OrderListOptions) ([]shopify.Order, error)
}

// ExceptionNote is one skipped unit of work observed during a run. The
// reconciler records notes instead of writing to the run directly; the
// scheduler owns run state.
type ExceptionNote struct {
	Kind       sync.ExceptionKind
	ExternalID string
	Message    string
}

// Outcome is what a reconciler hands back to the scheduler. Err being
// non-nil with Pages > 0 means a partial run: the committed pages are
// durable but Watermark stays nil because the fetch order does not
// guarantee updated_at coverage.
type Outcome struct {
	Pages       int
	Created     int
	Updated     int
	SoftDeleted int
	// Watermark is the updated_at boundary fully incorporated, nil when
	// the run incorporated nothing new
	Watermark  *time.Time
	Exceptions []ExceptionNote
	Err        error
}

func (o *Outcome) addException(kind sync.ExceptionKind, externalID, message string) {
	o.Exceptions = append(o.Exceptions, ExceptionNote{
		Kind:       kind,
		ExternalID: externalID,
		Message:    message,
	})
}
