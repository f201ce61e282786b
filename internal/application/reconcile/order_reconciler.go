package reconcile

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shopmargin/backend/internal/domain/merchant"
	"github.com/shopmargin/backend/internal/domain/order"
	"github.com/shopmargin/backend/internal/domain/shared"
	domainsync "github.com/shopmargin/backend/internal/domain/sync"
	"github.com/shopmargin/backend/internal/infrastructure/shopify"
)

// OrderReconciler pulls orders updated since the merchant's watermark.
// Pages commit one at a time in since_id order, which carries no updated_at
// ordering: an unfetched higher-id order can hold a lower updated_at than
// anything already committed. A mid-run failure therefore keeps the
// committed rows but reports no watermark, so the next run re-filters from
// the previous one. Re-fetching an already stored order is harmless:
// upserts are last-write-wins per order. Only a clean full pass, which by
// construction fetched everything above the filter, may advance the
// watermark to the max updated_at observed.
type OrderReconciler struct {
	orderRepo order.Repository
	logger    *zap.Logger
}

// NewOrderReconciler creates an order reconciler
func NewOrderReconciler(orderRepo order.Repository, logger *zap.Logger) *OrderReconciler {
	return &OrderReconciler{
		orderRepo: orderRepo,
		logger:    logger,
	}
}

// Reconcile runs one incremental order pass. watermark is the boundary of
// the last run that advanced one; nil means the merchant has never synced
// and the settings lookback window applies instead. A positive limit caps
// the page size for this run.
func (r *OrderReconciler) Reconcile(ctx context.Context, m *merchant.Merchant, settings *merchant.AppSettings, source OrderSource, watermark *time.Time, limit int) Outcome {
	var outcome Outcome

	updatedAtMin := watermark
	if updatedAtMin == nil {
		lookback := time.Now().AddDate(0, 0, -settings.SyncLookbackDays)
		updatedAtMin = &lookback
	}

	// candidate only becomes the outcome watermark after a clean full pass
	var candidate *time.Time

	sinceID := int64(0)
	for {
		if err := ctx.Err(); err != nil {
			outcome.Err = err
			return outcome
		}

		page, err := source.ListOrders(ctx, shopify.OrderListOptions{
			SinceID:      sinceID,
			UpdatedAtMin: updatedAtMin,
			Limit:        limit,
		})
		if err != nil {
			outcome.Err = fmt.Errorf("list orders since %d: %w", sinceID, err)
			return outcome
		}
		if len(page) == 0 {
			break
		}

		orders, pageMax := r.convertPage(m, page, &outcome)

		result, err := r.orderRepo.UpsertPage(ctx, m.ID, orders)
		if err != nil {
			outcome.Err = fmt.Errorf("upsert orders: %w", err)
			return outcome
		}
		outcome.Created += result.Created
		outcome.Updated += result.Updated
		outcome.Pages++

		if pageMax != nil && (candidate == nil || pageMax.After(*candidate)) {
			candidate = pageMax
		}
		sinceID = page[len(page)-1].ID
	}

	outcome.Watermark = candidate
	return outcome
}

// convertPage turns wire orders into store rows. A malformed order is
// recorded and skipped; the page still commits.
func (r *OrderReconciler) convertPage(m *merchant.Merchant, page []shopify.Order, outcome *Outcome) ([]*order.Order, *time.Time) {
	orders := make([]*order.Order, 0, len(page))
	var pageMax *time.Time

	for _, src := range page {
		if src.ID <= 0 {
			outcome.addException(domainsync.ExceptionMalformedRecord, "", "order without a positive ID")
			continue
		}
		externalID := strconv.FormatInt(src.ID, 10)

		o := &order.Order{
			BaseEntity:      shared.NewBaseEntity(),
			MerchantID:      m.ID,
			ShopifyOrderID:  src.ID,
			Name:            src.Name,
			ProcessedAt:     src.ProcessedAt,
			Currency:        src.Currency,
			FinancialStatus: src.FinancialStatus,
			CancelledAt:     src.CancelledAt,
			SourceUpdatedAt: src.UpdatedAt,
		}

		malformed := false
		assign := func(field string, raw string, dst **decimal.Decimal) {
			if raw == "" {
				return
			}
			value, err := decimal.NewFromString(raw)
			if err != nil {
				outcome.addException(domainsync.ExceptionMalformedRecord, externalID,
					fmt.Sprintf("unparseable %s %q", field, raw))
				malformed = true
				return
			}
			*dst = &value
		}
		assign("subtotal_price", src.SubtotalPrice, &o.SubtotalPrice)
		assign("total_price", src.TotalPrice, &o.TotalPrice)
		assign("total_discounts", src.TotalDiscounts, &o.TotalDiscounts)
		assign("total_shipping", src.TotalShipping.ShopMoney.Amount, &o.TotalShipping)
		assign("total_tax", src.TotalTax, &o.TotalTax)
		if malformed {
			continue
		}

		for _, item := range src.LineItems {
			price, err := decimal.NewFromString(item.Price)
			if err != nil {
				outcome.addException(domainsync.ExceptionMalformedRecord,
					strconv.FormatInt(item.ID, 10),
					fmt.Sprintf("unparseable line price %q", item.Price))
				continue
			}
			line := order.Line{
				BaseEntity:        shared.NewBaseEntity(),
				MerchantID:        m.ID,
				ShopifyLineItemID: item.ID,
				Title:             item.Title,
				SKU:               item.SKU,
				Quantity:          item.Quantity,
				Price:             price,
			}
			if item.ProductID != nil {
				line.ShopifyProductID = *item.ProductID
			}
			if item.VariantID != nil {
				line.ShopifyVariantID = *item.VariantID
			}
			o.Lines = append(o.Lines, line)
		}

		orders = append(orders, o)
		if pageMax == nil || src.UpdatedAt.After(*pageMax) {
			updatedAt := src.UpdatedAt
			pageMax = &updatedAt
		}
	}

	if len(orders) > 0 {
		r.logger.Debug("converted order page",
			zap.String("merchant_id", m.ID.String()),
			zap.Int("orders", len(orders)),
		)
	}
	return orders, pageMax
}
