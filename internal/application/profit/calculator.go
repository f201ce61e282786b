package profit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shopmargin/backend/internal/domain/catalog"
	"github.com/shopmargin/backend/internal/domain/margin"
	"github.com/shopmargin/backend/internal/domain/merchant"
	"github.com/shopmargin/backend/internal/domain/order"
)

// ratioPlaces is the rounding applied to margin ratios
const ratioPlaces = 4

// Calculator computes per-order and aggregate margins from stored orders,
// the variant map, and the point-in-time cost ledger. Reports are computed
// on demand, never stored: the inputs are the system of record.
type Calculator struct {
	orderRepo   order.Repository
	catalogRepo catalog.Repository
	costRepo    catalog.CostRepository
	rates       margin.RateProvider
	logger      *zap.Logger
}

// NewCalculator creates a margin calculator. rates may be nil; convert-mode
// merchants then have their foreign-currency orders flagged instead of
// converted.
func NewCalculator(orderRepo order.Repository, catalogRepo catalog.Repository, costRepo catalog.CostRepository, rates margin.RateProvider, logger *zap.Logger) *Calculator {
	return &Calculator{
		orderRepo:   orderRepo,
		catalogRepo: catalogRepo,
		costRepo:    costRepo,
		rates:       rates,
		logger:      logger,
	}
}

// Compute builds a margin report for one merchant over [from, to)
func (c *Calculator) Compute(ctx context.Context, merchantID uuid.UUID, settings *merchant.AppSettings, from, to time.Time) (*margin.Report, error) {
	orders, err := c.orderRepo.FindForMargin(ctx, merchantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}

	report := &margin.Report{
		MerchantID: merchantID,
		WindowFrom: from,
		WindowTo:   to,
		Orders:     make([]margin.OrderMargin, 0, len(orders)),
	}

	variantsByID, err := c.loadVariants(ctx, merchantID, orders)
	if err != nil {
		return nil, err
	}

	for i := range orders {
		o := &orders[i]
		if o.IsCancelled() {
			report.CancelledSkipped++
			continue
		}

		om := c.computeOrder(ctx, o, settings, variantsByID)
		report.Orders = append(report.Orders, om)

		if om.Error != "" {
			continue
		}
		if om.FlaggedCurrency && !om.Converted {
			report.FlaggedCurrency++
			continue
		}
		if !om.CostKnown {
			report.UnknownCost++
			continue
		}

		// Aggregates sum only fully-known orders, so the identity
		// TotalMargin = TotalRevenue - TotalCost holds
		report.OrdersCounted++
		report.TotalRevenue = report.TotalRevenue.Add(om.Revenue)
		report.TotalCost = report.TotalCost.Add(*om.Cost)
		report.TotalMargin = report.TotalMargin.Add(*om.Margin)
	}

	return report, nil
}

// computeOrder produces one order's margin line
func (c *Calculator) computeOrder(ctx context.Context, o *order.Order, settings *merchant.AppSettings, variantsByID map[int64]*catalog.Variant) margin.OrderMargin {
	om := margin.OrderMargin{
		OrderID:        o.ID,
		ShopifyOrderID: o.ShopifyOrderID,
		Name:           o.Name,
		Currency:       o.Currency,
	}

	revenue, err := c.revenue(o, settings)
	if err != nil {
		om.Error = err.Error()
		return om
	}

	// A foreign-currency order is converted when the merchant asked for
	// that and a rate exists; otherwise it is flagged and sits outside
	// the aggregates.
	if o.Currency != "" && o.Currency != settings.DefaultCurrency {
		om.FlaggedCurrency = true
		if settings.MultiCurrencyMode == merchant.MultiCurrencyConvert {
			rate, ok := c.rate(o.Currency, settings.DefaultCurrency)
			if !ok {
				om.Revenue = revenue
				return om
			}
			revenue = revenue.Mul(rate)
			om.Converted = true
		} else {
			om.Revenue = revenue
			return om
		}
	}
	om.Revenue = revenue

	cost, known := c.cost(ctx, o, settings, variantsByID)
	om.CostKnown = known
	if !known {
		return om
	}

	om.Cost = &cost
	orderMargin := revenue.Sub(cost)
	om.Margin = &orderMargin
	if !revenue.IsZero() {
		ratio := orderMargin.Div(revenue).Round(ratioPlaces)
		om.MarginRatio = &ratio
	}
	return om
}

// revenue applies the merchant's revenue basis and tax/shipping flags.
// On the subtotal basis the flags add components in; on the total basis,
// which already contains them, the flags take components out.
func (c *Calculator) revenue(o *order.Order, settings *merchant.AppSettings) (decimal.Decimal, error) {
	var base *decimal.Decimal
	switch settings.RevenueBasis {
	case merchant.RevenueBasisSubtotal:
		base = o.SubtotalPrice
	default:
		base = o.TotalPrice
	}
	if base == nil {
		return decimal.Zero, fmt.Errorf("order has no %s amount", settings.RevenueBasis)
	}

	revenue := *base
	tax := decimal.Zero
	if o.TotalTax != nil {
		tax = *o.TotalTax
	}
	shipping := decimal.Zero
	if o.TotalShipping != nil {
		shipping = *o.TotalShipping
	}

	if settings.RevenueBasis == merchant.RevenueBasisSubtotal {
		if settings.IncludeTaxes {
			revenue = revenue.Add(tax)
		}
		if settings.IncludeShipping {
			revenue = revenue.Add(shipping)
		}
	} else {
		if !settings.IncludeTaxes {
			revenue = revenue.Sub(tax)
		}
		if !settings.IncludeShipping {
			revenue = revenue.Sub(shipping)
		}
	}
	return revenue, nil
}

// cost resolves the order's cost basis line by line. Any line whose cost
// cannot be resolved makes the whole order's cost unknown; a partial sum
// would silently overstate margin.
func (c *Calculator) cost(ctx context.Context, o *order.Order, settings *merchant.AppSettings, variantsByID map[int64]*catalog.Variant) (decimal.Decimal, bool) {
	// No lines means no cost basis at all, not a zero-cost order
	if len(o.Lines) == 0 {
		return decimal.Zero, false
	}

	refTime := o.SourceUpdatedAt
	if o.ProcessedAt != nil {
		refTime = *o.ProcessedAt
	}

	total := decimal.Zero
	for i := range o.Lines {
		line := &o.Lines[i]
		if line.ShopifyVariantID == 0 {
			return decimal.Zero, false
		}
		variant := variantsByID[line.ShopifyVariantID]
		if variant == nil || variant.ShopifyInventoryItemID == 0 {
			return decimal.Zero, false
		}

		entry, err := c.costRepo.CostAt(ctx, o.MerchantID, variant.ShopifyInventoryItemID, refTime)
		if err != nil {
			c.logger.Warn("cost lookup failed",
				zap.String("merchant_id", o.MerchantID.String()),
				zap.Int64("inventory_item_id", variant.ShopifyInventoryItemID),
				zap.Error(err),
			)
			return decimal.Zero, false
		}
		if entry == nil {
			return decimal.Zero, false
		}

		unit := entry.Cost
		if entry.Currency != settings.DefaultCurrency {
			rate, ok := c.rate(entry.Currency, settings.DefaultCurrency)
			if !ok {
				return decimal.Zero, false
			}
			unit = unit.Mul(rate)
		}
		total = total.Add(unit.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total, true
}

func (c *Calculator) rate(from, to string) (decimal.Decimal, bool) {
	if c.rates == nil {
		return decimal.Decimal{}, false
	}
	return c.rates(from, to)
}

// loadVariants batch-resolves every variant referenced by the window's
// order lines in one query
func (c *Calculator) loadVariants(ctx context.Context, merchantID uuid.UUID, orders []order.Order) (map[int64]*catalog.Variant, error) {
	idSet := make(map[int64]struct{})
	for i := range orders {
		for j := range orders[i].Lines {
			if id := orders[i].Lines[j].ShopifyVariantID; id != 0 {
				idSet[id] = struct{}{}
			}
		}
	}

	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	variants, err := c.catalogRepo.FindVariantsByShopifyIDs(ctx, merchantID, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve variants: %w", err)
	}
	return variants, nil
}
