package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shopmargin/backend/internal/domain/catalog"
	"github.com/shopmargin/backend/internal/domain/merchant"
	domainsync "github.com/shopmargin/backend/internal/domain/sync"
	"github.com/shopmargin/backend/internal/infrastructure/shopify"
)

// CatalogReconciler mirrors the platform catalog into the store. Each run
// is a full pass over the product list: pages are upserted as they arrive
// (products, then variants, then inventory items, so referenced rows land
// before their referrers), and rows absent from a complete pass are
// soft-deleted at the end. An interrupted pass never soft-deletes.
type CatalogReconciler struct {
	catalogRepo catalog.Repository
	costRepo    catalog.CostRepository
	logger      *zap.Logger
}

// NewCatalogReconciler creates a catalog reconciler
func NewCatalogReconciler(catalogRepo catalog.Repository, costRepo catalog.CostRepository, logger *zap.Logger) *CatalogReconciler {
	return &CatalogReconciler{
		catalogRepo: catalogRepo,
		costRepo:    costRepo,
		logger:      logger,
	}
}

// Reconcile runs one full catalog pass for a merchant. A positive limit
// caps the page size for this run; zero uses the source's configured size.
func (r *CatalogReconciler) Reconcile(ctx context.Context, m *merchant.Merchant, settings *merchant.AppSettings, source CatalogSource, limit int) Outcome {
	var outcome Outcome
	var seenProducts, seenVariants, seenItems []int64

	sinceID := int64(0)
	for {
		if err := ctx.Err(); err != nil {
			outcome.Err = err
			return outcome
		}

		page, err := source.ListProducts(ctx, sinceID, limit)
		if err != nil {
			outcome.Err = fmt.Errorf("list products since %d: %w", sinceID, err)
			return outcome
		}
		if len(page) == 0 {
			break
		}

		products, variants, itemVariants := r.convertPage(m, page, &outcome)

		result, err := r.catalogRepo.UpsertProducts(ctx, m.ID, products)
		if err != nil {
			outcome.Err = fmt.Errorf("upsert products: %w", err)
			return outcome
		}
		outcome.Created += result.Created
		outcome.Updated += result.Updated

		result, err = r.catalogRepo.UpsertVariants(ctx, m.ID, variants)
		if err != nil {
			outcome.Err = fmt.Errorf("upsert variants: %w", err)
			return outcome
		}
		outcome.Created += result.Created
		outcome.Updated += result.Updated

		if err := r.syncInventoryItems(ctx, m, settings, source, itemVariants, &outcome); err != nil {
			outcome.Err = err
			return outcome
		}

		for _, p := range products {
			seenProducts = append(seenProducts, p.ShopifyProductID)
		}
		for _, v := range variants {
			seenVariants = append(seenVariants, v.ShopifyVariantID)
		}
		for id := range itemVariants {
			seenItems = append(seenItems, id)
		}

		outcome.Pages++
		sinceID = page[len(page)-1].ID
	}

	// The pass completed without error, so anything unseen is gone upstream
	now := time.Now()
	deleted, err := r.catalogRepo.SoftDeleteProductsNotIn(ctx, m.ID, seenProducts, now)
	if err != nil {
		outcome.Err = fmt.Errorf("soft delete products: %w", err)
		return outcome
	}
	outcome.SoftDeleted += int(deleted)

	deleted, err = r.catalogRepo.SoftDeleteVariantsNotIn(ctx, m.ID, seenVariants, now)
	if err != nil {
		outcome.Err = fmt.Errorf("soft delete variants: %w", err)
		return outcome
	}
	outcome.SoftDeleted += int(deleted)

	deleted, err = r.catalogRepo.SoftDeleteInventoryItemsNotIn(ctx, m.ID, seenItems, now)
	if err != nil {
		outcome.Err = fmt.Errorf("soft delete inventory items: %w", err)
		return outcome
	}
	outcome.SoftDeleted += int(deleted)

	return outcome
}

// convertPage turns wire products into store rows. A malformed record is
// recorded and skipped; it never fails the page. The returned map carries
// each referenced inventory item ID to its owning variant.
func (r *CatalogReconciler) convertPage(m *merchant.Merchant, page []shopify.Product, outcome *Outcome) ([]*catalog.Product, []*catalog.Variant, map[int64]int64) {
	products := make([]*catalog.Product, 0, len(page))
	variants := make([]*catalog.Variant, 0)
	itemVariants := make(map[int64]int64)

	for _, src := range page {
		if src.ID <= 0 {
			outcome.addException(domainsync.ExceptionMalformedRecord, "", "product without a positive ID")
			continue
		}

		p := catalog.NewProduct(m.ID, src.ID, src.Title)
		p.ProductType = src.ProductType
		p.Vendor = src.Vendor
		p.Status = src.Status
		products = append(products, p)

		for _, sv := range src.Variants {
			if sv.ID <= 0 {
				outcome.addException(domainsync.ExceptionMalformedRecord,
					strconv.FormatInt(src.ID, 10), "variant without a positive ID")
				continue
			}

			price, err := decimal.NewFromString(sv.Price)
			if err != nil {
				outcome.addException(domainsync.ExceptionMalformedRecord,
					strconv.FormatInt(sv.ID, 10),
					fmt.Sprintf("unparseable variant price %q", sv.Price))
				continue
			}

			v := catalog.NewVariant(m.ID, sv.ID, src.ID)
			v.ShopifyInventoryItemID = sv.InventoryItemID
			v.SKU = sv.SKU
			v.Title = sv.Title
			v.Barcode = sv.Barcode
			v.Price = price
			variants = append(variants, v)

			if sv.InventoryItemID > 0 {
				itemVariants[sv.InventoryItemID] = sv.ID
			}
		}
	}

	return products, variants, itemVariants
}

// syncInventoryItems fetches and upserts the cost-bearing items referenced
// by one page of variants, appending cost ledger entries when the platform
// cost changed
func (r *CatalogReconciler) syncInventoryItems(ctx context.Context, m *merchant.Merchant, settings *merchant.AppSettings, source CatalogSource, itemVariants map[int64]int64, outcome *Outcome) error {
	if len(itemVariants) == 0 {
		return nil
	}

	itemIDs := make([]int64, 0, len(itemVariants))
	for id := range itemVariants {
		itemIDs = append(itemIDs, id)
	}

	items, err := source.ListInventoryItems(ctx, itemIDs)
	if err != nil {
		return fmt.Errorf("list inventory items: %w", err)
	}

	rows := make([]*catalog.InventoryItem, 0, len(items))
	for _, src := range items {
		if src.ID <= 0 {
			outcome.addException(domainsync.ExceptionMalformedRecord, "", "inventory item without a positive ID")
			continue
		}
		row := catalog.NewInventoryItem(m.ID, src.ID, itemVariants[src.ID])
		row.Tracked = src.Tracked
		rows = append(rows, row)
	}

	result, err := r.catalogRepo.UpsertInventoryItems(ctx, m.ID, rows)
	if err != nil {
		return fmt.Errorf("upsert inventory items: %w", err)
	}
	outcome.Created += result.Created
	outcome.Updated += result.Updated

	for _, src := range items {
		if src.ID <= 0 || src.Cost == nil {
			continue
		}
		r.recordCost(ctx, m, settings, src, outcome)
	}
	return nil
}

// recordCost appends a ledger entry when the platform-reported cost differs
// from the latest known one. The ledger is append-only: a changed cost is a
// new entry effective at the platform's update time, never a correction in
// place.
func (r *CatalogReconciler) recordCost(ctx context.Context, m *merchant.Merchant, settings *merchant.AppSettings, src shopify.InventoryItem, outcome *Outcome) {
	externalID := strconv.FormatInt(src.ID, 10)

	cost, err := decimal.NewFromString(*src.Cost)
	if err != nil {
		outcome.addException(domainsync.ExceptionMalformedRecord, externalID,
			fmt.Sprintf("unparseable inventory cost %q", *src.Cost))
		return
	}

	latest, err := r.costRepo.CostAt(ctx, m.ID, src.ID, time.Now())
	if err != nil {
		outcome.addException(domainsync.ExceptionMalformedRecord, externalID,
			fmt.Sprintf("cost lookup failed: %v", err))
		return
	}
	if latest != nil && latest.Cost.Equal(cost) {
		return
	}

	effectiveAt := src.UpdatedAt
	if effectiveAt.IsZero() {
		effectiveAt = time.Now()
	}

	entry, err := catalog.NewCostEntry(m.ID, src.ID, cost, settings.DefaultCurrency, effectiveAt, catalog.CostEntrySourceShopify)
	if err != nil {
		outcome.addException(domainsync.ExceptionMalformedRecord, externalID, err.Error())
		return
	}

	if err := r.costRepo.Append(ctx, entry); err != nil {
		if errors.Is(err, catalog.ErrDuplicateCostEntry) {
			outcome.addException(domainsync.ExceptionDuplicateCost, externalID,
				fmt.Sprintf("cost entry at %s already exists", effectiveAt.Format(time.RFC3339)))
			return
		}
		outcome.addException(domainsync.ExceptionMalformedRecord, externalID,
			fmt.Sprintf("cost append failed: %v", err))
		return
	}

	r.logger.Debug("recorded cost change",
		zap.String("merchant_id", m.ID.String()),
		zap.Int64("inventory_item_id", src.ID),
		zap.String("cost", cost.String()),
	)
}
