package profit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shopmargin/backend/internal/domain/merchant"
	"github.com/shopmargin/backend/internal/domain/shared"
	"github.com/shopmargin/backend/internal/domain/sync"
)

// AfterOrderSync recomputes the merchant's margin window after a
// successful order run and returns the outcome event for the outbox.
// A computation failure is logged and swallowed: the order sync itself
// succeeded and its state must not be rolled back over a report.
func (c *Calculator) AfterOrderSync(ctx context.Context, m *merchant.Merchant, settings *merchant.AppSettings, run *sync.Run) []shared.DomainEvent {
	to := time.Now()
	from := to.AddDate(0, 0, -settings.SyncLookbackDays)

	report, err := c.Compute(ctx, m.ID, settings, from, to)
	if err != nil {
		c.logger.Error("margin recomputation failed",
			zap.String("merchant_id", m.ID.String()),
			zap.String("run_id", run.ID.String()),
			zap.Error(err),
		)
		return nil
	}

	c.logger.Info("margin window recomputed",
		zap.String("merchant_id", m.ID.String()),
		zap.Int("orders_counted", report.OrdersCounted),
		zap.Int("unknown_cost", report.UnknownCost),
		zap.Int("flagged_currency", report.FlaggedCurrency),
		zap.String("total_margin", report.TotalMargin.String()),
	)

	ev := sync.NewMarginComputedEvent(
		m.ID, run.ID, from, to,
		report.OrdersCounted, report.UnknownCost, report.FlaggedCurrency,
		report.TotalRevenue.String(), report.TotalCost.String(), report.TotalMargin.String(),
	)
	return []shared.DomainEvent{ev}
}
