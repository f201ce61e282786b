package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopmargin/backend/internal/domain/margin"
	"github.com/shopmargin/backend/internal/domain/merchant"
	"github.com/shopmargin/backend/internal/domain/shared"
)

// MarginCalculator computes a margin report over an order window
type MarginCalculator interface {
	Compute(ctx context.Context, merchantID uuid.UUID, settings *merchant.AppSettings, from, to time.Time) (*margin.Report, error)
}

// MarginHandler exposes on-demand margin reports
type MarginHandler struct {
	BaseHandler
	merchantRepo merchant.Repository
	settingsRepo merchant.SettingsRepository
	calculator   MarginCalculator
}

// NewMarginHandler creates a new MarginHandler
func NewMarginHandler(merchantRepo merchant.Repository, settingsRepo merchant.SettingsRepository, calculator MarginCalculator) *MarginHandler {
	return &MarginHandler{
		merchantRepo: merchantRepo,
		settingsRepo: settingsRepo,
		calculator:   calculator,
	}
}

// RegisterRoutes registers margin routes on the given group
func (h *MarginHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/merchants/:merchantID/margin", h.GetReport)
}

// GetReport computes margins for a merchant over a processed-at window.
// Window bounds default to the merchant's configured lookback ending now.
func (h *MarginHandler) GetReport(c *gin.Context) {
	merchantID, err := getMerchantID(c)
	if err != nil {
		h.BadRequest(c, "Invalid merchant ID")
		return
	}

	ctx := c.Request.Context()
	if _, err := h.merchantRepo.FindByID(ctx, merchantID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.NotFound(c, "Merchant not found")
			return
		}
		h.HandleError(c, err)
		return
	}

	settings, err := h.settingsRepo.FindByMerchant(ctx, merchantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	to := time.Now().UTC()
	if raw := c.Query("to"); raw != "" {
		to, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			h.BadRequest(c, "Invalid 'to' timestamp, expected RFC3339")
			return
		}
	}

	from := to.AddDate(0, 0, -settings.SyncLookbackDays)
	if raw := c.Query("from"); raw != "" {
		from, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			h.BadRequest(c, "Invalid 'from' timestamp, expected RFC3339")
			return
		}
	}
	if !from.Before(to) {
		h.BadRequest(c, "'from' must be before 'to'")
		return
	}

	report, err := h.calculator.Compute(ctx, merchantID, settings, from, to)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, report)
}
