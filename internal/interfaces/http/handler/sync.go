package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopmargin/backend/internal/domain/shared"
	"github.com/shopmargin/backend/internal/domain/sync"
	"github.com/shopmargin/backend/internal/infrastructure/scheduler"
	"github.com/shopmargin/backend/internal/interfaces/http/dto"
	"github.com/shopmargin/backend/internal/interfaces/http/middleware"
)

// SyncRequester is the scheduler surface the handler needs
type SyncRequester interface {
	Request(ctx context.Context, merchantID uuid.UUID, kind sync.Kind, trigger sync.Trigger, limit int) (*scheduler.RequestResult, error)
	CancelRun(merchantID uuid.UUID, kind sync.Kind) bool
}

var _ SyncRequester = (*scheduler.Scheduler)(nil)

// TriggerSyncRequest identifies the merchant to sync. Limit optionally
// caps the page size for the triggered run.
type TriggerSyncRequest struct {
	MerchantID string `json:"merchant_id" binding:"required,uuid"`
	Limit      int    `json:"limit" binding:"omitempty,min=1,max=250"`
}

// CancelSyncRequest identifies the in-flight run to cancel
type CancelSyncRequest struct {
	MerchantID string `json:"merchant_id" binding:"required,uuid"`
	Kind       string `json:"kind" binding:"required,synckind"`
}

// SyncHandler exposes manual sync triggers and run inspection
type SyncHandler struct {
	BaseHandler
	requester SyncRequester
	runRepo   sync.RunRepository
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(requester SyncRequester, runRepo sync.RunRepository) *SyncHandler {
	return &SyncHandler{requester: requester, runRepo: runRepo}
}

// RegisterRoutes registers sync routes on the given group
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sync/products", h.TriggerProducts)
	rg.POST("/sync/orders", h.TriggerOrders)
	rg.POST("/sync/cancel", h.Cancel)
	rg.GET("/sync/runs", h.ListRuns)
	rg.GET("/sync/runs/:id", h.GetRun)
}

// TriggerProducts requests a catalog sync for a merchant
func (h *SyncHandler) TriggerProducts(c *gin.Context) {
	h.trigger(c, sync.KindProducts)
}

// TriggerOrders requests an order sync for a merchant
func (h *SyncHandler) TriggerOrders(c *gin.Context) {
	h.trigger(c, sync.KindOrders)
}

func (h *SyncHandler) trigger(c *gin.Context, kind sync.Kind) {
	var req TriggerSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	merchantID, err := uuid.Parse(req.MerchantID)
	if err != nil {
		h.BadRequest(c, "Invalid merchant ID")
		return
	}

	result, err := h.requester.Request(c.Request.Context(), merchantID, kind, sync.TriggerManual, req.Limit)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrNotFound):
			h.NotFound(c, "Merchant not found")
		case errors.Is(err, scheduler.ErrQueueFull):
			h.TooManyRequests(c, "Sync queue is full, retry later")
		case errors.Is(err, scheduler.ErrSchedulerNotRunning):
			h.ServiceUnavailable(c, "Sync scheduler is not running")
		case errors.Is(err, scheduler.ErrUnknownKind):
			h.BadRequest(c, "Unknown sync kind")
		default:
			h.HandleError(c, err)
		}
		return
	}

	resp := dto.TriggerSyncResponse{
		RunID:     result.Run.ID.String(),
		Kind:      string(result.Run.Kind),
		Status:    string(result.Run.Status),
		Coalesced: result.Coalesced,
	}
	// A coalesced request reports the run already in flight
	if result.Coalesced {
		h.Success(c, resp)
		return
	}
	h.Accepted(c, resp)
}

// Cancel requests cooperative cancellation of an in-flight run
func (h *SyncHandler) Cancel(c *gin.Context) {
	var req CancelSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	merchantID, err := uuid.Parse(req.MerchantID)
	if err != nil {
		h.BadRequest(c, "Invalid merchant ID")
		return
	}

	if !h.requester.CancelRun(merchantID, sync.Kind(req.Kind)) {
		h.NotFound(c, "No run in flight for this merchant and kind")
		return
	}
	h.Success(c, gin.H{"cancelled": true})
}

// GetRun returns a single sync run with its exceptions
func (h *SyncHandler) GetRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid run ID")
		return
	}

	run, err := h.runRepo.FindByID(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.NotFound(c, "Run not found")
			return
		}
		h.HandleError(c, err)
		return
	}

	h.Success(c, dto.ToRunResponse(run))
}

// ListRuns returns recent runs for a merchant, optionally filtered by kind
func (h *SyncHandler) ListRuns(c *gin.Context) {
	merchantID, err := uuid.Parse(c.Query("merchant_id"))
	if err != nil {
		h.BadRequest(c, "merchant_id query parameter is required and must be a UUID")
		return
	}

	kind := sync.Kind(c.Query("kind"))
	if kind != "" && !kind.Valid() {
		h.BadRequest(c, "Unknown sync kind")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 100 {
			h.BadRequest(c, "Limit must be between 1 and 100")
			return
		}
	}

	runs, err := h.runRepo.FindRecent(c.Request.Context(), merchantID, kind, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, dto.ToRunResponses(runs))
}
