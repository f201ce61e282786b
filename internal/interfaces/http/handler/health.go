package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopmargin/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Pinger checks connectivity to the backing store
type Pinger interface {
	Ping() error
}

// SchedulerState reports the sync scheduler's liveness
type SchedulerState interface {
	Running() bool
	InFlight() int
}

// HealthHandler serves the liveness endpoint
type HealthHandler struct {
	db    Pinger
	sched SchedulerState
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db Pinger, sched SchedulerState) *HealthHandler {
	return &HealthHandler{db: db, sched: sched}
}

// Check reports overall health. Unreachable database or a stopped
// scheduler both degrade the status to 503.
func (h *HealthHandler) Check(c *gin.Context) {
	reqLog := logger.GetGinLogger(c)

	status := http.StatusOK
	body := gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.db.Ping(); err != nil {
		reqLog.Warn("Health check failed", zap.Error(err))
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["database"] = "error"
	} else {
		body["database"] = "ok"
	}

	if h.sched != nil {
		if h.sched.Running() {
			body["scheduler"] = "running"
			body["in_flight"] = h.sched.InFlight()
		} else {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["scheduler"] = "stopped"
		}
	}

	c.JSON(status, body)
}
