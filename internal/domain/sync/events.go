package sync

import (
	"time"

	"github.com/google/uuid"

	"github.com/shopmargin/backend/internal/domain/shared"
)

// Event types emitted on the broker topic. Messages are keyed by merchant
// ID, so per-merchant ordering is preserved; consumers must be idempotent
// on (merchant_id, sync_kind, run_id).
const (
	EventTypeRunCompleted   = "sync.run.completed"
	EventTypeMarginComputed = "margin.report.computed"
)

// RunCompletedEvent describes the outcome of a finished sync run
type RunCompletedEvent struct {
	shared.BaseDomainEvent
	RunID       uuid.UUID  `json:"run_id"`
	Kind        Kind       `json:"sync_kind"`
	Trigger     Trigger    `json:"trigger"`
	Status      Status     `json:"status"`
	Created     int        `json:"created"`
	Updated     int        `json:"updated"`
	SoftDeleted int        `json:"soft_deleted"`
	Pages       int        `json:"pages"`
	Watermark   *time.Time `json:"watermark,omitempty"`
	Exceptions  int        `json:"exceptions"`
}

// NewRunCompletedEvent builds the outcome event for a terminal run
func NewRunCompletedEvent(run *Run) *RunCompletedEvent {
	return &RunCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRunCompleted, "SyncRun", run.ID, run.MerchantID),
		RunID:           run.ID,
		Kind:            run.Kind,
		Trigger:         run.Trigger,
		Status:          run.Status,
		Created:         run.Created,
		Updated:         run.Updated,
		SoftDeleted:     run.SoftDeleted,
		Pages:           run.Pages,
		Watermark:       run.Watermark,
		Exceptions:      len(run.Exceptions),
	}
}

// MarginComputedEvent describes a completed margin computation cycle
type MarginComputedEvent struct {
	shared.BaseDomainEvent
	RunID            uuid.UUID `json:"run_id"`
	WindowFrom       time.Time `json:"window_from"`
	WindowTo         time.Time `json:"window_to"`
	OrdersCounted    int       `json:"orders_counted"`
	UnknownCost      int       `json:"unknown_cost"`
	FlaggedCurrency  int       `json:"flagged_currency"`
	TotalRevenue     string    `json:"total_revenue"`
	TotalCost        string    `json:"total_cost"`
	TotalMargin      string    `json:"total_margin"`
}

// NewMarginComputedEvent builds the margin outcome event. Totals travel as
// decimal strings to keep the payload exact.
func NewMarginComputedEvent(merchantID, runID uuid.UUID, from, to time.Time, counted, unknown, flagged int, revenue, cost, margin string) *MarginComputedEvent {
	return &MarginComputedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeMarginComputed, "MarginReport", runID, merchantID),
		RunID:           runID,
		WindowFrom:      from,
		WindowTo:        to,
		OrdersCounted:   counted,
		UnknownCost:     unknown,
		FlaggedCurrency: flagged,
		TotalRevenue:    revenue,
		TotalCost:       cost,
		TotalMargin:     margin,
	}
}
