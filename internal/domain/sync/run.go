package sync

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shopmargin/backend/internal/domain/shared"
)

// Kind identifies which reconciler a run executes
type Kind string

const (
	KindProducts Kind = "products"
	KindOrders   Kind = "orders"
)

// Valid reports whether the kind is one the scheduler knows
func (k Kind) Valid() bool {
	return k == KindProducts || k == KindOrders
}

// Trigger identifies what started a run
type Trigger string

const (
	TriggerCron   Trigger = "cron"
	TriggerManual Trigger = "manual"
)

// Status represents the lifecycle state of a sync run
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSuccess   Status = "SUCCESS"
	StatusPartial   Status = "PARTIAL"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// ExceptionKind classifies data-class problems recorded on a run
type ExceptionKind string

const (
	ExceptionMalformedRecord  ExceptionKind = "malformed_record"
	ExceptionDuplicateCost    ExceptionKind = "duplicate_cost_entry"
	ExceptionCurrencyMismatch ExceptionKind = "currency_mismatch"
	ExceptionMissingRate      ExceptionKind = "missing_conversion_rate"
)

// Exception is one skipped unit recorded against a run. The run proceeds;
// the exception keeps the skip observable instead of silent.
type Exception struct {
	shared.BaseEntity
	RunID      uuid.UUID     `gorm:"type:uuid;not null;index"`
	MerchantID uuid.UUID     `gorm:"type:uuid;not null;index"`
	Kind       ExceptionKind `gorm:"type:varchar(40);not null"`
	ExternalID string        `gorm:"type:varchar(50)"`
	Message    string        `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (Exception) TableName() string {
	return "sync_run_exceptions"
}

// Run records one reconciliation execution for a merchant. The scheduler is
// the only writer; reconcilers hand it a structured outcome and the
// scheduler decides status and watermark.
type Run struct {
	shared.BaseEntity
	MerchantID uuid.UUID `gorm:"type:uuid;not null;index:idx_sync_runs_merchant_kind"`
	Kind       Kind      `gorm:"type:varchar(20);not null;index:idx_sync_runs_merchant_kind"`
	Trigger    Trigger   `gorm:"type:varchar(20);not null"`
	// PageLimit caps the page size for this run; zero means the source's
	// configured size
	PageLimit   int        `gorm:"not null;default:0"`
	Status      Status     `gorm:"type:varchar(20);not null;index"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	// Watermark is the updated_at boundary fully incorporated by this run.
	// Advances only when the run incorporated everything it fetched.
	Watermark   *time.Time
	Pages       int
	Created     int
	Updated     int
	SoftDeleted int
	Error       string `gorm:"type:text"`
	// Published flips true once the outcome event has been handed to the
	// broker. False entries are retried by the outbox sweep.
	Published bool `gorm:"not null;default:false;index"`

	Exceptions []Exception `gorm:"foreignKey:RunID;references:ID"`
}

// TableName returns the table name for GORM
func (Run) TableName() string {
	return "sync_runs"
}

// NewRun creates a pending run for a merchant and sync kind
func NewRun(merchantID uuid.UUID, kind Kind, trigger Trigger) *Run {
	return &Run{
		BaseEntity: shared.NewBaseEntity(),
		MerchantID: merchantID,
		Kind:       kind,
		Trigger:    trigger,
		Status:     StatusPending,
	}
}

// Start marks the run as running
func (r *Run) Start() {
	now := time.Now()
	r.Status = StatusRunning
	r.StartedAt = &now
	r.Error = ""
}

// Complete marks the run successful and records its counts and watermark
func (r *Run) Complete(created, updated, softDeleted, pages int, watermark *time.Time) {
	now := time.Now()
	r.Status = StatusSuccess
	r.CompletedAt = &now
	r.Created = created
	r.Updated = updated
	r.SoftDeleted = softDeleted
	r.Pages = pages
	r.Watermark = watermark
}

// CompletePartial marks the run partial: some pages committed before a
// failure. Order pages arrive in id order, not updated_at order, so a
// partial pass cannot vouch for any updated_at boundary and the watermark
// it records is normally nil.
func (r *Run) CompletePartial(created, updated, pages int, watermark *time.Time, errMsg string) {
	now := time.Now()
	r.Status = StatusPartial
	r.CompletedAt = &now
	r.Created = created
	r.Updated = updated
	r.Pages = pages
	r.Watermark = watermark
	r.Error = errMsg
}

// Fail marks the run failed without advancing the watermark
func (r *Run) Fail(errMsg string) {
	now := time.Now()
	r.Status = StatusFailed
	r.CompletedAt = &now
	r.Error = errMsg
}

// Cancel marks the run cooperatively cancelled
func (r *Run) Cancel() {
	now := time.Now()
	r.Status = StatusCancelled
	r.CompletedAt = &now
}

// Finished reports whether the run has reached a terminal state
func (r *Run) Finished() bool {
	switch r.Status {
	case StatusSuccess, StatusPartial, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// AddException records a data-class exception against the run
func (r *Run) AddException(kind ExceptionKind, externalID, message string) {
	r.Exceptions = append(r.Exceptions, Exception{
		BaseEntity: shared.NewBaseEntity(),
		RunID:      r.ID,
		MerchantID: r.MerchantID,
		Kind:       kind,
		ExternalID: externalID,
		Message:    message,
	})
}

// RunRepository defines sync run persistence
type RunRepository interface {
	Create(ctx context.Context, run *Run) error
	Update(ctx context.Context, run *Run) error
	FindByID(ctx context.Context, id uuid.UUID) (*Run, error)
	FindRecent(ctx context.Context, merchantID uuid.UUID, kind Kind, limit int) ([]Run, error)
	// LastWatermark returns the watermark of the most recent run of the kind
	// that advanced one, or nil when the merchant has never fully synced.
	LastWatermark(ctx context.Context, merchantID uuid.UUID, kind Kind) (*time.Time, error)
	// MarkPublished flips the run's published flag after broker delivery
	MarkPublished(ctx context.Context, runID uuid.UUID) error
}
