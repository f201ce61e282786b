package dto

import (
	"time"

	"github.com/shopmargin/backend/internal/domain/sync"
)

// TriggerSyncResponse is returned when a sync run is requested
type TriggerSyncResponse struct {
	RunID     string `json:"run_id"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	Coalesced bool   `json:"coalesced"`
}

// RunExceptionResponse is one recorded exception on a run
type RunExceptionResponse struct {
	Kind       string `json:"kind"`
	ExternalID string `json:"external_id,omitempty"`
	Message    string `json:"message"`
}

// RunResponse represents a sync run in API responses
type RunResponse struct {
	ID          string                 `json:"id"`
	MerchantID  string                 `json:"merchant_id"`
	Kind        string                 `json:"kind"`
	Trigger     string                 `json:"trigger"`
	Status      string                 `json:"status"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Watermark   *time.Time             `json:"watermark,omitempty"`
	Pages       int                    `json:"pages"`
	Created     int                    `json:"created"`
	Updated     int                    `json:"updated"`
	SoftDeleted int                    `json:"soft_deleted"`
	Error       string                 `json:"error,omitempty"`
	Published   bool                   `json:"published"`
	Exceptions  []RunExceptionResponse `json:"exceptions,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// ToRunResponse converts a domain run to its API representation
func ToRunResponse(run *sync.Run) RunResponse {
	resp := RunResponse{
		ID:          run.ID.String(),
		MerchantID:  run.MerchantID.String(),
		Kind:        string(run.Kind),
		Trigger:     string(run.Trigger),
		Status:      string(run.Status),
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Watermark:   run.Watermark,
		Pages:       run.Pages,
		Created:     run.Created,
		Updated:     run.Updated,
		SoftDeleted: run.SoftDeleted,
		Error:       run.Error,
		Published:   run.Published,
		CreatedAt:   run.CreatedAt,
	}
	for _, ex := range run.Exceptions {
		resp.Exceptions = append(resp.Exceptions, RunExceptionResponse{
			Kind:       string(ex.Kind),
			ExternalID: ex.ExternalID,
			Message:    ex.Message,
		})
	}
	return resp
}

// ToRunResponses converts a slice of domain runs
func ToRunResponses(runs []sync.Run) []RunResponse {
	out := make([]RunResponse, 0, len(runs))
	for i := range runs {
		out = append(out, ToRunResponse(&runs[i]))
	}
	return out
}
