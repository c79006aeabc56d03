/*
dto.go - Data Transfer Objects for the HTTP API

PURPOSE:
  Defines JSON request/response structures for the REST API.
  Decouples API contracts from internal domain types.

NAMING CONVENTION:
  - *Request:  Incoming request body
  - *DTO:      Outgoing response object
  - *Response: Wrapper for complex responses

DATE FORMAT:
  Calendar dates are "YYYY-MM-DD" strings; timestamps are RFC 3339.
*/
package api

import (
	"time"

	"github.com/tohka53/gtrehabiMovement/assignment"
)

// =============================================================================
// REQUEST DTOs
// =============================================================================

// CreateAssignmentsRequest assigns every plan request to the same recipients.
type CreateAssignmentsRequest struct {
	Recipients []string         `json:"recipients"`
	Requests   []PlanRequestDTO `json:"requests"`
}

// PlanRequestDTO is one plan inside CreateAssignmentsRequest.
// DurationDays is optional here; the handler fills the configured default.
type PlanRequestDTO struct {
	PlanID       string `json:"plan_id"`
	StartDate    string `json:"start_date"`
	DurationDays *int   `json:"duration_days,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

type UpdateProgressRequest struct {
	Percent *int `json:"percent"`
}

type UpdateNotesRequest struct {
	Notes string `json:"notes"`
}

// ReapRequest optionally overrides today for a manual reaper run.
type ReapRequest struct {
	Today string `json:"today,omitempty"`
}

// LoadScenarioRequest selects a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// RESPONSE DTOs
// =============================================================================

type BatchDTO struct {
	ID           string    `json:"id"`
	PlanID       string    `json:"plan_id"`
	Recipients   []string  `json:"recipients"`
	AssignerID   string    `json:"assigner_id"`
	StartDate    string    `json:"start_date"`
	EndDate      string    `json:"end_date"`
	DurationDays int       `json:"duration_days"`
	State        string    `json:"state"`
	Live         bool      `json:"live"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ProgressDTO struct {
	ID              string    `json:"id"`
	BatchID         string    `json:"batch_id"`
	RecipientID     string    `json:"recipient_id"`
	PlanID          string    `json:"plan_id"`
	Percent         int       `json:"percent"`
	State           string    `json:"state"`
	ActualStartDate *string   `json:"actual_start_date"`
	ActualEndDate   *string   `json:"actual_end_date"`
	Notes           string    `json:"notes,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type StatsDTO struct {
	Total          int    `json:"total"`
	Pending        int    `json:"pending"`
	InProgress     int    `json:"in_progress"`
	Completed      int    `json:"completed"`
	AveragePercent string `json:"average_percent"`
}

// BatchDetailResponse is a batch with its progress rows.
type BatchDetailResponse struct {
	Batch    BatchDTO      `json:"batch"`
	Progress []ProgressDTO `json:"progress"`
	Stats    StatsDTO      `json:"stats"`
}

// OutcomeDTO reports one request of an assign call.
type OutcomeDTO struct {
	Index    int    `json:"index"`
	PlanID   string `json:"plan_id"`
	BatchID  string `json:"batch_id,omitempty"`
	Strategy string `json:"strategy"`
	Status   string `json:"status"` // created, partial, failed
	Error    string `json:"error,omitempty"`
}

type AssignResponse struct {
	Outcomes []OutcomeDTO `json:"outcomes"`
	SpanDays int          `json:"span_days"`
	Created  int          `json:"created"`
	Partial  int          `json:"partial"`
	Failed   int          `json:"failed"`
}

type ReapResponse struct {
	Today        string `json:"today"`
	Transitioned int    `json:"transitioned"`
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type ScenarioLoadResponse struct {
	Status   string   `json:"status"`
	Scenario string   `json:"scenario"`
	BatchIDs []string `json:"batch_ids"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toBatchDTO(b assignment.BatchAssignment, today assignment.Date) BatchDTO {
	recipients := make([]string, len(b.Recipients))
	for i, r := range b.Recipients {
		recipients[i] = string(r)
	}
	return BatchDTO{
		ID:           string(b.ID),
		PlanID:       string(b.PlanID),
		Recipients:   recipients,
		AssignerID:   string(b.AssignerID),
		StartDate:    b.StartDate.String(),
		EndDate:      b.EndDate.String(),
		DurationDays: b.DurationDays(),
		State:        string(b.State),
		Live:         b.IsLive(today),
		Notes:        b.Notes,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
}

func toProgressDTO(p assignment.IndividualProgress) ProgressDTO {
	return ProgressDTO{
		ID:              string(p.ID),
		BatchID:         string(p.BatchID),
		RecipientID:     string(p.RecipientID),
		PlanID:          string(p.PlanID),
		Percent:         p.Percent,
		State:           string(p.State),
		ActualStartDate: dateString(p.ActualStartDate),
		ActualEndDate:   dateString(p.ActualEndDate),
		Notes:           p.Notes,
		UpdatedAt:       p.UpdatedAt,
	}
}

func toStatsDTO(s assignment.ProgressStats) StatsDTO {
	return StatsDTO{
		Total:          s.Total,
		Pending:        s.Pending,
		InProgress:     s.InProgress,
		Completed:      s.Completed,
		AveragePercent: s.AveragePercent.String(),
	}
}

func toOutcomeDTO(o assignment.RequestOutcome) OutcomeDTO {
	dto := OutcomeDTO{
		Index:    o.Index,
		PlanID:   string(o.PlanID),
		BatchID:  string(o.BatchID),
		Strategy: o.Strategy.String(),
		Status:   "created",
	}
	switch {
	case o.Partial:
		dto.Status = "partial"
	case o.Err != nil:
		dto.Status = "failed"
	}
	if o.Err != nil {
		dto.Error = o.Err.Error()
	}
	return dto
}

func dateString(d *assignment.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
