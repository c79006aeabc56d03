/*
handlers.go - HTTP API handlers for the assignment engine

PURPOSE:
  Exposes the assignment engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the coordinator,
  tracker and reaper.

ENDPOINTS:
  Assignments:
    POST   /api/assignments                 Assign plans to a recipient set
    GET    /api/assignments                 List batches (filters below)
    GET    /api/assignments/{id}            Batch + progress + stats
    POST   /api/assignments/{id}/cancel     Cancel (irreversible)
    POST   /api/assignments/{id}/pause      Pause an active batch
    POST   /api/assignments/{id}/resume     Resume a paused batch
    POST   /api/assignments/{id}/complete   Close a batch as completed

  Progress:
    PUT    /api/progress/{id}               Record a percent
    PUT    /api/progress/{id}/notes         Replace notes

  Admin:
    POST   /api/admin/reap                  Run the expiry reaper now

LISTING FILTERS:
  recipient_id, plan_id, include_inactive (default false: active only)

DEFAULT DURATION:
  A request without duration_days gets the configured default here. The
  engine itself never picks one.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, percent out of range
  - 403: Assigner not authorized
  - 404: Batch or progress row not found
  - 409: Lifecycle transition rejected, concurrent modification
  - 207: Assign call where some requests failed (per-outcome detail)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/tohka53/gtrehabiMovement/assignment"
	"github.com/tohka53/gtrehabiMovement/logger"
)

// DefaultDurationDays is used when a Handler is built without one.
const DefaultDurationDays = 30

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Coordinator *assignment.Coordinator
	Tracker     *assignment.Tracker
	Reaper      *assignment.Reaper
	Clock       assignment.Clock
	Log         *logger.Logger

	DefaultDurationDays int

	// ScenariosEnabled mounts /api/scenarios.
	ScenariosEnabled bool

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the engine components over one store.
func NewHandler(store assignment.Store, auth assignment.Authorizer, locker assignment.Locker, clock assignment.Clock, log *logger.Logger) *Handler {
	if clock == nil {
		clock = assignment.SystemClock{}
	}
	log = logger.OrNop(log)
	return &Handler{
		Coordinator:         assignment.NewCoordinator(store, auth, clock, log),
		Tracker:             assignment.NewTracker(store, clock, log),
		Reaper:              assignment.NewReaper(store, clock, locker, log),
		Clock:               clock,
		Log:                 log,
		DefaultDurationDays: DefaultDurationDays,
	}
}

// =============================================================================
// ASSIGNMENT HANDLERS
// =============================================================================

// CreateAssignments validates the whole call, then persists each request
// independently.
func (h *Handler) CreateAssignments(w http.ResponseWriter, r *http.Request) {
	var req CreateAssignmentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	requests := make([]assignment.Request, len(req.Requests))
	for i, pr := range req.Requests {
		var start assignment.Date
		if strings.TrimSpace(pr.StartDate) != "" {
			d, err := assignment.ParseDate(strings.TrimSpace(pr.StartDate))
			if err != nil {
				writeEngineError(w, &assignment.ValidationError{Index: i, Field: "start_date", Message: err.Error()})
				return
			}
			start = d
		}
		duration := h.DefaultDurationDays
		if duration <= 0 {
			duration = DefaultDurationDays
		}
		if pr.DurationDays != nil {
			duration = *pr.DurationDays
		}
		requests[i] = assignment.Request{
			PlanID:       assignment.PlanID(strings.TrimSpace(pr.PlanID)),
			StartDate:    start,
			DurationDays: duration,
			Notes:        pr.Notes,
		}
	}

	recipients := make([]assignment.RecipientID, len(req.Recipients))
	for i, id := range req.Recipients {
		recipients[i] = assignment.RecipientID(strings.TrimSpace(id))
	}

	batch, err := assignment.BuildBatch(requests, recipients)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	assigner := assignment.AssignerID(strings.TrimSpace(r.Header.Get(AssignerHeader)))
	result, err := h.Coordinator.Assign(r.Context(), batch, assigner)
	if result == nil {
		writeEngineError(w, err)
		return
	}

	resp := AssignResponse{
		Outcomes: make([]OutcomeDTO, len(result.Outcomes)),
		SpanDays: batch.SpanDays(),
	}
	for i, o := range result.Outcomes {
		resp.Outcomes[i] = toOutcomeDTO(o)
		switch {
		case o.Partial:
			resp.Partial++
		case o.Err != nil:
			resp.Failed++
		default:
			resp.Created++
		}
	}

	status := http.StatusCreated
	if err != nil {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, resp)
}

// ListAssignments returns batches matching the query filters.
func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := assignment.BatchFilter{
		RecipientID: assignment.RecipientID(strings.TrimSpace(q.Get("recipient_id"))),
		PlanID:      assignment.PlanID(strings.TrimSpace(q.Get("plan_id"))),
	}
	if raw := q.Get("include_inactive"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid include_inactive", err)
			return
		}
		filter.IncludeInactive = v
	}

	batches, err := h.Tracker.List(r.Context(), filter)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	today := assignment.Today(h.Clock)
	dtos := make([]BatchDTO, len(batches))
	for i, b := range batches {
		dtos[i] = toBatchDTO(b, today)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAssignment returns one batch with its progress rows and stats.
func (h *Handler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	id := assignment.BatchID(chi.URLParam(r, "id"))

	detail, err := h.Tracker.Detail(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	progress := make([]ProgressDTO, len(detail.Progress))
	for i, p := range detail.Progress {
		progress[i] = toProgressDTO(p)
	}
	writeJSON(w, http.StatusOK, BatchDetailResponse{
		Batch:    toBatchDTO(detail.Batch, assignment.Today(h.Clock)),
		Progress: progress,
		Stats:    toStatsDTO(detail.Stats),
	})
}

func (h *Handler) CancelAssignment(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.Tracker.Cancel)
}

func (h *Handler) PauseAssignment(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.Tracker.Pause)
}

func (h *Handler) ResumeAssignment(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.Tracker.Resume)
}

func (h *Handler) CompleteAssignment(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.Tracker.Complete)
}

type lifecycleFunc func(ctx context.Context, id assignment.BatchID) (*assignment.BatchAssignment, error)

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op lifecycleFunc) {
	id := assignment.BatchID(chi.URLParam(r, "id"))

	batch, err := op(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTO(*batch, assignment.Today(h.Clock)))
}

// =============================================================================
// PROGRESS HANDLERS
// =============================================================================

func (h *Handler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	id := assignment.ProgressID(chi.URLParam(r, "id"))

	var req UpdateProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if req.Percent == nil {
		writeEngineError(w, &assignment.ValidationError{Index: assignment.BatchLevel, Field: "percent", Message: "required"})
		return
	}

	p, err := h.Tracker.UpdateProgress(r.Context(), id, *req.Percent)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressDTO(*p))
}

func (h *Handler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	id := assignment.ProgressID(chi.URLParam(r, "id"))

	var req UpdateNotesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	p, err := h.Tracker.UpdateNotes(r.Context(), id, req.Notes)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressDTO(*p))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerReap runs one reaper pass. An explicit today bypasses the lock and
// the retry policy and reports store errors directly.
func (h *Handler) TriggerReap(w http.ResponseWriter, r *http.Request) {
	var req ReapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	if req.Today == "" {
		n := h.Reaper.Activate(r.Context())
		writeJSON(w, http.StatusOK, ReapResponse{Today: assignment.Today(h.Clock).String(), Transitioned: n})
		return
	}

	today, err := assignment.ParseDate(req.Today)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid today", err)
		return
	}
	n, err := h.Reaper.Reap(r.Context(), today)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	h.Log.Info("manual reap", "today", today.String(), "expired", n)
	writeJSON(w, http.StatusOK, ReapResponse{Today: today.String(), Transitioned: n})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps an engine error to its status and code.
func writeEngineError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	resp := ErrorResponse{Error: http.StatusText(status), Code: code}
	if err != nil {
		resp.Details = err.Error()
	}

	var ve *assignment.ValidationError
	if errors.As(err, &ve) {
		resp.Details = map[string]any{
			"index":   ve.Index,
			"field":   ve.Field,
			"message": ve.Message,
		}
	}
	writeJSON(w, status, resp)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, assignment.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, assignment.ErrInvalidProgress):
		return http.StatusBadRequest, "invalid_progress"
	case errors.Is(err, assignment.ErrNotAuthorized):
		return http.StatusForbidden, "not_authorized"
	case assignment.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, assignment.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, assignment.ErrConcurrentModification):
		return http.StatusConflict, "concurrent_modification"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
