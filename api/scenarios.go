/*
scenarios.go - Demo scenario loaders for development and demonstrations

PURPOSE:

	Seeds the store with realistic plan assignments so the frontend and the
	reaper have something to work on. Every scenario goes through the same
	coordinator and tracker the real endpoints use, so seeded data obeys
	every engine rule.

AVAILABLE SCENARIOS:

	new-cohort:        One plan, three athletes, starting today
	mid-program:       Knee rehab two weeks in, progress spread 0..100
	expiring-block:    A block whose window ended; the next reap expires it
	multi-plan:        Three plans of different lengths in one call
	lifecycle-mix:     One paused and one cancelled batch

HOW SCENARIOS WORK:
 1. Build the plan requests relative to today's date
 2. Assign them through the coordinator (authorizer applies)
 3. Optionally record progress or lifecycle events through the tracker

Scenarios are additive. Loading one twice creates a second copy of its
batches; nothing is reset.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "mid-program"}

NOTE:

	Mounted only when Handler.ScenariosEnabled is set.

SEE ALSO:
  - handlers.go: CreateAssignments (the same assign path)
  - assignment/coordinator.go: Assign
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tohka53/gtrehabiMovement/assignment"
)

// DemoAssigner is used when a scenario load carries no assigner header.
const DemoAssigner = "demo-coach"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "new-cohort",
		Name:        "New Cohort",
		Description: "Mobility basics for three athletes starting today",
		Category:    "assignment",
	},
	{
		ID:          "mid-program",
		Name:        "Mid-Program",
		Description: "Knee rehab two weeks in with progress spread across the group",
		Category:    "progress",
	},
	{
		ID:          "expiring-block",
		Name:        "Expiring Block",
		Description: "Shoulder prehab whose window ended ten days ago; the next reap expires it",
		Category:    "reaper",
	},
	{
		ID:          "multi-plan",
		Name:        "Multi-Plan",
		Description: "Core, hip and conditioning plans of different lengths in one call",
		Category:    "assignment",
	},
	{
		ID:          "lifecycle-mix",
		Name:        "Lifecycle Mix",
		Description: "One paused and one cancelled batch",
		Category:    "lifecycle",
	},
}

type scenarioLoader func(ctx context.Context, assigner assignment.AssignerID, today assignment.Date) ([]assignment.BatchID, error)

func (h *Handler) scenarioLoaders() map[string]scenarioLoader {
	return map[string]scenarioLoader{
		"new-cohort":     h.loadNewCohortScenario,
		"mid-program":    h.loadMidProgramScenario,
		"expiring-block": h.loadExpiringBlockScenario,
		"multi-plan":     h.loadMultiPlanScenario,
		"lifecycle-mix":  h.loadLifecycleMixScenario,
	}
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the most recently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario seeds one predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	load, ok := h.scenarioLoaders()[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	assigner := assignment.AssignerID(strings.TrimSpace(r.Header.Get(AssignerHeader)))
	if assigner == "" {
		assigner = DemoAssigner
	}

	ids, err := load(r.Context(), assigner, assignment.Today(h.Clock))
	if err != nil {
		h.Log.Warn("scenario load failed", "scenario", req.ScenarioID, "error", err)
		writeEngineError(w, err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.Log.Info("scenario loaded", "scenario", req.ScenarioID, "batches", len(ids))
	resp := ScenarioLoadResponse{Status: "loaded", Scenario: req.ScenarioID, BatchIDs: make([]string, len(ids))}
	for i, id := range ids {
		resp.BatchIDs[i] = string(id)
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadNewCohortScenario(ctx context.Context, assigner assignment.AssignerID, today assignment.Date) ([]assignment.BatchID, error) {
	return h.seed(ctx, assigner, athletes("ana", "bruno", "carla"),
		assignment.Request{PlanID: "mobility-basics", StartDate: today, DurationDays: 30, Notes: "Intro block"},
	)
}

func (h *Handler) loadMidProgramScenario(ctx context.Context, assigner assignment.AssignerID, today assignment.Date) ([]assignment.BatchID, error) {
	ids, err := h.seed(ctx, assigner, athletes("diego", "elena", "fito", "gaby"),
		assignment.Request{PlanID: "knee-rehab", StartDate: today.AddDays(-14), DurationDays: 42},
	)
	if err != nil {
		return nil, err
	}
	if err := h.recordProgress(ctx, ids[0], 0, 35, 70, 100); err != nil {
		return nil, err
	}
	return ids, nil
}

func (h *Handler) loadExpiringBlockScenario(ctx context.Context, assigner assignment.AssignerID, today assignment.Date) ([]assignment.BatchID, error) {
	ids, err := h.seed(ctx, assigner, athletes("hugo", "ines"),
		assignment.Request{PlanID: "shoulder-prehab", StartDate: today.AddDays(-40), DurationDays: 30},
	)
	if err != nil {
		return nil, err
	}
	if err := h.recordProgress(ctx, ids[0], 60); err != nil {
		return nil, err
	}
	return ids, nil
}

func (h *Handler) loadMultiPlanScenario(ctx context.Context, assigner assignment.AssignerID, today assignment.Date) ([]assignment.BatchID, error) {
	return h.seed(ctx, assigner, athletes("julia", "kevin"),
		assignment.Request{PlanID: "core-stability", StartDate: today, DurationDays: 14},
		assignment.Request{PlanID: "hip-mobility", StartDate: today, DurationDays: 21},
		assignment.Request{PlanID: "conditioning", StartDate: today.AddDays(7), DurationDays: 28},
	)
}

func (h *Handler) loadLifecycleMixScenario(ctx context.Context, assigner assignment.AssignerID, today assignment.Date) ([]assignment.BatchID, error) {
	ids, err := h.seed(ctx, assigner, athletes("luis", "maria"),
		assignment.Request{PlanID: "ankle-rehab", StartDate: today, DurationDays: 21, Notes: "Paused while travelling"},
		assignment.Request{PlanID: "back-care", StartDate: today, DurationDays: 21, Notes: "Replaced by a new plan"},
	)
	if err != nil {
		return nil, err
	}
	if _, err := h.Tracker.Pause(ctx, ids[0]); err != nil {
		return nil, err
	}
	if _, err := h.Tracker.Cancel(ctx, ids[1]); err != nil {
		return nil, err
	}
	return ids, nil
}

// seed assigns requests and fails on any incomplete outcome.
func (h *Handler) seed(ctx context.Context, assigner assignment.AssignerID, who []assignment.RecipientID, requests ...assignment.Request) ([]assignment.BatchID, error) {
	result, err := h.Coordinator.AssignRequests(ctx, requests, who, assigner)
	if err != nil {
		return nil, err
	}
	return result.IDs(), nil
}

// recordProgress sets percents on a batch's rows in recipient order.
func (h *Handler) recordProgress(ctx context.Context, id assignment.BatchID, percents ...int) error {
	detail, err := h.Tracker.Detail(ctx, id)
	if err != nil {
		return err
	}
	for i, p := range percents {
		if i >= len(detail.Progress) {
			break
		}
		if p == 0 {
			continue
		}
		if _, err := h.Tracker.UpdateProgress(ctx, detail.Progress[i].ID, p); err != nil {
			return err
		}
	}
	return nil
}

func athletes(names ...string) []assignment.RecipientID {
	out := make([]assignment.RecipientID, len(names))
	for i, n := range names {
		out[i] = assignment.RecipientID("athlete-" + n)
	}
	return out
}
