package assignment

import (
	"context"
	"fmt"

	"github.com/tohka53/gtrehabiMovement/logger"
)

// =============================================================================
// PROGRESS TRACKER - Individual progress + batch lifecycle operations
// =============================================================================

type Tracker struct {
	Store Store
	Clock Clock
	Log   *logger.Logger
}

func NewTracker(store Store, clock Clock, log *logger.Logger) *Tracker {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Tracker{
		Store: store,
		Clock: clock,
		Log:   logger.OrNop(log).With("component", "tracker"),
	}
}

// UpdateProgress records a new percent for one recipient and re-derives the
// individual state. An out-of-range percent is rejected before any read.
func (t *Tracker) UpdateProgress(ctx context.Context, id ProgressID, percent int) (*IndividualProgress, error) {
	if err := ValidatePercent(percent); err != nil {
		return nil, err
	}

	current, err := t.Store.GetProgress(ctx, id)
	if err != nil {
		return nil, err
	}

	now := t.Clock.Now()
	derived, err := Derive(percent, *current, DateOf(now.UTC()))
	if err != nil {
		return nil, err
	}

	next := derived.Apply(*current, percent)
	next.UpdatedAt = now
	if err := t.Store.SetProgress(ctx, next); err != nil {
		return nil, err
	}

	if next.State != current.State {
		t.Log.Debug("individual state changed",
			"progress_id", id, "from", current.State, "to", next.State, "percent", percent)
	}
	return &next, nil
}

// UpdateNotes replaces the free-text notes of one progress row. Allowed in
// every batch state, including after expiry or completion.
func (t *Tracker) UpdateNotes(ctx context.Context, id ProgressID, notes string) (*IndividualProgress, error) {
	current, err := t.Store.GetProgress(ctx, id)
	if err != nil {
		return nil, err
	}
	next := *current
	next.Notes = notes
	next.UpdatedAt = t.Clock.Now()
	if err := t.Store.SetProgress(ctx, next); err != nil {
		return nil, err
	}
	return &next, nil
}

// Cancel moves an active or paused batch to cancelled. Irreversible.
// Progress rows are left as they are.
func (t *Tracker) Cancel(ctx context.Context, id BatchID) (*BatchAssignment, error) {
	return t.transition(ctx, id, EventCancel)
}

// Pause moves an active batch to paused.
func (t *Tracker) Pause(ctx context.Context, id BatchID) (*BatchAssignment, error) {
	return t.transition(ctx, id, EventPause)
}

// Resume moves a paused batch back to active.
func (t *Tracker) Resume(ctx context.Context, id BatchID) (*BatchAssignment, error) {
	return t.transition(ctx, id, EventResume)
}

// Complete closes an active or paused batch as completed.
func (t *Tracker) Complete(ctx context.Context, id BatchID) (*BatchAssignment, error) {
	return t.transition(ctx, id, EventComplete)
}

func (t *Tracker) transition(ctx context.Context, id BatchID, event BatchEvent) (*BatchAssignment, error) {
	batch, err := t.Store.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := NextBatchState(id, batch.State, event)
	if err != nil {
		return nil, err
	}

	now := t.Clock.Now()
	if err := t.Store.SetBatchState(ctx, id, batch.State, next, now); err != nil {
		return nil, fmt.Errorf("%s batch %s: %w", event, id, err)
	}

	t.Log.Info("batch state changed", "batch_id", id, "event", event, "from", batch.State, "to", next)

	batch.State = next
	batch.UpdatedAt = now
	return batch, nil
}

// =============================================================================
// READS
// =============================================================================

// BatchDetail is a batch with its progress rows and their statistics.
type BatchDetail struct {
	Batch    BatchAssignment
	Progress []IndividualProgress
	Stats    ProgressStats
	Live     bool
}

// Detail loads a batch and every progress row it owns. A batch with no rows
// yet is returned as-is: on the manual creation path that is transient.
func (t *Tracker) Detail(ctx context.Context, id BatchID) (*BatchDetail, error) {
	batch, err := t.Store.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	rows, err := t.Store.ListProgress(ctx, id)
	if err != nil {
		return nil, err
	}
	return &BatchDetail{
		Batch:    *batch,
		Progress: rows,
		Stats:    Summarize(rows),
		Live:     batch.IsLive(Today(t.Clock)),
	}, nil
}

// List returns batches matching filter.
func (t *Tracker) List(ctx context.Context, filter BatchFilter) ([]BatchAssignment, error) {
	return t.Store.ListBatches(ctx, filter)
}
