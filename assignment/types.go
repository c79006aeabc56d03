/*
Package assignment provides the batch assignment and progress engine.

PURPOSE:
  Distributes a plan (a routine or a therapy) to a batch of recipients in one
  operation, then tracks each recipient's individual progress against that
  plan until completion, cancellation, or time-based expiry.

KEY CONCEPTS IN THIS FILE (types.go):
  - BatchAssignment: one plan assigned to a recipient set over a fixed window
  - IndividualProgress: one recipient's tracked progress against one batch
  - BatchState / ProgressState: the two lifecycles
  - Plan/Recipient/Assigner IDs: opaque references owned by external systems

DESIGN PRINCIPLES:
  1. Plans are opaque: the engine never inspects a plan's sections
  2. Dates are days: windows and actual dates carry no time of day
  3. Batch-level events never cascade: expiry and cancellation leave
     individual progress rows untouched as history
  4. Individual state is derived from percent, never set directly

EXAMPLE:
  batch := assignment.BatchAssignment{
      PlanID:     "routine-7",
      Recipients: []assignment.RecipientID{"u-1", "u-2"},
      StartDate:  assignment.NewDate(2024, time.March, 1),
      EndDate:    assignment.NewDate(2024, time.March, 31),
      State:      assignment.BatchActive,
  }

SEE ALSO:
  - builder.go: Validates requests and derives the window
  - coordinator.go: Persists batches and their progress rows
  - progress.go: Derives individual state from percent
*/
package assignment

import "time"

// =============================================================================
// IDENTIFIERS - Opaque references
// =============================================================================

type (
	BatchID     string
	ProgressID  string
	PlanID      string
	RecipientID string
	AssignerID  string
)

// =============================================================================
// BATCH ASSIGNMENT
// =============================================================================

type BatchState string

const (
	BatchActive    BatchState = "active"
	BatchPaused    BatchState = "paused"
	BatchCompleted BatchState = "completed"
	BatchCancelled BatchState = "cancelled"
	BatchExpired   BatchState = "expired"
)

// IsTerminal reports whether no transition can leave s.
func (s BatchState) IsTerminal() bool {
	switch s {
	case BatchCompleted, BatchCancelled, BatchExpired:
		return true
	}
	return false
}

// Valid reports whether s is a known state.
func (s BatchState) Valid() bool {
	switch s {
	case BatchActive, BatchPaused, BatchCompleted, BatchCancelled, BatchExpired:
		return true
	}
	return false
}

// BatchAssignment is "plan P assigned to recipients R, by assigner A,
// active from StartDate to EndDate".
type BatchAssignment struct {
	ID         BatchID
	PlanID     PlanID
	Recipients []RecipientID // ordered, non-empty, no duplicates
	AssignerID AssignerID

	// EndDate is StartDate + duration, fixed at creation and never recomputed.
	StartDate Date
	EndDate   Date

	State BatchState
	Notes string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsLive reports whether the batch is active and its window has not ended.
func (b BatchAssignment) IsLive(today Date) bool {
	return b.State == BatchActive && b.EndDate.AfterOrEqual(today)
}

// DurationDays returns the length of the assignment window.
func (b BatchAssignment) DurationDays() int {
	return DaysBetween(b.StartDate, b.EndDate)
}

// =============================================================================
// INDIVIDUAL PROGRESS
// =============================================================================

type ProgressState string

const (
	ProgressPending    ProgressState = "pending"
	ProgressInProgress ProgressState = "in_progress"
	ProgressCompleted  ProgressState = "completed"
)

// IndividualProgress is one recipient's progress against one batch.
// Exactly one row exists per (BatchID, RecipientID).
type IndividualProgress struct {
	ID          ProgressID
	BatchID     BatchID // back-reference for lookup only
	RecipientID RecipientID
	PlanID      PlanID // denormalized from the batch

	Percent int
	State   ProgressState

	ActualStartDate *Date
	ActualEndDate   *Date

	Notes string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProgressRow returns the initial row for a recipient: 0%, pending.
func NewProgressRow(batchID BatchID, planID PlanID, recipient RecipientID, at time.Time) IndividualProgress {
	return IndividualProgress{
		BatchID:     batchID,
		RecipientID: recipient,
		PlanID:      planID,
		Percent:     0,
		State:       ProgressPending,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}
