/*
store.go - Persistence contract for batch assignments and progress rows

PURPOSE:
  Defines the interface between the engine and the database. The engine
  depends only on Store; concrete databases live in other packages.

KEY INTERFACES:
  Store:         Batch + progress persistence, guarded state writes
  AtomicCreator: Optional single-step creation of a batch and all its rows

CREATION STRATEGY:
  Every Store declares, once, how batches are created:
  - StrategyAtomic: CreateBatchAtomic writes the batch row and all progress
    rows in one indivisible step
  - StrategyManual: CreateBatch then CreateProgressRows. If the second step
    fails the batch row stays, referencing an incomplete recipient set

  A store declaring StrategyAtomic must also implement AtomicCreator. It may
  still return ErrAtomicUnavailable at call time (e.g. the server-side
  function is missing); the coordinator then runs the manual pair.

NO DELETES:
  Batches are state-changed, never removed. There is no Delete method.

GUARDED STATE WRITES:
  SetBatchState compares the current state before writing. A mismatch
  returns ErrConcurrentModification and changes nothing.

IMPLEMENTATIONS:
  - assignment/store/memory.go: In-memory, manual strategy
  - store/sqlite/sqlite.go: SQLite, atomic strategy
  - store/postgres/postgres.go: PostgreSQL, atomic strategy

SEE ALSO:
  - coordinator.go: Chooses the creation path
  - reaper.go: FindActiveExpired + BulkSetState
*/
package assignment

import (
	"context"
	"time"
)

// =============================================================================
// CREATION STRATEGY
// =============================================================================

type CreationStrategy int

const (
	StrategyManual CreationStrategy = iota
	StrategyAtomic
)

func (s CreationStrategy) String() string {
	if s == StrategyAtomic {
		return "atomic"
	}
	return "manual"
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// CreationStrategy is fixed per implementation.
	CreationStrategy() CreationStrategy

	// CreateBatch inserts the batch row only and returns its new id.
	CreateBatch(ctx context.Context, batch BatchAssignment) (BatchID, error)

	// CreateProgressRows inserts one pending 0% row per recipient.
	CreateProgressRows(ctx context.Context, batchID BatchID, planID PlanID, recipients []RecipientID, at time.Time) error

	// FindActiveExpired returns ids of active batches with EndDate < today.
	FindActiveExpired(ctx context.Context, today Date) ([]BatchID, error)

	// BulkSetState moves every listed batch that is still active to state.
	// Returns how many rows changed.
	BulkSetState(ctx context.Context, ids []BatchID, state BatchState, at time.Time) (int, error)

	// SetBatchState writes next only if the batch is currently in expected.
	SetBatchState(ctx context.Context, id BatchID, expected, next BatchState, at time.Time) error

	GetBatch(ctx context.Context, id BatchID) (*BatchAssignment, error)
	ListBatches(ctx context.Context, filter BatchFilter) ([]BatchAssignment, error)

	GetProgress(ctx context.Context, id ProgressID) (*IndividualProgress, error)
	ListProgress(ctx context.Context, batchID BatchID) ([]IndividualProgress, error)

	// SetProgress overwrites percent, state, actual dates, notes and UpdatedAt.
	SetProgress(ctx context.Context, p IndividualProgress) error
}

// AtomicCreator creates the batch row and all its progress rows together.
type AtomicCreator interface {
	CreateBatchAtomic(ctx context.Context, batch BatchAssignment) (BatchID, error)
}

// BatchFilter narrows ListBatches. Zero value lists active batches.
type BatchFilter struct {
	PlanID          PlanID
	RecipientID     RecipientID
	IncludeInactive bool
}

// Matches reports whether b passes the filter.
func (f BatchFilter) Matches(b BatchAssignment) bool {
	if !f.IncludeInactive && b.State != BatchActive {
		return false
	}
	if f.PlanID != "" && b.PlanID != f.PlanID {
		return false
	}
	if f.RecipientID != "" {
		for _, r := range b.Recipients {
			if r == f.RecipientID {
				return true
			}
		}
		return false
	}
	return true
}
