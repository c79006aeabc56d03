package assignment_test

import (
	"context"
	"sync"
	"time"

	"github.com/tohka53/gtrehabiMovement/assignment"
)

// =============================================================================
// SPY STORE - Counts writes and injects failures
// =============================================================================

// spyStore wraps a real store. Every write method increments writes before
// delegating, so a test can assert that nothing was persisted.
type spyStore struct {
	assignment.Store

	mu               sync.Mutex
	writes           int
	createBatchCalls int
	findCalls        int

	failCreateBatch  map[assignment.PlanID]error
	failProgressRows map[assignment.PlanID]error
	failFind         error
}

func newSpy(inner assignment.Store) *spyStore {
	return &spyStore{
		Store:            inner,
		failCreateBatch:  map[assignment.PlanID]error{},
		failProgressRows: map[assignment.PlanID]error{},
	}
}

func (s *spyStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *spyStore) record() {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
}

func (s *spyStore) CreateBatch(ctx context.Context, b assignment.BatchAssignment) (assignment.BatchID, error) {
	s.record()
	s.mu.Lock()
	s.createBatchCalls++
	err := s.failCreateBatch[b.PlanID]
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	return s.Store.CreateBatch(ctx, b)
}

func (s *spyStore) CreateProgressRows(ctx context.Context, id assignment.BatchID, planID assignment.PlanID, recipients []assignment.RecipientID, at time.Time) error {
	s.record()
	if err := s.failProgressRows[planID]; err != nil {
		return err
	}
	return s.Store.CreateProgressRows(ctx, id, planID, recipients, at)
}

func (s *spyStore) FindActiveExpired(ctx context.Context, today assignment.Date) ([]assignment.BatchID, error) {
	s.mu.Lock()
	s.findCalls++
	err := s.failFind
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.Store.FindActiveExpired(ctx, today)
}

func (s *spyStore) BulkSetState(ctx context.Context, ids []assignment.BatchID, state assignment.BatchState, at time.Time) (int, error) {
	s.record()
	return s.Store.BulkSetState(ctx, ids, state, at)
}

func (s *spyStore) SetBatchState(ctx context.Context, id assignment.BatchID, expected, next assignment.BatchState, at time.Time) error {
	s.record()
	return s.Store.SetBatchState(ctx, id, expected, next, at)
}

func (s *spyStore) SetProgress(ctx context.Context, p assignment.IndividualProgress) error {
	s.record()
	return s.Store.SetProgress(ctx, p)
}

// atomicSpy adds a controllable atomic creation path on top of spyStore.
type atomicSpy struct {
	*spyStore
	inner       assignment.AtomicCreator
	atomicErr   error
	atomicCalls int
}

func newAtomicSpy(inner interface {
	assignment.Store
	assignment.AtomicCreator
}) *atomicSpy {
	return &atomicSpy{spyStore: newSpy(inner), inner: inner}
}

func (a *atomicSpy) CreationStrategy() assignment.CreationStrategy {
	return assignment.StrategyAtomic
}

func (a *atomicSpy) CreateBatchAtomic(ctx context.Context, b assignment.BatchAssignment) (assignment.BatchID, error) {
	a.record()
	a.mu.Lock()
	a.atomicCalls++
	err := a.atomicErr
	a.mu.Unlock()
	if err != nil {
		return "", err
	}
	return a.inner.CreateBatchAtomic(ctx, b)
}

// =============================================================================
// FIXTURES
// =============================================================================

func date(s string) assignment.Date {
	return assignment.MustParseDate(s)
}

func recipients(ids ...string) []assignment.RecipientID {
	out := make([]assignment.RecipientID, len(ids))
	for i, id := range ids {
		out[i] = assignment.RecipientID(id)
	}
	return out
}

func planRequest(plan, start string, days int) assignment.Request {
	return assignment.Request{
		PlanID:       assignment.PlanID(plan),
		StartDate:    date(start),
		DurationDays: days,
	}
}
