package assignment_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tohka53/gtrehabiMovement/assignment"
	"github.com/tohka53/gtrehabiMovement/assignment/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var errStoreDown = errors.New("store unreachable")

func newCoordinator(s assignment.Store) (*assignment.Coordinator, *assignment.FixedClock) {
	clock := assignment.FixedClockAt(date("2024-03-01"))
	return assignment.NewCoordinator(s, nil, clock, nil), clock
}

func countRows(t *testing.T, s assignment.Store, ids []assignment.BatchID) int {
	t.Helper()
	total := 0
	for _, id := range ids {
		rows, err := s.ListProgress(context.Background(), id)
		require.NoError(t, err)
		total += len(rows)
	}
	return total
}

// =============================================================================
// CREATION
// =============================================================================

func TestAssign_ManualCreatesNTimesRRows(t *testing.T) {
	// GIVEN: A manual-strategy store, 3 plan requests, 4 recipients
	mem := store.NewMemory()
	coord, _ := newCoordinator(mem)
	reqs := []assignment.Request{
		planRequest("P1", "2024-03-01", 30),
		planRequest("P2", "2024-03-05", 14),
		planRequest("P3", "2024-04-01", 7),
	}

	// WHEN: Assigning
	result, err := coord.AssignRequests(context.Background(), reqs, recipients("U1", "U2", "U3", "U4"), "coach-1")

	// THEN: n batches, n*r progress rows, in request order
	require.NoError(t, err)
	ids := result.IDs()
	require.Len(t, ids, 3)
	assert.Equal(t, 12, countRows(t, mem, ids))

	for i, o := range result.Outcomes {
		assert.Equal(t, i, o.Index)
		assert.Equal(t, reqs[i].PlanID, o.PlanID)
		assert.Equal(t, assignment.StrategyManual, o.Strategy)
		assert.True(t, o.OK())
	}

	b, err := mem.GetBatch(context.Background(), ids[1])
	require.NoError(t, err)
	assert.Equal(t, assignment.PlanID("P2"), b.PlanID)
	assert.Equal(t, date("2024-03-19"), b.EndDate)
	assert.Equal(t, assignment.BatchActive, b.State)
	assert.Equal(t, assignment.AssignerID("coach-1"), b.AssignerID)
}

func TestAssign_ProgressRowsStartPending(t *testing.T) {
	mem := store.NewMemory()
	coord, clock := newCoordinator(mem)

	result, err := coord.AssignRequests(context.Background(),
		[]assignment.Request{planRequest("P1", "2024-03-01", 30)}, recipients("U1", "U2"), "coach-1")
	require.NoError(t, err)

	rows, err := mem.ListProgress(context.Background(), result.IDs()[0])
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for i, r := range rows {
		assert.Equal(t, recipients("U1", "U2")[i], r.RecipientID)
		assert.Equal(t, assignment.PlanID("P1"), r.PlanID)
		assert.Equal(t, 0, r.Percent)
		assert.Equal(t, assignment.ProgressPending, r.State)
		assert.Nil(t, r.ActualStartDate)
		assert.Nil(t, r.ActualEndDate)
		assert.Equal(t, clock.Now(), r.CreatedAt)
	}
}

func TestAssign_AtomicPath(t *testing.T) {
	// GIVEN: A store declaring the atomic strategy
	spy := newAtomicSpy(store.NewTxMemory())
	coord, _ := newCoordinator(spy)

	// WHEN: Assigning two plans
	result, err := coord.AssignRequests(context.Background(), []assignment.Request{
		planRequest("P1", "2024-03-01", 30),
		planRequest("P2", "2024-03-01", 30),
	}, recipients("U1", "U2"), "coach-1")

	// THEN: Only the atomic operation was used
	require.NoError(t, err)
	assert.Equal(t, 2, spy.atomicCalls)
	assert.Equal(t, 0, spy.createBatchCalls)
	assert.Equal(t, 4, countRows(t, spy, result.IDs()))
	for _, o := range result.Outcomes {
		assert.Equal(t, assignment.StrategyAtomic, o.Strategy)
	}
}

func TestAssign_AtomicUnavailable_FallsBackToManual(t *testing.T) {
	// GIVEN: An atomic store whose atomic path reports unavailable
	spy := newAtomicSpy(store.NewTxMemory())
	spy.atomicErr = assignment.ErrAtomicUnavailable
	coord, _ := newCoordinator(spy)

	// WHEN: Assigning
	result, err := coord.AssignRequests(context.Background(),
		[]assignment.Request{planRequest("P1", "2024-03-01", 30)}, recipients("U1", "U2", "U3"), "coach-1")

	// THEN: The manual pair ran instead
	require.NoError(t, err)
	assert.Equal(t, 1, spy.atomicCalls)
	assert.Equal(t, 1, spy.createBatchCalls)
	assert.Equal(t, assignment.StrategyManual, result.Outcomes[0].Strategy)
	assert.Equal(t, 3, countRows(t, spy, result.IDs()))
}

func TestAssign_AtomicOtherError_Propagates(t *testing.T) {
	// GIVEN: An atomic path that fails for a reason other than unavailability
	spy := newAtomicSpy(store.NewTxMemory())
	spy.atomicErr = errStoreDown
	coord, _ := newCoordinator(spy)

	// WHEN: Assigning
	result, err := coord.AssignRequests(context.Background(),
		[]assignment.Request{planRequest("P1", "2024-03-01", 30)}, recipients("U1"), "coach-1")

	// THEN: No fallback, error surfaced verbatim
	require.ErrorIs(t, err, errStoreDown)
	require.NotNil(t, result)
	assert.Equal(t, 0, spy.createBatchCalls)
	assert.Empty(t, result.IDs())
	assert.False(t, result.Outcomes[0].Partial)
	assert.Empty(t, result.Outcomes[0].BatchID)
}

// =============================================================================
// PARTIAL AND INDEPENDENT FAILURES
// =============================================================================

func TestAssign_PartialBatchLeftInPlace(t *testing.T) {
	// GIVEN: Progress-row insertion fails for the second plan only
	mem := store.NewMemory()
	spy := newSpy(mem)
	spy.failProgressRows["P2"] = errStoreDown
	coord, _ := newCoordinator(spy)

	// WHEN: Assigning three plans
	result, err := coord.AssignRequests(context.Background(), []assignment.Request{
		planRequest("P1", "2024-03-01", 30),
		planRequest("P2", "2024-03-01", 30),
		planRequest("P3", "2024-03-01", 30),
	}, recipients("U1", "U2"), "coach-1")

	// THEN: Siblings succeed, the partial batch is reported and kept
	require.Error(t, err)
	require.ErrorIs(t, err, errStoreDown)

	var reqErr *assignment.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, 1, reqErr.Index)
	assert.True(t, reqErr.Partial)
	assert.NotEmpty(t, reqErr.BatchID)

	assert.Len(t, result.IDs(), 2)
	partial := result.Partial()
	require.Len(t, partial, 1)
	assert.Equal(t, reqErr.BatchID, partial[0].BatchID)

	b, getErr := mem.GetBatch(context.Background(), partial[0].BatchID)
	require.NoError(t, getErr)
	assert.Equal(t, assignment.BatchActive, b.State, "no compensating change")

	rows, listErr := mem.ListProgress(context.Background(), partial[0].BatchID)
	require.NoError(t, listErr)
	assert.Empty(t, rows)

	assert.Equal(t, 4, countRows(t, mem, result.IDs()))
}

func TestAssign_BatchInsertFailure_DoesNotAbortSiblings(t *testing.T) {
	spy := newSpy(store.NewMemory())
	spy.failCreateBatch["P1"] = errStoreDown
	coord, _ := newCoordinator(spy)

	result, err := coord.AssignRequests(context.Background(), []assignment.Request{
		planRequest("P1", "2024-03-01", 30),
		planRequest("P2", "2024-03-01", 30),
	}, recipients("U1"), "coach-1")

	require.ErrorIs(t, err, errStoreDown)
	require.Len(t, result.Outcomes, 2)
	assert.False(t, result.Outcomes[0].OK())
	assert.False(t, result.Outcomes[0].Partial)
	assert.Empty(t, result.Outcomes[0].BatchID)
	assert.True(t, result.Outcomes[1].OK())
	assert.Len(t, result.Failed(), 1)
}

// =============================================================================
// NOTHING PERSISTED
// =============================================================================

func TestAssign_InvalidInput_ZeroWrites(t *testing.T) {
	tests := []struct {
		name       string
		requests   []assignment.Request
		recipients []assignment.RecipientID
	}{
		{"empty recipients", []assignment.Request{planRequest("P1", "2024-03-01", 30)}, nil},
		{"empty requests", nil, recipients("U1")},
		{"invalid second request", []assignment.Request{planRequest("P1", "2024-03-01", 30), planRequest("P2", "2024-03-01", 0)}, recipients("U1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := newSpy(store.NewMemory())
			coord, _ := newCoordinator(spy)

			result, err := coord.AssignRequests(context.Background(), tt.requests, tt.recipients, "coach-1")

			assert.Nil(t, result)
			require.ErrorIs(t, err, assignment.ErrValidation)
			assert.Equal(t, 0, spy.Writes())
		})
	}
}

func TestAssign_NotAuthorized_ZeroWrites(t *testing.T) {
	spy := newSpy(store.NewMemory())
	coord := assignment.NewCoordinator(spy, assignment.NewAllowList("coach-1"), assignment.FixedClockAt(date("2024-03-01")), nil)

	result, err := coord.AssignRequests(context.Background(),
		[]assignment.Request{planRequest("P1", "2024-03-01", 30)}, recipients("U1"), "intruder")

	assert.Nil(t, result)
	require.ErrorIs(t, err, assignment.ErrNotAuthorized)
	assert.Equal(t, 0, spy.Writes())
}

func TestAssign_BlankAssigner_Denied(t *testing.T) {
	spy := newSpy(store.NewMemory())
	coord, _ := newCoordinator(spy)

	_, err := coord.AssignRequests(context.Background(),
		[]assignment.Request{planRequest("P1", "2024-03-01", 30)}, recipients("U1"), "")

	require.ErrorIs(t, err, assignment.ErrNotAuthorized)
	assert.Equal(t, 0, spy.Writes())
}

func TestAssign_UnbuiltBatch_Rejected(t *testing.T) {
	coord, _ := newCoordinator(store.NewMemory())

	_, err := coord.Assign(context.Background(), &assignment.ValidatedBatch{}, "coach-1")
	require.ErrorIs(t, err, assignment.ErrValidation)

	_, err = coord.Assign(context.Background(), nil, "coach-1")
	require.ErrorIs(t, err, assignment.ErrValidation)
}
