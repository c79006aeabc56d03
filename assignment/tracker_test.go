package assignment_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tohka53/gtrehabiMovement/assignment"
	"github.com/tohka53/gtrehabiMovement/assignment/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type trackerFixture struct {
	store   *store.Memory
	tracker *assignment.Tracker
	clock   *assignment.FixedClock
	batch   assignment.BatchID
	rows    []assignment.IndividualProgress
}

func newTrackerFixture(t *testing.T) *trackerFixture {
	t.Helper()
	mem := store.NewMemory()
	id := seedBatch(t, mem, "P1", "2024-03-01", 30, "U1", "U2")
	rows, err := mem.ListProgress(context.Background(), id)
	require.NoError(t, err)
	clock := assignment.FixedClockAt(date("2024-03-02"))
	return &trackerFixture{
		store:   mem,
		tracker: assignment.NewTracker(mem, clock, nil),
		clock:   clock,
		batch:   id,
		rows:    rows,
	}
}

// =============================================================================
// PROGRESS
// =============================================================================

func TestUpdateProgress_StampsStartOnce(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()
	id := f.rows[0].ID

	// GIVEN: First progress on March 2
	p, err := f.tracker.UpdateProgress(ctx, id, 20)
	require.NoError(t, err)
	assert.Equal(t, assignment.ProgressInProgress, p.State)
	assert.Equal(t, date("2024-03-02").Ptr(), p.ActualStartDate)

	// WHEN: More progress two days later
	f.clock.Advance(48 * time.Hour)
	p, err = f.tracker.UpdateProgress(ctx, id, 60)
	require.NoError(t, err)

	// THEN: Start date is not restamped
	assert.Equal(t, 60, p.Percent)
	assert.Equal(t, date("2024-03-02").Ptr(), p.ActualStartDate)
	assert.Equal(t, f.clock.Now(), p.UpdatedAt)

	stored, err := f.store.GetProgress(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, *p, *stored)
}

func TestUpdateProgress_Completion(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	p, err := f.tracker.UpdateProgress(ctx, f.rows[1].ID, 100)
	require.NoError(t, err)

	assert.Equal(t, assignment.ProgressCompleted, p.State)
	assert.Equal(t, date("2024-03-02").Ptr(), p.ActualEndDate)
	assert.Nil(t, p.ActualStartDate)
}

func TestUpdateProgress_OutOfRange_NoReadNoWrite(t *testing.T) {
	// GIVEN: A spy over the store
	f := newTrackerFixture(t)
	spy := newSpy(f.store)
	tracker := assignment.NewTracker(spy, f.clock, nil)

	for _, percent := range []int{-1, 101} {
		// WHEN: Recording an invalid percent
		p, err := tracker.UpdateProgress(context.Background(), f.rows[0].ID, percent)

		// THEN: Rejected, nothing mutated
		assert.Nil(t, p)
		require.ErrorIs(t, err, assignment.ErrInvalidProgress)
	}
	assert.Equal(t, 0, spy.Writes())

	stored, err := f.store.GetProgress(context.Background(), f.rows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, f.rows[0], *stored)
}

func TestUpdateProgress_UnknownRow(t *testing.T) {
	f := newTrackerFixture(t)

	_, err := f.tracker.UpdateProgress(context.Background(), "missing", 10)

	require.ErrorIs(t, err, assignment.ErrProgressNotFound)
	assert.True(t, assignment.IsNotFound(err))
}

func TestUpdateNotes_AllowedAfterExpiry(t *testing.T) {
	// GIVEN: The batch has expired
	f := newTrackerFixture(t)
	ctx := context.Background()
	reaper := assignment.NewReaper(f.store, f.clock, nil, nil)
	n, err := reaper.Reap(ctx, date("2024-05-01"))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// WHEN: Adding notes to a historical row
	p, err := f.tracker.UpdateNotes(ctx, f.rows[0].ID, "knee pain in week 3")

	// THEN: Accepted, progress fields unchanged
	require.NoError(t, err)
	assert.Equal(t, "knee pain in week 3", p.Notes)
	assert.Equal(t, 0, p.Percent)
	assert.Equal(t, assignment.ProgressPending, p.State)
}

// =============================================================================
// BATCH LIFECYCLE
// =============================================================================

func TestCancel_ActiveAndPaused(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	// Active
	b, err := f.tracker.Cancel(ctx, f.batch)
	require.NoError(t, err)
	assert.Equal(t, assignment.BatchCancelled, b.State)

	// Paused
	other := seedBatch(t, f.store, "P2", "2024-03-01", 30, "U1")
	_, err = f.tracker.Pause(ctx, other)
	require.NoError(t, err)
	b, err = f.tracker.Cancel(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, assignment.BatchCancelled, b.State)
}

func TestCancel_Irreversible(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	_, err := f.tracker.Cancel(ctx, f.batch)
	require.NoError(t, err)

	for _, op := range []func(context.Context, assignment.BatchID) (*assignment.BatchAssignment, error){
		f.tracker.Cancel, f.tracker.Resume, f.tracker.Pause, f.tracker.Complete,
	} {
		_, err := op(ctx, f.batch)
		require.ErrorIs(t, err, assignment.ErrInvalidTransition)
	}

	b, err := f.store.GetBatch(ctx, f.batch)
	require.NoError(t, err)
	assert.Equal(t, assignment.BatchCancelled, b.State)
}

func TestCancel_TerminalStatesRejected(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	// Completed
	_, err := f.tracker.Complete(ctx, f.batch)
	require.NoError(t, err)
	_, err = f.tracker.Cancel(ctx, f.batch)
	require.ErrorIs(t, err, assignment.ErrInvalidTransition)
	assert.True(t, assignment.IsConflict(err))

	// Expired
	expired := seedBatch(t, f.store, "P2", "2024-01-01", 5, "U1")
	_, err = assignment.NewReaper(f.store, f.clock, nil, nil).Reap(ctx, date("2024-03-02"))
	require.NoError(t, err)
	_, err = f.tracker.Cancel(ctx, expired)

	var ite *assignment.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, assignment.BatchExpired, ite.From)
	assert.Equal(t, assignment.EventCancel, ite.Event)
}

func TestCancel_LeavesProgressRows(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()
	_, err := f.tracker.UpdateProgress(ctx, f.rows[0].ID, 70)
	require.NoError(t, err)
	before, err := f.store.ListProgress(ctx, f.batch)
	require.NoError(t, err)

	_, err = f.tracker.Cancel(ctx, f.batch)
	require.NoError(t, err)

	after, err := f.store.ListProgress(ctx, f.batch)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPauseResume(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()

	b, err := f.tracker.Pause(ctx, f.batch)
	require.NoError(t, err)
	assert.Equal(t, assignment.BatchPaused, b.State)

	_, err = f.tracker.Pause(ctx, f.batch)
	require.ErrorIs(t, err, assignment.ErrInvalidTransition)

	b, err = f.tracker.Resume(ctx, f.batch)
	require.NoError(t, err)
	assert.Equal(t, assignment.BatchActive, b.State)
	assert.Equal(t, f.clock.Now(), b.UpdatedAt)
}

func TestTransition_UnknownBatch(t *testing.T) {
	f := newTrackerFixture(t)

	_, err := f.tracker.Cancel(context.Background(), "missing")

	require.ErrorIs(t, err, assignment.ErrBatchNotFound)
}

// raceStore changes the batch state between the tracker's read and write.
type raceStore struct {
	assignment.Store
	interfere func()
}

func (r *raceStore) SetBatchState(ctx context.Context, id assignment.BatchID, expected, next assignment.BatchState, at time.Time) error {
	r.interfere()
	return r.Store.SetBatchState(ctx, id, expected, next, at)
}

func TestTransition_ConcurrentModification(t *testing.T) {
	// GIVEN: The reaper expires the batch while a cancel is in flight
	f := newTrackerFixture(t)
	ctx := context.Background()
	rs := &raceStore{Store: f.store, interfere: func() {
		_, _ = f.store.BulkSetState(ctx, []assignment.BatchID{f.batch}, assignment.BatchExpired, f.clock.Now())
	}}
	tracker := assignment.NewTracker(rs, f.clock, nil)

	// WHEN: Cancelling
	_, err := tracker.Cancel(ctx, f.batch)

	// THEN: The guarded write loses and nothing is overwritten
	require.ErrorIs(t, err, assignment.ErrConcurrentModification)
	b, err := f.store.GetBatch(ctx, f.batch)
	require.NoError(t, err)
	assert.Equal(t, assignment.BatchExpired, b.State)
}

// =============================================================================
// READS
// =============================================================================

func TestDetail(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()
	_, err := f.tracker.UpdateProgress(ctx, f.rows[0].ID, 100)
	require.NoError(t, err)
	_, err = f.tracker.UpdateProgress(ctx, f.rows[1].ID, 51)
	require.NoError(t, err)

	d, err := f.tracker.Detail(ctx, f.batch)
	require.NoError(t, err)

	assert.Equal(t, f.batch, d.Batch.ID)
	assert.Len(t, d.Progress, 2)
	assert.True(t, d.Live)
	assert.Equal(t, 2, d.Stats.Total)
	assert.Equal(t, 1, d.Stats.Completed)
	assert.Equal(t, 1, d.Stats.InProgress)
	assert.Equal(t, "76", d.Stats.AveragePercent.String())
}

func TestDetail_NotLiveAfterWindow(t *testing.T) {
	f := newTrackerFixture(t)
	f.clock.Set(date("2024-04-01").Time()) // end_date is 2024-03-31

	d, err := f.tracker.Detail(context.Background(), f.batch)
	require.NoError(t, err)
	assert.False(t, d.Live)
	assert.Equal(t, assignment.BatchActive, d.Batch.State, "not reaped yet")
}

func TestList_Filters(t *testing.T) {
	f := newTrackerFixture(t) // P1 -> U1,U2
	ctx := context.Background()
	p2 := seedBatch(t, f.store, "P2", "2024-03-01", 30, "U3")
	p3 := seedBatch(t, f.store, "P3", "2024-03-01", 30, "U1")
	_, err := f.tracker.Cancel(ctx, p3)
	require.NoError(t, err)

	all, err := f.tracker.List(ctx, assignment.BatchFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2, "cancelled excluded by default")

	forU1, err := f.tracker.List(ctx, assignment.BatchFilter{RecipientID: "U1", IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, forU1, 2)

	byPlan, err := f.tracker.List(ctx, assignment.BatchFilter{PlanID: "P2"})
	require.NoError(t, err)
	require.Len(t, byPlan, 1)
	assert.Equal(t, p2, byPlan[0].ID)
}
