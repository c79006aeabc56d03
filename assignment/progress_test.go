package assignment_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tohka53/gtrehabiMovement/assignment"
)

// =============================================================================
// DERIVE TESTS
// =============================================================================

func TestDerive(t *testing.T) {
	today := date("2024-03-05")
	earlier := date("2024-03-01")
	finished := date("2024-03-03")

	tests := []struct {
		name      string
		percent   int
		previous  assignment.IndividualProgress
		wantState assignment.ProgressState
		wantStart *assignment.Date
		wantEnd   *assignment.Date
	}{
		{
			name:      "zero is pending",
			percent:   0,
			wantState: assignment.ProgressPending,
		},
		{
			name:      "zero keeps existing dates",
			percent:   0,
			previous:  assignment.IndividualProgress{ActualStartDate: earlier.Ptr(), ActualEndDate: finished.Ptr()},
			wantState: assignment.ProgressPending,
			wantStart: earlier.Ptr(),
			wantEnd:   finished.Ptr(),
		},
		{
			name:      "first progress stamps start",
			percent:   50,
			wantState: assignment.ProgressInProgress,
			wantStart: today.Ptr(),
		},
		{
			name:      "later progress keeps start",
			percent:   50,
			previous:  assignment.IndividualProgress{ActualStartDate: earlier.Ptr()},
			wantState: assignment.ProgressInProgress,
			wantStart: earlier.Ptr(),
		},
		{
			name:      "one percent is in progress",
			percent:   1,
			wantState: assignment.ProgressInProgress,
			wantStart: today.Ptr(),
		},
		{
			name:      "ninety nine is in progress",
			percent:   99,
			previous:  assignment.IndividualProgress{ActualStartDate: earlier.Ptr()},
			wantState: assignment.ProgressInProgress,
			wantStart: earlier.Ptr(),
		},
		{
			name:      "hundred completes and stamps end",
			percent:   100,
			previous:  assignment.IndividualProgress{ActualStartDate: earlier.Ptr()},
			wantState: assignment.ProgressCompleted,
			wantStart: earlier.Ptr(),
			wantEnd:   today.Ptr(),
		},
		{
			name:      "re-completion restamps end",
			percent:   100,
			previous:  assignment.IndividualProgress{ActualStartDate: earlier.Ptr(), ActualEndDate: finished.Ptr()},
			wantState: assignment.ProgressCompleted,
			wantStart: earlier.Ptr(),
			wantEnd:   today.Ptr(),
		},
		{
			name:      "straight to hundred leaves start unset",
			percent:   100,
			wantState: assignment.ProgressCompleted,
			wantEnd:   today.Ptr(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := assignment.Derive(tt.percent, tt.previous, today)
			require.NoError(t, err)

			assert.Equal(t, tt.wantState, got.State)
			assert.Equal(t, tt.wantStart, got.ActualStartDate)
			assert.Equal(t, tt.wantEnd, got.ActualEndDate)
		})
	}
}

func TestDerive_OutOfRange(t *testing.T) {
	for _, percent := range []int{-1, 101, -100, 1000} {
		_, err := assignment.Derive(percent, assignment.IndividualProgress{}, date("2024-03-05"))

		require.Error(t, err)
		assert.True(t, errors.Is(err, assignment.ErrInvalidProgress))

		var ipe *assignment.InvalidProgressError
		require.ErrorAs(t, err, &ipe)
		assert.Equal(t, percent, ipe.Percent)
	}
}

func TestDerive_DoesNotAliasPrevious(t *testing.T) {
	// GIVEN: A previous record with a start date
	start := date("2024-03-01")
	previous := assignment.IndividualProgress{ActualStartDate: &start}

	// WHEN: Deriving and then mutating the result
	got, err := assignment.Derive(40, previous, date("2024-03-05"))
	require.NoError(t, err)
	*got.ActualStartDate = date("2030-01-01")

	// THEN: The previous record is untouched
	assert.Equal(t, date("2024-03-01"), *previous.ActualStartDate)
}

func TestProgressDerivation_Apply(t *testing.T) {
	row := assignment.NewProgressRow("b-1", "p-1", "u-1", date("2024-03-01").Time())
	today := date("2024-03-02")

	d, err := assignment.Derive(30, row, today)
	require.NoError(t, err)
	next := d.Apply(row, 30)

	assert.Equal(t, 30, next.Percent)
	assert.Equal(t, assignment.ProgressInProgress, next.State)
	assert.Equal(t, today.Ptr(), next.ActualStartDate)
	assert.Nil(t, next.ActualEndDate)
	assert.Equal(t, row.RecipientID, next.RecipientID)
	assert.Equal(t, 0, row.Percent, "original row must not change")
}
