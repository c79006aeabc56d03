package assignment_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tohka53/gtrehabiMovement/assignment"
)

func TestParseDate(t *testing.T) {
	d, err := assignment.ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", d.String())
	assert.Equal(t, "2024-03-01", d.AddDays(1).String())

	_, err = assignment.ParseDate("29/02/2024")
	assert.Error(t, err)
	_, err = assignment.ParseDate("2023-02-29")
	assert.Error(t, err)
}

func TestDate_Compare(t *testing.T) {
	a, b := date("2024-01-10"), date("2024-01-11")

	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.True(t, a.BeforeOrEqual(a))
	assert.True(t, b.AfterOrEqual(a))
	assert.False(t, a.Equal(b))
	assert.Equal(t, 1, assignment.DaysBetween(a, b))
}

func TestToday_UsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	clock := assignment.NewFixedClock(time.Date(2024, 1, 10, 22, 0, 0, 0, loc)) // 03:00 UTC on the 11th

	assert.Equal(t, date("2024-01-11"), assignment.Today(clock))
}

func TestBatchAssignment_IsLive(t *testing.T) {
	b := assignment.BatchAssignment{State: assignment.BatchActive, StartDate: date("2024-01-01"), EndDate: date("2024-01-10")}

	assert.True(t, b.IsLive(date("2024-01-10")))
	assert.False(t, b.IsLive(date("2024-01-11")))
	assert.Equal(t, 9, b.DurationDays())

	b.State = assignment.BatchPaused
	assert.False(t, b.IsLive(date("2024-01-05")))
}
