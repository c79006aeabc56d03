/*
builder.go - Validates assignment requests into a ready-to-persist batch

PURPOSE:
  Turns the caller's list of (plan, start date, duration) requests and a
  recipient set into a ValidatedBatch, or fails with the first rule broken.
  Nothing is persisted here, so a failure has no side effects.

RULES (checked in order, first failure reported):
  1. Recipient set non-empty, no blank ids
  2. Request list non-empty
  3. Every request has a plan_id and a start_date
  4. duration_days > 0 (the engine never picks a default)
  5. end_date falls in or before MaxEndYear

WINDOW:
  end_date = start_date + duration_days, computed once here. Later code
  reads EndDate and never recomputes it.

RECIPIENTS:
  Duplicates are dropped keeping first-seen order, so every batch carries
  an ordered set.

EXAMPLE:
  batch, err := assignment.BuildBatch([]assignment.Request{
      {PlanID: "routine-7", StartDate: assignment.NewDate(2024, 3, 1), DurationDays: 30},
  }, []assignment.RecipientID{"u-1", "u-2"})

SEE ALSO:
  - coordinator.go: Persists a ValidatedBatch
  - errors.go: ValidationError
*/
package assignment

import (
	"fmt"
	"strings"
)

// Request is one plan to assign to the whole recipient set.
type Request struct {
	PlanID       PlanID
	StartDate    Date
	DurationDays int
	Notes        string
}

// ValidatedRequest is a Request with its window fixed.
type ValidatedRequest struct {
	PlanID    PlanID
	StartDate Date
	EndDate   Date
	Notes     string
}

// ValidatedBatch is the builder's output. Construct it only via BuildBatch.
type ValidatedBatch struct {
	Requests   []ValidatedRequest
	Recipients []RecipientID
}

// MaxEndYear is the last year a window may end in. Dates are stored as
// YYYY-MM-DD text, which cannot hold a five-digit year.
const MaxEndYear = 9999

// BuildBatch validates requests and recipients and derives every window.
func BuildBatch(requests []Request, recipients []RecipientID) (*ValidatedBatch, error) {
	set, err := recipientSet(recipients)
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, &ValidationError{Index: BatchLevel, Field: "requests", Message: "at least one plan request is required"}
	}

	validated := make([]ValidatedRequest, 0, len(requests))
	for i, r := range requests {
		if strings.TrimSpace(string(r.PlanID)) == "" {
			return nil, &ValidationError{Index: i, Field: "plan_id", Message: "plan is required"}
		}
		if r.StartDate.IsZero() {
			return nil, &ValidationError{Index: i, Field: "start_date", Message: "start date is required"}
		}
		if r.DurationDays <= 0 {
			return nil, &ValidationError{Index: i, Field: "duration_days", Message: "duration must be positive"}
		}
		end := r.StartDate.AddDays(r.DurationDays)
		if end.Time().Year() > MaxEndYear || !end.After(r.StartDate) {
			return nil, &ValidationError{Index: i, Field: "duration_days", Message: fmt.Sprintf("window must end by year %d", MaxEndYear)}
		}
		validated = append(validated, ValidatedRequest{
			PlanID:    r.PlanID,
			StartDate: r.StartDate,
			EndDate:   end,
			Notes:     strings.TrimSpace(r.Notes),
		})
	}

	return &ValidatedBatch{Requests: validated, Recipients: set}, nil
}

func recipientSet(recipients []RecipientID) ([]RecipientID, error) {
	if len(recipients) == 0 {
		return nil, &ValidationError{Index: BatchLevel, Field: "recipients", Message: "at least one recipient is required"}
	}
	seen := make(map[RecipientID]bool, len(recipients))
	set := make([]RecipientID, 0, len(recipients))
	for _, r := range recipients {
		if strings.TrimSpace(string(r)) == "" {
			return nil, &ValidationError{Index: BatchLevel, Field: "recipients", Message: "recipient id cannot be blank"}
		}
		if seen[r] {
			continue
		}
		seen[r] = true
		set = append(set, r)
	}
	return set, nil
}

// SpanDays returns the days from the earliest start to the latest end
// across all requests in the batch.
func (vb *ValidatedBatch) SpanDays() int {
	if vb == nil || len(vb.Requests) == 0 {
		return 0
	}
	first, last := vb.Requests[0].StartDate, vb.Requests[0].EndDate
	for _, r := range vb.Requests[1:] {
		if r.StartDate.Before(first) {
			first = r.StartDate
		}
		if r.EndDate.After(last) {
			last = r.EndDate
		}
	}
	return DaysBetween(first, last)
}
