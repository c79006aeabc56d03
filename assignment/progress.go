package assignment

// =============================================================================
// PROGRESS STATE MACHINE - Percent -> individual state + derived dates
// =============================================================================

const (
	MinPercent = 0
	MaxPercent = 100
)

// ProgressDerivation is the outcome of Derive.
type ProgressDerivation struct {
	State           ProgressState
	ActualStartDate *Date
	ActualEndDate   *Date
}

// ValidatePercent rejects values outside [0,100].
func ValidatePercent(percent int) error {
	if percent < MinPercent || percent > MaxPercent {
		return &InvalidProgressError{Percent: percent}
	}
	return nil
}

// Derive maps a progress percent and the previous record to the next state
// and actual dates. It is the only place individual state is decided.
//
//	0        -> pending, dates carried over
//	1..99    -> in_progress, start stamped with today only if unset
//	100      -> completed, end stamped with today (restamped on re-completion)
func Derive(percent int, previous IndividualProgress, today Date) (ProgressDerivation, error) {
	if err := ValidatePercent(percent); err != nil {
		return ProgressDerivation{}, err
	}

	out := ProgressDerivation{
		ActualStartDate: copyDate(previous.ActualStartDate),
		ActualEndDate:   copyDate(previous.ActualEndDate),
	}

	switch {
	case percent == MinPercent:
		out.State = ProgressPending
	case percent < MaxPercent:
		out.State = ProgressInProgress
		if out.ActualStartDate == nil {
			out.ActualStartDate = today.Ptr()
		}
	default:
		out.State = ProgressCompleted
		out.ActualEndDate = today.Ptr()
	}
	return out, nil
}

// Apply returns p with percent and the derived fields replaced.
func (d ProgressDerivation) Apply(p IndividualProgress, percent int) IndividualProgress {
	p.Percent = percent
	p.State = d.State
	p.ActualStartDate = d.ActualStartDate
	p.ActualEndDate = d.ActualEndDate
	return p
}

func copyDate(d *Date) *Date {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
