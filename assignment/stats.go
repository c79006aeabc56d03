package assignment

import "github.com/shopspring/decimal"

// ProgressStats summarizes the progress rows of one batch.
type ProgressStats struct {
	Total      int
	Pending    int
	InProgress int
	Completed  int

	// AveragePercent is the mean percent rounded to a whole number.
	AveragePercent decimal.Decimal
}

// Summarize counts rows per state and averages their percent.
// An empty set yields all zeros.
func Summarize(rows []IndividualProgress) ProgressStats {
	stats := ProgressStats{Total: len(rows), AveragePercent: decimal.Zero}
	if len(rows) == 0 {
		return stats
	}

	total := decimal.Zero
	for _, r := range rows {
		switch r.State {
		case ProgressPending:
			stats.Pending++
		case ProgressInProgress:
			stats.InProgress++
		case ProgressCompleted:
			stats.Completed++
		}
		total = total.Add(decimal.NewFromInt(int64(r.Percent)))
	}

	stats.AveragePercent = total.Div(decimal.NewFromInt(int64(len(rows)))).Round(0)
	return stats
}
