package core

// PeriodTotals holds realized ledger sums for a window.
type PeriodTotals struct {
	Range    DateRange
	Income   Money
	Expenses Money
}

// Net is income minus expenses.
func (t PeriodTotals) Net() (Money, error) {
	return t.Income.Sub(t.Expenses)
}

// Occurrence is a projected, not yet materialized, posting.
type Occurrence struct {
	SourceID string
	Name     string
	Date     Date
	Amount   Money
	Currency string
}

// Projection is forward-looking income derived from recurrence rules. It is
// never merged into PeriodTotals.
type Projection struct {
	Range       DateRange
	Occurrences []Occurrence
	Total       Money
}
