package services

import (
	"iter"
	"slices"

	"ledger/internal/core"
)

// Occurrences yields the occurrence dates of s in [start, end], stepping one
// day at a time from max(s.StartDate, start). Day stepping handles every
// frequency kind, including irregular custom sets, with the same loop; the
// cost is linear in the window length. The sequence can be ranged over any
// number of times.
func Occurrences(s core.IncomeSource, start, end core.Date) iter.Seq[core.Date] {
	return func(yield func(core.Date) bool) {
		rule, err := RuleFor(s)
		if err != nil {
			return
		}
		from := start
		if from.Before(s.StartDate) {
			from = s.StartDate
		}
		for day := from; !day.After(end); day = day.AddDays(1) {
			if rule.Matches(day) && !yield(day) {
				return
			}
		}
	}
}

// OccurrencesInRange collects Occurrences into a slice.
func OccurrencesInRange(s core.IncomeSource, start, end core.Date) []core.Date {
	return slices.Collect(Occurrences(s, start, end))
}

// ProjectIncome lists the occurrences active recurring sources would produce
// in r. The result is a forecast and is kept apart from realized totals.
func ProjectIncome(sources []core.IncomeSource, r core.DateRange) (core.Projection, error) {
	p := core.Projection{Range: r}
	for _, s := range sources {
		if !s.IsActive || s.Frequency == core.Manual {
			continue
		}
		for day := range Occurrences(s, r.Start, r.End) {
			p.Occurrences = append(p.Occurrences, core.Occurrence{
				SourceID: s.ID,
				Name:     s.Name,
				Date:     day,
				Amount:   s.Amount,
				Currency: s.Currency,
			})
			total, err := p.Total.Add(s.Amount)
			if err != nil {
				return core.Projection{}, err
			}
			p.Total = total
		}
	}
	slices.SortStableFunc(p.Occurrences, func(a, b core.Occurrence) int {
		return a.Date.Compare(b.Date.Time)
	})
	return p, nil
}
