package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// PeriodAggregator sums realized ledger rows. It never adds projected
// occurrences: an auto-posted day is already a ledger row, so projecting it
// again would count it twice.
type PeriodAggregator struct {
	repo ledger.LedgerReader
}

func NewPeriodAggregator(repo ledger.LedgerReader) *PeriodAggregator {
	return &PeriodAggregator{repo: repo}
}

// TotalsForPeriod returns income and expense sums for [start, end].
func (a *PeriodAggregator) TotalsForPeriod(ctx context.Context, start, end core.Date) (core.PeriodTotals, error) {
	r := core.DateRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return core.PeriodTotals{}, err
	}
	income, expenses, err := sumLedger(ctx, a.repo, r)
	if err != nil {
		return core.PeriodTotals{}, err
	}
	return core.PeriodTotals{Range: r, Income: income, Expenses: expenses}, nil
}

// MonthTotals is TotalsForPeriod over one calendar month.
func (a *PeriodAggregator) MonthTotals(ctx context.Context, year, month int) (core.PeriodTotals, error) {
	if month < 1 || month > 12 {
		return core.PeriodTotals{}, &core.ValidationError{Field: "month", Reason: "must be between 1 and 12"}
	}
	r := core.MonthRange(year, month)
	return a.TotalsForPeriod(ctx, r.Start, r.End)
}

// sumLedger reads both sides of the ledger concurrently.
func sumLedger(ctx context.Context, repo ledger.LedgerReader, r core.DateRange) (income, expenses core.Money, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := repo.QueryIncomeTransactions(gctx, r, "")
		if err != nil {
			return fmt.Errorf("query income transactions: %w", err)
		}
		amounts := make([]core.Money, len(rows))
		for i, tx := range rows {
			amounts[i] = tx.Amount
		}
		income, err = core.Sum(amounts)
		return err
	})
	g.Go(func() error {
		rows, err := repo.QueryExpenses(gctx, r)
		if err != nil {
			return fmt.Errorf("query expenses: %w", err)
		}
		amounts := make([]core.Money, len(rows))
		for i, e := range rows {
			amounts[i] = e.Amount
		}
		expenses, err = core.Sum(amounts)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Money{}, core.Money{}, err
	}
	return income, expenses, nil
}
