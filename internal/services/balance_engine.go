package services

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// BalanceEngine derives the running balance from the starting balance and
// the whole ledger history.
type BalanceEngine struct {
	repo interface {
		ledger.LedgerReader
		ledger.BalanceStore
	}
}

func NewBalanceEngine(repo ledger.Repository) *BalanceEngine {
	return &BalanceEngine{repo: repo}
}

// CurrentBalance is starting + all-time income - all-time expenses.
func (b *BalanceEngine) CurrentBalance(ctx context.Context) (core.Money, error) {
	var (
		starting         core.Money
		income, expenses core.Money
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if starting, err = b.repo.GetStartingBalance(gctx); err != nil {
			return fmt.Errorf("get starting balance: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		income, expenses, err = sumLedger(gctx, b.repo, core.AllTime())
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Money{}, err
	}

	balance, err := starting.Add(income)
	if err != nil {
		return core.Money{}, err
	}
	return balance.Sub(expenses)
}

// CorrectBalanceTo moves the starting balance so that CurrentBalance equals
// target. Ledger rows are neither created nor deleted. It returns the new
// starting balance.
func (b *BalanceEngine) CorrectBalanceTo(ctx context.Context, target core.Money) (core.Money, error) {
	current, err := b.CurrentBalance(ctx)
	if err != nil {
		return core.Money{}, err
	}
	delta, err := target.Sub(current)
	if err != nil {
		return core.Money{}, err
	}
	starting, err := b.repo.GetStartingBalance(ctx)
	if err != nil {
		return core.Money{}, fmt.Errorf("get starting balance: %w", err)
	}
	updated, err := starting.Add(delta)
	if err != nil {
		return core.Money{}, err
	}
	if err := b.repo.SetStartingBalance(ctx, updated); err != nil {
		return core.Money{}, fmt.Errorf("set starting balance: %w", err)
	}

	slog.InfoContext(ctx, "Balance corrected",
		"previous_balance_cents", current.Cents,
		"target_balance_cents", target.Cents,
		"starting_balance_cents", updated.Cents)
	return updated, nil
}
