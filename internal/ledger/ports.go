// Package ledger defines the storage ports the engine consumes.
package ledger

import (
	"context"

	"ledger/internal/core"
)

// Ports for storage adapters. Every Repository is scoped to one user.
type (
	// SourceReader is what the scheduler and projection read.
	SourceReader interface {
		ListActiveIncomeSources(ctx context.Context) ([]core.IncomeSource, error)
	}

	// PostingStore is the write side of the scheduler. InsertIncomeTransaction
	// must fail with core.ErrDuplicateEntry when an automatic posting for the
	// same source and day already exists, even under concurrent callers.
	PostingStore interface {
		// FindIncomeTransaction returns core.ErrNotFound when no row matches.
		FindIncomeTransaction(ctx context.Context, sourceID string, date core.Date, autoAdded bool) (core.IncomeTransaction, error)
		InsertIncomeTransaction(ctx context.Context, tx core.IncomeTransaction) (core.IncomeTransaction, error)
	}

	// LedgerReader serves aggregation. An empty sourceID means any source.
	LedgerReader interface {
		QueryIncomeTransactions(ctx context.Context, r core.DateRange, sourceID string) ([]core.IncomeTransaction, error)
		QueryExpenses(ctx context.Context, r core.DateRange) ([]core.Expense, error)
	}

	BalanceStore interface {
		GetStartingBalance(ctx context.Context) (core.Money, error)
		SetStartingBalance(ctx context.Context, m core.Money) error
	}

	// Repository is the full contract consumed by the engine.
	Repository interface {
		SourceReader
		PostingStore
		LedgerReader
		BalanceStore
	}

	// SourceManager covers user edits of recurring definitions.
	SourceManager interface {
		CreateIncomeSource(ctx context.Context, s core.IncomeSource) (core.IncomeSource, error)
		UpdateIncomeSource(ctx context.Context, s core.IncomeSource) (core.IncomeSource, error)
		DeleteIncomeSource(ctx context.Context, id string) error
		GetIncomeSource(ctx context.Context, id string) (core.IncomeSource, error)
		ListIncomeSources(ctx context.Context) ([]core.IncomeSource, error)
	}

	// EntryManager covers manual ledger edits. Ledger rows are immutable
	// apart from deletion.
	EntryManager interface {
		DeleteIncomeTransaction(ctx context.Context, id string) error
		InsertExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		DeleteExpense(ctx context.Context, id string) error
	}

	// Store is everything a user-facing ledger offers.
	Store interface {
		Repository
		SourceManager
		EntryManager
	}

	// Provider hands out per-user stores. Users lists the owners of at least
	// one active auto-posting source; PostingUsers lists everyone holding at
	// least one income posting, automatic or manual.
	Provider interface {
		Ledger(userID string) Store
		Users(ctx context.Context) ([]string, error)
		PostingUsers(ctx context.Context) ([]string, error)
		Close() error
	}
)
