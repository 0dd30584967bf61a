// Package worker mirrors ledger postings into the spreadsheet.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/sheets"
)

// MirrorWorker appends posted income to the sheet. Messages drive the normal
// path; Reconcile is the backup for messages lost while the worker was down.
type MirrorWorker struct {
	provider ledger.Provider
	writer   sheets.PostingWriter
}

func NewMirrorWorker(provider ledger.Provider, writer sheets.PostingWriter) *MirrorWorker {
	return &MirrorWorker{provider: provider, writer: writer}
}

// HandleIncomePosted processes a single posting message from AMQP. An
// error makes the consumer requeue the message.
func (w *MirrorWorker) HandleIncomePosted(ctx context.Context, msg *amqp.IncomePostedMessage) error {
	tx, err := msg.Transaction()
	if err != nil {
		return fmt.Errorf("decode posting: %w", err)
	}
	return w.mirror(ctx, msg.UserID, tx)
}

// Reconcile mirrors every posting of the given year, automatic or manual,
// for every user holding postings. The writer skips rows it already holds,
// so running it repeatedly is safe. Failures do not stop the pass; they are
// counted and reported in the returned error.
func (w *MirrorWorker) Reconcile(ctx context.Context, year int) error {
	if w.provider == nil {
		return nil
	}
	users, err := w.provider.PostingUsers(ctx)
	if err != nil {
		return fmt.Errorf("list posting users: %w", err)
	}

	r := core.DateRange{Start: core.NewDate(year, 1, 1), End: core.NewDate(year, 12, 31)}
	var synced, failed int
	for _, userID := range users {
		txs, err := w.provider.Ledger(userID).QueryIncomeTransactions(ctx, r, "")
		if err != nil {
			slog.ErrorContext(ctx, "Failed to read postings for reconcile", "user_id", userID, "error", err)
			failed++
			continue
		}
		for _, tx := range txs {
			if err := w.mirror(ctx, userID, tx); err != nil {
				failed++
				continue
			}
			synced++
		}
	}

	slog.InfoContext(ctx, "Mirror reconcile completed",
		"year", year,
		"users", len(users),
		"synced", synced,
		"errors", failed)
	if failed > 0 {
		return fmt.Errorf("reconcile %d: %d postings or users failed to mirror", year, failed)
	}
	return nil
}

func (w *MirrorWorker) mirror(ctx context.Context, userID string, tx core.IncomeTransaction) error {
	ref, err := w.writer.AppendPosting(ctx, userID, tx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to mirror posting",
			"user_id", userID,
			"transaction_id", tx.ID,
			"error", err)
		return fmt.Errorf("append posting: %w", err)
	}
	if ref != "" {
		slog.InfoContext(ctx, "Mirrored posting",
			"user_id", userID,
			"transaction_id", tx.ID,
			"sheets_ref", ref,
			"amount_cents", tx.Amount.Cents)
	}
	return nil
}
