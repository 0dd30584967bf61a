// Package sheets mirrors ledger postings into a spreadsheet for people who
// read their income in Google Sheets.
package sheets

import (
	"context"

	"ledger/internal/core"
)

// Ports for outbound adapters.
type (
	// PostingWriter appends one mirror row per posting. Implementations must
	// tolerate the same posting being delivered more than once.
	PostingWriter interface {
		AppendPosting(ctx context.Context, userID string, tx core.IncomeTransaction) (rowRef string, err error)
	}

	// PostingLister reads back the mirror rows for one calendar year.
	PostingLister interface {
		ListPostings(ctx context.Context, year int) ([]Row, error)
	}
)

// Row is one mirrored posting as stored in the sheet.
type Row struct {
	TransactionID string
	UserID        string
	SourceID      string
	Date          core.Date
	Description   string
	Amount        core.Money
	Currency      string
	AutoAdded     bool
}

// RowFor builds the mirror row of a posting.
func RowFor(userID string, tx core.IncomeTransaction) Row {
	return Row{
		TransactionID: tx.ID,
		UserID:        userID,
		SourceID:      tx.SourceID,
		Date:          tx.Date,
		Description:   tx.Description,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		AutoAdded:     tx.AutoAdded,
	}
}
