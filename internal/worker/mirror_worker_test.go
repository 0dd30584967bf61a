package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/memory"
	sheetsmem "ledger/internal/sheets/memory"
)

type failingWriter struct{}

func (failingWriter) AppendPosting(context.Context, string, core.IncomeTransaction) (string, error) {
	return "", errors.New("sheets unavailable")
}

func TestMirrorWorker_HandleIncomePosted(t *testing.T) {
	mirror := sheetsmem.New()
	w := NewMirrorWorker(nil, mirror)
	tx := core.IncomeTransaction{
		ID: "t1", SourceID: "s1", Amount: core.Money{Cents: 5000},
		Date: core.NewDate(2024, 6, 1), AutoAdded: true,
	}

	require.NoError(t, w.HandleIncomePosted(context.Background(), amqp.NewIncomePostedMessage("alice", tx)))
	require.NoError(t, w.HandleIncomePosted(context.Background(), amqp.NewIncomePostedMessage("alice", tx)))

	rows, err := mirror.ListPostings(context.Background(), 2024)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0].UserID)
	assert.Equal(t, core.Money{Cents: 5000}, rows[0].Amount)
}

func TestMirrorWorker_HandleIncomePostedErrors(t *testing.T) {
	w := NewMirrorWorker(nil, failingWriter{})

	err := w.HandleIncomePosted(context.Background(), &amqp.IncomePostedMessage{UserID: "alice", TransactionID: "t1", Date: "bad"})
	assert.ErrorContains(t, err, "decode posting")

	msg := amqp.NewIncomePostedMessage("alice", core.IncomeTransaction{ID: "t1", Date: core.NewDate(2024, 1, 1)})
	assert.ErrorContains(t, w.HandleIncomePosted(context.Background(), msg), "sheets unavailable")
}

func TestMirrorWorker_Reconcile(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	l := store.Ledger("alice")

	dom := 1
	_, err := l.CreateIncomeSource(ctx, core.IncomeSource{
		ID: "s1", Name: "Salary", Frequency: core.Monthly, DayOfMonth: &dom,
		StartDate: core.NewDate(2024, 1, 1), AutoAdd: true, IsActive: true,
	})
	require.NoError(t, err)
	for i, day := range []core.Date{core.NewDate(2023, 12, 1), core.NewDate(2024, 1, 1), core.NewDate(2024, 2, 1)} {
		_, err := l.InsertIncomeTransaction(ctx, core.IncomeTransaction{
			ID: string(rune('a' + i)), SourceID: "s1", Amount: core.Money{Cents: 100}, Date: day, AutoAdded: true,
		})
		require.NoError(t, err)
	}

	mirror := sheetsmem.New()
	w := NewMirrorWorker(store, mirror)
	require.NoError(t, w.Reconcile(ctx, 2024))
	require.NoError(t, w.Reconcile(ctx, 2024))

	rows, err := mirror.ListPostings(ctx, 2024)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	older, err := mirror.ListPostings(ctx, 2023)
	require.NoError(t, err)
	assert.Empty(t, older)
}

func TestMirrorWorker_ReconcileIncludesManualOnlyUsers(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_, err := store.Ledger("bob").InsertIncomeTransaction(ctx, core.IncomeTransaction{
		ID: "m1", Amount: core.Money{Cents: 4200}, Date: core.NewDate(2024, 3, 10),
	})
	require.NoError(t, err)

	mirror := sheetsmem.New()
	require.NoError(t, NewMirrorWorker(store, mirror).Reconcile(ctx, 2024))

	rows, err := mirror.ListPostings(ctx, 2024)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "bob", rows[0].UserID)
	assert.Equal(t, core.Money{Cents: 4200}, rows[0].Amount)
}

func TestMirrorWorker_ReconcileReportsFailures(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_, err := store.Ledger("alice").InsertIncomeTransaction(ctx, core.IncomeTransaction{
		ID: "m1", Amount: core.Money{Cents: 100}, Date: core.NewDate(2024, 1, 2),
	})
	require.NoError(t, err)

	err = NewMirrorWorker(store, failingWriter{}).Reconcile(ctx, 2024)
	assert.ErrorContains(t, err, "1 postings or users failed")
}
