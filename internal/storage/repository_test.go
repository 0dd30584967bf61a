package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func weekday(d time.Weekday) *time.Weekday { return &d }
func intPtr(i int) *int                   { return &i }

func salary(id string) core.IncomeSource {
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	return core.IncomeSource{
		ID:         id,
		Name:       "Salary",
		Amount:     core.Money{Cents: 250000},
		Currency:   "EUR",
		Frequency:  core.Monthly,
		StartDate:  core.NewDate(2024, 1, 1),
		DayOfMonth: intPtr(27),
		AutoAdd:    true,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func autoPosting(id, sourceID string, day core.Date) core.IncomeTransaction {
	return core.IncomeTransaction{
		ID:        id,
		SourceID:  sourceID,
		Amount:    core.Money{Cents: 250000},
		Currency:  "EUR",
		Date:      day,
		AutoAdded: true,
		CreatedAt: time.Now(),
	}
}

func TestSQLite_SourceRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := newTestRepo(t).Ledger("alice")

	weekly := salary("s-weekly")
	weekly.Frequency = core.Weekly
	weekly.DayOfMonth = nil
	weekly.DayOfWeek = weekday(time.Friday)

	custom := salary("s-custom")
	custom.Frequency = core.Custom
	custom.DayOfMonth = nil
	custom.CustomDays = []int{1, 15}
	custom.CreatedAt = custom.CreatedAt.Add(time.Hour)

	_, err := l.CreateIncomeSource(ctx, weekly)
	require.NoError(t, err)
	_, err = l.CreateIncomeSource(ctx, custom)
	require.NoError(t, err)

	got, err := l.GetIncomeSource(ctx, "s-custom")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 15}, got.CustomDays)
	assert.Nil(t, got.DayOfWeek)
	assert.True(t, got.CreatedAt.Equal(custom.CreatedAt))

	got, err = l.GetIncomeSource(ctx, "s-weekly")
	require.NoError(t, err)
	require.NotNil(t, got.DayOfWeek)
	assert.Equal(t, time.Friday, *got.DayOfWeek)

	all, err := l.ListIncomeSources(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "s-weekly", all[0].ID)

	weekly.IsActive = false
	_, err = l.UpdateIncomeSource(ctx, weekly)
	require.NoError(t, err)

	active, err := l.ListActiveIncomeSources(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "s-custom", active[0].ID)

	require.NoError(t, l.DeleteIncomeSource(ctx, "s-custom"))
	assert.ErrorIs(t, l.DeleteIncomeSource(ctx, "s-custom"), core.ErrNotFound)
	_, err = l.GetIncomeSource(ctx, "s-custom")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = l.UpdateIncomeSource(ctx, salary("missing"))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSQLite_AutoPostingIsUniquePerSourceAndDay(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	l := repo.Ledger("alice")
	day := core.NewDate(2024, 3, 27)

	_, err := l.InsertIncomeTransaction(ctx, autoPosting("t1", "s1", day))
	require.NoError(t, err)

	_, err = l.InsertIncomeTransaction(ctx, autoPosting("t2", "s1", day))
	assert.ErrorIs(t, err, core.ErrDuplicateEntry)

	// Manual postings for the same source and day are not constrained.
	for _, id := range []string{"m1", "m2"} {
		manual := autoPosting(id, "s1", day)
		manual.AutoAdded = false
		_, err = l.InsertIncomeTransaction(ctx, manual)
		require.NoError(t, err)
	}

	found, err := l.FindIncomeTransaction(ctx, "s1", day, true)
	require.NoError(t, err)
	assert.Equal(t, "t1", found.ID)

	_, err = l.FindIncomeTransaction(ctx, "s1", day.AddDays(1), true)
	assert.ErrorIs(t, err, core.ErrNotFound)

	// Another user may post the same source id on the same day.
	_, err = repo.Ledger("bob").InsertIncomeTransaction(ctx, autoPosting("t3", "s1", day))
	require.NoError(t, err)
}

func TestSQLite_ConcurrentAutoInsertsCreateOneRow(t *testing.T) {
	ctx := context.Background()
	l := newTestRepo(t).Ledger("alice")
	day := core.NewDate(2024, 3, 27)

	const writers = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		created    int
		duplicates int
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.InsertIncomeTransaction(ctx, autoPosting(string(rune('a'+i)), "s1", day))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, core.ErrDuplicateEntry):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, writers-1, duplicates)

	rows, err := l.QueryIncomeTransactions(ctx, core.AllTime(), "s1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSQLite_QueriesAreScopedAndRanged(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	alice, bob := repo.Ledger("alice"), repo.Ledger("bob")

	for i, day := range []core.Date{core.NewDate(2024, 1, 31), core.NewDate(2024, 2, 1), core.NewDate(2024, 2, 29)} {
		_, err := alice.InsertIncomeTransaction(ctx, autoPosting("a"+string(rune('0'+i)), "s1", day))
		require.NoError(t, err)
		_, err = alice.InsertExpense(ctx, core.Expense{
			ID: "e" + string(rune('0'+i)), Amount: core.Money{Cents: 1000}, Date: day,
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		})
		require.NoError(t, err)
	}
	_, err := bob.InsertIncomeTransaction(ctx, autoPosting("b1", "s1", core.NewDate(2024, 2, 10)))
	require.NoError(t, err)

	feb := core.MonthRange(2024, 2)
	incomes, err := alice.QueryIncomeTransactions(ctx, feb, "")
	require.NoError(t, err)
	require.Len(t, incomes, 2)
	assert.Equal(t, core.NewDate(2024, 2, 1), incomes[0].Date)
	assert.Equal(t, core.NewDate(2024, 2, 29), incomes[1].Date)
	assert.Equal(t, "s1", incomes[0].SourceID)

	expenses, err := alice.QueryExpenses(ctx, feb)
	require.NoError(t, err)
	assert.Len(t, expenses, 2)

	none, err := alice.QueryIncomeTransactions(ctx, core.AllTime(), "other")
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := bob.QueryIncomeTransactions(ctx, core.AllTime(), "")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, alice.DeleteExpense(ctx, "e0"))
	assert.ErrorIs(t, bob.DeleteExpense(ctx, "e1"), core.ErrNotFound)
}

func TestSQLite_DeletingSourceKeepsPostings(t *testing.T) {
	ctx := context.Background()
	l := newTestRepo(t).Ledger("alice")

	_, err := l.CreateIncomeSource(ctx, salary("s1"))
	require.NoError(t, err)
	_, err = l.InsertIncomeTransaction(ctx, autoPosting("t1", "s1", core.NewDate(2024, 1, 27)))
	require.NoError(t, err)

	require.NoError(t, l.DeleteIncomeSource(ctx, "s1"))

	rows, err := l.QueryIncomeTransactions(ctx, core.AllTime(), "s1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "s1", rows[0].SourceID)
}

func TestSQLite_StartingBalanceAndUsers(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	alice := repo.Ledger("alice")

	got, err := alice.GetStartingBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Money{}, got)

	require.NoError(t, alice.SetStartingBalance(ctx, core.Money{Cents: 10000}))
	require.NoError(t, alice.SetStartingBalance(ctx, core.Money{Cents: -2500}))
	got, err = alice.GetStartingBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Money{Cents: -2500}, got)

	_, err = alice.CreateIncomeSource(ctx, salary("s1"))
	require.NoError(t, err)
	manual := salary("s2")
	manual.AutoAdd = false
	_, err = repo.Ledger("carol").CreateIncomeSource(ctx, manual)
	require.NoError(t, err)

	users, err := repo.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, users)

	manualIncome := autoPosting("t1", "", core.NewDate(2024, 2, 1))
	manualIncome.AutoAdded = false
	_, err = repo.Ledger("dave").InsertIncomeTransaction(ctx, manualIncome)
	require.NoError(t, err)
	withPostings, err := repo.PostingUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"dave"}, withPostings)
}

func TestSQLite_ZeroCacheTTLSeesOtherProcessWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	worker, err := NewSQLiteRepository(path, Options{SourceCacheTTL: 0})
	require.NoError(t, err)
	t.Cleanup(func() { _ = worker.Close() })
	api, err := NewSQLiteRepository(path, Options{SourceCacheTTL: 0})
	require.NoError(t, err)
	t.Cleanup(func() { _ = api.Close() })

	active, err := worker.Ledger("alice").ListActiveIncomeSources(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = api.Ledger("alice").CreateIncomeSource(ctx, salary("s1"))
	require.NoError(t, err)
	active, err = worker.Ledger("alice").ListActiveIncomeSources(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	deactivated := salary("s1")
	deactivated.IsActive = false
	_, err = api.Ledger("alice").UpdateIncomeSource(ctx, deactivated)
	require.NoError(t, err)
	active, err = worker.Ledger("alice").ListActiveIncomeSources(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}
