package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/memory"
)

type fakePublisher struct {
	mu  sync.Mutex
	txs []core.IncomeTransaction
	err error
}

func (p *fakePublisher) PublishIncomePosted(_ context.Context, _ string, tx core.IncomeTransaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txs = append(p.txs, tx)
	return p.err
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.txs)
}

// flakyStore fails lookups for selected sources and can pretend that a
// concurrent writer got there first.
type flakyStore struct {
	ledger.Store
	failFor  map[string]error
	raceFor  map[string]bool
	blockFor map[string]bool
	listErr  error
}

func (f *flakyStore) ListActiveIncomeSources(ctx context.Context) ([]core.IncomeSource, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Store.ListActiveIncomeSources(ctx)
}

func (f *flakyStore) FindIncomeTransaction(ctx context.Context, sourceID string, date core.Date, autoAdded bool) (core.IncomeTransaction, error) {
	if err, ok := f.failFor[sourceID]; ok {
		return core.IncomeTransaction{}, err
	}
	if f.blockFor[sourceID] {
		<-ctx.Done()
		return core.IncomeTransaction{}, core.WrapRepo("find income transaction", ctx.Err())
	}
	if f.raceFor[sourceID] {
		return core.IncomeTransaction{}, core.ErrNotFound
	}
	return f.Store.FindIncomeTransaction(ctx, sourceID, date, autoAdded)
}

func (f *flakyStore) InsertIncomeTransaction(ctx context.Context, tx core.IncomeTransaction) (core.IncomeTransaction, error) {
	if f.raceFor[tx.SourceID] {
		return core.IncomeTransaction{}, core.ErrDuplicateEntry
	}
	return f.Store.InsertIncomeTransaction(ctx, tx)
}

func seed(t *testing.T, store ledger.Store, sources ...core.IncomeSource) {
	t.Helper()
	for _, s := range sources {
		_, err := store.CreateIncomeSource(context.Background(), s)
		require.NoError(t, err)
	}
}

func autoPostings(t *testing.T, store ledger.Store) []core.IncomeTransaction {
	t.Helper()
	txs, err := store.QueryIncomeTransactions(context.Background(), core.AllTime(), "")
	require.NoError(t, err)
	return txs
}

func TestSchedulerRunner_PostsMatchingSources(t *testing.T) {
	ctx := context.Background()
	store := memory.New().Ledger("alice")

	monthly := sourceFor(core.Monthly)
	monthly.Currency = "EUR"
	notAuto := sourceFor(core.Monthly)
	notAuto.ID = "not-auto"
	notAuto.AutoAdd = false
	inactive := sourceFor(core.Monthly)
	inactive.ID = "inactive"
	inactive.IsActive = false
	future := sourceFor(core.Monthly)
	future.ID = "future"
	future.StartDate = core.NewDate(2024, 6, 1)
	seed(t, store, monthly, notAuto, inactive, future, sourceFor(core.Weekly))

	pub := &fakePublisher{}
	runner := NewSchedulerRunner(store, pub, "alice", SchedulerConfig{})
	day := core.NewDate(2024, 1, 15) // a Monday

	res, err := runner.RunDailyCheck(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, day, res.Day)
	assert.Equal(t, 2, res.Checked, "monthly and weekly are schedulable")
	assert.Empty(t, res.Failures)
	require.Len(t, res.Created, 1)

	tx := res.Created[0]
	assert.Equal(t, monthly.ID, tx.SourceID)
	assert.Equal(t, monthly.Amount, tx.Amount)
	assert.Equal(t, "EUR", tx.Currency)
	assert.Equal(t, monthly.Name, tx.Description)
	assert.True(t, tx.AutoAdded)
	assert.Equal(t, day, tx.Date)
	assert.NotEmpty(t, tx.ID)

	assert.Equal(t, 1, pub.count())
}

func TestSchedulerRunner_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New().Ledger("alice")
	seed(t, store, sourceFor(core.Monthly))
	pub := &fakePublisher{}
	runner := NewSchedulerRunner(store, pub, "alice", SchedulerConfig{})
	day := core.NewDate(2024, 1, 15)

	for i := 0; i < 3; i++ {
		_, err := runner.RunDailyCheck(ctx, day)
		require.NoError(t, err)
	}
	assert.Len(t, autoPostings(t, store), 1)
	assert.Equal(t, 1, pub.count(), "only new postings are announced")
}

func TestSchedulerRunner_ConcurrentRunsPostOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.New().Ledger("alice")
	seed(t, store, sourceFor(core.Monthly), sourceFor(core.Custom))
	day := core.NewDate(2024, 1, 15)

	var wg sync.WaitGroup
	created := make([]int, 8)
	for i := range created {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := NewSchedulerRunner(store, nil, "alice", SchedulerConfig{}).RunDailyCheck(ctx, day)
			assert.NoError(t, err)
			assert.Empty(t, res.Failures)
			created[i] = len(res.Created)
		}()
	}
	wg.Wait()

	var total int
	for _, n := range created {
		total += n
	}
	assert.Equal(t, 2, total)
	assert.Len(t, autoPostings(t, store), 2)
}

func TestSchedulerRunner_DuplicateInsertIsNoOp(t *testing.T) {
	store := &flakyStore{Store: memory.New().Ledger("alice"), raceFor: map[string]bool{"src-MONTHLY": true}}
	seed(t, store, sourceFor(core.Monthly))
	pub := &fakePublisher{}

	res, err := NewSchedulerRunner(store, pub, "alice", SchedulerConfig{}).RunDailyCheck(context.Background(), core.NewDate(2024, 1, 15))
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Empty(t, res.Failures)
	assert.Zero(t, pub.count())
}

func TestSchedulerRunner_PartialFailure(t *testing.T) {
	broken := sourceFor(core.Monthly)
	broken.ID = "broken"
	broken.Name = "Broken"
	store := &flakyStore{
		Store:   memory.New().Ledger("alice"),
		failFor: map[string]error{"broken": core.WrapRepo("find income transaction", errors.New("disk I/O error"))},
	}
	seed(t, store, broken, sourceFor(core.Monthly), sourceFor(core.Custom))

	res, err := NewSchedulerRunner(store, nil, "alice", SchedulerConfig{Concurrency: 1}).RunDailyCheck(context.Background(), core.NewDate(2024, 1, 15))
	require.NoError(t, err)
	assert.Len(t, res.Created, 2, "healthy sources still post")
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "broken", res.Failures[0].SourceID)
	assert.Equal(t, "Broken", res.Failures[0].SourceName)
	var repoErr *core.RepositoryError
	assert.ErrorAs(t, res.Failures[0].Err, &repoErr)
	assert.Contains(t, res.Failures[0].Error(), "broken")

	// The failed source is picked up by the next run.
	delete(store.failFor, "broken")
	res, err = NewSchedulerRunner(store, nil, "alice", SchedulerConfig{}).RunDailyCheck(context.Background(), core.NewDate(2024, 1, 15))
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.Equal(t, "broken", res.Created[0].SourceID)
}

func TestSchedulerRunner_StorageTimeout(t *testing.T) {
	store := &flakyStore{Store: memory.New().Ledger("alice"), blockFor: map[string]bool{"src-MONTHLY": true}}
	seed(t, store, sourceFor(core.Monthly))

	start := time.Now()
	res, err := NewSchedulerRunner(store, nil, "alice", SchedulerConfig{StorageTimeout: 20 * time.Millisecond}).
		RunDailyCheck(context.Background(), core.NewDate(2024, 1, 15))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, res.Failures, 1)
	var repoErr *core.RepositoryError
	require.ErrorAs(t, res.Failures[0].Err, &repoErr)
	assert.True(t, repoErr.Timeout())
}

func TestSchedulerRunner_ListFailure(t *testing.T) {
	store := &flakyStore{Store: memory.New().Ledger("alice"), listErr: core.WrapRepo("list", errors.New("unreachable"))}

	res, err := NewSchedulerRunner(store, nil, "alice", SchedulerConfig{}).RunDailyCheck(context.Background(), core.NewDate(2024, 1, 15))
	require.Error(t, err)
	assert.Empty(t, res.Created)
}

func TestSchedulerRunner_PublishFailureKeepsPosting(t *testing.T) {
	store := memory.New().Ledger("alice")
	seed(t, store, sourceFor(core.Monthly))
	pub := &fakePublisher{err: errors.New("broker down")}

	res, err := NewSchedulerRunner(store, pub, "alice", SchedulerConfig{}).RunDailyCheck(context.Background(), core.NewDate(2024, 1, 15))
	require.NoError(t, err)
	assert.Len(t, res.Created, 1)
	assert.Empty(t, res.Failures)
	assert.Len(t, autoPostings(t, store), 1)
}

func TestSchedulerRunner_ManualEntryDoesNotBlockAutoPosting(t *testing.T) {
	ctx := context.Background()
	store := memory.New().Ledger("alice")
	src := sourceFor(core.Monthly)
	seed(t, store, src)
	_, err := store.InsertIncomeTransaction(ctx, core.IncomeTransaction{
		ID: "manual", SourceID: src.ID, Amount: core.Money{Cents: 500}, Date: core.NewDate(2024, 1, 15),
	})
	require.NoError(t, err)

	res, err := NewSchedulerRunner(store, nil, "alice", SchedulerConfig{}).RunDailyCheck(ctx, core.NewDate(2024, 1, 15))
	require.NoError(t, err)
	assert.Len(t, res.Created, 1)
}
