// Package memory is an in-process ledger backend. It keeps the same
// uniqueness guarantee as the SQLite store by checking under one mutex.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

type Store struct {
	mu    sync.Mutex
	books map[string]*book
}

type book struct {
	sources  map[string]core.IncomeSource
	incomes  []core.IncomeTransaction
	expenses []core.Expense
	starting core.Money
}

var (
	_ ledger.Provider = (*Store)(nil)
	_ ledger.Store    = (*Ledger)(nil)
)

func New() *Store {
	return &Store{books: make(map[string]*book)}
}

// Ledger returns the view of one user's book.
func (s *Store) Ledger(userID string) ledger.Store {
	return &Ledger{store: s, userID: userID}
}

func (s *Store) Users(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var users []string
	for id, b := range s.books {
		for _, src := range b.sources {
			if src.IsActive && src.AutoAdd {
				users = append(users, id)
				break
			}
		}
	}
	sort.Strings(users)
	return users, nil
}

func (s *Store) PostingUsers(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var users []string
	for id, b := range s.books {
		if len(b.incomes) > 0 {
			users = append(users, id)
		}
	}
	sort.Strings(users)
	return users, nil
}

func (s *Store) Close() error { return nil }

// book must be called with s.mu held.
func (s *Store) book(userID string) *book {
	b, ok := s.books[userID]
	if !ok {
		b = &book{sources: make(map[string]core.IncomeSource)}
		s.books[userID] = b
	}
	return b
}

// Ledger is a single user's book.
type Ledger struct {
	store  *Store
	userID string
}

func (l *Ledger) lock() *book {
	l.store.mu.Lock()
	return l.store.book(l.userID)
}

func (l *Ledger) unlock() { l.store.mu.Unlock() }

func (l *Ledger) ListActiveIncomeSources(ctx context.Context) ([]core.IncomeSource, error) {
	all, err := l.ListIncomeSources(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(s core.IncomeSource) bool { return !s.IsActive }), nil
}

func (l *Ledger) ListIncomeSources(ctx context.Context) ([]core.IncomeSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.WrapRepo("list income sources", err)
	}
	b := l.lock()
	defer l.unlock()
	out := make([]core.IncomeSource, 0, len(b.sources))
	for _, s := range b.sources {
		out = append(out, cloneSource(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (l *Ledger) GetIncomeSource(_ context.Context, id string) (core.IncomeSource, error) {
	b := l.lock()
	defer l.unlock()
	s, ok := b.sources[id]
	if !ok {
		return core.IncomeSource{}, core.ErrNotFound
	}
	return cloneSource(s), nil
}

func (l *Ledger) CreateIncomeSource(_ context.Context, s core.IncomeSource) (core.IncomeSource, error) {
	b := l.lock()
	defer l.unlock()
	if _, exists := b.sources[s.ID]; exists {
		return core.IncomeSource{}, core.ErrDuplicateEntry
	}
	b.sources[s.ID] = cloneSource(s)
	return s, nil
}

func (l *Ledger) UpdateIncomeSource(_ context.Context, s core.IncomeSource) (core.IncomeSource, error) {
	b := l.lock()
	defer l.unlock()
	if _, exists := b.sources[s.ID]; !exists {
		return core.IncomeSource{}, core.ErrNotFound
	}
	b.sources[s.ID] = cloneSource(s)
	return s, nil
}

func (l *Ledger) DeleteIncomeSource(_ context.Context, id string) error {
	b := l.lock()
	defer l.unlock()
	if _, exists := b.sources[id]; !exists {
		return core.ErrNotFound
	}
	delete(b.sources, id)
	return nil
}

func (l *Ledger) FindIncomeTransaction(ctx context.Context, sourceID string, date core.Date, autoAdded bool) (core.IncomeTransaction, error) {
	if err := ctx.Err(); err != nil {
		return core.IncomeTransaction{}, core.WrapRepo("find income transaction", err)
	}
	b := l.lock()
	defer l.unlock()
	for _, tx := range b.incomes {
		if tx.SourceID == sourceID && tx.Date.Equal(date) && tx.AutoAdded == autoAdded {
			return tx, nil
		}
	}
	return core.IncomeTransaction{}, core.ErrNotFound
}

func (l *Ledger) InsertIncomeTransaction(ctx context.Context, tx core.IncomeTransaction) (core.IncomeTransaction, error) {
	if err := ctx.Err(); err != nil {
		return core.IncomeTransaction{}, core.WrapRepo("insert income transaction", err)
	}
	b := l.lock()
	defer l.unlock()
	for _, existing := range b.incomes {
		if existing.ID == tx.ID {
			return core.IncomeTransaction{}, core.ErrDuplicateEntry
		}
		if tx.AutoAdded && existing.AutoAdded && existing.SourceID == tx.SourceID && existing.Date.Equal(tx.Date) {
			return core.IncomeTransaction{}, core.ErrDuplicateEntry
		}
	}
	b.incomes = append(b.incomes, tx)
	return tx, nil
}

func (l *Ledger) DeleteIncomeTransaction(_ context.Context, id string) error {
	b := l.lock()
	defer l.unlock()
	for i, tx := range b.incomes {
		if tx.ID == id {
			b.incomes = slices.Delete(b.incomes, i, i+1)
			return nil
		}
	}
	return core.ErrNotFound
}

func (l *Ledger) QueryIncomeTransactions(ctx context.Context, r core.DateRange, sourceID string) ([]core.IncomeTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.WrapRepo("query income transactions", err)
	}
	b := l.lock()
	defer l.unlock()
	var out []core.IncomeTransaction
	for _, tx := range b.incomes {
		if !r.Contains(tx.Date) || (sourceID != "" && tx.SourceID != sourceID) {
			continue
		}
		out = append(out, tx)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (l *Ledger) InsertExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	b := l.lock()
	defer l.unlock()
	for _, existing := range b.expenses {
		if existing.ID == e.ID {
			return core.Expense{}, core.ErrDuplicateEntry
		}
	}
	b.expenses = append(b.expenses, e)
	return e, nil
}

func (l *Ledger) DeleteExpense(_ context.Context, id string) error {
	b := l.lock()
	defer l.unlock()
	for i, e := range b.expenses {
		if e.ID == id {
			b.expenses = slices.Delete(b.expenses, i, i+1)
			return nil
		}
	}
	return core.ErrNotFound
}

func (l *Ledger) QueryExpenses(ctx context.Context, r core.DateRange) ([]core.Expense, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.WrapRepo("query expenses", err)
	}
	b := l.lock()
	defer l.unlock()
	var out []core.Expense
	for _, e := range b.expenses {
		if r.Contains(e.Date) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (l *Ledger) GetStartingBalance(ctx context.Context) (core.Money, error) {
	if err := ctx.Err(); err != nil {
		return core.Money{}, core.WrapRepo("get starting balance", err)
	}
	b := l.lock()
	defer l.unlock()
	return b.starting, nil
}

func (l *Ledger) SetStartingBalance(_ context.Context, m core.Money) error {
	b := l.lock()
	defer l.unlock()
	b.starting = m
	return nil
}

func cloneSource(s core.IncomeSource) core.IncomeSource {
	if s.DayOfWeek != nil {
		d := *s.DayOfWeek
		s.DayOfWeek = &d
	}
	if s.DayOfMonth != nil {
		d := *s.DayOfMonth
		s.DayOfMonth = &d
	}
	s.CustomDays = slices.Clone(s.CustomDays)
	return s
}
