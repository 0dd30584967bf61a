package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// LedgerService is the per-user entry point used by the API: source
// management, manual entries, the daily check, statistics and balance.
type LedgerService struct {
	store      ledger.Store
	publisher  PostingPublisher
	userID     string
	scheduler  *SchedulerRunner
	aggregator *PeriodAggregator
	balance    *BalanceEngine
	now        func() time.Time
}

func NewLedgerService(store ledger.Store, publisher PostingPublisher, userID string, config SchedulerConfig) *LedgerService {
	return &LedgerService{
		store:      store,
		publisher:  publisher,
		userID:     userID,
		scheduler:  NewSchedulerRunner(store, publisher, userID, config),
		aggregator: NewPeriodAggregator(store),
		balance:    NewBalanceEngine(store),
		now:        time.Now,
	}
}

// CreateSource validates and stores a new recurring definition.
func (s *LedgerService) CreateSource(ctx context.Context, src core.IncomeSource) (core.IncomeSource, error) {
	src.Name = strings.TrimSpace(src.Name)
	if err := src.Validate(); err != nil {
		return core.IncomeSource{}, err
	}
	now := s.now().UTC()
	src.ID = uuid.NewString()
	src.CreatedAt, src.UpdatedAt = now, now

	saved, err := s.store.CreateIncomeSource(ctx, src)
	if err != nil {
		return core.IncomeSource{}, fmt.Errorf("create income source: %w", err)
	}
	slog.InfoContext(ctx, "Income source created",
		"user_id", s.userID,
		"source_id", saved.ID,
		"frequency", saved.Frequency,
		"amount_cents", saved.Amount.Cents)
	return saved, nil
}

// UpdateSource replaces a definition. Already materialized postings are
// left as they are; the new rule applies to future checks only.
func (s *LedgerService) UpdateSource(ctx context.Context, src core.IncomeSource) (core.IncomeSource, error) {
	existing, err := s.store.GetIncomeSource(ctx, src.ID)
	if err != nil {
		return core.IncomeSource{}, fmt.Errorf("get income source: %w", err)
	}
	src.Name = strings.TrimSpace(src.Name)
	if err := src.Validate(); err != nil {
		return core.IncomeSource{}, err
	}
	src.CreatedAt = existing.CreatedAt
	src.UpdatedAt = s.now().UTC()

	saved, err := s.store.UpdateIncomeSource(ctx, src)
	if err != nil {
		return core.IncomeSource{}, fmt.Errorf("update income source: %w", err)
	}
	return saved, nil
}

// DeleteSource removes the definition only; its postings stay in the ledger.
func (s *LedgerService) DeleteSource(ctx context.Context, id string) error {
	if err := s.store.DeleteIncomeSource(ctx, id); err != nil {
		return fmt.Errorf("delete income source: %w", err)
	}
	return nil
}

func (s *LedgerService) GetSource(ctx context.Context, id string) (core.IncomeSource, error) {
	return s.store.GetIncomeSource(ctx, id)
}

func (s *LedgerService) ListSources(ctx context.Context) ([]core.IncomeSource, error) {
	return s.store.ListIncomeSources(ctx)
}

// SourceOccurrences enumerates the occurrence dates of one source.
func (s *LedgerService) SourceOccurrences(ctx context.Context, id string, start, end core.Date) ([]core.Date, error) {
	src, err := s.store.GetIncomeSource(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := (core.DateRange{Start: start, End: end}).Validate(); err != nil {
		return nil, err
	}
	return OccurrencesInRange(src, start, end), nil
}

// AddManualIncome records a user-entered income. A referenced source must
// exist; the entry is never flagged as automatic.
func (s *LedgerService) AddManualIncome(ctx context.Context, tx core.IncomeTransaction) (core.IncomeTransaction, error) {
	tx.AutoAdded = false
	tx.Description = strings.TrimSpace(tx.Description)
	if err := tx.Validate(); err != nil {
		return core.IncomeTransaction{}, err
	}
	if tx.SourceID != "" {
		src, err := s.store.GetIncomeSource(ctx, tx.SourceID)
		if err != nil {
			return core.IncomeTransaction{}, fmt.Errorf("get income source: %w", err)
		}
		if tx.Description == "" {
			tx.Description = src.Name
		}
		if tx.Currency == "" {
			tx.Currency = src.Currency
		}
	}
	tx.ID = uuid.NewString()
	tx.CreatedAt = s.now().UTC()

	saved, err := s.store.InsertIncomeTransaction(ctx, tx)
	if err != nil {
		return core.IncomeTransaction{}, fmt.Errorf("insert income: %w", err)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishIncomePosted(ctx, s.userID, saved); err != nil {
			slog.ErrorContext(ctx, "Failed to publish posting event",
				"user_id", s.userID,
				"transaction_id", saved.ID,
				"error", err)
		}
	}
	return saved, nil
}

func (s *LedgerService) DeleteIncome(ctx context.Context, id string) error {
	return s.store.DeleteIncomeTransaction(ctx, id)
}

func (s *LedgerService) ListIncomes(ctx context.Context, r core.DateRange, sourceID string) ([]core.IncomeTransaction, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return s.store.QueryIncomeTransactions(ctx, r, sourceID)
}

func (s *LedgerService) AddExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	e.Description = strings.TrimSpace(e.Description)
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	now := s.now().UTC()
	e.ID = uuid.NewString()
	e.CreatedAt, e.UpdatedAt = now, now

	saved, err := s.store.InsertExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	return saved, nil
}

func (s *LedgerService) DeleteExpense(ctx context.Context, id string) error {
	return s.store.DeleteExpense(ctx, id)
}

func (s *LedgerService) ListExpenses(ctx context.Context, r core.DateRange) ([]core.Expense, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return s.store.QueryExpenses(ctx, r)
}

func (s *LedgerService) RunDailyCheck(ctx context.Context, today core.Date) (RunResult, error) {
	return s.scheduler.RunDailyCheck(ctx, today)
}

func (s *LedgerService) TotalsForPeriod(ctx context.Context, start, end core.Date) (core.PeriodTotals, error) {
	return s.aggregator.TotalsForPeriod(ctx, start, end)
}

func (s *LedgerService) MonthTotals(ctx context.Context, year, month int) (core.PeriodTotals, error) {
	return s.aggregator.MonthTotals(ctx, year, month)
}

// Projection forecasts income from active sources over [start, end].
func (s *LedgerService) Projection(ctx context.Context, start, end core.Date) (core.Projection, error) {
	r := core.DateRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return core.Projection{}, err
	}
	sources, err := s.store.ListActiveIncomeSources(ctx)
	if err != nil {
		return core.Projection{}, fmt.Errorf("list active income sources: %w", err)
	}
	return ProjectIncome(sources, r)
}

func (s *LedgerService) CurrentBalance(ctx context.Context) (core.Money, error) {
	return s.balance.CurrentBalance(ctx)
}

func (s *LedgerService) CorrectBalanceTo(ctx context.Context, target core.Money) (core.Money, error) {
	return s.balance.CorrectBalanceTo(ctx, target)
}

func (s *LedgerService) StartingBalance(ctx context.Context) (core.Money, error) {
	return s.store.GetStartingBalance(ctx)
}

// SetStartingBalance records the onboarding balance.
func (s *LedgerService) SetStartingBalance(ctx context.Context, m core.Money) error {
	if err := s.store.SetStartingBalance(ctx, m); err != nil {
		return fmt.Errorf("set starting balance: %w", err)
	}
	return nil
}
