package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// PostingPublisher announces newly materialized postings. It is optional.
type PostingPublisher interface {
	PublishIncomePosted(ctx context.Context, userID string, tx core.IncomeTransaction) error
}

// SchedulerConfig holds the knobs for a daily check run.
type SchedulerConfig struct {
	// StorageTimeout bounds every repository call (default: 5s).
	StorageTimeout time.Duration

	// Concurrency is how many sources are processed at once (default: 4).
	Concurrency int
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		StorageTimeout: 5 * time.Second,
		Concurrency:    4,
	}
}

// SourceFailure records a repository error for one source. The source is
// retried on the next run.
type SourceFailure struct {
	SourceID   string
	SourceName string
	Err        error
}

func (f SourceFailure) Error() string {
	return fmt.Sprintf("source %s (%s): %v", f.SourceID, f.SourceName, f.Err)
}

// RunResult is the outcome of one daily check.
type RunResult struct {
	Day      core.Date
	Checked  int
	Created  []core.IncomeTransaction
	Failures []SourceFailure
}

// SchedulerRunner materializes at most one automatic posting per source per
// day. The existence check before insert only saves a write; uniqueness is
// guaranteed by the repository rejecting the second insert.
type SchedulerRunner struct {
	repo      interface {
		ledger.SourceReader
		ledger.PostingStore
	}
	publisher PostingPublisher
	userID    string
	config    SchedulerConfig
	now       func() time.Time
}

// NewSchedulerRunner creates a runner for one user's ledger. publisher may be nil.
func NewSchedulerRunner(repo ledger.Repository, publisher PostingPublisher, userID string, config SchedulerConfig) *SchedulerRunner {
	defaults := DefaultSchedulerConfig()
	if config.StorageTimeout <= 0 {
		config.StorageTimeout = defaults.StorageTimeout
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	return &SchedulerRunner{
		repo:      repo,
		publisher: publisher,
		userID:    userID,
		config:    config,
		now:       time.Now,
	}
}

// RunDailyCheck posts today's income for every matching auto-add source.
// A failing source never stops the others; its error is returned in
// RunResult.Failures. The returned error is set only when the source list
// itself cannot be read.
func (r *SchedulerRunner) RunDailyCheck(ctx context.Context, today core.Date) (RunResult, error) {
	result := RunResult{Day: today}

	listCtx, cancel := context.WithTimeout(ctx, r.config.StorageTimeout)
	sources, err := r.repo.ListActiveIncomeSources(listCtx)
	cancel()
	if err != nil {
		return result, fmt.Errorf("list active income sources: %w", err)
	}

	created := make([]*core.IncomeTransaction, len(sources))
	var (
		mu       sync.Mutex
		failures []SourceFailure
	)

	g := new(errgroup.Group)
	g.SetLimit(r.config.Concurrency)
	for i, s := range sources {
		if !s.Schedulable(today) {
			continue
		}
		result.Checked++
		g.Go(func() error {
			tx, err := r.postSource(ctx, s, today)
			if err != nil {
				mu.Lock()
				failures = append(failures, SourceFailure{SourceID: s.ID, SourceName: s.Name, Err: err})
				mu.Unlock()
				slog.ErrorContext(ctx, "Failed to post recurring income",
					"user_id", r.userID,
					"source_id", s.ID,
					"date", today.String(),
					"error", err)
				return nil
			}
			created[i] = tx
			return nil
		})
	}
	_ = g.Wait()

	for _, tx := range created {
		if tx != nil {
			result.Created = append(result.Created, *tx)
		}
	}
	result.Failures = sortFailures(failures, sources)

	for _, tx := range result.Created {
		r.publish(ctx, tx)
	}

	slog.InfoContext(ctx, "Daily income check complete",
		"user_id", r.userID,
		"date", today.String(),
		"sources", len(sources),
		"checked", result.Checked,
		"created", len(result.Created),
		"failed", len(result.Failures))

	return result, nil
}

// postSource returns a nil transaction when nothing had to be posted.
func (r *SchedulerRunner) postSource(ctx context.Context, s core.IncomeSource, today core.Date) (*core.IncomeTransaction, error) {
	if !Matches(today, s) {
		return nil, nil
	}

	findCtx, cancel := context.WithTimeout(ctx, r.config.StorageTimeout)
	_, err := r.repo.FindIncomeTransaction(findCtx, s.ID, today, true)
	cancel()
	switch {
	case err == nil:
		return nil, nil
	case !errors.Is(err, core.ErrNotFound):
		return nil, fmt.Errorf("find posting: %w", err)
	}

	entry := core.IncomeTransaction{
		ID:          uuid.NewString(),
		SourceID:    s.ID,
		Amount:      s.Amount,
		Currency:    s.Currency,
		Date:        today,
		Description: s.Name,
		AutoAdded:   true,
		CreatedAt:   r.now().UTC(),
	}

	insertCtx, cancel := context.WithTimeout(ctx, r.config.StorageTimeout)
	defer cancel()
	saved, err := r.repo.InsertIncomeTransaction(insertCtx, entry)
	if errors.Is(err, core.ErrDuplicateEntry) {
		// Another run posted first.
		slog.DebugContext(ctx, "Posting already exists", "source_id", s.ID, "date", today.String())
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("insert posting: %w", err)
	}

	slog.InfoContext(ctx, "Created income from recurring source",
		"user_id", r.userID,
		"source_id", s.ID,
		"transaction_id", saved.ID,
		"amount_cents", saved.Amount.Cents,
		"frequency", s.Frequency)
	return &saved, nil
}

func (r *SchedulerRunner) publish(ctx context.Context, tx core.IncomeTransaction) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishIncomePosted(ctx, r.userID, tx); err != nil {
		// The posting is already durable; the mirror catches up later.
		slog.ErrorContext(ctx, "Failed to publish posting event",
			"user_id", r.userID,
			"transaction_id", tx.ID,
			"error", err)
	}
}

// sortFailures orders failures like the source list so results are stable.
func sortFailures(failures []SourceFailure, sources []core.IncomeSource) []SourceFailure {
	pos := make(map[string]int, len(sources))
	for i, s := range sources {
		pos[s.ID] = i
	}
	slices.SortFunc(failures, func(a, b SourceFailure) int {
		return pos[a.SourceID] - pos[b.SourceID]
	})
	return failures
}
