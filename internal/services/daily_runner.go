package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// DailyRunnerConfig holds configuration for the daily runner.
type DailyRunnerConfig struct {
	// Schedule is a standard five-field cron expression (default: "5 0 * * *").
	Schedule string

	// RunOnStart triggers one pass as soon as Start is called.
	RunOnStart bool

	// UserConcurrency bounds how many users are processed at once (default: 4).
	UserConcurrency int

	// Location decides which calendar day "today" is (default: UTC).
	Location *time.Location

	Scheduler SchedulerConfig
}

func DefaultDailyRunnerConfig() DailyRunnerConfig {
	return DailyRunnerConfig{
		Schedule:        "5 0 * * *",
		UserConcurrency: 4,
		Location:        time.UTC,
		Scheduler:       DefaultSchedulerConfig(),
	}
}

// UserRun is the outcome of the daily check for one user.
type UserRun struct {
	UserID string
	Result RunResult
	Err    error
}

// DailyRunner runs the daily check for every user with auto-posting
// sources, on a cron schedule.
type DailyRunner struct {
	provider  ledger.Provider
	publisher PostingPublisher
	config    DailyRunnerConfig
	now       func() time.Time

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
	runMu   sync.Mutex

	// passes tracks run-on-start passes, which cron does not know about.
	passes sync.WaitGroup
}

// NewDailyRunner creates a runner. publisher may be nil.
func NewDailyRunner(provider ledger.Provider, publisher PostingPublisher, config DailyRunnerConfig) *DailyRunner {
	defaults := DefaultDailyRunnerConfig()
	if config.Schedule == "" {
		config.Schedule = defaults.Schedule
	}
	if config.UserConcurrency <= 0 {
		config.UserConcurrency = defaults.UserConcurrency
	}
	if config.Location == nil {
		config.Location = defaults.Location
	}
	return &DailyRunner{
		provider:  provider,
		publisher: publisher,
		config:    config,
		now:       time.Now,
	}
}

// Today is the current calendar day in the configured location.
func (r *DailyRunner) Today() core.Date {
	return core.DateOf(r.now().In(r.config.Location))
}

// Start registers the schedule and returns. Returns an error if already
// running or if the schedule does not parse.
func (r *DailyRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("daily runner is already running")
	}

	c := cron.New(cron.WithLocation(r.config.Location))
	if _, err := c.AddFunc(r.config.Schedule, func() { r.tick(ctx) }); err != nil {
		return fmt.Errorf("register daily check %q: %w", r.config.Schedule, err)
	}
	c.Start()
	r.cron = c
	r.running = true

	slog.InfoContext(ctx, "Daily runner started",
		"schedule", r.config.Schedule,
		"location", r.config.Location.String(),
		"run_on_start", r.config.RunOnStart)

	if r.config.RunOnStart {
		r.passes.Add(1)
		go func() {
			defer r.passes.Done()
			r.tick(ctx)
		}()
	}
	return nil
}

// Stop waits for an in-flight pass, scheduled or run-on-start, to finish
// or ctx to expire.
func (r *DailyRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	c := r.cron
	r.running = false
	r.cron = nil
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		<-c.Stop().Done()
		r.passes.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.InfoContext(ctx, "Daily runner stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Daily runner stop timed out")
		return ctx.Err()
	}
}

func (r *DailyRunner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *DailyRunner) tick(ctx context.Context) {
	if _, err := r.RunAll(ctx, r.Today()); err != nil {
		slog.ErrorContext(ctx, "Daily check failed", "error", err)
	}
}

// RunAll runs the daily check for every user. Passes never overlap; a
// second caller waits for the first to finish, then finds nothing to post.
// One user's failure does not affect the others.
func (r *DailyRunner) RunAll(ctx context.Context, day core.Date) ([]UserRun, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	users, err := r.provider.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	runs := make([]UserRun, len(users))
	g := new(errgroup.Group)
	g.SetLimit(r.config.UserConcurrency)
	for i, userID := range users {
		g.Go(func() error {
			runner := NewSchedulerRunner(r.provider.Ledger(userID), r.publisher, userID, r.config.Scheduler)
			res, err := runner.RunDailyCheck(ctx, day)
			runs[i] = UserRun{UserID: userID, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var created, failed int
	for _, run := range runs {
		created += len(run.Result.Created)
		if run.Err != nil || len(run.Result.Failures) > 0 {
			failed++
		}
	}
	slog.InfoContext(ctx, "Daily check pass complete",
		"date", day.String(),
		"users", len(users),
		"created", created,
		"users_with_failures", failed)
	return runs, nil
}
