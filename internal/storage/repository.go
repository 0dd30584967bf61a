// Package storage is the SQLite ledger backend. Every user shares one
// database; each Ledger scopes its statements by user_id.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/ledger"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Fixed width so that lexical order on the column is chronological.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Options tunes the store. Zero values pick the defaults, except
// SourceCacheTTL where zero turns the cache off.
type Options struct {
	// Timeout bounds each statement. Callers may pass a tighter deadline.
	Timeout time.Duration
	// SourceCacheTTL is how long a user's active sources are served from
	// memory. Writes through this store invalidate immediately; writes from
	// another process become visible after the TTL. Zero disables caching.
	SourceCacheTTL time.Duration
	SourceCacheMax int
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.SourceCacheTTL < 0 {
		o.SourceCacheTTL = 0
	}
	if o.SourceCacheMax <= 0 {
		o.SourceCacheMax = 256
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type SQLiteRepository struct {
	db      *sql.DB
	opts    Options
	sources *cache.LRUCache[[]core.IncomeSource]
}

var (
	_ ledger.Provider = (*SQLiteRepository)(nil)
	_ ledger.Store    = (*Ledger)(nil)
)

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies pending migrations.
func NewSQLiteRepository(dbPath string, opts Options) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath, opts.Logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := newRepository(db, opts)
	repo.opts.Logger.Info("SQLite ledger ready", "path", dbPath)
	return repo, nil
}

func newRepository(db *sql.DB, opts Options) *SQLiteRepository {
	opts = opts.withDefaults()
	return &SQLiteRepository{
		db:      db,
		opts:    opts,
		sources: cache.NewLRUCache[[]core.IncomeSource](opts.SourceCacheMax, opts.SourceCacheTTL),
	}
}

// dsn enables WAL and a busy timeout so the API and the workers can share
// the file.
func dsn(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// SourceCache exposes the cache for periodic sweeping.
func (r *SQLiteRepository) SourceCache() cache.Cleaner { return r.sources }

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ledger(userID string) ledger.Store {
	return &Ledger{repo: r, userID: userID}
}

func (r *SQLiteRepository) Users(ctx context.Context) ([]string, error) {
	return r.listUsers(ctx, "list users",
		`SELECT DISTINCT user_id FROM income_sources WHERE is_active = 1 AND auto_add = 1 ORDER BY user_id`)
}

func (r *SQLiteRepository) PostingUsers(ctx context.Context) ([]string, error) {
	return r.listUsers(ctx, "list posting users",
		`SELECT DISTINCT user_id FROM income_transactions ORDER BY user_id`)
}

func (r *SQLiteRepository) listUsers(ctx context.Context, op, query string) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, core.WrapRepo(op, err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, core.WrapRepo(op, err)
		}
		users = append(users, u)
	}
	return users, core.WrapRepo(op, rows.Err())
}

func (r *SQLiteRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.opts.Timeout)
}

// isUniqueViolation recognises both the primary key and the partial unique
// index on automatic postings.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Ledger is one user's view of the database.
type Ledger struct {
	repo   *SQLiteRepository
	userID string
}

const sourceColumns = `id, name, amount_cents, currency, frequency, start_date,
	day_of_week, day_of_month, custom_days, auto_add, is_active, created_at, updated_at`

func (l *Ledger) ListActiveIncomeSources(ctx context.Context) ([]core.IncomeSource, error) {
	if cached, ok := l.repo.sources.Get(l.userID); ok {
		return cloneSources(cached), nil
	}
	out, err := l.querySources(ctx, "list active sources",
		`SELECT `+sourceColumns+` FROM income_sources
		 WHERE user_id = ? AND is_active = 1
		 ORDER BY created_at, id`, l.userID)
	if err != nil {
		return nil, err
	}
	l.repo.sources.Set(l.userID, cloneSources(out))
	return out, nil
}

func (l *Ledger) ListIncomeSources(ctx context.Context) ([]core.IncomeSource, error) {
	return l.querySources(ctx, "list sources",
		`SELECT `+sourceColumns+` FROM income_sources WHERE user_id = ? ORDER BY created_at, id`, l.userID)
}

func (l *Ledger) GetIncomeSource(ctx context.Context, id string) (core.IncomeSource, error) {
	out, err := l.querySources(ctx, "get source",
		`SELECT `+sourceColumns+` FROM income_sources WHERE user_id = ? AND id = ?`, l.userID, id)
	if err != nil {
		return core.IncomeSource{}, err
	}
	if len(out) == 0 {
		return core.IncomeSource{}, core.ErrNotFound
	}
	return out[0], nil
}

func (l *Ledger) CreateIncomeSource(ctx context.Context, s core.IncomeSource) (core.IncomeSource, error) {
	args, err := sourceArgs(s)
	if err != nil {
		return core.IncomeSource{}, err
	}
	ctx, cancel := l.repo.withTimeout(ctx)
	defer cancel()

	_, err = l.repo.db.ExecContext(ctx,
		`INSERT INTO income_sources (user_id, `+sourceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append([]any{l.userID, s.ID}, args...)...)
	if isUniqueViolation(err) {
		return core.IncomeSource{}, core.ErrDuplicateEntry
	}
	if err != nil {
		return core.IncomeSource{}, core.WrapRepo("create source", err)
	}
	l.repo.sources.Delete(l.userID)
	return s, nil
}

func (l *Ledger) UpdateIncomeSource(ctx context.Context, s core.IncomeSource) (core.IncomeSource, error) {
	args, err := sourceArgs(s)
	if err != nil {
		return core.IncomeSource{}, err
	}
	ctx, cancel := l.repo.withTimeout(ctx)
	defer cancel()

	res, err := l.repo.db.ExecContext(ctx,
		`UPDATE income_sources SET name = ?, amount_cents = ?, currency = ?, frequency = ?, start_date = ?,
		 day_of_week = ?, day_of_month = ?, custom_days = ?, auto_add = ?, is_active = ?,
		 created_at = ?, updated_at = ?
		 WHERE user_id = ? AND id = ?`,
		append(args, l.userID, s.ID)...)
	if err != nil {
		return core.IncomeSource{}, core.WrapRepo("update source", err)
	}
	if err := expectOne(res); err != nil {
		return core.IncomeSource{}, err
	}
	l.repo.sources.Delete(l.userID)
	return s, nil
}

// DeleteIncomeSource leaves the source's postings in the ledger.
func (l *Ledger) DeleteIncomeSource(ctx context.Context, id string) error {
	if err := l.exec(ctx, "delete source",
		`DELETE FROM income_sources WHERE user_id = ? AND id = ?`, l.userID, id); err != nil {
		return err
	}
	l.repo.sources.Delete(l.userID)
	return nil
}

func (l *Ledger) FindIncomeTransaction(ctx context.Context, sourceID string, date core.Date, autoAdded bool) (core.IncomeTransaction, error) {
	out, err := l.queryIncomes(ctx, "find income",
		`SELECT id, income_source_id, amount_cents, currency, date, description, auto_added, created_at
		 FROM income_transactions
		 WHERE user_id = ? AND income_source_id = ? AND date = ? AND auto_added = ?
		 LIMIT 1`, l.userID, sourceID, date.String(), autoAdded)
	if err != nil {
		return core.IncomeTransaction{}, err
	}
	if len(out) == 0 {
		return core.IncomeTransaction{}, core.ErrNotFound
	}
	return out[0], nil
}

func (l *Ledger) InsertIncomeTransaction(ctx context.Context, tx core.IncomeTransaction) (core.IncomeTransaction, error) {
	ctx, cancel := l.repo.withTimeout(ctx)
	defer cancel()

	_, err := l.repo.db.ExecContext(ctx,
		`INSERT INTO income_transactions
		 (id, user_id, income_source_id, amount_cents, currency, date, description, auto_added, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, l.userID, nullString(tx.SourceID), tx.Amount.Cents, tx.Currency, tx.Date.String(),
		tx.Description, tx.AutoAdded, tx.CreatedAt.UTC().Format(timestampLayout))
	if isUniqueViolation(err) {
		return core.IncomeTransaction{}, core.ErrDuplicateEntry
	}
	if err != nil {
		return core.IncomeTransaction{}, core.WrapRepo("insert income", err)
	}
	return tx, nil
}

func (l *Ledger) DeleteIncomeTransaction(ctx context.Context, id string) error {
	return l.exec(ctx, "delete income",
		`DELETE FROM income_transactions WHERE user_id = ? AND id = ?`, l.userID, id)
}

func (l *Ledger) QueryIncomeTransactions(ctx context.Context, r core.DateRange, sourceID string) ([]core.IncomeTransaction, error) {
	where, args := rangeClause(l.userID, r)
	if sourceID != "" {
		where += ` AND income_source_id = ?`
		args = append(args, sourceID)
	}
	return l.queryIncomes(ctx, "query incomes",
		`SELECT id, income_source_id, amount_cents, currency, date, description, auto_added, created_at
		 FROM income_transactions WHERE `+where+` ORDER BY date, created_at, id`, args...)
}

func (l *Ledger) InsertExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	ctx, cancel := l.repo.withTimeout(ctx)
	defer cancel()

	_, err := l.repo.db.ExecContext(ctx,
		`INSERT INTO expenses (id, user_id, amount_cents, currency, date, category_id, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, l.userID, e.Amount.Cents, e.Currency, e.Date.String(), e.CategoryID, e.Description,
		e.CreatedAt.UTC().Format(timestampLayout), e.UpdatedAt.UTC().Format(timestampLayout))
	if isUniqueViolation(err) {
		return core.Expense{}, core.ErrDuplicateEntry
	}
	if err != nil {
		return core.Expense{}, core.WrapRepo("insert expense", err)
	}
	return e, nil
}

func (l *Ledger) DeleteExpense(ctx context.Context, id string) error {
	return l.exec(ctx, "delete expense",
		`DELETE FROM expenses WHERE user_id = ? AND id = ?`, l.userID, id)
}

func (l *Ledger) QueryExpenses(ctx context.Context, r core.DateRange) ([]core.Expense, error) {
	where, args := rangeClause(l.userID, r)

	ctx, cancel := l.repo.withTimeout(ctx)
	defer cancel()

	rows, err := l.repo.db.QueryContext(ctx,
		`SELECT id, amount_cents, currency, date, category_id, description, created_at, updated_at
		 FROM expenses WHERE `+where+` ORDER BY date, created_at, id`, args...)
	if err != nil {
		return nil, core.WrapRepo("query expenses", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		var (
			e                  core.Expense
			date, created, upd string
		)
		if err := rows.Scan(&e.ID, &e.Amount.Cents, &e.Currency, &date, &e.CategoryID, &e.Description, &created, &upd); err != nil {
			return nil, core.WrapRepo("query expenses", err)
		}
		if e.Date, err = core.ParseDate(date); err != nil {
			return nil, core.WrapRepo("query expenses", err)
		}
		e.CreatedAt = parseTimestamp(created)
		e.UpdatedAt = parseTimestamp(upd)
		out = append(out, e)
	}
	return out, core.WrapRepo("query expenses", rows.Err())
}

// GetStartingBalance returns zero for a user who never set one.
func (l *Ledger) GetStartingBalance(ctx context.Context) (core.Money, error) {
	ctx, cancel := l.repo.withTimeout(ctx)
	defer cancel()

	var cents int64
	err := l.repo.db.QueryRowContext(ctx,
		`SELECT amount_cents FROM starting_balances WHERE user_id = ?`, l.userID).Scan(&cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Money{}, nil
	}
	if err != nil {
		return core.Money{}, core.WrapRepo("get starting balance", err)
	}
	return core.Money{Cents: cents}, nil
}

func (l *Ledger) SetStartingBalance(ctx context.Context, m core.Money) error {
	ctx, cancel := l.repo.withTimeout(ctx)
	defer cancel()

	_, err := l.repo.db.ExecContext(ctx,
		`INSERT INTO starting_balances (user_id, amount_cents, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET amount_cents = excluded.amount_cents, updated_at = excluded.updated_at`,
		l.userID, m.Cents, time.Now().UTC().Format(timestampLayout))
	return core.WrapRepo("set starting balance", err)
}

func (l *Ledger) exec(ctx context.Context, op, query string, args ...any) error {
	ctx, cancel := l.repo.withTimeout(ctx)
	defer cancel()

	res, err := l.repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return core.WrapRepo(op, err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return core.WrapRepo("rows affected", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (l *Ledger) querySources(ctx context.Context, op, query string, args ...any) ([]core.IncomeSource, error) {
	ctx, cancel := l.repo.withTimeout(ctx)
	defer cancel()

	rows, err := l.repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.WrapRepo(op, err)
	}
	defer rows.Close()

	var out []core.IncomeSource
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, core.WrapRepo(op, err)
		}
		out = append(out, s)
	}
	return out, core.WrapRepo(op, rows.Err())
}

func (l *Ledger) queryIncomes(ctx context.Context, op, query string, args ...any) ([]core.IncomeTransaction, error) {
	ctx, cancel := l.repo.withTimeout(ctx)
	defer cancel()

	rows, err := l.repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.WrapRepo(op, err)
	}
	defer rows.Close()

	var out []core.IncomeTransaction
	for rows.Next() {
		var (
			t             core.IncomeTransaction
			sourceID      sql.NullString
			date, created string
		)
		if err := rows.Scan(&t.ID, &sourceID, &t.Amount.Cents, &t.Currency, &date, &t.Description, &t.AutoAdded, &created); err != nil {
			return nil, core.WrapRepo(op, err)
		}
		if t.Date, err = core.ParseDate(date); err != nil {
			return nil, core.WrapRepo(op, err)
		}
		t.SourceID = sourceID.String
		t.CreatedAt = parseTimestamp(created)
		out = append(out, t)
	}
	return out, core.WrapRepo(op, rows.Err())
}

func rangeClause(userID string, r core.DateRange) (string, []any) {
	where := `user_id = ?`
	args := []any{userID}
	if !r.Start.IsZero() {
		where += ` AND date >= ?`
		args = append(args, r.Start.String())
	}
	if !r.End.IsZero() {
		where += ` AND date <= ?`
		args = append(args, r.End.String())
	}
	return where, args
}

// sourceArgs returns the column values after id, in sourceColumns order.
func sourceArgs(s core.IncomeSource) ([]any, error) {
	var dow, dom sql.NullInt64
	if s.DayOfWeek != nil {
		dow = sql.NullInt64{Int64: int64(*s.DayOfWeek), Valid: true}
	}
	if s.DayOfMonth != nil {
		dom = sql.NullInt64{Int64: int64(*s.DayOfMonth), Valid: true}
	}
	var custom sql.NullString
	if len(s.CustomDays) > 0 {
		b, err := json.Marshal(s.CustomDays)
		if err != nil {
			return nil, fmt.Errorf("encode custom days: %w", err)
		}
		custom = sql.NullString{String: string(b), Valid: true}
	}
	return []any{
		s.Name, s.Amount.Cents, s.Currency, string(s.Frequency), s.StartDate.String(),
		dow, dom, custom, s.AutoAdd, s.IsActive,
		s.CreatedAt.UTC().Format(timestampLayout), s.UpdatedAt.UTC().Format(timestampLayout),
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(row scanner) (core.IncomeSource, error) {
	var (
		s                         core.IncomeSource
		freq, start, created, upd string
		dow, dom                  sql.NullInt64
		custom                    sql.NullString
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Amount.Cents, &s.Currency, &freq, &start,
		&dow, &dom, &custom, &s.AutoAdd, &s.IsActive, &created, &upd); err != nil {
		return core.IncomeSource{}, err
	}
	s.Frequency = core.Frequency(freq)
	var err error
	if s.StartDate, err = core.ParseDate(start); err != nil {
		return core.IncomeSource{}, err
	}
	if dow.Valid {
		wd := time.Weekday(dow.Int64)
		s.DayOfWeek = &wd
	}
	if dom.Valid {
		d := int(dom.Int64)
		s.DayOfMonth = &d
	}
	if custom.Valid && custom.String != "" {
		if err := json.Unmarshal([]byte(custom.String), &s.CustomDays); err != nil {
			return core.IncomeSource{}, fmt.Errorf("decode custom days for %s: %w", s.ID, err)
		}
	}
	s.CreatedAt = parseTimestamp(created)
	s.UpdatedAt = parseTimestamp(upd)
	return s, nil
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func cloneSources(in []core.IncomeSource) []core.IncomeSource {
	out := make([]core.IncomeSource, len(in))
	for i, s := range in {
		if s.DayOfWeek != nil {
			wd := *s.DayOfWeek
			s.DayOfWeek = &wd
		}
		if s.DayOfMonth != nil {
			d := *s.DayOfMonth
			s.DayOfMonth = &d
		}
		s.CustomDays = append([]int(nil), s.CustomDays...)
		out[i] = s
	}
	return out
}
