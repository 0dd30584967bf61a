// Package memory is an in-process posting mirror used when no spreadsheet
// is configured.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"ledger/internal/core"
	"ledger/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows []sheets.Row
	seen map[string]int
}

var (
	_ sheets.PostingWriter = (*Store)(nil)
	_ sheets.PostingLister = (*Store)(nil)
)

func New() *Store {
	return &Store{seen: make(map[string]int)}
}

// AppendPosting stores the row and returns a synthetic reference. A
// repeated transaction id returns the original reference.
func (s *Store) AppendPosting(_ context.Context, userID string, tx core.IncomeTransaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.seen[tx.ID]; ok {
		return fmt.Sprintf("mem:%d", i+1), nil
	}
	s.rows = append(s.rows, sheets.RowFor(userID, tx))
	s.seen[tx.ID] = len(s.rows) - 1
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

func (s *Store) ListPostings(_ context.Context, year int) ([]sheets.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.DeleteFunc(slices.Clone(s.rows), func(r sheets.Row) bool {
		return r.Date.Year() != year
	}), nil
}
