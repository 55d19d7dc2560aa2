// Package memory is an in-process expense mirror for tests and local runs
// without Google credentials.
package memory

import (
	"context"
	"fmt"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows [][]any
}

var _ sheets.Mirror = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// UpsertExpense stores the row and returns a synthetic row reference.
func (s *Store) UpsertExpense(_ context.Context, userID string, e *core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	row := sheets.Row(userID, e)

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.find(userID, e.ID); i >= 0 {
		s.rows[i] = row
		return fmt.Sprintf("mem:%d", i+1), nil
	}
	s.rows = append(s.rows, row)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

func (s *Store) DeleteExpense(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.find(userID, id); i >= 0 {
		s.rows = append(s.rows[:i], s.rows[i+1:]...)
	}
	return nil
}

// Rows returns a copy of the mirrored rows in insertion order.
func (s *Store) Rows() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]any, len(s.rows))
	for i, r := range s.rows {
		out[i] = append([]any(nil), r...)
	}
	return out
}

func (s *Store) find(userID, id string) int {
	last := len(sheets.Header) - 1
	for i, r := range s.rows {
		if r[0] == id && r[last] == userID {
			return i
		}
	}
	return -1
}
