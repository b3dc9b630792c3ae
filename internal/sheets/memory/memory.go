// Package memory is an in-process spreadsheet used when no Google Sheet is
// configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"cashtimachann/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows [][]string
}

func New() *Store {
	return &Store{}
}

func (s *Store) AppendRows(_ context.Context, header []string, rows [][]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rows) == 0 && len(header) > 0 {
		s.rows = append(s.rows, append([]string(nil), header...))
	}
	first := len(s.rows) + 1
	for _, r := range rows {
		s.rows = append(s.rows, append([]string(nil), r...))
	}
	return fmt.Sprintf("mem:%d-%d", first, len(s.rows)), nil
}

// ExportedKeys returns the first column of every data row.
func (s *Store) ExportedKeys(_ context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make(map[string]struct{}, len(s.rows))
	for i, r := range s.rows {
		if i == 0 || len(r) == 0 {
			continue
		}
		keys[r[0]] = struct{}{}
	}
	return keys, nil
}

// Rows returns a copy of the sheet, header included.
func (s *Store) Rows() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.rows))
	for i, r := range s.rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

var _ sheets.Exporter = (*Store)(nil)
