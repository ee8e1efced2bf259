package memory

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"findot/internal/core"
	"findot/internal/sheets"
)

type row struct {
	ref   core.RowRef
	cells []string
}

// Store is an in-process ledger used for development and tests.
type Store struct {
	mu   sync.Mutex
	seq  int
	rows []row
}

var _ sheets.LedgerStore = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// NewFromFiles seeds the ledger from base/seed_ledger.csv when present.
// Seed rows use the five-column layout without a header.
func NewFromFiles(base string) *Store {
	s := New()
	for _, cells := range readCSV(filepath.Join(base, "seed_ledger.csv")) {
		_, _ = s.AppendRow(context.Background(), cells)
	}
	return s
}

// ReadRows returns the header followed by a copy of every row.
func (s *Store) ReadRows(_ context.Context) ([]sheets.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sheets.Row, 0, len(s.rows)+1)
	out = append(out, sheets.Row{Cells: append([]string(nil), sheets.Header...)})
	for _, r := range s.rows {
		out = append(out, sheets.Row{Ref: r.ref, Cells: append([]string(nil), r.cells...)})
	}
	return out, nil
}

// AppendRow stores the cells and returns a synthetic row reference.
func (s *Store) AppendRow(_ context.Context, cells []string) (core.RowRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	ref := core.RowRef(fmt.Sprintf("mem:%d", s.seq))
	s.rows = append(s.rows, row{ref: ref, cells: append([]string(nil), cells...)})
	return ref, nil
}

func (s *Store) DeleteRow(_ context.Context, ref core.RowRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(ref)
	if i < 0 {
		return sheets.ErrRowNotFound
	}
	s.rows = append(s.rows[:i], s.rows[i+1:]...)
	return nil
}

func (s *Store) UpdateCell(_ context.Context, ref core.RowRef, col sheets.Column, value string) error {
	if col < 0 {
		return fmt.Errorf("invalid column %d", col)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(ref)
	if i < 0 {
		return sheets.ErrRowNotFound
	}
	for len(s.rows[i].cells) <= int(col) {
		s.rows[i].cells = append(s.rows[i].cells, "")
	}
	s.rows[i].cells[col] = value
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

// Len returns the number of data rows.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *Store) find(ref core.RowRef) int {
	if ref == "" {
		return -1
	}
	for i, r := range s.rows {
		if r.ref == ref {
			return i
		}
	}
	return -1
}

func readCSV(path string) [][]string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.Comment = '#'
	records, err := r.ReadAll()
	if err != nil {
		return nil
	}
	return records
}
