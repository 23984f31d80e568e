package recordstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Diego-II/expense-tracker-api/internal/domain"
)

// MemoryStore is an in-process Store selected with RECORD_STORE=memory for
// local runs. Records are lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.ExpenseRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]domain.ExpenseRecord)}
}

// PutExpense stores a copy of rec, replacing any record with the same id.
func (s *MemoryStore) PutExpense(ctx context.Context, rec *domain.ExpenseRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = *rec
	return nil
}

// Get returns the record with the given id.
func (s *MemoryStore) Get(id string) (domain.ExpenseRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

// ByMonth returns the records of a year/month ordered by timestamp, the same
// lookup the backends serve through their date index.
func (s *MemoryStore) ByMonth(year, month string) []domain.ExpenseRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ExpenseRecord
	for _, rec := range s.records {
		if rec.Year() == year && rec.Month() == month {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
