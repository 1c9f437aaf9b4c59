package confirmations

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps receipts in process memory. Used when no database
// is configured.
type MemoryRepository struct {
	mu       sync.RWMutex
	byID     map[string]Receipt
	tokenIdx map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:     make(map[string]Receipt),
		tokenIdx: make(map[string]string),
	}
}

func (m *MemoryRepository) Record(_ context.Context, rec Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[rec.BookingID]; ok {
		return nil
	}
	m.byID[rec.BookingID] = rec
	if rec.Token != "" {
		m.tokenIdx[rec.Token] = rec.BookingID
	}
	return nil
}

func (m *MemoryRepository) GetByToken(_ context.Context, token string) (*Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.tokenIdx[token]
	if !ok {
		return nil, ErrNotFound
	}
	rec := m.byID[id]
	return &rec, nil
}

func (m *MemoryRepository) ListByStore(_ context.Context, f ListFilter) ([]Receipt, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := []Receipt{}
	for _, rec := range m.byID {
		if rec.StoreID != f.StoreID {
			continue
		}
		if f.ServiceID != "" && rec.ServiceID != f.ServiceID {
			continue
		}
		if f.From != nil && rec.StartsAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !rec.StartsAt.Before(*f.To) {
			continue
		}
		out = append(out, rec)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].BookingID < out[j].BookingID
	})
	if limit := f.limit(); uint64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}
