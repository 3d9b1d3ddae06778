package agreements

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory agreement store for demo/development mode.
type MemoryStore struct {
	agreements map[string]*Agreement
	mu         sync.RWMutex
}

// NewMemoryStore creates a new in-memory agreement store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agreements: make(map[string]*Agreement),
	}
}

func (m *MemoryStore) Create(ctx context.Context, a *Agreement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	m.agreements[a.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Agreement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agreements[id]
	if !ok {
		return nil, ErrAgreementNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, a *Agreement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agreements[a.ID]; !ok {
		return ErrAgreementNotFound
	}
	cp := *a
	m.agreements[a.ID] = &cp
	return nil
}

func (m *MemoryStore) GetActive(ctx context.Context, propertyID, partyID string) (*Agreement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.agreements {
		if a.Status != StatusActive || a.PropertyID != propertyID {
			continue
		}
		if a.LandlordID == partyID || a.TenantID == partyID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAgreementNotFound
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
