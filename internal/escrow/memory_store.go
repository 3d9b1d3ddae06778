package escrow

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory hold store for demo/development mode.
type MemoryStore struct {
	holds map[string]*Hold
	mu    sync.RWMutex
}

// NewMemoryStore creates a new in-memory hold store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		holds: make(map[string]*Hold),
	}
}

func (m *MemoryStore) Create(ctx context.Context, h *Hold) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.holds[h.ID] = copyHold(h)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Hold, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.holds[id]
	if !ok {
		return nil, ErrHoldNotFound
	}
	return copyHold(h), nil
}

func (m *MemoryStore) Update(ctx context.Context, h *Hold) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.holds[h.ID]; !ok {
		return ErrHoldNotFound
	}
	m.holds[h.ID] = copyHold(h)
	return nil
}

func (m *MemoryStore) GetActiveByAgreement(ctx context.Context, agreementID string) (*Hold, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, h := range m.holds {
		if h.AgreementID == agreementID && !h.Released() {
			return copyHold(h), nil
		}
	}
	return nil, ErrHoldNotFound
}

func (m *MemoryStore) ListByParty(ctx context.Context, partyID string) ([]*Hold, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Hold
	for _, h := range m.holds {
		if h.LandlordID == partyID || h.TenantID == partyID {
			out = append(out, copyHold(h))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func copyHold(h *Hold) *Hold {
	cp := *h
	if h.ReleasedAt != nil {
		t := *h.ReleasedAt
		cp.ReleasedAt = &t
	}
	return &cp
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
