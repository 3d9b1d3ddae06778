package payments

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory payment store for demo/development mode.
type MemoryStore struct {
	records map[string]*Record
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory payment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
	}
}

func (m *MemoryStore) Create(ctx context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[r.ID] = copyRecord(r)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return copyRecord(r), nil
}

func (m *MemoryStore) Update(ctx context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[r.ID]; !ok {
		return ErrRecordNotFound
	}
	m.records[r.ID] = copyRecord(r)
	return nil
}

func (m *MemoryStore) GetByGatewayOrderID(ctx context.Context, orderID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.records {
		if r.Gateway.OrderID == orderID {
			return copyRecord(r), nil
		}
	}
	return nil, ErrRecordNotFound
}

func (m *MemoryStore) GetByGatewayPaymentID(ctx context.Context, paymentID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.records {
		if r.Gateway.PaymentID == paymentID && paymentID != "" {
			return copyRecord(r), nil
		}
	}
	return nil, ErrRecordNotFound
}

func (m *MemoryStore) ListByParty(ctx context.Context, partyID string, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for _, r := range m.records {
		if r.LandlordID == partyID || r.TenantID == partyID {
			out = append(out, copyRecord(r))
		}
	}
	// Newest first, stable across calls.
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// copyRecord deep-copies a record so callers cannot mutate stored state.
func copyRecord(r *Record) *Record {
	cp := *r
	if r.Period != nil {
		p := *r.Period
		cp.Period = &p
	}
	if r.PaidDate != nil {
		t := *r.PaidDate
		cp.PaidDate = &t
	}
	if r.Receipt.GeneratedAt != nil {
		t := *r.Receipt.GeneratedAt
		cp.Receipt.GeneratedAt = &t
	}
	if r.Refund.Date != nil {
		t := *r.Refund.Date
		cp.Refund.Date = &t
	}
	if r.Gateway.Response != nil {
		cp.Gateway.Response = append([]byte(nil), r.Gateway.Response...)
	}
	return &cp
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
