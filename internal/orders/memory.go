package orders

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store used for local runs and tests.
// A single mutex serialises writes, which makes AppendApproval atomic.
type MemoryStore struct {
	mu        sync.RWMutex
	orders    map[string]*PurchaseOrder
	approvals map[string][]*ApprovalRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:    make(map[string]*PurchaseOrder),
		approvals: make(map[string][]*ApprovalRecord),
	}
}

func (s *MemoryStore) CreateOrder(ctx context.Context, o *PurchaseOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("%s: %w", o.ID, ErrOrderExists)
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *MemoryStore) GetOrder(ctx context.Context, id string) (*PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrOrderNotFound)
	}
	return o.Clone(), nil
}

func (s *MemoryStore) ListOrders(ctx context.Context, f ListFilter) ([]*PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*PurchaseOrder, 0)
	for _, o := range s.orders {
		if f.Matches(o) {
			out = append(out, o.Clone())
		}
	}
	sortNewestFirst(out)

	if limit := EffectiveLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListApprovals(ctx context.Context, orderID string) ([]*ApprovalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.approvals[orderID]
	out := make([]*ApprovalRecord, 0, len(recs))
	for _, r := range recs {
		c := *r
		out = append(out, &c)
	}
	sortOldestFirst(out)
	return out, nil
}

func (s *MemoryStore) AppendApproval(ctx context.Context, orderID string, from, to Status, rec *ApprovalRecord) (*PurchaseOrder, error) {
	if err := checkAppend(orderID, from, to, rec); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", orderID, ErrOrderNotFound)
	}
	if o.Status != from {
		return nil, fmt.Errorf("%s: expected %s, found %s: %w", orderID, from, o.Status, ErrConcurrentModification)
	}

	o.Status = to
	o.UpdatedAt = rec.DecidedAt
	c := *rec
	s.approvals[orderID] = append(s.approvals[orderID], &c)

	return o.Clone(), nil
}
