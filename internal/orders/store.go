// Package orders holds purchase orders and their append-only approval trail.
// Store implementations: DynamoDB, PostgreSQL and in-memory.
package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Query limit constants for List operations.
const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

// Storage errors. Callers match them with errors.Is.
var (
	ErrOrderNotFound = errors.New("purchase order not found")
	ErrOrderExists   = errors.New("purchase order already exists")

	// ErrConcurrentModification means the order's status no longer matched
	// the expected one when the write was attempted.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrTerminalStatus means a caller tried to append to a closed order.
	ErrTerminalStatus = errors.New("purchase order is in a terminal status")
)

// ListFilter narrows ListOrders. Zero-valued fields do not filter.
type ListFilter struct {
	RequesterID string
	Status      Status
	MaxCost     *decimal.Decimal // inclusive upper bound
	Limit       int
}

// Matches reports whether o passes every set field of f.
func (f ListFilter) Matches(o *PurchaseOrder) bool {
	if f.RequesterID != "" && o.RequesterID != f.RequesterID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.MaxCost != nil && o.Cost.GreaterThan(*f.MaxCost) {
		return false
	}
	return true
}

// EffectiveLimit applies the default and the cap to a requested limit.
func EffectiveLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}

// Store persists purchase orders and approval records.
// Implementations must be safe for concurrent use.
type Store interface {
	// CreateOrder stores a new order. Returns ErrOrderExists on ID collision.
	CreateOrder(ctx context.Context, o *PurchaseOrder) error

	// GetOrder returns ErrOrderNotFound when id is unknown.
	GetOrder(ctx context.Context, id string) (*PurchaseOrder, error)

	// ListOrders returns matching orders, newest first.
	ListOrders(ctx context.Context, f ListFilter) ([]*PurchaseOrder, error)

	// ListApprovals returns the order's approval records, oldest first.
	ListApprovals(ctx context.Context, orderID string) ([]*ApprovalRecord, error)

	// AppendApproval atomically moves the order from status from to status
	// to and stores rec. Nothing is written unless the stored status still
	// equals from; in that case ErrConcurrentModification is returned.
	AppendApproval(ctx context.Context, orderID string, from, to Status, rec *ApprovalRecord) (*PurchaseOrder, error)
}

// checkAppend enforces the audit-trail invariants every Store shares.
func checkAppend(orderID string, from, to Status, rec *ApprovalRecord) error {
	if from.IsTerminal() {
		return fmt.Errorf("%s: %w", orderID, ErrTerminalStatus)
	}
	if !to.IsValid() {
		return fmt.Errorf("invalid target status %q", to)
	}
	if rec == nil || rec.OrderID != orderID {
		return fmt.Errorf("approval record does not belong to order %s", orderID)
	}
	if !rec.Decision.IsValid() {
		return fmt.Errorf("invalid decision %q", rec.Decision)
	}
	return nil
}

// sortNewestFirst orders by CreatedAt descending, ID as tie-break.
func sortNewestFirst(list []*PurchaseOrder) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

// sortOldestFirst orders approval records by DecidedAt ascending.
func sortOldestFirst(list []*ApprovalRecord) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].DecidedAt.Before(list[j].DecidedAt)
	})
}
