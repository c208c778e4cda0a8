package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/po-approvals/internal/logger"
	"github.com/imrishuroy/po-approvals/internal/orders"
	"github.com/imrishuroy/po-approvals/internal/roles"
)

// NewOrder carries the caller-supplied fields of a purchase order.
type NewOrder struct {
	ItemName    string
	Quantity    int
	Cost        decimal.Decimal
	Description string
	VendorName  string
}

// OrderDetail is an order with its audit trail, oldest record first.
type OrderDetail struct {
	*orders.PurchaseOrder
	Approvals []*orders.ApprovalRecord `json:"approvals"`
}

// Service applies the approval rules against a Store.
type Service struct {
	store     orders.Store
	publisher EventPublisher
	log       *logger.Logger

	nowFunc func() time.Time
	newID   func() string
}

// NewService wires a Service. publisher and log may be nil.
func NewService(store orders.Store, publisher EventPublisher, log *logger.Logger) *Service {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:     store,
		publisher: publisher,
		log:       log,
		nowFunc:   func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

func requireActive(actor roles.Actor) error {
	if !actor.Active {
		return fmt.Errorf("user %s is inactive: %w", actor.ID, ErrForbidden)
	}
	return nil
}

// CreateOrder stores a new pending order requested by actor.
func (s *Service) CreateOrder(ctx context.Context, actor roles.Actor, in NewOrder) (*orders.PurchaseOrder, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	if err := validateNewOrder(in); err != nil {
		return nil, err
	}

	now := s.nowFunc()
	o := &orders.PurchaseOrder{
		ID:          s.newID(),
		ItemName:    strings.TrimSpace(in.ItemName),
		Quantity:    in.Quantity,
		Cost:        in.Cost,
		Description: in.Description,
		VendorName:  strings.TrimSpace(in.VendorName),
		RequesterID: actor.ID,
		Status:      orders.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.log.Info().
		Str("order_id", o.ID).
		Str("requester_id", actor.ID).
		Str("cost", o.Cost.String()).
		Msg("purchase order created")
	return o, nil
}

func validateNewOrder(in NewOrder) error {
	var problems []string
	if strings.TrimSpace(in.ItemName) == "" {
		problems = append(problems, "item_name is required")
	}
	if strings.TrimSpace(in.VendorName) == "" {
		problems = append(problems, "vendor_name is required")
	}
	if in.Quantity < 1 {
		problems = append(problems, "quantity must be at least 1")
	}
	if in.Cost.IsNegative() {
		problems = append(problems, "cost must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s: %w", strings.Join(problems, "; "), ErrInvalidInput)
	}
	return nil
}

// ListOrders returns the orders visible to actor, newest first.
func (s *Service) ListOrders(ctx context.Context, actor roles.Actor, limit int) ([]*orders.PurchaseOrder, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	f, visible := VisibilityFilter(actor)
	if !visible {
		return []*orders.PurchaseOrder{}, nil
	}
	f.Limit = limit
	list, err := s.store.ListOrders(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return list, nil
}

// GetOrder returns the order with its approval history.
func (s *Service) GetOrder(ctx context.Context, actor roles.Actor, orderID string) (*OrderDetail, error) {
	o, err := s.readableOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	recs, err := s.store.ListApprovals(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	return &OrderDetail{PurchaseOrder: o, Approvals: recs}, nil
}

// ListApprovals returns the order's audit trail, oldest first.
func (s *Service) ListApprovals(ctx context.Context, actor roles.Actor, orderID string) ([]*orders.ApprovalRecord, error) {
	if _, err := s.readableOrder(ctx, actor, orderID); err != nil {
		return nil, err
	}
	recs, err := s.store.ListApprovals(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	return recs, nil
}

func (s *Service) readableOrder(ctx context.Context, actor roles.Actor, orderID string) (*orders.PurchaseOrder, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := CanView(actor, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Decide applies actor's decision to the order. The status change and its
// approval record are committed together, and only if no other decision
// landed since the order was read; otherwise orders.ErrConcurrentModification
// is returned and nothing is written.
func (s *Service) Decide(ctx context.Context, actor roles.Actor, orderID string, decision orders.Decision, comment string) (*orders.PurchaseOrder, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	if !decision.IsValid() {
		return nil, fmt.Errorf("decision %q: %w", decision, ErrInvalidInput)
	}

	current, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	next, err := Transition(current.Status, current.Cost, actor.Role, decision)
	if err != nil {
		return nil, err
	}

	rec := &orders.ApprovalRecord{
		ID:           s.newID(),
		OrderID:      orderID,
		ApproverID:   actor.ID,
		ApproverRole: actor.Role,
		Decision:     decision,
		Comment:      strings.TrimSpace(comment),
		DecidedAt:    s.nowFunc(),
	}

	updated, err := s.store.AppendApproval(ctx, orderID, current.Status, next, rec)
	if err != nil {
		if errors.Is(err, orders.ErrConcurrentModification) {
			s.log.Info().
				Str("order_id", orderID).
				Str("expected", current.Status.String()).
				Msg("decision lost a race")
		}
		return nil, err
	}

	s.log.Info().
		Str("order_id", orderID).
		Str("from", current.Status.String()).
		Str("to", next.String()).
		Str("role", actor.Role.String()).
		Str("approver_id", actor.ID).
		Msg("decision recorded")

	ev := DecisionEvent{
		EventID:      rec.ID,
		OrderID:      orderID,
		From:         current.Status,
		To:           next,
		Decision:     decision,
		ApproverID:   actor.ID,
		ApproverRole: actor.Role,
		Cost:         updated.Cost,
		DecidedAt:    rec.DecidedAt,
	}
	if err := s.publisher.PublishDecision(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("order_id", orderID).Msg("failed to publish decision event")
	}

	return updated, nil
}
