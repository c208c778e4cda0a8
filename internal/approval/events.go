package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/po-approvals/internal/orders"
	"github.com/imrishuroy/po-approvals/internal/roles"
)

// DecisionEvent is published after a decision has been committed.
type DecisionEvent struct {
	EventID      string          `json:"event_id"`
	OrderID      string          `json:"order_id"`
	From         orders.Status   `json:"from"`
	To           orders.Status   `json:"to"`
	Decision     orders.Decision `json:"decision"`
	ApproverID   string          `json:"approver_id"`
	ApproverRole roles.Role      `json:"approver_role"`
	Cost         decimal.Decimal `json:"cost"`
	DecidedAt    time.Time       `json:"decided_at"`
}

// EventPublisher delivers decision events. Failures never undo a decision.
type EventPublisher interface {
	PublishDecision(ctx context.Context, ev DecisionEvent) error
}

// MessageSender is satisfied by aws.Publisher.
type MessageSender interface {
	SendMessage(ctx context.Context, body string, attributes map[string]string) error
}

// QueuePublisher encodes events as JSON queue messages.
type QueuePublisher struct {
	sender MessageSender
}

// NewQueuePublisher returns a publisher that sends through sender.
func NewQueuePublisher(sender MessageSender) *QueuePublisher {
	return &QueuePublisher{sender: sender}
}

func (p *QueuePublisher) PublishDecision(ctx context.Context, ev DecisionEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal decision event: %w", err)
	}
	attrs := map[string]string{
		"event_type": "purchase_order.decision",
		"decision":   string(ev.Decision),
		"status":     string(ev.To),
		"order_id":   ev.OrderID,
		"event_id":   ev.EventID,
	}
	if err := p.sender.SendMessage(ctx, string(body), attrs); err != nil {
		return fmt.Errorf("publish decision %s: %w", ev.EventID, err)
	}
	return nil
}

// NopPublisher drops every event. Used when no queue is configured.
type NopPublisher struct{}

func (NopPublisher) PublishDecision(context.Context, DecisionEvent) error { return nil }
