package approval

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/po-approvals/internal/orders"
	"github.com/imrishuroy/po-approvals/internal/roles"
)

type fakeSender struct {
	body  string
	attrs map[string]string
	err   error
}

func (f *fakeSender) SendMessage(ctx context.Context, body string, attrs map[string]string) error {
	f.body, f.attrs = body, attrs
	return f.err
}

func TestQueuePublisher(t *testing.T) {
	sender := &fakeSender{}
	p := NewQueuePublisher(sender)
	ev := DecisionEvent{
		EventID:      "ev-1",
		OrderID:      "o1",
		From:         orders.StatusAwaitingMD,
		To:           orders.StatusApproved,
		Decision:     orders.DecisionApproved,
		ApproverID:   "md-1",
		ApproverRole: roles.MD,
		Cost:         d("2500.50"),
		DecidedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	require.NoError(t, p.PublishDecision(context.Background(), ev))
	assert.Equal(t, "approved", sender.attrs["decision"])
	assert.Equal(t, "approved", sender.attrs["status"])
	assert.Equal(t, "o1", sender.attrs["order_id"])
	assert.Equal(t, "ev-1", sender.attrs["event_id"])

	var got DecisionEvent
	require.NoError(t, json.Unmarshal([]byte(sender.body), &got))
	assert.Equal(t, ev.OrderID, got.OrderID)
	assert.True(t, got.Cost.Equal(ev.Cost))

	sender.err = errors.New("boom")
	assert.Error(t, p.PublishDecision(context.Background(), ev))
}
