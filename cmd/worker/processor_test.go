package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/po-approvals/internal/approval"
	"github.com/imrishuroy/po-approvals/internal/idempotency"
	"github.com/imrishuroy/po-approvals/internal/orders"
	"github.com/imrishuroy/po-approvals/internal/roles"
)

// memDedup mirrors the idempotency.Store state machine in memory.
type memDedup struct {
	mu      sync.Mutex
	records map[string]*idempotency.Record
}

func newMemDedup() *memDedup {
	return &memDedup{records: map[string]*idempotency.Record{}}
}

func (m *memDedup) CreateIfNotExists(ctx context.Context, key, resourceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[key]; ok {
		return false, nil
	}
	m.records[key] = &idempotency.Record{IdempotencyKey: key, Status: idempotency.StatusInProgress, ResourceID: resourceID}
	return true, nil
}

func (m *memDedup) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memDedup) Reclaim(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok || rec.Status != idempotency.StatusFailed {
		return false, nil
	}
	rec.Status = idempotency.StatusInProgress
	return true, nil
}

func (m *memDedup) MarkDone(ctx context.Context, key, body string, status int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key].Status = idempotency.StatusDone
	m.records[key].ResponseBody = body
	return nil
}

func (m *memDedup) MarkFailed(ctx context.Context, key, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key].Status = idempotency.StatusFailed
	m.records[key].Note = note
	return nil
}

type countingRecorder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingRecorder) RecordDecision(ctx context.Context, ev approval.DecisionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err
}

func decisionMessage(t *testing.T, id, eventID string) events.SQSMessage {
	t.Helper()
	body, err := json.Marshal(approval.DecisionEvent{
		EventID:      eventID,
		OrderID:      "po-1",
		From:         orders.StatusPending,
		To:           orders.StatusAwaitingDeputyMD,
		Decision:     orders.DecisionApproved,
		ApproverID:   "u-spec",
		ApproverRole: roles.Specialist,
		Cost:         decimal.RequireFromString("250.00"),
		DecidedAt:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return events.SQSMessage{MessageId: id, Body: string(body)}
}

func TestProcessor_RecordsOnce(t *testing.T) {
	dedup := newMemDedup()
	rec := &countingRecorder{}
	p := NewProcessor(dedup, rec, nil)

	msg := decisionMessage(t, "m1", "ev-1")
	resp, err := p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{msg, msg}})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, 1, rec.calls, "duplicate delivery must not be recorded twice")

	stored, _ := dedup.Get(context.Background(), idempotency.Key("decision_event", "ev-1"))
	require.NotNil(t, stored)
	assert.Equal(t, idempotency.StatusDone, stored.Status)
	assert.Equal(t, "po-1", stored.ResourceID)
}

func TestProcessor_FailureIsRetried(t *testing.T) {
	dedup := newMemDedup()
	rec := &countingRecorder{err: errors.New("throttled")}
	p := NewProcessor(dedup, rec, nil)

	msg := decisionMessage(t, "m1", "ev-2")
	resp, err := p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{msg}})
	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "m1", resp.BatchItemFailures[0].ItemIdentifier)

	key := idempotency.Key("decision_event", "ev-2")
	stored, _ := dedup.Get(context.Background(), key)
	assert.Equal(t, idempotency.StatusFailed, stored.Status)
	assert.Equal(t, "throttled", stored.Note)

	// redelivery reclaims the failed record
	rec.err = nil
	resp, err = p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{msg}})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, 2, rec.calls)

	stored, _ = dedup.Get(context.Background(), key)
	assert.Equal(t, idempotency.StatusDone, stored.Status)
}

func TestProcessor_InFlightIsRedelivered(t *testing.T) {
	dedup := newMemDedup()
	rec := &countingRecorder{}
	p := NewProcessor(dedup, rec, nil)

	_, err := dedup.CreateIfNotExists(context.Background(), idempotency.Key("decision_event", "ev-3"), "po-1")
	require.NoError(t, err)

	resp, err := p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{decisionMessage(t, "m3", "ev-3")}})
	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Zero(t, rec.calls)
}

func TestProcessor_BadMessages(t *testing.T) {
	rec := &countingRecorder{}
	p := NewProcessor(newMemDedup(), rec, nil)

	resp, err := p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "bad-json", Body: "{"},
		{MessageId: "no-id", Body: `{"order_id":"po-1"}`},
		decisionMessage(t, "ok", "ev-4"),
	}})
	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 2)
	assert.Equal(t, "bad-json", resp.BatchItemFailures[0].ItemIdentifier)
	assert.Equal(t, "no-id", resp.BatchItemFailures[1].ItemIdentifier)
	assert.Equal(t, 1, rec.calls)
}
