package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIfNotExists_Get_MarkDone_MarkFailed(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", 48*time.Hour)

	ctx := context.Background()
	key := Key("create_order", "user-1", "test-key-1")
	orderID := "order-123"

	created, err := s.CreateIfNotExists(ctx, key, orderID)
	require.NoError(t, err)
	require.True(t, created)

	// second create should return created=false (exists)
	created, err = s.CreateIfNotExists(ctx, key, orderID)
	require.NoError(t, err)
	assert.False(t, created, "expected created=false on duplicate create")

	rec, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StatusInProgress, rec.Status)
	assert.Equal(t, orderID, rec.ResourceID)

	require.NoError(t, s.MarkDone(ctx, key, `{"ok":true}`, 201))

	item := mock.table[key]
	require.NotNil(t, item)
	assert.Equal(t, StatusDone, item["status"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, `{"ok":true}`, item["response_body"].(*types.AttributeValueMemberS).Value)

	rec, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 201, rec.ResponseStatus)

	// MarkFailed overwrites status
	require.NoError(t, s.MarkFailed(ctx, key, "failed-reason"))
	item = mock.table[key]
	assert.Equal(t, StatusFailed, item["status"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "failed-reason", item["note"].(*types.AttributeValueMemberS).Value)
}

func TestReclaim(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", time.Hour)
	ctx := context.Background()

	_, err := s.CreateIfNotExists(ctx, "k", "ev-1")
	require.NoError(t, err)

	ok, err := s.Reclaim(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "IN_PROGRESS must not be reclaimed")

	require.NoError(t, s.MarkFailed(ctx, "k", "boom"))
	ok, err = s.Reclaim(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, rec.Status)
}

func TestExpiredRecordIsReplaced(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", time.Hour)
	ctx := context.Background()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return start }
	created, err := s.CreateIfNotExists(ctx, "k", "old")
	require.NoError(t, err)
	require.True(t, created)

	s.nowFunc = func() time.Time { return start.Add(2 * time.Hour) }
	rec, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, rec, "expired records read as absent")

	created, err = s.CreateIfNotExists(ctx, "k", "new")
	require.NoError(t, err)
	assert.True(t, created)

	rec, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "new", rec.ResourceID)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "create_order#u1#abc", Key("create_order", "u1", "abc"))
	assert.Equal(t, "decision_event#ev", Key("decision_event", "ev"))
}
