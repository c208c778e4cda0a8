package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/po-approvals/internal/approval"
	"github.com/imrishuroy/po-approvals/internal/orders"
	"github.com/imrishuroy/po-approvals/internal/roles"
)

type mockCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestRecordDecision(t *testing.T) {
	cw := &mockCloudWatch{}
	r := NewCloudWatchRecorder(cw, "")
	ctx := context.Background()

	ev := approval.DecisionEvent{
		EventID:      "ev-1",
		From:         orders.StatusPending,
		To:           orders.StatusAwaitingMD,
		Decision:     orders.DecisionApproved,
		ApproverRole: roles.Specialist,
		Cost:         decimal.RequireFromString("2500.25"),
		DecidedAt:    time.Now(),
	}
	require.NoError(t, r.RecordDecision(ctx, ev))
	require.Len(t, cw.inputs, 1)
	assert.Equal(t, DefaultNamespace, *cw.inputs[0].Namespace)
	require.Len(t, cw.inputs[0].MetricData, 1, "intermediate approval records no spend")
	assert.Equal(t, MetricDecisions, *cw.inputs[0].MetricData[0].MetricName)
	assert.Equal(t, "specialist", *cw.inputs[0].MetricData[0].Dimensions[0].Value)

	ev.From, ev.To, ev.ApproverRole = orders.StatusAwaitingMD, orders.StatusApproved, roles.MD
	require.NoError(t, r.RecordDecision(ctx, ev))
	data := cw.inputs[1].MetricData
	require.Len(t, data, 2)
	assert.Equal(t, MetricApprovedSpend, *data[1].MetricName)
	assert.InDelta(t, 2500.25, *data[1].Value, 0.001)

	cw.err = errors.New("throttled")
	assert.Error(t, r.RecordDecision(ctx, ev))
}
