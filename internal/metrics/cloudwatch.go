// Package metrics publishes decision metrics to CloudWatch.
package metrics

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/imrishuroy/po-approvals/internal/approval"
	"github.com/imrishuroy/po-approvals/internal/aws"
	"github.com/imrishuroy/po-approvals/internal/orders"
)

// DefaultNamespace is used when none is configured.
const DefaultNamespace = "PurchaseOrders"

// Metric names.
const (
	MetricDecisions     = "Decisions"
	MetricApprovedSpend = "ApprovedSpend"
)

// CloudWatchRecorder writes one batch of datums per decision event.
type CloudWatchRecorder struct {
	client    aws.CloudWatchAPI
	namespace string
}

// NewCloudWatchRecorder returns a recorder for namespace.
func NewCloudWatchRecorder(client aws.CloudWatchAPI, namespace string) *CloudWatchRecorder {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &CloudWatchRecorder{client: client, namespace: namespace}
}

// RecordDecision counts the decision by role and outcome. A final approval
// also adds the order cost to ApprovedSpend.
func (r *CloudWatchRecorder) RecordDecision(ctx context.Context, ev approval.DecisionEvent) error {
	data := []cwtypes.MetricDatum{
		{
			MetricName: sdkaws.String(MetricDecisions),
			Dimensions: []cwtypes.Dimension{
				{Name: sdkaws.String("Role"), Value: sdkaws.String(string(ev.ApproverRole))},
				{Name: sdkaws.String("Decision"), Value: sdkaws.String(string(ev.Decision))},
			},
			Timestamp: sdkaws.Time(ev.DecidedAt),
			Unit:      cwtypes.StandardUnitCount,
			Value:     sdkaws.Float64(1),
		},
	}
	if ev.To == orders.StatusApproved {
		data = append(data, cwtypes.MetricDatum{
			MetricName: sdkaws.String(MetricApprovedSpend),
			Timestamp:  sdkaws.Time(ev.DecidedAt),
			Unit:       cwtypes.StandardUnitNone,
			Value:      sdkaws.Float64(ev.Cost.InexactFloat64()),
		})
	}

	_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  sdkaws.String(r.namespace),
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}
