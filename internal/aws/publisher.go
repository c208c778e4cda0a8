package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Message attributes Publisher gives special meaning to on FIFO queues.
const (
	// AttrOrderID groups messages so one order's decisions stay in order.
	AttrOrderID = "order_id"
	// AttrEventID deduplicates redelivered publishes within SQS's window.
	AttrEventID = "event_id"
)

// Publisher sends messages to one SQS queue. Queues whose URL ends in
// ".fifo" get a message group per order and a deduplication id per event.
type Publisher struct {
	sqs      SQSAPI
	queueURL string
	fifo     bool
}

// NewPublisher returns a Publisher bound to queueURL.
func NewPublisher(client SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		sqs:      client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}
}

// SendMessage sends body with attributes as String message attributes.
func (p *Publisher) SendMessage(ctx context.Context, body string, attributes map[string]string) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.queueURL,
		MessageBody: &body,
	}
	if len(attributes) > 0 {
		input.MessageAttributes = make(map[string]sqstypes.MessageAttributeValue, len(attributes))
		for k, v := range attributes {
			input.MessageAttributes[k] = sqstypes.MessageAttributeValue{
				DataType:    awsString("String"),
				StringValue: awsString(v),
			}
		}
	}

	if p.fifo {
		group := attributes[AttrOrderID]
		if group == "" {
			return fmt.Errorf("send message: fifo queue requires the %s attribute", AttrOrderID)
		}
		input.MessageGroupId = awsString(group)
		// without an event id the queue must have content-based deduplication
		if id := attributes[AttrEventID]; id != "" {
			input.MessageDeduplicationId = awsString(id)
		}
	}

	if _, err := p.sqs.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message to %s: %w", p.queueURL, err)
	}
	return nil
}

func awsString(s string) *string { return &s }
