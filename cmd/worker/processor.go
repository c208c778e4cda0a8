package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/po-approvals/internal/approval"
	"github.com/imrishuroy/po-approvals/internal/idempotency"
	"github.com/imrishuroy/po-approvals/internal/logger"
)

// errInFlight means another invocation holds the event; SQS redelivers it.
var errInFlight = errors.New("decision event is being processed elsewhere")

// dedupStore is the subset of idempotency.Store used to process each event once.
type dedupStore interface {
	CreateIfNotExists(ctx context.Context, key, resourceID string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	Reclaim(ctx context.Context, key string) (bool, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

type decisionRecorder interface {
	RecordDecision(ctx context.Context, ev approval.DecisionEvent) error
}

// Processor consumes decision events from SQS and records them as metrics.
type Processor struct {
	dedup    dedupStore
	recorder decisionRecorder
	log      *logger.Logger
}

// NewProcessor wires a processor. log may be nil.
func NewProcessor(dedup dedupStore, recorder decisionRecorder, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.Nop()
	}
	return &Processor{dedup: dedup, recorder: recorder, log: log}
}

// Handle processes a batch and reports failed messages individually so that
// only those are redelivered.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, msg := range ev.Records {
		if err := p.processMessage(ctx, msg); err != nil {
			p.log.Error().Err(err).Str("message_id", msg.MessageId).Msg("decision event failed")
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: msg.MessageId,
			})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, msg events.SQSMessage) error {
	var ev approval.DecisionEvent
	if err := json.Unmarshal([]byte(msg.Body), &ev); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if ev.EventID == "" {
		return errors.New("decision event without event_id")
	}

	log := p.log.With().
		Str("event_id", ev.EventID).
		Str("order_id", ev.OrderID).
		Str("to", ev.To.String()).
		Logger()

	key := idempotency.Key("decision_event", ev.EventID)
	proceed, err := p.claim(ctx, key, ev.OrderID)
	if err != nil {
		return err
	}
	if !proceed {
		log.Info().Msg("duplicate decision event skipped")
		return nil
	}

	if err := p.recorder.RecordDecision(ctx, ev); err != nil {
		if markErr := p.dedup.MarkFailed(ctx, key, err.Error()); markErr != nil {
			log.Warn().Err(markErr).Msg("mark failed")
		}
		return fmt.Errorf("record decision %s: %w", ev.EventID, err)
	}

	if err := p.dedup.MarkDone(ctx, key, string(ev.To), 0); err != nil {
		// metrics are already recorded; a retry would count them twice
		log.Error().Err(err).Msg("mark done")
		return nil
	}
	log.Info().Msg("decision event recorded")
	return nil
}

// claim reports whether this invocation owns key and should do the work.
func (p *Processor) claim(ctx context.Context, key, orderID string) (bool, error) {
	created, err := p.dedup.CreateIfNotExists(ctx, key, orderID)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	if created {
		return true, nil
	}

	rec, err := p.dedup.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read claim %s: %w", key, err)
	}
	if rec == nil {
		// expired between the two calls
		return false, errInFlight
	}

	switch rec.Status {
	case idempotency.StatusDone:
		return false, nil
	case idempotency.StatusFailed:
		ok, err := p.dedup.Reclaim(ctx, key)
		if err != nil {
			return false, fmt.Errorf("reclaim %s: %w", key, err)
		}
		if !ok {
			return false, errInFlight
		}
		return true, nil
	default:
		return false, errInFlight
	}
}
