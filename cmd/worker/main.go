package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/po-approvals/internal/aws"
	"github.com/imrishuroy/po-approvals/internal/config"
	"github.com/imrishuroy/po-approvals/internal/idempotency"
	"github.com/imrishuroy/po-approvals/internal/logger"
	"github.com/imrishuroy/po-approvals/internal/metrics"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name + "-worker",
		Version:     cfg.Service.Version,
	})

	ctx := context.Background()
	clients, err := aws.NewAWSClients(ctx, cfg.AWS.Region, cfg.AWS.EndpointOverride)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init aws clients")
	}

	p := NewProcessor(
		idempotency.NewStore(clients.DynamoDB, cfg.Store.IdempotencyTable, cfg.Store.IdempotencyTTL),
		metrics.NewCloudWatchRecorder(clients.CloudWatch, cfg.Metrics.Namespace),
		log.Component("worker"),
	)

	// RUN_LOCAL feeds a single message from LOCAL_SQS_BODY through the processor.
	if cfg.Server.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			log.Fatal().Msg("LOCAL_SQS_BODY is required when RUN_LOCAL=true")
		}
		resp, _ := p.Handle(ctx, events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
		})
		if len(resp.BatchItemFailures) > 0 {
			log.Fatal().Msg("local message failed")
		}
		return
	}

	lambda.Start(p.Handle)
}
