package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/po-approvals/internal/approval"
	"github.com/imrishuroy/po-approvals/internal/auth"
	"github.com/imrishuroy/po-approvals/internal/aws"
	"github.com/imrishuroy/po-approvals/internal/config"
	"github.com/imrishuroy/po-approvals/internal/handlers"
	"github.com/imrishuroy/po-approvals/internal/idempotency"
	"github.com/imrishuroy/po-approvals/internal/logger"
	"github.com/imrishuroy/po-approvals/internal/orders"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})
	if cfg.Service.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	deps, cleanup, err := buildDeps(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise dependencies")
	}
	defer cleanup()

	r := handlers.NewRouter(deps)

	if cfg.Server.RunLocal {
		runLocal(cfg, log, r)
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

// buildDeps selects the store backend and the optional AWS-backed features.
func buildDeps(ctx context.Context, cfg *config.Config, log *logger.Logger) (handlers.HandlerConfig, func(), error) {
	cleanup := func() {}

	var clients *aws.AWSClients
	needAWS := cfg.Store.Backend == config.BackendDynamoDB ||
		cfg.Auth.Directory == config.DirectoryDynamoDB ||
		cfg.Events.QueueURL != "" ||
		cfg.Store.IdempotencyTable != ""
	if needAWS {
		var err error
		clients, err = aws.NewAWSClients(ctx, cfg.AWS.Region, cfg.AWS.EndpointOverride)
		if err != nil {
			return handlers.HandlerConfig{}, cleanup, fmt.Errorf("init aws clients: %w", err)
		}
	}

	var store orders.Store
	switch cfg.Store.Backend {
	case config.BackendDynamoDB:
		store = orders.NewDynamoDBStore(clients.DynamoDB, cfg.Store.OrdersTable, cfg.Store.ApprovalsTable)
	case config.BackendPostgres:
		pg, err := orders.NewPostgresStore(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns)
		if err != nil {
			return handlers.HandlerConfig{}, cleanup, err
		}
		cleanup = pg.Close
		if err := pg.Migrate(ctx); err != nil {
			return handlers.HandlerConfig{}, cleanup, err
		}
		store = pg
	case config.BackendMemory:
		store = orders.NewMemoryStore()
		log.Warn().Msg("using in-memory store; data is lost on exit")
	}

	var directory auth.Directory
	switch cfg.Auth.Directory {
	case config.DirectoryDynamoDB:
		directory = auth.NewDynamoDBDirectory(clients.DynamoDB, cfg.Store.UsersTable)
	default:
		directory = auth.NewStaticDirectory(auth.DemoUsers()...)
		log.Warn().Msg("serving the built-in demo users")
	}

	var publisher approval.EventPublisher = approval.NopPublisher{}
	if cfg.Events.QueueURL != "" {
		publisher = approval.NewQueuePublisher(aws.NewPublisher(clients.SQS, cfg.Events.QueueURL))
	}

	var idem *idempotency.Store
	if cfg.Store.IdempotencyTable != "" {
		idem = idempotency.NewStore(clients.DynamoDB, cfg.Store.IdempotencyTable, cfg.Store.IdempotencyTTL)
	}

	log.Info().
		Str("backend", cfg.Store.Backend).
		Str("directory", cfg.Auth.Directory).
		Bool("events", cfg.Events.QueueURL != "").
		Bool("idempotency", idem != nil).
		Msg("dependencies ready")

	return handlers.HandlerConfig{
		Service:     approval.NewService(store, publisher, log.Component("approval")),
		Gate:        auth.NewJWTGate([]byte(cfg.Auth.SecretKey), directory),
		Log:         log.Component("http"),
		Idempotency: idem,
	}, cleanup, nil
}

// runLocal serves HTTP until SIGINT or SIGTERM, then drains connections.
func runLocal(cfg *config.Config, log *logger.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("running local server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("local server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}
