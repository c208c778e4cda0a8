// Command seed writes the demo users to the users table and prints a bearer
// token for each of them.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/imrishuroy/po-approvals/internal/auth"
	"github.com/imrishuroy/po-approvals/internal/aws"
	"github.com/imrishuroy/po-approvals/internal/config"
	"github.com/imrishuroy/po-approvals/internal/logger"
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
		ServiceName: cfg.Service.Name + "-seed",
		Version:     cfg.Service.Version,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users := auth.DemoUsers()
	if cfg.Auth.Directory == config.DirectoryDynamoDB {
		clients, err := aws.NewAWSClients(ctx, cfg.AWS.Region, cfg.AWS.EndpointOverride)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init aws clients")
		}
		dir := auth.NewDynamoDBDirectory(clients.DynamoDB, cfg.Store.UsersTable)
		for _, u := range users {
			if err := dir.PutUser(ctx, u); err != nil {
				log.Fatal().Err(err).Str("user_id", u.ID).Msg("failed to write user")
			}
		}
		log.Info().Int("count", len(users)).Str("table", cfg.Store.UsersTable).Msg("users seeded")
	}

	now := time.Now()
	for _, u := range users {
		token, err := auth.IssueToken([]byte(cfg.Auth.SecretKey), u, cfg.Auth.TokenTTL, now)
		if err != nil {
			log.Fatal().Err(err).Str("user_id", u.ID).Msg("failed to issue token")
		}
		fmt.Printf("%-11s %s\n", u.Role, token)
	}
}
