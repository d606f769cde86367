// Package bootstrap builds the shared runtime dependencies so the API and
// worker binaries wire them the same way.
package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/config"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/jobs"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/notify"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/whatsapp"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// BuildTracker selects the reminder job tracker backend. Postgres is the
// default; "dynamo" switches to DynamoDB.
func BuildTracker(cfg *appconfig.Config, pool *pgxpool.Pool, dynamoClient *dynamodb.Client) (jobs.Tracker, error) {
	switch cfg.JobsBackend {
	case "", "postgres":
		if pool == nil {
			return nil, fmt.Errorf("bootstrap: postgres jobs backend requires DATABASE_URL")
		}
		return jobs.NewPGTracker(pool), nil
	case "dynamo":
		if dynamoClient == nil {
			return nil, fmt.Errorf("bootstrap: dynamo jobs backend requires an AWS client")
		}
		return jobs.NewDynamoTracker(dynamoClient, cfg.JobsTable), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown jobs backend %q", cfg.JobsBackend)
	}
}

// BuildEmailSender selects the operator-alert email provider. It falls back
// to the logging stub when the configured provider is unusable.
func BuildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.EmailProvider {
	case "ses":
		if sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.EmailFromName,
		}, logger); sender != nil {
			return sender
		}
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.EmailFromName,
		}, logger); sender != nil {
			return sender
		}
		logger.Warn("sendgrid not configured, operator alerts will only be logged")
	}
	return notify.NewStubEmailSender(logger)
}

// BuildSession wires the WhatsApp gateway transport and Redis-backed
// credential persistence into a session manager.
func BuildSession(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) *whatsapp.Session {
	if logger == nil {
		logger = logging.Default()
	}

	gateway := whatsapp.NewGateway(cfg.GatewayBaseURL,
		whatsapp.WithToken(cfg.GatewayToken),
		whatsapp.WithSessionName(cfg.SessionName),
		whatsapp.WithLogger(logger),
	)

	var creds whatsapp.CredentialStore
	if redisClient != nil {
		creds = whatsapp.NewRedisCredentialStore(redisClient, cfg.SessionName)
	} else {
		logger.Warn("redis unavailable, whatsapp credentials will not persist across restarts")
	}

	return whatsapp.NewSession(gateway, creds,
		whatsapp.WithReconnectDelays(cfg.ReconnectDelay, cfg.AuthFailureReconnectDelay),
		whatsapp.WithSessionLogger(logger),
	)
}
