package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/cmd/mainconfig"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/app/bootstrap"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/appointments"
	appconfig "github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/config"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/ledger"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/notify"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/reminder"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/whatsapp"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/pkg/logging"
)

// The standalone worker drains the SQS reminder queue and delivers over
// WhatsApp. With USE_MEMORY_QUEUE=true the queue only exists inside the API
// process, so this binary refuses to start.
func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting reminder worker", "env", cfg.Env)

	if cfg.UseMemoryQueue {
		logger.Error("reminder worker cannot run when USE_MEMORY_QUEUE=true; run inline workers via the API process instead")
		os.Exit(1)
	}

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	var dynamoClient *dynamodb.Client
	if cfg.JobsBackend == "dynamo" {
		dynamoClient = dynamodb.NewFromConfig(awsCfg)
	}
	tracker, err := bootstrap.BuildTracker(cfg, pool, dynamoClient)
	if err != nil {
		logger.Error("failed to configure job tracker", "error", err)
		os.Exit(1)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	session := bootstrap.BuildSession(cfg, redisClient, logger)

	ledgerStore := ledger.NewStore(pool)
	apptStore := appointments.NewStore(pool)
	alerts := notify.NewService(bootstrap.BuildEmailSender(cfg, awsCfg, logger), cfg.OperatorEmail, logger)

	queue := reminder.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ReminderQueueURL)
	processor := reminder.NewProcessor(queue, session, ledgerStore, tracker,
		reminder.WithRetryPolicy(cfg.RetryMaxAttempts, cfg.RetryBaseDelay),
		reminder.WithSendTimeout(cfg.SendTimeout),
		reminder.WithSettleDelay(cfg.ConnectSettleDelay),
		reminder.WithAlerts(alerts),
		reminder.WithProcessorLogger(logger),
	)

	inbound := reminder.NewRouter(session, ledgerStore, apptStore,
		reminder.WithRescheduleURL(cfg.RescheduleURL),
		reminder.WithRouterLogger(logger),
	)
	session.OnMessage(func(msg whatsapp.InboundMessage) {
		inbound.HandleInbound(context.Background(), msg)
	})
	session.StartAutoReconnect()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var workers sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			processor.Run(runCtx)
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down reminder worker...")
	cancel()
	if err := session.Disconnect(); err != nil {
		logger.Warn("disconnecting whatsapp session", "error", err)
	}

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		workers.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("reminder worker stopped")
	case <-doneCtx.Done():
		logger.Error("reminder worker shutdown timed out", "error", doneCtx.Err())
	}
}
