package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/cmd/mainconfig"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/api/router"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/app/bootstrap"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/appointments"
	appconfig "github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/config"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/http/handlers"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/ledger"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/notify"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/observability/metrics"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/reminder"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/whatsapp"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting appointment reminder API",
		"env", cfg.Env,
		"port", cfg.Port,
	)

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

	registry := prometheus.NewRegistry()
	reminderMetrics := metrics.NewReminderMetrics(registry)
	session.OnStatus(func(status whatsapp.Status) {
		reminderMetrics.SetSessionStatus(string(status))
	})

	ledgerStore := ledger.NewStore(pool)
	apptStore := appointments.NewStore(pool)
	alerts := notify.NewService(bootstrap.BuildEmailSender(cfg, awsCfg, logger), cfg.OperatorEmail, logger)

	serviceOpts := []reminder.ServiceOption{
		reminder.WithCountryCode(cfg.CountryCode),
		reminder.WithSchedulerInterval(cfg.SchedulerInterval),
		reminder.WithServiceMetrics(reminderMetrics),
		reminder.WithServiceLogger(logger),
	}
	processorOpts := []reminder.ProcessorOption{
		reminder.WithRetryPolicy(cfg.RetryMaxAttempts, cfg.RetryBaseDelay),
		reminder.WithSendTimeout(cfg.SendTimeout),
		reminder.WithSettleDelay(cfg.ConnectSettleDelay),
		reminder.WithAlerts(alerts),
		reminder.WithProcessorMetrics(reminderMetrics),
		reminder.WithProcessorLogger(logger),
	}

	var (
		scheduler *reminder.Service
		processor *reminder.Processor
	)
	if cfg.UseMemoryQueue {
		logger.Info("using in-memory reminder queue")
		queue := reminder.NewMemoryQueue(256)
		scheduler = reminder.NewService(queue, apptStore, ledgerStore, tracker, serviceOpts...)
		processor = reminder.NewProcessor(queue, session, ledgerStore, tracker, processorOpts...)
	} else {
		queue := reminder.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ReminderQueueURL)
		scheduler = reminder.NewService(queue, apptStore, ledgerStore, tracker, serviceOpts...)
		processor = reminder.NewProcessor(queue, session, ledgerStore, tracker, processorOpts...)
	}

	inbound := reminder.NewRouter(session, ledgerStore, apptStore,
		reminder.WithRescheduleURL(cfg.RescheduleURL),
		reminder.WithRouterMetrics(reminderMetrics),
		reminder.WithRouterLogger(logger),
	)
	session.OnMessage(func(msg whatsapp.InboundMessage) {
		inbound.HandleInbound(context.Background(), msg)
	})
	session.StartAutoReconnect()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		scheduler.Run(runCtx)
	}()
	for i := 0; i < cfg.WorkerCount; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			processor.Run(runCtx)
		}()
	}

	queueHandler := handlers.NewQueueHandler(scheduler, tracker, apptStore, session, cfg.CountryCode, logger)
	whatsappHandler := handlers.NewWhatsAppHandler(session, logger)

	r := router.New(&router.Config{
		Logger:          logger,
		QueueHandler:    queueHandler,
		WhatsAppHandler: whatsappHandler,
		AdminAuthSecret: cfg.AdminJWTSecret,
		MetricsHandler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()
	if err := session.Disconnect(); err != nil {
		logger.Warn("disconnecting whatsapp session", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	waitCh := make(chan struct{})
	go func() {
		workers.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
		logger.Info("reminder workers stopped")
	case <-shutdownCtx.Done():
		logger.Error("reminder workers shutdown timed out", "error", shutdownCtx.Err())
	}

	logger.Info("server stopped")
}
