package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Reminder queue
	UseMemoryQueue   bool
	ReminderQueueURL string
	WorkerCount      int
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration

	// Job tracking backend: "postgres" (default) or "dynamo".
	JobsBackend string
	JobsTable   string

	// WhatsApp gateway sidecar
	GatewayBaseURL            string
	GatewayToken              string
	SessionName               string
	SendTimeout               time.Duration
	ConnectSettleDelay        time.Duration
	ReconnectDelay            time.Duration
	AuthFailureReconnectDelay time.Duration

	// Reminder discovery
	SchedulerInterval time.Duration
	CountryCode       string
	RescheduleURL     string

	AdminJWTSecret string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Operator alerting
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	EmailFromName     string
	SESFromEmail      string
	OperatorEmail     string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		UseMemoryQueue:   getEnvAsBool("USE_MEMORY_QUEUE", false),
		ReminderQueueURL: getEnv("REMINDER_QUEUE_URL", ""),
		WorkerCount:      getEnvAsInt("WORKER_COUNT", 2),
		RetryMaxAttempts: getEnvAsInt("REMINDER_RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:   getEnvAsDuration("REMINDER_RETRY_BASE_DELAY", 2*time.Second),

		JobsBackend: strings.ToLower(strings.TrimSpace(getEnv("JOBS_BACKEND", "postgres"))),
		JobsTable:   getEnv("JOBS_TABLE", "reminder_jobs"),

		GatewayBaseURL:            getEnv("WHATSAPP_GATEWAY_URL", "http://localhost:3000"),
		GatewayToken:              getEnv("WHATSAPP_GATEWAY_TOKEN", ""),
		SessionName:               getEnv("WHATSAPP_SESSION_NAME", "main-session"),
		SendTimeout:               getEnvAsDuration("WHATSAPP_SEND_TIMEOUT", 30*time.Second),
		ConnectSettleDelay:        getEnvAsDuration("WHATSAPP_CONNECT_SETTLE_DELAY", 5*time.Second),
		ReconnectDelay:            getEnvAsDuration("WHATSAPP_RECONNECT_DELAY", 5*time.Second),
		AuthFailureReconnectDelay: getEnvAsDuration("WHATSAPP_AUTH_RECONNECT_DELAY", 10*time.Second),

		SchedulerInterval: getEnvAsDuration("SCHEDULER_INTERVAL", time.Hour),
		CountryCode:       getEnv("PHONE_COUNTRY_CODE", "55"),
		RescheduleURL:     getEnv("RESCHEDULE_URL", "https://clicksaude.app/agendar"),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "sendgrid"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		EmailFromName:     getEnv("EMAIL_FROM_NAME", "Click Saúde Agendamentos"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		OperatorEmail:     getEnv("OPERATOR_ALERT_EMAIL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
